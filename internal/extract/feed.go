package extract

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// feedText flattens an RSS, Atom or JSON feed into text: the feed title and
// description followed by every item's title and body.
func (e *Extractor) feedText(ctx context.Context, r io.Reader) (string, string, error) {
	parsed, err := e.feedParser.Parse(r)
	if err != nil {
		return "", "", fmt.Errorf("parse feed: %w", err)
	}

	var b strings.Builder

	title := strings.TrimSpace(parsed.Title)
	if title != "" {
		b.WriteString(title)
		b.WriteString("\n\n")
	}

	if desc := htmlFragmentText(parsed.Description); desc != "" {
		b.WriteString(desc)
		b.WriteString("\n\n")
	}

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}

		if itemTitle := strings.TrimSpace(item.Title); itemTitle != "" {
			b.WriteString(itemTitle)
			b.WriteString("\n")
		}

		body := item.Content
		if strings.TrimSpace(body) == "" {
			body = item.Description
		}
		if text := htmlFragmentText(body); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}

		b.WriteString("\n")
	}

	e.log.DebugContext(ctx, "Feed is flattened",
		"title", title,
		"itemCount", len(parsed.Items))

	return b.String(), title, nil
}
