package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlText returns the visible text of an HTML page and its title.
func htmlText(r io.Reader) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", "", fmt.Errorf("parse HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript, template, svg").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, h1, h2, h3, h4, h5, h6, tr, section, article, blockquote, pre").
		Each(func(_ int, s *goquery.Selection) {
			s.AppendHtml("\n")
		})

	body := doc.Find("body")
	if body.Length() == 0 {
		return doc.Text(), title, nil
	}

	return body.Text(), title, nil
}

// htmlFragmentText strips markup from an HTML fragment such as a feed item
// description.
func htmlFragmentText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" || !strings.Contains(fragment, "<") {
		return fragment
	}

	text, _, err := htmlText(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}

	return text
}
