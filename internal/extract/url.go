package extract

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"mvdan.cc/xurls/v2"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"

var ErrInvalidURL = errors.New("URL must be an absolute http(s) URL")

// FindURLs returns every https URL found in text, in order and without
// duplicates.
func FindURLs(text string) ([]string, error) {
	re, err := xurls.StrictMatchingScheme("https://")
	if err != nil {
		return nil, fmt.Errorf("create regexp: %w", err)
	}

	matches := re.FindAllString(text, -1)
	urls := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))

	for _, m := range matches {
		m = strings.TrimSpace(m)
		if _, ok := seen[m]; ok {
			continue
		}

		seen[m] = struct{}{}
		urls = append(urls, m)
	}

	return urls, nil
}

// ExtractURL downloads a page and extracts its text. The parser is chosen
// by the response content type.
func (e *Extractor) ExtractURL(ctx context.Context, rawURL string) (*Document, error) {
	rawURL = strings.TrimSpace(rawURL)

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := e.httpClient.Do(req) //nolint:gosec // User-provided URL is the point.
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			e.log.ErrorContext(ctx, "Failed to close response body",
				"error", err,
				"url", rawURL,
				"operation", "ExtractURL")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("do request: unexpected status: %d", resp.StatusCode)
	}

	data, err := e.readAll(resp.Body)
	if err != nil {
		return nil, err
	}

	k := kindByContentType(resp.Header.Get("Content-Type"), u.Path)

	text, title, err := e.extractKind(ctx, k, data)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", rawURL, err)
	}

	text = normalizeText(text)
	if text == "" {
		return nil, fmt.Errorf("extract %s: %w", rawURL, ErrNoText)
	}

	name := strings.TrimSpace(title)
	if name == "" {
		name = rawURL
	}

	return &Document{Name: name, Text: text}, nil
}

func kindByContentType(contentType string, path string) kind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case strings.Contains(mediaType, "html"):
		return kindHTML
	case strings.Contains(mediaType, "rss"),
		strings.Contains(mediaType, "atom"),
		strings.Contains(mediaType, "xml"),
		mediaType == "application/feed+json":
		return kindFeed
	case mediaType == "application/pdf":
		return kindPDF
	case strings.HasPrefix(mediaType, "text/"):
		return kindText
	}

	if k, ok := kindByExtension(path); ok {
		return k
	}

	return kindHTML
}
