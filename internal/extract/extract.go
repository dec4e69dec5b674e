package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	DefaultMaxBytes = 20 << 20

	httpClientTimeout = 30 * time.Second
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNoText          = errors.New("no text could be extracted")
	ErrTooLarge        = errors.New("file is too large")
)

// Document is text extracted from a file or a web page.
type Document struct {
	// Name is the file name, page title or URL the text came from.
	Name string
	Text string
}

type Extractor struct {
	httpClient *http.Client
	feedParser *gofeed.Parser
	maxBytes   int64
	log        *slog.Logger
}

func New(log *slog.Logger) *Extractor {
	return &Extractor{
		httpClient: &http.Client{Timeout: httpClientTimeout},
		feedParser: gofeed.NewParser(),
		maxBytes:   DefaultMaxBytes,
		log:        log,
	}
}

// WithHTTPClient returns a copy of e that fetches pages with client.
func (e *Extractor) WithHTTPClient(client *http.Client) *Extractor {
	cp := *e
	cp.httpClient = client

	return &cp
}

// WithMaxBytes returns a copy of e that rejects inputs larger than n bytes.
func (e *Extractor) WithMaxBytes(n int64) *Extractor {
	cp := *e
	cp.maxBytes = n

	return &cp
}

// Supported reports whether name has an extension Extract understands.
func Supported(name string) bool {
	_, ok := kindByExtension(name)

	return ok
}

// Extract returns the plain text of a file, choosing the parser by the
// extension of name.
func (e *Extractor) Extract(ctx context.Context, name string, r io.Reader) (*Document, error) {
	kind, ok := kindByExtension(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(name))
	}

	data, err := e.readAll(r)
	if err != nil {
		return nil, err
	}

	text, title, err := e.extractKind(ctx, kind, data)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}

	text = normalizeText(text)
	if text == "" {
		return nil, fmt.Errorf("extract %s: %w", name, ErrNoText)
	}

	docName := strings.TrimSpace(filepath.Base(name))
	if docName == "" || docName == "." {
		docName = strings.TrimSpace(title)
	}

	return &Document{Name: docName, Text: text}, nil
}

type kind int

const (
	kindText kind = iota
	kindPDF
	kindDOCX
	kindHTML
	kindFeed
)

func kindByExtension(name string) (kind, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(strings.TrimSpace(name)), "."))

	switch ext {
	case "txt", "md", "markdown":
		return kindText, true
	case "pdf":
		return kindPDF, true
	case "docx":
		return kindDOCX, true
	case "html", "htm":
		return kindHTML, true
	case "rss", "atom", "xml":
		return kindFeed, true
	default:
		return 0, false
	}
}

func (e *Extractor) extractKind(ctx context.Context, k kind, data []byte) (string, string, error) {
	switch k {
	case kindText:
		return strings.ToValidUTF8(string(data), "�"), "", nil
	case kindPDF:
		text, err := pdfText(data)
		return text, "", err
	case kindDOCX:
		text, err := docxText(data)
		return text, "", err
	case kindHTML:
		return htmlText(bytes.NewReader(data))
	case kindFeed:
		return e.feedText(ctx, bytes.NewReader(data))
	default:
		return "", "", ErrUnsupportedType
	}
}

func (e *Extractor) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, e.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	if int64(len(data)) > e.maxBytes {
		return nil, fmt.Errorf("%w (limit = %d bytes)", ErrTooLarge, e.maxBytes)
	}

	return data, nil
}

// normalizeText trims every line and collapses runs of blank lines.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var b strings.Builder
	b.Grow(len(text))

	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			blank = b.Len() > 0
			continue
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
			if blank {
				b.WriteByte('\n')
			}
		}
		blank = false

		b.WriteString(line)
	}

	return b.String()
}
