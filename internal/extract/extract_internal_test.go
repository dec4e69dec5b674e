package extract

import "testing"

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"blank lines only", "\n \n\t\n", ""},
		{"trims lines", "  a  \n  b ", "a\nb"},
		{"collapses blank runs", "a\n\n\n\nb", "a\n\nb"},
		{"windows newlines", "a\r\n\r\nb\r\n", "a\n\nb"},
		{"leading blank lines", "\n\n\na", "a"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := normalizeText(test.in); got != test.want {
				t.Fatalf("normalizeText(%q) = %q, want %q", test.in, got, test.want)
			}
		})
	}
}

func TestKindByContentType(t *testing.T) {
	tests := []struct {
		contentType string
		path        string
		want        kind
	}{
		{"text/html; charset=utf-8", "/", kindHTML},
		{"application/xhtml+xml", "/", kindHTML},
		{"application/rss+xml", "/feed", kindFeed},
		{"application/atom+xml", "/feed", kindFeed},
		{"text/xml", "/feed", kindFeed},
		{"application/pdf", "/file", kindPDF},
		{"text/plain", "/notes", kindText},
		{"application/octet-stream", "/paper.pdf", kindPDF},
		{"", "/unknown", kindHTML},
	}

	for _, test := range tests {
		if got := kindByContentType(test.contentType, test.path); got != test.want {
			t.Fatalf("kindByContentType(%q, %q) = %d, want %d", test.contentType, test.path, got, test.want)
		}
	}
}
