// Package markdown formats text for Telegram's MarkdownV2 parse mode.
package markdown

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is the Telegram limit for one text message, in UTF-16
// code units. Counting runes is stricter for the BMP and close enough
// otherwise.
const MaxMessageLength = 4096

// Taken from https://core.telegram.org/bots/api#markdownv2-style.
const mdV2SpecialChars = `\._[](){}#|!+-=*~>` + "`"

//nolint:gochecknoglobals // Lookup table meant to be immutable.
var mdV2Lookup = func() [256]bool {
	var m [256]bool
	for i := range len(mdV2SpecialChars) {
		m[mdV2SpecialChars[i]] = true
	}
	return m
}()

func EscapeV2(input string) string {
	charsToEscape := 0

	for i := range len(input) {
		if mdV2Lookup[input[i]] {
			charsToEscape++
		}
	}

	if charsToEscape == 0 {
		return input
	}

	var b strings.Builder
	b.Grow(len(input) + charsToEscape)

	for i := range len(input) {
		c := input[i]
		if mdV2Lookup[c] {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}

	return b.String()
}

func Bold(text string) string {
	return "*" + EscapeV2(text) + "*"
}

func Italic(text string) string {
	return "_" + EscapeV2(text) + "_"
}

func Code(text string) string {
	r := strings.NewReplacer(`\`, `\\`, "`", "\\`")

	return "`" + r.Replace(text) + "`"
}

// Split cuts text into parts of at most limit runes, preferring line
// breaks. Lines longer than limit are cut on rune boundaries.
func Split(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		parts []string
		cur   strings.Builder
		n     int
	)

	flush := func() {
		if part := strings.TrimRight(cur.String(), "\n"); part != "" {
			parts = append(parts, part)
		}
		cur.Reset()
		n = 0
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		lineLen := utf8.RuneCountInString(line)

		if n+lineLen > limit {
			flush()
		}

		for lineLen > limit {
			head, rest := cutRunes(line, limit)
			parts = append(parts, head)
			line = rest
			lineLen -= limit
		}

		cur.WriteString(line)
		n += lineLen
	}
	flush()

	return parts
}

func cutRunes(s string, n int) (string, string) {
	i := 0
	for j := range s {
		if i == n {
			return s[:j], s[j:]
		}
		i++
	}

	return s, ""
}
