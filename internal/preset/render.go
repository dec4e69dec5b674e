package preset

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

type renderer struct {
	b strings.Builder
}

func (r *renderer) heading(text string) {
	if r.b.Len() > 0 {
		r.b.WriteString("\n\n")
	}
	r.b.WriteString(text)
}

// field writes "label: value" when path holds a non-empty scalar.
func (r *renderer) field(doc []byte, label string, path string) {
	value := strings.TrimSpace(gjson.GetBytes(doc, path).String())
	if value == "" {
		return
	}

	if r.b.Len() > 0 {
		r.b.WriteString("\n\n")
	}
	if label != "" {
		r.b.WriteString(label)
		r.b.WriteString(": ")
	}
	r.b.WriteString(value)
}

// list writes a numbered list of the array at path. Object items are
// formatted by item; string items are written as they are.
func (r *renderer) list(doc []byte, label string, path string, item func(gjson.Result) string) {
	values := gjson.GetBytes(doc, path)
	if !values.IsArray() {
		return
	}

	var lines []string
	values.ForEach(func(_, value gjson.Result) bool {
		var line string
		if value.IsObject() && item != nil {
			line = item(value)
		} else {
			line = value.String()
		}

		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}

		return true
	})

	if len(lines) == 0 {
		return
	}

	r.heading(label)
	for i, line := range lines {
		r.b.WriteString(fmt.Sprintf("\n%d. %s", i+1, line))
	}
}

func (r *renderer) String() string {
	return r.b.String()
}

// joinFields joins the non-empty string values of paths in v.
func joinFields(v gjson.Result, sep string, paths ...string) string {
	parts := make([]string, 0, len(paths))

	for _, path := range paths {
		if s := strings.TrimSpace(v.Get(path).String()); s != "" {
			parts = append(parts, s)
		}
	}

	return strings.Join(parts, sep)
}
