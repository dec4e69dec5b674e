package preset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

const DefaultName = "study-guide"

var ErrUnknownPreset = errors.New("unknown preset")

// Preset pairs the prompts of one long-document feature with a renderer for
// the JSON the final prompt asks for.
type Preset struct {
	Name              string
	Title             string
	Description       string
	ChunkSystemPrompt string
	FinalSystemPrompt string

	render func(result json.RawMessage) string
}

// Render turns a final result into readable plain text. Fields missing from
// the result are skipped; a result with none of the expected fields is
// returned as indented JSON.
func (p *Preset) Render(result json.RawMessage) string {
	if p.render != nil {
		if text := strings.TrimSpace(p.render(result)); text != "" {
			return text
		}
	}

	return indentJSON(result)
}

type Registry struct {
	presets map[string]*Preset
	names   []string
}

func NewRegistry(presets ...*Preset) *Registry {
	r := &Registry{presets: make(map[string]*Preset, len(presets))}

	for _, p := range presets {
		if p == nil {
			continue
		}
		if _, ok := r.presets[p.Name]; !ok {
			r.names = append(r.names, p.Name)
		}
		r.presets[p.Name] = p
	}

	slices.Sort(r.names)

	return r
}

// Default returns the registry of built-in presets.
func Default() *Registry {
	return NewRegistry(courseDesign(), grading(), studyGuide(), questionBank())
}

// Get looks a preset up by name. An empty name selects DefaultName.
func (r *Registry) Get(name string) (*Preset, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultName
	}

	p, ok := r.presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownPreset, name, strings.Join(r.names, ", "))
	}

	return p, nil
}

// All returns presets sorted by name.
func (r *Registry) All() []*Preset {
	out := make([]*Preset, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.presets[name])
	}

	return out
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer

	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}

	return buf.String()
}
