package fields

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/a3tai/mcp-pdf-layout/internal/layout/geometry"
)

// Template is a document plus the fields authored on it.
type Template struct {
	ID       string       `yaml:"id" json:"id"`
	Name     string       `yaml:"name,omitempty" json:"name,omitempty"`
	Document string       `yaml:"document" json:"document"`
	Fields   []Definition `yaml:"fields" json:"fields"`
}

// LoadTemplate parses a YAML template and validates its fields.
func LoadTemplate(r io.Reader) (*Template, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("template: read: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var tpl Template
	if err := dec.Decode(&tpl); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("template: empty document")
		}
		return nil, fmt.Errorf("template: decode: %w", err)
	}

	tpl.ID = strings.TrimSpace(tpl.ID)
	if tpl.ID == "" {
		return nil, fmt.Errorf("template: id is required")
	}
	if strings.TrimSpace(tpl.Document) == "" {
		return nil, fmt.Errorf("template %s: document is required", tpl.ID)
	}

	seen := make(map[string]struct{}, len(tpl.Fields))
	for i := range tpl.Fields {
		f := &tpl.Fields[i]
		if f.Kind == "" {
			f.Kind = KindText
		}
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("template %s: %w", tpl.ID, err)
		}
		if _, dup := seen[f.ID]; dup {
			return nil, fmt.Errorf("template %s: duplicate field id %q", tpl.ID, f.ID)
		}
		seen[f.ID] = struct{}{}
	}

	return &tpl, nil
}

// LoadTemplateFile reads a YAML template from disk.
func LoadTemplateFile(path string) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("template: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadTemplate(f)
}

// Marshal renders the template as YAML, e.g. to persist a saved layout.
func (t *Template) Marshal() ([]byte, error) {
	return yaml.Marshal(t)
}

// WithOverrides returns a copy of the template whose field geometry has
// been replaced by the given overrides.
func (t *Template) WithOverrides(overrides map[string]geometry.Rect) *Template {
	out := *t
	out.Fields = make([]Definition, len(t.Fields))
	copy(out.Fields, t.Fields)
	for i := range out.Fields {
		r, ok := overrides[out.Fields[i].ID]
		if !ok {
			continue
		}
		out.Fields[i].X = r.X
		out.Fields[i].Y = r.Y
		out.Fields[i].Width = r.Width
		out.Fields[i].Height = r.Height
	}
	return &out
}
