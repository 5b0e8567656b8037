package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FieldSchema is the caller-supplied description of one output field. It is
// rendered into prompts and never interpreted.
type FieldSchema = json.RawMessage

// TemplateField is one named field of a template.
type TemplateField struct {
	Name   string
	Schema FieldSchema
}

// PostIDKey is the output key that holds the post id. No template field may
// use it.
const PostIDKey = "post_id"

// Template is the ordered set of fields to analyse. Order is the declaration
// order of the source document.
type Template struct {
	Fields []TemplateField
}

// Set adds or replaces a field. A replaced field keeps its original position.
func (t *Template) Set(name string, schema FieldSchema) {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			t.Fields[i].Schema = schema
			return
		}
	}
	t.Fields = append(t.Fields, TemplateField{Name: name, Schema: schema})
}

// Merge applies every field of other onto t, in order.
func (t *Template) Merge(other Template) {
	for _, f := range other.Fields {
		t.Set(f.Name, f.Schema)
	}
}

// Has reports whether the template declares a field named name.
func (t Template) Has(name string) bool {
	for _, f := range t.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Names returns the field names in declaration order.
func (t Template) Names() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of fields.
func (t Template) Len() int {
	return len(t.Fields)
}

// FieldStatus is the terminal state of a field task.
type FieldStatus string

const (
	FieldAccepted  FieldStatus = "accepted"
	FieldExhausted FieldStatus = "exhausted"
	FieldCached    FieldStatus = "cached"
)

// DefaultFieldValue is stored for a field whose attempts were exhausted.
func DefaultFieldValue() any {
	return map[string]any{}
}

// FieldOutcome is the final record of one (post, field) task.
type FieldOutcome struct {
	Field      string      `json:"field"`
	Value      any         `json:"value"`
	Status     FieldStatus `json:"status"`
	Attempts   int         `json:"attempts"`
	Diagnostic string      `json:"diagnostic,omitempty"`
}

// FieldValue is one field of a PostAnalysis.
type FieldValue struct {
	Name  string
	Value any
}

// PostAnalysis maps field names to results for one post. It marshals to a
// flat object with post_id first and fields in template order.
type PostAnalysis struct {
	PostID string
	Fields []FieldValue
}

// Get returns the value stored for a field.
func (a PostAnalysis) Get(name string) (any, bool) {
	for _, f := range a.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// MarshalJSON writes post_id followed by each field in order.
func (a PostAnalysis) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	id, err := json.Marshal(a.PostID)
	if err != nil {
		return nil, eris.Wrap(err, "model: marshal post_id")
	}
	buf.WriteString(`"post_id":`)
	buf.Write(id)
	for _, f := range a.Fields {
		if f.Name == PostIDKey {
			continue
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, eris.Wrapf(err, "model: marshal field name %s", f.Name)
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, eris.Wrapf(err, "model: marshal field %s", f.Name)
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an analysis object back, keeping key order.
func (a *PostAnalysis) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return eris.Wrap(err, "model: read analysis")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return eris.New("model: analysis must be a JSON object")
	}
	out := PostAnalysis{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "model: read analysis key")
		}
		key, _ := tok.(string)
		var val any
		if err := dec.Decode(&val); err != nil {
			return eris.Wrapf(err, "model: read analysis value %s", key)
		}
		if key == PostIDKey {
			s, _ := val.(string)
			out.PostID = s
			continue
		}
		out.Fields = append(out.Fields, FieldValue{Name: key, Value: val})
	}
	*a = out
	return nil
}

// MarshalYAML writes the analysis as an ordered YAML mapping.
func (a PostAnalysis) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, val any) error {
		var v yaml.Node
		if err := v.Encode(val); err != nil {
			return eris.Wrapf(err, "model: encode yaml field %s", key)
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, &v)
		return nil
	}
	if err := add(PostIDKey, a.PostID); err != nil {
		return nil, err
	}
	for _, f := range a.Fields {
		if f.Name == PostIDKey {
			continue
		}
		if err := add(f.Name, f.Value); err != nil {
			return nil, err
		}
	}
	return node, nil
}
