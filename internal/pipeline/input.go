package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/thread-annotator/internal/model"
)

// LoadSample reads a {"posts": [...]} sample file.
func LoadSample(path string) ([]model.RawPost, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read sample %s", path)
	}
	posts, err := ParseSample(data)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: sample %s", path)
	}
	return posts, nil
}

// ParseSample decodes a sample document. A document without posts yields
// an empty list. Null comment entries are dropped.
func ParseSample(data []byte) ([]model.RawPost, error) {
	var sample model.Sample
	if err := json.Unmarshal(data, &sample); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse sample")
	}
	if sample.Posts == nil {
		zap.L().Warn("pipeline: sample has no posts")
		return []model.RawPost{}, nil
	}
	for i := range sample.Posts {
		kept := sample.Posts[i].Comments[:0]
		for _, c := range sample.Posts[i].Comments {
			if c != nil {
				kept = append(kept, c)
			}
		}
		sample.Posts[i].Comments = kept
	}
	return sample.Posts, nil
}

// TemplateFormat names a template encoding.
type TemplateFormat string

const (
	FormatJSON TemplateFormat = "json"
	FormatYAML TemplateFormat = "yaml"
)

// FormatFromPath picks YAML for .yaml/.yml files and JSON otherwise.
func FormatFromPath(path string) TemplateFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadTemplate reads a JSON or YAML template file.
func LoadTemplate(path string) (model.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Template{}, eris.Wrapf(err, "pipeline: read template %s", path)
	}
	tmpl, err := ParseTemplate(data, FormatFromPath(path))
	if err != nil {
		return model.Template{}, eris.Wrapf(err, "pipeline: template %s", path)
	}
	return tmpl, nil
}

// ParseTemplate decodes a template. The document is either one mapping of
// field name to schema, or a sequence of mappings merged in order; a field
// redefined later takes the new schema but keeps its first position. A field
// named post_id is rejected since it would collide with the output id.
func ParseTemplate(data []byte, format TemplateFormat) (model.Template, error) {
	var (
		tmpl model.Template
		err  error
	)
	switch format {
	case FormatYAML:
		tmpl, err = parseYAMLTemplate(data)
	case FormatJSON, "":
		tmpl, err = parseJSONTemplate(data)
	default:
		return model.Template{}, eris.Errorf("pipeline: unknown template format %q", format)
	}
	if err != nil {
		return model.Template{}, err
	}
	if tmpl.Has(model.PostIDKey) {
		return model.Template{}, eris.Errorf("pipeline: template field %q is reserved", model.PostIDKey)
	}
	if tmpl.Len() == 0 {
		zap.L().Warn("pipeline: template has no fields")
	}
	return tmpl, nil
}

func parseJSONTemplate(data []byte) (model.Template, error) {
	var tmpl model.Template
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return tmpl, eris.Wrap(err, "pipeline: parse template")
	}
	switch tok {
	case json.Delim('{'):
		if err := readJSONFields(dec, &tmpl); err != nil {
			return tmpl, err
		}
	case json.Delim('['):
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return tmpl, eris.Wrap(err, "pipeline: parse template entry")
			}
			if tok != json.Delim('{') {
				return tmpl, eris.New("pipeline: template list entries must be objects")
			}
			if err := readJSONFields(dec, &tmpl); err != nil {
				return tmpl, err
			}
		}
		if _, err := dec.Token(); err != nil {
			return tmpl, eris.Wrap(err, "pipeline: parse template")
		}
	default:
		return tmpl, eris.New("pipeline: template must be an object or a list of objects")
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return tmpl, eris.New("pipeline: trailing data after template")
	}
	return tmpl, nil
}

// readJSONFields reads name/schema pairs up to and including the closing
// brace of the current object.
func readJSONFields(dec *json.Decoder, tmpl *model.Template) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "pipeline: parse template field name")
		}
		name, _ := tok.(string)
		var schema json.RawMessage
		if err := dec.Decode(&schema); err != nil {
			return eris.Wrapf(err, "pipeline: parse schema of field %s", name)
		}
		tmpl.Set(name, model.FieldSchema(schema))
	}
	if _, err := dec.Token(); err != nil {
		return eris.Wrap(err, "pipeline: parse template")
	}
	return nil
}

func parseYAMLTemplate(data []byte) (model.Template, error) {
	var tmpl model.Template
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return tmpl, eris.Wrap(err, "pipeline: parse template")
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return tmpl, nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.MappingNode:
		if err := readYAMLFields(root, &tmpl); err != nil {
			return tmpl, err
		}
	case yaml.SequenceNode:
		for _, entry := range root.Content {
			if entry.Kind != yaml.MappingNode {
				return tmpl, eris.New("pipeline: template list entries must be mappings")
			}
			if err := readYAMLFields(entry, &tmpl); err != nil {
				return tmpl, err
			}
		}
	default:
		return tmpl, eris.New("pipeline: template must be a mapping or a list of mappings")
	}
	return tmpl, nil
}

func readYAMLFields(m *yaml.Node, tmpl *model.Template) error {
	for i := 0; i+1 < len(m.Content); i += 2 {
		name := m.Content[i].Value
		schema, err := nodeJSON(m.Content[i+1])
		if err != nil {
			return eris.Wrapf(err, "pipeline: convert schema of field %s", name)
		}
		tmpl.Set(name, schema)
	}
	return nil
}

// nodeJSON converts a YAML node to JSON, keeping mapping key order.
func nodeJSON(n *yaml.Node) (json.RawMessage, error) {
	var buf bytes.Buffer
	switch n.Kind {
	case yaml.AliasNode:
		return nodeJSON(n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return nil, err
			}
			val, err := nodeJSON(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			val, err := nodeJSON(item)
			if err != nil {
				return nil, err
			}
			buf.Write(val)
		}
		buf.WriteByte(']')
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, eris.Wrap(err, "pipeline: decode scalar")
		}
		return json.Marshal(v)
	default:
		return nil, eris.Errorf("pipeline: unsupported yaml node kind %d", n.Kind)
	}
	return buf.Bytes(), nil
}
