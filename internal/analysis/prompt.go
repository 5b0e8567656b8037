package analysis

import (
	"bytes"
	"encoding/json"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/sells-group/thread-annotator/internal/model"
)

// DefaultPromptTemplate is the instruction sent for every field. It receives
// .Field, .Schema and .Data; Schema and Data are indented JSON.
const DefaultPromptTemplate = `You are a forensic data analyst.
TASK: Analyze the provided Reddit post and comments to populate the '{{.Field}}' field.
The output MUST be a valid JSON object strictly matching the schema for '{{.Field}}'.

CRITICAL DEFINITIONS (NON-NEGOTIABLE):
1. topic_category:
   - MUST describe the specific subject of THIS post (e.g., "Speculation about robotic assistance in pregnancy").
   - NO generic labels (e.g., "Science & Technology", "Discussion").
   - Should read like a precise headline.
2. user_intent:
   - MUST capture the psychological and communicative intent (e.g., "Testing social acceptance of a taboo idea").
   - NO generic intents (e.g., "Asking a question").
   - MUST include how commenters are engaging (e.g., "normalization", "outrage").

QUALITY RULES:
- Be specific to THIS post.
- Be forensic, psychological, and context-aware.
- Comments are NOT optional; they must influence the interpretation, above all for 'user_intent'.
- Assume the reader is intelligent; skip obvious facts.

SCHEMA:
{{.Schema}}

DATA:
{{.Data}}

INSTRUCTIONS:
1. Output ONLY the JSON object.
2. NO markdown formatting.
3. NO explanations.
`

// Prompt renders field prompts from a text/template.
type Prompt struct {
	tmpl *template.Template
}

// NewPrompt parses text. An empty text uses DefaultPromptTemplate.
func NewPrompt(text string) (*Prompt, error) {
	if text == "" {
		text = DefaultPromptTemplate
	}
	tmpl, err := template.New("field").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: parse prompt template")
	}
	return &Prompt{tmpl: tmpl}, nil
}

// Render builds the prompt for one field of one chunk.
func (p *Prompt) Render(field model.TemplateField, chunk model.Chunk) (string, error) {
	schema, err := indentRaw(field.Schema)
	if err != nil {
		return "", eris.Wrapf(err, "analysis: render schema for %s", field.Name)
	}
	data, err := indentValue(chunk)
	if err != nil {
		return "", eris.Wrapf(err, "analysis: render chunk for %s", field.Name)
	}

	var buf bytes.Buffer
	err = p.tmpl.Execute(&buf, struct {
		Field  string
		Schema string
		Data   string
	}{field.Name, schema, data})
	if err != nil {
		return "", eris.Wrap(err, "analysis: execute prompt template")
	}
	return buf.String(), nil
}

// indentRaw re-indents a JSON document by two spaces. A schema that is not
// valid JSON is rendered verbatim.
func indentRaw(raw json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "{}", nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw), nil
	}
	return buf.String(), nil
}

func indentValue(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
