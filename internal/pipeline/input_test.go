package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSample(t *testing.T) {
	posts, err := ParseSample([]byte(`{"posts":[
		{"post_id":"p1","title":"T","comments":[{"comment_id":"c1","parent_id":"t3_p1","body":"hi"},null]},
		{"title":"no id","comments":[]}
	]}`))
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "p1", posts[0].PostID)
	require.Len(t, posts[0].Comments, 1)
	assert.Equal(t, "c1", posts[0].Comments[0].CommentID)
	assert.Empty(t, posts[1].PostID)
}

func TestParseSample_NoPosts(t *testing.T) {
	posts, err := ParseSample([]byte(`{"other":1}`))
	require.NoError(t, err)
	assert.NotNil(t, posts)
	assert.Empty(t, posts)
}

func TestParseSample_Invalid(t *testing.T) {
	_, err := ParseSample([]byte(`{"posts":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: parse sample")
}

func TestLoadSample_Missing(t *testing.T) {
	_, err := LoadSample(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: read sample")
}

func TestParseTemplate_JSONObjectKeepsOrder(t *testing.T) {
	tmpl, err := ParseTemplate([]byte(`{"zeta":{"b":1,"a":2},"alpha":{},"mid":[1,2]}`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, tmpl.Names())
	assert.Equal(t, `{"b":1,"a":2}`, string(tmpl.Fields[0].Schema))
}

func TestParseTemplate_JSONListMerges(t *testing.T) {
	tmpl, err := ParseTemplate([]byte(`[{"a":{"v":1}},{"b":{}},{"a":{"v":2}}]`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tmpl.Names())
	assert.JSONEq(t, `{"v":2}`, string(tmpl.Fields[0].Schema))
}

func TestParseTemplate_RejectsPostIDField(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format TemplateFormat
	}{
		{"json object", `{"tone":{},"post_id":{}}`, FormatJSON},
		{"json list", `[{"tone":{}},{"post_id":{"type":"string"}}]`, FormatJSON},
		{"yaml", "post_id:\n  type: string\n", FormatYAML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate([]byte(tt.data), tt.format)
			require.Error(t, err)
			assert.Contains(t, err.Error(), `template field "post_id" is reserved`)
		})
	}
}

func TestParseTemplate_JSONErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"scalar", `"x"`, "must be an object or a list of objects"},
		{"list of scalars", `[1]`, "list entries must be objects"},
		{"trailing", `{"a":{}} {}`, "trailing data"},
		{"truncated", `{"a":`, "pipeline: parse schema of field a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate([]byte(tt.doc), FormatJSON)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseTemplate_YAML(t *testing.T) {
	doc := `
sentiment:
  score: number
  label: string
topics:
  - string
`
	tmpl, err := ParseTemplate([]byte(doc), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, []string{"sentiment", "topics"}, tmpl.Names())
	assert.Equal(t, `{"score":"number","label":"string"}`, string(tmpl.Fields[0].Schema))
	assert.Equal(t, `["string"]`, string(tmpl.Fields[1].Schema))
}

func TestParseTemplate_YAMLList(t *testing.T) {
	doc := `
- a: {n: 1}
- b: {}
- a: {n: 2}
`
	tmpl, err := ParseTemplate([]byte(doc), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tmpl.Names())
	assert.Equal(t, `{"n":2}`, string(tmpl.Fields[0].Schema))
}

func TestParseTemplate_YAMLScalarRoot(t *testing.T) {
	_, err := ParseTemplate([]byte(`hello`), FormatYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a mapping")
}

func TestParseTemplate_UnknownFormat(t *testing.T) {
	_, err := ParseTemplate([]byte(`{}`), TemplateFormat("toml"))
	require.Error(t, err)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFromPath("t.yaml"))
	assert.Equal(t, FormatYAML, FormatFromPath("T.YML"))
	assert.Equal(t, FormatJSON, FormatFromPath("template.json"))
	assert.Equal(t, FormatJSON, FormatFromPath("template"))
}

func TestLoadTemplate_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.yml")
	require.NoError(t, os.WriteFile(path, []byte("b: {}\na: {}\n"), 0o644))

	tmpl, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, tmpl.Names())
}
