package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTemplate_SetKeepsFirstPosition(t *testing.T) {
	t.Parallel()

	var tmpl Template
	tmpl.Set("topic_category", json.RawMessage(`{"a":1}`))
	tmpl.Set("user_intent", json.RawMessage(`{"b":1}`))
	tmpl.Set("topic_category", json.RawMessage(`{"c":1}`))

	assert.Equal(t, []string{"topic_category", "user_intent"}, tmpl.Names())
	assert.JSONEq(t, `{"c":1}`, string(tmpl.Fields[0].Schema))
	assert.Equal(t, 2, tmpl.Len())
}

func TestTemplate_Merge(t *testing.T) {
	t.Parallel()

	base := Template{Fields: []TemplateField{{Name: "a", Schema: json.RawMessage(`1`)}}}
	base.Merge(Template{Fields: []TemplateField{
		{Name: "b", Schema: json.RawMessage(`2`)},
		{Name: "a", Schema: json.RawMessage(`3`)},
	}})

	assert.Equal(t, []string{"a", "b"}, base.Names())
	assert.Equal(t, `3`, string(base.Fields[0].Schema))
}

func TestPostAnalysis_MarshalJSONOrder(t *testing.T) {
	t.Parallel()

	a := PostAnalysis{
		PostID: "p1",
		Fields: []FieldValue{
			{Name: "zeta", Value: map[string]any{"x": json.Number("1")}},
			{Name: "alpha", Value: DefaultFieldValue()},
		},
	}

	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `{"post_id":"p1","zeta":{"x":1},"alpha":{}}`, string(data))

	var back PostAnalysis
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "p1", back.PostID)
	require.Len(t, back.Fields, 2)
	assert.Equal(t, "zeta", back.Fields[0].Name)
	assert.Equal(t, "alpha", back.Fields[1].Name)

	v, ok := back.Get("zeta")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"x": json.Number("1")}, v)
	_, ok = back.Get("missing")
	assert.False(t, ok)
}

func TestPostAnalysis_UnmarshalRejectsNonObject(t *testing.T) {
	t.Parallel()

	var a PostAnalysis
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &a))
}

func TestPostAnalysis_MarshalYAMLOrder(t *testing.T) {
	t.Parallel()

	a := PostAnalysis{
		PostID: "p1",
		Fields: []FieldValue{
			{Name: "zeta", Value: "z"},
			{Name: "alpha", Value: "a"},
		},
	}

	data, err := yaml.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, "post_id: p1\nzeta: z\nalpha: a\n", string(data))
}
