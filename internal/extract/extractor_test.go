package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristic_Extract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"fenced json", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fenced bare", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fence without close", "```json\n{\"a\": 1}", `{"a": 1}`},
		{"leading prose", "Sure! Here is the JSON: {\"a\": 1}", `{"a": 1}`},
		{"trailing prose", "{\"a\": {\"b\": 2}}\nHope this helps.", `{"a": {"b": 2}}`},
		{"surrounding whitespace", "  \n{\"a\":1}\n  ", `{"a":1}`},
		{"no braces", "no json here", "no json here"},
		{"close before open", "} nope {", "} nope {"},
		{"fenced no braces", "```\nplain\n```", "plain"},
		{"array untouched", "[1, 2]", "[1, 2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Heuristic{}.Extract(tt.in))
		})
	}
}

func TestHeuristic_StrayBracesMislead(t *testing.T) {
	t.Parallel()

	got := Heuristic{}.Extract(`{"a": 1} and also {oops}`)
	assert.Equal(t, `{"a": 1} and also {oops}`, got)
	assert.False(t, Validate(got).Valid)
}

func TestStrict_Extract(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "```json\n{}\n```", Strict{}.Extract("  ```json\n{}\n```  "))
}

func TestFunc_Extract(t *testing.T) {
	t.Parallel()
	var e Extractor = Func(strings.ToUpper)
	assert.Equal(t, "ABC", e.Extract("abc"))
}

func TestNew(t *testing.T) {
	t.Parallel()
	assert.IsType(t, Strict{}, New("strict"))
	assert.IsType(t, Strict{}, New(" STRICT "))
	assert.IsType(t, Heuristic{}, New("heuristic"))
	assert.IsType(t, Heuristic{}, New(""))
}
