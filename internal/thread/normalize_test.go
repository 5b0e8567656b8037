package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextNormalizer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"null bytes", "he\x00llo\x00", "hello"},
		{"control chars", "a\x07b\x1bc", "abc"},
		{"keeps newlines and tabs", "line1\n\tline2", "line1\n\tline2"},
		{"markdown link", "see [the docs](https://example.com) now", "see the docs now"},
		{"two links", "[a](x) and [b](y)", "a and b"},
		{"brackets without link", "[not a link] (nope)", "[not a link] (nope)"},
		{"trims", "  padded \n", "padded"},
		{"nfc", "café", "café"},
	}

	n := TextNormalizer{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, n.Normalize(tt.in))
		})
	}
}

func TestNopNormalizer(t *testing.T) {
	t.Parallel()
	assert.Equal(t, " [a](b) ", NopNormalizer{}.Normalize(" [a](b) "))
}
