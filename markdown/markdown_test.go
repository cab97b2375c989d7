package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"whitespace only", "  \n ", ""},
		{"plain sentence", "Hello world.", `Hello world\.`},
		{"reserved characters", "1+1=2!", `1\+1\=2\!`},
		{"heading level one", "# Title", "📌 *Title*"},
		{"heading level two", "## Sub", "*Sub*"},
		{"bold and italic", "**bold** and _it_", "*bold* and _it_"},
		{"code span keeps underscores", "use `a_b`", "use `a_b`"},
		{"link", "[site](https://example.com)", "🔗 [site](https://example.com)"},
		{"bullet list", "- a\n- b", "• a\n• b"},
		{"ordered list", "1. a\n2. b", "1\\. a\n2\\. b"},
		{"fenced code", "```go\nx := 1\n```", "```go\nx := 1\n```"},
		{"blockquote", "> quote", ">quote"},
		{"paragraphs", "a\n\nb", "a\n\nb"},
		{"strikethrough", "~~gone~~", "~gone~"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Convert(tc.input))
		})
	}
}

func TestConvertBoldInsideHeadingIsNotNested(t *testing.T) {
	assert.Equal(t, "*a b*", Convert("## a **b**"))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `\_\*\[\]\(\)\~\`+"`"+`\>\#\+\-\=\|\{\}\.\!\\`, Escape("_*[]()~`>#+-=|{}.!\\"))
	assert.Equal(t, "plain", Escape("plain"))
}

func TestConverterValue(t *testing.T) {
	assert.Equal(t, `a\.`, Converter.Convert("a."))
}
