package chatbridge

import (
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternSalvager(t *testing.T) {
	err := errors.New(`finish_reason: SAFETY content { parts { text: "hello\nworld" } role: "model" }`)

	text, ok := PatternSalvager{}.Salvage(err)
	assert.True(t, ok)
	assert.Equal(t, "hello\nworld", text)
}

func TestPatternSalvagerDecodesQuotedText(t *testing.T) {
	want := "say \"hi\"\tthen C:\\tmp\n中文"
	err := errors.New("content { parts { text: " + strconv.Quote(want) + " } } finish_reason: SAFETY")

	text, ok := PatternSalvager{}.Salvage(err)
	assert.True(t, ok)
	assert.Equal(t, want, text)
}

func TestPatternSalvagerUndecodableKeepsNewlines(t *testing.T) {
	err := errors.New(`content { parts { text: "it\'s\nfine" } }`)

	text, ok := PatternSalvager{}.Salvage(err)
	assert.True(t, ok)
	assert.Equal(t, "it\\'s\nfine", text)
}

func TestPatternSalvagerNoMatch(t *testing.T) {
	for _, err := range []error{
		nil,
		errors.New("deadline exceeded"),
		errors.New(`content { parts { text: "" } }`),
	} {
		text, ok := PatternSalvager{}.Salvage(err)
		assert.False(t, ok, "%v", err)
		assert.Empty(t, text)
	}
}

func TestStructuredSalvager(t *testing.T) {
	err := fmt.Errorf("send: %w", &BlockedError{Reason: "SAFETY", Partial: "half an answer"})

	text, ok := StructuredSalvager{}.Salvage(err)
	assert.True(t, ok)
	assert.Equal(t, "half an answer", text)

	_, ok = StructuredSalvager{}.Salvage(&BlockedError{Reason: "SAFETY", Partial: "  "})
	assert.False(t, ok)

	_, ok = StructuredSalvager{}.Salvage(errors.New("plain"))
	assert.False(t, ok)
}

func TestDefaultSalvagerFallsBackToPattern(t *testing.T) {
	err := &BlockedError{
		Reason: "RECITATION",
		Detail: `content { parts { text: "from the dump" } role: "model" } finish_reason: RECITATION`,
	}

	text, ok := DefaultSalvager.Salvage(err)
	assert.True(t, ok)
	assert.Equal(t, "from the dump", text)
}

func TestDefaultSalvagerPrefersStructured(t *testing.T) {
	err := &BlockedError{
		Reason:  "SAFETY",
		Partial: "structured",
		Detail:  `content { parts { text: "pattern" } }`,
	}

	text, ok := DefaultSalvager.Salvage(err)
	assert.True(t, ok)
	assert.Equal(t, "structured", text)
}

func TestBlockedErrorMatchesProviderFailed(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &BlockedError{Reason: "SAFETY"})

	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.True(t, IsBlocked(err))
	assert.False(t, IsBlocked(errors.New("other")))
}
