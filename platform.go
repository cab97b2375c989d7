package chatbridge

import (
	"context"
	"errors"
)

// ErrNotModified is returned by Platform.Edit when the new text equals the
// text already shown.
var ErrNotModified = errors.New("chatbridge: message not modified")

// ParseMode selects the markup dialect of outgoing text.
type ParseMode string

const (
	ParsePlain      ParseMode = ""
	ParseMarkdownV2 ParseMode = "MarkdownV2"
)

// Platform is the chat-platform client the handlers talk to.
type Platform interface {
	// Reply sends text as a reply to the request's message.
	Reply(ctx context.Context, req *Request, text string, mode ParseMode) (*MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string, mode ParseMode) error
	Delete(ctx context.Context, ref MessageRef) error
	// Download fetches the binary content of an attachment.
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Converter turns model markdown into the platform's markup dialect.
type Converter interface {
	Convert(markdown string) string
}

// ConverterFunc adapts a plain function to Converter.
type ConverterFunc func(string) string

// Convert implements Converter.
func (f ConverterFunc) Convert(markdown string) string {
	return f(markdown)
}
