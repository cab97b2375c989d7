package chatbridge

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

var (
	ErrEmptyPrompt    = errors.New("chatbridge: prompt is empty")
	ErrProviderFailed = errors.New("chatbridge: provider error")
)

// Provider defines the contract for generative model backends.
type Provider interface {
	// Send submits prompt after history and returns the complete reply.
	Send(ctx context.Context, variant Variant, history []Turn, prompt string) (*Result, error)

	// Stream submits prompt after history and yields text fragments as
	// they arrive. A non-nil error ends the sequence.
	Stream(ctx context.Context, variant Variant, history []Turn, prompt string) iter.Seq2[string, error]

	// Describe runs a single multimodal call with no history.
	Describe(ctx context.Context, image Image, prompt string) (*Result, error)
}

// BlockedError reports that the model refused or stopped generation.
// Partial carries whatever text was produced before the stop, and Detail
// is the raw candidate dump for logging.
type BlockedError struct {
	Reason  string
	Partial string
	Detail  string
}

func (e *BlockedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("chatbridge: generation blocked (%s): %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("chatbridge: generation blocked (%s)", e.Reason)
}

// Is reports ErrProviderFailed so callers can match broadly.
func (e *BlockedError) Is(target error) bool {
	return target == ErrProviderFailed
}

// IsBlocked reports whether err carries a BlockedError.
func IsBlocked(err error) bool {
	var blocked *BlockedError
	return errors.As(err, &blocked)
}
