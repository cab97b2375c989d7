package chatbridge

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"
)

// EditInterval is the minimum spacing between two in-stream edits of the
// same message. It keeps the reply responsive while staying under the
// platform's edit rate limit.
const EditInterval = 1700 * time.Millisecond

// ErrFinalFlush is returned when the closing edit of a streamed reply could
// not be delivered.
var ErrFinalFlush = errors.New("chatbridge: final edit failed")

// StreamError reports an upstream failure that ended a stream before any
// fragment arrived.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("chatbridge: stream failed before first fragment: %v", e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Clock supplies the current time to the streaming controller.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// StreamResult describes a finished stream.
type StreamResult struct {
	Text      string
	Fragments int
	Edits     int
	// Upstream is set when the stream ended with an error after at least
	// one fragment. The partial text was still flushed.
	Upstream error
}

// StreamingReply turns incrementally arriving fragments into a series of
// edits of one placeholder message.
type StreamingReply struct {
	Platform  Platform
	Converter Converter
	Clock     Clock
	Logger    *zap.Logger

	// Target is the placeholder being edited. When nil the stream is still
	// drained but no edit is attempted and the final flush fails.
	Target *MessageRef
}

// Run drains fragments, editing Target at most once per EditInterval, then
// performs the final flush with the complete text.
func (r *StreamingReply) Run(ctx context.Context, fragments iter.Seq2[string, error]) (StreamResult, error) {
	clock := r.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := r.logger()

	var (
		buf       strings.Builder
		res       StreamResult
		lastSent  string
		lastFlush = clock.Now()
	)

	for fragment, err := range fragments {
		if err != nil {
			res.Upstream = err
			break
		}
		res.Fragments++
		buf.WriteString(fragment)

		now := clock.Now()
		if now.Sub(lastFlush) < EditInterval {
			continue
		}
		lastFlush = now

		if r.Target == nil {
			continue
		}
		payload := r.convert(buf.String())
		if payload == lastSent {
			continue
		}
		if err := r.Platform.Edit(ctx, *r.Target, payload, ParseMarkdownV2); err != nil {
			if !errors.Is(err, ErrNotModified) {
				logger.Debug("stream edit failed", zap.Int("fragments", res.Fragments), zap.Error(err))
			}
			continue
		}
		lastSent = payload
		res.Edits++
	}

	res.Text = buf.String()
	if res.Fragments == 0 && res.Upstream != nil {
		return res, &StreamError{Err: res.Upstream}
	}
	if res.Upstream != nil {
		logger.Warn("stream ended early, flushing partial reply",
			zap.Int("fragments", res.Fragments), zap.Error(res.Upstream))
	}

	if r.Target == nil {
		return res, fmt.Errorf("%w: no placeholder message", ErrFinalFlush)
	}
	if strings.TrimSpace(res.Text) == "" {
		return res, fmt.Errorf("%w: empty reply", ErrFinalFlush)
	}

	payload := r.convert(res.Text)
	if payload == lastSent {
		return res, nil
	}
	if err := r.Platform.Edit(ctx, *r.Target, payload, ParseMarkdownV2); err != nil {
		if errors.Is(err, ErrNotModified) {
			return res, nil
		}
		logger.Warn("final stream edit failed", zap.Int("fragments", res.Fragments), zap.Error(err))
		return res, fmt.Errorf("%w: %w", ErrFinalFlush, err)
	}
	res.Edits++
	return res, nil
}

func (r *StreamingReply) convert(text string) string {
	if r.Converter == nil {
		return text
	}
	return r.Converter.Convert(text)
}

func (r *StreamingReply) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
