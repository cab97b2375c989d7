package chatbridge

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MaxHistory is the number of turns kept before a new request is sent:
// five request/response exchanges.
const MaxHistory = 10

// Session is one ongoing conversation with the model.
//
// History accessors are not synchronized on their own. A handler must hold
// the session with Lock for the whole request.
type Session struct {
	ID        string
	Key       string
	Variant   Variant
	CreatedAt time.Time

	mu      sync.Mutex
	history []Turn
}

// Lock gives the caller exclusive use of the session.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// History returns a copy of the current turns, oldest first.
func (s *Session) History() []Turn {
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of turns in the history.
func (s *Session) Len() int { return len(s.history) }

// Append records turns after the existing history.
func (s *Session) Append(turns ...Turn) {
	s.history = append(s.history, turns...)
}

// Reset empties the history. The session itself stays in the store.
func (s *Session) Reset() {
	s.history = nil
}

// Trim enforces MaxHistory and reports how many turns were dropped.
func (s *Session) Trim() int {
	before := len(s.history)
	s.history = TrimHistory(s.history, MaxHistory)
	return before - len(s.history)
}

// TrimHistory drops the oldest request/response pair until at most max
// turns remain. A pair is never split.
func TrimHistory(history []Turn, max int) []Turn {
	for len(history) > max && len(history) >= 2 {
		history = history[2:]
	}
	return history
}

// KeyFamily selects how a session key is composed.
type KeyFamily int

const (
	// PerChatCommand isolates sessions per chat, user and command.
	PerChatCommand KeyFamily = iota
	// PerUser shares one session across chats and commands for a user.
	PerUser
)

func (f KeyFamily) String() string {
	switch f {
	case PerChatCommand:
		return "per-chat-command"
	case PerUser:
		return "per-user"
	default:
		return fmt.Sprintf("KeyFamily(%d)", int(f))
	}
}

// SessionKey derives the store key for req under the given family.
// command is the handler name, not the trigger, so aliases of one command
// share a key.
func SessionKey(family KeyFamily, req *Request, command string) string {
	if family == PerUser {
		return strconv.FormatInt(req.UserID, 10)
	}
	return fmt.Sprintf("%d-%d-%s", req.ChatID, req.UserID, command)
}

type sessionIDKey struct{}

// WithSessionID attaches a session ID to ctx for request logging.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionIDFrom returns the session ID attached by WithSessionID.
func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}
