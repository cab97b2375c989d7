package chatbridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
)

// Handler processes one routed request. payload is the request text with the
// trigger removed. Handlers report failures to the user themselves and never
// return them.
type Handler interface {
	Handle(ctx context.Context, req *Request, payload string)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, req *Request, payload string)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req *Request, payload string) {
	if f == nil {
		return
	}
	f(ctx, req, payload)
}

// Matcher decides whether a request belongs to a route.
type Matcher interface {
	Match(req *Request) (payload string, ok bool)
}

// MatcherFunc adapts a plain function to Matcher.
type MatcherFunc func(req *Request) (string, bool)

// Match implements Matcher.
func (f MatcherFunc) Match(req *Request) (string, bool) { return f(req) }

// Command matches text whose first token is /name or /name@botname.
func Command(name string) Matcher {
	return MatcherFunc(func(req *Request) (string, bool) {
		return matchCommand(req.Text, name)
	})
}

// Prefix matches text starting with the literal prefix, e.g. "gemini:".
func Prefix(prefix string) Matcher {
	return MatcherFunc(func(req *Request) (string, bool) {
		return matchPrefix(req.Text, prefix)
	})
}

// PhotoCaption matches requests carrying a photo whose caption satisfies one
// of the inner matchers.
func PhotoCaption(inner ...Matcher) Matcher {
	return MatcherFunc(func(req *Request) (string, bool) {
		if len(req.Photos) == 0 || req.Caption == "" {
			return "", false
		}
		captioned := &Request{
			ChatID:    req.ChatID,
			UserID:    req.UserID,
			MessageID: req.MessageID,
			Text:      req.Caption,
		}
		for _, m := range inner {
			if payload, ok := m.Match(captioned); ok {
				return payload, true
			}
		}
		return "", false
	})
}

func matchCommand(text, name string) (string, bool) {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	token, rest := text[1:], ""
	if end := strings.IndexFunc(text, unicode.IsSpace); end >= 0 {
		token, rest = text[1:end], text[end:]
	}
	// Telegram appends the bot name in groups: /gemini@some_bot.
	token, _, _ = strings.Cut(token, "@")
	if token != name {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func matchPrefix(text, prefix string) (string, bool) {
	if !strings.HasPrefix(text, prefix) {
		return "", false
	}
	return strings.TrimSpace(text[len(prefix):]), true
}

// Route binds a matcher to a handler.
type Route struct {
	Name    string
	Matcher Matcher
	Handler Handler
}

// Dispatcher evaluates an ordered table of routes, first match wins.
type Dispatcher struct {
	mu     sync.RWMutex
	routes []Route
	logger *zap.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger}
}

// Register appends a route. Registration order is precedence order.
func (d *Dispatcher) Register(name string, m Matcher, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes = append(d.routes, Route{Name: name, Matcher: m, Handler: h})
}

// Routes returns the registered routes in order.
func (d *Dispatcher) Routes() []Route {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Route, len(d.routes))
	copy(out, d.routes)
	return out
}

// Match returns the first route accepting req and the extracted payload.
func (d *Dispatcher) Match(req *Request) (Route, string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.routes {
		if payload, ok := r.Matcher.Match(req); ok {
			return r, payload, true
		}
	}
	return Route{}, "", false
}

// Dispatch runs the first matching handler and reports whether one matched.
// A panicking handler is logged and contained.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (matched bool) {
	route, payload, ok := d.Match(req)
	if !ok {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				zap.String("route", route.Name),
				zap.Int64("chat_id", req.ChatID),
				zap.Error(fmt.Errorf("%v", r)))
		}
	}()

	d.logger.Debug("dispatching request",
		zap.String("route", route.Name),
		zap.Int64("chat_id", req.ChatID),
		zap.Int64("user_id", req.UserID))
	matched = true
	route.Handler.Handle(ctx, req, payload)
	return matched
}
