package chatbridge

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"
)

type sentMessage struct {
	Ref  MessageRef
	Text string
	Mode ParseMode
}

type fakePlatform struct {
	mu      sync.Mutex
	nextID  int
	replies []sentMessage
	edits   []sentMessage
	deletes []MessageRef
	files   map[string][]byte

	// editErr, when set, decides the result of every Edit.
	editErr func(text string, mode ParseMode) error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{nextID: 100, files: map[string][]byte{}}
}

func (p *fakePlatform) Reply(_ context.Context, req *Request, text string, mode ParseMode) (*MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	ref := MessageRef{ChatID: req.ChatID, MessageID: p.nextID}
	p.replies = append(p.replies, sentMessage{Ref: ref, Text: text, Mode: mode})
	return &ref, nil
}

func (p *fakePlatform) Edit(_ context.Context, ref MessageRef, text string, mode ParseMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.editErr != nil {
		if err := p.editErr(text, mode); err != nil {
			return err
		}
	}
	p.edits = append(p.edits, sentMessage{Ref: ref, Text: text, Mode: mode})
	return nil
}

func (p *fakePlatform) Delete(_ context.Context, ref MessageRef) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deletes = append(p.deletes, ref)
	return nil
}

func (p *fakePlatform) Download(_ context.Context, fileID string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.files[fileID]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

func (p *fakePlatform) replyTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.replies))
	for _, r := range p.replies {
		out = append(out, r.Text)
	}
	return out
}

func (p *fakePlatform) editTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.edits))
	for _, e := range p.edits {
		out = append(out, e.Text)
	}
	return out
}

type providerCall struct {
	Variant Variant
	History []Turn
	Prompt  string
}

type fakeProvider struct {
	mu    sync.Mutex
	calls []providerCall

	send     func(call providerCall) (*Result, error)
	stream   func(call providerCall) iter.Seq2[string, error]
	describe func(image Image, prompt string) (*Result, error)
}

func (f *fakeProvider) record(v Variant, history []Turn, prompt string) providerCall {
	call := providerCall{Variant: v, History: history, Prompt: prompt}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return call
}

func (f *fakeProvider) Send(_ context.Context, v Variant, history []Turn, prompt string) (*Result, error) {
	call := f.record(v, history, prompt)
	if f.send == nil {
		return &Result{Content: "answer to " + prompt}, nil
	}
	return f.send(call)
}

func (f *fakeProvider) Stream(_ context.Context, v Variant, history []Turn, prompt string) iter.Seq2[string, error] {
	call := f.record(v, history, prompt)
	if f.stream == nil {
		return fragmentsOf("answer to " + prompt)
	}
	return f.stream(call)
}

func (f *fakeProvider) Describe(_ context.Context, image Image, prompt string) (*Result, error) {
	f.record(VariantRegular, nil, prompt)
	if f.describe == nil {
		return &Result{Content: "an image"}, nil
	}
	return f.describe(image, prompt)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeProvider) lastCall() providerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// fakeClock only moves when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func fragmentsOf(parts ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	}
}

// timedFragments advances clock by step before yielding each fragment and
// ends with err when it is not nil.
func timedFragments(clock *fakeClock, step time.Duration, err error, parts ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range parts {
			clock.Advance(step)
			if !yield(p, nil) {
				return
			}
		}
		if err != nil {
			yield("", err)
		}
	}
}
