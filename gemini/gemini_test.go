package gemini

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/meikuraledutech/chatbridge"
)

type generateCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

type fakeGenerator struct {
	calls []generateCall

	resp   *genai.GenerateContentResponse
	err    error
	chunks []*genai.GenerateContentResponse
	// streamErr is yielded after the chunks when set.
	streamErr error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls = append(f.calls, generateCall{model, contents, config})
	return f.resp, f.err
}

func (f *fakeGenerator) GenerateContentStream(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	f.calls = append(f.calls, generateCall{model, contents, config})
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, c := range f.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield(nil, f.streamErr)
		}
	}
}

func textResponse(text string, reason genai.FinishReason) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      genai.NewContentFromText(text, genai.RoleModel),
			FinishReason: reason,
		}},
	}
}

func testConfig() Config {
	return Config{Model: "flash", ProModel: "pro", MaxTokens: 8192}
}

type memoryLog struct {
	mu      sync.Mutex
	added   []chatbridge.RequestLog
	updates map[string]string
}

func (m *memoryLog) AddRequestLog(_ context.Context, log chatbridge.RequestLog) (*chatbridge.RequestLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.ID = "log-1"
	m.added = append(m.added, log)
	return &log, nil
}

func (m *memoryLog) UpdateRequestLog(_ context.Context, id, _ string, status, failReason, _ string, _ *chatbridge.Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updates == nil {
		m.updates = map[string]string{}
	}
	m.updates[id] = status + "/" + failReason
	return nil
}

func TestGenerationConfig(t *testing.T) {
	cfg := GenerationConfig(2048)

	assert.Equal(t, float32(0.7), *cfg.Temperature)
	assert.Equal(t, float32(1), *cfg.TopP)
	assert.Equal(t, float32(1), *cfg.TopK)
	assert.Equal(t, int32(2048), cfg.MaxOutputTokens)
	require.Len(t, cfg.SafetySettings, 4)
	for _, s := range cfg.SafetySettings {
		assert.Equal(t, genai.HarmBlockThresholdBlockNone, s.Threshold)
	}
}

func TestSendBuildsHistory(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("hi there", genai.FinishReasonStop)}
	p := newProvider(gen, testConfig())

	history := []chatbridge.Turn{
		{Role: chatbridge.RoleUser, Content: "hello"},
		{Role: chatbridge.RoleModel, Content: "hey"},
	}
	res, err := p.Send(context.Background(), chatbridge.VariantRegular, history, "how are you")
	require.NoError(t, err)
	assert.Equal(t, "hi there", res.Content)

	require.Len(t, gen.calls, 1)
	call := gen.calls[0]
	assert.Equal(t, "flash", call.model)
	require.Len(t, call.contents, 3)
	assert.Equal(t, string(genai.RoleUser), call.contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), call.contents[1].Role)
	assert.Equal(t, "how are you", call.contents[2].Parts[0].Text)
}

func TestSendUsesProModel(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("ok", genai.FinishReasonStop)}
	p := newProvider(gen, testConfig())

	_, err := p.Send(context.Background(), chatbridge.VariantPro, nil, "q")
	require.NoError(t, err)
	assert.Equal(t, "pro", gen.calls[0].model)
}

func TestSendEmptyPrompt(t *testing.T) {
	p := newProvider(&fakeGenerator{}, testConfig())

	_, err := p.Send(context.Background(), chatbridge.VariantRegular, nil, "")
	assert.ErrorIs(t, err, chatbridge.ErrEmptyPrompt)
}

func TestSendBlockedCarriesPartial(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("half", genai.FinishReasonSafety)}
	p := newProvider(gen, testConfig())

	_, err := p.Send(context.Background(), chatbridge.VariantRegular, nil, "q")

	var blocked *chatbridge.BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, "half", blocked.Partial)
	assert.Equal(t, string(genai.FinishReasonSafety), blocked.Reason)

	text, ok := chatbridge.PatternSalvager{}.Salvage(errors.New(blocked.Detail))
	assert.True(t, ok)
	assert.Equal(t, "half", text)
}

func TestBlockedDetailSalvagesQuotedText(t *testing.T) {
	partial := "he said \"stop\"\n第二行"
	gen := &fakeGenerator{resp: textResponse(partial, genai.FinishReasonSafety)}
	p := newProvider(gen, testConfig())

	_, err := p.Send(context.Background(), chatbridge.VariantRegular, nil, "q")
	var blocked *chatbridge.BlockedError
	require.ErrorAs(t, err, &blocked)

	text, ok := chatbridge.PatternSalvager{}.Salvage(errors.New(blocked.Detail))
	assert.True(t, ok)
	assert.Equal(t, partial, text)
}

func TestSendPromptBlocked(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
	}}
	p := newProvider(gen, testConfig())

	_, err := p.Send(context.Background(), chatbridge.VariantRegular, nil, "q")
	assert.True(t, chatbridge.IsBlocked(err))
}

func TestSendNoCandidates(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{}}
	p := newProvider(gen, testConfig())

	_, err := p.Send(context.Background(), chatbridge.VariantRegular, nil, "q")
	assert.ErrorIs(t, err, chatbridge.ErrProviderFailed)
	assert.False(t, chatbridge.IsBlocked(err))
}

func TestStreamYieldsFragments(t *testing.T) {
	gen := &fakeGenerator{chunks: []*genai.GenerateContentResponse{
		textResponse("Hel", ""),
		textResponse("lo", genai.FinishReasonStop),
	}}
	p := newProvider(gen, testConfig())

	var got []string
	for frag, err := range p.Stream(context.Background(), chatbridge.VariantPro, nil, "q") {
		require.NoError(t, err)
		got = append(got, frag)
	}
	assert.Equal(t, []string{"Hel", "lo"}, got)
	assert.Equal(t, "pro", gen.calls[0].model)
}

func TestStreamBlockedEndsWithPartial(t *testing.T) {
	gen := &fakeGenerator{chunks: []*genai.GenerateContentResponse{
		textResponse("one ", ""),
		textResponse("two", genai.FinishReasonRecitation),
		textResponse("never", ""),
	}}
	p := newProvider(gen, testConfig())

	var (
		got     []string
		lastErr error
	)
	for frag, err := range p.Stream(context.Background(), chatbridge.VariantRegular, nil, "q") {
		if err != nil {
			lastErr = err
			break
		}
		got = append(got, frag)
	}
	assert.Equal(t, []string{"one ", "two"}, got)

	var blocked *chatbridge.BlockedError
	require.ErrorAs(t, lastErr, &blocked)
	assert.Equal(t, "one two", blocked.Partial)
}

func TestStreamUpstreamError(t *testing.T) {
	cause := errors.New("connection reset")
	gen := &fakeGenerator{streamErr: cause}
	p := newProvider(gen, testConfig())

	var errs []error
	for _, err := range p.Stream(context.Background(), chatbridge.VariantRegular, nil, "q") {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], cause)
}

func TestDescribe(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("a cat", genai.FinishReasonStop)}
	cfg := testConfig()
	cfg.VisionModel = "vision"
	p := newProvider(gen, cfg)

	res, err := p.Describe(context.Background(), chatbridge.Image{Data: []byte{1, 2}, MIMEType: "image/png"}, "what")
	require.NoError(t, err)
	assert.Equal(t, "a cat", res.Content)

	call := gen.calls[0]
	assert.Equal(t, "vision", call.model)
	require.Len(t, call.contents, 1)
	parts := call.contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].InlineData)
	assert.Equal(t, "image/png", parts[0].InlineData.MIMEType)
	assert.Equal(t, "what", parts[1].Text)
}

func TestDescribeRejectsEmptyImage(t *testing.T) {
	p := newProvider(&fakeGenerator{}, testConfig())

	_, err := p.Describe(context.Background(), chatbridge.Image{}, "what")
	assert.ErrorIs(t, err, chatbridge.ErrProviderFailed)
}

func TestVisionModelDefaultsToModel(t *testing.T) {
	p := newProvider(&fakeGenerator{}, Config{Model: "flash"})
	assert.Equal(t, "flash", p.cfg.VisionModel)
	assert.Equal(t, "flash", p.cfg.ProModel)
}

func TestRequestLogRecordsOutcome(t *testing.T) {
	store := &memoryLog{}
	gen := &fakeGenerator{err: context.DeadlineExceeded}
	p := newProvider(gen, testConfig()).WithStore(store)

	ctx := chatbridge.WithSessionID(context.Background(), "sess-1")
	_, err := p.Send(ctx, chatbridge.VariantRegular, nil, "q")
	require.Error(t, err)

	require.Len(t, store.added, 1)
	assert.Equal(t, "sess-1", store.added[0].SessionID)
	assert.Equal(t, "send", store.added[0].Mode)
	assert.Equal(t, chatbridge.StatusFailed+"/"+chatbridge.FailReasonTimeout, store.updates["log-1"])
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, chatbridge.FailReasonBlocked, classifyError(&chatbridge.BlockedError{Reason: "SAFETY"}))
	assert.Equal(t, chatbridge.FailReasonTimeout, classifyError(context.DeadlineExceeded))
	assert.Equal(t, chatbridge.FailReasonNetworkError, classifyError(context.Canceled))
	assert.Equal(t, chatbridge.FailReasonEmpty, classifyError(chatbridge.ErrProviderFailed))
	assert.Equal(t, chatbridge.FailReasonUnknownError, classifyError(errors.New("boom")))
}
