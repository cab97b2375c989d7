// Package gemini implements chatbridge.Provider on the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/meikuraledutech/chatbridge"
)

// Config selects models and limits for the provider.
type Config struct {
	APIKey      string
	Model       string
	ProModel    string
	VisionModel string
	MaxTokens   int
	Timeout     time.Duration
}

// generator is the slice of the SDK the provider uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

type clientModels struct {
	client *genai.Client
}

func (c clientModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return c.client.Models.GenerateContent(ctx, model, contents, config)
}

func (c clientModels) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	return c.client.Models.GenerateContentStream(ctx, model, contents, config)
}

// GeminiProvider implements chatbridge.Provider using the Gemini API.
type GeminiProvider struct {
	models generator
	cfg    Config
	gen    *genai.GenerateContentConfig
	store  chatbridge.RequestLogger
	logger *zap.Logger
}

// New creates a GeminiProvider backed by a Gemini API client.
func New(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("chatbridge: gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("chatbridge: create gemini client: %w", err)
	}
	return newProvider(clientModels{client: client}, cfg), nil
}

func newProvider(models generator, cfg Config) *GeminiProvider {
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.ProModel == "" {
		cfg.ProModel = cfg.Model
	}
	return &GeminiProvider{
		models: models,
		cfg:    cfg,
		gen:    GenerationConfig(cfg.MaxTokens),
		logger: zap.NewNop(),
	}
}

// WithStore configures request logging for this provider.
func (g *GeminiProvider) WithStore(store chatbridge.RequestLogger) *GeminiProvider {
	g.store = store
	return g
}

// WithLogger sets the logger used for request-log failures.
func (g *GeminiProvider) WithLogger(logger *zap.Logger) *GeminiProvider {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// GenerationConfig returns the fixed sampling parameters and the most
// permissive safety threshold for every harm category.
func GenerationConfig(maxTokens int) *genai.GenerateContentConfig {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	safety := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		safety = append(safety, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockNone,
		})
	}

	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.7),
		TopP:            genai.Ptr[float32](1),
		TopK:            genai.Ptr[float32](1),
		MaxOutputTokens: int32(maxTokens),
		SafetySettings:  safety,
	}
}

// Send calls generateContent with the session history followed by prompt.
func (g *GeminiProvider) Send(ctx context.Context, variant chatbridge.Variant, history []chatbridge.Turn, prompt string) (*chatbridge.Result, error) {
	if prompt == "" {
		return nil, chatbridge.ErrEmptyPrompt
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	model := g.model(variant)
	logID := g.startLog(ctx, model, "send", prompt)

	resp, err := g.models.GenerateContent(ctx, model, buildContents(history, prompt), g.gen)
	if err != nil {
		err = fmt.Errorf("chatbridge: generate content: %w", err)
		g.finishLog(ctx, logID, "", err, nil)
		return nil, err
	}

	result, err := parseResponse(resp)
	if err != nil {
		g.finishLog(ctx, logID, partialOf(err), err, usageOf(resp))
		return nil, err
	}
	g.finishLog(ctx, logID, result.Content, nil, &result.Usage)
	return result, nil
}

// Stream calls streamGenerateContent and yields text fragments. A blocked
// chunk ends the sequence with a BlockedError carrying the text so far.
func (g *GeminiProvider) Stream(ctx context.Context, variant chatbridge.Variant, history []chatbridge.Turn, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if prompt == "" {
			yield("", chatbridge.ErrEmptyPrompt)
			return
		}
		ctx, cancel := g.withTimeout(ctx)
		defer cancel()

		model := g.model(variant)
		logID := g.startLog(ctx, model, "stream", prompt)

		var (
			buf   strings.Builder
			usage *chatbridge.Usage
		)
		for resp, err := range g.models.GenerateContentStream(ctx, model, buildContents(history, prompt), g.gen) {
			if err != nil {
				err = fmt.Errorf("chatbridge: stream content: %w", err)
				g.finishLog(ctx, logID, buf.String(), err, usage)
				yield("", err)
				return
			}
			if u := usageOf(resp); u != nil {
				usage = u
			}

			text, blocked := chunkText(resp)
			if text != "" {
				buf.WriteString(text)
				if !yield(text, nil) {
					g.finishLog(ctx, logID, buf.String(), errors.New("consumer stopped"), usage)
					return
				}
			}
			if blocked != nil {
				blocked.Partial = buf.String()
				g.finishLog(ctx, logID, buf.String(), blocked, usage)
				yield("", blocked)
				return
			}
		}
		g.finishLog(ctx, logID, buf.String(), nil, usage)
	}
}

// Describe sends one image and a text prompt, without history.
func (g *GeminiProvider) Describe(ctx context.Context, image chatbridge.Image, prompt string) (*chatbridge.Result, error) {
	if prompt == "" {
		return nil, chatbridge.ErrEmptyPrompt
	}
	if len(image.Data) == 0 {
		return nil, fmt.Errorf("%w: empty image", chatbridge.ErrProviderFailed)
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	model := g.cfg.VisionModel
	logID := g.startLog(ctx, model, "describe", prompt)

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image.Data, image.MIMEType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	resp, err := g.models.GenerateContent(ctx, model, contents, g.gen)
	if err != nil {
		err = fmt.Errorf("chatbridge: describe image: %w", err)
		g.finishLog(ctx, logID, "", err, nil)
		return nil, err
	}

	result, err := parseResponse(resp)
	if err != nil {
		g.finishLog(ctx, logID, partialOf(err), err, usageOf(resp))
		return nil, err
	}
	g.finishLog(ctx, logID, result.Content, nil, &result.Usage)
	return result, nil
}

func (g *GeminiProvider) model(variant chatbridge.Variant) string {
	if variant == chatbridge.VariantPro {
		return g.cfg.ProModel
	}
	return g.cfg.Model
}

func (g *GeminiProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.cfg.Timeout)
}

func buildContents(history []chatbridge.Turn, prompt string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		role := genai.RoleUser
		if turn.Role == chatbridge.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	return append(contents, genai.NewContentFromText(prompt, genai.RoleUser))
}

func parseResponse(resp *genai.GenerateContentResponse) (*chatbridge.Result, error) {
	text, blocked := chunkText(resp)
	if blocked != nil {
		blocked.Partial = text
		return nil, blocked
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: empty response from Gemini", chatbridge.ErrProviderFailed)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: no text in Gemini response (finish reason %s)", chatbridge.ErrProviderFailed, resp.Candidates[0].FinishReason)
	}

	result := &chatbridge.Result{Content: text}
	if u := usageOf(resp); u != nil {
		result.Usage = *u
	}
	return result, nil
}

// chunkText returns the visible text of the first candidate and, when the
// prompt or the candidate was stopped for a reason other than a normal end,
// a BlockedError describing it.
func chunkText(resp *genai.GenerateContentResponse) (string, *chatbridge.BlockedError) {
	if resp == nil {
		return "", nil
	}
	if pf := resp.PromptFeedback; pf != nil && pf.BlockReason != "" && pf.BlockReason != genai.BlockedReasonUnspecified {
		return "", &chatbridge.BlockedError{
			Reason: string(pf.BlockReason),
			Detail: pf.BlockReasonMessage,
		}
	}
	if len(resp.Candidates) == 0 {
		return "", nil
	}

	cand := resp.Candidates[0]
	var sb strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}
	text := sb.String()

	switch cand.FinishReason {
	case "", genai.FinishReasonUnspecified, genai.FinishReasonStop, genai.FinishReasonMaxTokens:
		return text, nil
	}
	return text, &chatbridge.BlockedError{
		Reason: string(cand.FinishReason),
		Detail: describeCandidate(text, cand.FinishReason),
	}
}

// describeCandidate renders a stopped candidate in protobuf text form, the
// shape the pattern salvager recognises.
func describeCandidate(text string, reason genai.FinishReason) string {
	if text == "" {
		return "finish_reason: " + string(reason)
	}
	quoted := strconv.Quote(text)
	return fmt.Sprintf("content { parts { text: %s } role: \"model\" } finish_reason: %s", quoted, reason)
}

func usageOf(resp *genai.GenerateContentResponse) *chatbridge.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	m := resp.UsageMetadata
	return &chatbridge.Usage{
		PromptTokens:   int(m.PromptTokenCount),
		ResponseTokens: int(m.CandidatesTokenCount),
		TotalTokens:    int(m.TotalTokenCount),
		ThoughtTokens:  int(m.ThoughtsTokenCount),
	}
}

func partialOf(err error) string {
	var blocked *chatbridge.BlockedError
	if errors.As(err, &blocked) {
		return blocked.Partial
	}
	return ""
}

func (g *GeminiProvider) startLog(ctx context.Context, model, mode, prompt string) string {
	if g.store == nil {
		return ""
	}
	log, err := g.store.AddRequestLog(ctx, chatbridge.RequestLog{
		SessionID:   chatbridge.SessionIDFrom(ctx),
		Model:       model,
		Mode:        mode,
		Prompt:      prompt,
		FinalStatus: chatbridge.StatusPending,
	})
	if err != nil {
		g.logger.Warn("could not add request log", zap.Error(err))
		return ""
	}
	return log.ID
}

func (g *GeminiProvider) finishLog(ctx context.Context, logID, response string, callErr error, usage *chatbridge.Usage) {
	if g.store == nil || logID == "" {
		return
	}

	status, failReason, errMsg := chatbridge.StatusSuccess, "", ""
	if callErr != nil {
		status, failReason, errMsg = chatbridge.StatusFailed, classifyError(callErr), callErr.Error()
		if chatbridge.IsBlocked(callErr) {
			status = chatbridge.StatusBlocked
		}
	}

	// The call context may already be past its deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := g.store.UpdateRequestLog(ctx, logID, response, status, failReason, errMsg, usage); err != nil {
		g.logger.Warn("could not update request log", zap.String("log_id", logID), zap.Error(err))
	}
}

// classifyError categorizes an error to determine the fail reason.
func classifyError(err error) string {
	if chatbridge.IsBlocked(err) {
		return chatbridge.FailReasonBlocked
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return chatbridge.FailReasonTimeout
	}

	// Check for net errors (network/timeout)
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return chatbridge.FailReasonTimeout
		}
		return chatbridge.FailReasonNetworkError
	}

	if errors.Is(err, context.Canceled) {
		return chatbridge.FailReasonNetworkError
	}
	if errors.Is(err, chatbridge.ErrProviderFailed) {
		return chatbridge.FailReasonEmpty
	}

	// Default to unknown error
	return chatbridge.FailReasonUnknownError
}

// Ensure GeminiProvider implements chatbridge.Provider at compile time.
var _ chatbridge.Provider = (*GeminiProvider)(nil)
