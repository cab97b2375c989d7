package chatbridge

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// User-visible replies. Internal error text is only ever logged.
const (
	MsgCleared          = "Your Gemini conversation history has been cleared."
	MsgThinking         = "Gemini is thinking..."
	MsgEmptyQuestion    = "Please put your question after the command."
	MsgVisionPending    = "Generating Google Gemini vision answer, please wait."
	MsgTimeout          = "Gemini answer timed out, the conversation has been reset. Please try again."
	MsgGenerationFailed = "Google Gemini encountered an error while generating an answer. Please check the log."

	// DefaultVisionPrompt is used when a photo caption holds only the trigger.
	DefaultVisionPrompt = "Describe this image."

	clearDirective = "clear"
)

// Deps are the collaborators shared by all handlers.
type Deps struct {
	Platform  Platform
	Provider  Provider
	Converter Converter
	Salvager  Salvager
	Clock     Clock
	Logger    *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d Deps) salvager() Salvager {
	if d.Salvager == nil {
		return DefaultSalvager
	}
	return d.Salvager
}

func (d Deps) convert(text string) string {
	if d.Converter == nil {
		return text
	}
	return d.Converter.Convert(text)
}

// ConversationHandler answers free-form questions within a session.
// Template, when set, is prepended to every input.
type ConversationHandler struct {
	Name        string
	Title       string
	Family      KeyFamily
	Variant     Variant
	Template    string
	Stream      bool
	Placeholder bool
	Store       Store
	Deps
}

// Handle implements Handler.
func (h *ConversationHandler) Handle(ctx context.Context, req *Request, payload string) {
	key := SessionKey(h.Family, req, h.Name)
	logger := h.logger().With(zap.String("handler", h.Name), zap.String("session_key", key))

	sess := h.Store.GetOrCreate(key, h.Variant)
	sess.Lock()
	defer sess.Unlock()

	input := strings.TrimSpace(payload)
	if input == clearDirective {
		sess.Reset()
		h.send(ctx, req, MsgCleared, logger)
		logger.Info("session cleared")
		return
	}
	if input == "" {
		h.send(ctx, req, MsgEmptyQuestion, logger)
		return
	}

	var ref *MessageRef
	if h.Placeholder || h.Stream {
		ref = h.placeholder(ctx, req, logger)
	}

	if dropped := sess.Trim(); dropped > 0 {
		logger.Debug("history trimmed", zap.Int("dropped", dropped), zap.Int("kept", sess.Len()))
	}

	prompt := input
	if h.Template != "" {
		prompt = h.Template + "\n" + input
	}
	ctx = WithSessionID(ctx, sess.ID)

	if h.Stream {
		h.streamed(ctx, req, sess, ref, prompt, logger)
		return
	}
	h.singleShot(ctx, req, sess, ref, prompt, logger)
}

func (h *ConversationHandler) singleShot(ctx context.Context, req *Request, sess *Session, ref *MessageRef, prompt string, logger *zap.Logger) {
	res, err := h.Provider.Send(ctx, sess.Variant, sess.History(), prompt)
	if err != nil {
		h.salvageOrFail(ctx, req, sess, ref, err, logger)
		return
	}

	sess.Append(Turn{Role: RoleUser, Content: prompt}, Turn{Role: RoleModel, Content: res.Content})
	h.answer(ctx, req, ref, res.Content, logger)
}

func (h *ConversationHandler) streamed(ctx context.Context, req *Request, sess *Session, ref *MessageRef, prompt string, logger *zap.Logger) {
	reply := &StreamingReply{
		Platform:  h.Platform,
		Converter: h.Converter,
		Clock:     h.Clock,
		Logger:    logger,
		Target:    ref,
	}
	res, err := reply.Run(ctx, h.Provider.Stream(ctx, sess.Variant, sess.History(), prompt))

	var streamErr *StreamError
	switch {
	case err == nil && res.Upstream == nil:
		sess.Append(Turn{Role: RoleUser, Content: prompt}, Turn{Role: RoleModel, Content: res.Text})
		logger.Debug("streamed reply finalized", zap.Int("fragments", res.Fragments), zap.Int("edits", res.Edits))
	case err == nil:
		// The partial text is on screen but the exchange is incomplete.
		logger.Warn("partial streamed reply kept out of history", zap.Error(res.Upstream))
	case errors.As(err, &streamErr):
		// Nothing reached the placeholder, so it is left alone and the
		// outcome goes out as a new message.
		if text, ok := h.salvager().Salvage(streamErr.Err); ok {
			logger.Warn("salvaged partial reply", zap.Error(streamErr.Err))
			h.answer(ctx, req, nil, text, logger)
			return
		}
		logger.Error("stream failed before first fragment", zap.Error(streamErr.Err))
		sess.Reset()
		h.send(ctx, req, MsgTimeout, logger)
	default:
		logger.Error("streamed reply could not be finalized", zap.Error(err))
		sess.Reset()
		h.fail(ctx, req, ref, MsgTimeout, logger)
	}
}

// salvageOrFail applies the salvage policy to a failed model call.
func (h *ConversationHandler) salvageOrFail(ctx context.Context, req *Request, sess *Session, ref *MessageRef, err error, logger *zap.Logger) {
	if text, ok := h.salvager().Salvage(err); ok {
		logger.Warn("salvaged partial reply", zap.Error(err))
		h.answer(ctx, req, ref, text, logger)
		return
	}
	if IsBlocked(err) {
		logger.Error("no meaningful text could be extracted from blocked generation", zap.Error(err))
		h.fail(ctx, req, ref, MsgGenerationFailed, logger)
		return
	}
	logger.Error("model call failed", zap.Error(err))
	sess.Reset()
	h.fail(ctx, req, ref, MsgTimeout, logger)
}

func (h *ConversationHandler) placeholder(ctx context.Context, req *Request, logger *zap.Logger) *MessageRef {
	ref, err := h.Platform.Reply(ctx, req, MsgThinking, ParsePlain)
	if err != nil {
		logger.Warn("could not send placeholder", zap.Error(err))
		return nil
	}
	return ref
}

// answer shows text as markdown, falling back to plain text when the
// platform rejects the markup.
func (h *ConversationHandler) answer(ctx context.Context, req *Request, ref *MessageRef, text string, logger *zap.Logger) {
	text = strings.TrimSpace(text)
	title := h.Title
	if title == "" {
		title = "Gemini"
	}
	markdown := h.convert("**" + title + " answer:**\n\n" + text)
	plain := title + " answer:\n\n" + text

	if ref != nil {
		err := h.Platform.Edit(ctx, *ref, markdown, ParseMarkdownV2)
		if err == nil || errors.Is(err, ErrNotModified) {
			return
		}
		logger.Debug("markdown edit rejected, retrying as plain text", zap.Error(err))
		if err := h.Platform.Edit(ctx, *ref, plain, ParsePlain); err == nil {
			return
		}
	}

	if _, err := h.Platform.Reply(ctx, req, markdown, ParseMarkdownV2); err == nil {
		return
	}
	if _, err := h.Platform.Reply(ctx, req, plain, ParsePlain); err != nil {
		logger.Error("could not deliver answer", zap.Error(err))
	}
}

// fail replaces the placeholder with a fixed message, or replies with it
// when there is no placeholder or the edit is refused.
func (h *ConversationHandler) fail(ctx context.Context, req *Request, ref *MessageRef, msg string, logger *zap.Logger) {
	if ref != nil {
		if err := h.Platform.Edit(ctx, *ref, msg, ParsePlain); err == nil {
			return
		}
	}
	h.send(ctx, req, msg, logger)
}

func (h *ConversationHandler) send(ctx context.Context, req *Request, msg string, logger *zap.Logger) {
	if _, err := h.Platform.Reply(ctx, req, msg, ParsePlain); err != nil {
		logger.Error("could not send reply", zap.Error(err))
	}
}

// PhotoHandler answers a captioned photo with one multimodal call. It keeps
// no session.
type PhotoHandler struct {
	MIMEType string
	Deps
}

// Handle implements Handler.
func (h *PhotoHandler) Handle(ctx context.Context, req *Request, payload string) {
	logger := h.logger().With(zap.String("handler", "gemini_photo"), zap.Int64("chat_id", req.ChatID))

	pending, err := h.Platform.Reply(ctx, req, MsgVisionPending, ParsePlain)
	if err != nil {
		logger.Warn("could not send placeholder", zap.Error(err))
	} else {
		defer func() {
			if err := h.Platform.Delete(ctx, *pending); err != nil {
				logger.Debug("could not delete placeholder", zap.Error(err))
			}
		}()
	}

	text, ok := h.describe(ctx, req, payload, logger)
	if !ok {
		h.send(ctx, req, MsgGenerationFailed, logger)
		return
	}
	h.send(ctx, req, "Gemini vision answer:\n"+text, logger)
}

func (h *PhotoHandler) describe(ctx context.Context, req *Request, payload string, logger *zap.Logger) (string, bool) {
	photo, ok := req.LargestPhoto()
	if !ok {
		logger.Error("photo request without photo")
		return "", false
	}
	data, err := h.Platform.Download(ctx, photo.FileID)
	if err != nil {
		logger.Error("could not download photo", zap.String("file_id", photo.FileID), zap.Error(err))
		return "", false
	}

	prompt := strings.TrimSpace(payload)
	if prompt == "" {
		prompt = DefaultVisionPrompt
	}
	mime := h.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}

	res, err := h.Provider.Describe(ctx, Image{Data: data, MIMEType: mime}, prompt)
	if err != nil {
		if text, ok := h.salvager().Salvage(err); ok {
			logger.Warn("salvaged partial vision reply", zap.Error(err))
			return text, true
		}
		logger.Error("vision call failed", zap.Error(err))
		return "", false
	}
	return res.Content, true
}

func (h *PhotoHandler) send(ctx context.Context, req *Request, msg string, logger *zap.Logger) {
	if _, err := h.Platform.Reply(ctx, req, msg, ParsePlain); err != nil {
		logger.Error("could not send reply", zap.Error(err))
	}
}

// Register installs the command surface on d. Regular sessions live in
// sessions and pro sessions in proSessions; pass the same store for both to
// share one map.
func Register(d *Dispatcher, deps Deps, sessions, proSessions Store) {
	question := &ConversationHandler{
		Name:        "gemini",
		Title:       "Gemini",
		Family:      PerChatCommand,
		Variant:     VariantRegular,
		Placeholder: true,
		Store:       sessions,
		Deps:        deps,
	}
	toChinese := &ConversationHandler{
		Name:     "t2zh",
		Title:    "Gemini",
		Family:   PerChatCommand,
		Variant:  VariantRegular,
		Template: TranslateToChinesePrompt,
		Store:    sessions,
		Deps:     deps,
	}
	toEnglish := &ConversationHandler{
		Name:     "t2eng",
		Title:    "Gemini",
		Family:   PerChatCommand,
		Variant:  VariantRegular,
		Template: TranslateToEnglishPrompt,
		Store:    sessions,
		Deps:     deps,
	}
	pro := &ConversationHandler{
		Name:    "gemini_pro",
		Title:   "Gemini Pro",
		Family:  PerUser,
		Variant: VariantPro,
		Stream:  true,
		Store:   proSessions,
		Deps:    deps,
	}
	photo := &PhotoHandler{Deps: deps}

	d.Register("gemini", Command("gemini"), question)
	d.Register("gemini:", Prefix("gemini:"), question)
	d.Register("t2zh", Command("t2zh"), toChinese)
	d.Register("t2zh:", Prefix("t2zh:"), toChinese)
	d.Register("t2eng", Command("t2eng"), toEnglish)
	d.Register("t2eng:", Prefix("t2eng:"), toEnglish)
	d.Register("gemini_pro", Command("gemini_pro"), pro)
	d.Register("gemini_pro:", Prefix("gemini_pro:"), pro)
	d.Register("gemini_photo", PhotoCaption(Command("gemini"), Prefix("gemini:")), photo)
}
