package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/meikuraledutech/chatbridge"
)

// RequestFromUpdate decodes the message of an update. Updates without a
// message, or whose message has no sender, report false.
func RequestFromUpdate(update *models.Update) (*chatbridge.Request, bool) {
	if update == nil || update.Message == nil {
		return nil, false
	}
	msg := update.Message
	if msg.From == nil {
		return nil, false
	}

	req := &chatbridge.Request{
		ChatID:    msg.Chat.ID,
		UserID:    msg.From.ID,
		MessageID: msg.ID,
		Text:      msg.Text,
		Caption:   msg.Caption,
	}
	if msg.Date > 0 {
		req.Received = time.Unix(int64(msg.Date), 0)
	}
	for _, p := range msg.Photo {
		req.Photos = append(req.Photos, chatbridge.Photo{
			FileID:   p.FileID,
			FileSize: p.FileSize,
			Width:    p.Width,
			Height:   p.Height,
		})
	}
	return req, true
}

// dispatcher is satisfied by *chatbridge.Dispatcher.
type dispatcher interface {
	Dispatch(ctx context.Context, req *chatbridge.Request) bool
}

// Server feeds bot updates to a dispatcher. Each update is handled on its
// own goroutine so a slow model call never blocks other chats.
type Server struct {
	dispatcher dispatcher
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewServer creates a Server for d.
func NewServer(d *chatbridge.Dispatcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{dispatcher: d, logger: logger}
}

// HandleUpdate is a bot.HandlerFunc.
func (s *Server) HandleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	s.handle(ctx, update)
}

func (s *Server) handle(ctx context.Context, update *models.Update) {
	req, ok := RequestFromUpdate(update)
	if !ok {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if !s.dispatcher.Dispatch(ctx, req) {
			s.logger.Debug("no route for message",
				zap.Int64("chat_id", req.ChatID),
				zap.Int("message_id", req.MessageID),
			)
		}
	}()
}

// Wait blocks until all in-flight updates have been handled.
func (s *Server) Wait() {
	s.wg.Wait()
}

// NewBot creates a bot for token whose updates go to s.
func NewBot(token string, s *Server) (*bot.Bot, error) {
	return bot.New(token,
		bot.WithDefaultHandler(s.HandleUpdate),
		bot.WithErrorsHandler(func(err error) {
			s.logger.Warn("telegram polling error", zap.Error(err))
		}),
	)
}

// Run long-polls Telegram until ctx is done, then waits for in-flight
// handlers.
func (s *Server) Run(ctx context.Context, b *bot.Bot) {
	s.logger.Info("telegram bot polling")
	b.Start(ctx)
	s.Wait()
	s.logger.Info("telegram bot stopped")
}
