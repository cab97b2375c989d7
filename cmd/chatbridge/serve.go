package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meikuraledutech/chatbridge"
	"github.com/meikuraledutech/chatbridge/gemini"
	"github.com/meikuraledutech/chatbridge/markdown"
	"github.com/meikuraledutech/chatbridge/postgres"
	"github.com/meikuraledutech/chatbridge/telegram"
)

const sessionReportInterval = 10 * time.Minute

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := gemini.New(ctx, gemini.Config{
		APIKey:      a.cfg.GeminiAPIKey,
		Model:       a.cfg.Model,
		ProModel:    a.cfg.ProModel,
		VisionModel: a.cfg.VisionModel,
		MaxTokens:   a.cfg.MaxTokens,
		Timeout:     a.cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}
	provider.WithLogger(a.logger.Named("gemini"))

	if a.cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect request log database: %w", err)
		}
		defer pool.Close()

		store := postgres.New(pool)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		provider.WithStore(store)
		a.logger.Info("request log enabled")
	}

	dispatcher := chatbridge.NewDispatcher(a.logger.Named("dispatch"))
	server := telegram.NewServer(dispatcher, a.logger.Named("telegram"))
	b, err := telegram.NewBot(a.cfg.TelegramToken, server)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	sessions := chatbridge.NewConversationStore()
	proSessions := chatbridge.NewConversationStore()
	chatbridge.Register(dispatcher, chatbridge.Deps{
		Platform:  telegram.NewClient(b, nil),
		Provider:  provider,
		Converter: markdown.Converter,
		Logger:    a.logger.Named("handler"),
	}, sessions, proSessions)

	a.logger.Info("starting bot",
		zap.String("model", a.cfg.Model),
		zap.String("pro_model", a.cfg.ProModel),
		zap.Int("routes", len(dispatcher.Routes())),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		server.Run(gctx, b)
		return nil
	})
	g.Go(func() error {
		reportSessions(gctx, a.logger, sessionReportInterval, sessions, proSessions)
		return nil
	})
	return g.Wait()
}

// reportSessions logs the number of live sessions every interval until ctx
// is done.
func reportSessions(ctx context.Context, logger *zap.Logger, interval time.Duration, sessions, proSessions *chatbridge.ConversationStore) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("sessions",
				zap.Int("regular", sessions.Len()),
				zap.Int("pro", proSessions.Len()),
			)
		}
	}
}
