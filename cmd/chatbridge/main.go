// Command chatbridge runs the Telegram to Gemini bot and manages its
// request-log database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meikuraledutech/chatbridge"
)

// app carries state shared by all subcommands once flags are parsed.
type app struct {
	cfg    chatbridge.AppConfig
	logger *zap.Logger
}

func newLogger(debug bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "chatbridge",
		Short: "Telegram bot answering with Google Gemini",
		Long: `chatbridge relays Telegram messages to Google Gemini.

Commands understood by the bot:
  /gemini, gemini:          ask a question in a per-chat conversation
  /gemini_pro, gemini_pro:  ask the pro model, streamed, one conversation per user
  /t2zh, t2zh:              translate to Chinese
  /t2eng, t2eng:            translate to English
  photo + "/gemini" caption describe a photo

Send "clear" after any command to forget the conversation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := chatbridge.LoadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Debug)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}
	chatbridge.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newLogsCmd(a),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
