package chatbridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Configuration keys. Each is also the name of the matching command-line flag.
const (
	KeyTelegramToken  = "telegram-token"
	KeyGeminiKey      = "gemini-key"
	KeyModel          = "model"
	KeyProModel       = "pro-model"
	KeyVisionModel    = "vision-model"
	KeyDatabaseURL    = "database-url"
	KeyMaxTokens      = "max-tokens"
	KeyRequestTimeout = "request-timeout"
	KeyDebug          = "debug"
)

// envKeys maps configuration keys to environment variables.
var envKeys = map[string]string{
	KeyTelegramToken:  "TELEGRAM_BOT_TOKEN",
	KeyGeminiKey:      "GOOGLE_GEMINI_KEY",
	KeyModel:          "GEMINI_MODEL",
	KeyProModel:       "GEMINI_PRO_MODEL",
	KeyVisionModel:    "GEMINI_VISION_MODEL",
	KeyDatabaseURL:    "DATABASE_URL",
	KeyMaxTokens:      "MAX_TOKENS",
	KeyRequestTimeout: "REQUEST_TIMEOUT",
	KeyDebug:          "DEBUG",
}

// AppConfig holds process configuration.
type AppConfig struct {
	TelegramToken  string
	GeminiAPIKey   string
	Model          string
	ProModel       string
	VisionModel    string
	DatabaseURL    string
	MaxTokens      int
	RequestTimeout time.Duration
	Debug          bool
}

// DefaultConfig returns an AppConfig with sensible defaults and no credentials.
func DefaultConfig() AppConfig {
	return AppConfig{
		Model:          "gemini-2.0-flash",
		ProModel:       "gemini-2.5-pro",
		VisionModel:    "gemini-2.0-flash",
		MaxTokens:      8192,
		RequestTimeout: 2 * time.Minute,
	}
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	def := DefaultConfig()
	fs.String(KeyTelegramToken, "", "Telegram bot token (env TELEGRAM_BOT_TOKEN).")
	fs.String(KeyGeminiKey, "", "Google Gemini API key (env GOOGLE_GEMINI_KEY).")
	fs.String(KeyModel, def.Model, "Model for regular sessions.")
	fs.String(KeyProModel, def.ProModel, "Model for pro sessions.")
	fs.String(KeyVisionModel, def.VisionModel, "Model for photo questions.")
	fs.String(KeyDatabaseURL, "", "PostgreSQL URL for the request log; empty disables it.")
	fs.Int(KeyMaxTokens, def.MaxTokens, "Output token cap per reply.")
	fs.Duration(KeyRequestTimeout, def.RequestTimeout, "Hard timeout for one model call.")
	fs.Bool(KeyDebug, false, "Enable debug logging.")
}

// LoadConfig loads configuration from environment variables and, when flags
// is not nil, from command-line flags. Flags that were set win over the
// environment.
func LoadConfig(flags *pflag.FlagSet) (AppConfig, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetDefault(KeyModel, def.Model)
	v.SetDefault(KeyProModel, def.ProModel)
	v.SetDefault(KeyVisionModel, def.VisionModel)
	v.SetDefault(KeyMaxTokens, def.MaxTokens)
	v.SetDefault(KeyRequestTimeout, def.RequestTimeout)

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return AppConfig{}, fmt.Errorf("chatbridge: bind env %s: %w", env, err)
		}
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return AppConfig{}, fmt.Errorf("chatbridge: bind flags: %w", err)
		}
	}

	cfg := AppConfig{
		TelegramToken:  v.GetString(KeyTelegramToken),
		GeminiAPIKey:   v.GetString(KeyGeminiKey),
		Model:          v.GetString(KeyModel),
		ProModel:       v.GetString(KeyProModel),
		VisionModel:    v.GetString(KeyVisionModel),
		DatabaseURL:    v.GetString(KeyDatabaseURL),
		MaxTokens:      v.GetInt(KeyMaxTokens),
		RequestTimeout: v.GetDuration(KeyRequestTimeout),
		Debug:          v.GetBool(KeyDebug),
	}

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	return cfg, nil
}

// Validate checks that the credentials needed to serve are present.
func (c AppConfig) Validate() error {
	var errs []error
	if c.TelegramToken == "" {
		errs = append(errs, errors.New("telegram token is required (TELEGRAM_BOT_TOKEN)"))
	}
	if c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("gemini key is required (GOOGLE_GEMINI_KEY)"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("chatbridge: invalid config: %w", err)
	}
	return nil
}
