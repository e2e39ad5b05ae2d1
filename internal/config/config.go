// Package config reads process configuration from the environment and an optional .env file.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

const (
	DefaultHTTPAddr          = "0.0.0.0:8080"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel             = "anthropic/claude-3.5-sonnet"
	DefaultAITimeout         = 30 * time.Second
	DefaultAppReferer        = "https://krishibondhu.com"
	DefaultAppTitle          = "KrishiBondhu Agricultural Platform"
	DefaultDatabaseURL       = "sqlite://data/advisory.db"
	DefaultRateLimit         = 2.0
	DefaultRateBurst         = 5
	DefaultDailyQuota        = 200
	DefaultLogLevel          = "info"
)

var (
	ErrMissingAPIKey    = errors.New("OPENROUTER_API_KEY is required")
	ErrMissingJWTSecret = errors.New("JWT_SECRET is required")
)

type Config struct {
	HTTPAddr string

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	DefaultModel      string
	AITimeout         time.Duration
	AppReferer        string
	AppTitle          string

	DatabaseURL      string
	JWTSecret        string
	TelegramBotToken string

	RateLimitPerSecond float64
	RateLimitBurst     int
	DailyQuota         int // 0 = unlimited

	LogLevel string
}

// Load reads .env (if present) and the environment. Values are read once; nothing is re-read
// after startup.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "loading .env")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		HTTPAddr:          orDefault(getenv("HTTP_ADDR"), DefaultHTTPAddr),
		OpenRouterAPIKey:  getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL: orDefault(getenv("OPENROUTER_BASE_URL"), DefaultOpenRouterBaseURL),
		DefaultModel:      orDefault(getenv("AI_MODEL"), DefaultModel),
		AppReferer:        orDefault(getenv("APP_REFERER"), DefaultAppReferer),
		AppTitle:          orDefault(getenv("APP_TITLE"), DefaultAppTitle),
		DatabaseURL:       orDefault(getenv("DATABASE_URL"), DefaultDatabaseURL),
		JWTSecret:         getenv("JWT_SECRET"),
		TelegramBotToken:  getenv("TELEGRAM_BOT_TOKEN"),
		LogLevel:          orDefault(getenv("LOG_LEVEL"), DefaultLogLevel),
	}

	var err error
	if cfg.AITimeout, err = parseDuration(getenv("AI_TIMEOUT"), DefaultAITimeout); err != nil {
		return nil, errors.Wrap(err, "AI_TIMEOUT")
	}
	if cfg.RateLimitPerSecond, err = parseFloat(getenv("RATE_LIMIT_PER_SECOND"), DefaultRateLimit); err != nil {
		return nil, errors.Wrap(err, "RATE_LIMIT_PER_SECOND")
	}
	if cfg.RateLimitBurst, err = parseInt(getenv("RATE_LIMIT_BURST"), DefaultRateBurst); err != nil {
		return nil, errors.Wrap(err, "RATE_LIMIT_BURST")
	}
	if cfg.DailyQuota, err = parseInt(getenv("DAILY_QUOTA"), DefaultDailyQuota); err != nil {
		return nil, errors.Wrap(err, "DAILY_QUOTA")
	}

	if cfg.OpenRouterAPIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}
	return cfg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseDuration(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.Newf("must be positive, got %s", v)
	}
	return d, nil
}

func parseFloat(v string, def float64) (float64, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}

func parseInt(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
