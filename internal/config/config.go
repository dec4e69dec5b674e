package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"edumate/internal/assistant"
	"edumate/internal/chunk"
	"edumate/internal/httpapi"
	"edumate/internal/llm"
)

type Config struct {
	TelegramToken string  `env:"TELEGRAM_TOKEN"`
	AllowedUsers  []int64 `env:"ALLOWED_USERS"`
	DBPath        string  `env:"DB_PATH"        envDefault:"edumate.sqlite"`
	HTTPAddr      string  `env:"HTTP_ADDR"      envDefault:":8080"`
	// AdminToken guards the LLM settings and memories of the HTTP API.
	// The admin routes are disabled while it is empty.
	AdminToken string `env:"ADMIN_TOKEN"`

	LLMBaseURL     string        `env:"LLM_BASE_URL"`
	LLMAPIKey      string        `env:"LLM_API_KEY"`
	LLMModel       string        `env:"LLM_MODEL"        envDefault:"qwen-turbo"`
	LLMMaxRetries  int           `env:"LLM_MAX_RETRIES"  envDefault:"0"`
	LLMCallTimeout time.Duration `env:"LLM_CALL_TIMEOUT"`

	ChunkSize        int           `env:"CHUNK_SIZE"        envDefault:"3000"`
	HistoryRetention time.Duration `env:"HISTORY_RETENTION" envDefault:"720h"`
	CacheTTL         time.Duration `env:"CACHE_TTL"         envDefault:"1h"`
	CacheMaxEntries  int           `env:"CACHE_MAX_ENTRIES" envDefault:"256"`
}

// Load reads .env when present and parses the environment.
func Load(dotEnvPaths ...string) (Config, error) {
	if err := godotenv.Load(dotEnvPaths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env file: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	cfg.AdminToken = strings.TrimSpace(cfg.AdminToken)
	cfg.LLMBaseURL = strings.TrimSpace(cfg.LLMBaseURL)
	cfg.LLMAPIKey = strings.TrimSpace(cfg.LLMAPIKey)

	if err = cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("DB_PATH must not be empty"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive: %w", chunk.ErrInvalidSize))
	}
	if c.LLMMaxRetries < 0 {
		errs = append(errs, errors.New("LLM_MAX_RETRIES must not be negative"))
	}
	if c.LLMCallTimeout < 0 {
		errs = append(errs, errors.New("LLM_CALL_TIMEOUT must not be negative"))
	}
	if c.HistoryRetention <= 0 {
		errs = append(errs, errors.New("HISTORY_RETENTION must be positive"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("CACHE_TTL must not be negative"))
	}
	if c.CacheMaxEntries < 0 {
		errs = append(errs, errors.New("CACHE_MAX_ENTRIES must not be negative"))
	}

	return errors.Join(errs...)
}

// Credentials returns credentials configured through the environment.
// They take precedence over the ones saved with the settings commands.
func (c Config) Credentials() llm.StaticCredentials {
	return llm.StaticCredentials{BaseURL: c.LLMBaseURL, APIKey: c.LLMAPIKey}
}

func (c Config) OpenAI() llm.OpenAIConfig {
	return llm.OpenAIConfig{
		Model:      c.LLMModel,
		MaxRetries: c.LLMMaxRetries,
	}
}

func (c Config) Assistant() assistant.Config {
	return assistant.Config{
		CacheTTL:        c.CacheTTL,
		CacheMaxEntries: c.CacheMaxEntries,
		ChatCallTimeout: c.LLMCallTimeout,
	}
}

func (c Config) HTTP() httpapi.Config {
	return httpapi.Config{AdminToken: c.AdminToken}
}
