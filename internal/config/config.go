// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime settings.
type Config struct {
	// Server
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"8000"`

	// LLM providers
	GeminiAPIKey    string        `env:"GEMINI_API_KEY"`
	GeminiModel     string        `env:"GEMINI_MODEL" envDefault:"gemini-1.5-pro"`
	DeepSeekAPIKey  string        `env:"DEEPSEEK_API_KEY"`
	DeepSeekBaseURL string        `env:"DEEPSEEK_BASE_URL" envDefault:"https://api.deepseek.com/v1"`
	DeepSeekModel   string        `env:"DEEPSEEK_MODEL" envDefault:"deepseek-chat"`
	DefaultProvider string        `env:"DEFAULT_LLM_PROVIDER" envDefault:"deepseek"`
	Temperature     float64       `env:"LLM_TEMPERATURE" envDefault:"0.8"`
	MaxTokens       int           `env:"LLM_MAX_TOKENS" envDefault:"1000"`
	RequestTimeout  time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"30s"`
	MaxRetries      int           `env:"LLM_MAX_RETRIES" envDefault:"3"`

	// Embeddings for the optional memory archive
	EmbeddingModel string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-004"`

	// Sessions
	MaxSessions          int           `env:"MAX_SESSIONS" envDefault:"100"`
	SessionTimeout       time.Duration `env:"SESSION_TIMEOUT" envDefault:"24h"`
	MaxMessagesPerChat   int           `env:"MAX_MESSAGES_PER_SESSION" envDefault:"50"`
	SessionCleanupPeriod time.Duration `env:"SESSION_CLEANUP_PERIOD" envDefault:"5m"`
	RedisAddr            string        `env:"REDIS_ADDR"`
	RedisPassword        string        `env:"REDIS_PASSWORD"`
	RedisDB              int           `env:"REDIS_DB" envDefault:"0"`

	// Characters
	CharactersDir     string        `env:"CHARACTERS_DIR" envDefault:"data/characters"`
	CharacterCacheTTL time.Duration `env:"CHARACTER_CACHE_TTL" envDefault:"1h"`

	// Security
	MaxMessageLength   int    `env:"MAX_MESSAGE_LENGTH" envDefault:"2000"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	// JWTSecret enables bearer authentication when set. Empty leaves
	// the API open, which is the development default.
	JWTSecret string `env:"JWT_SECRET"`

	// Optional Postgres archive. Empty disables the archive entirely.
	DatabaseURL string `env:"DATABASE_URL"`
}

// Load parses the environment and validates required fields.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	switch cfg.DefaultProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when DEFAULT_LLM_PROVIDER=gemini")
		}
	case "deepseek":
		if cfg.DeepSeekAPIKey == "" {
			return nil, fmt.Errorf("DEEPSEEK_API_KEY is required when DEFAULT_LLM_PROVIDER=deepseek")
		}
	default:
		return nil, fmt.Errorf("unknown DEFAULT_LLM_PROVIDER: %s", cfg.DefaultProvider)
	}

	return cfg, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
