package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Session persistence
	StoreBackend string // memory, file, sqlite, postgres, redis, dynamodb
	DataDir      string
	SQLitePath   string
	DatabaseURL  string
	RedisURL     string
	DynamoTable  string
	AWSRegion    string
	SessionKey   string        // default session for clients that don't name one
	SaveDebounce time.Duration // quiet period before position/viewport saves

	// Context assembly and model calls
	ContextMode         string // turns or merged
	ModelProvider       string // mock or openai
	ModelName           string
	OpenAIBaseURL       string
	DefaultInstructions string

	// Live node refresh
	CORSProxy    string
	GitHubToken  string
	FetchTimeout time.Duration

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// It panics on invalid values and, in production, on a non-durable store.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg, err := FromEnv()
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// FromEnv builds a Config from the current environment without touching
// .env files.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		StoreBackend:        getEnv("STORE_BACKEND", "file"),
		DataDir:             getEnv("DATA_DIR", "./data"),
		SQLitePath:          os.Getenv("SQLITE_PATH"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		DynamoTable:         os.Getenv("DYNAMODB_TABLE"),
		AWSRegion:           os.Getenv("AWS_REGION"),
		SessionKey:          getEnv("SESSION_KEY", "lucid-flow-session"),
		ContextMode:         getEnv("CONTEXT_MODE", "turns"),
		ModelProvider:       getEnv("MODEL_PROVIDER", "mock"),
		ModelName:           getEnv("MODEL_NAME", "gpt-4o-mini"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		DefaultInstructions: getEnv("DEFAULT_INSTRUCTIONS", "You are a helpful AI assistant."),
		CORSProxy:           getEnv("CORS_PROXY", "https://api.allorigins.win/get?url="),
		GitHubToken:         os.Getenv("GITHUB_TOKEN"),
		AutoBlockEnabled:    getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	var err error
	if cfg.SaveDebounce, err = getDuration("SAVE_DEBOUNCE", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = getDuration("FETCH_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case "memory", "file", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE_BACKEND=postgres")
		}
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for STORE_BACKEND=redis")
		}
	case "dynamodb":
		if c.DynamoTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required for STORE_BACKEND=dynamodb")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.ContextMode {
	case "turns", "merged":
	default:
		return fmt.Errorf("unknown CONTEXT_MODE %q", c.ContextMode)
	}

	switch c.ModelProvider {
	case "mock", "openai":
	default:
		return fmt.Errorf("unknown MODEL_PROVIDER %q", c.ModelProvider)
	}

	// In production, sessions must survive a restart
	if c.Env == "production" && c.StoreBackend == "memory" {
		return fmt.Errorf("STORE_BACKEND=memory is not allowed in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
