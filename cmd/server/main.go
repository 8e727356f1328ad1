package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/lucidflow/internal/api"
	"github.com/eldtechnologies/lucidflow/internal/api/middleware"
	"github.com/eldtechnologies/lucidflow/internal/chat"
	"github.com/eldtechnologies/lucidflow/internal/config"
	"github.com/eldtechnologies/lucidflow/internal/credential"
	"github.com/eldtechnologies/lucidflow/internal/events"
	"github.com/eldtechnologies/lucidflow/internal/fetch"
	"github.com/eldtechnologies/lucidflow/internal/graph"
	"github.com/eldtechnologies/lucidflow/internal/handlers"
	"github.com/eldtechnologies/lucidflow/internal/llm"
	"github.com/eldtechnologies/lucidflow/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Redis is shared by the redis session backend, stored credentials
	// and the rate limiter
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisClient.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Session store
	sessions, err := store.Open(ctx, store.Options{
		Backend:      cfg.StoreBackend,
		DataDir:      cfg.DataDir,
		SQLitePath:   cfg.SQLitePath,
		DatabaseURL:  cfg.DatabaseURL,
		RedisClient:  redisClient,
		DynamoTable:  cfg.DynamoTable,
		DynamoRegion: cfg.AWSRegion,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("session store unavailable")
	}
	defer sessions.Close()
	logger.Info().Str("backend", sessions.Backend()).Msg("session store ready")

	// Live node sources
	fetchers := fetch.NewRegistry()
	fetchers.Register("webpage", fetch.NewBreaker(
		fetch.NewWebFetcher(cfg.CORSProxy, true, cfg.FetchTimeout),
		fetch.DefaultBreakerConfig("webpage"), logger))
	fetchers.Register("github", fetch.NewBreaker(
		fetch.NewGitHubFetcher(fetch.DefaultGitHubAPI, cfg.GitHubToken, cfg.FetchTimeout),
		fetch.DefaultBreakerConfig("github"), logger))

	// Model provider
	var generator llm.Generator
	switch cfg.ModelProvider {
	case "openai":
		generator = llm.NewOpenAI(cfg.OpenAIBaseURL, cfg.ModelName)
	default:
		generator = llm.NewMock()
	}

	// Per-client model keys
	var credentials credential.Store
	if redisClient != nil {
		credentials = credential.NewRedisStore(redisClient, credential.DefaultTTL)
	} else {
		credentials = credential.NewMemoryStore()
	}

	mode, err := chat.ParseMode(cfg.ContextMode)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid context mode")
	}

	bus := events.NewBus()
	bus.Subscribe(func(ev events.Event) {
		logger.Debug().Str("kind", string(ev.Kind())).Interface("event", ev).Msg("event")
	})

	manager := graph.NewManager(sessions, bus, logger, cfg.SaveDebounce)

	// Open the default session up front so a broken blob shows at startup
	if _, err := manager.Flow(ctx, cfg.SessionKey); err != nil {
		logger.Error().Err(err).Str("session", cfg.SessionKey).Msg("failed to load default session")
	}

	h := handlers.NewHandler(handlers.Deps{
		Manager:      manager,
		Store:        sessions,
		Redis:        redisClient,
		Fetchers:     fetchers,
		Generator:    generator,
		Credentials:  credentials,
		Bus:          bus,
		Mode:         mode,
		Model:        cfg.ModelName,
		Instructions: cfg.DefaultInstructions,
		Logger:       logger,
	})

	// Create router
	router := api.NewRouter(logger, h, api.RouterConfig{
		Redis: redisClient,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
		Credentials: credentials,
	})

	// Model calls and live refreshes need a longer write timeout
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("provider", generator.Name()).
			Str("mode", string(mode)).
			Msg("starting LucidFlow server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Persist debounced position and viewport changes
	if err := manager.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to flush sessions")
	}

	logger.Info().Msg("server stopped")
}
