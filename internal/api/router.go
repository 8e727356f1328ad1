package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/lucidflow/internal/api/middleware"
	"github.com/eldtechnologies/lucidflow/internal/credential"
	"github.com/eldtechnologies/lucidflow/internal/handlers"
)

// maxBodySize bounds request bodies; chat histories are sent whole.
const maxBodySize = 1 << 20

// RouterConfig carries the optional pieces of the router.
type RouterConfig struct {
	// Redis enables rate limiting when set.
	Redis     *redis.Client
	RateLimit middleware.RateLimiterConfig
	// Credentials backs X-LucidFlow-Client key lookup.
	Credentials credential.Store
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	if cfg.Redis != nil {
		limiter := middleware.NewRateLimiter(cfg.Redis, logger, cfg.RateLimit)
		r.Use(limiter.Middleware)
	}

	// CORS - the editor may be served from any origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.HeaderClient, middleware.HeaderModelKey},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	creds := middleware.NewCredentialMiddleware(cfg.Credentials, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api", h.Root)
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(creds.ResolveCredential)

		r.Put("/credentials", h.PutCredential)
		r.Delete("/credentials/{client}", h.DeleteCredential)

		r.Route("/sessions/{session}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
			r.Post("/save", h.SaveSession)
			r.Post("/load", h.LoadSession)
			r.Put("/viewport", h.SetViewport)
			r.Post("/events", h.PostEvent)
			r.Get("/stats", h.Stats)
			r.Get("/search", h.Search)

			r.Get("/nodes", h.ListNodes)
			r.Post("/nodes", h.CreateNode)
			r.Route("/nodes/{nodeID}", func(r chi.Router) {
				r.Get("/", h.GetNode)
				r.Delete("/", h.DeleteNode)
				r.Put("/position", h.MoveNode)
				r.Get("/chat", h.GetChatData)
				r.Put("/chat", h.ReplaceChatData)
				r.Post("/chat", h.AppendChatData)
				r.Get("/upstream", h.Upstream)
				r.Post("/context", h.BuildContext)
				r.Post("/send", h.SendMessage)
			})

			r.Get("/edges", h.ListEdges)
			r.Post("/edges", h.CreateEdge)
			r.Delete("/edges/{edgeID}", h.DeleteEdge)
		})
	})

	return r
}
