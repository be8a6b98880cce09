package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dumpkod/sdominanta/internal/api/middleware"
	"github.com/dumpkod/sdominanta/internal/handlers"
	"github.com/dumpkod/sdominanta/internal/identity"
)

const defaultMaxBodyBytes = 64 * 1024

// Options wires the gateway router.
type Options struct {
	Logger  zerolog.Logger
	Handler *handlers.Handler
	// Redis backs the rate limiter. Nil disables rate limiting.
	Redis            *redis.Client
	APIKey           string
	MaxBodyBytes     int64
	RateLimitAllow   []string
	AutoBlockEnabled bool
}

// NewRouter creates and configures the HTTP router.
func NewRouter(opts Options) *chi.Mux {
	r := chi.NewRouter()
	h := opts.Handler
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(opts.Logger))
	r.Use(chimw.Recoverer)

	if opts.Redis != nil {
		limiter := middleware.NewRateLimiter(opts.Redis, opts.Logger, middleware.RateLimiterConfig{
			Whitelist:        opts.RateLimitAllow,
			AutoBlockEnabled: opts.AutoBlockEnabled,
		})
		r.Use(limiter.Middleware)
	}

	// CORS - allow all origins (agents call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Content-Type",
			middleware.HeaderAPIKey,
			identity.HeaderAgentID,
			identity.HeaderPublicKey,
			handlers.HeaderIdempotencyKey,
		},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Open routes
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// Routes behind the shared secret
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAPIKey(opts.APIKey))

		r.Post("/send", h.Send)
		r.Post("/rv/in", h.Send)
		r.Post("/messages", h.Messages)
		r.Post("/messages/has", h.Has)
		r.Post("/rv/has", h.Has)
		r.Post("/rv/take", h.Take)
		r.Post("/register", h.Register)
		r.Get("/agents/{id}", h.Agent)
		r.Get("/stats", h.Stats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.Error(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
