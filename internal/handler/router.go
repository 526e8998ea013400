package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/study-collab/internal/events"
	"github.com/capitalize-ai/study-collab/internal/middleware"
	"github.com/capitalize-ai/study-collab/internal/service"
	"github.com/capitalize-ai/study-collab/pkg/logger"
)

// RouterConfig carries the dependencies of the HTTP surface.
type RouterConfig struct {
	Core      *service.Core
	Bus       *events.Bus
	Replayer  Replayer
	JWTSecret string

	// Checks feed GET /ready, keyed by dependency name.
	Checks         map[string]Check
	AllowedOrigins []string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	GroupGap          time.Duration
	Heartbeat         time.Duration

	// Shutdown is closed when the server starts shutting down; open event
	// streams end on it.
	Shutdown <-chan struct{}

	Logger *logger.Logger
}

// ipLimitFactor lets several users share one address (NAT, campus proxies).
const ipLimitFactor = 4

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	healthHandler := NewHealthHandler(cfg.Checks)
	userHandler := NewUserHandler(cfg.Core, log)
	conversationHandler := NewConversationHandler(cfg.Core, log)
	messageHandler := NewMessageHandler(cfg.Core, cfg.Replayer, cfg.GroupGap, log)
	streamHandler := NewStreamHandler(cfg.Bus, cfg.Heartbeat, cfg.Shutdown, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// The per-IP limit runs before Auth so token guessing is throttled too.
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests*ipLimitFactor, cfg.RateLimitWindow))
		}
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/users", func(r chi.Router) {
			r.Get("/", userHandler.List)
			r.Put("/me", userHandler.UpsertMe)
			r.Put("/me/presence", userHandler.SetPresence)
			r.Get("/{id}", userHandler.Get)
			r.Get("/{id}/direct", userHandler.Direct)
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Post("/direct", conversationHandler.CreateDirect)
			r.Post("/group", conversationHandler.CreateGroup)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Put("/pin", conversationHandler.Pin)
				r.Put("/title", conversationHandler.Rename)

				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
				r.Post("/read", messageHandler.MarkRead)
				r.Get("/history", messageHandler.History)
			})
		})

		r.Get("/groups/{groupId}/conversation", conversationHandler.ByGroup)
		r.Get("/events", streamHandler.Stream)
	})

	return r
}
