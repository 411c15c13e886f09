package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/inbox/internal/api/middleware"
	"github.com/eldtechnologies/inbox/internal/handlers"
	"github.com/eldtechnologies/inbox/internal/messaging"
	"github.com/eldtechnologies/inbox/internal/store"
)

// maxBodyBytes leaves room for a full-length message of multi-byte runes.
const maxBodyBytes = 64 * 1024

// NewRouter creates and configures the HTTP router.
func NewRouter(
	logger zerolog.Logger,
	db store.DataStore,
	redisStore *store.RedisStore,
	svc *messaging.Service,
	limits middleware.RateLimiterConfig,
) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	r.Use(middleware.ValidateRequest)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	limiter := middleware.NewRateLimiter(redisStore.Client(), logger, limits)
	r.Use(limiter.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Content-Type",
			middleware.HeaderIdentity, middleware.HeaderNonce,
			middleware.HeaderTimestamp, middleware.HeaderSignature,
		},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(svc, db, redisStore, logger)
	auth := middleware.NewAuthMiddleware(db, redisStore)

	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Post("/register", h.Register)
	r.Get("/who/{id}", h.Who)

	// Authenticated routes (require signature)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Post("/conversations", h.ResolveConversation)
		r.Get("/conversations", h.ListConversations)
		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/messages", h.ListMessages)
			r.Post("/messages", h.SendMessage)
			r.Post("/read", h.MarkRead)
			r.Post("/archive", h.Archive)
			r.Delete("/archive", h.Unarchive)
			r.Get("/unread", h.ConversationUnread)
		})
		r.Get("/unread", h.TotalUnread)
	})

	return r
}
