package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Rrens/onboarding-sync/internal/api/handler"
	customMiddleware "github.com/Rrens/onboarding-sync/internal/api/middleware"
	"github.com/Rrens/onboarding-sync/internal/config"
	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/llm"
	"github.com/Rrens/onboarding-sync/internal/repository/redis"
	"github.com/Rrens/onboarding-sync/internal/security"
	"github.com/Rrens/onboarding-sync/internal/service"
)

// Dependencies are the wired components the router serves
type Dependencies struct {
	Sessions    *service.SessionService
	Commits     *service.CommitService
	Streams     *service.StreamService
	JWT         *security.JWTManager
	Store       domain.SessionRepository
	LLM         *llm.Router
	// Redis and RateLimiter are nil when redis is disabled
	Redis       *redis.Client
	RateLimiter *redis.RateLimiter
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	sessionHandler := handler.NewSessionHandler(deps.Sessions)
	commitHandler := handler.NewCommitHandler(deps.Commits)
	streamHandler := handler.NewStreamHandler(deps.Streams)

	authMiddleware := customMiddleware.NewAuthMiddleware(deps.JWT)
	limit := func(next http.Handler) http.Handler { return next }
	if deps.RateLimiter != nil {
		limit = customMiddleware.NewRateLimitMiddleware(deps.RateLimiter).Limit
	}

	readiness := map[string]handler.Pinger{"store": deps.Store}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(readiness))
		r.Get("/stages", handler.ListStages(deps.Sessions.Catalog()))
		if deps.LLM != nil {
			r.Get("/providers", handler.ListProviders(deps.LLM))
		}

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Route("/sessions", func(r chi.Router) {
				r.With(middleware.Timeout(cfg.Server.MiddlewareTimeout)).Post("/", sessionHandler.Create)

				r.Route("/{sessionID}", func(r chi.Router) {
					r.Use(customMiddleware.SessionContext)

					// The stream carries its own deadline from stream.timeout.
					r.With(limit).Post("/stream", streamHandler.Stream)

					r.Group(func(r chi.Router) {
						r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

						r.Get("/", sessionHandler.Get)
						r.Delete("/", sessionHandler.Abandon)
						r.Post("/pause", sessionHandler.Pause)
						r.Post("/resume", sessionHandler.Resume)
						r.Post("/revise", sessionHandler.Revise)
						r.With(limit).Post("/commit", commitHandler.Commit)
					})
				})
			})
		})
	})

	return r
}
