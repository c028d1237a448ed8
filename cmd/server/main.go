package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/onboarding-sync/internal/api"
	"github.com/Rrens/onboarding-sync/internal/config"
	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/logging"
	"github.com/Rrens/onboarding-sync/internal/repository/redis"
	"github.com/Rrens/onboarding-sync/internal/security"
	"github.com/Rrens/onboarding-sync/internal/service"
	"github.com/Rrens/onboarding-sync/internal/worker"
)

func main() {
	// Load .env file - try multiple locations
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	logFile, err := logging.Setup(cfg.Logging, cfg.IsProduction())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	defer logFile.Close()

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("store", cfg.Database.Driver).
		Msg("Starting onboarding sync server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize session store
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open session store")
	}
	defer closeStore()

	// Initialize Redis
	var (
		redisClient *redis.Client
		cache       service.SessionCache
		triggers    *redis.TriggerQueue
		limiter     *redis.RateLimiter
	)
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()

		cache = redis.NewSessionCache(redisClient, cfg.Redis.CacheTTL)
		triggers = redis.NewTriggerQueue(redisClient, cfg.Analysis.Queue)
		if cfg.RateLimit.Enabled {
			limiter = redis.NewRateLimiter(redisClient, cfg.RateLimit.RequestsPerMinute)
		}
	} else {
		log.Warn().Msg("Redis disabled: no read cache, rate limiting or analysis triggers")
	}

	// Initialize LLM providers and the coverage assessor
	router := newLLMRouter(cfg.LLM)
	assessor, err := newAssessor(cfg.Assessment, router)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up assessor")
	}

	catalog := domain.DefaultCatalog()
	var triggerQueue service.TriggerQueue
	if triggers != nil {
		triggerQueue = triggers
	}

	deps := api.Dependencies{
		Sessions: service.NewSessionService(store, catalog, cache, triggerQueue, cfg.Session.TTL),
		Commits:  service.NewCommitService(store, catalog, assessor, cache, triggerQueue, cfg.Session.TTL, cfg.Assessment.TurnWindow),
		Streams: service.NewStreamService(store, catalog, router, cache, service.StreamOptions{
			Provider:     cfg.LLM.DefaultProvider,
			Temperature:  cfg.LLM.Temperature,
			MaxTokens:    cfg.LLM.MaxTokens,
			Timeout:      cfg.Stream.Timeout,
			HistoryLimit: cfg.Stream.HistoryLimit,
		}),
		JWT:         security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL),
		Store:       store,
		LLM:         router,
		Redis:       redisClient,
		RateLimiter: limiter,
	}

	// Start the analysis worker
	if cfg.Analysis.Enabled && triggers != nil {
		analysis := worker.NewAnalysisWorker(store, triggers, worker.LogProfile, cfg.Analysis.PollTimeout)
		go analysis.Run(ctx)
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(cfg, deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server failed")
			stop()
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
