package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/onboarding-sync/internal/config"
	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/llm"
	"github.com/Rrens/onboarding-sync/internal/llm/anthropic"
	"github.com/Rrens/onboarding-sync/internal/llm/deepseek"
	"github.com/Rrens/onboarding-sync/internal/llm/gemini"
	"github.com/Rrens/onboarding-sync/internal/llm/ollama"
	"github.com/Rrens/onboarding-sync/internal/llm/openai"
	"github.com/Rrens/onboarding-sync/internal/quality"
	"github.com/Rrens/onboarding-sync/internal/repository/memory"
	"github.com/Rrens/onboarding-sync/internal/repository/mongo"
	"github.com/Rrens/onboarding-sync/internal/repository/postgres"
	"github.com/Rrens/onboarding-sync/internal/repository/sqlstore"
)

// openStore connects the session store selected by database.driver
func openStore(ctx context.Context, cfg *config.Config) (domain.SessionRepository, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		if err := postgres.RunMigrations(cfg.Database.DSN(), cfg.Migrations.Source); err != nil {
			return nil, nil, err
		}
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewSessionRepository(db.Pool), db.Close, nil

	case "mongo":
		repo, err := mongo.Connect(ctx, cfg.Database.URI, cfg.Database.Database)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {
			if err := repo.Close(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Failed to disconnect from MongoDB")
			}
		}, nil

	case "mysql":
		repo, err := sqlstore.OpenMySQL(ctx, cfg.Database.MySQLDSN())
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil

	case "sqlite":
		repo, err := sqlstore.OpenSQLite(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil

	case "memory":
		log.Warn().Msg("Using in-memory session store; sessions are lost on restart")
		return memory.NewSessionRepository(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}

// newLLMRouter registers every provider; unconfigured ones stay listed but unusable
func newLLMRouter(cfg config.LLMConfig) *llm.Router {
	router := llm.NewRouter(cfg.DefaultProvider)
	router.RegisterProvider(openai.NewProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model))
	router.RegisterProvider(anthropic.NewProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model))
	router.RegisterProvider(deepseek.NewProvider(cfg.DeepSeek.APIKey, cfg.DeepSeek.Model))
	router.RegisterProvider(gemini.NewProvider(cfg.Gemini.APIKey, cfg.Gemini.Model))
	router.RegisterProvider(ollama.NewProvider(cfg.Ollama.Host, cfg.Ollama.DefaultModel))

	log.Info().Strs("providers", router.ListProviders()).Str("default", router.DefaultProvider()).Msg("LLM providers registered")
	return router
}

func newAssessor(cfg config.AssessmentConfig, router *llm.Router) (quality.Assessor, error) {
	if cfg.Strategy != "model" {
		return quality.NewKeywordAssessor(), nil
	}
	provider, err := router.GetProvider(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("assessment provider: %w", err)
	}
	return quality.NewModelAssessor(provider, cfg.Model), nil
}
