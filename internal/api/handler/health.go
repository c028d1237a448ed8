package handler

import (
	"context"
	"net/http"

	"github.com/Rrens/onboarding-sync/internal/api/response"
	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/llm"
)

// Pinger is a dependency whose reachability gates readiness
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck returns a simple health check response
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "ok",
	})
}

// ReadyCheck returns readiness status including store connectivity.
// Named dependencies may be nil when disabled.
func ReadyCheck(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(r.Context()); err != nil {
				response.Error(w, http.StatusServiceUnavailable, name+" not ready")
				return
			}
		}

		response.OK(w, map[string]string{
			"status": "ready",
		})
	}
}

// ListStages returns the stage catalog
func ListStages(catalog *domain.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]any{
			"stages": catalog.Stages(),
			"total":  catalog.Len(),
		})
	}
}

// ListProviders returns the registered LLM providers and their models
func ListProviders(router *llm.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]any{
			"providers": router.GetProvidersInfo(),
			"default":   router.DefaultProvider(),
		})
	}
}
