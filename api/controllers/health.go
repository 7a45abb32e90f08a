package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/semanticpdf/semanticpdf-backend/api/responses"
	"github.com/semanticpdf/semanticpdf-backend/pkg/config"
	"github.com/semanticpdf/semanticpdf-backend/pkg/logger"
)

const readyCheckTimeout = 2 * time.Second

// Pinger is the health check surface shared by the db and redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SemanticPDF-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness only when every backing store answers a ping.
func HealthReady(cfg *config.Config, logg *logger.Logger, checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SemanticPDF-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		statuses := make(map[string]string, len(checks))
		ready := true
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Ping(ctx); err != nil {
				statuses[name] = "down"
				ready = false
				if logg != nil {
					logg.Error(ctx, "readiness check failed for "+name, err)
				}
				continue
			}
			statuses[name] = "up"
		}

		if !ready {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"checks": statuses,
			})
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"status": "ready",
			"checks": statuses,
		})
	}
}
