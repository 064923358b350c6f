package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/davidpalacios/shopline-backend/api/responses"
	"github.com/davidpalacios/shopline-backend/pkg/config"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

// Pinger is implemented by infrastructure clients that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Shopline-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady checks the wired dependencies. A nil pinger is skipped so the
// endpoint works in partial configurations (e.g. sqlite dev without Redis).
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Shopline-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
