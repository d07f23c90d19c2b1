package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielcastano/rentora-backend/api/responses"
	"github.com/danielcastano/rentora-backend/pkg/config"
	"github.com/danielcastano/rentora-backend/pkg/db"
	pkgerrors "github.com/danielcastano/rentora-backend/pkg/errors"
	"github.com/danielcastano/rentora-backend/pkg/logger"
	"github.com/danielcastano/rentora-backend/pkg/redis"
)

const readinessTimeout = 2 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Rentora-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the backing stores and fails if any is unreachable.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Rentora-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]error{}
		if dbP != nil {
			checks["db"] = dbP.Ping(ctx)
		}
		if redisP != nil {
			checks["redis"] = redisP.Ping(ctx)
		}

		failed := map[string]string{}
		for name, err := range checks {
			if err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(failed))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
