package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/baselhussain/ketoplan-backend/api/responses"
	"github.com/baselhussain/ketoplan-backend/pkg/config"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
)

const readyProbeTimeout = 3 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-KetoPlan-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady probes each hard dependency with a short timeout. Any failure
// reports not-ready so the load balancer drains the instance.
func HealthReady(cfg *config.Config, logg *logger.Logger, db, redis, gcs pinger) http.HandlerFunc {
	probes := map[string]pinger{
		"database": db,
		"redis":    redis,
		"storage":  gcs,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-KetoPlan-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
		defer cancel()

		status := map[string]string{}
		ready := true
		for name, probe := range probes {
			if probe == nil {
				status[name] = "skipped"
				continue
			}
			if err := probe.Ping(ctx); err != nil {
				status[name] = "down"
				ready = false
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", name), "readiness probe failed", err)
				}
				continue
			}
			status[name] = "up"
		}

		if !ready {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, status)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
