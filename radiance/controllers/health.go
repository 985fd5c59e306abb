package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"radiance/radiance/utils/logging"

	"go.uber.org/zap"
)

// HealthController reports service liveness plus the state of the session
// persistence layer. The service stays "ok" even when persistence is
// degraded: diagnosis chains run in memory regardless.
type HealthController struct {
	pingStore func(ctx context.Context) error // nil when no database is configured
}

func NewHealthController(pingStore func(ctx context.Context) error) *HealthController {
	return &HealthController{pingStore: pingStore}
}

type healthStatus struct {
	Status      string `json:"status"`
	Persistence string `json:"persistence"`
}

func (h *HealthController) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Status: "ok", Persistence: "disabled"}

	if h.pingStore != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pingStore(ctx); err != nil {
			logging.ErrorLogger.Error("health check: session store unreachable", zap.Error(err))
			status.Persistence = "degraded"
		} else {
			status.Persistence = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}
