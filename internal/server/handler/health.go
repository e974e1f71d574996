package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/pipeline"
)

// ReadinessProbe reports whether the pipeline can run a cycle.
type ReadinessProbe interface {
	IsReady(ctx context.Context) pipeline.Readiness
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	probe  ReadinessProbe
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. A nil probe reports liveness
// only.
func NewHealthHandler(probe ReadinessProbe, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{probe: probe, logger: scopedLogger(logger, "health")}
}

// HealthCheck answers 200 when the pipeline's required collaborators
// respond and 503 otherwise. A degraded but ready pipeline still answers 200.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.probe == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	rd := h.probe.IsReady(r.Context())
	status, code := "ok", http.StatusOK
	switch {
	case !rd.Ready:
		status, code = "unavailable", http.StatusServiceUnavailable
		h.logger.WarnContext(r.Context(), "pipeline not ready", slog.Any("collaborators", rd.Collaborators))
	case rd.Degraded:
		status = "degraded"
	}
	writeJSON(w, code, map[string]any{
		"status":        status,
		"ready":         rd.Ready,
		"collaborators": rd.Collaborators,
		"timestamp":     rd.CheckedAt.Format(time.RFC3339),
	})
}
