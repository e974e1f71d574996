package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// ActiveSource lists the pipeline's in-flight opportunities.
type ActiveSource interface {
	ActiveOpportunities() []domain.ValidatedOpportunity
}

// QueueReader reads the trading decision queue without consuming it.
type QueueReader interface {
	Peek(ctx context.Context, n int) ([]domain.TradingDecision, error)
	Len(ctx context.Context) (int64, error)
}

// OpportunityHandler serves the active opportunity set and the pending
// decision queue.
type OpportunityHandler struct {
	active ActiveSource
	queue  QueueReader
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler. Either source may be
// nil when its mode is not running.
func NewOpportunityHandler(active ActiveSource, queue QueueReader, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{active: active, queue: queue, logger: scopedLogger(logger, "opportunities")}
}

// ListOpportunities returns non-terminal opportunities ordered by score and
// the head of the decision queue.
// GET /api/opportunities
func (h *OpportunityHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 500)

	active := []domain.ValidatedOpportunity{}
	if h.active != nil {
		active = append(active, h.active.ActiveOpportunities()...)
		sort.Slice(active, func(i, j int) bool {
			if active[i].Raw.Score != active[j].Raw.Score {
				return active[i].Raw.Score > active[j].Raw.Score
			}
			return active[i].Raw.Address < active[j].Raw.Address
		})
		if len(active) > limit {
			active = active[:limit]
		}
	}

	resp := map[string]any{"active": active}
	if h.queue != nil {
		queued, err := h.queue.Peek(r.Context(), limit)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "peek decision queue", slog.String("error", err.Error()))
			writeError(w, http.StatusServiceUnavailable, "decision queue unavailable")
			return
		}
		depth, err := h.queue.Len(r.Context())
		if err != nil {
			h.logger.ErrorContext(r.Context(), "decision queue depth", slog.String("error", err.Error()))
			writeError(w, http.StatusServiceUnavailable, "decision queue unavailable")
			return
		}
		if queued == nil {
			queued = []domain.TradingDecision{}
		}
		resp["queued"] = queued
		resp["queue_depth"] = depth
	}
	writeJSON(w, http.StatusOK, resp)
}
