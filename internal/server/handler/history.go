package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// ExecutionLister lists durable execution records.
type ExecutionLister interface {
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.ExecutionRecord, error)
}

// DecisionLister lists logged trading decisions.
type DecisionLister interface {
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TradingDecision, error)
}

// AuditLister lists audit entries.
type AuditLister interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// HistoryHandler serves the durable history kept in Postgres. Without
// Postgres every source is nil and the routes answer 404.
type HistoryHandler struct {
	executions ExecutionLister
	decisions  DecisionLister
	audit      AuditLister
	logger     *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler. Any source may be nil.
func NewHistoryHandler(executions ExecutionLister, decisions DecisionLister, audit AuditLister, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		executions: executions,
		decisions:  decisions,
		audit:      audit,
		logger:     scopedLogger(logger, "history"),
	}
}

// ListExecutions returns settled and failed orders, newest first.
// ?filter= selects one token mint.
// GET /api/executions
func (h *HistoryHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	if h.executions == nil {
		writeError(w, http.StatusNotFound, "execution history is not enabled")
		return
	}
	serveList(w, r, h.logger, "executions", h.executions.ListRecent)
}

// ListDecisions returns logged trading decisions, newest first.
// ?filter= selects one opportunity address.
// GET /api/decisions
func (h *HistoryHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	if h.decisions == nil {
		writeError(w, http.StatusNotFound, "decision history is not enabled")
		return
	}
	serveList(w, r, h.logger, "decisions", h.decisions.ListRecent)
}

// ListAudit returns audit entries, newest first. ?filter= is an event-name
// prefix such as "archive.".
// GET /api/audit
func (h *HistoryHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit log is not enabled")
		return
	}
	serveList(w, r, h.logger, "entries", h.audit.List)
}

func serveList[T any](
	w http.ResponseWriter,
	r *http.Request,
	logger *slog.Logger,
	field string,
	list func(context.Context, domain.ListOpts) ([]T, error),
) {
	opts, err := listOpts(r, 50, 500)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := list(r.Context(), opts)
	if err != nil {
		logger.ErrorContext(r.Context(), "list "+field, slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, field+" unavailable")
		return
	}
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		field:    items,
		"count":  len(items),
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}
