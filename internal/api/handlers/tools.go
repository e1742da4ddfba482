package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/dvloznov/goal-reconciliation/internal/api/middleware"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/export"
	"github.com/dvloznov/goal-reconciliation/internal/notionsync"
	"github.com/dvloznov/goal-reconciliation/internal/reconcile"
	"github.com/dvloznov/goal-reconciliation/internal/reviewassist"
	"github.com/rs/zerolog"
)

// ReportExporter uploads a variance report.
type ReportExporter interface {
	Export(ctx context.Context, f reconcile.SummaryFilter, r domain.DateRange) (*export.Report, error)
}

// BoardSyncer publishes unmatched items to the review board.
type BoardSyncer interface {
	Sync(ctx context.Context, f reconcile.SummaryFilter, r domain.DateRange, dryRun bool) (*notionsync.Result, error)
}

// NoteSuggester drafts review notes.
type NoteSuggester interface {
	SuggestNote(ctx context.Context, goalID string, target reviewassist.Target, r domain.DateRange) (*reviewassist.Suggestion, error)
}

// ToolsHandler serves the integrations. Any of them may be nil when not
// configured; their routes then answer 503.
type ToolsHandler struct {
	exporter  ReportExporter
	board     BoardSyncer
	assistant NoteSuggester
	log       zerolog.Logger
}

// NewToolsHandler creates a new tools handler.
func NewToolsHandler(exporter ReportExporter, board BoardSyncer, assistant NoteSuggester, log zerolog.Logger) *ToolsHandler {
	return &ToolsHandler{exporter: exporter, board: board, assistant: assistant, log: log}
}

// Register adds the handler's routes to mux.
func (h *ToolsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/exports", h.Export)
	mux.HandleFunc("POST /api/review-board/sync", h.SyncBoard)
	mux.HandleFunc("POST /api/goals/{id}/suggest-note", h.SuggestNote)
}

type selectionRequest struct {
	From         string `json:"from"`
	To           string `json:"to"`
	GoalID       string `json:"goal_id"`
	AccountID    string `json:"account_id"`
	ClientName   string `json:"client_name"`
	Status       string `json:"status"`
	ReviewStatus string `json:"review_status"`
}

func (s selectionRequest) filter() reconcile.SummaryFilter {
	return reconcile.SummaryFilter{
		GoalID:       s.GoalID,
		AccountID:    s.AccountID,
		ClientName:   s.ClientName,
		Status:       reconcile.VarianceStatus(strings.ToUpper(s.Status)),
		ReviewStatus: domain.ReviewStatus(strings.ToUpper(s.ReviewStatus)),
	}
}

// Export handles POST /api/exports
func (h *ToolsHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Report export is not configured")
		return
	}
	var req selectionRequest
	if !decode(w, r, &req) {
		return
	}
	rng, err := rangeOf(req.From, req.To)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}

	report, err := h.exporter.Export(r.Context(), req.filter(), rng)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, report)
}

// SyncBoard handles POST /api/review-board/sync
func (h *ToolsHandler) SyncBoard(w http.ResponseWriter, r *http.Request) {
	if h.board == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Review board is not configured")
		return
	}
	var req struct {
		selectionRequest
		DryRun bool `json:"dry_run"`
	}
	if !decode(w, r, &req) {
		return
	}
	rng, err := rangeOf(req.From, req.To)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}

	res, err := h.board.Sync(r.Context(), req.filter(), rng, req.DryRun)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// SuggestNote handles POST /api/goals/{id}/suggest-note
func (h *ToolsHandler) SuggestNote(w http.ResponseWriter, r *http.Request) {
	if h.assistant == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Review assistant is not configured")
		return
	}
	var req struct {
		From string `json:"from"`
		To   string `json:"to"`
		reviewassist.Target
	}
	if !decode(w, r, &req) {
		return
	}
	rng, err := rangeOf(req.From, req.To)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}

	s, err := h.assistant.SuggestNote(r.Context(), r.PathValue("id"), req.Target, rng)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, s)
}
