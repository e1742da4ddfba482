package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/goal-reconciliation/internal/api/middleware"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/jobs"
	"github.com/dvloznov/goal-reconciliation/internal/reconcile"
	"github.com/dvloznov/goal-reconciliation/internal/service"
	"github.com/rs/zerolog"
)

// ReconciliationHandler serves matching and summary endpoints.
type ReconciliationHandler struct {
	svc *service.Service
	log zerolog.Logger
}

// NewReconciliationHandler creates a new reconciliation handler.
func NewReconciliationHandler(svc *service.Service, log zerolog.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{svc: svc, log: log}
}

// Register adds the handler's routes to mux.
func (h *ReconciliationHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/goals/summary", h.GoalSummary)
	mux.HandleFunc("GET /api/funds/summary", h.FundSummary)
	mux.HandleFunc("GET /api/goals/{id}/transactions", h.GoalTransactions)
	mux.HandleFunc("POST /api/matches/apply", h.ApplyMatches)
	mux.HandleFunc("POST /api/batch", h.RunBatch)
}

// GoalSummary handles GET /api/goals/summary
func (h *ReconciliationHandler) GoalSummary(w http.ResponseWriter, r *http.Request) {
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}
	page, ok := parsePage(w, r)
	if !ok {
		return
	}

	res, err := h.svc.GetGoalSummary(r.Context(), parseFilter(r), rng, page)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// FundSummary handles GET /api/funds/summary
func (h *ReconciliationHandler) FundSummary(w http.ResponseWriter, r *http.Request) {
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}

	funds, err := h.svc.GetFundSummary(r.Context(), parseFilter(r), rng)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"funds": funds,
		"count": len(funds),
	})
}

// GoalTransactions handles GET /api/goals/{id}/transactions
func (h *ReconciliationHandler) GoalTransactions(w http.ResponseWriter, r *http.Request) {
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}

	res, err := h.svc.GetGoalTransactions(r.Context(), r.PathValue("id"), rng)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// ApplyMatches handles POST /api/matches/apply
func (h *ReconciliationHandler) ApplyMatches(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Matches []domain.Match `json:"matches"`
	}
	if !decode(w, r, &req) {
		return
	}

	res, err := h.svc.ApplyMatches(r.Context(), req.Matches)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// RunBatch handles POST /api/batch and runs matching synchronously. Long
// ranges should go through POST /api/jobs/reconcile instead.
func (h *ReconciliationHandler) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From    string   `json:"from"`
		To      string   `json:"to"`
		GoalIDs []string `json:"goal_ids"`
		Apply   bool     `json:"apply"`
	}
	if !decode(w, r, &req) {
		return
	}
	rng, err := rangeOf(req.From, req.To)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}

	res, err := h.svc.RunBatch(r.Context(), service.BatchRequest{Range: rng, GoalIDs: req.GoalIDs, Apply: req.Apply})
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// ReviewHandler serves review, variance and reversal endpoints.
type ReviewHandler struct {
	svc *service.Service
	log zerolog.Logger
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(svc *service.Service, log zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{svc: svc, log: log}
}

// Register adds the handler's routes to mux.
func (h *ReviewHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/bank-transactions/{id}/review", h.ReviewBankTransaction)
	mux.HandleFunc("POST /api/goal-transactions/{code}/review", h.ReviewGoalTransaction)
	mux.HandleFunc("POST /api/reviews/bulk", h.BulkReview)
	mux.HandleFunc("GET /api/goals/{id}/review-status", h.ReviewStatus)
	mux.HandleFunc("GET /api/goals/{id}/variance-transactions", h.VarianceTransactions)
	mux.HandleFunc("GET /api/bank-transactions/{id}/reversal-candidates", h.ReversalCandidates)
	mux.HandleFunc("POST /api/reversals", h.LinkReversal)
	mux.HandleFunc("DELETE /api/reversals/{id}", h.UnlinkReversal)
}

// ReviewBankTransaction handles POST /api/bank-transactions/{id}/review
func (h *ReviewHandler) ReviewBankTransaction(w http.ResponseWriter, r *http.Request) {
	var in domain.ReviewInput
	if !decode(w, r, &in) {
		return
	}

	txn, err := h.svc.ReviewBankTransaction(r.Context(), r.PathValue("id"), in)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, txn)
}

// ReviewGoalTransaction handles POST /api/goal-transactions/{code}/review
func (h *ReviewHandler) ReviewGoalTransaction(w http.ResponseWriter, r *http.Request) {
	var in domain.ReviewInput
	if !decode(w, r, &in) {
		return
	}

	gt, err := h.svc.ReviewGoalTransaction(r.Context(), r.PathValue("code"), in)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, gt)
}

// BulkReview handles POST /api/reviews/bulk
func (h *ReviewHandler) BulkReview(w http.ResponseWriter, r *http.Request) {
	var req service.BulkReviewRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.svc.BulkReview(r.Context(), req)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// ReviewStatus handles GET /api/goals/{id}/review-status
func (h *ReviewHandler) ReviewStatus(w http.ResponseWriter, r *http.Request) {
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}

	st, err := h.svc.GetGoalReviewStatus(r.Context(), r.PathValue("id"), rng)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, st)
}

// VarianceTransactions handles GET /api/goals/{id}/variance-transactions
func (h *ReviewHandler) VarianceTransactions(w http.ResponseWriter, r *http.Request) {
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}

	res, err := h.svc.GetVarianceTransactions(r.Context(), r.PathValue("id"), rng)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// ReversalCandidates handles GET /api/bank-transactions/{id}/reversal-candidates
func (h *ReviewHandler) ReversalCandidates(w http.ResponseWriter, r *http.Request) {
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}

	candidates, err := h.svc.FindReversalCandidates(r.Context(), r.PathValue("id"), rng)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	if candidates == nil {
		candidates = []domain.BankTransaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"candidates": candidates,
		"count":      len(candidates),
	})
}

// LinkReversal handles POST /api/reversals
func (h *ReviewHandler) LinkReversal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstID  string `json:"first_id"`
		SecondID string `json:"second_id"`
		LinkedBy string `json:"linked_by"`
		Notes    string `json:"notes"`
	}
	if !decode(w, r, &req) {
		return
	}

	pair, err := h.svc.LinkReversal(r.Context(), req.FirstID, req.SecondID, req.LinkedBy, req.Notes)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, pair)
}

// UnlinkReversal handles DELETE /api/reversals/{id}
func (h *ReviewHandler) UnlinkReversal(w http.ResponseWriter, r *http.Request) {
	pair, err := h.svc.UnlinkReversal(r.Context(), r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, pair)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		publisher: publisher,
		store:     store,
		log:       log,
	}
}

// Register adds the handler's routes to mux.
func (h *JobsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/jobs/reconcile", h.EnqueueReconcile)
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
}

// EnqueueReconcile handles POST /api/jobs/reconcile
func (h *JobsHandler) EnqueueReconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From        string   `json:"from"`
		To          string   `json:"to"`
		GoalIDs     []string `json:"goal_ids"`
		Apply       bool     `json:"apply"`
		RequestedBy string   `json:"requested_by"`
	}
	if !decode(w, r, &req) {
		return
	}
	rng, err := rangeOf(req.From, req.To)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}

	job := &jobs.ReconcileJob{
		Range:       rng,
		GoalIDs:     req.GoalIDs,
		Apply:       req.Apply,
		RequestedBy: req.RequestedBy,
	}
	if err := h.publisher.PublishReconcile(r.Context(), job); err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}

	h.log.Info().Str("job_id", job.JobID).Bool("apply", job.Apply).Msg("Reconcile job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// rangeOf parses YYYY-MM-DD bounds. Empty bounds are open.
func rangeOf(from, to string) (domain.DateRange, error) {
	var rng domain.DateRange
	var err error
	if from = strings.TrimSpace(from); from != "" {
		if rng.From, err = civil.ParseDate(from); err != nil {
			return rng, domain.NewValidationError("DateRange", "invalid from date "+from)
		}
	}
	if to = strings.TrimSpace(to); to != "" {
		if rng.To, err = civil.ParseDate(to); err != nil {
			return rng, domain.NewValidationError("DateRange", "invalid to date "+to)
		}
	}
	return rng, rng.Validate()
}

func parseRange(w http.ResponseWriter, r *http.Request) (domain.DateRange, bool) {
	q := r.URL.Query()
	rng, err := rangeOf(q.Get("from"), q.Get("to"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return rng, false
	}
	return rng, true
}

func parsePage(w http.ResponseWriter, r *http.Request) (reconcile.Page, bool) {
	var p reconcile.Page
	q := r.URL.Query()
	for name, dst := range map[string]*int{"page": &p.Number, "page_size": &p.Size} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid "+name)
			return p, false
		}
		*dst = n
	}
	return p, true
}

func parseFilter(r *http.Request) reconcile.SummaryFilter {
	q := r.URL.Query()
	return reconcile.SummaryFilter{
		GoalID:       q.Get("goal_id"),
		AccountID:    q.Get("account_id"),
		ClientName:   q.Get("client_name"),
		Status:       reconcile.VarianceStatus(strings.ToUpper(q.Get("status"))),
		ReviewStatus: domain.ReviewStatus(strings.ToUpper(q.Get("review_status"))),
	}
}
