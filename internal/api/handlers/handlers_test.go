package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/jobs"
	"github.com/dvloznov/goal-reconciliation/internal/jobs/inmemory"
	"github.com/dvloznov/goal-reconciliation/internal/logger"
	"github.com/dvloznov/goal-reconciliation/internal/service"
	"github.com/dvloznov/goal-reconciliation/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	mux      *http.ServeMux
	store    *memory.Store
	jobStore *inmemory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.NewWithWriter(io.Discard)
	st := memory.New()
	svc := service.New(st, log, service.Options{DateWindowDays: 30})
	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(10, 1, jobStore, log)
	t.Cleanup(func() { queue.Close() })

	mux := http.NewServeMux()
	NewReconciliationHandler(svc, log).Register(mux)
	NewReviewHandler(svc, log).Register(mux)
	NewJobsHandler(queue, jobStore, log).Register(mux)
	mux.HandleFunc("GET /health", Health)

	ctx := context.Background()
	d := civil.Date{Year: 2025, Month: 1, Day: 15}
	require.NoError(t, st.SaveGoals(ctx, []domain.Goal{{ID: "g1", GoalNumber: "G1", AccountID: "a1", AccountNumber: "A1", ClientName: "Jane Doe"}}))
	require.NoError(t, st.SaveBankTransactions(ctx, []domain.BankTransaction{
		{ID: "b1", GoalID: "g1", ExternalTransactionID: "TXN1", TransactionType: domain.TransactionTypeDeposit, TransactionDate: d, TotalAmount: decimal.NewFromInt(500000), FundAmounts: domain.FundAmounts{decimal.NewFromInt(500000)}},
		{ID: "b2", GoalID: "g1", TransactionType: domain.TransactionTypeDeposit, TransactionDate: d, TotalAmount: decimal.NewFromInt(70000)},
		{ID: "b3", GoalID: "g1", TransactionType: domain.TransactionTypeWithdrawal, TransactionDate: d, TotalAmount: decimal.NewFromInt(70000)},
	}))
	require.NoError(t, st.SaveLedgerPostings(ctx, []domain.LedgerPosting{
		{ID: "p1", GoalID: "g1", FundCode: "MMF", ExternalTransactionID: "TXN1", TransactionType: domain.TransactionTypeDeposit, TransactionDate: d, Amount: decimal.NewFromInt(500000), GoalTransactionCode: "c1"},
	}))

	return &testServer{mux: mux, store: st, jobStore: jobStore}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestGoalTransactions(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/goals/g1/transactions?from=2025-01-01&to=2025-01-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got service.GoalTransactions
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Matches, 1)
	assert.Equal(t, domain.MatchTypeExact, got.Matches[0].Type)
	assert.Len(t, got.UnmatchedBank, 2)
}

func TestGoalTransactions_ErrorMapping(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/goals/nope/transactions", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/goals/g1/transactions?from=2025-13-01", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/goals/g1/transactions?from=2025-02-01&to=2025-01-01", nil).Code)
}

func TestGoalSummary(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/goals/summary?client_name=jane&page=1&page_size=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Goals      []json.RawMessage `json:"goals"`
		TotalCount int               `json:"total_count"`
		PageSize   int               `json:"page_size"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.TotalCount)
	assert.Equal(t, 10, got.PageSize)
	assert.Len(t, got.Goals, 1)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/goals/summary?status=bogus", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/goals/summary?page=x", nil).Code)
}

func TestFundSummary(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/funds/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"fund_code":"MMF"`)
}

func TestApplyMatches(t *testing.T) {
	s := newTestServer(t)
	body := map[string]interface{}{
		"matches": []domain.Match{{
			Type:                 domain.MatchTypeExact,
			Confidence:           1,
			BankTransactionIDs:   []string{"b1"},
			GoalTransactionCodes: []string{"c1"},
		}},
	}

	rec := s.do(t, http.MethodPost, "/api/matches/apply", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated_count":1}`, rec.Body.String())

	b, err := s.store.GetBankTransaction(context.Background(), "b1")
	require.NoError(t, err)
	assert.True(t, b.Matched())
}

func TestReviewFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/bank-transactions/b2/review", domain.ReviewInput{
		Tag: domain.ReviewTagTimingDifference, ReviewedBy: "ops",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/bank-transactions/b2/review", domain.ReviewInput{
		Tag: domain.ReviewTagReversalNetted, ReviewedBy: "ops",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/goals/g1/review-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(domain.ReviewStatusPartiallyReviewed))
}

func TestReversalFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/bank-transactions/b2/reversal-candidates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	link := map[string]string{"first_id": "b2", "second_id": "b3", "linked_by": "ops"}
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/reversals", link).Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/reversals", link).Code)

	// Paired transactions cannot be reviewed.
	rec = s.do(t, http.MethodPost, "/api/bank-transactions/b2/review", domain.ReviewInput{
		Tag: domain.ReviewTagOther, ReviewedBy: "ops",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/reversals/b3", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodDelete, "/api/reversals/b3", nil).Code)
}

func TestJobs(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/jobs/reconcile", map[string]interface{}{"from": "2025-01-01", "to": "2025-01-31"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted["job_id"])
	assert.Equal(t, string(jobs.JobStatusPending), accepted["status"])

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/jobs/"+accepted["job_id"], nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/jobs/missing", nil).Code)

	rec = s.do(t, http.MethodGet, "/api/jobs?status=pending&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	bad := s.do(t, http.MethodPost, "/api/jobs/reconcile", map[string]interface{}{"from": "2025-02-01", "to": "2025-01-01"})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestRunBatch(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/batch", map[string]interface{}{"apply": true})
	require.Equal(t, http.StatusOK, rec.Code)

	var res service.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.UpdatedCount)
}

func TestHealthAndBadBody(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reviews/bulk", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
