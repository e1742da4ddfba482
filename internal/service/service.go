// Package service exposes the reconciliation operations on top of a
// store.Repository: matching, review, reversal linking, summaries and batch
// runs.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/reconcile"
	"github.com/dvloznov/goal-reconciliation/internal/store"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dvloznov/goal-reconciliation/internal/service"

// Options tune the service. Zero values fall back to defaults, except
// DateWindowDays where zero means same-day only and a negative value selects
// the default.
type Options struct {
	Tolerance      reconcile.Tolerance
	DateWindowDays int
	BatchWorkers   int
	CacheTTL       time.Duration
	Now            func() time.Time
}

// Service runs reconciliation over a repository. It keeps no state between
// calls apart from the summary cache, which every write flushes.
type Service struct {
	repo       store.Repository
	matcher    *reconcile.Matcher
	projector  *reconcile.Projector
	windowDays int
	workers    int
	cache      *cache.Cache
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// New creates a Service.
func New(repo store.Repository, logger zerolog.Logger, opts Options) *Service {
	tol := opts.Tolerance
	if tol.Relative.IsZero() && tol.AbsoluteFloor.IsZero() {
		tol = reconcile.DefaultTolerance()
	}
	if opts.DateWindowDays < 0 {
		opts.DateWindowDays = reconcile.DefaultDateWindowDays
	}
	if opts.BatchWorkers < 1 {
		opts.BatchWorkers = 4
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:       repo,
		matcher:    reconcile.NewMatcher(tol),
		projector:  reconcile.NewProjector(tol),
		windowDays: opts.DateWindowDays,
		workers:    opts.BatchWorkers,
		cache:      cache.New(opts.CacheTTL, 2*opts.CacheTTL),
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
		now:        opts.Now,
	}
}

// GoalTransactions is the full reconciliation view of one goal.
type GoalTransactions struct {
	Goal             domain.Goal              `json:"goal"`
	Range            domain.DateRange         `json:"range"`
	BankTransactions []domain.BankTransaction `json:"bank_transactions"`
	GoalTransactions []domain.GoalTransaction `json:"goal_transactions"`
	Matches          []domain.Match           `json:"matches"`
	UnmatchedBank    []domain.BankTransaction `json:"unmatched_bank"`
	UnmatchedGoal    []domain.GoalTransaction `json:"unmatched_goal"`
}

// GetGoalTransactions loads a goal's records and runs the matcher over them.
// Records already matched or in a reversal pair are resolved and left out of
// matching, so proposals never claim them twice. Nothing is written.
func (s *Service) GetGoalTransactions(ctx context.Context, goalID string, r domain.DateRange) (*GoalTransactions, error) {
	data, err := s.loadGoal(ctx, goalID, r)
	if err != nil {
		return nil, err
	}

	var bank []domain.BankTransaction
	for _, b := range data.BankTransactions {
		if !b.Matched() && !b.InReversalPair() {
			bank = append(bank, b)
		}
	}
	var goals []domain.GoalTransaction
	for _, g := range data.GoalTransactions {
		if !g.Matched() {
			goals = append(goals, g)
		}
	}
	res := s.matcher.Match(bank, goals, s.windowDays)

	return &GoalTransactions{
		Goal:             data.Goal,
		Range:            r,
		BankTransactions: data.BankTransactions,
		GoalTransactions: data.GoalTransactions,
		Matches:          res.Matches,
		UnmatchedBank:    res.UnmatchedBank,
		UnmatchedGoal:    res.UnmatchedGoal,
	}, nil
}

// ApplyResult reports how many bank transactions were updated.
type ApplyResult struct {
	UpdatedCount int `json:"updated_count"`
}

// ApplyMatches persists matches one at a time, each atomically. A match that
// names a record already matched or paired fails with a Conflict. On failure
// the matches already applied stay applied and the count reflects them.
func (s *Service) ApplyMatches(ctx context.Context, matches []domain.Match) (ApplyResult, error) {
	var res ApplyResult
	for i, m := range matches {
		if err := m.Validate(); err != nil {
			return res, err
		}
		if err := s.repo.ApplyMatch(ctx, m); err != nil {
			return res, wrap("ApplyMatches", err)
		}
		res.UpdatedCount += len(m.BankTransactionIDs)
		s.logger.Debug().
			Int("index", i).
			Str("match_type", string(m.Type)).
			Strs("bank_transaction_ids", m.BankTransactionIDs).
			Strs("goal_transaction_codes", m.GoalTransactionCodes).
			Msg("Applied match")
	}
	if len(matches) > 0 {
		s.invalidate()
	}
	return res, nil
}

// loadGoal fetches one goal's records and aggregates its postings.
func (s *Service) loadGoal(ctx context.Context, goalID string, r domain.DateRange) (reconcile.GoalData, error) {
	if goalID == "" {
		return reconcile.GoalData{}, domain.NewValidationError("LoadGoal", "goal_id is required")
	}
	if err := r.Validate(); err != nil {
		return reconcile.GoalData{}, err
	}
	goal, err := s.repo.GetGoal(ctx, goalID)
	if err != nil {
		return reconcile.GoalData{}, wrap("LoadGoal", err)
	}
	return s.loadGoalData(ctx, *goal, r)
}

func (s *Service) loadGoalData(ctx context.Context, goal domain.Goal, r domain.DateRange) (reconcile.GoalData, error) {
	bank, err := s.repo.ListBankTransactions(ctx, goal.ID, r)
	if err != nil {
		return reconcile.GoalData{}, wrap("LoadGoal", err)
	}
	postings, err := s.repo.ListLedgerPostings(ctx, goal.ID, r)
	if err != nil {
		return reconcile.GoalData{}, wrap("LoadGoal", err)
	}
	goalTxns, err := reconcile.Aggregate(postings)
	if err != nil {
		return reconcile.GoalData{}, err
	}
	return reconcile.GoalData{Goal: goal, BankTransactions: bank, GoalTransactions: goalTxns}, nil
}

func (s *Service) invalidate() {
	s.cache.Flush()
}

// wrap keeps domain errors as they are and turns anything else into a
// ProcessingError.
func wrap(op string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.NewProcessingError(op, err)
}
