package service

import (
	"context"
	"sync"
	"time"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// BatchRequest runs matching for many goals over one range. An empty GoalIDs
// means every goal. With Apply set, proposed matches are persisted.
type BatchRequest struct {
	Range   domain.DateRange `json:"range"`
	GoalIDs []string         `json:"goal_ids,omitempty"`
	Apply   bool             `json:"apply"`
}

// GoalFailure records why one goal in a batch failed.
type GoalFailure struct {
	GoalID string `json:"goal_id"`
	Error  string `json:"error"`
}

// BatchResult summarises a batch run. Failed goals do not stop the batch.
type BatchResult struct {
	RunID        string        `json:"run_id"`
	Goals        int           `json:"goals"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	MatchesFound int           `json:"matches_found"`
	UpdatedCount int           `json:"updated_count"`
	Failures     []GoalFailure `json:"failures,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Cancelled    bool          `json:"cancelled"`
}

// RunBatch matches goals in parallel, bounded by the worker count. Goals are
// independent so no state is shared beyond the result writes. Cancelling ctx
// skips goals not yet started; matches already applied stay applied.
func (s *Service) RunBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if err := req.Range.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	ctx, span := s.tracer.Start(ctx, "RunBatch")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", runID), attribute.Bool("apply", req.Apply))

	goalIDs := dedupe(req.GoalIDs)
	if len(goalIDs) == 0 {
		goals, err := s.repo.ListGoals(ctx)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, domain.NewProcessingError("RunBatch", err)
		}
		for _, g := range goals {
			goalIDs = append(goalIDs, g.ID)
		}
	}

	log := s.logger.With().Str("run_id", runID).Logger()
	log.Info().Int("goals", len(goalIDs)).Bool("apply", req.Apply).Msg("Starting batch reconciliation")

	res := &BatchResult{RunID: runID, Goals: len(goalIDs), StartedAt: s.now().UTC()}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for _, goalID := range goalIDs {
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				res.Skipped++
				mu.Unlock()
				return nil
			}

			found, updated, err := s.reconcileGoal(ctx, runID, goalID, req)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				res.Failures = append(res.Failures, GoalFailure{GoalID: goalID, Error: err.Error()})
				goalLog := logger.ForGoal(s.logger, runID, goalID)
				goalLog.Error().Err(err).Msg("Goal reconciliation failed")
				return nil
			}
			res.Succeeded++
			res.MatchesFound += found
			res.UpdatedCount += updated
			return nil
		})
	}
	_ = g.Wait()

	res.FinishedAt = s.now().UTC()
	res.Cancelled = ctx.Err() != nil
	span.SetAttributes(
		attribute.Int("succeeded", res.Succeeded),
		attribute.Int("failed", res.Failed),
		attribute.Int("skipped", res.Skipped),
	)

	log.Info().
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Int("matches_found", res.MatchesFound).
		Int("updated_count", res.UpdatedCount).
		Msg("Batch reconciliation finished")

	return res, nil
}

func (s *Service) reconcileGoal(ctx context.Context, runID, goalID string, req BatchRequest) (found, updated int, err error) {
	ctx, span := s.tracer.Start(ctx, "ReconcileGoal")
	defer span.End()
	span.SetAttributes(attribute.String("goal_id", goalID))

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	gt, err := s.GetGoalTransactions(ctx, goalID, req.Range)
	if err != nil {
		return 0, 0, err
	}
	found = len(gt.Matches)
	goalLog := logger.ForGoal(s.logger, runID, goalID)
	goalLog.Debug().
		Int("matches", found).
		Int("unmatched_bank", len(gt.UnmatchedBank)).
		Int("unmatched_goal", len(gt.UnmatchedGoal)).
		Msg("Matched goal")

	if !req.Apply || found == 0 {
		return found, 0, nil
	}
	applied, err := s.ApplyMatches(ctx, gt.Matches)
	return found, applied.UpdatedCount, err
}
