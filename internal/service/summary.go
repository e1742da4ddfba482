package service

import (
	"context"
	"fmt"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/reconcile"
	"github.com/patrickmn/go-cache"
)

// GetGoalSummary returns one page of goal summaries and totals over every
// goal that passed the filter. Results are cached until the next write.
func (s *Service) GetGoalSummary(ctx context.Context, f reconcile.SummaryFilter, r domain.DateRange, page reconcile.Page) (*reconcile.GoalSummaryPage, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	page = page.Normalize()

	key := fmt.Sprintf("goals|%+v|%s|%s|%d|%d", f, r.From, r.To, page.Number, page.Size)
	if v, ok := s.cache.Get(key); ok {
		cached := v.(reconcile.GoalSummaryPage)
		return &cached, nil
	}

	summaries, err := s.summaries(ctx, f, r)
	if err != nil {
		return nil, err
	}
	out := s.projector.GoalPage(summaries, f, page)
	s.cache.Set(key, out, cache.DefaultExpiration)
	return &out, nil
}

// GetFundSummary rolls every goal that passed the filter up per fund.
func (s *Service) GetFundSummary(ctx context.Context, f reconcile.SummaryFilter, r domain.DateRange) ([]reconcile.FundSummary, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("funds|%+v|%s|%s", f, r.From, r.To)
	if v, ok := s.cache.Get(key); ok {
		return v.([]reconcile.FundSummary), nil
	}

	summaries, err := s.summaries(ctx, f, r)
	if err != nil {
		return nil, err
	}
	var kept []reconcile.GoalSummary
	for _, sum := range summaries {
		if f.MatchesSummary(sum) {
			kept = append(kept, sum)
		}
	}
	out := s.projector.Funds(kept)
	s.cache.Set(key, out, cache.DefaultExpiration)
	return out, nil
}

// summaries projects every goal passing the goal-level filters. Failures
// here are not operator-correctable and surface as ProcessingErrors.
func (s *Service) summaries(ctx context.Context, f reconcile.SummaryFilter, r domain.DateRange) ([]reconcile.GoalSummary, error) {
	ctx, span := s.tracer.Start(ctx, "Summaries")
	defer span.End()

	goals, err := s.repo.ListGoals(ctx)
	if err != nil {
		return nil, domain.NewProcessingError("Summaries", err)
	}

	var out []reconcile.GoalSummary
	for _, g := range goals {
		if !f.MatchesGoal(g) {
			continue
		}
		data, err := s.loadGoalData(ctx, g, r)
		if err != nil {
			return nil, domain.NewProcessingError("Summaries", fmt.Errorf("goal %s: %w", g.ID, err))
		}
		out = append(out, s.projector.Goal(data))
	}
	return out, nil
}
