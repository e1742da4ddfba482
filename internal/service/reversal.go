package service

import (
	"context"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/reconcile"
)

// ReversalPair is the result of linking two bank transactions.
type ReversalPair struct {
	First  domain.BankTransaction `json:"first"`
	Second domain.BankTransaction `json:"second"`
}

// FindReversalCandidates lists bank transactions that could net the given one
// to zero. A zero range searches all dates.
func (s *Service) FindReversalCandidates(ctx context.Context, bankID string, r domain.DateRange) ([]domain.BankTransaction, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	src, err := s.repo.GetBankTransaction(ctx, bankID)
	if err != nil {
		return nil, wrap("FindReversalCandidates", err)
	}
	pool, err := s.repo.ListBankTransactions(ctx, src.GoalID, r)
	if err != nil {
		return nil, wrap("FindReversalCandidates", err)
	}
	return reconcile.ReversalCandidates(*src, pool), nil
}

// LinkReversal pairs two bank transactions that cancel each other out.
func (s *Service) LinkReversal(ctx context.Context, id1, id2, linkedBy, notes string) (*ReversalPair, error) {
	const op = "LinkReversal"
	if id1 == "" || id2 == "" {
		return nil, domain.NewValidationError(op, "both transaction ids are required")
	}
	if id1 == id2 {
		return nil, domain.NewValidationError(op, "cannot link a transaction to itself")
	}
	if linkedBy == "" {
		return nil, domain.NewValidationError(op, "linked_by is required")
	}

	a, err := s.repo.GetBankTransaction(ctx, id1)
	if err != nil {
		return nil, wrap(op, err)
	}
	b, err := s.repo.GetBankTransaction(ctx, id2)
	if err != nil {
		return nil, wrap(op, err)
	}
	if err := reconcile.ValidateReversalPair(*a, *b); err != nil {
		return nil, err
	}

	at := s.now().UTC()
	review := domain.Review{
		Tag:        domain.ReviewTagReversalNetted,
		Notes:      notes,
		ReviewedBy: linkedBy,
		ReviewedAt: &at,
	}
	if err := s.repo.LinkReversal(ctx, id1, id2, review); err != nil {
		return nil, wrap(op, err)
	}
	s.invalidate()

	s.logger.Info().
		Str("first_id", id1).
		Str("second_id", id2).
		Str("goal_id", a.GoalID).
		Str("linked_by", linkedBy).
		Msg("Linked reversal pair")

	return s.pair(ctx, op, id1, id2)
}

// UnlinkReversal removes the pair that id belongs to, clearing both sides.
func (s *Service) UnlinkReversal(ctx context.Context, id string) (*ReversalPair, error) {
	const op = "UnlinkReversal"
	t, err := s.repo.GetBankTransaction(ctx, id)
	if err != nil {
		return nil, wrap(op, err)
	}
	if !t.InReversalPair() {
		return nil, domain.NewValidationError(op, "bank transaction "+id+" is not part of a reversal pair")
	}
	other := t.ReversalPairID
	if err := s.repo.UnlinkReversal(ctx, id, other); err != nil {
		return nil, wrap(op, err)
	}
	s.invalidate()

	s.logger.Info().Str("first_id", id).Str("second_id", other).Msg("Unlinked reversal pair")

	return s.pair(ctx, op, id, other)
}

func (s *Service) pair(ctx context.Context, op, id1, id2 string) (*ReversalPair, error) {
	a, err := s.repo.GetBankTransaction(ctx, id1)
	if err != nil {
		return nil, wrap(op, err)
	}
	b, err := s.repo.GetBankTransaction(ctx, id2)
	if err != nil {
		return nil, wrap(op, err)
	}
	return &ReversalPair{First: *a, Second: *b}, nil
}
