package service

import (
	"context"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/reconcile"
)

// ReviewBankTransaction tags one unresolved bank transaction.
func (s *Service) ReviewBankTransaction(ctx context.Context, id string, in domain.ReviewInput) (*domain.BankTransaction, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	b, err := s.repo.GetBankTransaction(ctx, id)
	if err != nil {
		return nil, wrap("ReviewBankTransaction", err)
	}
	if err := reconcile.CheckReviewable(*b); err != nil {
		return nil, err
	}
	if err := s.repo.ApplyBankReview(ctx, []string{id}, in.At(s.now())); err != nil {
		return nil, wrap("ReviewBankTransaction", err)
	}
	s.invalidate()

	s.logger.Info().
		Str("bank_transaction_id", id).
		Str("review_tag", string(in.Tag)).
		Str("reviewed_by", in.ReviewedBy).
		Msg("Reviewed bank transaction")

	updated, err := s.repo.GetBankTransaction(ctx, id)
	if err != nil {
		return nil, wrap("ReviewBankTransaction", err)
	}
	return updated, nil
}

// ReviewGoalTransaction tags a goal transaction. The review lands on every
// posting sharing the code in one write.
func (s *Service) ReviewGoalTransaction(ctx context.Context, code string, in domain.ReviewInput) (*domain.GoalTransaction, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	gt, err := s.goalTransaction(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := reconcile.CheckReviewableGoal(*gt); err != nil {
		return nil, err
	}
	if err := s.repo.ApplyGoalTransactionReview(ctx, []string{code}, in.At(s.now())); err != nil {
		return nil, wrap("ReviewGoalTransaction", err)
	}
	s.invalidate()

	s.logger.Info().
		Str("goal_transaction_code", code).
		Str("review_tag", string(in.Tag)).
		Str("reviewed_by", in.ReviewedBy).
		Msg("Reviewed goal transaction")

	return s.goalTransaction(ctx, code)
}

// BulkReviewRequest tags bank transactions and goal transactions together.
type BulkReviewRequest struct {
	BankTransactionIDs   []string `json:"bank_transaction_ids"`
	GoalTransactionCodes []string `json:"goal_transaction_codes"`
	domain.ReviewInput
}

// BulkReviewResult counts what was tagged.
type BulkReviewResult struct {
	BankUpdated int `json:"bank_updated"`
	GoalUpdated int `json:"goal_updated"`
}

// BulkReview checks every target first, then writes all of them in a single
// repository call. The repository repeats the claim checks inside its write.
func (s *Service) BulkReview(ctx context.Context, req BulkReviewRequest) (BulkReviewResult, error) {
	if err := req.ReviewInput.Validate(); err != nil {
		return BulkReviewResult{}, err
	}
	bankIDs := dedupe(req.BankTransactionIDs)
	codes := dedupe(req.GoalTransactionCodes)
	if len(bankIDs) == 0 && len(codes) == 0 {
		return BulkReviewResult{}, domain.NewValidationError("BulkReview", "no transactions given")
	}

	for _, id := range bankIDs {
		b, err := s.repo.GetBankTransaction(ctx, id)
		if err != nil {
			return BulkReviewResult{}, wrap("BulkReview", err)
		}
		if err := reconcile.CheckReviewable(*b); err != nil {
			return BulkReviewResult{}, err
		}
	}
	for _, code := range codes {
		gt, err := s.goalTransaction(ctx, code)
		if err != nil {
			return BulkReviewResult{}, err
		}
		if err := reconcile.CheckReviewableGoal(*gt); err != nil {
			return BulkReviewResult{}, err
		}
	}

	if err := s.repo.BulkReview(ctx, bankIDs, codes, req.ReviewInput.At(s.now())); err != nil {
		return BulkReviewResult{}, wrap("BulkReview", err)
	}
	s.invalidate()

	s.logger.Info().
		Int("bank_count", len(bankIDs)).
		Int("goal_count", len(codes)).
		Str("review_tag", string(req.Tag)).
		Msg("Bulk review applied")

	return BulkReviewResult{BankUpdated: len(bankIDs), GoalUpdated: len(codes)}, nil
}

// GetGoalReviewStatus places a goal in the review lattice for a range.
func (s *Service) GetGoalReviewStatus(ctx context.Context, goalID string, r domain.DateRange) (reconcile.ReviewStatus, error) {
	data, err := s.loadGoal(ctx, goalID, r)
	if err != nil {
		return reconcile.ReviewStatus{}, err
	}
	return reconcile.GoalReviewStatus(goalID, data.BankTransactions, data.GoalTransactions), nil
}

// VarianceTransactions lists a goal's unmatched items with their review state.
type VarianceTransactions struct {
	GoalID        string                   `json:"goal_id"`
	Range         domain.DateRange         `json:"range"`
	Status        domain.ReviewStatus      `json:"review_status"`
	UnmatchedBank []domain.BankTransaction `json:"unmatched_bank"`
	UnmatchedGoal []domain.GoalTransaction `json:"unmatched_goal"`
}

// GetVarianceTransactions returns the items that drive the review status.
func (s *Service) GetVarianceTransactions(ctx context.Context, goalID string, r domain.DateRange) (*VarianceTransactions, error) {
	data, err := s.loadGoal(ctx, goalID, r)
	if err != nil {
		return nil, err
	}
	u := reconcile.FindUnmatched(data.BankTransactions, data.GoalTransactions)
	return &VarianceTransactions{
		GoalID:        goalID,
		Range:         r,
		Status:        reconcile.StatusOf(u),
		UnmatchedBank: u.Bank,
		UnmatchedGoal: u.Goal,
	}, nil
}

// goalTransaction rebuilds one goal transaction from its postings.
func (s *Service) goalTransaction(ctx context.Context, code string) (*domain.GoalTransaction, error) {
	if code == "" {
		return nil, domain.NewValidationError("GoalTransaction", "goal_transaction_code is required")
	}
	postings, err := s.repo.ListPostingsByCode(ctx, code)
	if err != nil {
		return nil, wrap("GoalTransaction", err)
	}
	if len(postings) == 0 {
		return nil, domain.NewNotFoundError("GoalTransaction", "goal transaction "+code+" not found")
	}
	gts, err := reconcile.Aggregate(postings)
	if err != nil {
		return nil, err
	}
	return &gts[0], nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
