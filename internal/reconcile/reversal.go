package reconcile

import (
	"fmt"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
)

// IsReversalCandidate reports whether cand could net src to zero: same goal,
// opposite type, equal absolute amount, unmatched and not already paired.
func IsReversalCandidate(src, cand domain.BankTransaction) bool {
	if cand.ID == src.ID || cand.GoalID != src.GoalID {
		return false
	}
	if cand.TransactionType != src.TransactionType.Opposite() {
		return false
	}
	if !cand.TotalAmount.Abs().Equal(src.TotalAmount.Abs()) {
		return false
	}
	return !cand.Matched() && !cand.InReversalPair()
}

// ReversalCandidates filters pool down to candidates for src, keeping order.
func ReversalCandidates(src domain.BankTransaction, pool []domain.BankTransaction) []domain.BankTransaction {
	var out []domain.BankTransaction
	for _, c := range pool {
		if IsReversalCandidate(src, c) {
			out = append(out, c)
		}
	}
	return out
}

// ValidateReversalPair checks whether a and b may be linked. Shape problems
// are validation errors; transactions already resolved are conflicts.
func ValidateReversalPair(a, b domain.BankTransaction) error {
	const op = "LinkReversal"
	if a.ID == b.ID {
		return domain.NewValidationError(op, "cannot link a transaction to itself")
	}
	if a.GoalID != b.GoalID {
		return domain.NewValidationError(op, fmt.Sprintf("transactions belong to different goals (%s, %s)", a.GoalID, b.GoalID))
	}
	if a.TransactionType == b.TransactionType {
		return domain.NewValidationError(op, "transactions must have opposite types")
	}
	if !a.TotalAmount.Abs().Equal(b.TotalAmount.Abs()) {
		return domain.NewValidationError(op, fmt.Sprintf("amounts differ (%s vs %s)", a.TotalAmount, b.TotalAmount))
	}
	for _, t := range []domain.BankTransaction{a, b} {
		if t.Matched() {
			return domain.NewConflictError(op, "bank transaction "+t.ID+" is already matched")
		}
		if t.InReversalPair() {
			return domain.NewConflictError(op, "bank transaction "+t.ID+" is already part of a reversal pair")
		}
	}
	return nil
}
