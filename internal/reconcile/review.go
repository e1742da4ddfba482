package reconcile

import "github.com/dvloznov/goal-reconciliation/internal/domain"

// Unmatched holds the items that have no counterpart.
type Unmatched struct {
	Bank []domain.BankTransaction `json:"bank"`
	Goal []domain.GoalTransaction `json:"goal"`
}

// Count returns the number of unmatched items on both sides.
func (u Unmatched) Count() int {
	return len(u.Bank) + len(u.Goal)
}

// Tagged returns how many unmatched items carry a review tag.
func (u Unmatched) Tagged() int {
	n := 0
	for _, b := range u.Bank {
		if b.Tagged() {
			n++
		}
	}
	for _, g := range u.Goal {
		if g.Tagged() {
			n++
		}
	}
	return n
}

// FindUnmatched uses the simple notion of a counterpart: an item on the other
// side sharing a non-empty external id and the transaction type. Items with a
// persisted match are also treated as matched. It does not run the matcher.
func FindUnmatched(bank []domain.BankTransaction, goals []domain.GoalTransaction) Unmatched {
	bankKeys := make(map[string]bool, len(bank))
	for _, b := range bank {
		if k := counterpartKey(b.ExternalTransactionID, b.TransactionType); k != "" {
			bankKeys[k] = true
		}
	}
	goalKeys := make(map[string]bool, len(goals))
	for _, g := range goals {
		if k := counterpartKey(g.ExternalTransactionID, g.TransactionType); k != "" {
			goalKeys[k] = true
		}
	}

	var out Unmatched
	for _, b := range bank {
		if b.Matched() {
			continue
		}
		if k := counterpartKey(b.ExternalTransactionID, b.TransactionType); k != "" && goalKeys[k] {
			continue
		}
		out.Bank = append(out.Bank, b)
	}
	for _, g := range goals {
		if g.MatchStatus == domain.MatchStatusMatched {
			continue
		}
		if k := counterpartKey(g.ExternalTransactionID, g.TransactionType); k != "" && bankKeys[k] {
			continue
		}
		out.Goal = append(out.Goal, g)
	}
	return out
}

func counterpartKey(extID string, t domain.TransactionType) string {
	if extID == "" {
		return ""
	}
	return extID + "|" + string(t)
}

// StatusOf places a goal in the review lattice. It depends only on unmatched
// items, never on total variances.
func StatusOf(u Unmatched) domain.ReviewStatus {
	total := u.Count()
	if total == 0 {
		return domain.ReviewStatusNotApplicable
	}
	switch tagged := u.Tagged(); {
	case tagged == 0:
		return domain.ReviewStatusUnreviewed
	case tagged < total:
		return domain.ReviewStatusPartiallyReviewed
	default:
		return domain.ReviewStatusReviewed
	}
}

// ReviewStatus bundles a goal's status with the counts behind it.
type ReviewStatus struct {
	GoalID    string              `json:"goal_id"`
	Status    domain.ReviewStatus `json:"status"`
	Unmatched int                 `json:"unmatched_count"`
	Tagged    int                 `json:"tagged_count"`
}

// GoalReviewStatus computes the review status for one goal's transactions.
func GoalReviewStatus(goalID string, bank []domain.BankTransaction, goals []domain.GoalTransaction) ReviewStatus {
	u := FindUnmatched(bank, goals)
	return ReviewStatus{
		GoalID:    goalID,
		Status:    StatusOf(u),
		Unmatched: u.Count(),
		Tagged:    u.Tagged(),
	}
}

// CheckReviewable rejects review of bank transactions that are already
// resolved by a match or a reversal pair.
func CheckReviewable(b domain.BankTransaction) error {
	if b.Matched() {
		return domain.NewConflictError("Review", "bank transaction "+b.ID+" is already matched")
	}
	if b.InReversalPair() {
		return domain.NewConflictError("Review", "bank transaction "+b.ID+" is part of a reversal pair")
	}
	return nil
}

// CheckReviewableGoal rejects review of goal transactions already matched.
func CheckReviewableGoal(g domain.GoalTransaction) error {
	if g.Matched() {
		return domain.NewConflictError("Review", "goal transaction "+g.Code+" is already matched")
	}
	return nil
}
