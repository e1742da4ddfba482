// Package store defines the persistence contract used by the reconciliation
// service. Implementations live in store/memory, infra/sqlite and
// infra/bigquery.
package store

import (
	"context"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
)

// GoalReader provides read access to goals.
type GoalReader interface {
	// ListGoals returns every goal ordered by goal number.
	ListGoals(ctx context.Context) ([]domain.Goal, error)

	// GetGoal returns a goal or a NotFound error.
	GetGoal(ctx context.Context, goalID string) (*domain.Goal, error)
}

// TransactionReader provides read access to both transaction streams.
type TransactionReader interface {
	// ListBankTransactions returns a goal's bank transactions inside the
	// range, ordered by date then id.
	ListBankTransactions(ctx context.Context, goalID string, r domain.DateRange) ([]domain.BankTransaction, error)

	// GetBankTransaction returns one bank transaction or a NotFound error.
	GetBankTransaction(ctx context.Context, id string) (*domain.BankTransaction, error)

	// ListLedgerPostings returns a goal's postings inside the range, ordered
	// by date, code then id. Transfer reversal postings are excluded.
	ListLedgerPostings(ctx context.Context, goalID string, r domain.DateRange) ([]domain.LedgerPosting, error)

	// ListPostingsByCode returns every posting sharing a goal transaction
	// code, transfer reversals excluded.
	ListPostingsByCode(ctx context.Context, code string) ([]domain.LedgerPosting, error)
}

// ResultWriter persists match and review outcomes. Each call is one atomic
// write: either every record it names changes or none does.
type ResultWriter interface {
	// ApplyMatch marks the bank transactions matched with the match
	// confidence and joined codes, and marks every posting under the
	// match's goal transaction codes matched. A bank transaction that is
	// already matched or paired, or a code with a matched posting, fails
	// the whole call with a Conflict.
	ApplyMatch(ctx context.Context, m domain.Match) error

	// ApplyBankReview writes review fields onto bank transactions.
	ApplyBankReview(ctx context.Context, ids []string, review domain.Review) error

	// ApplyGoalTransactionReview writes review fields onto every posting of
	// each code as a single write over the derived key.
	ApplyGoalTransactionReview(ctx context.Context, codes []string, review domain.Review) error

	// BulkReview applies one review to bank transactions and goal
	// transactions together. Matched or paired targets are a Conflict.
	BulkReview(ctx context.Context, bankIDs, codes []string, review domain.Review) error

	// LinkReversal tags both transactions with the review and points each
	// at the other. Either side already matched or paired is a Conflict.
	LinkReversal(ctx context.Context, id1, id2 string, review domain.Review) error

	// UnlinkReversal clears the review and pair reference on both sides.
	UnlinkReversal(ctx context.Context, id1, id2 string) error
}

// Loader stores upstream records. Ingestion itself lives outside this
// module; loaders back fixtures, the CLI seed command and tests.
type Loader interface {
	SaveGoals(ctx context.Context, goals []domain.Goal) error
	SaveBankTransactions(ctx context.Context, txns []domain.BankTransaction) error
	SaveLedgerPostings(ctx context.Context, postings []domain.LedgerPosting) error
}

// Repository is everything the service needs.
type Repository interface {
	GoalReader
	TransactionReader
	ResultWriter
	Loader
	Close() error
}

// CheckBankUnclaimed fails with a Conflict when b is already matched or part
// of a reversal pair. Writers call it inside their atomic write.
func CheckBankUnclaimed(op string, b domain.BankTransaction) error {
	if b.Matched() {
		return domain.NewConflictError(op, "bank transaction "+b.ID+" is already matched")
	}
	if b.InReversalPair() {
		return domain.NewConflictError(op, "bank transaction "+b.ID+" is already part of a reversal pair")
	}
	return nil
}

// CheckPostingUnmatched fails with a Conflict when p is already matched.
func CheckPostingUnmatched(op string, p domain.LedgerPosting) error {
	if p.MatchStatus == domain.MatchStatusMatched {
		return domain.NewConflictError(op, "goal transaction "+p.GoalTransactionCode+" is already matched")
	}
	return nil
}

// ValidateBankTransaction checks a record at the repository boundary.
func ValidateBankTransaction(b domain.BankTransaction) error {
	if b.ID == "" || b.GoalID == "" {
		return domain.NewValidationError("SaveBankTransactions", "id and goal_id are required")
	}
	if !b.TransactionType.Valid() {
		return domain.NewValidationError("SaveBankTransactions", "transaction "+b.ID+" has invalid transaction_type")
	}
	if !b.TransactionDate.IsValid() {
		return domain.NewValidationError("SaveBankTransactions", "transaction "+b.ID+" has invalid transaction_date")
	}
	return nil
}

// ValidateLedgerPosting checks a record at the repository boundary.
func ValidateLedgerPosting(p domain.LedgerPosting) error {
	if p.ID == "" || p.GoalID == "" || p.GoalTransactionCode == "" {
		return domain.NewValidationError("SaveLedgerPostings", "id, goal_id and goal_transaction_code are required")
	}
	if _, ok := domain.FundIndex(p.FundCode); !ok {
		return domain.NewValidationError("SaveLedgerPostings", "posting "+p.ID+" has unknown fund_code "+p.FundCode)
	}
	if !p.TransactionType.Valid() {
		return domain.NewValidationError("SaveLedgerPostings", "posting "+p.ID+" has invalid transaction_type")
	}
	if !p.TransactionDate.IsValid() {
		return domain.NewValidationError("SaveLedgerPostings", "posting "+p.ID+" has invalid transaction_date")
	}
	return nil
}
