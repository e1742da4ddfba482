package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/store"
)

// Repository is the BigQuery implementation of store.Repository. It holds a
// shared client to avoid creating a new connection for each operation.
type Repository struct {
	client  *bigquery.Client
	dataset string
}

// NewRepository creates a repository with its own client.
func NewRepository(ctx context.Context, projectID, dataset string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, dataset), nil
}

// NewRepositoryWithClient wraps an existing client.
func NewRepositoryWithClient(client *bigquery.Client, dataset string) *Repository {
	return &Repository{client: client, dataset: dataset}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Repository) ListGoals(ctx context.Context) ([]domain.Goal, error) {
	return ListGoalsWithClient(ctx, r.client, r.dataset)
}

func (r *Repository) GetGoal(ctx context.Context, goalID string) (*domain.Goal, error) {
	return GetGoalWithClient(ctx, r.client, r.dataset, goalID)
}

func (r *Repository) ListBankTransactions(ctx context.Context, goalID string, rng domain.DateRange) ([]domain.BankTransaction, error) {
	return ListBankTransactionsWithClient(ctx, r.client, r.dataset, goalID, rng)
}

func (r *Repository) GetBankTransaction(ctx context.Context, id string) (*domain.BankTransaction, error) {
	return GetBankTransactionWithClient(ctx, r.client, r.dataset, id)
}

func (r *Repository) ListLedgerPostings(ctx context.Context, goalID string, rng domain.DateRange) ([]domain.LedgerPosting, error) {
	return ListLedgerPostingsWithClient(ctx, r.client, r.dataset, goalID, rng)
}

func (r *Repository) ListPostingsByCode(ctx context.Context, code string) ([]domain.LedgerPosting, error) {
	return ListPostingsByCodeWithClient(ctx, r.client, r.dataset, code)
}

func (r *Repository) ApplyMatch(ctx context.Context, m domain.Match) error {
	return ApplyMatchWithClient(ctx, r.client, r.dataset, m)
}

func (r *Repository) ApplyBankReview(ctx context.Context, ids []string, review domain.Review) error {
	return BulkReviewWithClient(ctx, r.client, r.dataset, ids, nil, review)
}

func (r *Repository) ApplyGoalTransactionReview(ctx context.Context, codes []string, review domain.Review) error {
	return BulkReviewWithClient(ctx, r.client, r.dataset, nil, codes, review)
}

func (r *Repository) BulkReview(ctx context.Context, bankIDs, codes []string, review domain.Review) error {
	return BulkReviewWithClient(ctx, r.client, r.dataset, bankIDs, codes, review)
}

func (r *Repository) LinkReversal(ctx context.Context, id1, id2 string, review domain.Review) error {
	return LinkReversalWithClient(ctx, r.client, r.dataset, id1, id2, review)
}

func (r *Repository) UnlinkReversal(ctx context.Context, id1, id2 string) error {
	return UnlinkReversalWithClient(ctx, r.client, r.dataset, id1, id2)
}

func (r *Repository) SaveGoals(ctx context.Context, goals []domain.Goal) error {
	return SaveGoalsWithClient(ctx, r.client, r.dataset, goals)
}

func (r *Repository) SaveBankTransactions(ctx context.Context, txns []domain.BankTransaction) error {
	return SaveBankTransactionsWithClient(ctx, r.client, r.dataset, txns)
}

func (r *Repository) SaveLedgerPostings(ctx context.Context, postings []domain.LedgerPosting) error {
	return SaveLedgerPostingsWithClient(ctx, r.client, r.dataset, postings)
}

var _ store.Repository = (*Repository)(nil)
