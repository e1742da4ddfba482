package memory

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s := New()
	d := civil.Date{Year: 2025, Month: time.January, Day: 15}

	require.NoError(t, s.SaveGoals(ctx, []domain.Goal{{ID: "g1", GoalNumber: "G1"}}))
	require.NoError(t, s.SaveBankTransactions(ctx, []domain.BankTransaction{
		{ID: "b2", GoalID: "g1", TransactionType: domain.TransactionTypeDeposit, TransactionDate: d, TotalAmount: decimal.NewFromInt(10)},
		{ID: "b1", GoalID: "g1", TransactionType: domain.TransactionTypeWithdrawal, TransactionDate: d, TotalAmount: decimal.NewFromInt(10)},
	}))
	require.NoError(t, s.SaveLedgerPostings(ctx, []domain.LedgerPosting{
		{ID: "p1", GoalID: "g1", FundCode: "mmf", TransactionType: domain.TransactionTypeDeposit, TransactionDate: d, Amount: decimal.NewFromInt(6), GoalTransactionCode: "c1"},
		{ID: "p2", GoalID: "g1", FundCode: "BOND", TransactionType: domain.TransactionTypeDeposit, TransactionDate: d, Amount: decimal.NewFromInt(4), GoalTransactionCode: "c1"},
		{ID: "p3", GoalID: "g1", FundCode: "BOND", TransactionType: domain.TransactionTypeDeposit, TransactionDate: d, Amount: decimal.NewFromInt(4), GoalTransactionCode: "c1", Source: domain.LedgerSourceTransferReversal},
	}))
	return s
}

func TestStore_ListsAreOrderedAndFiltered(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	bank, err := s.ListBankTransactions(ctx, "g1", domain.DateRange{})
	require.NoError(t, err)
	require.Len(t, bank, 2)
	assert.Equal(t, "b1", bank[0].ID)
	assert.Equal(t, domain.MatchStatusUnmatched, bank[0].MatchStatus)

	postings, err := s.ListLedgerPostings(ctx, "g1", domain.DateRange{})
	require.NoError(t, err)
	assert.Len(t, postings, 2)
	assert.Equal(t, "MMF", postings[0].FundCode)

	outside := domain.DateRange{From: civil.Date{Year: 2025, Month: time.February, Day: 1}}
	bank, err = s.ListBankTransactions(ctx, "g1", outside)
	require.NoError(t, err)
	assert.Empty(t, bank)
}

func TestStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	_, err := s.GetGoal(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.GetBankTransaction(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ApplyMatch(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	err := s.ApplyMatch(ctx, domain.Match{
		Type:                 domain.MatchTypeExact,
		Confidence:           1,
		BankTransactionIDs:   []string{"b2"},
		GoalTransactionCodes: []string{"c1"},
	})
	require.NoError(t, err)

	b, err := s.GetBankTransaction(ctx, "b2")
	require.NoError(t, err)
	assert.True(t, b.Matched())
	assert.Equal(t, "c1", b.MatchedGoalTransactionCode)
	require.NotNil(t, b.MatchConfidence)
	assert.Equal(t, 1.0, *b.MatchConfidence)

	postings, err := s.ListPostingsByCode(ctx, "c1")
	require.NoError(t, err)
	for _, p := range postings {
		assert.Equal(t, domain.MatchStatusMatched, p.MatchStatus)
	}
}

func TestStore_ApplyMatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	err := s.ApplyMatch(ctx, domain.Match{
		Type:                 domain.MatchTypeExact,
		Confidence:           1,
		BankTransactionIDs:   []string{"b2"},
		GoalTransactionCodes: []string{"missing"},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	b, _ := s.GetBankTransaction(ctx, "b2")
	assert.False(t, b.Matched())
}

func TestStore_BulkReviewFansOut(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	review := domain.Review{Tag: domain.ReviewTagOther, ReviewedBy: "ops", ReviewedAt: &at}

	require.NoError(t, s.BulkReview(ctx, []string{"b1"}, []string{"c1"}, review))

	b, _ := s.GetBankTransaction(ctx, "b1")
	assert.Equal(t, domain.ReviewTagOther, b.Tag)
	postings, _ := s.ListPostingsByCode(ctx, "c1")
	require.Len(t, postings, 2)
	for _, p := range postings {
		assert.Equal(t, "ops", p.ReviewedBy)
	}

	err := s.BulkReview(ctx, []string{"b2", "ghost"}, nil, review)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	b2, _ := s.GetBankTransaction(ctx, "b2")
	assert.False(t, b2.Tagged())
}

func TestStore_LinkAndUnlinkReversal(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	require.NoError(t, s.LinkReversal(ctx, "b1", "b2", domain.Review{Tag: domain.ReviewTagReversalNetted, ReviewedBy: "ops"}))
	b1, _ := s.GetBankTransaction(ctx, "b1")
	b2, _ := s.GetBankTransaction(ctx, "b2")
	assert.Equal(t, "b2", b1.ReversalPairID)
	assert.Equal(t, "b1", b2.ReversalPairID)
	assert.Equal(t, domain.ReviewTagReversalNetted, b2.Tag)

	require.NoError(t, s.UnlinkReversal(ctx, "b1", "b2"))
	b1, _ = s.GetBankTransaction(ctx, "b1")
	assert.False(t, b1.InReversalPair())
	assert.False(t, b1.Tagged())
}

func TestStore_RejectsClaimedRecords(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	d := civil.Date{Year: 2025, Month: time.January, Day: 16}
	require.NoError(t, s.SaveBankTransactions(ctx, []domain.BankTransaction{
		{ID: "b3", GoalID: "g1", TransactionType: domain.TransactionTypeWithdrawal, TransactionDate: d, TotalAmount: decimal.NewFromInt(10)},
	}))
	require.NoError(t, s.SaveLedgerPostings(ctx, []domain.LedgerPosting{
		{ID: "p4", GoalID: "g1", FundCode: "MMF", TransactionType: domain.TransactionTypeDeposit, TransactionDate: d, Amount: decimal.NewFromInt(10), GoalTransactionCode: "c2"},
	}))
	match := func(bankID, code string) domain.Match {
		return domain.Match{Type: domain.MatchTypeExact, Confidence: 1, BankTransactionIDs: []string{bankID}, GoalTransactionCodes: []string{code}}
	}
	review := domain.Review{Tag: domain.ReviewTagOther, ReviewedBy: "ops"}

	require.NoError(t, s.ApplyMatch(ctx, match("b2", "c1")))
	require.NoError(t, s.LinkReversal(ctx, "b1", "b3", domain.Review{Tag: domain.ReviewTagReversalNetted, ReviewedBy: "ops"}))

	assert.ErrorIs(t, s.ApplyMatch(ctx, match("b2", "c2")), domain.ErrConflict)
	assert.ErrorIs(t, s.ApplyMatch(ctx, match("b1", "c2")), domain.ErrConflict)
	assert.ErrorIs(t, s.BulkReview(ctx, nil, []string{"c1"}, review), domain.ErrConflict)
	assert.ErrorIs(t, s.BulkReview(ctx, []string{"b2"}, nil, review), domain.ErrConflict)
	assert.ErrorIs(t, s.LinkReversal(ctx, "b2", "b3", review), domain.ErrConflict)

	postings, _ := s.ListPostingsByCode(ctx, "c2")
	assert.Equal(t, domain.MatchStatusUnmatched, postings[0].MatchStatus)
	b1, _ := s.GetBankTransaction(ctx, "b1")
	assert.False(t, b1.Matched())
	b2, _ := s.GetBankTransaction(ctx, "b2")
	assert.Equal(t, "c1", b2.MatchedGoalTransactionCode)
	assert.False(t, b2.InReversalPair())
	b3, _ := s.GetBankTransaction(ctx, "b3")
	assert.Equal(t, "b1", b3.ReversalPairID)
}

func TestStore_RejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.SaveLedgerPostings(ctx, []domain.LedgerPosting{{ID: "p", GoalID: "g", GoalTransactionCode: "c", FundCode: "GOLD"}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = s.SaveBankTransactions(ctx, []domain.BankTransaction{{ID: "b", GoalID: "g", TransactionType: "SIDEWAYS"}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
