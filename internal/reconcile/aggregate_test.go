package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_GroupsByCode(t *testing.T) {
	d := day(2025, 1, 15)
	p1 := posting("p1", "2025-01-15/A1/G1", "MMF", deposit, d, "300000")
	p1.ExternalTransactionID = ""
	p2 := posting("p2", "2025-01-15/A1/G1", "EQUITY", deposit, d, "200000")
	p2.ExternalTransactionID = "TXN1"
	p3 := posting("p3", "2025-01-16/A1/G1", "BOND", withdrawal, day(2025, 1, 16), "50000")

	got, err := Aggregate([]domain.LedgerPosting{p1, p2, p3})
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "2025-01-15/A1/G1", first.Code)
	assert.Equal(t, "TXN1", first.ExternalTransactionID)
	assert.True(t, dec("500000").Equal(first.TotalAmount))
	assert.True(t, dec("300000").Equal(first.FundAmounts.Get("MMF")))
	assert.True(t, dec("200000").Equal(first.FundAmounts.Get("EQUITY")))
	assert.True(t, first.TotalAmount.Equal(first.FundAmounts.Total()))
	assert.Equal(t, []string{"p1", "p2"}, first.PostingIDs)
	assert.Equal(t, domain.MatchStatusUnmatched, first.MatchStatus)

	assert.Equal(t, withdrawal, got[1].TransactionType)
}

func TestAggregate_SkipsTransferReversals(t *testing.T) {
	d := day(2025, 1, 15)
	p1 := posting("p1", "c1", "MMF", deposit, d, "1000")
	rev := posting("p2", "c1", "MMF", deposit, d, "999")
	rev.Source = domain.LedgerSourceTransferReversal

	got, err := Aggregate([]domain.LedgerPosting{p1, rev})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, dec("1000").Equal(got[0].TotalAmount))
	assert.Equal(t, []string{"p1"}, got[0].PostingIDs)
}

func TestAggregate_RejectsMixedDateOrType(t *testing.T) {
	tests := []struct {
		name string
		p2   domain.LedgerPosting
	}{
		{"mixed date", posting("p2", "c1", "BOND", deposit, day(2025, 1, 16), "10")},
		{"mixed type", posting("p2", "c1", "BOND", withdrawal, day(2025, 1, 15), "10")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p1 := posting("p1", "c1", "MMF", deposit, day(2025, 1, 15), "10")
			_, err := Aggregate([]domain.LedgerPosting{p1, tt.p2})
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrProcessing))
			assert.Contains(t, err.Error(), "c1")
		})
	}
}

func TestAggregate_RejectsUnknownFund(t *testing.T) {
	_, err := Aggregate([]domain.LedgerPosting{posting("p1", "c1", "CRYPTO", deposit, day(2025, 1, 15), "10")})
	assert.ErrorIs(t, err, domain.ErrProcessing)
}

func TestAggregate_InheritsFirstReviewAndMatchState(t *testing.T) {
	d := day(2025, 1, 15)
	at := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	p1 := posting("p1", "c1", "MMF", deposit, d, "10")
	p1.MatchStatus = domain.MatchStatusMatched
	p2 := posting("p2", "c1", "BOND", deposit, d, "10")
	p2.MatchStatus = domain.MatchStatusMatched
	p2.Review = domain.Review{Tag: domain.ReviewTagTimingDifference, ReviewedBy: "ops", ReviewedAt: &at}

	got, err := Aggregate([]domain.LedgerPosting{p1, p2})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ReviewTagTimingDifference, got[0].Tag)
	assert.Equal(t, "ops", got[0].ReviewedBy)
	assert.Equal(t, domain.MatchStatusMatched, got[0].MatchStatus)
}

func TestAggregate_Empty(t *testing.T) {
	got, err := Aggregate(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
