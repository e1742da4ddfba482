package reconcile

import (
	"fmt"
	"testing"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Exact(t *testing.T) {
	m := NewMatcher(DefaultTolerance())
	d := day(2025, 1, 15)

	res := m.Match(
		[]domain.BankTransaction{bankTxn("b1", "TXN1", deposit, d, "500000")},
		[]domain.GoalTransaction{goalTxn("g1", "TXN1", deposit, d, "500000")},
		30,
	)

	require.Len(t, res.Matches, 1)
	match := res.Matches[0]
	assert.Equal(t, domain.MatchTypeExact, match.Type)
	assert.Equal(t, 1.0, match.Confidence)
	assert.Equal(t, []string{"b1"}, match.BankTransactionIDs)
	assert.Equal(t, []string{"g1"}, match.GoalTransactionCodes)
	assert.Equal(t, []string{"g1-p1"}, match.PostingIDs)
	assert.Empty(t, res.UnmatchedBank)
	assert.Empty(t, res.UnmatchedGoal)
}

func TestMatcher_ExactRequiresSameTypeAndTolerance(t *testing.T) {
	m := NewMatcher(DefaultTolerance())
	d := day(2025, 1, 15)

	res := m.Match(
		[]domain.BankTransaction{
			bankTxn("b1", "TXN1", deposit, d, "500000"),
			bankTxn("b2", "TXN2", deposit, d, "500000"),
		},
		[]domain.GoalTransaction{
			goalTxn("g1", "TXN1", withdrawal, day(2024, 1, 1), "500000"),
			goalTxn("g2", "TXN2", deposit, day(2024, 1, 1), "600000"),
		},
		30,
	)

	assert.Empty(t, res.Matches)
	assert.Len(t, res.UnmatchedBank, 2)
	assert.Len(t, res.UnmatchedGoal, 2)
}

func TestMatcher_AmountWindowConfidence(t *testing.T) {
	m := NewMatcher(DefaultTolerance())

	res := m.Match(
		[]domain.BankTransaction{bankTxn("b1", "", deposit, day(2025, 1, 1), "300000")},
		[]domain.GoalTransaction{goalTxn("g1", "", deposit, day(2025, 1, 10), "300500")},
		30,
	)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, domain.MatchTypeAmount, res.Matches[0].Type)
	assert.InDelta(t, 0.71, res.Matches[0].Confidence, 1e-9)
}

func TestMatcher_AmountOutsideWindow(t *testing.T) {
	m := NewMatcher(DefaultTolerance())

	res := m.Match(
		[]domain.BankTransaction{bankTxn("b1", "", deposit, day(2025, 1, 1), "300000")},
		[]domain.GoalTransaction{goalTxn("g1", "", deposit, day(2025, 2, 15), "300000")},
		30,
	)

	assert.Empty(t, res.Matches)
}

func TestMatcher_AmountTakesFirstInScanOrder(t *testing.T) {
	m := NewMatcher(DefaultTolerance())

	res := m.Match(
		[]domain.BankTransaction{bankTxn("b1", "", deposit, day(2025, 1, 1), "300000")},
		[]domain.GoalTransaction{
			goalTxn("far", "", deposit, day(2025, 1, 20), "300000"),
			goalTxn("near", "", deposit, day(2025, 1, 1), "300000"),
		},
		30,
	)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, []string{"far"}, res.Matches[0].GoalTransactionCodes)
	assert.InDelta(t, 0.61, res.Matches[0].Confidence, 1e-9)
}

func TestMatcher_ZeroWindowIsSameDayOnly(t *testing.T) {
	m := NewMatcher(DefaultTolerance())

	res := m.Match(
		[]domain.BankTransaction{
			bankTxn("b1", "", deposit, day(2025, 1, 1), "300000"),
			bankTxn("b2", "", deposit, day(2025, 1, 5), "700000"),
		},
		[]domain.GoalTransaction{
			goalTxn("g1", "", deposit, day(2025, 1, 1), "300000"),
			goalTxn("g2", "", deposit, day(2025, 1, 6), "700000"),
		},
		0,
	)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, 0.8, res.Matches[0].Confidence)
	assert.Equal(t, []string{"b2"}, idsOf(res.UnmatchedBank))
}

func TestMatcher_SplitBankToLedger(t *testing.T) {
	m := NewMatcher(DefaultTolerance())
	d := day(2025, 3, 3)

	res := m.Match(
		[]domain.BankTransaction{
			bankTxn("b1", "", deposit, d, "300000"),
			bankTxn("b2", "", deposit, d, "300000"),
			bankTxn("b3", "", deposit, d, "300000"),
		},
		[]domain.GoalTransaction{goalTxn("g1", "", deposit, d, "900000")},
		30,
	)

	require.Len(t, res.Matches, 1)
	match := res.Matches[0]
	assert.Equal(t, domain.MatchTypeSplitBankToLedger, match.Type)
	assert.Equal(t, 0.7, match.Confidence)
	assert.Equal(t, []string{"b1", "b2", "b3"}, match.BankTransactionIDs)
	assert.True(t, dec("900000").Equal(match.BankTotal))
	assert.True(t, dec("900000").Equal(match.LedgerTotal))
}

func TestMatcher_SplitLedgerToBank(t *testing.T) {
	m := NewMatcher(DefaultTolerance())
	d := day(2025, 3, 3)

	res := m.Match(
		[]domain.BankTransaction{bankTxn("b1", "", withdrawal, d, "750000")},
		[]domain.GoalTransaction{
			goalTxn("g1", "", withdrawal, d, "250000"),
			goalTxn("g2", "", withdrawal, d, "500000"),
			goalTxn("other-day", "", withdrawal, day(2025, 3, 4), "250000"),
		},
		30,
	)

	require.Len(t, res.Matches, 1)
	match := res.Matches[0]
	assert.Equal(t, domain.MatchTypeSplitLedgerToBank, match.Type)
	assert.Equal(t, []string{"g1", "g2"}, match.GoalTransactionCodes)
	assert.Equal(t, []string{"g1-p1", "g2-p1"}, match.PostingIDs)
	assert.Equal(t, []string{"other-day"}, codesOf(res.UnmatchedGoal))
}

func TestMatcher_SplitNeedsTwoItems(t *testing.T) {
	m := NewMatcher(DefaultTolerance())
	d := day(2025, 3, 3)

	res := m.Match(
		[]domain.BankTransaction{bankTxn("b1", "", deposit, d, "100")},
		[]domain.GoalTransaction{goalTxn("g1", "", deposit, d, "900000")},
		30,
	)

	assert.Empty(t, res.Matches)
}

func TestMatcher_NoCandidates(t *testing.T) {
	res := NewMatcher(DefaultTolerance()).Match(nil, nil, 30)

	assert.Empty(t, res.Matches)
	assert.Empty(t, res.UnmatchedBank)
	assert.Empty(t, res.UnmatchedGoal)
}

func TestMatcher_PartitionsAndIsDeterministic(t *testing.T) {
	m := NewMatcher(DefaultTolerance())
	bank, goals := mixedFixture()

	first := m.Match(bank, goals, 30)
	second := m.Match(bank, goals, 30)
	assert.Equal(t, first, second)

	seenBank := map[string]int{}
	seenPosting := map[string]int{}
	for _, match := range first.Matches {
		require.NoError(t, match.Validate())
		for _, id := range match.BankTransactionIDs {
			seenBank[id]++
		}
		for _, id := range match.PostingIDs {
			seenPosting[id]++
		}
	}
	for _, b := range first.UnmatchedBank {
		seenBank[b.ID]++
	}
	for _, g := range first.UnmatchedGoal {
		for _, id := range g.PostingIDs {
			seenPosting[id]++
		}
	}

	for _, b := range bank {
		assert.Equal(t, 1, seenBank[b.ID], "bank %s", b.ID)
	}
	for _, g := range goals {
		for _, id := range g.PostingIDs {
			assert.Equal(t, 1, seenPosting[id], "posting %s", id)
		}
	}
	assert.Len(t, seenBank, len(bank))
}

func TestMatcher_PassOrder(t *testing.T) {
	m := NewMatcher(DefaultTolerance())
	bank, goals := mixedFixture()

	res := m.Match(bank, goals, 30)

	var types []domain.MatchType
	for _, match := range res.Matches {
		types = append(types, match.Type)
	}
	assert.Equal(t, []domain.MatchType{
		domain.MatchTypeExact,
		domain.MatchTypeAmount,
		domain.MatchTypeSplitBankToLedger,
		domain.MatchTypeSplitLedgerToBank,
	}, types)
	assert.Equal(t, []string{"b-lonely"}, idsOf(res.UnmatchedBank))
	assert.Equal(t, []string{"g-lonely"}, codesOf(res.UnmatchedGoal))
}

func mixedFixture() ([]domain.BankTransaction, []domain.GoalTransaction) {
	d1 := day(2025, 1, 15)
	d2 := day(2025, 1, 20)
	d3 := day(2025, 1, 25)
	bank := []domain.BankTransaction{
		bankTxn("b-exact", "TXN1", deposit, d1, "500000"),
		bankTxn("b-amount", "", deposit, d1, "120000"),
		bankTxn("b-split-1", "", deposit, d2, "400000"),
		bankTxn("b-split-2", "", deposit, d2, "450000"),
		bankTxn("b-big", "", withdrawal, d3, "1000000"),
		bankTxn("b-lonely", "", withdrawal, d1, "77"),
	}
	goals := []domain.GoalTransaction{
		goalTxn("g-exact", "TXN1", deposit, d1, "500000"),
		goalTxn("g-amount", "", deposit, day(2025, 1, 18), "120500"),
		goalTxn("g-split", "", deposit, d2, "850000"),
		goalTxn("g-part-1", "", withdrawal, d3, "600000"),
		goalTxn("g-part-2", "", withdrawal, d3, "400000"),
		goalTxn("g-lonely", "", deposit, day(2025, 6, 1), "5"),
	}
	return bank, goals
}

func idsOf(txns []domain.BankTransaction) []string {
	var out []string
	for _, t := range txns {
		out = append(out, t.ID)
	}
	return out
}

func codesOf(txns []domain.GoalTransaction) []string {
	var out []string
	for _, t := range txns {
		out = append(out, t.Code)
	}
	return out
}

func TestMatcher_SplitCandidateCapIsDocumentedLimit(t *testing.T) {
	m := NewMatcher(Tolerance{Relative: dec("0"), AbsoluteFloor: dec("0")})
	d := day(2025, 4, 1)

	// Greedy takes 5 and then cannot reach 7. The exhaustive search only
	// sees the twelve large decoys, so 4+3 is never tried.
	var bank []domain.BankTransaction
	for i := 0; i < 12; i++ {
		bank = append(bank, bankTxn(fmt.Sprintf("big-%02d", i), "", deposit, d, "1000000"))
	}
	bank = append(bank,
		bankTxn("small-5", "", deposit, d, "5"),
		bankTxn("small-4", "", deposit, d, "4"),
		bankTxn("small-3", "", deposit, d, "3"),
	)

	res := m.Match(bank, []domain.GoalTransaction{goalTxn("g1", "", deposit, d, "7")}, 30)

	assert.Empty(t, res.Matches)
}
