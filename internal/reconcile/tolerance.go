// Package reconcile holds the reconciliation core: ledger aggregation,
// tolerance classification, the multi-pass matcher, review status, reversal
// rules and summary projection. Everything here is pure; callers fetch
// inputs through a repository and persist results themselves.
package reconcile

import (
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	// DefaultRelativeTolerance is 1% of the expected amount.
	DefaultRelativeTolerance = decimal.New(1, -2)
	// DefaultAbsoluteFloor is the smallest tolerance ever applied.
	DefaultAbsoluteFloor = decimal.NewFromInt(1000)
)

// Tolerance decides whether two amounts agree.
type Tolerance struct {
	Relative      decimal.Decimal
	AbsoluteFloor decimal.Decimal
}

// DefaultTolerance returns the 1% / 1000 rule.
func DefaultTolerance() Tolerance {
	return Tolerance{Relative: DefaultRelativeTolerance, AbsoluteFloor: DefaultAbsoluteFloor}
}

// Variance is the outcome of comparing an observed amount with an expected one.
type Variance struct {
	Observed   decimal.Decimal `json:"observed"`
	Expected   decimal.Decimal `json:"expected"`
	Difference decimal.Decimal `json:"difference"`
	Tolerance  decimal.Decimal `json:"tolerance"`
	Exceeds    bool            `json:"exceeds_tolerance"`
}

// For returns the tolerance applied when expected is the reference amount.
func (t Tolerance) For(expected decimal.Decimal) decimal.Decimal {
	rel := expected.Abs().Mul(t.Relative)
	if rel.GreaterThan(t.AbsoluteFloor) {
		return rel
	}
	return t.AbsoluteFloor
}

// Classify compares observed against expected. The tolerance is relative to
// expected, so Classify(a, b) and Classify(b, a) can disagree.
func (t Tolerance) Classify(observed, expected decimal.Decimal) Variance {
	diff := observed.Sub(expected)
	tol := t.For(expected)
	return Variance{
		Observed:   observed,
		Expected:   expected,
		Difference: diff,
		Tolerance:  tol,
		Exceeds:    diff.Abs().GreaterThan(tol),
	}
}

// Within reports whether observed is inside the tolerance of expected.
func (t Tolerance) Within(observed, expected decimal.Decimal) bool {
	return !t.Classify(observed, expected).Exceeds
}

// VectorVariance compares a total and every fund component.
type VectorVariance struct {
	Total   Variance                  `json:"total"`
	Funds   [domain.NumFunds]Variance `json:"funds"`
	Exceeds bool                      `json:"exceeds_tolerance"`
}

// FundVariance returns the comparison for one fund code.
func (v VectorVariance) FundVariance(code string) (Variance, bool) {
	i, ok := domain.FundIndex(code)
	if !ok {
		return Variance{}, false
	}
	return v.Funds[i], true
}

// CompareVectors classifies the totals and each fund independently. The
// result exceeds tolerance when any single comparison does, even if the
// totals agree.
func (t Tolerance) CompareVectors(observedTotal decimal.Decimal, observedFunds domain.FundAmounts,
	expectedTotal decimal.Decimal, expectedFunds domain.FundAmounts) VectorVariance {
	out := VectorVariance{Total: t.Classify(observedTotal, expectedTotal)}
	out.Exceeds = out.Total.Exceeds
	for i := range observedFunds {
		out.Funds[i] = t.Classify(observedFunds[i], expectedFunds[i])
		if out.Funds[i].Exceeds {
			out.Exceeds = true
		}
	}
	return out
}
