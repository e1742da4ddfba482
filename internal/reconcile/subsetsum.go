package reconcile

import (
	"math/bits"
	"sort"

	"github.com/shopspring/decimal"
)

// MaxSplitCandidates caps the exhaustive subset search. Only the largest
// candidates are considered once the greedy attempt fails.
const MaxSplitCandidates = 10

// findSplit looks for at least two amounts whose sum falls within tol of
// target. It returns positions into amounts in ascending order, or nil.
//
// A greedy pass over amounts sorted descending runs first. When that fails,
// every subset of the MaxSplitCandidates largest amounts is tried in
// increasing bitmask order, so the result is deterministic for a given input.
func findSplit(amounts []decimal.Decimal, target, tol decimal.Decimal) []int {
	if len(amounts) < 2 {
		return nil
	}

	order := make([]int, len(amounts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return amounts[order[a]].GreaterThan(amounts[order[b]])
	})

	if picked := greedySplit(amounts, order, target, tol); picked != nil {
		return picked
	}

	n := len(order)
	if n > MaxSplitCandidates {
		n = MaxSplitCandidates
	}
	top := order[:n]
	for mask := uint(1); mask < 1<<uint(n); mask++ {
		if bits.OnesCount(mask) < 2 {
			continue
		}
		sum := decimal.Zero
		for j := 0; j < n; j++ {
			if mask&(1<<uint(j)) != 0 {
				sum = sum.Add(amounts[top[j]])
			}
		}
		if sum.Sub(target).Abs().LessThanOrEqual(tol) {
			picked := make([]int, 0, bits.OnesCount(mask))
			for j := 0; j < n; j++ {
				if mask&(1<<uint(j)) != 0 {
					picked = append(picked, top[j])
				}
			}
			sort.Ints(picked)
			return picked
		}
	}
	return nil
}

func greedySplit(amounts []decimal.Decimal, order []int, target, tol decimal.Decimal) []int {
	upper := target.Add(tol)
	sum := decimal.Zero
	var picked []int
	for _, i := range order {
		next := sum.Add(amounts[i])
		if next.GreaterThan(upper) {
			continue
		}
		sum = next
		picked = append(picked, i)
		if len(picked) >= 2 && sum.Sub(target).Abs().LessThanOrEqual(tol) {
			sort.Ints(picked)
			return picked
		}
	}
	return nil
}
