package reconcile

import (
	"math"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultDateWindowDays is the amount-match window used when none is given.
const DefaultDateWindowDays = 30

const (
	exactConfidence  = 1.0
	amountConfidence = 0.8
	amountDecay      = 0.3
	splitConfidence  = 0.7
)

// Result is the outcome of one matcher run. Every input bank id and goal
// transaction code appears either in exactly one match or in the unmatched
// lists, never both.
type Result struct {
	Matches       []domain.Match           `json:"matches"`
	UnmatchedBank []domain.BankTransaction `json:"unmatched_bank"`
	UnmatchedGoal []domain.GoalTransaction `json:"unmatched_goal"`
}

// Matcher proposes matches between bank transactions and goal transactions.
type Matcher struct {
	Tolerance Tolerance
}

// NewMatcher returns a matcher using tol.
func NewMatcher(tol Tolerance) *Matcher {
	return &Matcher{Tolerance: tol}
}

// Match runs the four passes in order: exact id, amount within the date
// window, many bank to one goal, one bank to many goals. A negative window
// falls back to DefaultDateWindowDays. Results depend only on the inputs and
// their order.
func (m *Matcher) Match(bank []domain.BankTransaction, goals []domain.GoalTransaction, dateWindowDays int) Result {
	if dateWindowDays < 0 {
		dateWindowDays = DefaultDateWindowDays
	}

	r := run{
		tol:         m.Tolerance,
		bank:        bank,
		goals:       goals,
		bankTaken:   make([]bool, len(bank)),
		goalTaken:   make([]bool, len(goals)),
		windowDays:  dateWindowDays,
		goalByExtID: make(map[string][]int),
	}
	for i, g := range goals {
		if g.ExternalTransactionID != "" {
			r.goalByExtID[g.ExternalTransactionID] = append(r.goalByExtID[g.ExternalTransactionID], i)
		}
	}

	r.exactPass()
	r.amountPass()
	r.splitBankToLedgerPass()
	r.splitLedgerToBankPass()

	out := Result{Matches: r.matches}
	for i, b := range bank {
		if !r.bankTaken[i] {
			out.UnmatchedBank = append(out.UnmatchedBank, b)
		}
	}
	for i, g := range goals {
		if !r.goalTaken[i] {
			out.UnmatchedGoal = append(out.UnmatchedGoal, g)
		}
	}
	return out
}

type run struct {
	tol         Tolerance
	bank        []domain.BankTransaction
	goals       []domain.GoalTransaction
	bankTaken   []bool
	goalTaken   []bool
	windowDays  int
	goalByExtID map[string][]int
	matches     []domain.Match
}

func (r *run) exactPass() {
	for bi, b := range r.bank {
		if b.ExternalTransactionID == "" {
			continue
		}
		for _, gi := range r.goalByExtID[b.ExternalTransactionID] {
			g := r.goals[gi]
			if r.goalTaken[gi] || g.TransactionType != b.TransactionType {
				continue
			}
			if !r.tol.Within(g.TotalAmount, b.TotalAmount) {
				continue
			}
			r.record(domain.MatchTypeExact, exactConfidence, []int{bi}, []int{gi})
			break
		}
	}
}

// amountPass takes the first qualifying goal transaction in list order, not
// the closest one.
func (r *run) amountPass() {
	for bi, b := range r.bank {
		if r.bankTaken[bi] {
			continue
		}
		for gi, g := range r.goals {
			if r.goalTaken[gi] || g.TransactionType != b.TransactionType {
				continue
			}
			days := absDays(b, g)
			if days > r.windowDays {
				continue
			}
			if !r.tol.Within(g.TotalAmount, b.TotalAmount) {
				continue
			}
			r.record(domain.MatchTypeAmount, amountMatchConfidence(days, r.windowDays), []int{bi}, []int{gi})
			break
		}
	}
}

// splitBankToLedgerPass matches one goal transaction to several same-day
// bank transactions.
func (r *run) splitBankToLedgerPass() {
	for gi, g := range r.goals {
		if r.goalTaken[gi] {
			continue
		}
		var cand []int
		var amounts []decimal.Decimal
		for bi, b := range r.bank {
			if r.bankTaken[bi] || b.TransactionType != g.TransactionType || b.TransactionDate != g.TransactionDate {
				continue
			}
			cand = append(cand, bi)
			amounts = append(amounts, b.TotalAmount)
		}
		picked := findSplit(amounts, g.TotalAmount, r.tol.For(g.TotalAmount))
		if picked == nil {
			continue
		}
		r.record(domain.MatchTypeSplitBankToLedger, splitConfidence, selectIndices(cand, picked), []int{gi})
	}
}

// splitLedgerToBankPass matches one bank transaction to several same-day
// goal transactions.
func (r *run) splitLedgerToBankPass() {
	for bi, b := range r.bank {
		if r.bankTaken[bi] {
			continue
		}
		var cand []int
		var amounts []decimal.Decimal
		for gi, g := range r.goals {
			if r.goalTaken[gi] || g.TransactionType != b.TransactionType || g.TransactionDate != b.TransactionDate {
				continue
			}
			cand = append(cand, gi)
			amounts = append(amounts, g.TotalAmount)
		}
		picked := findSplit(amounts, b.TotalAmount, r.tol.For(b.TotalAmount))
		if picked == nil {
			continue
		}
		r.record(domain.MatchTypeSplitLedgerToBank, splitConfidence, []int{bi}, selectIndices(cand, picked))
	}
}

func (r *run) record(t domain.MatchType, confidence float64, bankIdx, goalIdx []int) {
	m := domain.Match{
		Type:        t,
		Confidence:  confidence,
		BankTotal:   decimal.Zero,
		LedgerTotal: decimal.Zero,
	}
	for _, bi := range bankIdx {
		r.bankTaken[bi] = true
		m.BankTransactionIDs = append(m.BankTransactionIDs, r.bank[bi].ID)
		m.BankTotal = m.BankTotal.Add(r.bank[bi].TotalAmount)
	}
	for _, gi := range goalIdx {
		r.goalTaken[gi] = true
		g := r.goals[gi]
		m.GoalTransactionCodes = append(m.GoalTransactionCodes, g.Code)
		m.PostingIDs = append(m.PostingIDs, g.PostingIDs...)
		m.LedgerTotal = m.LedgerTotal.Add(g.TotalAmount)
	}
	r.matches = append(r.matches, m)
}

func selectIndices(cand, picked []int) []int {
	out := make([]int, len(picked))
	for i, p := range picked {
		out[i] = cand[p]
	}
	return out
}

func absDays(b domain.BankTransaction, g domain.GoalTransaction) int {
	d := b.TransactionDate.DaysSince(g.TransactionDate)
	if d < 0 {
		return -d
	}
	return d
}

// amountMatchConfidence decays linearly from 0.8 on the same day to 0.5 at
// the edge of the window, rounded to four places.
func amountMatchConfidence(days, window int) float64 {
	if window <= 0 {
		return amountConfidence
	}
	c := amountConfidence - float64(days)/float64(window)*amountDecay
	return math.Round(c*10000) / 10000
}
