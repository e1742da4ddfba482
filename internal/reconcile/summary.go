package reconcile

import (
	"strings"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/shopspring/decimal"
)

// VarianceStatus is the goal-level outcome of comparing bank and ledger.
type VarianceStatus string

const (
	VarianceStatusMatched  VarianceStatus = "MATCHED"
	VarianceStatusVariance VarianceStatus = "VARIANCE"
)

// Valid reports whether s is a known variance status.
func (s VarianceStatus) Valid() bool {
	return s == VarianceStatusMatched || s == VarianceStatusVariance
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// SideTotals are the deposit, withdrawal and signed net amounts of one side,
// in total and per fund.
type SideTotals struct {
	Deposits        decimal.Decimal    `json:"deposits"`
	Withdrawals     decimal.Decimal    `json:"withdrawals"`
	Net             decimal.Decimal    `json:"net"`
	FundDeposits    domain.FundAmounts `json:"fund_deposits"`
	FundWithdrawals domain.FundAmounts `json:"fund_withdrawals"`
	FundNet         domain.FundAmounts `json:"fund_net"`
}

func newSideTotals() SideTotals {
	s := SideTotals{Deposits: decimal.Zero, Withdrawals: decimal.Zero, Net: decimal.Zero}
	for i := 0; i < domain.NumFunds; i++ {
		s.FundDeposits[i] = decimal.Zero
		s.FundWithdrawals[i] = decimal.Zero
		s.FundNet[i] = decimal.Zero
	}
	return s
}

func (s *SideTotals) add(t domain.TransactionType, total decimal.Decimal, funds domain.FundAmounts) {
	s.Net = s.Net.Add(t.Signed(total))
	for i := range funds {
		s.FundNet[i] = s.FundNet[i].Add(t.Signed(funds[i]))
	}
	if t == domain.TransactionTypeWithdrawal {
		s.Withdrawals = s.Withdrawals.Add(total.Abs())
		for i := range funds {
			s.FundWithdrawals[i] = s.FundWithdrawals[i].Add(funds[i].Abs())
		}
		return
	}
	s.Deposits = s.Deposits.Add(total.Abs())
	for i := range funds {
		s.FundDeposits[i] = s.FundDeposits[i].Add(funds[i].Abs())
	}
}

// GoalData is the pre-fetched input for one goal over a date range.
type GoalData struct {
	Goal             domain.Goal
	BankTransactions []domain.BankTransaction
	GoalTransactions []domain.GoalTransaction
}

// GoalSummary is the goal-level rollup.
type GoalSummary struct {
	Goal             domain.Goal         `json:"goal"`
	Bank             SideTotals          `json:"bank"`
	Ledger           SideTotals          `json:"ledger"`
	Variance         VectorVariance      `json:"variance"`
	Status           VarianceStatus      `json:"status"`
	ReviewStatus     domain.ReviewStatus `json:"review_status"`
	BankCount        int                 `json:"bank_count"`
	GoalTxnCount     int                 `json:"goal_transaction_count"`
	UnmatchedCount   int                 `json:"unmatched_count"`
	TaggedCount      int                 `json:"tagged_count"`
	UnmatchedBankIDs []string            `json:"unmatched_bank_ids,omitempty"`
	UnmatchedCodes   []string            `json:"unmatched_goal_transaction_codes,omitempty"`
}

// SummaryFilter narrows the goals included in a summary. Empty fields match
// everything; ClientName is a case-insensitive substring.
type SummaryFilter struct {
	GoalID       string              `json:"goal_id,omitempty"`
	AccountID    string              `json:"account_id,omitempty"`
	ClientName   string              `json:"client_name,omitempty"`
	Status       VarianceStatus      `json:"status,omitempty"`
	ReviewStatus domain.ReviewStatus `json:"review_status,omitempty"`
}

// Validate rejects unknown status values.
func (f SummaryFilter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return domain.NewValidationError("SummaryFilter", "unknown status "+string(f.Status))
	}
	switch f.ReviewStatus {
	case "", domain.ReviewStatusNotApplicable, domain.ReviewStatusUnreviewed,
		domain.ReviewStatusPartiallyReviewed, domain.ReviewStatusReviewed:
		return nil
	default:
		return domain.NewValidationError("SummaryFilter", "unknown review_status "+string(f.ReviewStatus))
	}
}

// MatchesGoal applies the filters that only need goal attributes, so callers
// can skip loading transactions for excluded goals.
func (f SummaryFilter) MatchesGoal(g domain.Goal) bool {
	if f.GoalID != "" && g.ID != f.GoalID {
		return false
	}
	if f.AccountID != "" && g.AccountID != f.AccountID {
		return false
	}
	if f.ClientName != "" && !strings.Contains(strings.ToLower(g.ClientName), strings.ToLower(f.ClientName)) {
		return false
	}
	return true
}

// MatchesSummary applies the remaining, computed filters.
func (f SummaryFilter) MatchesSummary(s GoalSummary) bool {
	if !f.MatchesGoal(s.Goal) {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.ReviewStatus != "" && s.ReviewStatus != f.ReviewStatus {
		return false
	}
	return true
}

// Page selects a 1-based page of results.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"page_size"`
}

// Normalize applies defaults and caps the page size.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// SummaryTotals aggregate every goal that passed the filter, not only the
// returned page.
type SummaryTotals struct {
	Goals             int                         `json:"goals"`
	GoalsWithVariance int                         `json:"goals_with_variance"`
	BankDeposits      decimal.Decimal             `json:"bank_deposits"`
	BankWithdrawals   decimal.Decimal             `json:"bank_withdrawals"`
	BankNet           decimal.Decimal             `json:"bank_net"`
	LedgerDeposits    decimal.Decimal             `json:"ledger_deposits"`
	LedgerWithdrawals decimal.Decimal             `json:"ledger_withdrawals"`
	LedgerNet         decimal.Decimal             `json:"ledger_net"`
	Difference        decimal.Decimal             `json:"difference"`
	ByReviewStatus    map[domain.ReviewStatus]int `json:"by_review_status"`
}

// GoalSummaryPage is one page of goal summaries plus totals.
type GoalSummaryPage struct {
	Goals      []GoalSummary `json:"goals"`
	Totals     SummaryTotals `json:"totals"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalCount int           `json:"total_count"`
	TotalPages int           `json:"total_pages"`
}

// FundSummary is the fund-level rollup across goals.
type FundSummary struct {
	FundCode          string          `json:"fund_code"`
	BankDeposits      decimal.Decimal `json:"bank_deposits"`
	BankWithdrawals   decimal.Decimal `json:"bank_withdrawals"`
	BankNet           decimal.Decimal `json:"bank_net"`
	LedgerDeposits    decimal.Decimal `json:"ledger_deposits"`
	LedgerWithdrawals decimal.Decimal `json:"ledger_withdrawals"`
	LedgerNet         decimal.Decimal `json:"ledger_net"`
	Variance          Variance        `json:"variance"`
}

// Projector rolls goal data up into summaries using the tolerance classifier
// and review status function, with no tolerance logic of its own.
type Projector struct {
	Tolerance Tolerance
}

// NewProjector returns a projector using tol.
func NewProjector(tol Tolerance) *Projector {
	return &Projector{Tolerance: tol}
}

// Goal summarises one goal. Ledger net is compared against bank net.
func (p *Projector) Goal(d GoalData) GoalSummary {
	bank := newSideTotals()
	for _, b := range d.BankTransactions {
		bank.add(b.TransactionType, b.TotalAmount, b.FundAmounts)
	}
	ledger := newSideTotals()
	for _, g := range d.GoalTransactions {
		ledger.add(g.TransactionType, g.TotalAmount, g.FundAmounts)
	}

	v := p.Tolerance.CompareVectors(ledger.Net, ledger.FundNet, bank.Net, bank.FundNet)
	status := VarianceStatusMatched
	if v.Exceeds {
		status = VarianceStatusVariance
	}

	u := FindUnmatched(d.BankTransactions, d.GoalTransactions)
	s := GoalSummary{
		Goal:           d.Goal,
		Bank:           bank,
		Ledger:         ledger,
		Variance:       v,
		Status:         status,
		ReviewStatus:   StatusOf(u),
		BankCount:      len(d.BankTransactions),
		GoalTxnCount:   len(d.GoalTransactions),
		UnmatchedCount: u.Count(),
		TaggedCount:    u.Tagged(),
	}
	for _, b := range u.Bank {
		s.UnmatchedBankIDs = append(s.UnmatchedBankIDs, b.ID)
	}
	for _, g := range u.Goal {
		s.UnmatchedCodes = append(s.UnmatchedCodes, g.Code)
	}
	return s
}

// GoalPage filters summaries, computes totals over everything that passed and
// returns the requested page. Input order is kept.
func (p *Projector) GoalPage(summaries []GoalSummary, f SummaryFilter, page Page) GoalSummaryPage {
	page = page.Normalize()

	totals := SummaryTotals{
		BankDeposits:      decimal.Zero,
		BankWithdrawals:   decimal.Zero,
		BankNet:           decimal.Zero,
		LedgerDeposits:    decimal.Zero,
		LedgerWithdrawals: decimal.Zero,
		LedgerNet:         decimal.Zero,
		Difference:        decimal.Zero,
		ByReviewStatus:    make(map[domain.ReviewStatus]int),
	}
	var kept []GoalSummary
	for _, s := range summaries {
		if !f.MatchesSummary(s) {
			continue
		}
		kept = append(kept, s)
		totals.Goals++
		if s.Status == VarianceStatusVariance {
			totals.GoalsWithVariance++
		}
		totals.BankDeposits = totals.BankDeposits.Add(s.Bank.Deposits)
		totals.BankWithdrawals = totals.BankWithdrawals.Add(s.Bank.Withdrawals)
		totals.BankNet = totals.BankNet.Add(s.Bank.Net)
		totals.LedgerDeposits = totals.LedgerDeposits.Add(s.Ledger.Deposits)
		totals.LedgerWithdrawals = totals.LedgerWithdrawals.Add(s.Ledger.Withdrawals)
		totals.LedgerNet = totals.LedgerNet.Add(s.Ledger.Net)
		totals.ByReviewStatus[s.ReviewStatus]++
	}
	totals.Difference = totals.LedgerNet.Sub(totals.BankNet)

	out := GoalSummaryPage{
		Totals:     totals,
		Page:       page.Number,
		PageSize:   page.Size,
		TotalCount: len(kept),
		TotalPages: (len(kept) + page.Size - 1) / page.Size,
		Goals:      []GoalSummary{},
	}
	start := (page.Number - 1) * page.Size
	if start < len(kept) {
		end := start + page.Size
		if end > len(kept) {
			end = len(kept)
		}
		out.Goals = kept[start:end]
	}
	return out
}

// Funds rolls goal summaries up per fund, in fund order.
func (p *Projector) Funds(summaries []GoalSummary) []FundSummary {
	out := make([]FundSummary, domain.NumFunds)
	for i, code := range domain.FundCodes {
		out[i] = FundSummary{
			FundCode:          code,
			BankDeposits:      decimal.Zero,
			BankWithdrawals:   decimal.Zero,
			BankNet:           decimal.Zero,
			LedgerDeposits:    decimal.Zero,
			LedgerWithdrawals: decimal.Zero,
			LedgerNet:         decimal.Zero,
		}
	}
	for _, s := range summaries {
		for i := range out {
			out[i].BankDeposits = out[i].BankDeposits.Add(s.Bank.FundDeposits[i])
			out[i].BankWithdrawals = out[i].BankWithdrawals.Add(s.Bank.FundWithdrawals[i])
			out[i].BankNet = out[i].BankNet.Add(s.Bank.FundNet[i])
			out[i].LedgerDeposits = out[i].LedgerDeposits.Add(s.Ledger.FundDeposits[i])
			out[i].LedgerWithdrawals = out[i].LedgerWithdrawals.Add(s.Ledger.FundWithdrawals[i])
			out[i].LedgerNet = out[i].LedgerNet.Add(s.Ledger.FundNet[i])
		}
	}
	for i := range out {
		out[i].Variance = p.Tolerance.Classify(out[i].LedgerNet, out[i].BankNet)
	}
	return out
}
