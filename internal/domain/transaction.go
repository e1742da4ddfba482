package domain

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a movement.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeWithdrawal
}

// Opposite returns the other direction.
func (t TransactionType) Opposite() TransactionType {
	if t == TransactionTypeDeposit {
		return TransactionTypeWithdrawal
	}
	return TransactionTypeDeposit
}

// Signed returns amount with the sign implied by the direction:
// deposits are positive, withdrawals negative.
func (t TransactionType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t == TransactionTypeWithdrawal {
		return amount.Abs().Neg()
	}
	return amount.Abs()
}

// MatchStatus is the persisted match state of a bank transaction or posting.
type MatchStatus string

const (
	MatchStatusUnmatched MatchStatus = "UNMATCHED"
	MatchStatusMatched   MatchStatus = "MATCHED"
)

// LedgerSourceTransferReversal marks internal transfer reversal postings.
// They never take part in aggregation or comparison.
const LedgerSourceTransferReversal = "TRANSFER_REVERSAL"

// Goal is an investment objective owned by an account.
type Goal struct {
	ID            string `json:"id"`
	GoalNumber    string `json:"goal_number"`
	AccountID     string `json:"account_id"`
	AccountNumber string `json:"account_number"`
	ClientName    string `json:"client_name"`
}

// Review holds the review fields shared by bank transactions, postings and
// goal transactions.
type Review struct {
	Tag        ReviewTag  `json:"review_tag,omitempty"`
	Notes      string     `json:"review_notes,omitempty"`
	ReviewedBy string     `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

// Tagged reports whether a review tag has been set.
func (r Review) Tagged() bool {
	return r.Tag != ""
}

// BankTransaction is one movement reported by the bank or payment channel.
type BankTransaction struct {
	ID                    string          `json:"id"`
	GoalID                string          `json:"goal_id"`
	ExternalTransactionID string          `json:"external_transaction_id,omitempty"`
	TransactionType       TransactionType `json:"transaction_type"`
	TransactionDate       civil.Date      `json:"transaction_date"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	FundAmounts           FundAmounts     `json:"fund_amounts"`

	MatchStatus                MatchStatus `json:"match_status"`
	MatchedGoalTransactionCode string      `json:"matched_goal_transaction_code,omitempty"`
	MatchConfidence            *float64    `json:"match_confidence,omitempty"`

	Review

	// ReversalPairID is the id of the other side of a linked reversal pair.
	ReversalPairID string `json:"reversal_pair_id,omitempty"`
}

// Matched reports whether a match has been persisted for the transaction.
func (b BankTransaction) Matched() bool {
	return b.MatchStatus == MatchStatusMatched
}

// InReversalPair reports whether the transaction is linked to a reversal.
func (b BankTransaction) InReversalPair() bool {
	return b.ReversalPairID != ""
}

// LedgerPosting is one per-fund line recorded in the internal ledger.
type LedgerPosting struct {
	ID                    string          `json:"id"`
	GoalID                string          `json:"goal_id"`
	FundCode              string          `json:"fund_code"`
	ExternalTransactionID string          `json:"external_transaction_id,omitempty"`
	TransactionType       TransactionType `json:"transaction_type"`
	TransactionDate       civil.Date      `json:"transaction_date"`
	Amount                decimal.Decimal `json:"amount"`
	GoalTransactionCode   string          `json:"goal_transaction_code"`
	Source                string          `json:"source,omitempty"`
	MatchStatus           MatchStatus     `json:"match_status"`

	Review
}

// TransferReversal reports whether the posting is an internal transfer
// reversal.
func (p LedgerPosting) TransferReversal() bool {
	return p.Source == LedgerSourceTransferReversal
}

// GoalTransaction is the aggregate of all postings sharing one code.
// It is never stored; writes against it fan out to its postings.
type GoalTransaction struct {
	Code                  string          `json:"code"`
	GoalID                string          `json:"goal_id"`
	TransactionDate       civil.Date      `json:"transaction_date"`
	ExternalTransactionID string          `json:"external_transaction_id,omitempty"`
	TransactionType       TransactionType `json:"transaction_type"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	FundAmounts           FundAmounts     `json:"fund_amounts"`
	PostingIDs            []string        `json:"posting_ids"`
	MatchStatus           MatchStatus     `json:"match_status"`

	Review
}

// Matched reports whether every posting of the goal transaction is matched.
func (g GoalTransaction) Matched() bool {
	return g.MatchStatus == MatchStatusMatched
}

// DateRange is an inclusive range of calendar days. A zero bound is open.
type DateRange struct {
	From civil.Date `json:"from"`
	To   civil.Date `json:"to"`
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d civil.Date) bool {
	if !r.From.IsZero() && d.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && d.After(r.To) {
		return false
	}
	return true
}

// Validate checks that both bounds are valid dates and ordered.
func (r DateRange) Validate() error {
	if !r.From.IsZero() && !r.From.IsValid() {
		return NewValidationError("DateRange", "from is not a valid date")
	}
	if !r.To.IsZero() && !r.To.IsValid() {
		return NewValidationError("DateRange", "to is not a valid date")
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return NewValidationError("DateRange", "to is before from")
	}
	return nil
}

type dateRangeJSON struct {
	From *civil.Date `json:"from,omitempty"`
	To   *civil.Date `json:"to,omitempty"`
}

// MarshalJSON leaves open bounds out instead of writing 0000-00-00, which
// civil cannot parse back.
func (r DateRange) MarshalJSON() ([]byte, error) {
	var out dateRangeJSON
	if !r.From.IsZero() {
		out.From = &r.From
	}
	if !r.To.IsZero() {
		out.To = &r.To
	}
	return json.Marshal(out)
}

// UnmarshalJSON treats missing or null bounds as open.
func (r *DateRange) UnmarshalJSON(data []byte) error {
	var in dateRangeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = DateRange{}
	if in.From != nil {
		r.From = *in.From
	}
	if in.To != nil {
		r.To = *in.To
	}
	return nil
}

// DateOf strips time of day and timezone from t.
func DateOf(t time.Time) civil.Date {
	return civil.DateOf(t)
}
