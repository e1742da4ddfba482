package domain

import "github.com/shopspring/decimal"

// MatchType records which matching pass produced a match.
type MatchType string

const (
	MatchTypeExact             MatchType = "EXACT"
	MatchTypeAmount            MatchType = "AMOUNT"
	MatchTypeSplitBankToLedger MatchType = "SPLIT_BANK_TO_LEDGER"
	MatchTypeSplitLedgerToBank MatchType = "SPLIT_LEDGER_TO_BANK"
)

// Match links bank transactions to goal transactions. Within one run every
// bank id and posting id belongs to at most one match.
type Match struct {
	Type                 MatchType       `json:"match_type"`
	Confidence           float64         `json:"confidence"`
	BankTransactionIDs   []string        `json:"bank_transaction_ids"`
	GoalTransactionCodes []string        `json:"goal_transaction_codes"`
	PostingIDs           []string        `json:"posting_ids"`
	BankTotal            decimal.Decimal `json:"bank_total"`
	LedgerTotal          decimal.Decimal `json:"ledger_total"`
}

// Validate checks the shape required before a match can be applied.
func (m Match) Validate() error {
	switch m.Type {
	case MatchTypeExact, MatchTypeAmount, MatchTypeSplitBankToLedger, MatchTypeSplitLedgerToBank:
	default:
		return NewValidationError("Match", "unknown match_type "+string(m.Type))
	}
	if len(m.BankTransactionIDs) == 0 {
		return NewValidationError("Match", "bank_transaction_ids is empty")
	}
	if len(m.GoalTransactionCodes) == 0 {
		return NewValidationError("Match", "goal_transaction_codes is empty")
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return NewValidationError("Match", "confidence must be between 0 and 1")
	}
	return nil
}
