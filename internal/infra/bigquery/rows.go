package bigquery

import (
	"math/big"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/shopspring/decimal"
)

// numericScale is the fractional precision of the BigQuery NUMERIC type.
const numericScale = 9

type GoalRow struct {
	GoalID        string              `bigquery:"goal_id"`        // REQUIRED
	GoalNumber    string              `bigquery:"goal_number"`    // REQUIRED
	AccountID     string              `bigquery:"account_id"`     // REQUIRED
	AccountNumber string              `bigquery:"account_number"` // REQUIRED
	ClientName    bigquery.NullString `bigquery:"client_name"`    // NULLABLE
}

type BankTransactionRow struct {
	BankTransactionID     string              `bigquery:"bank_transaction_id"`     // REQUIRED
	GoalID                string              `bigquery:"goal_id"`                 // REQUIRED
	ExternalTransactionID bigquery.NullString `bigquery:"external_transaction_id"` // NULLABLE
	TransactionType       string              `bigquery:"transaction_type"`        // REQUIRED
	TransactionDate       civil.Date          `bigquery:"transaction_date"`        // REQUIRED

	TotalAmount  *big.Rat `bigquery:"total_amount"`  // REQUIRED NUMERIC
	MMFAmount    *big.Rat `bigquery:"mmf_amount"`    // NULLABLE NUMERIC
	BondAmount   *big.Rat `bigquery:"bond_amount"`   // NULLABLE NUMERIC
	EquityAmount *big.Rat `bigquery:"equity_amount"` // NULLABLE NUMERIC
	REITAmount   *big.Rat `bigquery:"reit_amount"`   // NULLABLE NUMERIC

	MatchStatus                string               `bigquery:"match_status"`                  // REQUIRED
	MatchedGoalTransactionCode bigquery.NullString  `bigquery:"matched_goal_transaction_code"` // NULLABLE
	MatchConfidence            bigquery.NullFloat64 `bigquery:"match_confidence"`              // NULLABLE

	ReviewTag      bigquery.NullString    `bigquery:"review_tag"`       // NULLABLE
	ReviewNotes    bigquery.NullString    `bigquery:"review_notes"`     // NULLABLE
	ReviewedBy     bigquery.NullString    `bigquery:"reviewed_by"`      // NULLABLE
	ReviewedAt     bigquery.NullTimestamp `bigquery:"reviewed_at"`      // NULLABLE
	ReversalPairID bigquery.NullString    `bigquery:"reversal_pair_id"` // NULLABLE
}

type LedgerPostingRow struct {
	PostingID             string              `bigquery:"posting_id"`              // REQUIRED
	GoalID                string              `bigquery:"goal_id"`                 // REQUIRED
	FundCode              string              `bigquery:"fund_code"`               // REQUIRED
	ExternalTransactionID bigquery.NullString `bigquery:"external_transaction_id"` // NULLABLE
	TransactionType       string              `bigquery:"transaction_type"`        // REQUIRED
	TransactionDate       civil.Date          `bigquery:"transaction_date"`        // REQUIRED
	Amount                *big.Rat            `bigquery:"amount"`                  // REQUIRED NUMERIC
	GoalTransactionCode   string              `bigquery:"goal_transaction_code"`   // REQUIRED
	Source                bigquery.NullString `bigquery:"source"`                  // NULLABLE
	MatchStatus           string              `bigquery:"match_status"`            // REQUIRED

	ReviewTag   bigquery.NullString    `bigquery:"review_tag"`   // NULLABLE
	ReviewNotes bigquery.NullString    `bigquery:"review_notes"` // NULLABLE
	ReviewedBy  bigquery.NullString    `bigquery:"reviewed_by"`  // NULLABLE
	ReviewedAt  bigquery.NullTimestamp `bigquery:"reviewed_at"`  // NULLABLE
}

func goalFromRow(r GoalRow) domain.Goal {
	return domain.Goal{
		ID:            r.GoalID,
		GoalNumber:    r.GoalNumber,
		AccountID:     r.AccountID,
		AccountNumber: r.AccountNumber,
		ClientName:    r.ClientName.StringVal,
	}
}

func goalToRow(g domain.Goal) GoalRow {
	return GoalRow{
		GoalID:        g.ID,
		GoalNumber:    g.GoalNumber,
		AccountID:     g.AccountID,
		AccountNumber: g.AccountNumber,
		ClientName:    nullString(g.ClientName),
	}
}

func bankFromRow(r BankTransactionRow) domain.BankTransaction {
	b := domain.BankTransaction{
		ID:                         r.BankTransactionID,
		GoalID:                     r.GoalID,
		ExternalTransactionID:      r.ExternalTransactionID.StringVal,
		TransactionType:            domain.TransactionType(r.TransactionType),
		TransactionDate:            r.TransactionDate,
		TotalAmount:                decimalOf(r.TotalAmount),
		FundAmounts:                domain.FundAmounts{decimalOf(r.MMFAmount), decimalOf(r.BondAmount), decimalOf(r.EquityAmount), decimalOf(r.REITAmount)},
		MatchStatus:                matchStatusOf(r.MatchStatus),
		MatchedGoalTransactionCode: r.MatchedGoalTransactionCode.StringVal,
		Review:                     reviewOf(r.ReviewTag, r.ReviewNotes, r.ReviewedBy, r.ReviewedAt),
		ReversalPairID:             r.ReversalPairID.StringVal,
	}
	if r.MatchConfidence.Valid {
		c := r.MatchConfidence.Float64
		b.MatchConfidence = &c
	}
	return b
}

func bankToRow(b domain.BankTransaction) BankTransactionRow {
	row := BankTransactionRow{
		BankTransactionID:          b.ID,
		GoalID:                     b.GoalID,
		ExternalTransactionID:      nullString(b.ExternalTransactionID),
		TransactionType:            string(b.TransactionType),
		TransactionDate:            b.TransactionDate,
		TotalAmount:                b.TotalAmount.Rat(),
		MMFAmount:                  b.FundAmounts[0].Rat(),
		BondAmount:                 b.FundAmounts[1].Rat(),
		EquityAmount:               b.FundAmounts[2].Rat(),
		REITAmount:                 b.FundAmounts[3].Rat(),
		MatchStatus:                string(matchStatusOf(string(b.MatchStatus))),
		MatchedGoalTransactionCode: nullString(b.MatchedGoalTransactionCode),
		ReversalPairID:             nullString(b.ReversalPairID),
	}
	if b.MatchConfidence != nil {
		row.MatchConfidence = bigquery.NullFloat64{Float64: *b.MatchConfidence, Valid: true}
	}
	row.ReviewTag, row.ReviewNotes, row.ReviewedBy, row.ReviewedAt = reviewColumns(b.Review)
	return row
}

func postingFromRow(r LedgerPostingRow) domain.LedgerPosting {
	return domain.LedgerPosting{
		ID:                    r.PostingID,
		GoalID:                r.GoalID,
		FundCode:              r.FundCode,
		ExternalTransactionID: r.ExternalTransactionID.StringVal,
		TransactionType:       domain.TransactionType(r.TransactionType),
		TransactionDate:       r.TransactionDate,
		Amount:                decimalOf(r.Amount),
		GoalTransactionCode:   r.GoalTransactionCode,
		Source:                r.Source.StringVal,
		MatchStatus:           matchStatusOf(r.MatchStatus),
		Review:                reviewOf(r.ReviewTag, r.ReviewNotes, r.ReviewedBy, r.ReviewedAt),
	}
}

func postingToRow(p domain.LedgerPosting) LedgerPostingRow {
	row := LedgerPostingRow{
		PostingID:             p.ID,
		GoalID:                p.GoalID,
		FundCode:              strings.ToUpper(p.FundCode),
		ExternalTransactionID: nullString(p.ExternalTransactionID),
		TransactionType:       string(p.TransactionType),
		TransactionDate:       p.TransactionDate,
		Amount:                p.Amount.Rat(),
		GoalTransactionCode:   p.GoalTransactionCode,
		Source:                nullString(p.Source),
		MatchStatus:           string(matchStatusOf(string(p.MatchStatus))),
	}
	row.ReviewTag, row.ReviewNotes, row.ReviewedBy, row.ReviewedAt = reviewColumns(p.Review)
	return row
}

// decimalOf converts a NUMERIC value. NULL reads as zero.
func decimalOf(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigRat(r, numericScale)
}

func matchStatusOf(s string) domain.MatchStatus {
	if domain.MatchStatus(s) == domain.MatchStatusMatched {
		return domain.MatchStatusMatched
	}
	return domain.MatchStatusUnmatched
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func reviewOf(tag, notes, by bigquery.NullString, at bigquery.NullTimestamp) domain.Review {
	r := domain.Review{
		Tag:        domain.ReviewTag(tag.StringVal),
		Notes:      notes.StringVal,
		ReviewedBy: by.StringVal,
	}
	if at.Valid {
		t := at.Timestamp.UTC()
		r.ReviewedAt = &t
	}
	return r
}

func reviewColumns(r domain.Review) (tag, notes, by bigquery.NullString, at bigquery.NullTimestamp) {
	tag = nullString(string(r.Tag))
	notes = nullString(r.Notes)
	by = nullString(r.ReviewedBy)
	if r.ReviewedAt != nil {
		at = bigquery.NullTimestamp{Timestamp: r.ReviewedAt.UTC(), Valid: true}
	}
	return tag, notes, by, at
}

// reviewedAtParam turns an optional timestamp into a typed query parameter
// value so NULL can be bound.
func reviewedAtParam(t *time.Time) bigquery.NullTimestamp {
	if t == nil {
		return bigquery.NullTimestamp{}
	}
	return bigquery.NullTimestamp{Timestamp: t.UTC(), Valid: true}
}
