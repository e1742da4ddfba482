package sqlite

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/shopspring/decimal"
)

// Dates are stored as YYYY-MM-DD text so they sort lexically; amounts are
// stored as decimal text so no precision is lost to REAL.

type Goal struct {
	ID            string `gorm:"primaryKey"`
	GoalNumber    string `gorm:"index"`
	AccountID     string `gorm:"index"`
	AccountNumber string
	ClientName    string
}

func (Goal) TableName() string { return "goals" }

type BankTransaction struct {
	ID                    string `gorm:"primaryKey"`
	GoalID                string `gorm:"index:idx_bank_goal_date"`
	ExternalTransactionID string `gorm:"index"`
	TransactionType       string
	TransactionDate       string          `gorm:"index:idx_bank_goal_date"`
	TotalAmount           decimal.Decimal `gorm:"type:text"`
	MMFAmount             decimal.Decimal `gorm:"type:text"`
	BondAmount            decimal.Decimal `gorm:"type:text"`
	EquityAmount          decimal.Decimal `gorm:"type:text"`
	REITAmount            decimal.Decimal `gorm:"type:text"`

	MatchStatus                string `gorm:"index"`
	MatchedGoalTransactionCode string
	MatchConfidence            *float64

	ReviewTag      string
	ReviewNotes    string
	ReviewedBy     string
	ReviewedAt     *time.Time
	ReversalPairID string
}

func (BankTransaction) TableName() string { return "bank_transactions" }

type LedgerPosting struct {
	ID                    string `gorm:"primaryKey"`
	GoalID                string `gorm:"index:idx_posting_goal_date"`
	FundCode              string
	ExternalTransactionID string
	TransactionType       string
	TransactionDate       string          `gorm:"index:idx_posting_goal_date"`
	Amount                decimal.Decimal `gorm:"type:text"`
	GoalTransactionCode   string          `gorm:"index"`
	Source                string
	MatchStatus           string

	ReviewTag   string
	ReviewNotes string
	ReviewedBy  string
	ReviewedAt  *time.Time
}

func (LedgerPosting) TableName() string { return "ledger_postings" }

func goalModel(g domain.Goal) Goal {
	return Goal{ID: g.ID, GoalNumber: g.GoalNumber, AccountID: g.AccountID, AccountNumber: g.AccountNumber, ClientName: g.ClientName}
}

func (m Goal) toDomain() domain.Goal {
	return domain.Goal{ID: m.ID, GoalNumber: m.GoalNumber, AccountID: m.AccountID, AccountNumber: m.AccountNumber, ClientName: m.ClientName}
}

func bankModel(b domain.BankTransaction) BankTransaction {
	m := BankTransaction{
		ID:                         b.ID,
		GoalID:                     b.GoalID,
		ExternalTransactionID:      b.ExternalTransactionID,
		TransactionType:            string(b.TransactionType),
		TransactionDate:            b.TransactionDate.String(),
		TotalAmount:                b.TotalAmount,
		MMFAmount:                  b.FundAmounts[0],
		BondAmount:                 b.FundAmounts[1],
		EquityAmount:               b.FundAmounts[2],
		REITAmount:                 b.FundAmounts[3],
		MatchStatus:                string(statusOrUnmatched(b.MatchStatus)),
		MatchedGoalTransactionCode: b.MatchedGoalTransactionCode,
		ReviewTag:                  string(b.Review.Tag),
		ReviewNotes:                b.Review.Notes,
		ReviewedBy:                 b.Review.ReviewedBy,
		ReviewedAt:                 b.Review.ReviewedAt,
		ReversalPairID:             b.ReversalPairID,
	}
	if b.MatchConfidence != nil {
		c := *b.MatchConfidence
		m.MatchConfidence = &c
	}
	return m
}

func (m BankTransaction) toDomain() (domain.BankTransaction, error) {
	d, err := civil.ParseDate(m.TransactionDate)
	if err != nil {
		return domain.BankTransaction{}, err
	}
	return domain.BankTransaction{
		ID:                         m.ID,
		GoalID:                     m.GoalID,
		ExternalTransactionID:      m.ExternalTransactionID,
		TransactionType:            domain.TransactionType(m.TransactionType),
		TransactionDate:            d,
		TotalAmount:                m.TotalAmount,
		FundAmounts:                domain.FundAmounts{m.MMFAmount, m.BondAmount, m.EquityAmount, m.REITAmount},
		MatchStatus:                statusOrUnmatched(domain.MatchStatus(m.MatchStatus)),
		MatchedGoalTransactionCode: m.MatchedGoalTransactionCode,
		MatchConfidence:            m.MatchConfidence,
		Review:                     review(m.ReviewTag, m.ReviewNotes, m.ReviewedBy, m.ReviewedAt),
		ReversalPairID:             m.ReversalPairID,
	}, nil
}

func postingModel(p domain.LedgerPosting) LedgerPosting {
	return LedgerPosting{
		ID:                    p.ID,
		GoalID:                p.GoalID,
		FundCode:              strings.ToUpper(p.FundCode),
		ExternalTransactionID: p.ExternalTransactionID,
		TransactionType:       string(p.TransactionType),
		TransactionDate:       p.TransactionDate.String(),
		Amount:                p.Amount,
		GoalTransactionCode:   p.GoalTransactionCode,
		Source:                p.Source,
		MatchStatus:           string(statusOrUnmatched(p.MatchStatus)),
		ReviewTag:             string(p.Review.Tag),
		ReviewNotes:           p.Review.Notes,
		ReviewedBy:            p.Review.ReviewedBy,
		ReviewedAt:            p.Review.ReviewedAt,
	}
}

func (m LedgerPosting) toDomain() (domain.LedgerPosting, error) {
	d, err := civil.ParseDate(m.TransactionDate)
	if err != nil {
		return domain.LedgerPosting{}, err
	}
	return domain.LedgerPosting{
		ID:                    m.ID,
		GoalID:                m.GoalID,
		FundCode:              m.FundCode,
		ExternalTransactionID: m.ExternalTransactionID,
		TransactionType:       domain.TransactionType(m.TransactionType),
		TransactionDate:       d,
		Amount:                m.Amount,
		GoalTransactionCode:   m.GoalTransactionCode,
		Source:                m.Source,
		MatchStatus:           statusOrUnmatched(domain.MatchStatus(m.MatchStatus)),
		Review:                review(m.ReviewTag, m.ReviewNotes, m.ReviewedBy, m.ReviewedAt),
	}, nil
}

func statusOrUnmatched(s domain.MatchStatus) domain.MatchStatus {
	if s == domain.MatchStatusMatched {
		return s
	}
	return domain.MatchStatusUnmatched
}

func review(tag, notes, by string, at *time.Time) domain.Review {
	r := domain.Review{Tag: domain.ReviewTag(tag), Notes: notes, ReviewedBy: by}
	if at != nil {
		t := at.UTC()
		r.ReviewedAt = &t
	}
	return r
}
