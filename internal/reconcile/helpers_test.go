package reconcile

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/shopspring/decimal"
)

func day(y, m, d int) civil.Date {
	return civil.Date{Year: y, Month: time.Month(m), Day: d}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func bankTxn(id, extID string, t domain.TransactionType, date civil.Date, amount string) domain.BankTransaction {
	return domain.BankTransaction{
		ID:                    id,
		GoalID:                "goal-1",
		ExternalTransactionID: extID,
		TransactionType:       t,
		TransactionDate:       date,
		TotalAmount:           dec(amount),
		FundAmounts:           domain.FundAmounts{dec(amount)},
		MatchStatus:           domain.MatchStatusUnmatched,
	}
}

func goalTxn(code, extID string, t domain.TransactionType, date civil.Date, amount string) domain.GoalTransaction {
	return domain.GoalTransaction{
		Code:                  code,
		GoalID:                "goal-1",
		ExternalTransactionID: extID,
		TransactionType:       t,
		TransactionDate:       date,
		TotalAmount:           dec(amount),
		FundAmounts:           domain.FundAmounts{dec(amount)},
		PostingIDs:            []string{code + "-p1"},
		MatchStatus:           domain.MatchStatusUnmatched,
	}
}

func posting(id, code, fund string, t domain.TransactionType, date civil.Date, amount string) domain.LedgerPosting {
	return domain.LedgerPosting{
		ID:                  id,
		GoalID:              "goal-1",
		FundCode:            fund,
		TransactionType:     t,
		TransactionDate:     date,
		Amount:              dec(amount),
		GoalTransactionCode: code,
		MatchStatus:         domain.MatchStatusUnmatched,
	}
}

const (
	deposit    = domain.TransactionTypeDeposit
	withdrawal = domain.TransactionTypeWithdrawal
)
