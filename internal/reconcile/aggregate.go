package reconcile

import (
	"fmt"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/shopspring/decimal"
)

// Aggregate groups ledger postings into goal transactions by
// goalTransactionCode, in the order codes are first seen. Transfer reversal
// postings are skipped.
//
// All postings under one code must share date and type. A code that breaks
// this is rejected rather than coerced to its first posting.
func Aggregate(postings []domain.LedgerPosting) ([]domain.GoalTransaction, error) {
	var (
		out   []domain.GoalTransaction
		index = make(map[string]int)
		// allMatched tracks whether every posting of a code is matched.
		allMatched = make(map[string]bool)
	)

	for _, p := range postings {
		if p.TransferReversal() {
			continue
		}
		if p.GoalTransactionCode == "" {
			return nil, &domain.Error{Kind: domain.KindProcessing, Op: "Aggregate",
				Message: fmt.Sprintf("posting %s has no goal transaction code", p.ID)}
		}
		fund, ok := domain.FundIndex(p.FundCode)
		if !ok {
			return nil, &domain.Error{Kind: domain.KindProcessing, Op: "Aggregate",
				Message: fmt.Sprintf("posting %s has unknown fund code %q", p.ID, p.FundCode)}
		}

		i, seen := index[p.GoalTransactionCode]
		if !seen {
			gt := domain.GoalTransaction{
				Code:            p.GoalTransactionCode,
				GoalID:          p.GoalID,
				TransactionDate: p.TransactionDate,
				TransactionType: p.TransactionType,
				TotalAmount:     decimal.Zero,
			}
			for f := range gt.FundAmounts {
				gt.FundAmounts[f] = decimal.Zero
			}
			out = append(out, gt)
			i = len(out) - 1
			index[p.GoalTransactionCode] = i
			allMatched[p.GoalTransactionCode] = true
		}

		gt := &out[i]
		if gt.TransactionDate != p.TransactionDate {
			return nil, &domain.Error{Kind: domain.KindProcessing, Op: "Aggregate",
				Message: fmt.Sprintf("postings under %s disagree on date (%s vs %s)", gt.Code, gt.TransactionDate, p.TransactionDate)}
		}
		if gt.TransactionType != p.TransactionType {
			return nil, &domain.Error{Kind: domain.KindProcessing, Op: "Aggregate",
				Message: fmt.Sprintf("postings under %s disagree on type (%s vs %s)", gt.Code, gt.TransactionType, p.TransactionType)}
		}

		gt.TotalAmount = gt.TotalAmount.Add(p.Amount)
		gt.FundAmounts[fund] = gt.FundAmounts[fund].Add(p.Amount)
		gt.PostingIDs = append(gt.PostingIDs, p.ID)

		if gt.ExternalTransactionID == "" {
			gt.ExternalTransactionID = p.ExternalTransactionID
		}
		inheritReview(&gt.Review, p.Review)
		if p.MatchStatus != domain.MatchStatusMatched {
			allMatched[p.GoalTransactionCode] = false
		}
	}

	for i := range out {
		if allMatched[out[i].Code] {
			out[i].MatchStatus = domain.MatchStatusMatched
		} else {
			out[i].MatchStatus = domain.MatchStatusUnmatched
		}
	}
	return out, nil
}

// inheritReview fills each empty field of dst from src.
func inheritReview(dst *domain.Review, src domain.Review) {
	if dst.Tag == "" {
		dst.Tag = src.Tag
	}
	if dst.Notes == "" {
		dst.Notes = src.Notes
	}
	if dst.ReviewedBy == "" {
		dst.ReviewedBy = src.ReviewedBy
	}
	if dst.ReviewedAt == nil {
		dst.ReviewedAt = src.ReviewedAt
	}
}
