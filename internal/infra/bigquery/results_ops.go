package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
)

// ApplyMatchWithClient marks the match's bank transactions and every posting
// under its codes as matched in one transaction. Missing records fail the
// call before anything is written; records already claimed fail it inside
// the transaction.
func ApplyMatchWithClient(ctx context.Context, client *bigquery.Client, dataset string, m domain.Match) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := checkExists(ctx, client, dataset, "ApplyMatch", m.BankTransactionIDs, m.GoalTransactionCodes); err != nil {
		return err
	}

	sql := applyMatchScript(tableRef(client, dataset, bankTable), tableRef(client, dataset, postingsTable))
	err := runWithClient(ctx, client, "ApplyMatchWithClient", sql, []bigquery.QueryParameter{
		{Name: "matched", Value: string(domain.MatchStatusMatched)},
		{Name: "codes_joined", Value: strings.Join(m.GoalTransactionCodes, ",")},
		{Name: "confidence", Value: m.Confidence},
		{Name: "bank_ids", Value: m.BankTransactionIDs},
		{Name: "codes", Value: m.GoalTransactionCodes},
	})
	return claimError("ApplyMatch", err)
}

func applyMatchScript(bankRef, postingsRef string) string {
	return transactionScript(
		assertBankUnclaimed(bankRef),
		assertCodesUnmatched(postingsRef),
		fmt.Sprintf(`
		UPDATE %s
		SET match_status = @matched,
		    matched_goal_transaction_code = @codes_joined,
		    match_confidence = @confidence
		WHERE bank_transaction_id IN UNNEST(@bank_ids)`, bankRef),
		fmt.Sprintf(`
		UPDATE %s
		SET match_status = @matched
		WHERE goal_transaction_code IN UNNEST(@codes)
		  AND %s`, postingsRef, notTransferReversal),
	)
}

// BulkReviewWithClient writes one review onto bank transactions and onto
// every posting of the given codes in one transaction.
func BulkReviewWithClient(ctx context.Context, client *bigquery.Client, dataset string, bankIDs, codes []string, review domain.Review) error {
	if len(bankIDs) == 0 && len(codes) == 0 {
		return nil
	}
	if err := checkExists(ctx, client, dataset, "BulkReview", bankIDs, codes); err != nil {
		return err
	}

	params := append(reviewParams(review),
		bigquery.QueryParameter{Name: "matched", Value: string(domain.MatchStatusMatched)})
	if len(bankIDs) > 0 {
		params = append(params, bigquery.QueryParameter{Name: "bank_ids", Value: bankIDs})
	}
	if len(codes) > 0 {
		params = append(params, bigquery.QueryParameter{Name: "codes", Value: codes})
	}

	sql := bulkReviewScript(tableRef(client, dataset, bankTable), tableRef(client, dataset, postingsTable),
		len(bankIDs) > 0, len(codes) > 0)
	err := runWithClient(ctx, client, "BulkReviewWithClient", sql, params)
	return claimError("BulkReview", err)
}

func bulkReviewScript(bankRef, postingsRef string, withBank, withCodes bool) string {
	var checks, updates []string
	if withBank {
		checks = append(checks, assertBankUnclaimed(bankRef))
		updates = append(updates, fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE bank_transaction_id IN UNNEST(@bank_ids)`, bankRef, reviewAssignments))
	}
	if withCodes {
		checks = append(checks, assertCodesUnmatched(postingsRef))
		updates = append(updates, fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE goal_transaction_code IN UNNEST(@codes)
		  AND %s`, postingsRef, reviewAssignments, notTransferReversal))
	}
	return transactionScript(append(checks, updates...)...)
}

// LinkReversalWithClient tags both transactions and points each at the
// other.
func LinkReversalWithClient(ctx context.Context, client *bigquery.Client, dataset, id1, id2 string, review domain.Review) error {
	if err := checkExists(ctx, client, dataset, "LinkReversal", []string{id1, id2}, nil); err != nil {
		return err
	}

	params := append(reviewParams(review),
		bigquery.QueryParameter{Name: "id1", Value: id1},
		bigquery.QueryParameter{Name: "id2", Value: id2},
		bigquery.QueryParameter{Name: "bank_ids", Value: []string{id1, id2}},
		bigquery.QueryParameter{Name: "matched", Value: string(domain.MatchStatusMatched)},
	)
	err := runWithClient(ctx, client, "LinkReversalWithClient", linkReversalScript(tableRef(client, dataset, bankTable)), params)
	return claimError("LinkReversal", err)
}

func linkReversalScript(bankRef string) string {
	return transactionScript(
		assertBankUnclaimed(bankRef),
		fmt.Sprintf(`
		UPDATE %s
		SET %s,
		    reversal_pair_id = IF(bank_transaction_id = @id1, @id2, @id1)
		WHERE bank_transaction_id IN (@id1, @id2)`, bankRef, reviewAssignments),
	)
}

// claimConflict prefixes the ASSERT descriptions below so a failed
// assertion can be told apart from other job errors.
const claimConflict = "claim conflict"

func assertBankUnclaimed(bankRef string) string {
	return fmt.Sprintf(`
		ASSERT NOT EXISTS (
		  SELECT 1 FROM %s
		  WHERE bank_transaction_id IN UNNEST(@bank_ids)
		    AND (match_status = @matched OR IFNULL(reversal_pair_id, '') != '')
		) AS '%s: bank transaction already matched or in a reversal pair'`, bankRef, claimConflict)
}

func assertCodesUnmatched(postingsRef string) string {
	return fmt.Sprintf(`
		ASSERT NOT EXISTS (
		  SELECT 1 FROM %s
		  WHERE goal_transaction_code IN UNNEST(@codes)
		    AND match_status = @matched
		    AND %s
		) AS '%s: goal transaction already matched'`, postingsRef, notTransferReversal, claimConflict)
}

// claimError turns a failed claim assertion into a Conflict. The script
// rolls back, so nothing was written.
func claimError(op string, err error) error {
	if err == nil || !strings.Contains(err.Error(), claimConflict) {
		return err
	}
	msg := err.Error()
	if i := strings.Index(msg, claimConflict+": "); i >= 0 {
		msg = msg[i+len(claimConflict)+2:]
	}
	return domain.NewConflictError(op, msg)
}

// UnlinkReversalWithClient clears the review and pair reference on both
// sides.
func UnlinkReversalWithClient(ctx context.Context, client *bigquery.Client, dataset, id1, id2 string) error {
	if err := checkExists(ctx, client, dataset, "UnlinkReversal", []string{id1, id2}, nil); err != nil {
		return err
	}

	sql := transactionScript(fmt.Sprintf(`
		UPDATE %s
		SET review_tag = NULL,
		    review_notes = NULL,
		    reviewed_by = NULL,
		    reviewed_at = NULL,
		    reversal_pair_id = NULL
		WHERE bank_transaction_id IN (@id1, @id2)`, tableRef(client, dataset, bankTable)))

	return runWithClient(ctx, client, "UnlinkReversalWithClient", sql, []bigquery.QueryParameter{
		{Name: "id1", Value: id1},
		{Name: "id2", Value: id2},
	})
}

const reviewAssignments = `review_tag = @review_tag,
		    review_notes = @review_notes,
		    reviewed_by = @reviewed_by,
		    reviewed_at = @reviewed_at`

func reviewParams(r domain.Review) []bigquery.QueryParameter {
	tag, notes, by, _ := reviewColumns(r)
	return []bigquery.QueryParameter{
		{Name: "review_tag", Value: tag},
		{Name: "review_notes", Value: notes},
		{Name: "reviewed_by", Value: by},
		{Name: "reviewed_at", Value: reviewedAtParam(r.ReviewedAt)},
	}
}

// checkExists returns a NotFound error naming the first missing bank
// transaction or goal transaction code.
func checkExists(ctx context.Context, client *bigquery.Client, dataset, op string, bankIDs, codes []string) error {
	gone, err := missingBankIDs(ctx, client, dataset, bankIDs)
	if err != nil {
		return err
	}
	if len(gone) > 0 {
		return domain.NewNotFoundError(op, "bank transaction "+gone[0]+" not found")
	}
	gone, err = missingCodes(ctx, client, dataset, codes)
	if err != nil {
		return err
	}
	if len(gone) > 0 {
		return domain.NewNotFoundError(op, "goal transaction "+gone[0]+" not found")
	}
	return nil
}
