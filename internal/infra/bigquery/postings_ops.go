package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/store"
	"google.golang.org/api/iterator"
)

// ListLedgerPostingsWithClient returns a goal's postings inside the range,
// ordered by date, code then id. Transfer reversals are excluded.
func ListLedgerPostingsWithClient(ctx context.Context, client *bigquery.Client, dataset, goalID string, r domain.DateRange) ([]domain.LedgerPosting, error) {
	params := []bigquery.QueryParameter{{Name: "goal_id", Value: goalID}}
	dates, params := rangeClause(r, params)

	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE goal_id = @goal_id
		  AND %s%s
		ORDER BY transaction_date, goal_transaction_code, posting_id
	`, strings.Join(postingColumns, ", "), tableRef(client, dataset, postingsTable), notTransferReversal, dates))
	q.Parameters = params

	return readPostings(ctx, q, "ListLedgerPostingsWithClient")
}

// ListPostingsByCodeWithClient returns every posting under one goal
// transaction code, transfer reversals excluded.
func ListPostingsByCodeWithClient(ctx context.Context, client *bigquery.Client, dataset, code string) ([]domain.LedgerPosting, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE goal_transaction_code = @code
		  AND %s
		ORDER BY transaction_date, goal_transaction_code, posting_id
	`, strings.Join(postingColumns, ", "), tableRef(client, dataset, postingsTable), notTransferReversal))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "code", Value: code},
	}

	return readPostings(ctx, q, "ListPostingsByCodeWithClient")
}

// SaveLedgerPostingsWithClient replaces postings by id in one transaction.
func SaveLedgerPostingsWithClient(ctx context.Context, client *bigquery.Client, dataset string, postings []domain.LedgerPosting) error {
	if len(postings) == 0 {
		return nil
	}

	ids := make([]string, 0, len(postings))
	rows := make([]LedgerPostingRow, 0, len(postings))
	for _, p := range postings {
		if err := store.ValidateLedgerPosting(p); err != nil {
			return err
		}
		ids = append(ids, p.ID)
		rows = append(rows, postingToRow(p))
	}

	sql := transactionScript(replaceRowsStatements(tableRef(client, dataset, postingsTable), "posting_id", postingColumns)...)
	return runWithClient(ctx, client, "SaveLedgerPostingsWithClient", sql, []bigquery.QueryParameter{
		{Name: "ids", Value: ids},
		{Name: "rows", Value: rows},
	})
}

// missingCodes returns the codes that have no posting, in input order.
func missingCodes(ctx context.Context, client *bigquery.Client, dataset string, codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	q := client.Query(fmt.Sprintf(`
		SELECT DISTINCT goal_transaction_code
		FROM %s
		WHERE goal_transaction_code IN UNNEST(@codes)
		  AND %s
	`, tableRef(client, dataset, postingsTable), notTransferReversal))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "codes", Value: codes},
	}

	found, err := readStrings(ctx, q, "missingCodes")
	if err != nil {
		return nil, err
	}
	return missing(codes, found), nil
}

func readPostings(ctx context.Context, q *bigquery.Query, op string) ([]domain.LedgerPosting, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: reading query: %w", op, err)
	}

	var postings []domain.LedgerPosting
	for {
		var row LedgerPostingRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iterating: %w", op, err)
		}
		postings = append(postings, postingFromRow(row))
	}
	return postings, nil
}
