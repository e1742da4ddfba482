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

// ListBankTransactionsWithClient returns a goal's bank transactions inside
// the range, ordered by date then id.
func ListBankTransactionsWithClient(ctx context.Context, client *bigquery.Client, dataset, goalID string, r domain.DateRange) ([]domain.BankTransaction, error) {
	params := []bigquery.QueryParameter{{Name: "goal_id", Value: goalID}}
	dates, params := rangeClause(r, params)

	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE goal_id = @goal_id%s
		ORDER BY transaction_date, bank_transaction_id
	`, strings.Join(bankColumns, ", "), tableRef(client, dataset, bankTable), dates))
	q.Parameters = params

	return readBankTransactions(ctx, q, "ListBankTransactionsWithClient")
}

// GetBankTransactionWithClient returns one bank transaction or a NotFound
// error.
func GetBankTransactionWithClient(ctx context.Context, client *bigquery.Client, dataset, id string) (*domain.BankTransaction, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE bank_transaction_id = @id
		LIMIT 1
	`, strings.Join(bankColumns, ", "), tableRef(client, dataset, bankTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "id", Value: id},
	}

	txns, err := readBankTransactions(ctx, q, "GetBankTransactionWithClient")
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, domain.NewNotFoundError("GetBankTransaction", "bank transaction "+id+" not found")
	}
	return &txns[0], nil
}

// SaveBankTransactionsWithClient replaces bank transactions by id in one
// transaction.
func SaveBankTransactionsWithClient(ctx context.Context, client *bigquery.Client, dataset string, txns []domain.BankTransaction) error {
	if len(txns) == 0 {
		return nil
	}

	ids := make([]string, 0, len(txns))
	rows := make([]BankTransactionRow, 0, len(txns))
	for _, t := range txns {
		if err := store.ValidateBankTransaction(t); err != nil {
			return err
		}
		ids = append(ids, t.ID)
		rows = append(rows, bankToRow(t))
	}

	sql := transactionScript(replaceRowsStatements(tableRef(client, dataset, bankTable), "bank_transaction_id", bankColumns)...)
	return runWithClient(ctx, client, "SaveBankTransactionsWithClient", sql, []bigquery.QueryParameter{
		{Name: "ids", Value: ids},
		{Name: "rows", Value: rows},
	})
}

// missingBankIDs returns the ids that have no row, in input order.
func missingBankIDs(ctx context.Context, client *bigquery.Client, dataset string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	q := client.Query(fmt.Sprintf(`
		SELECT bank_transaction_id
		FROM %s
		WHERE bank_transaction_id IN UNNEST(@ids)
	`, tableRef(client, dataset, bankTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "ids", Value: ids},
	}

	found, err := readStrings(ctx, q, "missingBankIDs")
	if err != nil {
		return nil, err
	}
	return missing(ids, found), nil
}

func readBankTransactions(ctx context.Context, q *bigquery.Query, op string) ([]domain.BankTransaction, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: reading query: %w", op, err)
	}

	var txns []domain.BankTransaction
	for {
		var row BankTransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iterating: %w", op, err)
		}
		txns = append(txns, bankFromRow(row))
	}
	return txns, nil
}

// readStrings collects the first column of every row.
func readStrings(ctx context.Context, q *bigquery.Query, op string) ([]string, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: reading query: %w", op, err)
	}

	var out []string
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iterating: %w", op, err)
		}
		if len(row) > 0 {
			if s, ok := row[0].(string); ok {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func missing(want, found []string) []string {
	have := make(map[string]bool, len(found))
	for _, f := range found {
		have[f] = true
	}
	var out []string
	for _, w := range want {
		if !have[w] {
			out = append(out, w)
		}
	}
	return out
}
