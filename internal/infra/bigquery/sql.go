package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
)

const (
	goalsTable    = "goals"
	bankTable     = "bank_transactions"
	postingsTable = "ledger_postings"
)

var (
	goalColumns = []string{"goal_id", "goal_number", "account_id", "account_number", "client_name"}

	bankColumns = []string{
		"bank_transaction_id", "goal_id", "external_transaction_id", "transaction_type", "transaction_date",
		"total_amount", "mmf_amount", "bond_amount", "equity_amount", "reit_amount",
		"match_status", "matched_goal_transaction_code", "match_confidence",
		"review_tag", "review_notes", "reviewed_by", "reviewed_at", "reversal_pair_id",
	}

	postingColumns = []string{
		"posting_id", "goal_id", "fund_code", "external_transaction_id", "transaction_type", "transaction_date",
		"amount", "goal_transaction_code", "source", "match_status",
		"review_tag", "review_notes", "reviewed_by", "reviewed_at",
	}
)

// tableRef returns the fully qualified, quoted table name.
func tableRef(client *bigquery.Client, dataset, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", client.Project(), dataset, table)
}

// rangeClause appends inclusive date bounds to a WHERE clause. Open bounds
// add nothing.
func rangeClause(r domain.DateRange, params []bigquery.QueryParameter) (string, []bigquery.QueryParameter) {
	var b strings.Builder
	if !r.From.IsZero() {
		b.WriteString(" AND transaction_date >= @from_date")
		params = append(params, bigquery.QueryParameter{Name: "from_date", Value: r.From})
	}
	if !r.To.IsZero() {
		b.WriteString(" AND transaction_date <= @to_date")
		params = append(params, bigquery.QueryParameter{Name: "to_date", Value: r.To})
	}
	return b.String(), params
}

// notTransferReversal excludes internal transfer reversal postings.
const notTransferReversal = "IFNULL(source, '') != '" + domain.LedgerSourceTransferReversal + "'"

// transactionScript wraps statements in a BigQuery multi-statement
// transaction so they commit or roll back together.
func transactionScript(statements ...string) string {
	var b strings.Builder
	b.WriteString("BEGIN TRANSACTION;\n")
	for _, s := range statements {
		b.WriteString(strings.TrimSpace(s))
		b.WriteString(";\n")
	}
	b.WriteString("COMMIT TRANSACTION;")
	return b.String()
}

// replaceRowsStatements deletes rows by key then inserts the replacements
// from an array-of-struct parameter named rows.
func replaceRowsStatements(table, key string, columns []string) []string {
	cols := strings.Join(columns, ", ")
	return []string{
		fmt.Sprintf("DELETE FROM %s WHERE %s IN UNNEST(@ids)", table, key),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM UNNEST(@rows)", table, cols, cols),
	}
}

// runWithClient runs a statement or script and waits for it to finish.
func runWithClient(ctx context.Context, client *bigquery.Client, op, sql string, params []bigquery.QueryParameter) error {
	q := client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running query: %w", op, err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%s: job error: %w", op, err)
	}
	return nil
}
