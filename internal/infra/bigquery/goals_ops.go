package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"google.golang.org/api/iterator"
)

// ListGoalsWithClient returns every goal ordered by goal number.
func ListGoalsWithClient(ctx context.Context, client *bigquery.Client, dataset string) ([]domain.Goal, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY goal_number, goal_id
	`, strings.Join(goalColumns, ", "), tableRef(client, dataset, goalsTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListGoalsWithClient: reading query: %w", err)
	}

	var goals []domain.Goal
	for {
		var row GoalRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListGoalsWithClient: iterating: %w", err)
		}
		goals = append(goals, goalFromRow(row))
	}

	return goals, nil
}

// GetGoalWithClient returns one goal or a NotFound error.
func GetGoalWithClient(ctx context.Context, client *bigquery.Client, dataset, goalID string) (*domain.Goal, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE goal_id = @goal_id
		LIMIT 1
	`, strings.Join(goalColumns, ", "), tableRef(client, dataset, goalsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "goal_id", Value: goalID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetGoalWithClient: reading query: %w", err)
	}

	var row GoalRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, domain.NewNotFoundError("GetGoal", "goal "+goalID+" not found")
	}
	if err != nil {
		return nil, fmt.Errorf("GetGoalWithClient: iterating: %w", err)
	}

	g := goalFromRow(row)
	return &g, nil
}

// SaveGoalsWithClient replaces goals by id in one transaction.
func SaveGoalsWithClient(ctx context.Context, client *bigquery.Client, dataset string, goals []domain.Goal) error {
	if len(goals) == 0 {
		return nil
	}

	ids := make([]string, 0, len(goals))
	rows := make([]GoalRow, 0, len(goals))
	for _, g := range goals {
		if g.ID == "" {
			return domain.NewValidationError("SaveGoals", "goal id is required")
		}
		ids = append(ids, g.ID)
		rows = append(rows, goalToRow(g))
	}

	sql := transactionScript(replaceRowsStatements(tableRef(client, dataset, goalsTable), "goal_id", goalColumns)...)
	return runWithClient(ctx, client, "SaveGoalsWithClient", sql, []bigquery.QueryParameter{
		{Name: "ids", Value: ids},
		{Name: "rows", Value: rows},
	})
}
