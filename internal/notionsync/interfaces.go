package notionsync

import (
	"context"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/reconcile"
	"github.com/dvloznov/goal-reconciliation/internal/service"
	"github.com/jomei/notionapi"
)

// NotionService is the subset of the Notion API the review board needs.
type NotionService interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	// ArchivePage removes a page from the board. Notion keeps it in trash.
	ArchivePage(ctx context.Context, pageID string) error
}

// VarianceSource provides the goals and unmatched items to publish.
// *service.Service satisfies it.
type VarianceSource interface {
	GetGoalSummary(ctx context.Context, f reconcile.SummaryFilter, r domain.DateRange, page reconcile.Page) (*reconcile.GoalSummaryPage, error)
	GetVarianceTransactions(ctx context.Context, goalID string, r domain.DateRange) (*service.VarianceTransactions, error)
}
