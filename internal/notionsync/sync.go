// Package notionsync publishes unmatched reconciliation items to a Notion
// database that reviewers work from.
package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/export"
	"github.com/dvloznov/goal-reconciliation/internal/logger"
	"github.com/dvloznov/goal-reconciliation/internal/reconcile"
	"github.com/jomei/notionapi"
)

// BatchSize is the number of items written between progress logs, and the
// page size used when reading the board.
const BatchSize = 100

// Result counts what a sync did. In dry-run mode it counts what it would do.
type Result struct {
	Goals    int `json:"goals"`
	Items    int `json:"items"`
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Archived int `json:"archived"`
	Failed   int `json:"failed"`
}

// SyncReviewBoard upserts every unmatched item of the goals passing f onto
// the board, keyed by Item ID, and archives pages of those goals whose item
// is no longer unmatched. Pages of goals outside f are left alone.
// Individual page failures are logged and counted, not returned.
func SyncReviewBoard(ctx context.Context, source VarianceSource, notionClient NotionService, databaseID string, f reconcile.SummaryFilter, r domain.DateRange, dryRun bool) (*Result, error) {
	log := logger.FromContext(ctx)
	if databaseID == "" {
		return nil, domain.NewValidationError("SyncReviewBoard", "notion database id is required")
	}

	log.Info().
		Str("from", r.From.String()).
		Str("to", r.To.String()).
		Bool("dry_run", dryRun).
		Msg("Starting review board sync")

	items, inScope, err := collectItems(ctx, source, f, r)
	if err != nil {
		return nil, err
	}
	res := &Result{Goals: len(inScope), Items: len(items)}

	pages, err := queryAllNotionPages(ctx, notionClient, databaseID)
	if err != nil {
		return nil, fmt.Errorf("SyncReviewBoard: %w", err)
	}
	log.Info().
		Int("item_count", len(items)).
		Int("notion_page_count", len(pages)).
		Msg("Loaded unmatched items and board pages")

	wanted := make(map[string]bool, len(items))
	for _, it := range items {
		wanted[it.ID] = true
	}

	// Archive stale pages and duplicates; remember one page per live item.
	existing := make(map[string]string, len(pages))
	for _, page := range pages {
		itemID := extractItemID(page)
		pageID := string(page.ID)
		if itemID != "" {
			if !inScope[extractGoalID(page)] {
				continue
			}
			if _, dup := existing[itemID]; wanted[itemID] && !dup {
				existing[itemID] = pageID
				continue
			}
		}

		if dryRun {
			log.Info().Str("item_id", itemID).Str("page_id", pageID).Msg("[DRY RUN] Would archive Notion page")
			res.Archived++
			continue
		}
		if err := notionClient.ArchivePage(ctx, pageID); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Warn().Err(err).Str("item_id", itemID).Str("page_id", pageID).Msg("Failed to archive Notion page")
			res.Failed++
			continue
		}
		log.Debug().Str("item_id", itemID).Str("page_id", pageID).Msg("Archived Notion page")
		res.Archived++
	}

	for i := 0; i < len(items); i += BatchSize {
		end := min(i+BatchSize, len(items))
		log.Info().
			Int("batch_start", i).
			Int("batch_end", end).
			Msg("Processing batch")

		for _, it := range items[i:end] {
			pageID, found := existing[it.ID]

			if dryRun {
				if found {
					log.Info().Str("item_id", it.ID).Str("page_id", pageID).Msg("[DRY RUN] Would update Notion page")
					res.Updated++
				} else {
					log.Info().Str("item_id", it.ID).Msg("[DRY RUN] Would create Notion page")
					res.Created++
				}
				continue
			}

			if err := upsert(ctx, notionClient, databaseID, pageID, it); err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				log.Warn().Err(err).Str("item_id", it.ID).Msg("Failed to write Notion page")
				res.Failed++
				continue
			}
			if found {
				res.Updated++
			} else {
				res.Created++
			}
		}
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("archived", res.Archived).
		Int("failed", res.Failed).
		Msg("Review board sync completed")
	return res, nil
}

func upsert(ctx context.Context, notionClient NotionService, databaseID, pageID string, it Item) error {
	if pageID != "" {
		_, err := notionClient.UpdatePage(ctx, pageID, it.Properties())
		return err
	}
	_, err := notionClient.CreatePage(ctx, databaseID, it.Properties())
	return err
}

// collectItems loads the unmatched items of every goal passing f. The
// returned set holds the ids of all those goals, including the ones with
// nothing unmatched.
func collectItems(ctx context.Context, source VarianceSource, f reconcile.SummaryFilter, r domain.DateRange) ([]Item, map[string]bool, error) {
	summaries, err := export.CollectSummaries(ctx, source, f, r)
	if err != nil {
		return nil, nil, err
	}

	var items []Item
	inScope := make(map[string]bool, len(summaries))
	for _, s := range summaries {
		inScope[s.Goal.ID] = true
		if s.UnmatchedCount == 0 {
			continue
		}
		vt, err := source.GetVarianceTransactions(ctx, s.Goal.ID, r)
		if err != nil {
			return nil, nil, err
		}
		for _, b := range vt.UnmatchedBank {
			items = append(items, BankItem(s.Goal, b))
		}
		for _, g := range vt.UnmatchedGoal {
			items = append(items, GoalItem(s.Goal, g))
		}
	}
	return items, inScope, nil
}

// queryAllNotionPages reads every page of a database, following cursors.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: BatchSize}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}
		all = append(all, resp.Results...)

		if !resp.HasMore {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}

// Board binds a source and a database so callers only pass the selection.
type Board struct {
	source     VarianceSource
	client     NotionService
	databaseID string
}

// NewBoard creates a Board.
func NewBoard(source VarianceSource, client NotionService, databaseID string) *Board {
	return &Board{source: source, client: client, databaseID: databaseID}
}

// Sync runs SyncReviewBoard against the bound database.
func (b *Board) Sync(ctx context.Context, f reconcile.SummaryFilter, r domain.DateRange, dryRun bool) (*Result, error) {
	return SyncReviewBoard(ctx, b.source, b.client, b.databaseID, f, r, dryRun)
}
