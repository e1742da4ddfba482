package notionsync

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
)

// Board column names.
const (
	PropItemID      = "Item ID"
	PropSide        = "Side"
	PropGoal        = "Goal"
	PropClient      = "Client"
	PropDate        = "Date"
	PropType        = "Type"
	PropAmount      = "Amount"
	PropExternalID  = "External ID"
	PropReviewTag   = "Review Tag"
	PropReviewNotes = "Review Notes"
	PropReviewedBy  = "Reviewed By"
	PropStatus      = "Status"
)

const (
	SideBank   = "Bank"
	SideLedger = "Ledger"

	StatusOpen     = "Open"
	StatusReviewed = "Reviewed"

	bankPrefix = "bank:"
	goalPrefix = "goal:"
)

// Item is one unmatched transaction as shown on the board.
type Item struct {
	ID         string
	Side       string
	Goal       domain.Goal
	Date       civil.Date
	Type       domain.TransactionType
	Amount     decimal.Decimal
	ExternalID string
	Review     domain.Review
}

// BankItem builds the board item for an unmatched bank transaction.
func BankItem(goal domain.Goal, b domain.BankTransaction) Item {
	return Item{
		ID:         bankPrefix + b.ID,
		Side:       SideBank,
		Goal:       goal,
		Date:       b.TransactionDate,
		Type:       b.TransactionType,
		Amount:     b.TotalAmount,
		ExternalID: b.ExternalTransactionID,
		Review:     b.Review,
	}
}

// GoalItem builds the board item for an unmatched goal transaction.
func GoalItem(goal domain.Goal, g domain.GoalTransaction) Item {
	return Item{
		ID:         goalPrefix + g.Code,
		Side:       SideLedger,
		Goal:       goal,
		Date:       g.TransactionDate,
		Type:       g.TransactionType,
		Amount:     g.TotalAmount,
		ExternalID: g.ExternalTransactionID,
		Review:     g.Review,
	}
}

// Properties maps an item to page properties. Empty optional fields are
// left out because Notion rejects selects with an empty name.
func (it Item) Properties() notionapi.Properties {
	amount, _ := it.Amount.Float64()
	status := StatusOpen
	if it.Review.Tagged() {
		status = StatusReviewed
	}

	props := notionapi.Properties{
		PropItemID: notionapi.TitleProperty{
			Title: richText(it.ID),
		},
		PropSide:   notionapi.SelectProperty{Select: notionapi.Option{Name: it.Side}},
		PropGoal:   notionapi.RichTextProperty{RichText: richText(it.Goal.ID)},
		PropType:   notionapi.SelectProperty{Select: notionapi.Option{Name: string(it.Type)}},
		PropAmount: notionapi.NumberProperty{Number: amount},
		PropStatus: notionapi.SelectProperty{Select: notionapi.Option{Name: status}},
	}

	if it.Date != (civil.Date{}) {
		d := notionapi.Date(it.Date.In(time.UTC))
		props[PropDate] = notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}
	}
	if it.Goal.ClientName != "" {
		props[PropClient] = notionapi.RichTextProperty{RichText: richText(it.Goal.ClientName)}
	}
	if it.ExternalID != "" {
		props[PropExternalID] = notionapi.RichTextProperty{RichText: richText(it.ExternalID)}
	}
	if it.Review.Tag != "" {
		props[PropReviewTag] = notionapi.SelectProperty{Select: notionapi.Option{Name: string(it.Review.Tag)}}
	}
	if it.Review.Notes != "" {
		props[PropReviewNotes] = notionapi.RichTextProperty{RichText: richText(it.Review.Notes)}
	}
	if it.Review.ReviewedBy != "" {
		props[PropReviewedBy] = notionapi.RichTextProperty{RichText: richText(it.Review.ReviewedBy)}
	}
	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type:      notionapi.ObjectTypeText,
			Text:      &notionapi.Text{Content: s},
			PlainText: s,
		},
	}
}

// extractItemID reads the Item ID title of a page returned by a query.
func extractItemID(page notionapi.Page) string {
	return extractText(page, PropItemID)
}

// extractGoalID reads the Goal column of a page returned by a query.
func extractGoalID(page notionapi.Page) string {
	return extractText(page, PropGoal)
}

func extractText(page notionapi.Page, name string) string {
	var parts []notionapi.RichText
	switch p := page.Properties[name].(type) {
	case *notionapi.TitleProperty:
		parts = p.Title
	case notionapi.TitleProperty:
		parts = p.Title
	case *notionapi.RichTextProperty:
		parts = p.RichText
	case notionapi.RichTextProperty:
		parts = p.RichText
	default:
		return ""
	}
	var sb strings.Builder
	for _, rt := range parts {
		if rt.PlainText != "" {
			sb.WriteString(rt.PlainText)
		} else if rt.Text != nil {
			sb.WriteString(rt.Text.Content)
		}
	}
	return sb.String()
}
