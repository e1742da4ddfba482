// Package reviewassist drafts review notes for unmatched items with a
// language model. Drafts are returned to the reviewer and never stored.
package reviewassist

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/service"
	"github.com/rs/zerolog"
)

// VarianceSource loads a goal's unmatched items. *service.Service satisfies it.
type VarianceSource interface {
	GetVarianceTransactions(ctx context.Context, goalID string, r domain.DateRange) (*service.VarianceTransactions, error)
}

// Target names exactly one unmatched item.
type Target struct {
	BankTransactionID   string `json:"bank_transaction_id,omitempty"`
	GoalTransactionCode string `json:"goal_transaction_code,omitempty"`
}

// Validate requires exactly one of the two fields.
func (t Target) Validate() error {
	if (t.BankTransactionID == "") == (t.GoalTransactionCode == "") {
		return domain.NewValidationError("SuggestNote", "exactly one of bank_transaction_id and goal_transaction_code is required")
	}
	return nil
}

// Suggestion is a draft review for a reviewer to accept or edit.
type Suggestion struct {
	GoalID string           `json:"goal_id"`
	Target Target           `json:"target"`
	Tag    domain.ReviewTag `json:"suggested_tag,omitempty"`
	Note   string           `json:"note"`
}

// Assistant builds prompts from variance data and parses model drafts.
type Assistant struct {
	source VarianceSource
	gen    Generator
	log    zerolog.Logger
}

// NewAssistant creates an assistant.
func NewAssistant(source VarianceSource, gen Generator, log zerolog.Logger) *Assistant {
	return &Assistant{source: source, gen: gen, log: log}
}

// SuggestNote drafts a review for one unmatched item of a goal. Items that
// are not currently unmatched are NotFound. A tag the model invents is
// dropped and the note kept.
func (a *Assistant) SuggestNote(ctx context.Context, goalID string, target Target, r domain.DateRange) (*Suggestion, error) {
	const op = "SuggestNote"
	if err := target.Validate(); err != nil {
		return nil, err
	}

	vt, err := a.source.GetVarianceTransactions(ctx, goalID, r)
	if err != nil {
		return nil, err
	}
	if !contains(vt, target) {
		return nil, domain.NewNotFoundError(op, "item is not unmatched for goal "+goalID)
	}

	raw, err := a.gen.Generate(ctx, BuildPrompt(vt, target))
	if err != nil {
		return nil, domain.NewProcessingError(op, err)
	}

	draft, err := parseDraft(raw)
	if err != nil {
		a.log.Warn().Err(err).Str("goal_id", goalID).Msg("Model returned non-JSON draft, using raw text")
		draft = modelDraft{Note: strings.TrimSpace(raw)}
	}

	s := &Suggestion{GoalID: goalID, Target: target, Note: draft.Note}
	tag := domain.ReviewTag(strings.ToUpper(strings.TrimSpace(draft.Tag)))
	if tag.Selectable() {
		s.Tag = tag
	} else if tag != "" {
		a.log.Warn().Str("tag", string(tag)).Str("goal_id", goalID).Msg("Dropping unknown suggested tag")
	}
	return s, nil
}

func contains(vt *service.VarianceTransactions, t Target) bool {
	for _, b := range vt.UnmatchedBank {
		if t.BankTransactionID != "" && b.ID == t.BankTransactionID {
			return true
		}
	}
	for _, g := range vt.UnmatchedGoal {
		if t.GoalTransactionCode != "" && g.Code == t.GoalTransactionCode {
			return true
		}
	}
	return false
}

type modelDraft struct {
	Tag  string `json:"tag"`
	Note string `json:"note"`
}

func parseDraft(raw string) (modelDraft, error) {
	var d modelDraft
	err := json.Unmarshal([]byte(cleanModelJSON(raw)), &d)
	return d, err
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}
