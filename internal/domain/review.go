package domain

import "time"

// ReviewTag classifies why an unmatched item is acceptable.
type ReviewTag string

const (
	ReviewTagTimingDifference  ReviewTag = "TIMING_DIFFERENCE"
	ReviewTagMissingInLedger   ReviewTag = "MISSING_IN_LEDGER"
	ReviewTagMissingInBank     ReviewTag = "MISSING_IN_BANK"
	ReviewTagAmountDiscrepancy ReviewTag = "AMOUNT_DISCREPANCY"
	ReviewTagDuplicate         ReviewTag = "DUPLICATE"
	ReviewTagOther             ReviewTag = "OTHER"

	// ReviewTagReversalNetted is set only by the reversal linker.
	ReviewTagReversalNetted ReviewTag = "REVERSAL_NETTED"
)

var reviewerTags = map[ReviewTag]bool{
	ReviewTagTimingDifference:  true,
	ReviewTagMissingInLedger:   true,
	ReviewTagMissingInBank:     true,
	ReviewTagAmountDiscrepancy: true,
	ReviewTagDuplicate:         true,
	ReviewTagOther:             true,
}

// Selectable reports whether a reviewer may apply the tag by hand.
func (t ReviewTag) Selectable() bool {
	return reviewerTags[t]
}

// ReviewerTags lists the selectable tags in a fixed order.
func ReviewerTags() []ReviewTag {
	return []ReviewTag{
		ReviewTagTimingDifference,
		ReviewTagMissingInLedger,
		ReviewTagMissingInBank,
		ReviewTagAmountDiscrepancy,
		ReviewTagDuplicate,
		ReviewTagOther,
	}
}

// ReviewStatus is the review progress of a goal over a date range.
type ReviewStatus string

const (
	ReviewStatusNotApplicable     ReviewStatus = "NOT_APPLICABLE"
	ReviewStatusUnreviewed        ReviewStatus = "UNREVIEWED"
	ReviewStatusPartiallyReviewed ReviewStatus = "PARTIALLY_REVIEWED"
	ReviewStatusReviewed          ReviewStatus = "REVIEWED"
)

// ReviewInput is what a reviewer submits.
type ReviewInput struct {
	Tag        ReviewTag `json:"review_tag"`
	Notes      string    `json:"review_notes"`
	ReviewedBy string    `json:"reviewed_by"`
}

// Validate rejects missing reviewers, unknown tags and the linker-only tag.
func (in ReviewInput) Validate() error {
	if in.ReviewedBy == "" {
		return NewValidationError("ReviewInput", "reviewed_by is required")
	}
	if in.Tag == "" {
		return NewValidationError("ReviewInput", "review_tag is required")
	}
	if in.Tag == ReviewTagReversalNetted {
		return NewValidationError("ReviewInput", "REVERSAL_NETTED is set by linking a reversal pair")
	}
	if !in.Tag.Selectable() {
		return NewValidationError("ReviewInput", "unknown review_tag "+string(in.Tag))
	}
	return nil
}

// At stamps the input into stored review fields.
func (in ReviewInput) At(t time.Time) Review {
	ts := t.UTC()
	return Review{
		Tag:        in.Tag,
		Notes:      in.Notes,
		ReviewedBy: in.ReviewedBy,
		ReviewedAt: &ts,
	}
}
