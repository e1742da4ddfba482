// Package export writes goal summaries as CSV variance reports and uploads
// them to object storage.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/reconcile"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SummarySource pages through goal summaries.
type SummarySource interface {
	GetGoalSummary(ctx context.Context, f reconcile.SummaryFilter, r domain.DateRange, page reconcile.Page) (*reconcile.GoalSummaryPage, error)
}

// Report describes an uploaded report.
type Report struct {
	RunID string `json:"run_id"`
	URI   string `json:"uri"`
	Goals int    `json:"goals"`
	Bytes int    `json:"bytes"`
}

// Exporter builds and uploads variance reports.
type Exporter struct {
	source   SummarySource
	uploader Uploader
	bucket   string
	log      zerolog.Logger
}

// NewExporter creates an exporter writing to bucket.
func NewExporter(source SummarySource, uploader Uploader, bucket string, log zerolog.Logger) *Exporter {
	return &Exporter{source: source, uploader: uploader, bucket: bucket, log: log}
}

// Export collects every goal passing the filter and uploads the CSV to
// gs://<bucket>/reports/<from>_<to>/<run>.csv.
func (e *Exporter) Export(ctx context.Context, f reconcile.SummaryFilter, r domain.DateRange) (*Report, error) {
	if e.bucket == "" {
		return nil, domain.NewValidationError("Export", "export bucket is not configured")
	}

	summaries, err := CollectSummaries(ctx, e.source, f, r)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, summaries); err != nil {
		return nil, fmt.Errorf("Export: writing csv: %w", err)
	}
	size := buf.Len()

	runID := uuid.NewString()
	object := ObjectName(r, runID)
	if err := e.uploader.Upload(ctx, e.bucket, object, "text/csv", &buf); err != nil {
		return nil, fmt.Errorf("Export: uploading: %w", err)
	}

	report := &Report{
		RunID: runID,
		URI:   fmt.Sprintf("gs://%s/%s", e.bucket, object),
		Goals: len(summaries),
		Bytes: size,
	}
	e.log.Info().
		Str("run_id", runID).
		Str("uri", report.URI).
		Int("goals", report.Goals).
		Msg("Variance report exported")

	return report, nil
}

// CollectSummaries reads every page of goal summaries.
func CollectSummaries(ctx context.Context, source SummarySource, f reconcile.SummaryFilter, r domain.DateRange) ([]reconcile.GoalSummary, error) {
	var out []reconcile.GoalSummary
	for page := 1; ; page++ {
		p, err := source.GetGoalSummary(ctx, f, r, reconcile.Page{Number: page, Size: reconcile.MaxPageSize})
		if err != nil {
			return nil, err
		}
		out = append(out, p.Goals...)
		if page >= p.TotalPages {
			return out, nil
		}
	}
}

// ObjectName returns reports/<from>_<to>/<run>.csv. Open bounds are written
// as "open".
func ObjectName(r domain.DateRange, runID string) string {
	return fmt.Sprintf("reports/%s_%s/%s.csv", dateOrOpen(r.From), dateOrOpen(r.To), runID)
}

func dateOrOpen(d civil.Date) string {
	if d.IsZero() {
		return "open"
	}
	return d.String()
}

var header = []string{
	"goal_id", "goal_number", "account_number", "client_name",
	"bank_net", "ledger_net", "difference", "tolerance", "status", "review_status",
	"bank_count", "goal_transaction_count", "unmatched_count", "tagged_count",
}

// WriteCSV writes one row per goal summary. Per-fund differences follow the
// fixed columns, in fund order.
func WriteCSV(w io.Writer, summaries []reconcile.GoalSummary) error {
	cw := csv.NewWriter(w)

	cols := append([]string(nil), header...)
	for _, code := range domain.FundCodes {
		cols = append(cols, strings.ToLower(code)+"_difference")
	}
	if err := cw.Write(cols); err != nil {
		return err
	}

	for _, s := range summaries {
		row := []string{
			s.Goal.ID,
			s.Goal.GoalNumber,
			s.Goal.AccountNumber,
			s.Goal.ClientName,
			s.Bank.Net.String(),
			s.Ledger.Net.String(),
			s.Variance.Total.Difference.String(),
			s.Variance.Total.Tolerance.String(),
			string(s.Status),
			string(s.ReviewStatus),
			strconv.Itoa(s.BankCount),
			strconv.Itoa(s.GoalTxnCount),
			strconv.Itoa(s.UnmatchedCount),
			strconv.Itoa(s.TaggedCount),
		}
		for _, v := range s.Variance.Funds {
			row = append(row, v.Difference.String())
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
