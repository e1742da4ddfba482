package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/reconcile"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedSource serves summaries in fixed-size pages.
type pagedSource struct {
	all   []reconcile.GoalSummary
	size  int
	calls int
	err   error
}

func (p *pagedSource) GetGoalSummary(ctx context.Context, f reconcile.SummaryFilter, r domain.DateRange, page reconcile.Page) (*reconcile.GoalSummaryPage, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	start := (page.Number - 1) * p.size
	end := start + p.size
	if end > len(p.all) {
		end = len(p.all)
	}
	return &reconcile.GoalSummaryPage{
		Goals:      p.all[start:end],
		Page:       page.Number,
		PageSize:   p.size,
		TotalCount: len(p.all),
		TotalPages: (len(p.all) + p.size - 1) / p.size,
	}, nil
}

type recordingUploader struct {
	bucket, object, contentType string
	body                        []byte
	err                         error
}

func (u *recordingUploader) Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error {
	if u.err != nil {
		return u.err
	}
	u.bucket, u.object, u.contentType = bucket, object, contentType
	var err error
	u.body, err = io.ReadAll(r)
	return err
}

func summary(id string, bankNet, ledgerNet int64) reconcile.GoalSummary {
	tol := reconcile.DefaultTolerance()
	var fundsObs, fundsExp domain.FundAmounts
	fundsObs[0], fundsExp[0] = decimal.NewFromInt(ledgerNet), decimal.NewFromInt(bankNet)
	for i := 1; i < domain.NumFunds; i++ {
		fundsObs[i], fundsExp[i] = decimal.Zero, decimal.Zero
	}
	v := tol.CompareVectors(decimal.NewFromInt(ledgerNet), fundsObs, decimal.NewFromInt(bankNet), fundsExp)
	status := reconcile.VarianceStatusMatched
	if v.Exceeds {
		status = reconcile.VarianceStatusVariance
	}
	return reconcile.GoalSummary{
		Goal:         domain.Goal{ID: id, GoalNumber: "N-" + id, AccountNumber: "A-" + id, ClientName: "Client, " + id},
		Bank:         reconcile.SideTotals{Net: decimal.NewFromInt(bankNet)},
		Ledger:       reconcile.SideTotals{Net: decimal.NewFromInt(ledgerNet)},
		Variance:     v,
		Status:       status,
		ReviewStatus: domain.ReviewStatusNotApplicable,
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []reconcile.GoalSummary{summary("g1", 500000, 500000), summary("g2", 100000, 250000)}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	head := records[0]
	assert.Equal(t, "goal_id", head[0])
	assert.Equal(t, "reit_difference", head[len(head)-1])

	assert.Equal(t, "Client, g1", records[1][3])
	assert.Equal(t, "MATCHED", records[1][8])
	assert.Equal(t, "150000", records[2][6])
	assert.Equal(t, "VARIANCE", records[2][8])
	assert.Equal(t, "150000", records[2][len(head)-4])
}

func TestObjectName(t *testing.T) {
	r := domain.DateRange{From: civil.Date{Year: 2025, Month: 1, Day: 1}, To: civil.Date{Year: 2025, Month: 1, Day: 31}}
	assert.Equal(t, "reports/2025-01-01_2025-01-31/run.csv", ObjectName(r, "run"))
	assert.Equal(t, "reports/open_open/run.csv", ObjectName(domain.DateRange{}, "run"))
}

func TestExport_CollectsAllPages(t *testing.T) {
	var all []reconcile.GoalSummary
	for _, id := range []string{"g1", "g2", "g3"} {
		all = append(all, summary(id, 1, 1))
	}
	src := &pagedSource{all: all, size: 2}
	up := &recordingUploader{}

	rep, err := NewExporter(src, up, "reports-bucket", zerolog.New(io.Discard)).Export(context.Background(), reconcile.SummaryFilter{}, domain.DateRange{})
	require.NoError(t, err)

	assert.Equal(t, 2, src.calls)
	assert.Equal(t, 3, rep.Goals)
	assert.Equal(t, "reports-bucket", up.bucket)
	assert.Equal(t, "text/csv", up.contentType)
	assert.True(t, strings.HasPrefix(rep.URI, "gs://reports-bucket/reports/open_open/"))
	assert.Equal(t, rep.Bytes, len(up.body))
	assert.Equal(t, 4, strings.Count(string(up.body), "\n"))
}

func TestExport_Errors(t *testing.T) {
	ctx := context.Background()
	log := zerolog.New(io.Discard)

	_, err := NewExporter(&pagedSource{size: 1}, &recordingUploader{}, "", log).Export(ctx, reconcile.SummaryFilter{}, domain.DateRange{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = NewExporter(&pagedSource{size: 1, err: domain.NewValidationError("x", "bad")}, &recordingUploader{}, "b", log).Export(ctx, reconcile.SummaryFilter{}, domain.DateRange{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = NewExporter(&pagedSource{size: 1}, &recordingUploader{err: errors.New("denied")}, "b", log).Export(ctx, reconcile.SummaryFilter{}, domain.DateRange{})
	assert.ErrorContains(t, err, "denied")
}

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://bkt/reports/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "bkt", bucket)
	assert.Equal(t, "reports/a.csv", object)

	for _, bad := range []string{"s3://bkt/a", "gs://bkt", "gs:///a"} {
		_, _, err := ParseGCSURI(bad)
		assert.Error(t, err, bad)
	}
}
