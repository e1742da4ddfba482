package reviewassist

import (
	"context"
	"errors"
	"io"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/logger"
	"github.com/dvloznov/goal-reconciliation/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

type fakeSource struct {
	vt  *service.VarianceTransactions
	err error
}

func (f fakeSource) GetVarianceTransactions(ctx context.Context, goalID string, r domain.DateRange) (*service.VarianceTransactions, error) {
	return f.vt, f.err
}

func variance() *service.VarianceTransactions {
	d := civil.Date{Year: 2025, Month: 3, Day: 3}
	return &service.VarianceTransactions{
		GoalID: "g1",
		Range:  domain.DateRange{From: civil.Date{Year: 2025, Month: 3, Day: 1}},
		Status: domain.ReviewStatusPartiallyReviewed,
		UnmatchedBank: []domain.BankTransaction{
			{ID: "b1", TransactionType: domain.TransactionTypeDeposit, TransactionDate: d, TotalAmount: decimal.NewFromInt(2500), ExternalTransactionID: "MP123"},
			{ID: "b2", TransactionType: domain.TransactionTypeWithdrawal, TransactionDate: d, TotalAmount: decimal.NewFromInt(40), Review: domain.Review{Tag: domain.ReviewTagOther}},
		},
		UnmatchedGoal: []domain.GoalTransaction{
			{Code: "c7", TransactionType: domain.TransactionTypeDeposit, TransactionDate: d.AddDays(4), TotalAmount: decimal.NewFromInt(2500)},
		},
	}
}

func newAssistant(gen Generator, src VarianceSource) *Assistant {
	return NewAssistant(src, gen, logger.NewWithWriter(io.Discard))
}

func TestSuggestNote(t *testing.T) {
	gen := &fakeGenerator{reply: "```json\n{\"tag\": \"timing_difference\", \"note\": \"Ledger posted c7 four days later.\"}\n```"}
	a := newAssistant(gen, fakeSource{vt: variance()})

	s, err := a.SuggestNote(context.Background(), "g1", Target{BankTransactionID: "b1"}, domain.DateRange{})
	require.NoError(t, err)

	assert.Equal(t, domain.ReviewTagTimingDifference, s.Tag)
	assert.Equal(t, "Ledger posted c7 four days later.", s.Note)
	assert.Equal(t, "g1", s.GoalID)

	assert.Contains(t, gen.prompt, "side: bank")
	assert.Contains(t, gen.prompt, "bank b1: DEPOSIT 2500.00 on 2025-03-03 ext=MP123")
	assert.Contains(t, gen.prompt, "ledger c7: DEPOSIT 2500.00 on 2025-03-07")
	assert.Contains(t, gen.prompt, "(already tagged OTHER)")
	assert.Contains(t, gen.prompt, "Period: 2025-03-01 to open")
	assert.NotContains(t, gen.prompt, string(domain.ReviewTagReversalNetted))
}

func TestSuggestNote_GoalTarget(t *testing.T) {
	gen := &fakeGenerator{reply: `{"tag":"MISSING_IN_BANK","note":"No bank deposit yet."}`}
	a := newAssistant(gen, fakeSource{vt: variance()})

	s, err := a.SuggestNote(context.Background(), "g1", Target{GoalTransactionCode: "c7"}, domain.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewTagMissingInBank, s.Tag)
	assert.Contains(t, gen.prompt, "side: ledger")
}

func TestSuggestNote_UnknownTagDropped(t *testing.T) {
	gen := &fakeGenerator{reply: `{"tag":"REVERSAL_NETTED","note":"Looks netted."}`}
	a := newAssistant(gen, fakeSource{vt: variance()})

	s, err := a.SuggestNote(context.Background(), "g1", Target{BankTransactionID: "b1"}, domain.DateRange{})
	require.NoError(t, err)
	assert.Empty(t, s.Tag)
	assert.Equal(t, "Looks netted.", s.Note)
}

func TestSuggestNote_PlainTextReply(t *testing.T) {
	gen := &fakeGenerator{reply: "  Probably a timing difference.  "}
	a := newAssistant(gen, fakeSource{vt: variance()})

	s, err := a.SuggestNote(context.Background(), "g1", Target{BankTransactionID: "b1"}, domain.DateRange{})
	require.NoError(t, err)
	assert.Empty(t, s.Tag)
	assert.Equal(t, "Probably a timing difference.", s.Note)
}

func TestSuggestNote_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		src    fakeSource
		gen    *fakeGenerator
		target Target
		kind   error
	}{
		{"no target", fakeSource{vt: variance()}, &fakeGenerator{}, Target{}, domain.ErrValidation},
		{"both targets", fakeSource{vt: variance()}, &fakeGenerator{}, Target{BankTransactionID: "b1", GoalTransactionCode: "c7"}, domain.ErrValidation},
		{"not unmatched", fakeSource{vt: variance()}, &fakeGenerator{}, Target{BankTransactionID: "b9"}, domain.ErrNotFound},
		{"source error", fakeSource{err: domain.NewNotFoundError("GetGoal", "goal g1 not found")}, &fakeGenerator{}, Target{BankTransactionID: "b1"}, domain.ErrNotFound},
		{"model error", fakeSource{vt: variance()}, &fakeGenerator{err: errors.New("quota")}, Target{BankTransactionID: "b1"}, domain.ErrProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newAssistant(tt.gen, tt.src).SuggestNote(ctx, "g1", tt.target, domain.DateRange{})
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Here you go: {\"a\":1} thanks", `{"a":1}`},
		{"no json", "no json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanModelJSON(tt.in))
	}
}
