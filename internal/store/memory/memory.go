// Package memory is an in-memory Repository. It is safe for concurrent use
// and hands out copies, so callers never share state with the store. Data is
// lost on restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/store"
)

// Store implements store.Repository.
type Store struct {
	mu       sync.RWMutex
	goals    map[string]domain.Goal
	bank     map[string]domain.BankTransaction
	postings map[string]domain.LedgerPosting
}

// New creates an empty store.
func New() *Store {
	return &Store{
		goals:    make(map[string]domain.Goal),
		bank:     make(map[string]domain.BankTransaction),
		postings: make(map[string]domain.LedgerPosting),
	}
}

// Close implements store.Repository.
func (s *Store) Close() error {
	return nil
}

func (s *Store) SaveGoals(ctx context.Context, goals []domain.Goal) error {
	for _, g := range goals {
		if g.ID == "" {
			return domain.NewValidationError("SaveGoals", "goal id is required")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range goals {
		s.goals[g.ID] = g
	}
	return nil
}

func (s *Store) SaveBankTransactions(ctx context.Context, txns []domain.BankTransaction) error {
	for _, b := range txns {
		if err := store.ValidateBankTransaction(b); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range txns {
		if b.MatchStatus == "" {
			b.MatchStatus = domain.MatchStatusUnmatched
		}
		s.bank[b.ID] = copyBank(b)
	}
	return nil
}

func (s *Store) SaveLedgerPostings(ctx context.Context, postings []domain.LedgerPosting) error {
	for _, p := range postings {
		if err := store.ValidateLedgerPosting(p); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range postings {
		if p.MatchStatus == "" {
			p.MatchStatus = domain.MatchStatusUnmatched
		}
		p.FundCode = strings.ToUpper(p.FundCode)
		s.postings[p.ID] = copyPosting(p)
	}
	return nil
}

func (s *Store) ListGoals(ctx context.Context) ([]domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Goal, 0, len(s.goals))
	for _, g := range s.goals {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GoalNumber != out[j].GoalNumber {
			return out[i].GoalNumber < out[j].GoalNumber
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetGoal(ctx context.Context, goalID string) (*domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.goals[goalID]
	if !ok {
		return nil, domain.NewNotFoundError("GetGoal", "goal "+goalID+" not found")
	}
	return &g, nil
}

func (s *Store) ListBankTransactions(ctx context.Context, goalID string, r domain.DateRange) ([]domain.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.BankTransaction
	for _, b := range s.bank {
		if b.GoalID == goalID && r.Contains(b.TransactionDate) {
			out = append(out, copyBank(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TransactionDate != out[j].TransactionDate {
			return out[i].TransactionDate.Before(out[j].TransactionDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetBankTransaction(ctx context.Context, id string) (*domain.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bank[id]
	if !ok {
		return nil, domain.NewNotFoundError("GetBankTransaction", "bank transaction "+id+" not found")
	}
	b = copyBank(b)
	return &b, nil
}

func (s *Store) ListLedgerPostings(ctx context.Context, goalID string, r domain.DateRange) ([]domain.LedgerPosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LedgerPosting
	for _, p := range s.postings {
		if p.GoalID == goalID && !p.TransferReversal() && r.Contains(p.TransactionDate) {
			out = append(out, copyPosting(p))
		}
	}
	sortPostings(out)
	return out, nil
}

func (s *Store) ListPostingsByCode(ctx context.Context, code string) ([]domain.LedgerPosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LedgerPosting
	for _, p := range s.postings {
		if p.GoalTransactionCode == code && !p.TransferReversal() {
			out = append(out, copyPosting(p))
		}
	}
	sortPostings(out)
	return out, nil
}

func (s *Store) ApplyMatch(ctx context.Context, m domain.Match) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check every record before touching any of them.
	for _, id := range m.BankTransactionIDs {
		if _, ok := s.bank[id]; !ok {
			return domain.NewNotFoundError("ApplyMatch", "bank transaction "+id+" not found")
		}
	}
	postingIDs, err := s.postingIDsForCodes("ApplyMatch", m.GoalTransactionCodes)
	if err != nil {
		return err
	}
	if err := s.checkUnclaimed("ApplyMatch", m.BankTransactionIDs, postingIDs); err != nil {
		return err
	}

	confidence := m.Confidence
	codes := strings.Join(m.GoalTransactionCodes, ",")
	for _, id := range m.BankTransactionIDs {
		b := s.bank[id]
		b.MatchStatus = domain.MatchStatusMatched
		b.MatchedGoalTransactionCode = codes
		c := confidence
		b.MatchConfidence = &c
		s.bank[id] = b
	}
	for _, id := range postingIDs {
		p := s.postings[id]
		p.MatchStatus = domain.MatchStatusMatched
		s.postings[id] = p
	}
	return nil
}

func (s *Store) ApplyBankReview(ctx context.Context, ids []string, review domain.Review) error {
	return s.BulkReview(ctx, ids, nil, review)
}

func (s *Store) ApplyGoalTransactionReview(ctx context.Context, codes []string, review domain.Review) error {
	return s.BulkReview(ctx, nil, codes, review)
}

func (s *Store) BulkReview(ctx context.Context, bankIDs, codes []string, review domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range bankIDs {
		if _, ok := s.bank[id]; !ok {
			return domain.NewNotFoundError("BulkReview", "bank transaction "+id+" not found")
		}
	}
	postingIDs, err := s.postingIDsForCodes("BulkReview", codes)
	if err != nil {
		return err
	}
	if err := s.checkUnclaimed("BulkReview", bankIDs, postingIDs); err != nil {
		return err
	}

	for _, id := range bankIDs {
		b := s.bank[id]
		b.Review = copyReview(review)
		s.bank[id] = b
	}
	for _, id := range postingIDs {
		p := s.postings[id]
		p.Review = copyReview(review)
		s.postings[id] = p
	}
	return nil
}

func (s *Store) LinkReversal(ctx context.Context, id1, id2 string, review domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.bank[id1]
	if !ok {
		return domain.NewNotFoundError("LinkReversal", "bank transaction "+id1+" not found")
	}
	b, ok := s.bank[id2]
	if !ok {
		return domain.NewNotFoundError("LinkReversal", "bank transaction "+id2+" not found")
	}
	if err := s.checkUnclaimed("LinkReversal", []string{id1, id2}, nil); err != nil {
		return err
	}

	a.Review, a.ReversalPairID = copyReview(review), id2
	b.Review, b.ReversalPairID = copyReview(review), id1
	s.bank[id1], s.bank[id2] = a, b
	return nil
}

func (s *Store) UnlinkReversal(ctx context.Context, id1, id2 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []string{id1, id2} {
		if _, ok := s.bank[id]; !ok {
			return domain.NewNotFoundError("UnlinkReversal", "bank transaction "+id+" not found")
		}
	}
	for _, id := range []string{id1, id2} {
		t := s.bank[id]
		t.Review = domain.Review{}
		t.ReversalPairID = ""
		s.bank[id] = t
	}
	return nil
}

// postingIDsForCodes resolves codes to posting ids. Every code must have at
// least one posting. Caller holds the lock.
func (s *Store) postingIDsForCodes(op string, codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = false
	}
	var ids []string
	for id, p := range s.postings {
		if _, ok := want[p.GoalTransactionCode]; ok && !p.TransferReversal() {
			want[p.GoalTransactionCode] = true
			ids = append(ids, id)
		}
	}
	for _, c := range codes {
		if !want[c] {
			return nil, domain.NewNotFoundError(op, "goal transaction "+c+" not found")
		}
	}
	return ids, nil
}

// checkUnclaimed rejects records that a match or reversal pair already
// owns. Caller holds the lock and has checked the records exist.
func (s *Store) checkUnclaimed(op string, bankIDs, postingIDs []string) error {
	for _, id := range bankIDs {
		if err := store.CheckBankUnclaimed(op, s.bank[id]); err != nil {
			return err
		}
	}
	sort.Strings(postingIDs)
	for _, id := range postingIDs {
		if err := store.CheckPostingUnmatched(op, s.postings[id]); err != nil {
			return err
		}
	}
	return nil
}

func sortPostings(p []domain.LedgerPosting) {
	sort.Slice(p, func(i, j int) bool {
		if p[i].TransactionDate != p[j].TransactionDate {
			return p[i].TransactionDate.Before(p[j].TransactionDate)
		}
		if p[i].GoalTransactionCode != p[j].GoalTransactionCode {
			return p[i].GoalTransactionCode < p[j].GoalTransactionCode
		}
		return p[i].ID < p[j].ID
	})
}

func copyReview(r domain.Review) domain.Review {
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		r.ReviewedAt = &t
	}
	return r
}

func copyBank(b domain.BankTransaction) domain.BankTransaction {
	b.Review = copyReview(b.Review)
	if b.MatchConfidence != nil {
		c := *b.MatchConfidence
		b.MatchConfidence = &c
	}
	return b
}

func copyPosting(p domain.LedgerPosting) domain.LedgerPosting {
	p.Review = copyReview(p.Review)
	return p
}

// Ensure Store implements Repository interface.
var _ store.Repository = (*Store)(nil)
