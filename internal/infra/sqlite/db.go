// Package sqlite is a store.Repository on a local SQLite file through gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

// NewDatabase opens the file at dbPath and migrates the schema.
func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&Goal{}, &BankTransaction{}, &LedgerPosting{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Database{db: db}, nil
}

// Close releases the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Database) ListGoals(ctx context.Context) ([]domain.Goal, error) {
	var rows []Goal
	if err := d.db.WithContext(ctx).Order("goal_number, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListGoals: %w", err)
	}
	goals := make([]domain.Goal, 0, len(rows))
	for _, r := range rows {
		goals = append(goals, r.toDomain())
	}
	return goals, nil
}

func (d *Database) GetGoal(ctx context.Context, goalID string) (*domain.Goal, error) {
	var row Goal
	err := d.db.WithContext(ctx).Where("id = ?", goalID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewNotFoundError("GetGoal", "goal "+goalID+" not found")
	}
	if err != nil {
		return nil, fmt.Errorf("GetGoal: %w", err)
	}
	g := row.toDomain()
	return &g, nil
}

func (d *Database) ListBankTransactions(ctx context.Context, goalID string, r domain.DateRange) ([]domain.BankTransaction, error) {
	var rows []BankTransaction
	q := withRange(d.db.WithContext(ctx).Where("goal_id = ?", goalID), r)
	if err := q.Order("transaction_date, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListBankTransactions: %w", err)
	}
	return bankRows(rows)
}

func (d *Database) GetBankTransaction(ctx context.Context, id string) (*domain.BankTransaction, error) {
	var row BankTransaction
	err := d.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewNotFoundError("GetBankTransaction", "bank transaction "+id+" not found")
	}
	if err != nil {
		return nil, fmt.Errorf("GetBankTransaction: %w", err)
	}
	b, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("GetBankTransaction: %w", err)
	}
	return &b, nil
}

func (d *Database) ListLedgerPostings(ctx context.Context, goalID string, r domain.DateRange) ([]domain.LedgerPosting, error) {
	var rows []LedgerPosting
	q := withRange(d.db.WithContext(ctx).Where("goal_id = ? AND source <> ?", goalID, domain.LedgerSourceTransferReversal), r)
	if err := q.Order("transaction_date, goal_transaction_code, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListLedgerPostings: %w", err)
	}
	return postingRows(rows)
}

func (d *Database) ListPostingsByCode(ctx context.Context, code string) ([]domain.LedgerPosting, error) {
	var rows []LedgerPosting
	err := d.db.WithContext(ctx).
		Where("goal_transaction_code = ? AND source <> ?", code, domain.LedgerSourceTransferReversal).
		Order("transaction_date, goal_transaction_code, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ListPostingsByCode: %w", err)
	}
	return postingRows(rows)
}

func (d *Database) ApplyMatch(ctx context.Context, m domain.Match) error {
	if err := m.Validate(); err != nil {
		return err
	}
	confidence := m.Confidence
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkExists(tx, "ApplyMatch", m.BankTransactionIDs, m.GoalTransactionCodes); err != nil {
			return err
		}
		if err := checkUnclaimed(tx, "ApplyMatch", m.BankTransactionIDs, m.GoalTransactionCodes); err != nil {
			return err
		}
		err := tx.Model(&BankTransaction{}).Where("id IN ?", m.BankTransactionIDs).Updates(map[string]interface{}{
			"match_status":                  string(domain.MatchStatusMatched),
			"matched_goal_transaction_code": strings.Join(m.GoalTransactionCodes, ","),
			"match_confidence":              &confidence,
		}).Error
		if err != nil {
			return fmt.Errorf("ApplyMatch: updating bank transactions: %w", err)
		}
		err = postingsForCodes(tx, m.GoalTransactionCodes).
			Update("match_status", string(domain.MatchStatusMatched)).Error
		if err != nil {
			return fmt.Errorf("ApplyMatch: updating postings: %w", err)
		}
		return nil
	})
}

func (d *Database) ApplyBankReview(ctx context.Context, ids []string, review domain.Review) error {
	return d.BulkReview(ctx, ids, nil, review)
}

func (d *Database) ApplyGoalTransactionReview(ctx context.Context, codes []string, review domain.Review) error {
	return d.BulkReview(ctx, nil, codes, review)
}

func (d *Database) BulkReview(ctx context.Context, bankIDs, codes []string, review domain.Review) error {
	if len(bankIDs) == 0 && len(codes) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkExists(tx, "BulkReview", bankIDs, codes); err != nil {
			return err
		}
		if err := checkUnclaimed(tx, "BulkReview", bankIDs, codes); err != nil {
			return err
		}
		if len(bankIDs) > 0 {
			if err := tx.Model(&BankTransaction{}).Where("id IN ?", bankIDs).Updates(reviewColumns(review)).Error; err != nil {
				return fmt.Errorf("BulkReview: updating bank transactions: %w", err)
			}
		}
		if len(codes) > 0 {
			if err := postingsForCodes(tx, codes).Updates(reviewColumns(review)).Error; err != nil {
				return fmt.Errorf("BulkReview: updating postings: %w", err)
			}
		}
		return nil
	})
}

func (d *Database) LinkReversal(ctx context.Context, id1, id2 string, review domain.Review) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkExists(tx, "LinkReversal", []string{id1, id2}, nil); err != nil {
			return err
		}
		if err := checkUnclaimed(tx, "LinkReversal", []string{id1, id2}, nil); err != nil {
			return err
		}
		for _, pair := range [][2]string{{id1, id2}, {id2, id1}} {
			cols := reviewColumns(review)
			cols["reversal_pair_id"] = pair[1]
			if err := tx.Model(&BankTransaction{}).Where("id = ?", pair[0]).Updates(cols).Error; err != nil {
				return fmt.Errorf("LinkReversal: %w", err)
			}
		}
		return nil
	})
}

func (d *Database) UnlinkReversal(ctx context.Context, id1, id2 string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkExists(tx, "UnlinkReversal", []string{id1, id2}, nil); err != nil {
			return err
		}
		cols := reviewColumns(domain.Review{})
		cols["reversal_pair_id"] = ""
		if err := tx.Model(&BankTransaction{}).Where("id IN ?", []string{id1, id2}).Updates(cols).Error; err != nil {
			return fmt.Errorf("UnlinkReversal: %w", err)
		}
		return nil
	})
}

func (d *Database) SaveGoals(ctx context.Context, goals []domain.Goal) error {
	if len(goals) == 0 {
		return nil
	}
	rows := make([]Goal, 0, len(goals))
	for _, g := range goals {
		if g.ID == "" {
			return domain.NewValidationError("SaveGoals", "goal id is required")
		}
		rows = append(rows, goalModel(g))
	}
	return d.upsert(ctx, "SaveGoals", &rows)
}

func (d *Database) SaveBankTransactions(ctx context.Context, txns []domain.BankTransaction) error {
	if len(txns) == 0 {
		return nil
	}
	rows := make([]BankTransaction, 0, len(txns))
	for _, t := range txns {
		if err := store.ValidateBankTransaction(t); err != nil {
			return err
		}
		rows = append(rows, bankModel(t))
	}
	return d.upsert(ctx, "SaveBankTransactions", &rows)
}

func (d *Database) SaveLedgerPostings(ctx context.Context, postings []domain.LedgerPosting) error {
	if len(postings) == 0 {
		return nil
	}
	rows := make([]LedgerPosting, 0, len(postings))
	for _, p := range postings {
		if err := store.ValidateLedgerPosting(p); err != nil {
			return err
		}
		rows = append(rows, postingModel(p))
	}
	return d.upsert(ctx, "SaveLedgerPostings", &rows)
}

// upsert replaces rows by primary key.
func (d *Database) upsert(ctx context.Context, op string, rows interface{}) error {
	if err := d.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(rows).Error; err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func withRange(q *gorm.DB, r domain.DateRange) *gorm.DB {
	if !r.From.IsZero() {
		q = q.Where("transaction_date >= ?", r.From.String())
	}
	if !r.To.IsZero() {
		q = q.Where("transaction_date <= ?", r.To.String())
	}
	return q
}

func postingsForCodes(tx *gorm.DB, codes []string) *gorm.DB {
	return tx.Model(&LedgerPosting{}).
		Where("goal_transaction_code IN ? AND source <> ?", codes, domain.LedgerSourceTransferReversal)
}

// checkExists fails with NotFound on the first missing id or code.
func checkExists(tx *gorm.DB, op string, bankIDs, codes []string) error {
	if len(bankIDs) > 0 {
		var found []string
		if err := tx.Model(&BankTransaction{}).Where("id IN ?", bankIDs).Pluck("id", &found).Error; err != nil {
			return fmt.Errorf("%s: checking bank transactions: %w", op, err)
		}
		if gone := missing(bankIDs, found); gone != "" {
			return domain.NewNotFoundError(op, "bank transaction "+gone+" not found")
		}
	}
	if len(codes) > 0 {
		var found []string
		if err := postingsForCodes(tx, codes).Distinct().Pluck("goal_transaction_code", &found).Error; err != nil {
			return fmt.Errorf("%s: checking postings: %w", op, err)
		}
		if gone := missing(codes, found); gone != "" {
			return domain.NewNotFoundError(op, "goal transaction "+gone+" not found")
		}
	}
	return nil
}

// checkUnclaimed fails with Conflict when a bank transaction is already
// matched or paired, or a code has a matched posting. It runs inside the
// write transaction so concurrent writers cannot both pass it.
func checkUnclaimed(tx *gorm.DB, op string, bankIDs, codes []string) error {
	if len(bankIDs) > 0 {
		var rows []BankTransaction
		err := tx.Where("id IN ? AND (match_status = ? OR reversal_pair_id <> '')", bankIDs, string(domain.MatchStatusMatched)).
			Order("id").Find(&rows).Error
		if err != nil {
			return fmt.Errorf("%s: checking bank transactions: %w", op, err)
		}
		for _, r := range rows {
			b, err := r.toDomain()
			if err != nil {
				return fmt.Errorf("%s: bank transaction %s: %w", op, r.ID, err)
			}
			if err := store.CheckBankUnclaimed(op, b); err != nil {
				return err
			}
		}
	}
	if len(codes) > 0 {
		var matched []string
		err := postingsForCodes(tx, codes).
			Where("match_status = ?", string(domain.MatchStatusMatched)).
			Distinct().Order("goal_transaction_code").Pluck("goal_transaction_code", &matched).Error
		if err != nil {
			return fmt.Errorf("%s: checking postings: %w", op, err)
		}
		if len(matched) > 0 {
			return domain.NewConflictError(op, "goal transaction "+matched[0]+" is already matched")
		}
	}
	return nil
}

func missing(want, found []string) string {
	have := make(map[string]bool, len(found))
	for _, f := range found {
		have[f] = true
	}
	for _, w := range want {
		if !have[w] {
			return w
		}
	}
	return ""
}

func reviewColumns(r domain.Review) map[string]interface{} {
	return map[string]interface{}{
		"review_tag":   string(r.Tag),
		"review_notes": r.Notes,
		"reviewed_by":  r.ReviewedBy,
		"reviewed_at":  r.ReviewedAt,
	}
}

func bankRows(rows []BankTransaction) ([]domain.BankTransaction, error) {
	out := make([]domain.BankTransaction, 0, len(rows))
	for _, r := range rows {
		b, err := r.toDomain()
		if err != nil {
			return nil, fmt.Errorf("bank transaction %s: %w", r.ID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func postingRows(rows []LedgerPosting) ([]domain.LedgerPosting, error) {
	out := make([]domain.LedgerPosting, 0, len(rows))
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			return nil, fmt.Errorf("posting %s: %w", r.ID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

var _ store.Repository = (*Database)(nil)
