// Package app wires configuration into the repository, service and job
// handler shared by the binaries.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dvloznov/goal-reconciliation/internal/config"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/infra/bigquery"
	"github.com/dvloznov/goal-reconciliation/internal/infra/sqlite"
	"github.com/dvloznov/goal-reconciliation/internal/jobs"
	"github.com/dvloznov/goal-reconciliation/internal/reconcile"
	"github.com/dvloznov/goal-reconciliation/internal/service"
	"github.com/dvloznov/goal-reconciliation/internal/store"
	"github.com/dvloznov/goal-reconciliation/internal/store/memory"
	"github.com/rs/zerolog"
)

// OpenRepository opens the store selected by cfg.StoreDriver.
func OpenRepository(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StoreSQLite:
		db, err := sqlite.NewDatabase(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.StoreBigQuery:
		repo, err := bigquery.NewRepository(ctx, cfg.BQProjectID, cfg.BQDataset)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("OpenRepository: unknown store driver %q", cfg.StoreDriver)
	}
}

// ServiceOptions maps config onto service options.
func ServiceOptions(cfg *config.Config) service.Options {
	return service.Options{
		Tolerance: reconcile.Tolerance{
			Relative:      cfg.ToleranceRelative,
			AbsoluteFloor: cfg.ToleranceAbsoluteFloor,
		},
		DateWindowDays: cfg.MatchDateWindowDays,
		BatchWorkers:   cfg.BatchWorkers,
		CacheTTL:       cfg.SummaryCacheTTL,
	}
}

// Runner is the part of the service a reconcile job needs.
type Runner interface {
	RunBatch(ctx context.Context, req service.BatchRequest) (*service.BatchResult, error)
}

// ReconcileHandler runs a ReconcileJob as a batch and records its counters on
// the job. Validation and not-found failures are not retried.
func ReconcileHandler(runner Runner, log zerolog.Logger) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		rj, ok := job.(*jobs.ReconcileJob)
		if !ok {
			return jobs.Permanent(fmt.Errorf("unexpected job type: %T", job))
		}

		log.Info().
			Str("job_id", rj.JobID).
			Int("goals", len(rj.GoalIDs)).
			Bool("apply", rj.Apply).
			Msg("Processing reconcile job")

		res, err := runner.RunBatch(ctx, service.BatchRequest{
			Range:   rj.Range,
			GoalIDs: rj.GoalIDs,
			Apply:   rj.Apply,
		})
		if err != nil {
			switch domain.KindOf(err) {
			case domain.KindValidation, domain.KindNotFound:
				return jobs.Permanent(err)
			}
			return err
		}

		rj.Result = &jobs.JobResult{
			RunID:        res.RunID,
			Goals:        res.Goals,
			Succeeded:    res.Succeeded,
			Failed:       res.Failed,
			Skipped:      res.Skipped,
			MatchesFound: res.MatchesFound,
			UpdatedCount: res.UpdatedCount,
		}
		if res.Cancelled {
			return errors.New("batch cancelled before all goals ran")
		}

		log.Info().
			Str("job_id", rj.JobID).
			Str("run_id", res.RunID).
			Int("succeeded", res.Succeeded).
			Int("failed", res.Failed).
			Int("updated", res.UpdatedCount).
			Msg("Reconcile job completed")
		return nil
	}
}

// Fixture is the seed file format.
type Fixture struct {
	Goals            []domain.Goal            `json:"goals"`
	BankTransactions []domain.BankTransaction `json:"bank_transactions"`
	LedgerPostings   []domain.LedgerPosting   `json:"ledger_postings"`
}

// Seed loads a JSON fixture into the store. Records are upserted by id.
func Seed(ctx context.Context, loader store.Loader, r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, domain.NewValidationError("Seed", "invalid fixture: "+err.Error())
	}

	if len(f.Goals) > 0 {
		if err := loader.SaveGoals(ctx, f.Goals); err != nil {
			return nil, err
		}
	}
	if len(f.BankTransactions) > 0 {
		if err := loader.SaveBankTransactions(ctx, f.BankTransactions); err != nil {
			return nil, err
		}
	}
	if len(f.LedgerPostings) > 0 {
		if err := loader.SaveLedgerPostings(ctx, f.LedgerPostings); err != nil {
			return nil, err
		}
	}
	return &f, nil
}
