package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/goal-reconciliation/internal/app"
	"github.com/dvloznov/goal-reconciliation/internal/config"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/jobs"
	"github.com/dvloznov/goal-reconciliation/internal/jobs/inmemory"
	"github.com/dvloznov/goal-reconciliation/internal/logger"
	"github.com/dvloznov/goal-reconciliation/internal/service"
)

// The worker reconciles a trailing window of days on a fixed interval.
func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	interval := flag.Duration("interval", time.Hour, "Time between scheduled runs")
	lookback := flag.Int("lookback-days", 30, "Days before today to reconcile")
	apply := flag.Bool("apply", false, "Persist proposed matches")
	workers := flag.Int("workers", 1, "Number of job workers")
	once := flag.Bool("once", false, "Run one batch and exit")
	flag.Parse()

	log := logger.NewWithLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	repo, err := app.OpenRepository(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.StoreDriver).Msg("Failed to open repository")
	}
	defer repo.Close()

	svc := service.New(repo, log, app.ServiceOptions(cfg))

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(10, *workers, jobStore, log)

	handler := app.ReconcileHandler(svc, log)
	done := make(chan error, 1)
	if *once {
		inner := handler
		handler = func(ctx context.Context, job jobs.Job) error {
			err := inner(ctx, job)
			rj, _ := job.(*jobs.ReconcileJob)
			if err == nil || jobs.IsPermanent(err) || (rj != nil && rj.RetryCount >= rj.MaxRetries) {
				done <- err
			}
			return err
		}
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	schedule := func() {
		today := domain.DateOf(time.Now())
		job := &jobs.ReconcileJob{
			Range:       domain.DateRange{From: today.AddDays(-*lookback), To: today},
			Apply:       *apply,
			RequestedBy: "worker",
		}
		if err := jobQueue.PublishReconcile(ctx, job); err != nil {
			log.Error().Err(err).Msg("Failed to schedule reconcile job")
			return
		}
		log.Info().
			Str("job_id", job.JobID).
			Str("from", job.Range.From.String()).
			Str("to", job.Range.To.String()).
			Msg("Scheduled reconcile job")
	}

	log.Info().Dur("interval", *interval).Bool("apply", *apply).Msg("Worker service started")
	schedule()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
loop:
	for {
		select {
		case <-ticker.C:
			if !*once {
				schedule()
			}
		case runErr = <-done:
			break loop
		case <-quit:
			break loop
		}
	}

	log.Info().Msg("Shutting down worker service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
	if runErr != nil {
		log.Error().Err(runErr).Msg("Reconcile run failed")
		repo.Close()
		os.Exit(1)
	}
}
