package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/goal-reconciliation/internal/api/handlers"
	"github.com/dvloznov/goal-reconciliation/internal/api/middleware"
	"github.com/dvloznov/goal-reconciliation/internal/app"
	"github.com/dvloznov/goal-reconciliation/internal/config"
	"github.com/dvloznov/goal-reconciliation/internal/export"
	"github.com/dvloznov/goal-reconciliation/internal/jobs/inmemory"
	"github.com/dvloznov/goal-reconciliation/internal/logger"
	"github.com/dvloznov/goal-reconciliation/internal/notionsync"
	"github.com/dvloznov/goal-reconciliation/internal/reviewassist"
	"github.com/dvloznov/goal-reconciliation/internal/service"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	port := flag.String("port", cfg.Port, "HTTP server port")
	jobWorkers := flag.Int("job-workers", 2, "Number of in-process reconcile job workers")
	flag.Parse()

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := logger.WithContext(context.Background(), log)

	repo, err := app.OpenRepository(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.StoreDriver).Msg("Failed to open repository")
	}
	defer repo.Close()

	svc := service.New(repo, log, app.ServiceOptions(cfg))

	// Jobs run in-process; cmd/worker runs the same handler standalone.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, *jobWorkers, jobStore, log)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	if err := jobQueue.Start(workerCtx, app.ReconcileHandler(svc, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	exporter, board, assistant := integrations(ctx, cfg, svc, log)

	mux := http.NewServeMux()
	handlers.NewReconciliationHandler(svc, log).Register(mux)
	handlers.NewReviewHandler(svc, log).Register(mux)
	handlers.NewJobsHandler(jobQueue, jobStore, log).Register(mux)
	handlers.NewToolsHandler(exporter, board, assistant, log).Register(mux)
	mux.HandleFunc("GET /health", handlers.Health)

	handler := middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS,
		middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Str("store", cfg.StoreDriver).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	cancelWorker()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}

// integrations builds the optional outward-facing tools. Each one is left
// nil when its settings are missing so its routes answer 503.
func integrations(ctx context.Context, cfg *config.Config, svc *service.Service, log zerolog.Logger) (handlers.ReportExporter, handlers.BoardSyncer, handlers.NoteSuggester) {
	var (
		exporter  handlers.ReportExporter
		board     handlers.BoardSyncer
		assistant handlers.NoteSuggester
	)

	if cfg.ExportBucket != "" {
		exporter = export.NewExporter(svc, export.NewGCSUploader(), cfg.ExportBucket, log)
	} else {
		log.Warn().Msg("No EXPORT_BUCKET configured - report export disabled")
	}

	if cfg.NotionToken != "" && cfg.NotionVarianceDBID != "" {
		board = notionsync.NewBoard(svc, notionsync.NewNotionClient(cfg.NotionToken), cfg.NotionVarianceDBID)
	} else {
		log.Warn().Msg("Notion not configured - review board sync disabled")
	}

	gen, err := reviewassist.NewGeminiGenerator(ctx, cfg.GeminiModel)
	if err != nil {
		log.Warn().Err(err).Msg("Review assistant disabled")
	} else {
		assistant = reviewassist.NewAssistant(svc, gen, log)
	}

	return exporter, board, assistant
}
