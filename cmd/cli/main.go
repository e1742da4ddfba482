package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/goal-reconciliation/internal/app"
	"github.com/dvloznov/goal-reconciliation/internal/config"
	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/dvloznov/goal-reconciliation/internal/export"
	"github.com/dvloznov/goal-reconciliation/internal/logger"
	"github.com/dvloznov/goal-reconciliation/internal/notionsync"
	"github.com/dvloznov/goal-reconciliation/internal/reconcile"
	"github.com/dvloznov/goal-reconciliation/internal/reviewassist"
	"github.com/dvloznov/goal-reconciliation/internal/service"
	"github.com/dvloznov/goal-reconciliation/internal/store"
	"github.com/rs/zerolog"
)

// env is what every command gets: config, a logger and an open store.
type env struct {
	cfg  *config.Config
	log  zerolog.Logger
	repo store.Repository
	svc  *service.Service
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, e *env, args []string)
}

var commands = []command{
	{"match", "Show proposed matches for a goal (-apply persists them)", runMatch},
	{"batch", "Reconcile many goals in parallel", runBatch},
	{"summary", "Goal variance summary", runSummary},
	{"funds", "Fund-level variance summary", runFunds},
	{"review", "Tag unmatched bank or goal transactions", runReview},
	{"status", "Review status and unmatched items of a goal", runStatus},
	{"reversal", "Find, link or unlink reversal pairs", runReversal},
	{"export", "Upload a CSV variance report to GCS", runExport},
	{"sync-notion", "Publish unmatched items to the Notion review board", runSyncNotion},
	{"suggest-note", "Draft a review note with Gemini", runSuggestNote},
	{"seed", "Load a JSON fixture from a file or gs:// URI", runSeed},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return
	}

	for _, c := range commands {
		if c.name != name {
			continue
		}
		cfg, err := config.Load()
		if err != nil {
			bootLog := logger.New()
			bootLog.Fatal().Err(err).Msg("Failed to load config")
		}
		log := logger.NewWithLevel(cfg.LogLevel)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		ctx = logger.WithContext(ctx, log)

		repo, err := app.OpenRepository(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Str("store", cfg.StoreDriver).Msg("Failed to open repository")
		}
		defer repo.Close()
		if cfg.StoreDriver == config.StoreMemory && name != "seed" {
			log.Warn().Msg("STORE_DRIVER=memory starts empty; use sqlite or bigquery for CLI work")
		}

		c.run(ctx, &env{cfg: cfg, log: log, repo: repo, svc: service.New(repo, log, app.ServiceOptions(cfg))}, os.Args[2:])
		return
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
	printUsage()
	os.Exit(1)
}

func printUsage() {
	fmt.Println("Goal reconciliation CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	for _, c := range commands {
		fmt.Printf("  %-13s %s\n", c.name, c.usage)
	}
	fmt.Println("  help          Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// rangeFlags registers -from and -to on fs.
func rangeFlags(fs *flag.FlagSet) func() domain.DateRange {
	from := fs.String("from", "", "Start date YYYY-MM-DD (inclusive)")
	to := fs.String("to", "", "End date YYYY-MM-DD (inclusive)")
	return func() domain.DateRange {
		var r domain.DateRange
		var err error
		if *from != "" {
			if r.From, err = civil.ParseDate(*from); err != nil {
				fatalf("invalid -from %q", *from)
			}
		}
		if *to != "" {
			if r.To, err = civil.ParseDate(*to); err != nil {
				fatalf("invalid -to %q", *to)
			}
		}
		return r
	}
}

// filterFlags registers the summary filter flags on fs.
func filterFlags(fs *flag.FlagSet) func() reconcile.SummaryFilter {
	goal := fs.String("goal", "", "Goal ID")
	account := fs.String("account", "", "Account ID")
	client := fs.String("client", "", "Client name substring")
	status := fs.String("status", "", "MATCHED or VARIANCE")
	review := fs.String("review-status", "", "NOT_APPLICABLE, UNREVIEWED, PARTIALLY_REVIEWED or REVIEWED")
	return func() reconcile.SummaryFilter {
		return reconcile.SummaryFilter{
			GoalID:       *goal,
			AccountID:    *account,
			ClientName:   *client,
			Status:       reconcile.VarianceStatus(strings.ToUpper(*status)),
			ReviewStatus: domain.ReviewStatus(strings.ToUpper(*review)),
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("encode output: %v", err)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(2)
}

func check(log zerolog.Logger, err error, msg string) {
	if err != nil {
		log.Fatal().Err(err).Str("kind", string(domain.KindOf(err))).Msg(msg)
	}
}

func runMatch(ctx context.Context, e *env, args []string) {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	goalID := fs.String("goal", "", "Goal ID (required)")
	apply := fs.Bool("apply", false, "Persist the proposed matches")
	rng := rangeFlags(fs)
	fs.Parse(args)

	if *goalID == "" {
		fatalf("-goal is required")
	}

	res, err := e.svc.GetGoalTransactions(ctx, *goalID, rng())
	check(e.log, err, "Matching failed")

	if !*apply {
		printJSON(res)
		return
	}
	applied, err := e.svc.ApplyMatches(ctx, res.Matches)
	check(e.log, err, "Applying matches failed")
	printJSON(map[string]interface{}{
		"matches":       res.Matches,
		"updated_count": applied.UpdatedCount,
	})
}

func runBatch(ctx context.Context, e *env, args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	goals := fs.String("goals", "", "Comma-separated goal IDs (default: all goals)")
	apply := fs.Bool("apply", false, "Persist proposed matches")
	rng := rangeFlags(fs)
	fs.Parse(args)

	res, err := e.svc.RunBatch(ctx, service.BatchRequest{Range: rng(), GoalIDs: splitList(*goals), Apply: *apply})
	check(e.log, err, "Batch failed")
	printJSON(res)
}

func runSummary(ctx context.Context, e *env, args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	page := fs.Int("page", 1, "Page number")
	size := fs.Int("page-size", reconcile.DefaultPageSize, "Page size")
	rng := rangeFlags(fs)
	filter := filterFlags(fs)
	fs.Parse(args)

	res, err := e.svc.GetGoalSummary(ctx, filter(), rng(), reconcile.Page{Number: *page, Size: *size})
	check(e.log, err, "Summary failed")
	printJSON(res)
}

func runFunds(ctx context.Context, e *env, args []string) {
	fs := flag.NewFlagSet("funds", flag.ExitOnError)
	rng := rangeFlags(fs)
	filter := filterFlags(fs)
	fs.Parse(args)

	res, err := e.svc.GetFundSummary(ctx, filter(), rng())
	check(e.log, err, "Fund summary failed")
	printJSON(res)
}

func runReview(ctx context.Context, e *env, args []string) {
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	bank := fs.String("bank", "", "Comma-separated bank transaction IDs")
	codes := fs.String("codes", "", "Comma-separated goal transaction codes")
	tag := fs.String("tag", "", "Review tag (required)")
	notes := fs.String("notes", "", "Review notes")
	by := fs.String("by", os.Getenv("USER"), "Reviewer")
	fs.Parse(args)

	in := domain.ReviewInput{Tag: domain.ReviewTag(strings.ToUpper(*tag)), Notes: *notes, ReviewedBy: *by}
	res, err := e.svc.BulkReview(ctx, service.BulkReviewRequest{
		BankTransactionIDs:   splitList(*bank),
		GoalTransactionCodes: splitList(*codes),
		ReviewInput:          in,
	})
	check(e.log, err, "Review failed")
	printJSON(res)
}

func runStatus(ctx context.Context, e *env, args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	goalID := fs.String("goal", "", "Goal ID (required)")
	rng := rangeFlags(fs)
	fs.Parse(args)

	if *goalID == "" {
		fatalf("-goal is required")
	}
	res, err := e.svc.GetVarianceTransactions(ctx, *goalID, rng())
	check(e.log, err, "Status failed")
	printJSON(res)
}

func runReversal(ctx context.Context, e *env, args []string) {
	fs := flag.NewFlagSet("reversal", flag.ExitOnError)
	candidates := fs.String("candidates", "", "List candidates for this bank transaction ID")
	link := fs.String("link", "", "Two comma-separated bank transaction IDs to link")
	unlink := fs.String("unlink", "", "Bank transaction ID whose pair to unlink")
	by := fs.String("by", os.Getenv("USER"), "Who links the pair")
	notes := fs.String("notes", "", "Notes stored on both sides")
	rng := rangeFlags(fs)
	fs.Parse(args)

	switch {
	case *candidates != "":
		res, err := e.svc.FindReversalCandidates(ctx, *candidates, rng())
		check(e.log, err, "Finding candidates failed")
		printJSON(res)
	case *link != "":
		ids := splitList(*link)
		if len(ids) != 2 {
			fatalf("-link needs exactly two ids")
		}
		res, err := e.svc.LinkReversal(ctx, ids[0], ids[1], *by, *notes)
		check(e.log, err, "Linking failed")
		printJSON(res)
	case *unlink != "":
		res, err := e.svc.UnlinkReversal(ctx, *unlink)
		check(e.log, err, "Unlinking failed")
		printJSON(res)
	default:
		fatalf("one of -candidates, -link or -unlink is required")
	}
}

func runExport(ctx context.Context, e *env, args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	bucket := fs.String("bucket", e.cfg.ExportBucket, "GCS bucket (or set EXPORT_BUCKET)")
	local := fs.String("out", "", "Write the CSV to this file instead of uploading")
	rng := rangeFlags(fs)
	filter := filterFlags(fs)
	fs.Parse(args)

	if *local != "" {
		summaries, err := export.CollectSummaries(ctx, e.svc, filter(), rng())
		check(e.log, err, "Collecting summaries failed")
		var buf bytes.Buffer
		check(e.log, export.WriteCSV(&buf, summaries), "Writing CSV failed")
		check(e.log, os.WriteFile(*local, buf.Bytes(), 0o644), "Writing file failed")
		fmt.Printf("Wrote %d goals to %s\n", len(summaries), *local)
		return
	}

	report, err := export.NewExporter(e.svc, export.NewGCSUploader(), *bucket, e.log).Export(ctx, filter(), rng())
	check(e.log, err, "Export failed")
	printJSON(report)
}

func runSyncNotion(ctx context.Context, e *env, args []string) {
	fs := flag.NewFlagSet("sync-notion", flag.ExitOnError)
	dbID := fs.String("database", e.cfg.NotionVarianceDBID, "Notion database ID (or set NOTION_VARIANCE_DB_ID)")
	dryRun := fs.Bool("dry-run", false, "Log changes without writing to Notion")
	rng := rangeFlags(fs)
	filter := filterFlags(fs)
	fs.Parse(args)

	if e.cfg.NotionToken == "" {
		fatalf("NOTION_TOKEN is required")
	}

	res, err := notionsync.SyncReviewBoard(ctx, e.svc, notionsync.NewNotionClient(e.cfg.NotionToken), *dbID, filter(), rng(), *dryRun)
	check(e.log, err, "Review board sync failed")
	printJSON(res)
}

func runSuggestNote(ctx context.Context, e *env, args []string) {
	fs := flag.NewFlagSet("suggest-note", flag.ExitOnError)
	goalID := fs.String("goal", "", "Goal ID (required)")
	bank := fs.String("bank", "", "Unmatched bank transaction ID")
	code := fs.String("code", "", "Unmatched goal transaction code")
	model := fs.String("model", e.cfg.GeminiModel, "Gemini model (or set GEMINI_MODEL)")
	rng := rangeFlags(fs)
	fs.Parse(args)

	if *goalID == "" {
		fatalf("-goal is required")
	}

	gen, err := reviewassist.NewGeminiGenerator(ctx, *model)
	check(e.log, err, "Creating Gemini client failed")

	s, err := reviewassist.NewAssistant(e.svc, gen, e.log).SuggestNote(ctx, *goalID, reviewassist.Target{BankTransactionID: *bank, GoalTransactionCode: *code}, rng())
	check(e.log, err, "Suggestion failed")
	printJSON(s)
}

func runSeed(ctx context.Context, e *env, args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	file := fs.String("file", "", "Fixture path or gs:// URI (required)")
	fs.Parse(args)

	if *file == "" {
		fatalf("-file is required")
	}

	var data []byte
	var err error
	if strings.HasPrefix(*file, "gs://") {
		data, err = export.Fetch(ctx, *file)
	} else {
		data, err = os.ReadFile(*file)
	}
	check(e.log, err, "Reading fixture failed")

	fx, err := app.Seed(ctx, e.repo, bytes.NewReader(data))
	check(e.log, err, "Seeding failed")

	e.log.Info().
		Int("goals", len(fx.Goals)).
		Int("bank_transactions", len(fx.BankTransactions)).
		Int("ledger_postings", len(fx.LedgerPostings)).
		Msg("Fixture loaded")
}
