package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/goal-reconciliation/internal/config"
	"github.com/dvloznov/goal-reconciliation/internal/logger"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

// Migration is one versioned SQL file.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

var migrationFilePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	projectID := flag.String("project", cfg.BQProjectID, "GCP project ID (or set BQ_PROJECT_ID)")
	datasetID := flag.String("dataset", cfg.BQDataset, "BigQuery dataset ID (or set BQ_DATASET)")
	appliedBy := flag.String("applied-by", "migrate-cli", "Name recorded against applied migrations")
	dir := flag.String("migrations", "migrations/bigquery", "Path to migrations directory")
	dryRun := flag.Bool("dry-run", false, "List pending migrations without applying them")
	flag.Parse()

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := context.Background()

	if *projectID == "" {
		log.Fatal().Msg("-project flag or BQ_PROJECT_ID is required")
	}

	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	if err := ensureSchemaMigrationsTable(ctx, client, *datasetID); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure schema_migrations table")
	}

	migrations, err := readMigrations(resolveDir(*dir), *projectID, *datasetID, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}

	applied, err := getAppliedMigrations(ctx, client, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get applied migrations")
	}

	pending, err := pendingMigrations(migrations, applied)
	if err != nil {
		log.Fatal().Err(err).Msg("Applied migrations do not match files on disk")
	}

	log.Info().
		Int("files", len(migrations)).
		Int("applied", len(applied)).
		Int("pending", len(pending)).
		Msg("Migration status")

	for _, m := range pending {
		mlog := log.With().Str("migration", m.Filename).Logger()
		if *dryRun {
			mlog.Info().Msg("[DRY RUN] Would apply migration")
			continue
		}

		mlog.Info().Msg("Applying migration")
		if err := runStatement(ctx, client, m.SQL, nil); err != nil {
			mlog.Fatal().Err(err).Msg("Failed to execute migration")
		}
		if err := recordMigration(ctx, client, *datasetID, m, *appliedBy); err != nil {
			mlog.Fatal().Err(err).Msg("Failed to record migration")
		}
		mlog.Info().Msg("Migration applied")
	}

	if len(pending) == 0 {
		log.Info().Msg("No new migrations to apply. Dataset is up to date.")
	}
}

// resolveDir also accepts running from cmd/migrate.
func resolveDir(dir string) string {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if alt := filepath.Join("..", "..", dir); dirExists(alt) {
			return alt
		}
	}
	return dir
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// parseMigrationFilename splits 0001_name.sql into version and name.
func parseMigrationFilename(filename string) (int, string, bool) {
	m := migrationFilePattern.FindStringSubmatch(filename)
	if m == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return version, m[2], true
}

// renderSQL substitutes the project and dataset placeholders.
func renderSQL(sql, projectID, datasetID string) string {
	sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", projectID)
	return strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)
}

// checksum hashes the file before placeholder substitution so the same
// migration matches across projects.
func checksum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

// readMigrations loads and orders every migration file in dir. Two files
// with the same version are an error.
func readMigrations(dir, projectID, datasetID string, log zerolog.Logger) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		version, name, ok := parseMigrationFilename(file.Name())
		if !ok {
			log.Warn().Str("file", file.Name()).Msg("Skipping file with invalid migration name")
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, file.Name())
		}
		seen[version] = file.Name()

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: file.Name(),
			SQL:      renderSQL(string(content), projectID, datasetID),
			Checksum: checksum(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// pendingMigrations returns the migrations not yet applied. A file whose
// content changed after it was applied is an error.
func pendingMigrations(migrations []Migration, applied []AppliedMigration) ([]Migration, error) {
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, a := range applied {
		byVersion[a.Version] = a
	}

	var pending []Migration
	for _, m := range migrations {
		a, ok := byVersion[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if a.Checksum != "" && a.Checksum != m.Checksum {
			return nil, fmt.Errorf("migration %s changed after it was applied", m.Filename)
		}
	}
	return pending, nil
}

func migrationsTable(client *bigquery.Client, datasetID string) string {
	return fmt.Sprintf("`%s.%s.schema_migrations`", client.Project(), datasetID)
}

func ensureSchemaMigrationsTable(ctx context.Context, client *bigquery.Client, datasetID string) error {
	return runStatement(ctx, client, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, migrationsTable(client, datasetID)), nil)
}

func getAppliedMigrations(ctx context.Context, client *bigquery.Client, datasetID string) ([]AppliedMigration, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM %s
		ORDER BY version ASC
	`, migrationsTable(client, datasetID)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

func recordMigration(ctx context.Context, client *bigquery.Client, datasetID string, m Migration, appliedBy string) error {
	return runStatement(ctx, client, fmt.Sprintf(`
		INSERT INTO %s
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, migrationsTable(client, datasetID)), []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: appliedBy},
	})
}

func runStatement(ctx context.Context, client *bigquery.Client, sql string, params []bigquery.QueryParameter) error {
	q := client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
