// Command migrate applies the BigQuery schema migrations of the run ledger.
package main

import (
	"context"
	"crypto/sha256"
	"errors"
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
	"github.com/dvloznov/fraud-detection/internal/config"
	"github.com/dvloznov/fraud-detection/internal/logger"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// migrationFilePattern matches migration files such as 0001_create_training_runs.sql.
var migrationFilePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration is a single migration file.
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

type migrator struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	appliedBy string
	location  string
	log       zerolog.Logger
}

func main() {
	defaults := config.Default()
	projectID := flag.String("project", os.Getenv(config.EnvPrefix+"PROJECT"), "GCP project ID (required)")
	datasetID := flag.String("dataset", defaults.Dataset, "BigQuery dataset ID")
	appliedBy := flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	dir := flag.String("migrations", "migrations/bigquery", "Path to migrations directory")
	location := flag.String("location", "US", "Location of the dataset when it has to be created")
	logLevel := flag.String("log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	flag.Parse()

	log := logger.NewWithLevel(*logLevel)
	ctx := logger.WithContext(context.Background(), log)

	if *projectID == "" {
		log.Fatal().Msg("-project flag is required")
	}

	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	m := &migrator{
		client:    client,
		projectID: *projectID,
		datasetID: *datasetID,
		appliedBy: *appliedBy,
		location:  *location,
		log:       log,
	}
	applied, err := m.run(ctx, resolveDir(*dir))
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	if applied == 0 {
		log.Info().Msg("No new migrations to apply, dataset is up to date")
		return
	}
	log.Info().Int("applied", applied).Msg("Migrations applied")
}

// resolveDir falls back to the repository root when run from cmd/migrate.
func resolveDir(dir string) string {
	if _, err := os.Stat(dir); err == nil {
		return dir
	}
	if alt := filepath.Join("..", "..", dir); dirExists(alt) {
		return alt
	}
	return dir
}

func dirExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}

func (m *migrator) run(ctx context.Context, dir string) (int, error) {
	m.log.Info().Str("project", m.projectID).Str("dataset", m.datasetID).Msg("Connected to BigQuery")

	if err := m.ensureDataset(ctx); err != nil {
		return 0, err
	}

	if err := m.exec(ctx, m.sql(`
		CREATE TABLE IF NOT EXISTS `+"`%s.%s.schema_migrations`"+` (
			version    INT64 NOT NULL,
			name       STRING NOT NULL,
			applied_at TIMESTAMP NOT NULL,
			checksum   STRING,
			applied_by STRING
		)`)); err != nil {
		return 0, fmt.Errorf("ensuring schema_migrations: %w", err)
	}

	migrations, err := readMigrations(dir, m.projectID, m.datasetID, m.log)
	if err != nil {
		return 0, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}
	m.log.Info().Int("files", len(migrations)).Int("applied", len(applied)).Msg("Loaded migrations")

	done := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		done[am.Version] = am
	}

	count := 0
	for _, mig := range pending(migrations, done, m.log) {
		log := m.log.With().Str("migration", mig.Filename).Logger()
		log.Info().Msg("Applying migration")

		if err := m.exec(ctx, mig.SQL); err != nil {
			return count, fmt.Errorf("executing %s: %w", mig.Filename, err)
		}
		if err := m.record(ctx, mig); err != nil {
			return count, fmt.Errorf("recording %s: %w", mig.Filename, err)
		}
		log.Info().Msg("Migration applied")
		count++
	}
	return count, nil
}

// ensureDataset creates the dataset unless it already exists.
func (m *migrator) ensureDataset(ctx context.Context) error {
	err := m.client.Dataset(m.datasetID).Create(ctx, &bigquery.DatasetMetadata{
		Location:    m.location,
		Description: "Fraud detection training run ledger",
	})
	if err == nil {
		m.log.Info().Str("dataset", m.datasetID).Str("location", m.location).Msg("Created dataset")
		return nil
	}
	if isAlreadyExists(err) {
		return nil
	}
	return fmt.Errorf("creating dataset %s: %w", m.datasetID, err)
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 409
}

// pending returns the migrations not yet recorded in done. A recorded
// migration whose file changed since it was applied is logged.
func pending(migrations []Migration, done map[int]AppliedMigration, log zerolog.Logger) []Migration {
	var out []Migration
	for _, mig := range migrations {
		am, ok := done[mig.Version]
		if !ok {
			out = append(out, mig)
			continue
		}
		if am.Checksum != "" && am.Checksum != mig.Checksum {
			log.Warn().Str("migration", mig.Filename).Msg("Applied migration was modified afterwards")
		}
		log.Debug().Str("migration", mig.Filename).Msg("Already applied, skipping")
	}
	return out
}

// parseMigrationFilename extracts the version and name of a migration file.
func parseMigrationFilename(filename string) (version int, name string, ok bool) {
	matches := migrationFilePattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// readMigrations reads every migration file in dir sorted by version. The
// checksum covers the file before placeholder substitution.
func readMigrations(dir, projectID, datasetID string, log zerolog.Logger) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, name, ok := parseMigrationFilename(e.Name())
		if !ok {
			log.Warn().Str("file", e.Name()).Msg("Skipping file with invalid name")
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: e.Name(),
			SQL:      renderSQL(string(content), projectID, datasetID),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func renderSQL(sql, projectID, datasetID string) string {
	sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", projectID)
	return strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)
}

func (m *migrator) sql(format string) string {
	return fmt.Sprintf(format, m.projectID, m.datasetID)
}

func (m *migrator) applied(ctx context.Context) ([]AppliedMigration, error) {
	it, err := m.client.Query(m.sql(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM ` + "`%s.%s.schema_migrations`" + `
		ORDER BY version ASC`)).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var out []AppliedMigration
	for {
		var row struct {
			Version   int64
			Name      string
			AppliedAt time.Time
			Checksum  bigquery.NullString
			AppliedBy bigquery.NullString
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating applied migrations: %w", err)
		}
		out = append(out, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return out, nil
}

func (m *migrator) record(ctx context.Context, mig Migration) error {
	q := m.client.Query(m.sql(`
		INSERT INTO ` + "`%s.%s.schema_migrations`" + `
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)`))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: mig.Version},
		{Name: "name", Value: mig.Name},
		{Name: "checksum", Value: mig.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	}
	return m.execQuery(ctx, q)
}

func (m *migrator) exec(ctx context.Context, sql string) error {
	return m.execQuery(ctx, m.client.Query(sql))
}

func (m *migrator) execQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	return status.Err()
}
