package bigquery

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Pattern to match migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Migrate applies the embedded migrations that are not yet recorded in
// schema_migrations. A recorded migration whose checksum differs from the
// embedded file is an error.
func (s *Store) Migrate(ctx context.Context, appliedBy string) error {
	if err := s.ensureSchemaMigrationsTable(ctx); err != nil {
		return fmt.Errorf("Migrate: ensure schema_migrations table: %w", err)
	}

	migrations, err := readMigrations(migrationFiles, s.projectID, s.datasetID)
	if err != nil {
		return fmt.Errorf("Migrate: read migrations: %w", err)
	}

	applied, err := s.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("Migrate: get applied migrations: %w", err)
	}

	pending, err := pendingMigrations(migrations, applied)
	if err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}

	for _, m := range pending {
		s.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applying migration")

		if _, err := s.runDML(ctx, m.SQL, nil); err != nil {
			return fmt.Errorf("Migrate: execute %04d_%s: %w", m.Version, m.Name, err)
		}
		if err := s.recordMigration(ctx, m, appliedBy); err != nil {
			return fmt.Errorf("Migrate: record %04d_%s: %w", m.Version, m.Name, err)
		}
	}

	if len(pending) == 0 {
		s.log.Info().Msg("No new migrations to apply")
	} else {
		s.log.Info().Int("count", len(pending)).Msg("Applied migrations")
	}
	return nil
}

// MigrationStatus pairs an embedded migration with its applied record, if
// any.
type MigrationStatus struct {
	Migration
	Applied *AppliedMigration
}

// Status lists every embedded migration and whether it has been applied.
func (s *Store) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := s.ensureSchemaMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("Status: ensure schema_migrations table: %w", err)
	}
	migrations, err := readMigrations(migrationFiles, s.projectID, s.datasetID)
	if err != nil {
		return nil, fmt.Errorf("Status: read migrations: %w", err)
	}
	applied, err := s.getAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("Status: get applied migrations: %w", err)
	}
	return migrationStatus(migrations, applied), nil
}

func migrationStatus(all []Migration, applied []AppliedMigration) []MigrationStatus {
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	out := make([]MigrationStatus, 0, len(all))
	for _, m := range all {
		st := MigrationStatus{Migration: m}
		if am, ok := byVersion[m.Version]; ok {
			st.Applied = &am
		}
		out = append(out, st)
	}
	return out
}

// readMigrations reads every NNNN_name.sql file under migrations/ in fsys,
// substituting the project and dataset placeholders.
func readMigrations(fsys fs.FS, projectID, datasetID string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matches := migrationPattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}

		version, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(fsys, "migrations/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", entry.Name(), err)
		}

		sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)

		// The checksum covers the file as written, so the same migration
		// matches across projects and datasets.
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: entry.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version == migrations[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %04d", migrations[i].Version)
		}
	}

	return migrations, nil
}

// pendingMigrations returns the migrations not yet applied, in order.
func pendingMigrations(all []Migration, applied []AppliedMigration) ([]Migration, error) {
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	var pending []Migration
	for _, m := range all {
		am, ok := byVersion[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if am.Checksum != "" && am.Checksum != m.Checksum {
			return nil, fmt.Errorf("migration %04d_%s changed after it was applied", m.Version, m.Name)
		}
	}
	return pending, nil
}

func (s *Store) ensureSchemaMigrationsTable(ctx context.Context) error {
	_, err := s.runDML(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table("schema_migrations")+` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, nil)
	return err
}

func (s *Store) getAppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	q := s.client.Query(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM ` + s.table("schema_migrations") + `
		ORDER BY version ASC
	`)

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

func (s *Store) recordMigration(ctx context.Context, m Migration, appliedBy string) error {
	_, err := s.runDML(ctx, `
		INSERT INTO `+s.table("schema_migrations")+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: appliedBy},
	})
	return err
}
