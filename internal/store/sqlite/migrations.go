package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the schema version Migrate brings the database to.
const SchemaVersion = 2

// Migration is one forward step of the schema.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS users (
					key TEXT PRIMARY KEY,
					display_name TEXT NOT NULL DEFAULT '',
					handle TEXT NOT NULL DEFAULT '',
					notification_email TEXT NOT NULL DEFAULT '',
					created_at INTEGER NOT NULL
				)`,
				`CREATE INDEX idx_users_notification_email ON users(notification_email COLLATE NOCASE)`,

				`CREATE TABLE IF NOT EXISTS expenses (
					id TEXT PRIMARY KEY,
					user_key TEXT NOT NULL,
					amount TEXT NOT NULL,
					currency TEXT NOT NULL,
					category TEXT NOT NULL,
					merchant TEXT NOT NULL,
					description TEXT,
					date TEXT NOT NULL,
					created_at INTEGER NOT NULL
				)`,
				`CREATE INDEX idx_expenses_user_created ON expenses(user_key, created_at)`,
				`CREATE INDEX idx_expenses_user_date ON expenses(user_key, date)`,

				`CREATE TABLE IF NOT EXISTS link_codes (
					code TEXT PRIMARY KEY,
					user_key TEXT NOT NULL,
					expires_at INTEGER NOT NULL,
					used_at INTEGER
				)`,
				`CREATE INDEX idx_link_codes_user ON link_codes(user_key)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Unique expense per user, merchant, amount and date",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE UNIQUE INDEX idx_expenses_natural_key ON expenses(user_key, merchant, amount, date)`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("execute query: %w", err)
		}
	}
	return nil
}

// Migrate applies every migration newer than the database's user_version.
func (s *Store) Migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("Migrate: read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("Migrate: begin transaction: %w", err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("Migrate: migration %d failed: %w", m.Version, err)
		}

		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("Migrate: update schema version: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("Migrate: commit migration %d: %w", m.Version, err)
		}

		s.log.Info().
			Int("version", m.Version).
			Str("description", m.Description).
			Msg("Applied migration")
	}

	var final int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&final); err != nil {
		return fmt.Errorf("Migrate: verify schema version: %w", err)
	}
	if final != SchemaVersion {
		return fmt.Errorf("Migrate: schema version mismatch: expected %d, got %d", SchemaVersion, final)
	}
	return nil
}
