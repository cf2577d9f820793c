package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/store"
)

const userColumns = `key, display_name, handle, notification_email, created_at`

// GetUser returns the user with the given key, or nil.
func (s *Store) GetUser(ctx context.Context, key string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE key = ?`, key)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("GetUser", err)
	}
	return u, nil
}

// CreateUser inserts u, leaving an existing user with the same key untouched.
func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING`,
		u.Key, u.DisplayName, u.Handle, normalizeEmail(u.NotificationEmail), u.CreatedAt.UnixNano(),
	)
	return store.Wrap("CreateUser", err)
}

// FindUserByNotificationEmail looks a user up by registered bank
// notification address, ignoring case.
func (s *Store) FindUserByNotificationEmail(ctx context.Context, email string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE notification_email = ? COLLATE NOCASE
		ORDER BY created_at
		LIMIT 1`,
		email,
	)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("FindUserByNotificationEmail", err)
	}
	return u, nil
}

// SetNotificationEmail registers the address bank emails for key come from.
func (s *Store) SetNotificationEmail(ctx context.Context, key, email string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET notification_email = ? WHERE key = ?`,
		normalizeEmail(email), key,
	)
	if err != nil {
		return store.Wrap("SetNotificationEmail", err)
	}
	return requireAffected("SetNotificationEmail", res)
}

func scanUser(r rowScanner) (*domain.User, error) {
	var (
		u         domain.User
		createdAt int64
	)
	if err := r.Scan(&u.Key, &u.DisplayName, &u.Handle, &u.NotificationEmail, &createdAt); err != nil {
		return nil, err
	}
	u.CreatedAt = time.Unix(0, createdAt).UTC()
	return &u, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

