package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/store"
)

// ReplaceLinkCode deletes the user's unused codes and inserts code.
func (s *Store) ReplaceLinkCode(ctx context.Context, userKey, code string, expiresAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Wrap("ReplaceLinkCode", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM link_codes WHERE user_key = ? AND used_at IS NULL`, userKey,
	); err != nil {
		return store.Wrap("ReplaceLinkCode", fmt.Errorf("delete unused codes: %w", err))
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO link_codes (code, user_key, expires_at) VALUES (?, ?, ?)`,
		code, userKey, expiresAt.UnixNano(),
	); err != nil {
		return store.Wrap("ReplaceLinkCode", fmt.Errorf("insert code: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return store.Wrap("ReplaceLinkCode", err)
	}
	return nil
}

// RedeemLinkCode consumes code in a single statement so concurrent redeems
// cannot both succeed.
func (s *Store) RedeemLinkCode(ctx context.Context, code string, now time.Time) (string, error) {
	var userKey string
	err := s.db.QueryRowContext(ctx, `
		UPDATE link_codes
		SET used_at = ?
		WHERE code = ? AND used_at IS NULL AND expires_at > ?
		RETURNING user_key`,
		now.UnixNano(), code, now.UnixNano(),
	).Scan(&userKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("RedeemLinkCode: %w", domain.ErrLinkCodeInvalid)
	}
	if err != nil {
		return "", store.Wrap("RedeemLinkCode", err)
	}
	return userKey, nil
}
