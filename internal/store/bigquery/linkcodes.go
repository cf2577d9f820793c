package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/store"
	"google.golang.org/api/iterator"
)

// ReplaceLinkCode deletes the user's unused codes and inserts code.
func (s *Store) ReplaceLinkCode(ctx context.Context, userKey, code string, expiresAt time.Time) error {
	if _, err := s.runDML(ctx, `
		DELETE FROM `+s.table(linkCodesTable)+`
		WHERE user_key = @user_key AND used_ts IS NULL
	`, []bigquery.QueryParameter{{Name: "user_key", Value: userKey}}); err != nil {
		return store.Wrap("ReplaceLinkCode", fmt.Errorf("delete unused codes: %w", err))
	}

	if _, err := s.runDML(ctx, `
		INSERT INTO `+s.table(linkCodesTable)+` (code, user_key, expires_ts, created_ts)
		VALUES (@code, @user_key, @expires_ts, @created_ts)
	`, []bigquery.QueryParameter{
		{Name: "code", Value: code},
		{Name: "user_key", Value: userKey},
		{Name: "expires_ts", Value: expiresAt.UTC()},
		{Name: "created_ts", Value: s.now().UTC()},
	}); err != nil {
		return store.Wrap("ReplaceLinkCode", fmt.Errorf("insert code: %w", err))
	}
	return nil
}

// RedeemLinkCode marks the code used. The UPDATE's affected row count decides
// whether this call won the code; the owner is read afterwards.
func (s *Store) RedeemLinkCode(ctx context.Context, code string, now time.Time) (string, error) {
	n, err := s.runDML(ctx, `
		UPDATE `+s.table(linkCodesTable)+`
		SET used_ts = @now
		WHERE code = @code AND used_ts IS NULL AND expires_ts > @now
	`, []bigquery.QueryParameter{
		{Name: "now", Value: now.UTC()},
		{Name: "code", Value: code},
	})
	if err != nil {
		return "", store.Wrap("RedeemLinkCode", err)
	}
	if n == 0 {
		return "", fmt.Errorf("RedeemLinkCode: %w", domain.ErrLinkCodeInvalid)
	}

	q := s.client.Query(`
		SELECT user_key
		FROM ` + s.table(linkCodesTable) + `
		WHERE code = @code
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "code", Value: code}}

	it, err := q.Read(ctx)
	if err != nil {
		return "", store.Wrap("RedeemLinkCode", fmt.Errorf("query read: %w", err))
	}
	var r struct {
		UserKey string `bigquery:"user_key"`
	}
	if err := it.Next(&r); err != nil {
		if err == iterator.Done {
			return "", fmt.Errorf("RedeemLinkCode: %w", domain.ErrLinkCodeInvalid)
		}
		return "", store.Wrap("RedeemLinkCode", fmt.Errorf("iter next: %w", err))
	}
	return r.UserKey, nil
}
