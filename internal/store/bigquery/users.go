package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/store"
	"google.golang.org/api/iterator"
)

const userSelect = `
	SELECT
		user_key,
		IFNULL(display_name, '') AS display_name,
		IFNULL(handle, '') AS handle,
		IFNULL(notification_email, '') AS notification_email,
		created_ts
`

// GetUser returns the user with the given key, or nil.
func (s *Store) GetUser(ctx context.Context, key string) (*domain.User, error) {
	u, err := s.queryUser(ctx, userSelect+`
		FROM `+s.table(usersTable)+`
		WHERE user_key = @user_key
		LIMIT 1
	`, []bigquery.QueryParameter{{Name: "user_key", Value: key}})
	if err != nil {
		return nil, store.Wrap("GetUser", err)
	}
	return u, nil
}

// CreateUser inserts u unless the key exists, in a single MERGE statement.
func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	_, err := s.runDML(ctx, `
		MERGE `+s.table(usersTable)+` T
		USING (SELECT @user_key AS user_key) S
		ON T.user_key = S.user_key
		WHEN NOT MATCHED THEN
		  INSERT (user_key, display_name, handle, notification_email, created_ts)
		  VALUES (@user_key, @display_name, @handle, NULLIF(@notification_email, ''), @created_ts)
	`, []bigquery.QueryParameter{
		{Name: "user_key", Value: u.Key},
		{Name: "display_name", Value: u.DisplayName},
		{Name: "handle", Value: u.Handle},
		{Name: "notification_email", Value: strings.ToLower(strings.TrimSpace(u.NotificationEmail))},
		{Name: "created_ts", Value: u.CreatedAt},
	})
	return store.Wrap("CreateUser", err)
}

// FindUserByNotificationEmail looks a user up by bank notification address.
func (s *Store) FindUserByNotificationEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	u, err := s.queryUser(ctx, userSelect+`
		FROM `+s.table(usersTable)+`
		WHERE LOWER(notification_email) = @email
		ORDER BY created_ts
		LIMIT 1
	`, []bigquery.QueryParameter{{Name: "email", Value: email}})
	if err != nil {
		return nil, store.Wrap("FindUserByNotificationEmail", err)
	}
	return u, nil
}

// SetNotificationEmail registers the bank notification address of a user.
func (s *Store) SetNotificationEmail(ctx context.Context, key, email string) error {
	n, err := s.runDML(ctx, `
		UPDATE `+s.table(usersTable)+`
		SET notification_email = @email
		WHERE user_key = @user_key
	`, []bigquery.QueryParameter{
		{Name: "email", Value: strings.ToLower(strings.TrimSpace(email))},
		{Name: "user_key", Value: key},
	})
	if err != nil {
		return store.Wrap("SetNotificationEmail", err)
	}
	if n == 0 {
		return fmt.Errorf("SetNotificationEmail: %w", domain.ErrNotFound)
	}
	return nil
}

func (s *Store) queryUser(ctx context.Context, sql string, params []bigquery.QueryParameter) (*domain.User, error) {
	q := s.client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var r UserRow
	err = it.Next(&r)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("iter next: %w", err)
	}
	u := r.toDomain()
	return &u, nil
}
