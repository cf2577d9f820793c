// Package store defines the persistence contract used by the rest of the
// bot. Implementations live in the sqlite, bigquery and memstore
// subpackages.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/shopspring/decimal"
)

// Repository is implemented by every storage backend.
//
// All failures are wrapped with domain.ErrPersistence. Lookups that find
// nothing return a nil pointer and a nil error; scoped mutations that match
// no row return domain.ErrNotFound.
type Repository interface {
	ExpenseRepository
	UserRepository
	LinkCodeRepository
	Close() error
}

// ExpenseRepository stores expenses.
type ExpenseRepository interface {
	// InsertExpense assigns ID and CreatedAt and returns the stored row.
	// Backends with a uniqueness constraint on (user, merchant, amount, date)
	// return an error matching domain.ErrDuplicateExpense.
	InsertExpense(ctx context.Context, e domain.Expense) (domain.Expense, error)
	FindDuplicate(ctx context.Context, userKey, merchant string, amount decimal.Decimal, date civil.Date) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, id, userKey string) error
	FindLastExpense(ctx context.Context, userKey string) (*domain.Expense, error)
	// FindExpensesInRange returns expenses with start <= date <= end, newest
	// date first, then newest created first.
	FindExpensesInRange(ctx context.Context, userKey string, start, end civil.Date) ([]domain.Expense, error)
	RecentCurrencies(ctx context.Context, userKey string, limit int) ([]domain.Currency, error)
	UpdateExpenseCurrency(ctx context.Context, id, userKey string, currency domain.Currency) error
}

// UserRepository stores users.
type UserRepository interface {
	GetUser(ctx context.Context, key string) (*domain.User, error)
	// CreateUser inserts u unless a user with the same key exists. It is not
	// an error for the user to exist already.
	CreateUser(ctx context.Context, u domain.User) error
	FindUserByNotificationEmail(ctx context.Context, email string) (*domain.User, error)
	SetNotificationEmail(ctx context.Context, key, email string) error
}

// LinkCodeRepository stores dashboard link codes.
type LinkCodeRepository interface {
	// ReplaceLinkCode drops the user's unused codes and stores a new one.
	ReplaceLinkCode(ctx context.Context, userKey, code string, expiresAt time.Time) error
	// RedeemLinkCode marks an unused, unexpired code as used and returns its
	// owner. Anything else yields domain.ErrLinkCodeInvalid.
	RedeemLinkCode(ctx context.Context, code string, now time.Time) (string, error)
}

// Wrap tags err as a persistence failure of op. Errors that already match
// domain.ErrPersistence are only prefixed.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrPersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

// Duplicate returns the error stores use when the uniqueness constraint on
// expenses fires.
func Duplicate(op string) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, domain.ErrDuplicateExpense)
}
