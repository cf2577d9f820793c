package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/store"
	"github.com/shopspring/decimal"
)

const expenseColumns = `id, user_key, amount, currency, category, merchant, description, date, created_at`

// InsertExpense stores e with a fresh ID and creation time.
func (s *Store) InsertExpense(ctx context.Context, e domain.Expense) (domain.Expense, error) {
	e.ID = s.newID()
	e.CreatedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserKey, e.Amount.String(), string(e.Currency), string(e.Category),
		e.Merchant, nullString(e.Description), e.Date.String(), e.CreatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Expense{}, store.Duplicate("InsertExpense")
		}
		return domain.Expense{}, store.Wrap("InsertExpense", err)
	}
	return e, nil
}

// FindDuplicate returns the user's expense with exactly this merchant, amount
// and date, if any.
func (s *Store) FindDuplicate(ctx context.Context, userKey, merchant string, amount decimal.Decimal, date civil.Date) (*domain.Expense, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE user_key = ? AND merchant = ? AND amount = ? AND date = ?
		LIMIT 1`,
		userKey, merchant, amount.String(), date.String(),
	)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("FindDuplicate", err)
	}
	return e, nil
}

// DeleteExpense removes the expense if it belongs to userKey.
func (s *Store) DeleteExpense(ctx context.Context, id, userKey string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND user_key = ?`, id, userKey)
	if err != nil {
		return store.Wrap("DeleteExpense", err)
	}
	return requireAffected("DeleteExpense", res)
}

// FindLastExpense returns the most recently created expense of the user.
func (s *Store) FindLastExpense(ctx context.Context, userKey string) (*domain.Expense, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE user_key = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`,
		userKey,
	)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("FindLastExpense", err)
	}
	return e, nil
}

// FindExpensesInRange returns the user's expenses dated within [start, end].
func (s *Store) FindExpensesInRange(ctx context.Context, userKey string, start, end civil.Date) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE user_key = ? AND date >= ? AND date <= ?
		ORDER BY date DESC, created_at DESC, rowid DESC`,
		userKey, start.String(), end.String(),
	)
	if err != nil {
		return nil, store.Wrap("FindExpensesInRange", err)
	}
	defer rows.Close()

	var out []domain.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, store.Wrap("FindExpensesInRange", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("FindExpensesInRange", err)
	}
	return out, nil
}

// RecentCurrencies returns the currencies of the user's last limit expenses,
// newest first.
func (s *Store) RecentCurrencies(ctx context.Context, userKey string, limit int) ([]domain.Currency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT currency
		FROM expenses
		WHERE user_key = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		userKey, limit,
	)
	if err != nil {
		return nil, store.Wrap("RecentCurrencies", err)
	}
	defer rows.Close()

	var out []domain.Currency
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, store.Wrap("RecentCurrencies", err)
		}
		out = append(out, domain.Currency(c))
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("RecentCurrencies", err)
	}
	return out, nil
}

// UpdateExpenseCurrency changes the currency of one of the user's expenses.
func (s *Store) UpdateExpenseCurrency(ctx context.Context, id, userKey string, currency domain.Currency) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET currency = ? WHERE id = ? AND user_key = ?`,
		string(currency), id, userKey,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.Duplicate("UpdateExpenseCurrency")
		}
		return store.Wrap("UpdateExpenseCurrency", err)
	}
	return requireAffected("UpdateExpenseCurrency", res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(r rowScanner) (*domain.Expense, error) {
	var (
		e           domain.Expense
		amount      string
		currency    string
		category    string
		description sql.NullString
		date        string
		createdAt   int64
	)
	if err := r.Scan(&e.ID, &e.UserKey, &amount, &currency, &category, &e.Merchant, &description, &date, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("expense %s: parse amount %q: %w", e.ID, amount, err)
	}
	if e.Date, err = civil.ParseDate(date); err != nil {
		return nil, fmt.Errorf("expense %s: parse date %q: %w", e.ID, date, err)
	}
	e.Currency = domain.Currency(currency)
	e.Category = domain.Category(category)
	if description.Valid {
		d := description.String
		e.Description = &d
	}
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	return &e, nil
}

func requireAffected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return store.Wrap(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
