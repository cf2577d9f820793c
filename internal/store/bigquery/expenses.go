package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/store"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
)

const expenseColumns = `expense_id, user_key, amount, currency, category, merchant, description, expense_date, created_ts`

// InsertExpense inserts e with DML so the row is immediately visible to the
// DELETE and UPDATE statements used by the confirmation and command flows.
func (s *Store) InsertExpense(ctx context.Context, e domain.Expense) (domain.Expense, error) {
	e.ID = s.newID()
	e.CreatedAt = s.now().UTC()
	row := expenseRowFrom(e)

	description := ""
	if row.Description.Valid {
		description = row.Description.StringVal
	}

	_, err := s.runDML(ctx, `
		INSERT INTO `+s.table(expensesTable)+` (`+expenseColumns+`)
		VALUES (@expense_id, @user_key, @amount, @currency, @category, @merchant,
		        NULLIF(@description, ''), @expense_date, @created_ts)
	`, []bigquery.QueryParameter{
		{Name: "expense_id", Value: row.ExpenseID},
		{Name: "user_key", Value: row.UserKey},
		{Name: "amount", Value: row.Amount},
		{Name: "currency", Value: row.Currency},
		{Name: "category", Value: row.Category},
		{Name: "merchant", Value: row.Merchant},
		{Name: "description", Value: description},
		{Name: "expense_date", Value: row.ExpenseDate},
		{Name: "created_ts", Value: row.CreatedTS},
	})
	if err != nil {
		return domain.Expense{}, store.Wrap("InsertExpense", err)
	}
	return e, nil
}

// FindDuplicate returns an expense of the user with the same merchant,
// amount and date.
func (s *Store) FindDuplicate(ctx context.Context, userKey, merchant string, amount decimal.Decimal, date civil.Date) (*domain.Expense, error) {
	rows, err := s.queryExpenses(ctx, `
		SELECT `+expenseColumns+`
		FROM `+s.table(expensesTable)+`
		WHERE user_key = @user_key
		  AND merchant = @merchant
		  AND amount = @amount
		  AND expense_date = @expense_date
		LIMIT 1
	`, []bigquery.QueryParameter{
		{Name: "user_key", Value: userKey},
		{Name: "merchant", Value: merchant},
		{Name: "amount", Value: amount.Rat()},
		{Name: "expense_date", Value: date},
	})
	if err != nil {
		return nil, store.Wrap("FindDuplicate", err)
	}
	return first(rows), nil
}

// DeleteExpense deletes one of the user's expenses.
func (s *Store) DeleteExpense(ctx context.Context, id, userKey string) error {
	n, err := s.runDML(ctx, `
		DELETE FROM `+s.table(expensesTable)+`
		WHERE expense_id = @expense_id AND user_key = @user_key
	`, []bigquery.QueryParameter{
		{Name: "expense_id", Value: id},
		{Name: "user_key", Value: userKey},
	})
	if err != nil {
		return store.Wrap("DeleteExpense", err)
	}
	if n == 0 {
		return fmt.Errorf("DeleteExpense: %w", domain.ErrNotFound)
	}
	return nil
}

// FindLastExpense returns the user's most recently created expense.
func (s *Store) FindLastExpense(ctx context.Context, userKey string) (*domain.Expense, error) {
	rows, err := s.queryExpenses(ctx, `
		SELECT `+expenseColumns+`
		FROM `+s.table(expensesTable)+`
		WHERE user_key = @user_key
		ORDER BY created_ts DESC
		LIMIT 1
	`, []bigquery.QueryParameter{
		{Name: "user_key", Value: userKey},
	})
	if err != nil {
		return nil, store.Wrap("FindLastExpense", err)
	}
	return first(rows), nil
}

// FindExpensesInRange returns the user's expenses with start <= date <= end.
func (s *Store) FindExpensesInRange(ctx context.Context, userKey string, start, end civil.Date) ([]domain.Expense, error) {
	rows, err := s.queryExpenses(ctx, `
		SELECT `+expenseColumns+`
		FROM `+s.table(expensesTable)+`
		WHERE user_key = @user_key
		  AND expense_date >= @start_date
		  AND expense_date <= @end_date
		ORDER BY expense_date DESC, created_ts DESC
	`, []bigquery.QueryParameter{
		{Name: "user_key", Value: userKey},
		{Name: "start_date", Value: start},
		{Name: "end_date", Value: end},
	})
	if err != nil {
		return nil, store.Wrap("FindExpensesInRange", err)
	}
	return rows, nil
}

// RecentCurrencies returns the currencies of the user's last limit expenses.
func (s *Store) RecentCurrencies(ctx context.Context, userKey string, limit int) ([]domain.Currency, error) {
	q := s.client.Query(`
		SELECT currency
		FROM ` + s.table(expensesTable) + `
		WHERE user_key = @user_key
		ORDER BY created_ts DESC
		LIMIT @limit
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_key", Value: userKey},
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, store.Wrap("RecentCurrencies", fmt.Errorf("query read: %w", err))
	}

	var out []domain.Currency
	for {
		var r struct {
			Currency string `bigquery:"currency"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, store.Wrap("RecentCurrencies", fmt.Errorf("iter next: %w", err))
		}
		out = append(out, domain.Currency(r.Currency))
	}
	return out, nil
}

// UpdateExpenseCurrency changes the currency of one of the user's expenses.
func (s *Store) UpdateExpenseCurrency(ctx context.Context, id, userKey string, currency domain.Currency) error {
	n, err := s.runDML(ctx, `
		UPDATE `+s.table(expensesTable)+`
		SET currency = @currency
		WHERE expense_id = @expense_id AND user_key = @user_key
	`, []bigquery.QueryParameter{
		{Name: "currency", Value: string(currency)},
		{Name: "expense_id", Value: id},
		{Name: "user_key", Value: userKey},
	})
	if err != nil {
		return store.Wrap("UpdateExpenseCurrency", err)
	}
	if n == 0 {
		return fmt.Errorf("UpdateExpenseCurrency: %w", domain.ErrNotFound)
	}
	return nil
}

func (s *Store) queryExpenses(ctx context.Context, sql string, params []bigquery.QueryParameter) ([]domain.Expense, error) {
	q := s.client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var out []domain.Expense
	for {
		var r ExpenseRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		e, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func first(rows []domain.Expense) *domain.Expense {
	if len(rows) == 0 {
		return nil
	}
	e := rows[0]
	return &e
}
