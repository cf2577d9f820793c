package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/shopspring/decimal"
)

// numericScale is the number of fractional digits of a BigQuery NUMERIC.
const numericScale = 9

type ExpenseRow struct {
	ExpenseID   string              `bigquery:"expense_id"`   // REQUIRED
	UserKey     string              `bigquery:"user_key"`     // REQUIRED
	Amount      *big.Rat            `bigquery:"amount"`       // REQUIRED, NUMERIC
	Currency    string              `bigquery:"currency"`     // REQUIRED
	Category    string              `bigquery:"category"`     // REQUIRED
	Merchant    string              `bigquery:"merchant"`     // REQUIRED
	Description bigquery.NullString `bigquery:"description"`  // NULLABLE
	ExpenseDate civil.Date          `bigquery:"expense_date"` // REQUIRED
	CreatedTS   time.Time           `bigquery:"created_ts"`   // REQUIRED
}

type UserRow struct {
	UserKey           string    `bigquery:"user_key"`           // REQUIRED
	DisplayName       string    `bigquery:"display_name"`       // NULLABLE, read through IFNULL
	Handle            string    `bigquery:"handle"`             // NULLABLE, read through IFNULL
	NotificationEmail string    `bigquery:"notification_email"` // NULLABLE, read through IFNULL
	CreatedTS         time.Time `bigquery:"created_ts"`         // REQUIRED
}

func expenseRowFrom(e domain.Expense) *ExpenseRow {
	row := &ExpenseRow{
		ExpenseID:   e.ID,
		UserKey:     e.UserKey,
		Amount:      e.Amount.Rat(),
		Currency:    string(e.Currency),
		Category:    string(e.Category),
		Merchant:    e.Merchant,
		ExpenseDate: e.Date,
		CreatedTS:   e.CreatedAt,
	}
	if e.Description != nil {
		row.Description = bigquery.NullString{StringVal: *e.Description, Valid: true}
	}
	return row
}

func (r *ExpenseRow) toDomain() (domain.Expense, error) {
	amount, err := ratToDecimal(r.Amount)
	if err != nil {
		return domain.Expense{}, fmt.Errorf("expense %s: %w", r.ExpenseID, err)
	}
	e := domain.Expense{
		ID:        r.ExpenseID,
		UserKey:   r.UserKey,
		Amount:    amount,
		Currency:  domain.Currency(r.Currency),
		Category:  domain.Category(r.Category),
		Merchant:  r.Merchant,
		Date:      r.ExpenseDate,
		CreatedAt: r.CreatedTS.UTC(),
	}
	if r.Description.Valid {
		d := r.Description.StringVal
		e.Description = &d
	}
	return e, nil
}

func (r *UserRow) toDomain() domain.User {
	return domain.User{
		Key:               r.UserKey,
		DisplayName:       r.DisplayName,
		Handle:            r.Handle,
		NotificationEmail: r.NotificationEmail,
		CreatedAt:         r.CreatedTS.UTC(),
	}
}

func ratToDecimal(r *big.Rat) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Decimal{}, fmt.Errorf("amount is NULL")
	}
	return decimal.NewFromString(r.FloatString(numericScale))
}
