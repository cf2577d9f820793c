package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// MaxMerchantLength caps merchant names, counted in runes.
const MaxMerchantLength = 50

// User is an end user keyed by the canonical identity of the channel they
// first wrote from.
type User struct {
	Key               string    `json:"key"`
	DisplayName       string    `json:"display_name"`
	Handle            string    `json:"handle,omitempty"`
	NotificationEmail string    `json:"notification_email,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Candidate is an extracted expense that has not been persisted.
type Candidate struct {
	Amount      decimal.Decimal
	Currency    Currency
	Category    Category
	Merchant    string
	Description *string
	Date        civil.Date
	CardLast4   string
	Confidence  *float64
}

// Expense is a persisted expense.
type Expense struct {
	ID          string          `json:"id"`
	UserKey     string          `json:"user_key"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    Currency        `json:"currency"`
	Category    Category        `json:"category"`
	Merchant    string          `json:"merchant"`
	Description *string         `json:"description,omitempty"`
	Date        civil.Date      `json:"date"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewExpense builds the record to insert for a candidate owned by userKey.
// ID and CreatedAt are assigned by the store.
func NewExpense(userKey string, c Candidate) Expense {
	return Expense{
		UserKey:     userKey,
		Amount:      c.Amount,
		Currency:    c.Currency,
		Category:    c.Category,
		Merchant:    c.Merchant,
		Description: c.Description,
		Date:        c.Date,
	}
}

// PendingDuplicate holds a candidate that collided with ExistingID until the
// user confirms the replacement or it expires.
type PendingDuplicate struct {
	ExistingID string
	Candidate  Candidate
	ExpiresAt  time.Time
}
