// Package ledger holds the policies the bot applies on top of a
// store.Repository.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/store"
	"github.com/shopspring/decimal"
)

const (
	// PreferenceWindow is how many recent expenses PreferredCurrency looks at.
	PreferenceWindow = 10

	// PreferenceThreshold is the minimum share the most used currency needs.
	PreferenceThreshold = 0.6
)

// Gateway wraps a repository with the ledger policies.
type Gateway struct {
	repo store.Repository
}

// New creates a Gateway over repo.
func New(repo store.Repository) *Gateway {
	return &Gateway{repo: repo}
}

// Repository exposes the underlying store.
func (g *Gateway) Repository() store.Repository {
	return g.repo
}

// PreferredCurrency returns the currency used in at least 60% of the user's
// last 10 expenses. It returns nil when the user has no expenses, when the
// top currency is tied or when it falls under the threshold.
func (g *Gateway) PreferredCurrency(ctx context.Context, userKey string) (*domain.Currency, error) {
	recent, err := g.repo.RecentCurrencies(ctx, userKey, PreferenceWindow)
	if err != nil {
		return nil, fmt.Errorf("PreferredCurrency: %w", err)
	}
	return preferred(recent), nil
}

func preferred(recent []domain.Currency) *domain.Currency {
	if len(recent) == 0 {
		return nil
	}

	counts := make(map[domain.Currency]int)
	for _, c := range recent {
		counts[c]++
	}

	var (
		top  domain.Currency
		best int
		tied bool
	)
	for c, n := range counts {
		switch {
		case n > best:
			top, best, tied = c, n, false
		case n == best:
			tied = true
		}
	}
	if tied {
		return nil
	}

	// Integer comparison keeps the 60% boundary exact: best/len >= 3/5.
	if best*5 < len(recent)*3 {
		return nil
	}
	return &top
}

// MonthRange returns the first and last day of the month containing now.
func MonthRange(now time.Time) (civil.Date, civil.Date) {
	first := civil.Date{Year: now.Year(), Month: now.Month(), Day: 1}
	last := civil.DateOf(time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()))
	return first, last
}

// MonthExpenses returns the user's expenses dated in the month of now.
func (g *Gateway) MonthExpenses(ctx context.Context, userKey string, now time.Time) ([]domain.Expense, error) {
	start, end := MonthRange(now)
	expenses, err := g.repo.FindExpensesInRange(ctx, userKey, start, end)
	if err != nil {
		return nil, fmt.Errorf("MonthExpenses: %w", err)
	}
	return expenses, nil
}

// CategoryTotal is the sum of a user's expenses in one category.
type CategoryTotal struct {
	Category domain.Category `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

// CategoryTotals sums expenses per category, largest total first. Equal
// totals keep the category display order. Amounts are summed regardless of
// currency, matching the chat breakdown.
func CategoryTotals(expenses []domain.Expense) []CategoryTotal {
	byCategory := make(map[domain.Category]*CategoryTotal)
	for _, e := range expenses {
		cat := e.Category
		if !cat.Valid() {
			cat = domain.CategoryOther
		}
		t, ok := byCategory[cat]
		if !ok {
			t = &CategoryTotal{Category: cat}
			byCategory[cat] = t
		}
		t.Total = t.Total.Add(e.Amount)
		t.Count++
	}

	out := make([]CategoryTotal, 0, len(byCategory))
	for _, t := range byCategory {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Category.Order() < out[j].Category.Order()
	})
	return out
}

// CurrencyTotal is the sum of a user's expenses in one currency.
type CurrencyTotal struct {
	Currency domain.Currency `json:"currency"`
	Total    decimal.Decimal `json:"total"`
}

// CurrencyTotals sums expenses per currency, in the order currencies first
// appear in expenses.
func CurrencyTotals(expenses []domain.Expense) []CurrencyTotal {
	var out []CurrencyTotal
	idx := make(map[domain.Currency]int)
	for _, e := range expenses {
		i, ok := idx[e.Currency]
		if !ok {
			i = len(out)
			idx[e.Currency] = i
			out = append(out, CurrencyTotal{Currency: e.Currency})
		}
		out[i].Total = out[i].Total.Add(e.Amount)
	}
	return out
}

// DeleteLast deletes the user's most recent expense and returns it. It
// returns nil, nil when there is nothing to delete.
func (g *Gateway) DeleteLast(ctx context.Context, userKey string) (*domain.Expense, error) {
	last, err := g.repo.FindLastExpense(ctx, userKey)
	if err != nil {
		return nil, fmt.Errorf("DeleteLast: %w", err)
	}
	if last == nil {
		return nil, nil
	}
	if err := g.repo.DeleteExpense(ctx, last.ID, userKey); err != nil {
		return nil, fmt.Errorf("DeleteLast: %w", err)
	}
	return last, nil
}

// ChangeLastCurrency sets the currency of the user's most recent expense and
// returns the expense as it was before the change, or nil when the user has
// no expenses.
func (g *Gateway) ChangeLastCurrency(ctx context.Context, userKey string, cur domain.Currency) (*domain.Expense, error) {
	last, err := g.repo.FindLastExpense(ctx, userKey)
	if err != nil {
		return nil, fmt.Errorf("ChangeLastCurrency: %w", err)
	}
	if last == nil {
		return nil, nil
	}
	if err := g.repo.UpdateExpenseCurrency(ctx, last.ID, userKey, cur); err != nil {
		return nil, fmt.Errorf("ChangeLastCurrency: %w", err)
	}
	return last, nil
}
