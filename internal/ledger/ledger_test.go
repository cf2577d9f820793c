package ledger

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/store/memstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeat(c domain.Currency, n int) []domain.Currency {
	out := make([]domain.Currency, n)
	for i := range out {
		out[i] = c
	}
	return out
}

func TestPreferred(t *testing.T) {
	pen, usd, cop := domain.CurrencyPEN, domain.CurrencyUSD, domain.CurrencyCOP

	tests := []struct {
		name   string
		recent []domain.Currency
		want   *domain.Currency
	}{
		{"no history", nil, nil},
		{"single", []domain.Currency{pen}, &pen},
		{"six of ten", append(repeat(pen, 6), repeat(usd, 4)...), &pen},
		{"five of ten tie", append(repeat(pen, 5), repeat(usd, 5)...), nil},
		{"five of ten no tie", append(append(repeat(pen, 5), repeat(usd, 3)...), repeat(cop, 2)...), nil},
		{"three of five", append(repeat(cop, 3), repeat(usd, 2)...), &cop},
		{"two of four", append(repeat(cop, 2), usd, pen), nil},
		{"all same", repeat(usd, 10), &usd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preferred(tt.recent)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func seed(t *testing.T, s *memstore.Store, user string, items ...domain.Expense) {
	t.Helper()
	for _, e := range items {
		e.UserKey = user
		_, err := s.InsertExpense(context.Background(), e)
		require.NoError(t, err)
	}
}

func exp(merchant, amount string, cur domain.Currency, cat domain.Category, day int) domain.Expense {
	return domain.Expense{
		Merchant: merchant,
		Amount:   decimal.RequireFromString(amount),
		Currency: cur,
		Category: cat,
		Date:     civil.Date{Year: 2024, Month: 3, Day: day},
	}
}

func steppingClock() func() time.Time {
	t := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestGateway_PreferredCurrencyUsesLastTen(t *testing.T) {
	s := memstore.New().WithClock(steppingClock())
	g := New(s)
	ctx := context.Background()

	// Five old PEN expenses fall outside the window once ten USD follow.
	var items []domain.Expense
	for i := 0; i < 5; i++ {
		items = append(items, exp("Old", decimal.NewFromInt(int64(i+1)).String(), domain.CurrencyPEN, domain.CategoryFood, 1))
	}
	for i := 0; i < 10; i++ {
		items = append(items, exp("New", decimal.NewFromInt(int64(i+1)).String(), domain.CurrencyUSD, domain.CategoryFood, 2))
	}
	seed(t, s, "telegram:1", items...)

	got, err := g.PreferredCurrency(ctx, "telegram:1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.CurrencyUSD, *got)

	none, err := g.PreferredCurrency(ctx, "telegram:2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMonthRange(t *testing.T) {
	tests := []struct {
		now         time.Time
		first, last civil.Date
	}{
		{time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC), civil.Date{Year: 2024, Month: 2, Day: 1}, civil.Date{Year: 2024, Month: 2, Day: 29}},
		{time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC), civil.Date{Year: 2023, Month: 12, Day: 1}, civil.Date{Year: 2023, Month: 12, Day: 31}},
		{time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), civil.Date{Year: 2024, Month: 4, Day: 1}, civil.Date{Year: 2024, Month: 4, Day: 30}},
	}
	for _, tt := range tests {
		first, last := MonthRange(tt.now)
		assert.Equal(t, tt.first, first)
		assert.Equal(t, tt.last, last)
	}
}

func TestCategoryTotals(t *testing.T) {
	expenses := []domain.Expense{
		exp("Uber", "20", domain.CurrencyPEN, domain.CategoryTransport, 1),
		exp("Wong", "45.90", domain.CurrencyPEN, domain.CategoryFood, 1),
		exp("Taxi", "25.91", domain.CurrencyPEN, domain.CategoryTransport, 2),
		exp("Cine", "30", domain.CurrencyPEN, domain.CategoryEntertainment, 3),
		exp("Libro", "30", domain.CurrencyPEN, domain.CategoryEducation, 3),
		exp("Raro", "1", domain.CurrencyPEN, domain.Category("bogus"), 3),
	}

	got := CategoryTotals(expenses)
	require.Len(t, got, 5)

	assert.Equal(t, domain.CategoryTransport, got[0].Category)
	assert.Equal(t, "45.91", got[0].Total.String())
	assert.Equal(t, 2, got[0].Count)
	assert.Equal(t, domain.CategoryFood, got[1].Category)
	// Tie at 30: entertainment comes before education in display order.
	assert.Equal(t, domain.CategoryEntertainment, got[2].Category)
	assert.Equal(t, domain.CategoryEducation, got[3].Category)
	assert.Equal(t, domain.CategoryOther, got[4].Category)
}

func TestCurrencyTotals(t *testing.T) {
	got := CurrencyTotals([]domain.Expense{
		exp("A", "10.10", domain.CurrencyPEN, domain.CategoryFood, 1),
		exp("B", "5", domain.CurrencyUSD, domain.CategoryFood, 1),
		exp("C", "0.20", domain.CurrencyPEN, domain.CategoryFood, 1),
	})
	require.Len(t, got, 2)
	assert.Equal(t, domain.CurrencyPEN, got[0].Currency)
	assert.Equal(t, "10.3", got[0].Total.String())
	assert.Equal(t, domain.CurrencyUSD, got[1].Currency)
}

func TestGateway_DeleteLastAndChangeCurrency(t *testing.T) {
	s := memstore.New().WithClock(steppingClock())
	g := New(s)
	ctx := context.Background()

	gone, err := g.DeleteLast(ctx, "telegram:1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	seed(t, s, "telegram:1",
		exp("Wong", "45.90", domain.CurrencyPEN, domain.CategoryFood, 1),
		exp("Netflix", "15", domain.CurrencyPEN, domain.CategoryEntertainment, 2),
	)

	before, err := g.ChangeLastCurrency(ctx, "telegram:1", domain.CurrencyUSD)
	require.NoError(t, err)
	require.NotNil(t, before)
	assert.Equal(t, "Netflix", before.Merchant)
	assert.Equal(t, domain.CurrencyPEN, before.Currency)

	gone, err = g.DeleteLast(ctx, "telegram:1")
	require.NoError(t, err)
	require.NotNil(t, gone)
	assert.Equal(t, "Netflix", gone.Merchant)
	assert.Equal(t, domain.CurrencyUSD, gone.Currency)

	last, err := s.FindLastExpense(ctx, "telegram:1")
	require.NoError(t, err)
	assert.Equal(t, "Wong", last.Merchant)
}
