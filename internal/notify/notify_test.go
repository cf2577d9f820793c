package notify

import (
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/ledger"
	"github.com/shopspring/decimal"
)

func wongExpense() domain.Expense {
	return domain.Expense{
		ID:       "e1",
		UserKey:  "telegram:1",
		Amount:   decimal.RequireFromString("45.90"),
		Currency: domain.CurrencyPEN,
		Category: domain.CategoryFood,
		Merchant: "Wong",
		Date:     civil.Date{Year: 2024, Month: 3, Day: 1},
	}
}

func TestAmount(t *testing.T) {
	tests := []struct {
		amount string
		cur    domain.Currency
		want   string
	}{
		{"45.90", domain.CurrencyPEN, "S/ 45,9"},
		{"50", domain.CurrencyPEN, "S/ 50"},
		{"12345.5", domain.CurrencyCOP, "$12.345,5"},
		{"1234567", domain.CurrencyCLP, "$1.234.567"},
		{"9.999", domain.CurrencyUSD, "$10"},
		{"15", domain.CurrencyEUR, "€15"},
	}
	for _, tt := range tests {
		got := Amount(decimal.RequireFromString(tt.amount), tt.cur)
		if got != tt.want {
			t.Errorf("Amount(%s, %s) = %q, want %q", tt.amount, tt.cur, got, tt.want)
		}
	}
}

func TestSuccess(t *testing.T) {
	want := "✅ 🍔 Gasto registrado\n\n💰 S/ 45,9 PEN\n🏪 Wong\n📁 Alimentación\n📅 2024-03-01"
	if got := Success(wongExpense()); got != want {
		t.Errorf("Success() =\n%s\nwant\n%s", got, want)
	}
}

func TestDuplicate(t *testing.T) {
	c := domain.Candidate{
		Amount:   decimal.RequireFromString("45.90"),
		Currency: domain.CurrencyPEN,
		Merchant: "Wong",
		Date:     civil.Date{Year: 2024, Month: 3, Day: 1},
	}
	want := "⚠️ Gasto duplicado detectado\n\nYa tienes un gasto de S/ 45,9 en Wong el 2024-03-01.\n\nEscribe \"si\" para reemplazar el anterior."
	if got := Duplicate(c); got != want {
		t.Errorf("Duplicate() =\n%s\nwant\n%s", got, want)
	}
}

func TestReplacedDeletedAndCurrency(t *testing.T) {
	e := wongExpense()

	if got := Replaced(e); !strings.HasPrefix(got, "✅ 🍔 Gasto actualizado\n\n") {
		t.Errorf("Replaced() = %q", got)
	}
	if got := Deleted(e); got != "🗑️ Gasto eliminado\n\nSe borró: S/ 45,9 en Wong (2024-03-01)" {
		t.Errorf("Deleted() = %q", got)
	}
	if got := CurrencyChanged(e, domain.CurrencyUSD); got != "💱 Moneda actualizada\n\nWong: 45,9 PEN → USD" {
		t.Errorf("CurrencyChanged() = %q", got)
	}
}

func TestBankSuccess(t *testing.T) {
	got := BankSuccess(wongExpense(), "Interbank")
	if !strings.HasPrefix(got, "📧 🍔 Gasto automático registrado") {
		t.Errorf("unexpected header: %q", got)
	}
	if !strings.HasSuffix(got, "💳 Detectado desde tu email de Interbank") {
		t.Errorf("unexpected footer: %q", got)
	}
}

func TestMonthlySummary(t *testing.T) {
	if got := MonthlySummary(nil); got != "📭 No tienes gastos este mes." {
		t.Errorf("empty summary = %q", got)
	}

	var expenses []domain.Expense
	for i := 0; i < 10; i++ {
		e := wongExpense()
		e.Amount = decimal.NewFromInt(10)
		expenses = append(expenses, e)
	}
	usd := wongExpense()
	usd.Currency = domain.CurrencyUSD
	usd.Amount = decimal.NewFromInt(5)
	expenses = append(expenses, usd)

	got := MonthlySummary(expenses)
	if !strings.HasPrefix(got, "📅 Gastos del mes\n\n") {
		t.Errorf("missing header: %q", got)
	}
	if n := strings.Count(got, " - Wong\n"); n != SummaryRows {
		t.Errorf("listed %d rows, want %d", n, SummaryRows)
	}
	if !strings.Contains(got, "… y 3 más") {
		t.Errorf("missing overflow line: %q", got)
	}
	if !strings.Contains(got, "💰 Total: S/ 100 PEN") || !strings.Contains(got, "💰 Total: $5 USD") {
		t.Errorf("missing per-currency totals: %q", got)
	}
}

func TestCategoryBreakdown(t *testing.T) {
	totals := []ledger.CategoryTotal{
		{Category: domain.CategoryTransport, Total: decimal.RequireFromString("45.91")},
		{Category: domain.CategoryFood, Total: decimal.RequireFromString("45.90")},
	}
	want := "📊 Gastos por categoría\n\n🚗 Transporte: S/ 45,91\n🍔 Alimentación: S/ 45,9"
	if got := CategoryBreakdown(totals, domain.CurrencyPEN); got != want {
		t.Errorf("CategoryBreakdown() =\n%s\nwant\n%s", got, want)
	}
	if got := CategoryBreakdown(totals, ""); !strings.Contains(got, "🚗 Transporte: $45,91") {
		t.Errorf("mixed currency breakdown = %q", got)
	}
}

func TestLinkCodeAndBankSetup(t *testing.T) {
	got := LinkCode("ABC234", "https://dash.example.com", 10*time.Minute)
	if !strings.Contains(got, "Tu código es: ABC234") || !strings.Contains(got, "expira en 10 minutos") {
		t.Errorf("LinkCode() = %q", got)
	}
	if got := BankSetup("gastos+1@example.com"); !strings.Contains(got, "📧 gastos+1@example.com") {
		t.Errorf("BankSetup() = %q", got)
	}
}

func TestEmpty(t *testing.T) {
	if Empty(EmptyDelete) != "📭 No tienes gastos para borrar." {
		t.Error("EmptyDelete")
	}
	if Empty(EmptyModify) != "📭 No tienes gastos para modificar." {
		t.Error("EmptyModify")
	}
}
