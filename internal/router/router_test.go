package router

import (
	"testing"

	"github.com/dvloznov/expense-bot/internal/domain"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		hasPending bool
		want       Action
	}{
		{"start", "/start", false, Action{Kind: ShowHelp}},
		{"hola trimmed", "  Hola ", false, Action{Kind: ShowHelp}},
		{"link", "/vincular", false, Action{Kind: LinkAccountRequest}},
		{"month", "RESUMEN", false, Action{Kind: MonthlySummary}},
		{"categories accent", "/categorías", false, Action{Kind: CategoryBreakdown}},
		{"delete", "eliminar", false, Action{Kind: DeleteLast}},
		{"bank", "/bank", false, Action{Kind: BankSetupInstructions}},
		{"currency", "/moneda usd", false, Action{Kind: ChangeCurrency, Currency: domain.CurrencyUSD}},
		{"currency alias", "Cambiar  COP", false, Action{Kind: ChangeCurrency, Currency: domain.CurrencyCOP}},
		{"currency unknown code", "moneda gbp", false, Action{Kind: ExtractAsExpense, Text: "moneda gbp"}},
		{"expense", "50 uber", false, Action{Kind: ExtractAsExpense, Text: "50 uber"}},
		{"expense keeps original text", "Mercado Wong 97 soles", false, Action{Kind: ExtractAsExpense, Text: "Mercado Wong 97 soles"}},
		{"si pending", "Sí", true, Action{Kind: ConfirmPendingDuplicate}},
		{"ok pending", " ok ", true, Action{Kind: ConfirmPendingDuplicate}},
		{"yes pending", "YES", true, Action{Kind: ConfirmPendingDuplicate}},
		{"si without pending", "si", false, Action{Kind: ExtractAsExpense, Text: "si"}},
		{"no pending", "no", true, Action{Kind: CancelPendingDuplicate}},
		{"cancelar pending", "Cancelar", true, Action{Kind: CancelPendingDuplicate}},
		{"no without pending", "no", false, Action{Kind: ExtractAsExpense, Text: "no"}},
		{"command while pending", "/mes", true, Action{Kind: MonthlySummary}},
		{"sentence with si", "si claro 50 uber", true, Action{Kind: ExtractAsExpense, Text: "si claro 50 uber"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Route(tt.text, tt.hasPending)
			if got != tt.want {
				t.Errorf("Route(%q, %v) = %+v, want %+v", tt.text, tt.hasPending, got, tt.want)
			}
		})
	}
}

func TestIsAffirmative(t *testing.T) {
	for _, s := range []string{"si", "SÍ", " yes", "Ok"} {
		if !IsAffirmative(s) {
			t.Errorf("IsAffirmative(%q) = false", s)
		}
	}
	for _, s := range []string{"no", "sip", ""} {
		if IsAffirmative(s) {
			t.Errorf("IsAffirmative(%q) = true", s)
		}
	}
}

func TestKindString(t *testing.T) {
	if ChangeCurrency.String() != "change_currency" {
		t.Errorf("got %s", ChangeCurrency.String())
	}
	if Kind(99).String() != "unknown" {
		t.Errorf("got %s", Kind(99).String())
	}
}
