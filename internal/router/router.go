// Package router maps user text to a bot action.
package router

import (
	"regexp"
	"strings"

	"github.com/dvloznov/expense-bot/internal/domain"
)

// Kind identifies an Action.
type Kind int

const (
	ExtractAsExpense Kind = iota
	ShowHelp
	LinkAccountRequest
	MonthlySummary
	CategoryBreakdown
	DeleteLast
	BankSetupInstructions
	ChangeCurrency
	ConfirmPendingDuplicate
	CancelPendingDuplicate
)

var kindNames = map[Kind]string{
	ExtractAsExpense:        "extract",
	ShowHelp:                "help",
	LinkAccountRequest:      "link",
	MonthlySummary:          "month",
	CategoryBreakdown:       "categories",
	DeleteLast:              "delete_last",
	BankSetupInstructions:   "bank_setup",
	ChangeCurrency:          "change_currency",
	ConfirmPendingDuplicate: "confirm_duplicate",
	CancelPendingDuplicate:  "cancel_duplicate",
}

// String returns a short name suitable as a metric label.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Action is the routing decision. Text is set for ExtractAsExpense and
// Currency for ChangeCurrency.
type Action struct {
	Kind     Kind
	Text     string
	Currency domain.Currency
}

var commands = map[string]Kind{
	"/start": ShowHelp,
	"/ayuda": ShowHelp,
	"/help":  ShowHelp,
	"ayuda":  ShowHelp,
	"help":   ShowHelp,
	"hola":   ShowHelp,

	"/vincular": LinkAccountRequest,
	"/link":     LinkAccountRequest,
	"vincular":  LinkAccountRequest,

	"/mes":     MonthlySummary,
	"/resumen": MonthlySummary,
	"mes":      MonthlySummary,
	"resumen":  MonthlySummary,

	"/categorias": CategoryBreakdown,
	"/categorías": CategoryBreakdown,
	"categorias":  CategoryBreakdown,
	"categorías":  CategoryBreakdown,

	"/borrar":  DeleteLast,
	"borrar":   DeleteLast,
	"eliminar": DeleteLast,

	"/banco": BankSetupInstructions,
	"banco":  BankSetupInstructions,
	"/bank":  BankSetupInstructions,
}

var affirmatives = map[string]bool{"si": true, "sí": true, "yes": true, "ok": true}

var negatives = map[string]bool{"no": true, "cancelar": true}

var currencyCommand = regexp.MustCompile(`^(?:/moneda|moneda|cambiar|currency)\s+(cop|clp|usd|pen|mxn|ars|eur)$`)

// IsAffirmative reports whether text confirms a pending duplicate.
func IsAffirmative(text string) bool {
	return affirmatives[normalize(text)]
}

// Route decides what to do with text. hasPending reports whether the user
// has a duplicate waiting for confirmation.
func Route(text string, hasPending bool) Action {
	t := normalize(text)

	if hasPending {
		if affirmatives[t] {
			return Action{Kind: ConfirmPendingDuplicate}
		}
		if negatives[t] {
			return Action{Kind: CancelPendingDuplicate}
		}
	}

	if k, ok := commands[t]; ok {
		return Action{Kind: k}
	}

	if m := currencyCommand.FindStringSubmatch(t); m != nil {
		return Action{Kind: ChangeCurrency, Currency: domain.Currency(strings.ToUpper(m[1]))}
	}

	return Action{Kind: ExtractAsExpense, Text: text}
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
