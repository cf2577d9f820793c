package domain

import "strings"

// Currency is an ISO 4217 code from the supported set.
type Currency string

const (
	CurrencyCOP Currency = "COP"
	CurrencyCLP Currency = "CLP"
	CurrencyUSD Currency = "USD"
	CurrencyPEN Currency = "PEN"
	CurrencyMXN Currency = "MXN"
	CurrencyARS Currency = "ARS"
	CurrencyEUR Currency = "EUR"

	// DefaultCurrency applies when neither the extractor nor the user's
	// history yields a currency.
	DefaultCurrency = CurrencyPEN
)

// Currencies lists the supported currencies.
var Currencies = []Currency{
	CurrencyCOP, CurrencyCLP, CurrencyUSD, CurrencyPEN, CurrencyMXN, CurrencyARS, CurrencyEUR,
}

// ParseCurrency accepts a currency code in any case.
func ParseCurrency(s string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Currencies {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Symbol returns the prefix used when displaying amounts.
func (c Currency) Symbol() string {
	switch c {
	case CurrencyPEN:
		return "S/ "
	case CurrencyEUR:
		return "€"
	default:
		return "$"
	}
}
