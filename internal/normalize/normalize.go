// Package normalize turns a raw extracted candidate into one that satisfies
// the expense invariants: a known category, a known currency, a clean
// bounded merchant name and a date.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FallbackMerchant is used when the extractor returns no usable merchant.
const FallbackMerchant = "Gasto"

// Normalize never fails: every structurally valid candidate maps to a valid
// one. preferred may be nil.
func Normalize(c domain.Candidate, preferred *domain.Currency, today civil.Date) domain.Candidate {
	out := c

	out.Category = Category(string(c.Category))
	out.Currency = Currency(string(c.Currency), preferred)
	out.Merchant = Merchant(c.Merchant)

	if c.Date.IsZero() || !c.Date.IsValid() {
		out.Date = today
	}

	if c.Description != nil {
		d := strings.TrimSpace(*c.Description)
		if d == "" {
			out.Description = nil
		} else {
			out.Description = &d
		}
	}

	return out
}

// Category clamps s to the fixed enumeration, falling back to "other".
func Category(s string) domain.Category {
	if c, ok := domain.ParseCategory(s); ok {
		return c
	}
	return domain.CategoryOther
}

// Currency picks the extracted currency, then the preferred one, then the
// system default.
func Currency(extracted string, preferred *domain.Currency) domain.Currency {
	if c, ok := domain.ParseCurrency(extracted); ok {
		return c
	}
	if preferred != nil {
		if c, ok := domain.ParseCurrency(string(*preferred)); ok {
			return c
		}
	}
	return domain.DefaultCurrency
}

// Merchant cleans a merchant string: card-processor separators become
// spaces, whitespace collapses, single-case words are title-cased, and the
// result is capped at domain.MaxMerchantLength runes.
func Merchant(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '*', '_':
			return ' '
		}
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)

	// Casers are stateful; one per call keeps Merchant safe for concurrent use.
	titler := cases.Title(language.Spanish)
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = titleWord(titler, w)
	}
	s = strings.Join(words, " ")

	s = truncateRunes(s, domain.MaxMerchantLength)
	s = strings.TrimSpace(s)
	if s == "" {
		return FallbackMerchant
	}
	return s
}

// titleWord leaves mixed-case words ("OpenAI") and short acronyms ("BCP")
// untouched.
func titleWord(titler cases.Caser, w string) string {
	upper, lower := strings.ToUpper(w), strings.ToLower(w)
	switch {
	case w == upper && w != lower:
		if letterCount(w) <= 3 {
			return w
		}
		return titler.String(w)
	case w == lower:
		return titler.String(w)
	default:
		return w
	}
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
