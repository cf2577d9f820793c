package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/shopspring/decimal"
)

// Rejection reasons shown to the user. Only the model's own "error" text is
// passed through besides these.
const (
	reasonNoExpense     = "no se encontró un gasto"
	reasonNoAmount      = "no se encontró un monto"
	reasonInvalidAmount = "el monto no es válido"
)

var (
	errNoAmount      = errors.New(reasonNoAmount)
	errInvalidAmount = errors.New(reasonInvalidAmount)
)

// parseOutcome converts the raw model text into an Outcome. Malformed output
// (not JSON, not an object, a field of the wrong type) is an AdapterFailure.
// An explicit null, an "error" answer or a missing or non-positive amount is
// Rejected.
func parseOutcome(raw string, d Domain) Outcome {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return failure("empty response from model")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(clean)))
	dec.UseNumber()

	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		return failure("unmarshal JSON: %v", err)
	}

	if parsed == nil {
		return Rejected{Reason: reasonNoExpense}
	}

	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return failure("unexpected JSON %T, want object", parsed)
	}

	if reason, err := getOptionalStringField(obj, "error"); err != nil {
		return failure("%v", err)
	} else if reason != nil {
		return Rejected{Reason: *reason}
	}

	c, err := candidateFromObject(obj, d)
	switch {
	case errors.Is(err, errNoAmount), errors.Is(err, errInvalidAmount):
		return Rejected{Reason: err.Error()}
	case err != nil:
		return failure("%v", err)
	}
	return Success{Candidate: c}
}

func candidateFromObject(obj map[string]interface{}, d Domain) (domain.Candidate, error) {
	amount, err := getOptionalDecimalField(obj, "amount")
	if err != nil {
		return domain.Candidate{}, err
	}
	if amount == nil {
		return domain.Candidate{}, errNoAmount
	}
	if !amount.IsPositive() {
		return domain.Candidate{}, errInvalidAmount
	}

	currency, err := getOptionalStringField(obj, "currency")
	if err != nil {
		return domain.Candidate{}, err
	}
	category, err := getOptionalStringField(obj, "category")
	if err != nil {
		return domain.Candidate{}, err
	}
	merchant, err := getOptionalStringField(obj, "merchant")
	if err != nil {
		return domain.Candidate{}, err
	}
	description, err := getOptionalStringField(obj, "description")
	if err != nil {
		return domain.Candidate{}, err
	}

	c := domain.Candidate{
		Amount:      *amount,
		Currency:    domain.Currency(deref(currency)),
		Category:    domain.Category(deref(category)),
		Merchant:    deref(merchant),
		Description: description,
	}

	dateStr, err := getOptionalStringField(obj, "date")
	if err != nil {
		return domain.Candidate{}, err
	}
	if dateStr != nil {
		// An unreadable date is left empty and defaults to today downstream.
		if date, err := civil.ParseDate(*dateStr); err == nil {
			c.Date = date
		}
	}

	if d == DomainBankEmail {
		card, err := getOptionalStringField(obj, "cardLast4")
		if err != nil {
			return domain.Candidate{}, err
		}
		c.CardLast4 = lastDigits(deref(card), 4)
	}

	if d == DomainReceiptPhoto {
		conf, err := getOptionalDecimalField(obj, "confidence")
		if err != nil {
			return domain.Candidate{}, err
		}
		if conf != nil {
			f := clamp01(conf.InexactFloat64())
			c.Confidence = &f
		}
	}

	return c, nil
}

// cleanModelJSON strips Markdown fences and surrounding prose from a model
// answer, keeping the outermost JSON object when there is one.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" || strings.EqualFold(s, "null") {
			return nil, nil
		}
		return &s, nil
	case json.Number:
		// Card digits sometimes come back as numbers.
		s := val.String()
		return &s, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want string or null", key, v)
	}
}

func getOptionalDecimalField(m map[string]interface{}, key string) (*decimal.Decimal, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return nil, fmt.Errorf("field %q: invalid number %q", key, val.String())
		}
		return &d, nil
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(val, ",", ""))
		if s == "" {
			return nil, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("field %q: invalid number %q", key, val)
		}
		return &d, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want number or null", key, v)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func lastDigits(s string, n int) string {
	var digits []rune
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) > n {
		digits = digits[len(digits)-n:]
	}
	return string(digits)
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
