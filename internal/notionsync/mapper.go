package notionsync

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the expenses database.
const (
	PropMerchant    = "Merchant"
	PropExpenseID   = "Expense ID"
	PropUser        = "User"
	PropAmount      = "Amount"
	PropCurrency    = "Currency"
	PropCategory    = "Category"
	PropDate        = "Date"
	PropDescription = "Description"
)

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}}
}

// ExpenseToNotionProperties converts an expense to page properties.
func ExpenseToNotionProperties(e domain.Expense) notionapi.Properties {
	date := notionapi.Date(e.Date.In(time.UTC))

	props := notionapi.Properties{
		PropMerchant:  notionapi.TitleProperty{Title: richText(e.Merchant)},
		PropExpenseID: notionapi.RichTextProperty{RichText: richText(e.ID)},
		PropUser:      notionapi.RichTextProperty{RichText: richText(e.UserKey)},
		PropAmount:    notionapi.NumberProperty{Number: e.Amount.InexactFloat64()},
		PropCurrency:  notionapi.SelectProperty{Select: notionapi.Option{Name: string(e.Currency)}},
		PropCategory:  notionapi.SelectProperty{Select: notionapi.Option{Name: e.Category.Label()}},
		PropDate:      notionapi.DateProperty{Date: &notionapi.DateObject{Start: &date}},
	}

	if e.Description != nil {
		props[PropDescription] = notionapi.RichTextProperty{RichText: richText(*e.Description)}
	}

	return props
}

// plainText reads a title or rich text property. Returns "" if absent.
func plainText(page notionapi.Page, name string) string {
	switch prop := page.Properties[name].(type) {
	case *notionapi.RichTextProperty:
		if len(prop.RichText) > 0 {
			return prop.RichText[0].PlainText
		}
	case *notionapi.TitleProperty:
		if len(prop.Title) > 0 {
			return prop.Title[0].PlainText
		}
	}
	return ""
}

// pageDate reads the Date property.
func pageDate(page notionapi.Page) (civil.Date, bool) {
	prop, ok := page.Properties[PropDate].(*notionapi.DateProperty)
	if !ok || prop.Date == nil || prop.Date.Start == nil {
		return civil.Date{}, false
	}
	return civil.DateOf(time.Time(*prop.Date.Start)), true
}
