package notionsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/store/memstore"
	"github.com/jomei/notionapi"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockNotionService struct {
	CreatePageFunc    func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePageFunc    func(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabaseFunc func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	ArchivePageFunc   func(ctx context.Context, pageID string) error

	created  []notionapi.Properties
	updated  []string
	archived []string
}

func (m *mockNotionService) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.CreatePageFunc != nil {
		return m.CreatePageFunc(ctx, databaseID, properties)
	}
	m.created = append(m.created, properties)
	return &notionapi.Page{ID: "new-page"}, nil
}

func (m *mockNotionService) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.UpdatePageFunc != nil {
		return m.UpdatePageFunc(ctx, pageID, properties)
	}
	m.updated = append(m.updated, pageID)
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func (m *mockNotionService) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return m.QueryDatabaseFunc(ctx, databaseID, req)
}

func (m *mockNotionService) ArchivePage(ctx context.Context, pageID string) error {
	if m.ArchivePageFunc != nil {
		return m.ArchivePageFunc(ctx, pageID)
	}
	m.archived = append(m.archived, pageID)
	return nil
}

func textProp(s string) *notionapi.RichTextProperty {
	return &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: s}}}
}

func page(id, user, expenseID string, date civil.Date) notionapi.Page {
	start := notionapi.Date(date.In(time.UTC))
	return notionapi.Page{
		ID: notionapi.ObjectID(id),
		Properties: notionapi.Properties{
			PropUser:      textProp(user),
			PropExpenseID: textProp(expenseID),
			PropDate:      &notionapi.DateProperty{Date: &notionapi.DateObject{Start: &start}},
		},
	}
}

const user = "telegram:1"

func march(day int) civil.Date { return civil.Date{Year: 2024, Month: time.March, Day: day} }

func seed(t *testing.T) (*memstore.Store, []domain.Expense) {
	t.Helper()
	repo := memstore.New()
	var out []domain.Expense
	for i, m := range []string{"Wong", "Uber"} {
		e, err := repo.InsertExpense(context.Background(), domain.Expense{
			UserKey:  user,
			Amount:   decimal.RequireFromString("45.90"),
			Currency: domain.CurrencyPEN,
			Category: domain.CategoryFood,
			Merchant: m,
			Date:     march(i + 1),
		})
		require.NoError(t, err)
		out = append(out, e)
	}
	return repo, out
}

func TestSyncExpenses(t *testing.T) {
	repo, expenses := seed(t)

	notion := &mockNotionService{}
	calls := 0
	notion.QueryDatabaseFunc = func(_ context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
		assert.Equal(t, "db-1", databaseID)
		calls++
		if calls == 1 {
			assert.Empty(t, req.StartCursor)
			return &notionapi.DatabaseQueryResponse{
				Results:    []notionapi.Page{page("p-existing", user, expenses[0].ID, march(1))},
				HasMore:    true,
				NextCursor: "cursor-2",
			}, nil
		}
		assert.Equal(t, notionapi.Cursor("cursor-2"), req.StartCursor)
		return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{
			page("p-stale", user, "deleted-expense", march(2)),
			page("p-out-of-range", user, "old-expense", civil.Date{Year: 2024, Month: time.January, Day: 5}),
			page("p-other-user", "telegram:2", "x", march(2)),
		}}, nil
	}

	s := NewSyncer(notion, repo, "db-1", zerolog.Nop())
	res, err := s.SyncExpenses(context.Background(), user, march(1), march(31), false)
	require.NoError(t, err)

	assert.Equal(t, Result{Created: 1, Updated: 1, Archived: 1}, res)
	assert.Equal(t, []string{"p-existing"}, notion.updated)
	assert.Equal(t, []string{"p-stale"}, notion.archived)
	require.Len(t, notion.created, 1)
	assert.Equal(t, "Uber", notion.created[0][PropMerchant].(notionapi.TitleProperty).Title[0].Text.Content)
}

func TestSyncExpenses_DryRun(t *testing.T) {
	repo, _ := seed(t)
	notion := &mockNotionService{
		QueryDatabaseFunc: func(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{page("p-stale", user, "gone", march(3))}}, nil
		},
	}

	res, err := NewSyncer(notion, repo, "db", zerolog.Nop()).SyncExpenses(context.Background(), user, march(1), march(31), true)
	require.NoError(t, err)

	assert.Equal(t, Result{Created: 2, Archived: 1}, res)
	assert.Empty(t, notion.created)
	assert.Empty(t, notion.archived)
}

func TestSyncExpenses_PageFailuresAreCounted(t *testing.T) {
	repo, _ := seed(t)
	notion := &mockNotionService{
		QueryDatabaseFunc: func(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return &notionapi.DatabaseQueryResponse{}, nil
		},
		CreatePageFunc: func(context.Context, string, notionapi.Properties) (*notionapi.Page, error) {
			return nil, errors.New("rate limited")
		},
	}

	res, err := NewSyncer(notion, repo, "db", zerolog.Nop()).SyncExpenses(context.Background(), user, march(1), march(31), false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
}

func TestSyncExpenses_QueryError(t *testing.T) {
	repo, _ := seed(t)
	notion := &mockNotionService{
		QueryDatabaseFunc: func(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return nil, errors.New("unauthorized")
		},
	}

	_, err := NewSyncer(notion, repo, "db", zerolog.Nop()).SyncExpenses(context.Background(), user, march(1), march(31), false)
	assert.Error(t, err)
}

func TestExpenseToNotionProperties(t *testing.T) {
	desc := "Tarjeta ****1234"
	props := ExpenseToNotionProperties(domain.Expense{
		ID:          "e-1",
		UserKey:     user,
		Amount:      decimal.RequireFromString("120.50"),
		Currency:    domain.CurrencyPEN,
		Category:    domain.CategoryFood,
		Merchant:    "Tottus",
		Description: &desc,
		Date:        march(1),
	})

	assert.Equal(t, 120.5, props[PropAmount].(notionapi.NumberProperty).Number)
	assert.Equal(t, "PEN", props[PropCurrency].(notionapi.SelectProperty).Select.Name)
	assert.Equal(t, "Alimentación", props[PropCategory].(notionapi.SelectProperty).Select.Name)
	assert.Equal(t, "e-1", props[PropExpenseID].(notionapi.RichTextProperty).RichText[0].Text.Content)
	assert.Equal(t, desc, props[PropDescription].(notionapi.RichTextProperty).RichText[0].Text.Content)

	start := props[PropDate].(notionapi.DateProperty).Date.Start
	assert.Equal(t, "2024-03-01", time.Time(*start).Format("2006-01-02"))
}
