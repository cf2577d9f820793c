// Package notionsync mirrors a user's expenses into a Notion database.
// Pages are matched to expenses by the "Expense ID" property.
package notionsync

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/jomei/notionapi"
	"github.com/rs/zerolog"
)

// ExpenseLister is the part of the store the sync reads from.
type ExpenseLister interface {
	FindExpensesInRange(ctx context.Context, userKey string, start, end civil.Date) ([]domain.Expense, error)
}

// Result counts what a sync did, or would do in a dry run.
type Result struct {
	Created  int
	Updated  int
	Archived int
	Failed   int
}

// Syncer copies expenses to one Notion database.
type Syncer struct {
	notion     NotionService
	repo       ExpenseLister
	databaseID string
	log        zerolog.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(notion NotionService, repo ExpenseLister, databaseID string, log zerolog.Logger) *Syncer {
	return &Syncer{notion: notion, repo: repo, databaseID: databaseID, log: log}
}

// SyncExpenses makes the user's pages dated within [start, end] match the
// stored expenses: missing pages are created, existing ones updated and
// pages of deleted expenses archived. Failures on single pages are logged
// and counted, not returned.
func (s *Syncer) SyncExpenses(ctx context.Context, userKey string, start, end civil.Date, dryRun bool) (Result, error) {
	var res Result
	log := s.log.With().Str("user", userKey).Bool("dry_run", dryRun).Logger()

	expenses, err := s.repo.FindExpensesInRange(ctx, userKey, start, end)
	if err != nil {
		return res, fmt.Errorf("SyncExpenses: query expenses: %w", err)
	}
	log.Info().Int("expense_count", len(expenses)).Msg("Retrieved expenses")

	pages, err := queryAllNotionPages(ctx, s.notion, s.databaseID)
	if err != nil {
		return res, fmt.Errorf("SyncExpenses: %w", err)
	}

	valid := make(map[string]bool, len(expenses))
	for _, e := range expenses {
		valid[e.ID] = true
	}

	pageByExpense := make(map[string]string)
	for _, page := range pages {
		if plainText(page, PropUser) != userKey {
			continue
		}
		id := plainText(page, PropExpenseID)
		if id != "" && valid[id] {
			pageByExpense[id] = string(page.ID)
			continue
		}

		date, ok := pageDate(page)
		if !ok || date.Before(start) || date.After(end) {
			continue
		}
		if dryRun {
			log.Info().Str("expense_id", id).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
			res.Archived++
			continue
		}
		if err := s.notion.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().Err(err).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
			res.Failed++
			continue
		}
		res.Archived++
	}

	for _, e := range expenses {
		pageID, exists := pageByExpense[e.ID]

		if dryRun {
			if exists {
				res.Updated++
			} else {
				res.Created++
			}
			continue
		}

		props := ExpenseToNotionProperties(e)
		if exists {
			if _, err := s.notion.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().Err(err).Str("expense_id", e.ID).Str("page_id", pageID).Msg("Failed to update Notion page")
				res.Failed++
				continue
			}
			res.Updated++
			continue
		}

		page, err := s.notion.CreatePage(ctx, s.databaseID, props)
		if err != nil {
			log.Warn().Err(err).Str("expense_id", e.ID).Msg("Failed to create Notion page")
			res.Failed++
			continue
		}
		log.Debug().Str("expense_id", e.ID).Str("page_id", string(page.ID)).Msg("Created Notion page")
		res.Created++
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("archived", res.Archived).
		Int("failed", res.Failed).
		Msg("Expense sync completed")

	return res, nil
}

func queryAllNotionPages(ctx context.Context, notion NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notion.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}
		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
