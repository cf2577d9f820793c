package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/notionsync"
	"github.com/spf13/cobra"
)

const syncTimeout = 10 * time.Minute

func syncNotionCmd() *cobra.Command {
	var (
		user      string
		startDate string
		endDate   string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "sync-notion",
		Short: "Mirror a user's expenses into the Notion database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := parseRange(startDate, endDate)
			if err != nil {
				return err
			}
			if cfg.Notion.Token == "" || cfg.Notion.DatabaseID == "" {
				return errors.New("notion.token and notion.database_id must be configured")
			}

			// Keep the CLI from hanging on a slow API.
			ctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
			defer cancel()

			repo, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer repo.Close()

			log.Info().
				Str("user", user).
				Str("start_date", start.String()).
				Str("end_date", end.String()).
				Bool("dry_run", dryRun).
				Msg("Starting Notion sync")

			syncer := notionsync.NewSyncer(notionsync.NewNotionClient(cfg.Notion.Token), repo, cfg.Notion.DatabaseID, log)
			res, err := syncer.SyncExpenses(ctx, user, start, end, dryRun)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created=%d updated=%d archived=%d failed=%d\n",
				res.Created, res.Updated, res.Archived, res.Failed)
			if res.Failed > 0 {
				return fmt.Errorf("%d page(s) failed to sync", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user key, e.g. telegram:123456 (required)")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date in YYYY-MM-DD format (required)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date in YYYY-MM-DD format (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview changes without writing to Notion")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("start-date")
	_ = cmd.MarkFlagRequired("end-date")
	return cmd
}

func parseRange(startStr, endStr string) (civil.Date, civil.Date, error) {
	start, err := civil.ParseDate(startStr)
	if err != nil {
		return civil.Date{}, civil.Date{}, fmt.Errorf("invalid start-date %q, expected YYYY-MM-DD", startStr)
	}
	end, err := civil.ParseDate(endStr)
	if err != nil {
		return civil.Date{}, civil.Date{}, fmt.Errorf("invalid end-date %q, expected YYYY-MM-DD", endStr)
	}
	if end.Before(start) {
		return civil.Date{}, civil.Date{}, errors.New("end-date must not be before start-date")
	}
	return start, end, nil
}
