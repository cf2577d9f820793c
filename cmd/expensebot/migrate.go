package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/expense-bot/internal/config"
	"github.com/dvloznov/expense-bot/internal/store/bigquery"
	"github.com/dvloznov/expense-bot/internal/store/sqlite"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var (
		status    bool
		appliedBy string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured store",
		Long: `Apply pending schema migrations to the configured store.

BigQuery migrations are versioned and recorded in schema_migrations; use
--status to list them without applying anything. SQLite schemas are created
idempotently. The memory driver has nothing to migrate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			switch cfg.Store.Driver {
			case config.DriverBigQuery:
				s, err := bigquery.New(ctx, cfg.Store.BigQuery.Project, cfg.Store.BigQuery.Dataset, log)
				if err != nil {
					return err
				}
				defer s.Close()

				if status {
					st, err := s.Status(ctx)
					if err != nil {
						return err
					}
					return printMigrationStatus(cmd.OutOrStdout(), st)
				}
				return s.Migrate(ctx, appliedBy)

			case config.DriverSQLite:
				if status {
					return fmt.Errorf("--status is only supported for the %s driver", config.DriverBigQuery)
				}
				s, err := sqlite.Open(cfg.Store.SQLitePath, sqlite.WithLogger(log))
				if err != nil {
					return err
				}
				defer s.Close()
				return s.Migrate(ctx)
			}

			log.Info().Str("driver", cfg.Store.Driver).Msg("Nothing to migrate")
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "list migrations and whether they are applied")
	cmd.Flags().StringVar(&appliedBy, "applied-by", "expensebot migrate", "name recorded with applied migrations")
	return cmd
}

func printMigrationStatus(w io.Writer, statuses []bigquery.MigrationStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, st := range statuses {
		state, at := "pending", "-"
		if st.Applied != nil {
			state = "applied"
			at = st.Applied.AppliedAt.UTC().Format(time.RFC3339)
			if st.Applied.Checksum != st.Checksum {
				state = "modified"
			}
		}
		fmt.Fprintf(tw, "%04d\t%s\t%s\t%s\n", st.Version, st.Name, state, at)
	}
	return tw.Flush()
}
