// Package bigquery implements store.Repository on BigQuery for deployments
// that keep their finance data in a BigQuery dataset.
//
// BigQuery has no unique constraints, so two concurrent inserts of the same
// expense can both land. The duplicate check before insert is the only guard.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-bot/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	expensesTable  = "expenses"
	usersTable     = "users"
	linkCodesTable = "link_codes"
)

// Store implements store.Repository. It holds a shared BigQuery client.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string
}

// New creates a Store with its own client.
func New(ctx context.Context, projectID, datasetID string, log zerolog.Logger) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("New: project ID is required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("New: creating client: %w", err)
	}
	return NewWithClient(client, projectID, datasetID, log), nil
}

// NewWithClient creates a Store that uses the provided client.
func NewWithClient(client *bigquery.Client, projectID, datasetID string, log zerolog.Logger) *Store {
	if datasetID == "" {
		datasetID = "expenses"
	}
	return &Store{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// table returns the fully qualified, backtick-quoted name of a table.
func (s *Store) table(name string) string {
	return qualified(s.projectID, s.datasetID, name)
}

func qualified(projectID, datasetID, name string) string {
	return "`" + projectID + "." + datasetID + "." + name + "`"
}

// runDML runs a DML statement and returns the number of affected rows.
func (s *Store) runDML(ctx context.Context, sql string, params []bigquery.QueryParameter) (int64, error) {
	q := s.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	var affected int64
	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			affected = qs.NumDMLAffectedRows
		}
	}
	return affected, nil
}

var _ store.Repository = (*Store)(nil)
