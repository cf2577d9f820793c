package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/expense-bot/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveReturnsCopies(t *testing.T) {
	s := NewStore(0)
	ctx := context.Background()

	job := &jobs.ReplyJob{JobID: "j1", Recipient: "telegram:1", Status: jobs.JobStatusPending}
	require.NoError(t, s.SaveJob(ctx, job))

	job.Status = jobs.JobStatusFailed
	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, got.Status)

	_, err = s.GetJob(ctx, "missing")
	assert.True(t, errors.Is(err, jobs.ErrJobNotFound))

	assert.Error(t, s.SaveJob(ctx, &jobs.ReplyJob{}))
}

func TestStore_ListFilterAndOrder(t *testing.T) {
	s := NewStore(0)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, r := range []string{"telegram:1", "telegram:2", "telegram:1"} {
		require.NoError(t, s.SaveJob(ctx, &jobs.ReplyJob{
			JobID:     string(rune('a' + i)),
			Recipient: r,
			Status:    jobs.JobStatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := s.ListJobs(ctx, jobs.JobFilter{Recipient: "telegram:1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].JobID)
	assert.Equal(t, "a", got[1].JobID)

	got, err = s.ListJobs(ctx, jobs.JobFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].JobID)

	require.NoError(t, s.UpdateJobStatus(ctx, "b", jobs.JobStatusFailed, "boom"))
	failed, err := s.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].Error)
}

func TestStore_EvictsOldest(t *testing.T) {
	s := NewStore(2)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveJob(ctx, &jobs.ReplyJob{JobID: id}))
	}

	_, err := s.GetJob(ctx, "a")
	assert.True(t, errors.Is(err, jobs.ErrJobNotFound))
	_, err = s.GetJob(ctx, "c")
	assert.NoError(t, err)
}
