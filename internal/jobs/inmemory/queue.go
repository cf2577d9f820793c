package inmemory

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/dvloznov/expense-bot/internal/jobs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxRetries is the retry budget used by callers that do not set one.
const DefaultMaxRetries = 2

// Queue is an in-memory implementation of job publisher and consumer.
// Jobs are sharded by an FNV hash of the recipient so each user's replies
// are delivered by one worker, in order. A failed send is retried on the
// same worker before it moves on.
type Queue struct {
	shards    []chan *jobs.ReplyJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	backoff   time.Duration
	log       zerolog.Logger
	closed    bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithBackoff sets the linear retry step; retry n waits n*step.
func WithBackoff(step time.Duration) Option {
	return func(q *Queue) { q.backoff = step }
}

// WithLogger sets the queue logger.
func WithLogger(log zerolog.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// NewQueue creates a queue with workers shards, each buffering up to
// bufferSize jobs.
func NewQueue(workers, bufferSize int, store jobs.JobStore, opts ...Option) *Queue {
	if workers <= 0 {
		workers = 1
	}
	q := &Queue{
		shards:    make([]chan *jobs.ReplyJob, workers),
		closeChan: make(chan struct{}),
		store:     store,
		backoff:   time.Second,
		log:       zerolog.Nop(),
	}
	for i := range q.shards {
		q.shards[i] = make(chan *jobs.ReplyJob, bufferSize)
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) shardFor(recipient string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(recipient))
	return int(h.Sum32() % uint32(len(q.shards)))
}

// PublishReply implements the Publisher interface. It never blocks: a full
// shard drops the job and returns jobs.ErrQueueFull.
func (q *Queue) PublishReply(ctx context.Context, job *jobs.ReplyJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}

	// Generate job ID if not provided
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries < 0 {
		job.MaxRetries = 0
	}

	// Saved before the send: once buffered, the job belongs to its worker.
	q.save(ctx, job)

	select {
	case q.shards[q.shardFor(job.Recipient)] <- job:
		return nil
	default:
		job.Status = jobs.JobStatusDropped
		q.save(ctx, job)
		return fmt.Errorf("PublishReply %s: %w", job.Recipient, jobs.ErrQueueFull)
	}
}

// Start implements the Consumer interface. One worker runs per shard.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return jobs.ErrQueueClosed
	}
	q.mu.RUnlock()

	for _, shard := range q.shards {
		q.wg.Add(1)
		go q.worker(ctx, shard, handler)
	}

	return nil
}

// worker processes jobs from one shard.
func (q *Queue) worker(ctx context.Context, shard <-chan *jobs.ReplyJob, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			q.drain(ctx, shard, handler)
			return
		case job := <-shard:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// drain delivers what is still buffered when the queue stops.
func (q *Queue) drain(ctx context.Context, shard <-chan *jobs.ReplyJob, handler jobs.JobHandler) {
	for {
		select {
		case job := <-shard:
			q.processJob(ctx, job, handler)
		default:
			return
		}
	}
}

// processJob executes a single job, retrying in place with linear backoff.
func (q *Queue) processJob(ctx context.Context, job *jobs.ReplyJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	q.save(ctx, job)

	for {
		err := handler(ctx, job)
		if err == nil {
			job.Status = jobs.JobStatusCompleted
			job.Error = ""
			break
		}

		job.Error = err.Error()
		if job.RetryCount >= job.MaxRetries {
			job.Status = jobs.JobStatusFailed
			q.log.Error().Err(err).
				Str("job_id", job.JobID).
				Str("recipient", job.Recipient).
				Int("retries", job.RetryCount).
				Msg("Reply delivery failed")
			break
		}

		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		q.save(ctx, job)

		select {
		case <-time.After(time.Duration(job.RetryCount) * q.backoff):
		case <-ctx.Done():
			job.Status = jobs.JobStatusFailed
			job.Error = ctx.Err().Error()
			completed := time.Now()
			job.CompletedAt = &completed
			q.save(context.WithoutCancel(ctx), job)
			return
		}
	}

	completed := time.Now()
	job.CompletedAt = &completed
	q.save(ctx, job)
}

func (q *Queue) save(ctx context.Context, job *jobs.ReplyJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to save job status")
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
