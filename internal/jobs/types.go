package jobs

import (
	"context"
	"errors"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeSendReply represents an outgoing chat message.
	JobTypeSendReply JobType = "send_reply"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
	// JobStatusDropped indicates the queue was full when the job arrived.
	JobStatusDropped JobStatus = "dropped"
)

// ErrQueueFull is returned by Publish when the recipient's shard is full.
var ErrQueueFull = errors.New("reply queue full")

// ErrJobNotFound is returned by JobStore lookups of unknown IDs.
var ErrJobNotFound = errors.New("job not found")

// ErrQueueClosed is returned by Publish after the queue was stopped.
var ErrQueueClosed = errors.New("queue is closed")

// ReplyJob is one message to deliver to a user.
type ReplyJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Recipient is the canonical user key, e.g. "telegram:12345".
	Recipient string `json:"recipient"`

	// Text is the message body.
	Text string `json:"text"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains the last send error.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ReplyJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ReplyJob) GetType() JobType {
	return JobTypeSendReply
}

// GetStatus implements the Job interface.
func (j *ReplyJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher enqueues reply jobs.
type Publisher interface {
	// PublishReply enqueues job without blocking. It returns ErrQueueFull
	// when the job cannot be buffered.
	PublishReply(ctx context.Context, job *ReplyJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler delivers one job. A returned error triggers a retry.
type JobHandler func(ctx context.Context, job *ReplyJob) error

// JobStore keeps job status for inspection.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ReplyJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ReplyJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ReplyJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Recipient filters jobs by user key.
	Recipient string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
