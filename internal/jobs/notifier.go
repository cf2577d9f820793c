package jobs

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier sends a reply to a user without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, recipient, text string)
}

// Outbox is a Notifier that publishes ReplyJobs.
type Outbox struct {
	pub        Publisher
	maxRetries int
	log        zerolog.Logger
	onDrop     func(recipient string)
}

// NewOutbox creates an Outbox. onDrop, if not nil, is called for every job
// the queue refuses.
func NewOutbox(pub Publisher, maxRetries int, log zerolog.Logger, onDrop func(recipient string)) *Outbox {
	return &Outbox{pub: pub, maxRetries: maxRetries, log: log, onDrop: onDrop}
}

// Notify implements Notifier. Failures are logged, never returned.
func (o *Outbox) Notify(ctx context.Context, recipient, text string) {
	if recipient == "" || text == "" {
		return
	}
	job := &ReplyJob{Recipient: recipient, Text: text, MaxRetries: o.maxRetries}
	if err := o.pub.PublishReply(ctx, job); err != nil {
		o.log.Error().Err(err).Str("recipient", recipient).Msg("Dropped reply")
		if o.onDrop != nil {
			o.onDrop(recipient)
		}
	}
}

var _ Notifier = (*Outbox)(nil)
