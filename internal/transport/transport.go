// Package transport connects chat channels to the assistant. Each channel
// package converts its own payloads into domain.InboundMessage and sends
// replies; the Registry routes replies and media downloads by channel.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/jobs"
	"github.com/dvloznov/expense-bot/internal/metrics"
)

// ErrNoChannel is returned when no transport is registered for a channel.
var ErrNoChannel = errors.New("no transport for channel")

// MessageHandler consumes inbound messages.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg domain.InboundMessage)
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, msg domain.InboundMessage)

// HandleMessage implements MessageHandler.
func (f MessageHandlerFunc) HandleMessage(ctx context.Context, msg domain.InboundMessage) {
	f(ctx, msg)
}

// Sender delivers a text message to a channel-native user id.
type Sender interface {
	Send(ctx context.Context, rawID, text string) error
}

// MediaFetcher downloads media referenced by a domain.MediaRef.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, ref domain.MediaRef) ([]byte, string, error)
}

// Registry maps channels to their Sender and MediaFetcher.
type Registry struct {
	mu       sync.RWMutex
	senders  map[domain.Channel]Sender
	fetchers map[domain.Channel]MediaFetcher
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		senders:  make(map[domain.Channel]Sender),
		fetchers: make(map[domain.Channel]MediaFetcher),
	}
}

// Register adds a channel. fetcher may be nil for send-only channels.
func (r *Registry) Register(ch domain.Channel, sender Sender, fetcher MediaFetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sender != nil {
		r.senders[ch] = sender
	}
	if fetcher != nil {
		r.fetchers[ch] = fetcher
	}
}

// Channels returns the channels that can receive replies.
func (r *Registry) Channels() []domain.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	return out
}

// Send delivers text to the user identified by userKey.
func (r *Registry) Send(ctx context.Context, userKey, text string) error {
	ch, rawID, ok := domain.SplitUserKey(userKey)
	if !ok {
		return fmt.Errorf("Send: invalid user key %q", userKey)
	}
	r.mu.RLock()
	sender := r.senders[ch]
	r.mu.RUnlock()
	if sender == nil {
		return fmt.Errorf("Send: %s: %w", ch, ErrNoChannel)
	}
	return sender.Send(ctx, rawID, text)
}

// FetchMedia downloads ref through the transport that owns it.
func (r *Registry) FetchMedia(ctx context.Context, ref domain.MediaRef) ([]byte, string, error) {
	r.mu.RLock()
	fetcher := r.fetchers[ref.Channel]
	r.mu.RUnlock()
	if fetcher == nil {
		return nil, "", fmt.Errorf("FetchMedia: %s: %w", ref.Channel, ErrNoChannel)
	}
	return fetcher.FetchMedia(ctx, ref)
}

// Deliver is the outbox job handler. Every attempt is counted.
func (r *Registry) Deliver(ctx context.Context, job *jobs.ReplyJob) error {
	ch, _, _ := domain.SplitUserKey(job.Recipient)
	if err := r.Send(ctx, job.Recipient, job.Text); err != nil {
		metrics.Reply(string(ch), metrics.ReplyFailed)
		return err
	}
	metrics.Reply(string(ch), metrics.ReplySent)
	return nil
}

// ReplyDropped records a reply the outbox refused. It matches the
// jobs.NewOutbox drop callback.
func ReplyDropped(recipient string) {
	ch, _, _ := domain.SplitUserKey(recipient)
	metrics.Reply(string(ch), metrics.ReplyDropped)
}
