package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	SendFunc func(ctx context.Context, rawID, text string) error
}

func (m *mockSender) Send(ctx context.Context, rawID, text string) error {
	return m.SendFunc(ctx, rawID, text)
}

type mockFetcher struct {
	FetchMediaFunc func(ctx context.Context, ref domain.MediaRef) ([]byte, string, error)
}

func (m *mockFetcher) FetchMedia(ctx context.Context, ref domain.MediaRef) ([]byte, string, error) {
	return m.FetchMediaFunc(ctx, ref)
}

func TestRegistrySendRoutesByUserKeyPrefix(t *testing.T) {
	var tgIDs, waIDs []string
	r := NewRegistry()
	r.Register(domain.ChannelTelegram, &mockSender{SendFunc: func(_ context.Context, rawID, _ string) error {
		tgIDs = append(tgIDs, rawID)
		return nil
	}}, nil)
	r.Register(domain.ChannelWhatsApp, &mockSender{SendFunc: func(_ context.Context, rawID, _ string) error {
		waIDs = append(waIDs, rawID)
		return nil
	}}, nil)

	require.NoError(t, r.Send(context.Background(), "telegram:42", "hola"))
	require.NoError(t, r.Send(context.Background(), "whatsapp:51999888777", "hola"))

	assert.Equal(t, []string{"42"}, tgIDs)
	assert.Equal(t, []string{"51999888777"}, waIDs)
	assert.ElementsMatch(t, []domain.Channel{domain.ChannelTelegram, domain.ChannelWhatsApp}, r.Channels())
}

func TestRegistrySendErrors(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name    string
		userKey string
		noChan  bool
	}{
		{name: "malformed key", userKey: "nocolon"},
		{name: "empty id", userKey: "telegram:"},
		{name: "unregistered channel", userKey: "email:ana@example.com", noChan: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Send(context.Background(), tt.userKey, "x")
			require.Error(t, err)
			assert.Equal(t, tt.noChan, errors.Is(err, ErrNoChannel))
		})
	}
}

func TestRegistryFetchMedia(t *testing.T) {
	r := NewRegistry()
	r.Register(domain.ChannelTelegram, nil, &mockFetcher{FetchMediaFunc: func(_ context.Context, ref domain.MediaRef) ([]byte, string, error) {
		return []byte(ref.ID), "image/jpeg", nil
	}})

	data, mimeType, err := r.FetchMedia(context.Background(), domain.MediaRef{Channel: domain.ChannelTelegram, ID: "file-1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("file-1"), data)
	assert.Equal(t, "image/jpeg", mimeType)

	_, _, err = r.FetchMedia(context.Background(), domain.MediaRef{Channel: domain.ChannelWhatsApp, ID: "m"})
	assert.ErrorIs(t, err, ErrNoChannel)

	// A fetch-only registration does not make the channel sendable.
	assert.Empty(t, r.Channels())
}

func TestRegistryDeliver(t *testing.T) {
	sendErr := errors.New("blocked by user")
	var fail bool
	r := NewRegistry()
	r.Register(domain.ChannelTelegram, &mockSender{SendFunc: func(context.Context, string, string) error {
		if fail {
			return sendErr
		}
		return nil
	}}, nil)

	job := &jobs.ReplyJob{Recipient: "telegram:7", Text: "ok"}
	require.NoError(t, r.Deliver(context.Background(), job))

	fail = true
	assert.ErrorIs(t, r.Deliver(context.Background(), job), sendErr)
}

func TestMessageHandlerFunc(t *testing.T) {
	var got domain.InboundMessage
	var h MessageHandler = MessageHandlerFunc(func(_ context.Context, msg domain.InboundMessage) {
		got = msg
	})

	h.HandleMessage(context.Background(), domain.InboundMessage{Channel: domain.ChannelTelegram, Text: "hola"})
	assert.Equal(t, "hola", got.Text)
}
