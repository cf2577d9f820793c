// Package telegram adapts the Telegram Bot API to the transport package.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/transport"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
)

const (
	// ModePolling reads updates with getUpdates.
	ModePolling = "polling"
	// ModeWebhook receives updates on WebhookHandler.
	ModeWebhook = "webhook"

	defaultFileURL = "https://api.telegram.org"
	maxMediaBytes  = 20 << 20
)

// Config configures a Bot.
type Config struct {
	Token string
	// WebhookSecret is checked against X-Telegram-Bot-Api-Secret-Token in
	// webhook mode.
	WebhookSecret string
	// ServerURL overrides the Bot API host, mostly for tests.
	ServerURL string
}

// Bot receives Telegram updates and sends replies.
type Bot struct {
	api     *bot.Bot
	handler transport.MessageHandler
	fileURL string
	http    *http.Client
	log     zerolog.Logger
}

// New creates a Bot that passes every message to handler.
func New(cfg Config, handler transport.MessageHandler, log zerolog.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}

	b := &Bot{
		handler: handler,
		fileURL: defaultFileURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     log.With().Str("channel", string(domain.ChannelTelegram)).Logger(),
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.handleUpdate),
	}
	if cfg.WebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(cfg.WebhookSecret))
	}
	if cfg.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(cfg.ServerURL), bot.WithSkipGetMe())
		b.fileURL = strings.TrimRight(cfg.ServerURL, "/")
	}

	api, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	b.api = api
	return b, nil
}

// Start polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	me, err := b.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}

	b.log.Info().Str("username", me.Username).Int64("id", me.ID).Msg("Telegram bot started")
	b.api.Start(ctx)
	return nil
}

// StartWebhook processes updates posted to WebhookHandler until ctx is done.
func (b *Bot) StartWebhook(ctx context.Context) {
	b.log.Info().Msg("Telegram bot waiting for webhook updates")
	b.api.StartWebhook(ctx)
}

// WebhookHandler accepts updates posted by Telegram.
func (b *Bot) WebhookHandler() http.Handler {
	return b.api.WebhookHandler()
}

// Send implements transport.Sender. chatID is the decimal chat id.
func (b *Bot) Send(ctx context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("Send: invalid chat id %q: %w", chatID, err)
	}
	if _, err := b.api.SendMessage(ctx, &bot.SendMessageParams{ChatID: id, Text: text}); err != nil {
		return fmt.Errorf("Send: %w", err)
	}
	return nil
}

// FetchMedia implements transport.MediaFetcher.
func (b *Bot) FetchMedia(ctx context.Context, ref domain.MediaRef) ([]byte, string, error) {
	file, err := b.api.GetFile(ctx, &bot.GetFileParams{FileID: ref.ID})
	if err != nil {
		return nil, "", fmt.Errorf("FetchMedia: get file: %w", err)
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", b.fileURL, b.api.Token(), file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("FetchMedia: %w", err)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("FetchMedia: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("FetchMedia: download: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, "", fmt.Errorf("FetchMedia: read: %w", err)
	}

	mimeType := ref.MIMEType
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

func (b *Bot) handleUpdate(ctx context.Context, api *bot.Bot, update *models.Update) {
	msg, ok := ToInbound(update)
	if !ok {
		return
	}
	if msg.Kind != domain.KindText {
		if _, err := api.SendChatAction(ctx, &bot.SendChatActionParams{
			ChatID: update.Message.Chat.ID,
			Action: models.ChatActionTyping,
		}); err != nil {
			b.log.Warn().Err(err).Msg("Failed to send chat action")
		}
	}
	b.handler.HandleMessage(ctx, msg)
}

// ToInbound converts an update into an InboundMessage. It reports false for
// updates the bot does not handle.
func ToInbound(update *models.Update) (domain.InboundMessage, bool) {
	if update == nil || update.Message == nil {
		return domain.InboundMessage{}, false
	}
	m := update.Message

	msg := domain.InboundMessage{
		Channel:   domain.ChannelTelegram,
		SenderID:  strconv.FormatInt(m.Chat.ID, 10),
		MessageID: strconv.FormatInt(update.ID, 10),
	}
	if m.From != nil {
		msg.DisplayName = strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
		msg.Handle = m.From.Username
	}

	switch {
	case len(m.Photo) > 0:
		p := largestPhoto(m.Photo)
		msg.Kind = domain.KindImage
		msg.Media = &domain.MediaRef{Channel: domain.ChannelTelegram, ID: p.FileID, MIMEType: "image/jpeg"}
	case m.Document != nil && strings.HasPrefix(m.Document.MimeType, "image/"):
		msg.Kind = domain.KindImage
		msg.Media = &domain.MediaRef{Channel: domain.ChannelTelegram, ID: m.Document.FileID, MIMEType: m.Document.MimeType}
	case m.Voice != nil:
		mimeType := m.Voice.MimeType
		if mimeType == "" {
			mimeType = "audio/ogg"
		}
		msg.Kind = domain.KindVoice
		msg.Media = &domain.MediaRef{Channel: domain.ChannelTelegram, ID: m.Voice.FileID, MIMEType: mimeType}
	case m.Text != "":
		msg.Kind = domain.KindText
		msg.Text = m.Text
	default:
		return domain.InboundMessage{}, false
	}
	return msg, true
}

func largestPhoto(sizes []models.PhotoSize) models.PhotoSize {
	best := sizes[0]
	for _, p := range sizes[1:] {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	return best
}

var (
	_ transport.Sender       = (*Bot)(nil)
	_ transport.MediaFetcher = (*Bot)(nil)
)
