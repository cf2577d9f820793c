package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/dvloznov/expense-bot/internal/api/middleware"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/transport"
	"github.com/rs/zerolog"
)

const (
	businessAccountObject = "whatsapp_business_account"
	maxPayloadBytes       = 1 << 20
)

// Payload is the body of a webhook notification.
type Payload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				MessagingProduct string    `json:"messaging_product"`
				Contacts         []Contact `json:"contacts"`
				Messages         []Message `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Contact is the sender profile attached to a notification.
type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// Media is the media part of an image, audio or document message.
type Media struct {
	ID       string `json:"id"`
	MIMEType string `json:"mime_type"`
}

// Message is one inbound WhatsApp message.
type Message struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image    *Media `json:"image,omitempty"`
	Audio    *Media `json:"audio,omitempty"`
	Document *Media `json:"document,omitempty"`
}

// Webhook is the http.Handler for /webhooks/whatsapp.
type Webhook struct {
	verifyToken string
	appSecret   string
	handler     transport.MessageHandler
	log         zerolog.Logger

	// Async hands messages to the handler in the background so Meta gets
	// its 200 before extraction runs.
	Async bool
}

// NewWebhook creates a Webhook. An empty appSecret disables the
// X-Hub-Signature-256 check.
func NewWebhook(verifyToken, appSecret string, handler transport.MessageHandler, log zerolog.Logger) *Webhook {
	return &Webhook{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		handler:     handler,
		log:         log.With().Str("channel", string(domain.ChannelWhatsApp)).Logger(),
	}
}

func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.receive(w, r)
	default:
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// verify answers Meta's subscription handshake.
func (h *Webhook) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.verifyToken == "" || q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		h.log.Warn().Msg("Webhook verification failed")
		w.WriteHeader(http.StatusForbidden)
		return
	}
	h.log.Info().Msg("Webhook verified")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

func (h *Webhook) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	if h.appSecret != "" && !validSignature(h.appSecret, r.Header.Get("X-Hub-Signature-256"), body) {
		h.log.Warn().Msg("Rejected webhook with bad signature")
		middleware.WriteError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if p.Object != businessAccountObject {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	msgs := ToInbound(p)
	w.WriteHeader(http.StatusOK)

	if h.Async {
		ctx := context.WithoutCancel(r.Context())
		go h.dispatch(ctx, msgs)
		return
	}
	h.dispatch(r.Context(), msgs)
}

func (h *Webhook) dispatch(ctx context.Context, msgs []domain.InboundMessage) {
	for _, msg := range msgs {
		h.handler.HandleMessage(ctx, msg)
	}
}

// ToInbound flattens a payload into the messages the bot understands.
// Status updates and unsupported message types are skipped.
func ToInbound(p Payload) []domain.InboundMessage {
	var out []domain.InboundMessage
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				msg, ok := convert(m)
				if !ok {
					continue
				}
				msg.DisplayName = names[m.From]
				out = append(out, msg)
			}
		}
	}
	return out
}

func convert(m Message) (domain.InboundMessage, bool) {
	msg := domain.InboundMessage{
		Channel:   domain.ChannelWhatsApp,
		SenderID:  m.From,
		MessageID: m.ID,
	}
	media := func(md *Media) *domain.MediaRef {
		return &domain.MediaRef{Channel: domain.ChannelWhatsApp, ID: md.ID, MIMEType: md.MIMEType}
	}

	switch {
	case m.Type == "text" && m.Text != nil:
		msg.Kind = domain.KindText
		msg.Text = m.Text.Body
	case m.Type == "image" && m.Image != nil:
		msg.Kind = domain.KindImage
		msg.Media = media(m.Image)
	case m.Type == "document" && m.Document != nil && strings.HasPrefix(m.Document.MIMEType, "image/"):
		msg.Kind = domain.KindImage
		msg.Media = media(m.Document)
	case m.Type == "audio" && m.Audio != nil:
		msg.Kind = domain.KindVoice
		msg.Media = media(m.Audio)
	default:
		return domain.InboundMessage{}, false
	}
	if m.From == "" {
		return domain.InboundMessage{}, false
	}
	return msg, true
}

func validSignature(secret, header string, body []byte) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
