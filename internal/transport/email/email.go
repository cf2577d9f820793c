// Package email receives bank notification emails forwarded by Mailgun's
// inbound routes.
package email

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/expense-bot/internal/api/middleware"
	"github.com/dvloznov/expense-bot/internal/assistant"
	"github.com/rs/zerolog"
)

const (
	maxFormBytes = 10 << 20
	// maxSignatureAge bounds replays of a captured webhook.
	maxSignatureAge = 15 * time.Minute
)

// ErrBadSignature is returned by Verify for unsigned or forged requests.
var ErrBadSignature = errors.New("invalid mailgun signature")

// BankEmailHandler processes one bank email.
type BankEmailHandler interface {
	HandleBankEmail(ctx context.Context, email assistant.BankEmail) (assistant.EmailStatus, error)
}

// Webhook is the http.Handler for POST /webhooks/email.
type Webhook struct {
	handler    BankEmailHandler
	signingKey string
	now        func() time.Time
	log        zerolog.Logger
}

// NewWebhook creates a Webhook. An empty signingKey disables signature
// verification.
func NewWebhook(handler BankEmailHandler, signingKey string, log zerolog.Logger) *Webhook {
	return &Webhook{
		handler:    handler,
		signingKey: signingKey,
		now:        time.Now,
		log:        log.With().Str("channel", "email").Logger(),
	}
}

// ServeHTTP answers every processed email with 200 and {"status": ...} so
// Mailgun does not retry; only internal failures return 500.
func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxFormBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid form")
		return
	}

	if h.signingKey != "" {
		if err := Verify(h.signingKey, r.FormValue("timestamp"), r.FormValue("token"), r.FormValue("signature"), h.now()); err != nil {
			h.log.Warn().Err(err).Msg("Rejected inbound email")
			middleware.WriteError(w, http.StatusNotAcceptable, "Invalid signature")
			return
		}
	}

	email := ParseForm(r)
	status, err := h.handler.HandleBankEmail(r.Context(), email)
	if err != nil {
		h.log.Error().Err(err).Str("message_id", email.MessageID).Msg("Failed to process bank email")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.log.Info().Str("status", string(status)).Str("message_id", email.MessageID).Msg("Bank email processed")
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// ParseForm reads Mailgun's parsed-message fields. r.ParseForm or
// r.ParseMultipartForm must have been called.
func ParseForm(r *http.Request) assistant.BankEmail {
	return assistant.BankEmail{
		Sender:    r.FormValue("sender"),
		From:      r.FormValue("from"),
		Subject:   r.FormValue("subject"),
		Body:      r.FormValue("body-plain"),
		Recipient: r.FormValue("recipient"),
		Token:     r.FormValue("token"),
		MessageID: r.FormValue("Message-Id"),
	}
}

// Verify checks a Mailgun webhook signature: hex HMAC-SHA256 of
// timestamp+token keyed with the signing key.
func Verify(signingKey, timestamp, token, signature string, now time.Time) error {
	if timestamp == "" || token == "" || signature == "" {
		return ErrBadSignature
	}
	secs, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if age := now.Sub(time.Unix(secs, 0)); age > maxSignatureAge || age < -maxSignatureAge {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(signingKey))
	mac.Write([]byte(timestamp + token))
	want := mac.Sum(nil)

	got, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(got, want) {
		return ErrBadSignature
	}
	return nil
}
