package email

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/expense-bot/internal/assistant"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHandler struct {
	HandleBankEmailFunc func(ctx context.Context, email assistant.BankEmail) (assistant.EmailStatus, error)
}

func (m *mockHandler) HandleBankEmail(ctx context.Context, email assistant.BankEmail) (assistant.EmailStatus, error) {
	return m.HandleBankEmailFunc(ctx, email)
}

func sign(key, timestamp, token string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp + token))
	return hex.EncodeToString(mac.Sum(nil))
}

func mailgunForm() url.Values {
	return url.Values{
		"sender":     {"servicioalcliente@netinterbank.com.pe"},
		"from":       {"Interbank <servicioalcliente@netinterbank.com.pe>"},
		"subject":    {"Consumo con tu Tarjeta de Crédito"},
		"body-plain": {"Monto: S/ 45.90 Comercio: TOTTUS"},
		"recipient":  {"gastos+42@expensebot.app"},
		"token":      {"tok-1"},
		"Message-Id": {"<abc@mail.interbank.pe>"},
	}
}

func TestWebhookPassesParsedEmail(t *testing.T) {
	var got assistant.BankEmail
	h := NewWebhook(&mockHandler{HandleBankEmailFunc: func(_ context.Context, e assistant.BankEmail) (assistant.EmailStatus, error) {
		got = e
		return assistant.EmailSaved, nil
	}}, "", zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/email", strings.NewReader(mailgunForm().Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "saved", body["status"])

	assert.Equal(t, assistant.BankEmail{
		Sender:    "servicioalcliente@netinterbank.com.pe",
		From:      "Interbank <servicioalcliente@netinterbank.com.pe>",
		Subject:   "Consumo con tu Tarjeta de Crédito",
		Body:      "Monto: S/ 45.90 Comercio: TOTTUS",
		Recipient: "gastos+42@expensebot.app",
		Token:     "tok-1",
		MessageID: "<abc@mail.interbank.pe>",
	}, got)
}

func TestWebhookMultipart(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range mailgunForm() {
		require.NoError(t, mw.WriteField(k, v[0]))
	}
	require.NoError(t, mw.Close())

	var subject string
	h := NewWebhook(&mockHandler{HandleBankEmailFunc: func(_ context.Context, e assistant.BankEmail) (assistant.EmailStatus, error) {
		subject = e.Subject
		return assistant.EmailSkipped, nil
	}}, "", zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/email", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Consumo con tu Tarjeta de Crédito", subject)
	assert.Contains(t, rec.Body.String(), `"skipped"`)
}

func TestWebhookErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		err    error
		want   int
	}{
		{name: "wrong method", method: http.MethodGet, want: http.StatusMethodNotAllowed},
		{name: "handler failure", method: http.MethodPost, err: errors.New("db down"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewWebhook(&mockHandler{HandleBankEmailFunc: func(context.Context, assistant.BankEmail) (assistant.EmailStatus, error) {
				return assistant.EmailFailed, tt.err
			}}, "", zerolog.Nop())

			req := httptest.NewRequest(tt.method, "/webhooks/email", strings.NewReader(mailgunForm().Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.NotContains(t, rec.Body.String(), "db down")
		})
	}
}

func TestWebhookSignature(t *testing.T) {
	const key = "key-secret"
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	ts := strconv.FormatInt(now.Unix(), 10)

	calls := 0
	h := NewWebhook(&mockHandler{HandleBankEmailFunc: func(context.Context, assistant.BankEmail) (assistant.EmailStatus, error) {
		calls++
		return assistant.EmailSaved, nil
	}}, key, zerolog.Nop())
	h.now = func() time.Time { return now }

	post := func(signature string) int {
		form := mailgunForm()
		form.Set("timestamp", ts)
		form.Set("signature", signature)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/email", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNotAcceptable, post("deadbeef"))
	assert.Equal(t, 0, calls)
	assert.Equal(t, http.StatusOK, post(sign(key, ts, "tok-1")))
	assert.Equal(t, 1, calls)
}

func TestVerify(t *testing.T) {
	const key = "key-secret"
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)

	tests := []struct {
		name      string
		timestamp string
		signature string
		now       time.Time
		wantErr   bool
	}{
		{name: "valid", timestamp: ts, signature: sign(key, ts, "tok"), now: now},
		{name: "wrong key", timestamp: ts, signature: sign("other", ts, "tok"), now: now, wantErr: true},
		{name: "stale", timestamp: ts, signature: sign(key, ts, "tok"), now: now.Add(time.Hour), wantErr: true},
		{name: "not hex", timestamp: ts, signature: "zz", now: now, wantErr: true},
		{name: "missing timestamp", signature: sign(key, "", "tok"), now: now, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(key, tt.timestamp, "tok", tt.signature, tt.now)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadSignature)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
