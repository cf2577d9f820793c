// Package whatsapp talks to the WhatsApp Business Cloud API: a Graph API
// client for replies and media, and the webhook that receives messages.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/transport"
)

// DefaultBaseURL is the Graph API version the client speaks.
const DefaultBaseURL = "https://graph.facebook.com/v18.0"

const maxMediaBytes = 20 << 20

// Client sends messages and downloads media.
type Client struct {
	token         string
	phoneNumberID string
	baseURL       string
	http          *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another Graph API host.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a Client for the given business phone number.
func NewClient(token, phoneNumberID string, opts ...Option) *Client {
	c := &Client{
		token:         token,
		phoneNumberID: phoneNumberID,
		baseURL:       DefaultBaseURL,
		http:          &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Send implements transport.Sender. to is the recipient's phone number.
func (c *Client) Send(ctx context.Context, to, text string) error {
	msg := textMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
	}
	msg.Text.Body = text

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("Send: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+c.phoneNumberID+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("Send: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("Send: %w", err)
	}
	resp.Body.Close()
	return nil
}

type mediaInfo struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
}

// FetchMedia implements transport.MediaFetcher. It resolves the media id to
// a short-lived URL and downloads it.
func (c *Client) FetchMedia(ctx context.Context, ref domain.MediaRef) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+ref.ID, nil)
	if err != nil {
		return nil, "", fmt.Errorf("FetchMedia: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, "", fmt.Errorf("FetchMedia: metadata: %w", err)
	}
	var info mediaInfo
	err = json.NewDecoder(resp.Body).Decode(&info)
	resp.Body.Close()
	if err != nil {
		return nil, "", fmt.Errorf("FetchMedia: decode metadata: %w", err)
	}
	if info.URL == "" {
		return nil, "", fmt.Errorf("FetchMedia: media %s has no url", ref.ID)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("FetchMedia: %w", err)
	}
	resp, err = c.do(req)
	if err != nil {
		return nil, "", fmt.Errorf("FetchMedia: download: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, "", fmt.Errorf("FetchMedia: read: %w", err)
	}

	mimeType := info.MIMEType
	if mimeType == "" {
		mimeType = ref.MIMEType
	}
	return data, mimeType, nil
}

// do sends an authorized request and turns non-2xx responses into errors.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("graph api status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp, nil
}

var (
	_ transport.Sender       = (*Client)(nil)
	_ transport.MediaFetcher = (*Client)(nil)
)
