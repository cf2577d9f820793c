package domain

import "strings"

// Channel identifies the transport a message arrived on.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// MessageKind is the payload type of an inbound message.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindVoice MessageKind = "voice"
)

// MediaRef is an opaque handle to media held by a transport.
type MediaRef struct {
	Channel  Channel
	ID       string
	MIMEType string
}

// InboundMessage is the transport-neutral form of a user message.
type InboundMessage struct {
	Channel     Channel
	SenderID    string
	Kind        MessageKind
	Text        string
	Media       *MediaRef
	MessageID   string
	DisplayName string
	Handle      string
}

// SenderKey returns the canonical user key of the sender.
func (m InboundMessage) SenderKey() string {
	return UserKey(m.Channel, m.SenderID)
}

// UserKey builds a canonical user key such as "telegram:12345".
func UserKey(ch Channel, rawID string) string {
	return string(ch) + ":" + rawID
}

// SplitUserKey is the inverse of UserKey.
func SplitUserKey(key string) (Channel, string, bool) {
	ch, id, ok := strings.Cut(key, ":")
	if !ok || ch == "" || id == "" {
		return "", "", false
	}
	return Channel(ch), id, true
}
