package domain

import (
	"strings"
	"time"
)

// MessageType is the provider's msg_type discriminator.
type MessageType int

const (
	MessageTypeText     MessageType = 0
	MessageTypeRichText MessageType = 8
)

// EntryContent is the content object of an inbound entry.
type EntryContent struct {
	Text string `json:"text"`
}

// InboundEntry is a single message returned by the provider's fetch call.
type InboundEntry struct {
	MessageID  string       `json:"message_id"`
	ChatID     string       `json:"chat_id"`
	SenderID   string       `json:"sender_id"`
	SenderName string       `json:"sender_name,omitempty"`
	MsgType    MessageType  `json:"msg_type"`
	Content    EntryContent `json:"content"`
	CreateTime int64        `json:"create_time,omitempty"`
	// Position is the provider cursor for this entry. Nil when the provider
	// did not report one.
	Position *int64 `json:"position,omitempty"`
}

// Valid reports whether the entry carries the fields needed for dispatch.
func (e InboundEntry) Valid() bool {
	return strings.TrimSpace(e.ChatID) != ""
}

// ReplyPayload is one reply chunk produced by the host for delivery.
type ReplyPayload struct {
	Text      string   `json:"text,omitempty"`
	MediaURL  string   `json:"media_url,omitempty"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

// MediaList returns the ordered media URLs of the payload. MediaURLs wins
// over the single MediaURL when both are set.
func (p ReplyPayload) MediaList() []string {
	if len(p.MediaURLs) > 0 {
		return p.MediaURLs
	}
	if p.MediaURL != "" {
		return []string{p.MediaURL}
	}
	return nil
}

// SendResult is the provider's answer to a successful send.
type SendResult struct {
	MessageID string `json:"message_id"`
}

// MsgContext is the host-agnostic record handed to the dispatch boundary.
type MsgContext struct {
	Body               string `json:"body"`
	RawBody            string `json:"raw_body"`
	From               string `json:"from"`
	To                 string `json:"to"`
	SenderID           string `json:"sender_id"`
	SenderName         string `json:"sender_name"`
	ChatType           string `json:"chat_type"`
	Provider           string `json:"provider"`
	Surface            string `json:"surface"`
	Timestamp          int64  `json:"timestamp"`
	MessageSid         string `json:"message_sid"`
	AccountID          string `json:"account_id"`
	OriginatingChannel string `json:"originating_channel"`
	OriginatingTo      string `json:"originating_to"`
	SessionKey         string `json:"session_key,omitempty"`
}

// ChatTypeDirect is the only chat type the provider delivers today.
const ChatTypeDirect = "direct"

// DefaultSenderName is used when an entry has no sender name.
const DefaultSenderName = "User"

// NewMsgContext normalizes an entry into a MsgContext. now is used when the
// entry has no create time.
func NewMsgContext(entry InboundEntry, accountID string, now time.Time) MsgContext {
	ts := entry.CreateTime
	if ts == 0 {
		ts = now.UnixMilli()
	}
	name := entry.SenderName
	if name == "" {
		name = DefaultSenderName
	}
	return MsgContext{
		Body:               entry.Content.Text,
		RawBody:            entry.Content.Text,
		From:               entry.ChatID,
		To:                 entry.ChatID,
		SenderID:           entry.SenderID,
		SenderName:         name,
		ChatType:           ChatTypeDirect,
		Provider:           ChannelID,
		Surface:            ChannelID,
		Timestamp:          ts,
		MessageSid:         entry.MessageID,
		AccountID:          accountID,
		OriginatingChannel: ChannelID,
		OriginatingTo:      entry.ChatID,
	}
}
