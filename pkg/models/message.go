package models

import "time"

// InboundEvent is one message received from a contact.
type InboundEvent struct {
	ID          string    `json:"id"`
	ContactID   string    `json:"contact_id"   validate:"required"`
	Text        string    `json:"text"`
	DisplayName string    `json:"display_name,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

// MessageKind tags the variant carried by an OutboundMessage.
type MessageKind string

const (
	MessageKindText        MessageKind = "text"
	MessageKindMedia       MessageKind = "media"
	MessageKindInteractive MessageKind = "interactive"
)

// MediaType is the attachment kind of a media message.
type MediaType string

const (
	MediaTypeImage    MediaType = "image"
	MediaTypeVideo    MediaType = "video"
	MediaTypeDocument MediaType = "document"
)

// Media is a single attachment; the message text becomes its caption.
type Media struct {
	Type     MediaType `json:"type"`
	URL      string    `json:"url"`
	Filename string    `json:"filename,omitempty"`
}

// Choice is one selectable button of an interactive message.
type Choice struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// OutboundMessage is one send to the channel.
type OutboundMessage struct {
	Kind    MessageKind `json:"kind"`
	Text    string      `json:"text"`
	Media   *Media      `json:"media,omitempty"`
	Choices []Choice    `json:"choices,omitempty"`
}

// TextMessage builds a plain text send.
func TextMessage(text string) OutboundMessage {
	return OutboundMessage{Kind: MessageKindText, Text: text}
}

// ConversationStatus is the externally visible state of a conversation.
type ConversationStatus string

const (
	ConversationStatusActive       ConversationStatus = "active"
	ConversationStatusWaitingHuman ConversationStatus = "waiting_human"
	ConversationStatusClosed       ConversationStatus = "closed"
)
