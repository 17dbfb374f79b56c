package model

import (
	"time"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderClient SenderType = "client"
	SenderAgent  SenderType = "agent"
	SenderBot    SenderType = "bot"
)

// Message is a single chat entry within a conversation.
//
// Server-assigned IDs are stable and unique within a conversation. Messages
// created by an optimistic local send carry a temporary "local-" prefixed ID
// and Pending=true until the server echo replaces them.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Content        string     `json:"content"`
	Sender         SenderType `json:"sender"`
	AttachmentURL  string     `json:"attachment_url,omitempty"`
	SentAt         time.Time  `json:"sent_at"`
	Delivered      bool       `json:"delivered,omitempty"`
	Visualized     bool       `json:"visualized,omitempty"`

	// CorrelationID is a client-generated token carried on optimistic sends
	// so the server echo can be matched deterministically.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Pending marks a local optimistic entry awaiting server confirmation.
	Pending bool `json:"pending,omitempty"`

	// Failed marks a pending entry whose send was rejected. The entry is
	// retained so the UI can surface the failure.
	Failed bool `json:"failed,omitempty"`
}

// IsLocal reports whether the message is an unconfirmed optimistic entry.
func (m *Message) IsLocal() bool {
	return m.Pending || m.Failed
}

// DisplayTimestamp formats the send instant for the agent console.
func (m *Message) DisplayTimestamp() string {
	return m.SentAt.Local().Format("15:04")
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	Content       string `json:"content"`
	AttachmentURL string `json:"attachment_url,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ListMessagesResponse is the REST response for a page of messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}
