// Package model defines data structures for the conversation sync engine.
package model

import (
	"time"
)

// ConversationStatus represents the support lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusQueued     ConversationStatus = "queued"
	StatusInProgress ConversationStatus = "in_progress"
	StatusResolved   ConversationStatus = "resolved"
)

// IsValid reports whether the status is one of the known lifecycle states.
func (s ConversationStatus) IsValid() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// ConversationSummary is a conversation as it appears in the agent's list view.
type ConversationSummary struct {
	ID                 string             `json:"id"`
	ContactID          string             `json:"contact_id"`
	ContactName        string             `json:"contact_name"`
	ContactPhone       string             `json:"contact_phone"`
	Status             ConversationStatus `json:"status"`
	AssignedAgentName  string             `json:"assigned_agent_name,omitempty"`
	LastMessagePreview string             `json:"last_message_preview"`
	LastMessageAt      time.Time          `json:"last_message_at"`
	UnreadCount        int                `json:"unread_count"`
	SessionActive      bool               `json:"session_active"`
	SessionExpiresAt   *time.Time         `json:"session_expires_at,omitempty"`
	TagID              string             `json:"tag_id,omitempty"`
	TagName            string             `json:"tag_name,omitempty"`
	TagColor           string             `json:"tag_color,omitempty"`
}

// ConversationDetails is the full payload returned when opening a conversation.
type ConversationDetails struct {
	Conversation ConversationSummary `json:"conversation"`
	Messages     []Message           `json:"messages"`
}

// ConversationFilter narrows the conversation list.
type ConversationFilter struct {
	Search   string             `json:"search,omitempty"`
	Status   ConversationStatus `json:"status,omitempty"`
	PageSize int                `json:"page_size,omitempty"`
}

// ListConversationsResponse is the REST response for a page of conversations.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total"`
	HasMore       bool                  `json:"has_more"`
}

// StatusChange is the payload of a conversation status transition event.
type StatusChange struct {
	ConversationID string             `json:"conversation_id"`
	Status         ConversationStatus `json:"status"`
}
