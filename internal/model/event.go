package model

// EventType represents the type of a push event.
//
// The set is closed: the transport maps server event names onto these
// constants and anything else is dropped at the edge.
type EventType string

const (
	// Server-pushed events.
	EventReceiveMessage            EventType = "ReceiveMessage"
	EventReceiveNewConversation    EventType = "ReceiveNewConversation"
	EventConversationStatusChanged EventType = "ConversationStatusChanged"

	// Internal connection lifecycle signals.
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
)

// IsValid reports whether the event type is part of the closed set.
func (t EventType) IsValid() bool {
	switch t {
	case EventReceiveMessage, EventReceiveNewConversation,
		EventConversationStatusChanged, EventConnected, EventDisconnected:
		return true
	}
	return false
}

// ServerEvents lists the event names consumed from the push transport.
func ServerEvents() []EventType {
	return []EventType{
		EventReceiveMessage,
		EventReceiveNewConversation,
		EventConversationStatusChanged,
	}
}
