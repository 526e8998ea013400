package model

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

const (
	EventMessageAppended     EventType = "message.appended"
	EventPresenceChanged     EventType = "presence.changed"
	EventConversationCreated EventType = "conversation.created"
	EventConversationRead    EventType = "conversation.read"
)

// Event is emitted by the core after a successful mutation. Recipients
// lists the users it concerns; an empty list means everyone.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Message        *Message  `json:"message,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	Status         Presence  `json:"status,omitempty"`
	Recipients     []string  `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConcernsUser reports whether the event should reach userID.
func (e Event) ConcernsUser(userID string) bool {
	if len(e.Recipients) == 0 {
		return true
	}
	for _, r := range e.Recipients {
		if r == userID {
			return true
		}
	}
	return false
}

// HeartbeatEvent keeps an event stream alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
