package model

import (
	"time"
)

// ConversationRecord is the persisted form of a conversation. Unread counts
// are not stored; they are recomputed from read-by sets on restore.
type ConversationRecord struct {
	ID           string           `json:"id"`
	Type         ConversationType `json:"type"`
	Title        string           `json:"title,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	CreatedBy    string           `json:"created_by"`
	Participants []string         `json:"participants"`
	Messages     []Message        `json:"messages,omitempty"`
	Pinned       bool             `json:"pinned,omitempty"`
	GroupID      string           `json:"group_id,omitempty"`
}

// Snapshot is a point-in-time copy of the whole store. Each conversation is
// internally consistent; different conversations may be captured at
// slightly different instants.
type Snapshot struct {
	Users         []User               `json:"users"`
	Conversations []ConversationRecord `json:"conversations"`
}
