// Package model defines data structures for the collaboration core.
package model

import (
	"time"
)

// ConversationType distinguishes two-person chats from group chats.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// DefaultGroupTitle is shown for a group conversation without a title.
const DefaultGroupTitle = "Group Chat"

// Participant is a conversation member resolved against the identity registry.
type Participant struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Avatar string   `json:"avatar,omitempty"`
	Status Presence `json:"status,omitempty"`
}

// Conversation is a read-only view of a conversation as seen by one user.
// UnreadCount and, for direct conversations, Title are relative to that user.
type Conversation struct {
	ID           string           `json:"id"`
	Type         ConversationType `json:"type"`
	Title        string           `json:"title"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	CreatedBy    string           `json:"created_by"`
	Participants []Participant    `json:"participants"`
	Messages     []Message        `json:"messages"`
	UnreadCount  int              `json:"unread_count"`
	Pinned       bool             `json:"pinned,omitempty"`
	GroupID      string           `json:"group_id,omitempty"`
}

// LastActivity is the timestamp of the newest message, or CreatedAt when empty.
func (c Conversation) LastActivity() time.Time {
	if n := len(c.Messages); n > 0 {
		return c.Messages[n-1].Timestamp
	}
	return c.CreatedAt
}

// LastMessage returns the newest message, if any.
func (c Conversation) LastMessage() *Message {
	if n := len(c.Messages); n > 0 {
		m := c.Messages[n-1]
		return &m
	}
	return nil
}

// HasParticipant reports whether userID is a member.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// ConversationSummary is the listing representation of a conversation.
type ConversationSummary struct {
	ID           string           `json:"id"`
	Type         ConversationType `json:"type"`
	Title        string           `json:"title"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Participants []Participant    `json:"participants"`
	MessageCount int              `json:"message_count"`
	LastMessage  *Message         `json:"last_message,omitempty"`
	UnreadCount  int              `json:"unread_count"`
	Pinned       bool             `json:"pinned,omitempty"`
	GroupID      string           `json:"group_id,omitempty"`
}

// Summary drops the message list, keeping only the newest message.
func (c Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		Type:         c.Type,
		Title:        c.Title,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Participants: c.Participants,
		MessageCount: len(c.Messages),
		LastMessage:  c.LastMessage(),
		UnreadCount:  c.UnreadCount,
		Pinned:       c.Pinned,
		GroupID:      c.GroupID,
	}
}

// CreateDirectConversationRequest starts (or reopens) a direct conversation.
type CreateDirectConversationRequest struct {
	TargetUserID string `json:"target_user_id" validate:"required,max=128"`
}

// CreateGroupConversationRequest creates a group conversation.
type CreateGroupConversationRequest struct {
	Title          string   `json:"title" validate:"required,max=256"`
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1,dive,required,max=128"`
	GroupID        string   `json:"group_id,omitempty" validate:"omitempty,max=128"`
}

// PinConversationRequest pins or unpins a conversation.
type PinConversationRequest struct {
	Pinned bool `json:"pinned"`
}

// RenameConversationRequest changes a group conversation's title.
type RenameConversationRequest struct {
	Title string `json:"title" validate:"required,max=256"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total"`
}
