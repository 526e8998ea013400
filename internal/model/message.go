package model

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/study-collab/internal/apperr"
)

// AttachmentKind is the type of resource carried by an attachment.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentDocument AttachmentKind = "document"
	AttachmentLink     AttachmentKind = "link"
)

// Valid reports whether k is a known attachment kind.
func (k AttachmentKind) Valid() bool {
	switch k {
	case AttachmentImage, AttachmentDocument, AttachmentLink:
		return true
	}
	return false
}

// Attachment is resource metadata supplied by the resource-sharing subsystem.
// The locator is never dereferenced here.
type Attachment struct {
	ID   string         `json:"id"`
	Kind AttachmentKind `json:"kind"`
	Name string         `json:"name"`
	URL  string         `json:"url"`
}

// NewAttachment validates and builds an Attachment with a fresh id.
func NewAttachment(kind AttachmentKind, name, locator string) (Attachment, error) {
	if !kind.Valid() {
		return Attachment{}, apperr.InvalidArgument("unknown attachment kind %q", kind)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Attachment{}, apperr.InvalidArgument("attachment name is required")
	}
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return Attachment{}, apperr.InvalidArgument("attachment locator is required")
	}
	if _, err := url.Parse(locator); err != nil {
		return Attachment{}, &apperr.Error{Kind: apperr.KindInvalidArgument, Message: "malformed attachment locator", Err: err}
	}
	return Attachment{
		ID:   uuid.Must(uuid.NewV7()).String(),
		Kind: kind,
		Name: name,
		URL:  locator,
	}, nil
}

// Message is an appended, immutable conversation message. Only ReadBy grows
// after append.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	SenderName     string       `json:"sender_name"`
	Content        string       `json:"content"`
	Timestamp      time.Time    `json:"timestamp"`
	ReadBy         []string     `json:"read_by"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// IsReadBy reports whether userID is in the read-by set.
func (m Message) IsReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// AttachmentRequest is attachment metadata on a send request.
type AttachmentRequest struct {
	Kind AttachmentKind `json:"kind" validate:"required,oneof=image document link"`
	Name string         `json:"name" validate:"required,max=512"`
	URL  string         `json:"url" validate:"required,max=4096"`
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	Content     string              `json:"content" validate:"max=100000"`
	Attachments []AttachmentRequest `json:"attachments,omitempty" validate:"omitempty,max=20,dive"`
}

// SendMessageResponse is the response after sending a message.
type SendMessageResponse struct {
	Message *Message `json:"message"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message   `json:"messages,omitempty"`
	Groups   [][]Message `json:"groups,omitempty"`
	HasMore  bool        `json:"has_more"`
}

// MarkReadResponse reports the caller's unread count after marking read.
type MarkReadResponse struct {
	ConversationID string `json:"conversation_id"`
	UnreadCount    int    `json:"unread_count"`
}
