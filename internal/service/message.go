package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/study-collab/internal/apperr"
	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/pkg/logger"
	"github.com/capitalize-ai/study-collab/pkg/metrics"
)

const (
	// DefaultPageSize is used by ListMessages when no limit is given.
	DefaultPageSize = 50
	// MaxPageSize caps ListMessages.
	MaxPageSize = 500
)

// MessageService appends messages to conversations.
type MessageService struct {
	conversations *ConversationService
	identity      *IdentityRegistry
	publisher     Publisher
	now           func() time.Time
	logger        *logger.Logger
}

// NewMessageService creates a message router over the given store.
func NewMessageService(conversations *ConversationService, identity *IdentityRegistry, publisher Publisher, log *logger.Logger, opts ...Option) *MessageService {
	o := buildOptions(opts)
	return &MessageService{
		conversations: conversations,
		identity:      identity,
		publisher:     orNop(publisher),
		now:           o.now,
		logger:        orNopLogger(log),
	}
}

// Send appends a message from senderID. The append, read-by seeding and
// unread increments happen in one critical section on the conversation.
func (s *MessageService) Send(ctx context.Context, conversationID, senderID, content string, attachments []model.Attachment) (model.Message, error) {
	_, span := tracer.Start(ctx, "MessageService.Send")
	defer span.End()
	span.SetAttributes(attribute.String("conversation_id", conversationID))

	conv, err := s.conversations.lookup(conversationID)
	if err != nil {
		return model.Message{}, err
	}
	if !conv.isParticipant(senderID) {
		return model.Message{}, apperr.NotAParticipant(senderID, conversationID)
	}
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return model.Message{}, apperr.EmptyMessage()
	}
	for i, a := range attachments {
		if !a.Kind.Valid() {
			return model.Message{}, apperr.InvalidArgument("attachment %d: unknown kind %q", i, a.Kind)
		}
		if a.ID == "" || strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.URL) == "" {
			return model.Message{}, apperr.InvalidArgument("attachment %d is incomplete", i)
		}
	}

	msg := model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     s.identity.displayName(senderID),
		Content:        content,
		ReadBy:         []string{senderID},
	}
	if len(attachments) > 0 {
		msg.Attachments = append([]model.Attachment(nil), attachments...)
	}

	bumped := false
	conv.mu.Lock()
	ts := s.now()
	if n := len(conv.messages); n > 0 {
		if last := conv.messages[n-1].Timestamp; !ts.After(last) {
			ts = last.Add(time.Nanosecond)
			bumped = true
		}
	}
	msg.Timestamp = ts
	conv.messages = append(conv.messages, msg)
	if ts.After(conv.updatedAt) {
		conv.updatedAt = ts
	}
	for _, p := range conv.participants {
		if p != senderID {
			conv.unread[p]++
		}
	}
	out := cloneMessage(msg)
	// Published under the conversation lock so listeners see appends in order.
	s.publisher.Publish(model.Event{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Type:           model.EventMessageAppended,
		ConversationID: conversationID,
		Message:        &out,
		UserID:         senderID,
		Recipients:     append([]string(nil), conv.participants...),
		CreatedAt:      ts,
	})
	kind := conv.kind
	conv.mu.Unlock()

	if bumped {
		metrics.TimestampBumpsTotal.Inc()
	}
	metrics.MessagesTotal.WithLabelValues(string(kind)).Inc()
	s.logger.ForConversation(conversationID).Debug("message appended",
		zap.String("message_id", msg.ID),
		zap.String("sender_id", senderID),
		zap.Int("attachments", len(attachments)),
	)
	return cloneMessage(msg), nil
}

// ListMessages returns up to limit messages newer than after, oldest first.
// A zero after starts from the beginning. hasMore reports whether messages
// remain past the returned page.
func (s *MessageService) ListMessages(ctx context.Context, conversationID, userID string, after time.Time, limit int) ([]model.Message, bool, error) {
	conv, err := s.conversations.lookup(conversationID)
	if err != nil {
		return nil, false, err
	}
	if !conv.isParticipant(userID) {
		return nil, false, apperr.NotAParticipant(userID, conversationID)
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	conv.mu.RLock()
	defer conv.mu.RUnlock()

	start := 0
	if !after.IsZero() {
		for start < len(conv.messages) && !conv.messages[start].Timestamp.After(after) {
			start++
		}
	}
	end := start + limit
	hasMore := end < len(conv.messages)
	if !hasMore {
		end = len(conv.messages)
	}
	return cloneMessages(conv.messages[start:end]), hasMore, nil
}
