package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/study-collab/internal/apperr"
	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/pkg/logger"
	"github.com/capitalize-ai/study-collab/pkg/metrics"
)

// ReadTracker maintains read-by sets and per-user unread counts.
type ReadTracker struct {
	conversations *ConversationService
	publisher     Publisher
	now           func() time.Time
	logger        *logger.Logger
}

// NewReadTracker creates a read tracker over the given store.
func NewReadTracker(conversations *ConversationService, publisher Publisher, log *logger.Logger, opts ...Option) *ReadTracker {
	o := buildOptions(opts)
	return &ReadTracker{
		conversations: conversations,
		publisher:     orNop(publisher),
		now:           o.now,
		logger:        orNopLogger(log),
	}
}

// MarkRead adds userID to the read-by set of every message and resets the
// user's unread count. It returns how many messages were newly marked.
// Calling it again without new messages is a no-op.
func (t *ReadTracker) MarkRead(ctx context.Context, conversationID, userID string) (int, error) {
	_, span := tracer.Start(ctx, "ReadTracker.MarkRead")
	defer span.End()
	span.SetAttributes(attribute.String("conversation_id", conversationID))

	conv, err := t.conversations.lookup(conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.isParticipant(userID) {
		return 0, apperr.NotAParticipant(userID, conversationID)
	}

	conv.mu.Lock()
	marked := 0
	for i := range conv.messages {
		if !conv.messages[i].IsReadBy(userID) {
			conv.messages[i].ReadBy = append(conv.messages[i].ReadBy, userID)
			marked++
		}
	}
	changed := marked > 0 || conv.unread[userID] != 0
	conv.unread[userID] = 0
	if changed {
		t.publisher.Publish(model.Event{
			ID:             uuid.Must(uuid.NewV7()).String(),
			Type:           model.EventConversationRead,
			ConversationID: conversationID,
			UserID:         userID,
			Recipients:     append([]string(nil), conv.participants...),
			CreatedAt:      t.now(),
		})
	}
	conv.mu.Unlock()

	if !changed {
		metrics.MarkReadTotal.WithLabelValues("noop").Inc()
		return 0, nil
	}
	metrics.MarkReadTotal.WithLabelValues("marked").Inc()
	t.logger.ForConversation(conversationID).Debug("conversation read",
		zap.String("user_id", userID),
		zap.Int("messages", marked),
	)
	return marked, nil
}

// UnreadCount computes, from the read-by sets, how many messages from other
// senders userID has not read.
func (t *ReadTracker) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	conv, err := t.conversations.lookup(conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.isParticipant(userID) {
		return 0, apperr.NotAParticipant(userID, conversationID)
	}

	conv.mu.RLock()
	defer conv.mu.RUnlock()
	return countUnread(conv.messages, userID), nil
}

// CachedUnread returns the counter maintained by Send and MarkRead. It must
// always equal UnreadCount.
func (t *ReadTracker) CachedUnread(ctx context.Context, conversationID, userID string) (int, error) {
	conv, err := t.conversations.lookup(conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.isParticipant(userID) {
		return 0, apperr.NotAParticipant(userID, conversationID)
	}

	conv.mu.RLock()
	defer conv.mu.RUnlock()
	return conv.unread[userID], nil
}
