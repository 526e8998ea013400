// Package events provides the in-process publish/subscribe channel between
// the collaboration core and its listeners.
//
// Delivery is best effort: Publish never blocks, and a subscriber whose
// buffer is full misses the event. Listeners that need durability (the
// JetStream forwarder) must keep up or size their buffer accordingly.
package events

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/pkg/logger"
	"github.com/capitalize-ai/study-collab/pkg/metrics"
)

// closedLabel is the EventsDropped subscriber label for events published
// after Close.
const closedLabel = "closed"

// Subscription is a connected listener. C is closed on Disconnect.
type Subscription struct {
	ID     string
	Name   string
	UserID string
	C      <-chan model.Event

	ch chan model.Event
}

// Bus fans domain events out to connected subscriptions.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	buffer int
	closed bool
	logger *logger.Logger
}

// NewBus creates a bus whose subscriptions buffer up to buffer events.
func NewBus(buffer int, log *logger.Logger) *Bus {
	if buffer <= 0 {
		buffer = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Bus{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
		logger: log,
	}
}

// Connect registers a listener. A non-empty userID restricts delivery to
// events that concern that user; an empty userID receives everything.
func (b *Bus) Connect(name, userID string) *Subscription {
	ch := make(chan model.Event, b.buffer)
	sub := &Subscription{
		ID:     uuid.NewString(),
		Name:   name,
		UserID: userID,
		C:      ch,
		ch:     ch,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub.ID] = sub
	metrics.SubscribersActive.Inc()
	b.logger.Debug("subscriber connected",
		zap.String("subscriber", name),
		zap.String("user_id", userID),
		zap.Int("subscribers", len(b.subs)),
	)
	return sub
}

// Disconnect removes a listener and closes its channel. Safe to call twice.
func (b *Bus) Disconnect(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.ID]; !ok {
		return
	}
	delete(b.subs, sub.ID)
	close(sub.ch)
	metrics.SubscribersActive.Dec()
	b.logger.Debug("subscriber disconnected",
		zap.String("subscriber", sub.Name),
		zap.Int("subscribers", len(b.subs)),
	)
}

// Publish delivers evt to every interested subscription without blocking.
func (b *Bus) Publish(evt model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		metrics.EventsDropped.WithLabelValues(closedLabel).Inc()
		b.logger.Warn("event published after bus close, dropped",
			zap.String("event_type", string(evt.Type)),
			zap.String("event_id", evt.ID),
			zap.String("conversation_id", evt.ConversationID),
		)
		return
	}
	metrics.EventsPublished.WithLabelValues(string(evt.Type)).Inc()

	for _, sub := range b.subs {
		if sub.UserID != "" && !evt.ConcernsUser(sub.UserID) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			metrics.EventsDropped.WithLabelValues(sub.Name).Inc()
			b.logger.Warn("subscriber buffer full, event dropped",
				zap.String("subscriber", sub.Name),
				zap.String("event_type", string(evt.Type)),
				zap.String("event_id", evt.ID),
			)
		}
	}
}

// Subscribers returns the number of connected subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close disconnects every subscription and ignores later publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
		metrics.SubscribersActive.Dec()
	}
}
