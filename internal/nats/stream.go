package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/study-collab/internal/model"
)

const (
	// StreamName is the name of the collaboration event stream.
	StreamName = "COLLABORATION"

	// SubjectPrefix is the prefix for all collaboration subjects.
	SubjectPrefix = "collab"
)

// DefaultStreamMaxBytes caps the collaboration stream at 10GB.
const DefaultStreamMaxBytes int64 = 10 * 1024 * 1024 * 1024

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	js        jetstream.JetStream
	maxBytes  int64
	fetchWait time.Duration
}

// StreamOption configures a StreamManager.
type StreamOption func(*StreamManager)

// WithMaxBytes sets the stream size limit used when the stream is created.
func WithMaxBytes(n int64) StreamOption {
	return func(m *StreamManager) {
		if n > 0 {
			m.maxBytes = n
		}
	}
}

// WithFetchWait bounds how long Replay waits for a batch to fill.
func WithFetchWait(d time.Duration) StreamOption {
	return func(m *StreamManager) {
		if d > 0 {
			m.fetchWait = d
		}
	}
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client, opts ...StreamOption) *StreamManager {
	m := &StreamManager{
		js:        client.JetStream(),
		maxBytes:  DefaultStreamMaxBytes,
		fetchWait: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureStream creates the collaboration stream if it does not exist.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	if _, err := m.js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := m.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    m.maxBytes,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Study collaboration domain events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// EventSubject returns the subject an event is published on. Conversation
// events go under collab.conv.<id>, presence under collab.presence.<user>.
func EventSubject(evt model.Event) string {
	if evt.ConversationID != "" {
		return fmt.Sprintf("%s.conv.%s.%s", SubjectPrefix, token(evt.ConversationID), evt.Type)
	}
	return fmt.Sprintf("%s.presence.%s.%s", SubjectPrefix, token(evt.UserID), evt.Type)
}

// ConversationFilter returns the filter subject for all events of a conversation.
func ConversationFilter(conversationID string) string {
	return fmt.Sprintf("%s.conv.%s.>", SubjectPrefix, token(conversationID))
}

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_")

// token makes an id safe to use as a single subject token.
func token(id string) string {
	if id == "" {
		return "_"
	}
	return tokenReplacer.Replace(id)
}

// PublishEvent publishes an event to JetStream. The event id is used as the
// message id so redeliveries are deduplicated by the server.
func (m *StreamManager) PublishEvent(ctx context.Context, evt model.Event) (uint64, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.js.Publish(ctx, EventSubject(evt), data, jetstream.WithMsgID(evt.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}
	return ack.Sequence, nil
}

// Replay reads back up to limit events of a conversation with a stream
// sequence above afterSequence. It returns the stream sequence of the last
// event read, or afterSequence when nothing newer exists, so the result can
// be passed back as the next cursor. A short page is returned once the
// fetch wait expires.
func (m *StreamManager) Replay(ctx context.Context, conversationID string, afterSequence uint64, limit int) ([]model.Event, uint64, error) {
	cfg := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ConversationFilter(conversationID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if afterSequence > 0 {
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = afterSequence + 1
	}

	consumer, err := m.js.OrderedConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(m.fetchWait))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch events: %w", err)
	}

	var out []model.Event
	last := afterSequence
	for msg := range batch.Messages() {
		var evt model.Event
		if err := json.Unmarshal(msg.Data(), &evt); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			last = meta.Sequence.Stream
		}
		out = append(out, evt)
	}
	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, nats.ErrTimeout) {
		return nil, 0, fmt.Errorf("batch error: %w", err)
	}
	return out, last, nil
}
