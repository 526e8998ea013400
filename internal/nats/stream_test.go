package nats

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/pkg/logger"
)

// newJetStream starts an in-process JetStream server and returns a stream
// manager with the collaboration stream in place.
func newJetStream(t *testing.T) *StreamManager {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	srv := natsserver.RunServer(&opts)
	t.Cleanup(srv.Shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, Config{URL: srv.ClientURL()}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(client.Close)

	m := NewStreamManager(client, WithMaxBytes(64*1024*1024), WithFetchWait(200*time.Millisecond))
	require.NoError(t, m.EnsureStream(ctx))
	return m
}

func messageEvent(id, conversationID string) model.Event {
	return model.Event{
		ID:             id,
		Type:           model.EventMessageAppended,
		ConversationID: conversationID,
		Message:        &model.Message{ID: "msg-" + id, ConversationID: conversationID, Content: "hi " + id},
		CreatedAt:      time.Now().UTC(),
	}
}

func eventIDs(evts []model.Event) []string {
	ids := make([]string, 0, len(evts))
	for _, e := range evts {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestStreamManager_ReplayFiltersByConversation(t *testing.T) {
	m := newJetStream(t)
	ctx := context.Background()

	for _, evt := range []model.Event{
		messageEvent("a1", "conv-a"),
		messageEvent("b1", "conv-b"),
		messageEvent("a2", "conv-a"),
		messageEvent("b2", "conv-b"),
		messageEvent("a3", "conv-a"),
	} {
		_, err := m.PublishEvent(ctx, evt)
		require.NoError(t, err)
	}

	evts, last, err := m.Replay(ctx, "conv-a", 0, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "a2", "a3"}, eventIDs(evts))
	require.Equal(t, uint64(5), last)
	require.Equal(t, "hi a2", evts[1].Message.Content)

	evts, _, err = m.Replay(ctx, "conv-b", 0, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"b1", "b2"}, eventIDs(evts))
}

func TestStreamManager_ReplayPagesWithCursor(t *testing.T) {
	m := newJetStream(t)
	ctx := context.Background()

	for _, evt := range []model.Event{
		messageEvent("a1", "conv-a"),
		messageEvent("b1", "conv-b"),
		messageEvent("a2", "conv-a"),
		messageEvent("a3", "conv-a"),
	} {
		_, err := m.PublishEvent(ctx, evt)
		require.NoError(t, err)
	}

	page, cursor, err := m.Replay(ctx, "conv-a", 0, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "a2"}, eventIDs(page))
	require.Equal(t, uint64(3), cursor)

	page, cursor, err = m.Replay(ctx, "conv-a", cursor, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a3"}, eventIDs(page))
	require.Equal(t, uint64(4), cursor)

	page, next, err := m.Replay(ctx, "conv-a", cursor, 2)
	require.NoError(t, err)
	require.Empty(t, page)
	require.Equal(t, cursor, next)
}

func TestStreamManager_PublishDeduplicatesByEventID(t *testing.T) {
	m := newJetStream(t)
	ctx := context.Background()

	evt := messageEvent("a1", "conv-a")
	seq, err := m.PublishEvent(ctx, evt)
	require.NoError(t, err)

	again, err := m.PublishEvent(ctx, evt)
	require.NoError(t, err)
	require.Equal(t, seq, again)

	_, err = m.PublishEvent(ctx, messageEvent("a2", "conv-a"))
	require.NoError(t, err)

	evts, _, err := m.Replay(ctx, "conv-a", 0, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "a2"}, eventIDs(evts))
}
