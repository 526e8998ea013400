package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(evt model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) ofType(t model.EventType) []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeClock returns the configured instant until it is moved.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(sec int64) *fakeClock {
	return &fakeClock{now: time.Unix(sec, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(sec int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(sec, 0).UTC()
}

func newTestCore(t *testing.T, clock *fakeClock, users ...string) (*Core, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	var opts []Option
	if clock != nil {
		opts = append(opts, WithClock(clock.Now))
	}
	core := NewCore(pub, logger.NewNop(), opts...)
	for _, id := range users {
		_, err := core.Identity.Register(context.Background(), model.User{ID: id, Name: "User " + id})
		require.NoError(t, err)
	}
	return core, pub
}

// requireUnreadConsistent checks the cached counter against the computed
// count for every participant.
func requireUnreadConsistent(t *testing.T, core *Core, conversationID string) {
	t.Helper()
	ctx := context.Background()
	conv, err := core.Conversations.Get(ctx, conversationID, "")
	require.NoError(t, err)
	for _, p := range conv.Participants {
		cached, err := core.Reads.CachedUnread(ctx, conversationID, p.ID)
		require.NoError(t, err)
		computed, err := core.Reads.UnreadCount(ctx, conversationID, p.ID)
		require.NoError(t, err)
		require.Equal(t, computed, cached, "unread mismatch for %s", p.ID)
	}
}
