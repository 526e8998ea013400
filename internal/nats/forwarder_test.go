package nats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/study-collab/internal/events"
	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/pkg/logger"
)

type fakeStream struct {
	mu     sync.Mutex
	events []model.Event
	fail   bool
	// gate, when set, holds every publish until it is closed.
	gate chan struct{}
}

func (f *fakeStream) PublishEvent(ctx context.Context, evt model.Event) (uint64, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errors.New("nats: timeout")
	}
	f.events = append(f.events, evt)
	return uint64(len(f.events)), nil
}

func (f *fakeStream) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func startForwarder(t *testing.T, stream *fakeStream) (*events.Bus, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	bus := events.NewBus(16, logger.NewNop())
	fwd := NewForwarder(bus, stream, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fwd.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	return bus, cancel, done
}

func TestForwarder_ForwardsEveryEvent(t *testing.T) {
	stream := &fakeStream{}
	bus, cancel, done := startForwarder(t, stream)

	bus.Publish(model.Event{ID: "1", Type: model.EventMessageAppended, ConversationID: "c1", Recipients: []string{"a", "b"}})
	bus.Publish(model.Event{ID: "2", Type: model.EventPresenceChanged, UserID: "a"})

	require.Eventually(t, func() bool { return stream.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	require.Zero(t, bus.Subscribers())
}

func TestForwarder_FailureDoesNotStopLoop(t *testing.T) {
	stream := &fakeStream{fail: true}
	bus, cancel, done := startForwarder(t, stream)
	defer func() {
		cancel()
		<-done
	}()

	bus.Publish(model.Event{ID: "1", Type: model.EventConversationRead, ConversationID: "c1"})

	stream.mu.Lock()
	stream.fail = false
	stream.mu.Unlock()
	bus.Publish(model.Event{ID: "2", Type: model.EventConversationRead, ConversationID: "c1"})

	require.Eventually(t, func() bool { return stream.count() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestForwarder_ExitsWhenBusCloses(t *testing.T) {
	bus, cancel, done := startForwarder(t, &fakeStream{})
	defer cancel()

	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not exit after bus close")
	}
}

func TestEventSubject(t *testing.T) {
	require.Equal(t, "collab.conv.c-1.message.appended",
		EventSubject(model.Event{Type: model.EventMessageAppended, ConversationID: "c-1"}))
	require.Equal(t, "collab.presence.jane_doe.presence.changed",
		EventSubject(model.Event{Type: model.EventPresenceChanged, UserID: "jane.doe"}))
	require.Equal(t, "collab.conv.c-1.>", ConversationFilter("c-1"))
}

func TestForwarder_FlushesBufferedEventsOnCancel(t *testing.T) {
	stream := &fakeStream{gate: make(chan struct{})}
	bus, cancel, done := startForwarder(t, stream)

	// The first event holds the forwarder inside the publish; the rest queue up.
	for _, id := range []string{"1", "2", "3"} {
		bus.Publish(model.Event{ID: id, Type: model.EventMessageAppended, ConversationID: "c1"})
	}
	cancel()
	close(stream.gate)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not stop")
	}
	require.Equal(t, 3, stream.count())
}
