package events

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/pkg/logger"
	"github.com/capitalize-ai/study-collab/pkg/metrics"
)

func receive(t *testing.T, sub *Subscription) model.Event {
	t.Helper()
	select {
	case evt, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return model.Event{}
}

func TestBus_DeliversToInterestedSubscribers(t *testing.T) {
	req := require.New(t)
	bus := NewBus(4, logger.NewNop())
	alice := bus.Connect("sse", "alice")
	carol := bus.Connect("sse", "carol")
	all := bus.Connect("nats", "")

	bus.Publish(model.Event{ID: "e1", Type: model.EventMessageAppended, Recipients: []string{"alice", "bob"}})

	req.Equal("e1", receive(t, alice).ID)
	req.Equal("e1", receive(t, all).ID)
	select {
	case evt := <-carol.C:
		t.Fatalf("carol should not receive %v", evt)
	default:
	}
}

func TestBus_BroadcastWithoutRecipients(t *testing.T) {
	bus := NewBus(1, logger.NewNop())
	sub := bus.Connect("sse", "carol")

	bus.Publish(model.Event{ID: "p1", Type: model.EventPresenceChanged, UserID: "alice"})

	require.Equal(t, "p1", receive(t, sub).ID)
}

func TestBus_PublishNeverBlocksOnFullBuffer(t *testing.T) {
	bus := NewBus(1, logger.NewNop())
	sub := bus.Connect("slow", "")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(model.Event{ID: "x", Type: model.EventMessageAppended})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	require.Len(t, sub.C, 1)
}

func TestBus_DisconnectClosesChannelOnce(t *testing.T) {
	req := require.New(t)
	bus := NewBus(1, logger.NewNop())
	sub := bus.Connect("sse", "alice")
	req.Equal(1, bus.Subscribers())

	bus.Disconnect(sub)
	bus.Disconnect(sub)

	_, ok := <-sub.C
	req.False(ok)
	req.Equal(0, bus.Subscribers())

	// publishing after disconnect must not panic
	bus.Publish(model.Event{ID: "late"})
}

func TestBus_CloseDisconnectsEveryone(t *testing.T) {
	bus := NewBus(1, logger.NewNop())
	a := bus.Connect("a", "")
	b := bus.Connect("b", "")

	bus.Close()
	bus.Publish(model.Event{ID: "ignored"})

	_, okA := <-a.C
	_, okB := <-b.C
	require.False(t, okA)
	require.False(t, okB)

	late := bus.Connect("late", "")
	_, ok := <-late.C
	require.False(t, ok)
}

func TestBus_PublishAfterCloseIsCountedAndLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	bus := NewBus(4, &logger.Logger{Logger: zap.New(core)})
	bus.Close()

	dropped := metrics.EventsDropped.WithLabelValues(closedLabel)
	before := testutil.ToFloat64(dropped)

	bus.Publish(model.Event{ID: "late-1", Type: model.EventMessageAppended, ConversationID: "c1"})

	require.Equal(t, before+1, testutil.ToFloat64(dropped))
	entries := logs.FilterMessage("event published after bus close, dropped").All()
	require.Len(t, entries, 1)
	require.Equal(t, "late-1", entries[0].ContextMap()["event_id"])
}
