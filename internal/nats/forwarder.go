package nats

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/study-collab/internal/events"
	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/pkg/logger"
	"github.com/capitalize-ai/study-collab/pkg/metrics"
)

const publishTimeout = 5 * time.Second

// EventPublisher persists a single event.
type EventPublisher interface {
	PublishEvent(ctx context.Context, evt model.Event) (uint64, error)
}

// Forwarder copies every bus event to JetStream. Publish failures are
// logged and counted; they never reach the operation that raised the event.
type Forwarder struct {
	bus       *events.Bus
	publisher EventPublisher
	logger    *logger.Logger
}

// NewForwarder creates a forwarder from bus to publisher.
func NewForwarder(bus *events.Bus, publisher EventPublisher, log *logger.Logger) *Forwarder {
	return &Forwarder{bus: bus, publisher: publisher, logger: log}
}

// Run forwards events until ctx is cancelled or the bus closes. Events
// still buffered at cancellation are flushed before it returns.
func (f *Forwarder) Run(ctx context.Context) {
	sub := f.bus.Connect("jetstream", "")
	defer f.bus.Disconnect(sub)

	f.logger.Info("event forwarder started", zap.String("subscription_id", sub.ID))
	for {
		select {
		case <-ctx.Done():
			n := f.drain(ctx, sub)
			f.logger.Info("event forwarder stopped", zap.Int("flushed", n))
			return
		case evt, ok := <-sub.C:
			if !ok {
				f.logger.Info("event bus closed, forwarder exiting")
				return
			}
			f.forward(ctx, evt)
		}
	}
}

// drain forwards the events already buffered on sub without waiting for more.
func (f *Forwarder) drain(ctx context.Context, sub *events.Subscription) int {
	n := 0
	for {
		select {
		case evt, ok := <-sub.C:
			if !ok {
				return n
			}
			f.forward(ctx, evt)
			n++
		default:
			return n
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, evt model.Event) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	seq, err := f.publisher.PublishEvent(pubCtx, evt)
	if err != nil {
		metrics.NATSForwardFailures.WithLabelValues(string(evt.Type)).Inc()
		f.logger.Warn("failed to forward event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.Error(err),
		)
		return
	}
	f.logger.Debug("event forwarded",
		zap.String("event_id", evt.ID),
		zap.Uint64("sequence", seq),
	)
}
