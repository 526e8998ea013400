// Package service provides the collaboration core: identity registry,
// conversation store, message router and read tracker.
//
// Every conversation is guarded by its own lock. Appends and mark-read on
// one conversation are serialized; different conversations never contend.
// The store-wide lock only protects the indexes and is never held while a
// conversation lock is taken.
package service

import (
	"time"

	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/pkg/logger"
)

// Publisher receives domain events after a successful mutation. It must not
// block; delivery failures are the publisher's concern.
type Publisher interface {
	Publish(evt model.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.Event) {}

// Option configures the services.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func orNop(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

func orNopLogger(l *logger.Logger) *logger.Logger {
	if l == nil {
		return logger.NewNop()
	}
	return l
}
