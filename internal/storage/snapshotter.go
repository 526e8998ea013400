package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/pkg/logger"
	"github.com/capitalize-ai/study-collab/pkg/metrics"
)

const finalSaveTimeout = 10 * time.Second

// Source produces a point-in-time snapshot.
type Source interface {
	Snapshot() model.Snapshot
}

// Saver persists a snapshot.
type Saver interface {
	Save(ctx context.Context, snap model.Snapshot) error
}

// Snapshotter periodically saves the core's state.
type Snapshotter struct {
	source   Source
	saver    Saver
	interval time.Duration
	logger   *logger.Logger
}

// NewSnapshotter creates a snapshotter saving every interval.
func NewSnapshotter(source Source, saver Saver, interval time.Duration, log *logger.Logger) *Snapshotter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Snapshotter{source: source, saver: saver, interval: interval, logger: log}
}

// Run saves on every tick until ctx is cancelled, then saves once more.
func (s *Snapshotter) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSaveTimeout)
			if err := s.SaveNow(final); err != nil {
				s.logger.Error("final snapshot failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := s.SaveNow(ctx); err != nil {
				s.logger.Error("snapshot failed", zap.Error(err))
			}
		}
	}
}

// SaveNow captures and persists one snapshot.
func (s *Snapshotter) SaveNow(ctx context.Context) error {
	start := time.Now()
	snap := s.source.Snapshot()
	err := s.saver.Save(ctx, snap)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordSnapshot(status, time.Since(start).Seconds())
	if err == nil {
		s.logger.Debug("snapshot saved",
			zap.Int("users", len(snap.Users)),
			zap.Int("conversations", len(snap.Conversations)),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return err
}
