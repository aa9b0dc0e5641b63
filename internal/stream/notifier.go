// Package stream pushes periodic dashboard snapshots to connected clients
// over server-sent events or websockets.
package stream

import (
	"context"
	"log/slog"
	"time"

	"zonewatch/internal/aggregate"
	"zonewatch/internal/apperr"
	"zonewatch/internal/config"
	"zonewatch/internal/metrics"
)

type Source interface {
	Snapshot(ctx context.Context, alertLimit, activityLimit int) (aggregate.Snapshot, error)
}

// Sink delivers one snapshot to one client.
type Sink interface {
	Send(ctx context.Context, snap aggregate.Snapshot) error
}

type Notifier struct {
	source Source
	cfg    func() config.StreamConfig
	logger *slog.Logger
}

func NewNotifier(source Source, cfg func() config.StreamConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{source: source, cfg: cfg, logger: logger}
}

// Serve sends a snapshot right away and then once per interval until ctx
// ends or a snapshot cannot be built or delivered. A cancelled context is a
// clean exit and returns nil; anything else comes back as a StreamError.
func (n *Notifier) Serve(ctx context.Context, sink Sink) error {
	cfg := n.cfg()
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if err := n.push(ctx, sink, cfg); err != nil {
		return n.finish(ctx, err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := n.push(ctx, sink, cfg); err != nil {
				return n.finish(ctx, err)
			}
		}
	}
}

func (n *Notifier) push(ctx context.Context, sink Sink, cfg config.StreamConfig) error {
	start := time.Now()
	snap, err := n.source.Snapshot(ctx, cfg.AlertLimit, cfg.ActivityLimit)
	metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	return sink.Send(ctx, snap)
}

func (n *Notifier) finish(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	n.logger.Warn("stream closed", "err", err)
	return &apperr.StreamError{Err: err}
}
