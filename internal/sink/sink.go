// Package sink delivers ingestion output to presentation and storage layers.
//
// Stream pipelines publish a table.Snapshot after every chunk that leaves at
// least one table non-empty; history pipelines publish the fetched array once.
// Sinks must not retain or mutate the slices they are handed beyond the call
// unless they copy them; snapshots are immutable by convention.
package sink

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"airsafe_tracker/internal/table"
	"airsafe_tracker/internal/target"
)

// Sink consumes stream snapshots.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snap table.Snapshot) error
	Close() error
}

// HistorySink consumes the result of a historical fetch.
type HistorySink interface {
	Name() string
	PublishHistory(ctx context.Context, targets []target.Target) error
	Close() error
}

// Fanout publishes to several sinks. A failing sink is logged and skipped so
// that one broken consumer does not stop ingestion.
type Fanout struct {
	sinks   []Sink
	history []HistorySink
}

// NewFanout builds a fanout from any mix of Sink and HistorySink values.
func NewFanout(consumers ...any) *Fanout {
	f := &Fanout{}
	for _, c := range consumers {
		if s, ok := c.(Sink); ok {
			f.sinks = append(f.sinks, s)
		}
		if h, ok := c.(HistorySink); ok {
			f.history = append(f.history, h)
		}
	}
	return f
}

func (f *Fanout) Name() string { return "fanout" }

// Len returns the number of distinct consumers.
func (f *Fanout) Len() int {
	seen := make(map[any]bool)
	for _, s := range f.sinks {
		seen[s] = true
	}
	for _, h := range f.history {
		seen[h] = true
	}
	return len(seen)
}

// Publish sends the snapshot to every Sink. The returned error joins the
// individual failures.
func (f *Fanout) Publish(ctx context.Context, snap table.Snapshot) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, snap); err != nil {
			zap.L().Warn("sink publish failed", zap.String("sink", s.Name()), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishHistory sends the targets to every HistorySink.
func (f *Fanout) PublishHistory(ctx context.Context, targets []target.Target) error {
	var errs []error
	for _, h := range f.history {
		if err := h.PublishHistory(ctx, targets); err != nil {
			zap.L().Warn("history sink publish failed", zap.String("sink", h.Name()), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every consumer once.
func (f *Fanout) Close() error {
	closed := make(map[any]bool)
	var errs []error
	closeOnce := func(c interface{ Close() error }) {
		if closed[c] {
			return
		}
		closed[c] = true
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range f.sinks {
		closeOnce(s)
	}
	for _, h := range f.history {
		closeOnce(h)
	}
	return errors.Join(errs...)
}
