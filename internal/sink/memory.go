package sink

import (
	"context"
	"sync"
	"time"

	"airsafe_tracker/internal/table"
	"airsafe_tracker/internal/target"
)

// Memory keeps the latest snapshot and history for readers such as the HTTP
// API. It is safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	snap      table.Snapshot
	history   []target.Target
	updatedAt time.Time
	publishes int
}

// NewMemory creates an empty memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Publish(_ context.Context, snap table.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	m.updatedAt = time.Now()
	m.publishes++
	return nil
}

func (m *Memory) PublishHistory(_ context.Context, targets []target.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = targets
	m.updatedAt = time.Now()
	m.publishes++
	return nil
}

// Latest returns the last published snapshot and when it arrived.
func (m *Memory) Latest() (table.Snapshot, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap, m.updatedAt
}

// History returns the last published history.
func (m *Memory) History() []target.Target {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history
}

// Publishes returns how many times the sink has been published to.
func (m *Memory) Publishes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.publishes
}

func (m *Memory) Close() error { return nil }
