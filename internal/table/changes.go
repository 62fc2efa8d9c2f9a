package table

import (
	"sync"

	"airsafe_tracker/internal/target"
)

// Changes remembers the last timestamp seen per aircraft so that consumers
// of successive snapshots only handle the aircraft that moved. Targets
// without a timestamp always count as changed. It is safe for concurrent use.
type Changes struct {
	mu   sync.Mutex
	seen map[string]string
}

// NewChanges creates an empty tracker.
func NewChanges() *Changes {
	return &Changes{seen: make(map[string]string)}
}

// Since returns the targets of snap that are new or carry a new timestamp,
// and records them as seen.
func (c *Changes) Since(snap Snapshot) []target.Target {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []target.Target
	for _, d := range snap.Datasets {
		for _, tg := range d.Targets {
			key := changeKey(tg)
			if ts, ok := c.seen[key]; ok && ts == tg.Timestamp && tg.Timestamp != "" {
				continue
			}
			c.seen[key] = tg.Timestamp
			out = append(out, tg)
		}
	}
	return out
}

// Forget drops the recorded timestamps of targets so they count as changed
// again, e.g. after a failed write.
func (c *Changes) Forget(targets []target.Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tg := range targets {
		delete(c.seen, changeKey(tg))
	}
}

func changeKey(tg target.Target) string {
	return string(tg.CollectionType) + "/" + tg.ICAOAddress
}
