package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airsafe_tracker/internal/target"
)

func stamped(icao string, c target.Category, ts string) target.Target {
	tg := tgt(icao, c, 1, 1)
	tg.Timestamp = ts
	return tg
}

func snapOf(targets ...target.Target) Snapshot {
	ts := New()
	for _, tg := range targets {
		_, _ = ts.Upsert(tg)
	}
	return ts.Snapshot()
}

func TestChanges_Since(t *testing.T) {
	c := NewChanges()

	first := snapOf(stamped("A", target.Satellite, "t1"), stamped("B", target.Terrestrial, "t1"))
	assert.Len(t, c.Since(first), 2)
	assert.Empty(t, c.Since(first))

	second := snapOf(stamped("A", target.Satellite, "t2"), stamped("B", target.Terrestrial, "t1"))
	changed := c.Since(second)
	require.Len(t, changed, 1)
	assert.Equal(t, "A", changed[0].ICAOAddress)

	c.Forget(changed)
	assert.Len(t, c.Since(second), 1)
}

func TestChanges_NoTimestampAlwaysChanged(t *testing.T) {
	c := NewChanges()
	snap := snapOf(stamped("A", target.Satellite, ""))

	assert.Len(t, c.Since(snap), 1)
	assert.Len(t, c.Since(snap), 1)
}
