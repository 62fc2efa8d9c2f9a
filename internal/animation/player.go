// Package animation replays a historical track one report at a time.
package animation

import (
	"context"
	"fmt"
	"time"

	"airsafe_tracker/internal/target"
)

// DefaultInterval is the pause between frames.
const DefaultInterval = 10 * time.Millisecond

// Frame is one step of playback.
type Frame struct {
	Index  int
	Total  int
	Target target.Target
}

// Last reports whether this is the final frame.
func (f Frame) Last() bool { return f.Index == f.Total-1 }

// String renders the frame as a single status line.
func (f Frame) String() string {
	tg := f.Target
	heading := "-"
	if tg.Heading != nil {
		heading = fmt.Sprintf("%.0f°", float64(*tg.Heading))
	}
	return fmt.Sprintf("[%d/%d] %s %s lat=%.5f lon=%.5f alt=%.0f hdg=%s",
		f.Index+1, f.Total, tg.Timestamp, tg.ICAOAddress, tg.Lat(), tg.Lon(), tg.Alt(), heading)
}

// Player steps through a fixed list of targets.
type Player struct {
	targets  []target.Target
	interval time.Duration
}

// NewPlayer creates a player. A non-positive interval uses DefaultInterval.
func NewPlayer(targets []target.Target, interval time.Duration) *Player {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Player{targets: targets, interval: interval}
}

// Run calls frame for the first target immediately and for each following
// target after every interval. It returns nil once the last frame has been
// shown, or ctx.Err() if cancelled first. An empty list shows nothing.
func (p *Player) Run(ctx context.Context, frame func(Frame)) error {
	total := len(p.targets)
	if total == 0 {
		return nil
	}

	frame(Frame{Index: 0, Total: total, Target: p.targets[0]})
	if total == 1 {
		return nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for i := 1; i < total; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		frame(Frame{Index: i, Total: total, Target: p.targets[i]})
	}
	return nil
}
