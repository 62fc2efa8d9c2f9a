package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"airsafe_tracker/internal/table"
	"airsafe_tracker/internal/target"
)

// CSVFileLayout names rotated files by the window they cover.
const CSVFileLayout = "01_02_2006_15_04_05"

// WriteCSV writes a header of target.Columns followed by one row per target.
func WriteCSV(w io.Writer, targets []target.Target) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(target.Columns); err != nil {
		return eris.Wrap(err, "write header")
	}
	for i := range targets {
		if err := cw.Write(targets[i].Row().Strings()); err != nil {
			return eris.Wrap(err, "write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "flush csv")
}

// CSV buffers every target update seen in stream snapshots and writes them to
// a new file in Dir each time Interval elapses. History results are written to
// a single file immediately.
type CSV struct {
	dir      string
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	changes *table.Changes
	pending []target.Target
	from    time.Time
	files   []string
}

// NewCSV creates a CSV sink writing into dir. A zero interval only writes on
// Close.
func NewCSV(dir string, interval time.Duration) *CSV {
	c := &CSV{dir: dir, interval: interval, now: time.Now, changes: table.NewChanges()}
	c.from = c.now()
	return c
}

func (c *CSV) Name() string { return "csv" }

// Publish buffers the updates carried by snap and rotates if due.
func (c *CSV) Publish(_ context.Context, snap table.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = append(c.pending, c.changes.Since(snap)...)
	if c.interval > 0 && c.now().Sub(c.from) >= c.interval {
		return c.rotate()
	}
	return nil
}

// PublishHistory writes targets to history_<icao>_<time>.csv.
func (c *CSV) PublishHistory(_ context.Context, targets []target.Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	icao := "all"
	if len(targets) > 0 {
		icao = targets[0].ICAOAddress
	}
	name := fmt.Sprintf("history_%s_%s.csv", icao, c.now().Format(CSVFileLayout))
	return c.writeFile(name, targets)
}

// Rotate writes the buffered updates now.
func (c *CSV) Rotate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rotate()
}

// Files returns the paths written so far.
func (c *CSV) Files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.files...)
}

// Close writes any buffered updates.
func (c *CSV) Close() error {
	return c.Rotate()
}

func (c *CSV) rotate() error {
	from, to := c.from, c.now()
	c.from = to

	pending := c.pending
	c.pending = nil
	if len(pending) == 0 {
		return nil
	}

	name := fmt.Sprintf("data_%s_%s.csv", from.Format(CSVFileLayout), to.Format(CSVFileLayout))
	return c.writeFile(name, pending)
}

func (c *CSV) writeFile(name string, targets []target.Target) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return eris.Wrapf(err, "create %s", c.dir)
	}
	path := filepath.Join(c.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := WriteCSV(f, targets); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "close %s", path)
	}

	c.files = append(c.files, path)
	zap.L().Info("csv export written", zap.String("path", path), zap.Int("rows", len(targets)))
	return nil
}
