package storage

import (
	"context"
	"sync"

	qdb "github.com/questdb/go-questdb-client"
	"github.com/rotisserie/eris"

	"airsafe_tracker/internal/table"
	"airsafe_tracker/internal/target"
)

// QuestDBTable is the ILP table positions are written to.
const QuestDBTable = "aircraft_positions"

// QuestDBStore writes position changes to QuestDB over the InfluxDB line
// protocol.
type QuestDBStore struct {
	mu      sync.Mutex
	sender  *qdb.LineSender
	changes *table.Changes
}

// OpenQuestDB connects to the ILP endpoint at addr (host:port).
func OpenQuestDB(ctx context.Context, addr string, bufferSize int) (*QuestDBStore, error) {
	opts := []qdb.LineSenderOption{qdb.WithAddress(addr)}
	if bufferSize > 0 {
		opts = append(opts, qdb.WithBufferCapacity(bufferSize))
	}
	sender, err := qdb.NewLineSender(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "init questdb line sender")
	}
	return &QuestDBStore{sender: sender, changes: table.NewChanges()}, nil
}

func (s *QuestDBStore) Name() string { return "questdb" }

// Close flushes pending rows and closes the connection.
func (s *QuestDBStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flushErr := s.sender.Flush(context.Background())
	if err := s.sender.Close(); err != nil {
		return eris.Wrap(err, "close questdb line sender")
	}
	return eris.Wrap(flushErr, "flush")
}

// Publish writes the aircraft that changed since the previous snapshot. On
// failure the batch is forgotten so the next snapshot writes it again.
func (s *QuestDBStore) Publish(ctx context.Context, snap table.Snapshot) error {
	changed := s.changes.Since(snap)
	if len(changed) == 0 {
		return nil
	}
	if err := s.write(ctx, changed); err != nil {
		s.changes.Forget(changed)
		return err
	}
	return nil
}

// PublishHistory writes a historical track.
func (s *QuestDBStore) PublishHistory(ctx context.Context, targets []target.Target) error {
	return s.write(ctx, targets)
}

func (s *QuestDBStore) write(ctx context.Context, targets []target.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Nothing is buffered for a batch that cannot be flushed.
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "write questdb rows")
	}

	for _, tg := range targets {
		p := NewPosition(tg)
		// Symbols must precede columns.
		line := s.sender.Table(QuestDBTable).
			Symbol("icao_address", p.ICAOAddress).
			Symbol("collection_type", p.Category)
		if p.Callsign != "" {
			line = line.Symbol("callsign", p.Callsign)
		}
		// Every row carries at least this column; ILP rejects symbol-only rows.
		line = line.BoolColumn("positioned", p.Latitude != nil && p.Longitude != nil)
		for _, col := range []struct {
			name string
			val  *float64
		}{
			{"latitude", p.Latitude},
			{"longitude", p.Longitude},
			{"altitude", p.Altitude},
			{"heading", p.Heading},
			{"speed", p.Speed},
		} {
			if col.val != nil {
				line = line.Float64Column(col.name, *col.val)
			}
		}
		if p.FlightNumber != "" {
			line = line.StringColumn("flight_number", p.FlightNumber)
		}
		if err := line.At(ctx, p.Timestamp.UnixNano()); err != nil {
			return eris.Wrapf(err, "write %s", p.ICAOAddress)
		}
	}
	return eris.Wrap(s.sender.Flush(ctx), "flush")
}
