package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"airsafe_tracker/internal/table"
	"airsafe_tracker/internal/target"
)

const sqliteSchema = `
-- Latest known position per aircraft.
CREATE TABLE IF NOT EXISTS aircraft_positions (
	icao_address    TEXT PRIMARY KEY,
	collection_type TEXT NOT NULL,
	timestamp       DATETIME NOT NULL,
	latitude        REAL,
	longitude       REAL,
	altitude        REAL,
	heading         REAL,
	speed           REAL,
	flight_number   TEXT,
	callsign        TEXT,
	tail_number     TEXT,
	aircraft_type   TEXT,
	airline         TEXT,
	first_seen      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_seen       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updates         INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_positions_type ON aircraft_positions(collection_type);
CREATE INDEX IF NOT EXISTS idx_positions_last_seen ON aircraft_positions(last_seen);

-- Historical tracks fetched from the history endpoint.
CREATE TABLE IF NOT EXISTS position_history (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	icao_address    TEXT NOT NULL,
	collection_type TEXT,
	timestamp       DATETIME NOT NULL,
	latitude        REAL,
	longitude       REAL,
	altitude        REAL,
	flight_number   TEXT,
	callsign        TEXT,
	UNIQUE(icao_address, timestamp)
);

CREATE INDEX IF NOT EXISTS idx_history_icao ON position_history(icao_address, timestamp);
`

// SQLiteStore keeps the latest position per aircraft in a SQLite file.
type SQLiteStore struct {
	db      *sql.DB
	changes *table.Changes
}

// OpenSQLite opens or creates a store at path. An empty path or ":memory:"
// uses an in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "open sqlite")
	}
	// An in-memory database exists per connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "exec %q", pragma)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "create schema")
	}

	return &SQLiteStore{db: db, changes: table.NewChanges()}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Publish upserts every aircraft that changed since the previous snapshot.
func (s *SQLiteStore) Publish(ctx context.Context, snap table.Snapshot) error {
	changed := s.changes.Since(snap)
	if len(changed) == 0 {
		return nil
	}
	if err := s.UpsertPositions(ctx, changed); err != nil {
		s.changes.Forget(changed)
		return err
	}
	return nil
}

// UpsertPositions writes targets as the latest known positions.
func (s *SQLiteStore) UpsertPositions(ctx context.Context, targets []target.Target) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO aircraft_positions (icao_address, collection_type, timestamp, latitude, longitude, altitude,
			heading, speed, flight_number, callsign, tail_number, aircraft_type, airline, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(icao_address) DO UPDATE SET
			collection_type = excluded.collection_type,
			timestamp = excluded.timestamp,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			altitude = excluded.altitude,
			heading = excluded.heading,
			speed = excluded.speed,
			flight_number = COALESCE(NULLIF(excluded.flight_number, ''), aircraft_positions.flight_number),
			callsign = COALESCE(NULLIF(excluded.callsign, ''), aircraft_positions.callsign),
			tail_number = COALESCE(NULLIF(excluded.tail_number, ''), aircraft_positions.tail_number),
			aircraft_type = COALESCE(NULLIF(excluded.aircraft_type, ''), aircraft_positions.aircraft_type),
			airline = COALESCE(NULLIF(excluded.airline, ''), aircraft_positions.airline),
			last_seen = excluded.last_seen,
			updates = aircraft_positions.updates + 1
	`)
	if err != nil {
		return eris.Wrap(err, "prepare upsert")
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, tg := range targets {
		p := NewPosition(tg)
		_, err := stmt.ExecContext(ctx,
			p.ICAOAddress, p.Category, p.Timestamp, p.Latitude, p.Longitude, p.Altitude,
			p.Heading, p.Speed, p.FlightNumber, p.Callsign, p.TailNumber, p.AircraftType, p.Airline, now, now,
		)
		if err != nil {
			return eris.Wrapf(err, "upsert %s", p.ICAOAddress)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "commit")
	}
	zap.L().Debug("sqlite positions written", zap.Int("count", len(targets)))
	return nil
}

// PublishHistory stores a historical track. Reports already stored for the
// same aircraft and timestamp are ignored.
func (s *SQLiteStore) PublishHistory(ctx context.Context, targets []target.Target) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, tg := range targets {
		p := NewPosition(tg)
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO position_history (icao_address, collection_type, timestamp, latitude, longitude,
				altitude, flight_number, callsign)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ICAOAddress, p.Category, p.Timestamp, p.Latitude, p.Longitude, p.Altitude, p.FlightNumber, p.Callsign)
		if err != nil {
			return eris.Wrapf(err, "insert history %s", p.ICAOAddress)
		}
	}
	return eris.Wrap(tx.Commit(), "commit")
}

// StoredPosition is a row of aircraft_positions.
type StoredPosition struct {
	Position
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Updates   int       `json:"updates"`
}

// GetPosition returns the latest stored position of an aircraft, or nil.
func (s *SQLiteStore) GetPosition(ctx context.Context, icao string) (*StoredPosition, error) {
	rows, err := s.db.QueryContext(ctx, selectPositions+` WHERE icao_address = ?`, NormalizeICAO(icao))
	if err != nil {
		return nil, eris.Wrap(err, "query position")
	}
	positions, err := scanPositions(rows)
	if err != nil || len(positions) == 0 {
		return nil, err
	}
	return &positions[0], nil
}

// ListPositions returns the stored positions of a category ordered by ICAO
// address. An empty category lists every aircraft.
func (s *SQLiteStore) ListPositions(ctx context.Context, category target.Category) ([]StoredPosition, error) {
	query := selectPositions
	var args []any
	if category != "" {
		query += ` WHERE collection_type = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY icao_address`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "query positions")
	}
	return scanPositions(rows)
}

// HistoryCount returns the number of stored history reports for an aircraft.
func (s *SQLiteStore) HistoryCount(ctx context.Context, icao string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM position_history WHERE icao_address = ?`, icao).Scan(&n)
	return n, eris.Wrap(err, "count history")
}

const selectPositions = `
	SELECT icao_address, collection_type, timestamp, latitude, longitude, altitude, heading, speed,
	       flight_number, callsign, tail_number, aircraft_type, airline, first_seen, last_seen, updates
	FROM aircraft_positions`

func scanPositions(rows *sql.Rows) ([]StoredPosition, error) {
	defer func() { _ = rows.Close() }()

	var out []StoredPosition
	for rows.Next() {
		var sp StoredPosition
		var lat, lon, alt, hdg, spd sql.NullFloat64
		var flight, callsign, tail, typ, airline sql.NullString

		err := rows.Scan(
			&sp.ICAOAddress, &sp.Category, &sp.Timestamp, &lat, &lon, &alt, &hdg, &spd,
			&flight, &callsign, &tail, &typ, &airline, &sp.FirstSeen, &sp.LastSeen, &sp.Updates,
		)
		if err != nil {
			return nil, eris.Wrap(err, "scan position")
		}

		sp.Latitude = nullFloat(lat)
		sp.Longitude = nullFloat(lon)
		sp.Altitude = nullFloat(alt)
		sp.Heading = nullFloat(hdg)
		sp.Speed = nullFloat(spd)
		sp.FlightNumber = flight.String
		sp.Callsign = callsign.String
		sp.TailNumber = tail.String
		sp.AircraftType = typ.String
		sp.Airline = airline.String
		out = append(out, sp)
	}
	return out, eris.Wrap(rows.Err(), "iterate positions")
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
