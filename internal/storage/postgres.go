package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"airsafe_tracker/internal/table"
	"airsafe_tracker/internal/target"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// PostgresStore keeps the latest position per aircraft and fetched history
// in PostgreSQL.
type PostgresStore struct {
	pool    Pool
	changes *table.Changes
}

// NewPostgresStore wraps an open pool. The schema is not created.
func NewPostgresStore(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool, changes: table.NewChanges()}
}

// OpenPostgres opens a connection pool and creates the schema.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, eris.Wrap(err, "parse postgres config")
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "open postgres")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ping postgres")
	}

	s := NewPostgresStore(pool)
	if err := s.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Name() string { return "postgres" }

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateSchema creates the PostgreSQL tables.
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS aircraft_positions (
		icao_address    TEXT PRIMARY KEY,
		collection_type TEXT NOT NULL,
		timestamp       TIMESTAMPTZ NOT NULL,
		latitude        DOUBLE PRECISION,
		longitude       DOUBLE PRECISION,
		altitude        DOUBLE PRECISION,
		heading         DOUBLE PRECISION,
		speed           DOUBLE PRECISION,
		flight_number   TEXT,
		callsign        TEXT,
		tail_number     TEXT,
		aircraft_type   TEXT,
		airline         TEXT,
		first_seen      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updates         INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_positions_type ON aircraft_positions(collection_type);
	CREATE INDEX IF NOT EXISTS idx_positions_last_seen ON aircraft_positions(last_seen);

	CREATE TABLE IF NOT EXISTS position_history (
		icao_address    TEXT NOT NULL,
		timestamp       TIMESTAMPTZ NOT NULL,
		collection_type TEXT,
		latitude        DOUBLE PRECISION,
		longitude       DOUBLE PRECISION,
		altitude        DOUBLE PRECISION,
		flight_number   TEXT,
		callsign        TEXT,
		PRIMARY KEY (icao_address, timestamp)
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return eris.Wrap(err, "create schema")
}

// Publish upserts every aircraft that changed since the previous snapshot.
func (s *PostgresStore) Publish(ctx context.Context, snap table.Snapshot) error {
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

// UpsertPositions writes targets as the latest known positions in one batch.
func (s *PostgresStore) UpsertPositions(ctx context.Context, targets []target.Target) error {
	batch := &pgx.Batch{}
	for _, tg := range targets {
		p := NewPosition(tg)
		batch.Queue(`
			INSERT INTO aircraft_positions (icao_address, collection_type, timestamp, latitude, longitude, altitude,
				heading, speed, flight_number, callsign, tail_number, aircraft_type, airline)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (icao_address) DO UPDATE SET
				collection_type = EXCLUDED.collection_type,
				timestamp = EXCLUDED.timestamp,
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				altitude = EXCLUDED.altitude,
				heading = EXCLUDED.heading,
				speed = EXCLUDED.speed,
				flight_number = COALESCE(NULLIF(EXCLUDED.flight_number, ''), aircraft_positions.flight_number),
				callsign = COALESCE(NULLIF(EXCLUDED.callsign, ''), aircraft_positions.callsign),
				tail_number = COALESCE(NULLIF(EXCLUDED.tail_number, ''), aircraft_positions.tail_number),
				aircraft_type = COALESCE(NULLIF(EXCLUDED.aircraft_type, ''), aircraft_positions.aircraft_type),
				airline = COALESCE(NULLIF(EXCLUDED.airline, ''), aircraft_positions.airline),
				last_seen = NOW(),
				updates = aircraft_positions.updates + 1
		`, p.ICAOAddress, p.Category, p.Timestamp, p.Latitude, p.Longitude, p.Altitude,
			p.Heading, p.Speed, p.FlightNumber, p.Callsign, p.TailNumber, p.AircraftType, p.Airline)
	}

	err := s.pool.SendBatch(ctx, batch).Close()
	return eris.Wrap(err, "upsert positions")
}

// PublishHistory stores a historical track. Reports already stored for the
// same aircraft and timestamp are ignored.
func (s *PostgresStore) PublishHistory(ctx context.Context, targets []target.Target) error {
	batch := &pgx.Batch{}
	for _, tg := range targets {
		p := NewPosition(tg)
		batch.Queue(`
			INSERT INTO position_history (icao_address, timestamp, collection_type, latitude, longitude, altitude,
				flight_number, callsign)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (icao_address, timestamp) DO NOTHING
		`, p.ICAOAddress, p.Timestamp, p.Category, p.Latitude, p.Longitude, p.Altitude, p.FlightNumber, p.Callsign)
	}
	err := s.pool.SendBatch(ctx, batch).Close()
	return eris.Wrap(err, "insert history")
}

// GetPosition returns the latest stored position of an aircraft, or nil.
func (s *PostgresStore) GetPosition(ctx context.Context, icao string) (*StoredPosition, error) {
	var sp StoredPosition
	var flight, callsign, tail, typ, airline *string
	err := s.pool.QueryRow(ctx, `
		SELECT icao_address, collection_type, timestamp, latitude, longitude, altitude, heading, speed,
		       flight_number, callsign, tail_number, aircraft_type, airline, first_seen, last_seen, updates
		FROM aircraft_positions WHERE icao_address = $1
	`, NormalizeICAO(icao)).Scan(
		&sp.ICAOAddress, &sp.Category, &sp.Timestamp, &sp.Latitude, &sp.Longitude, &sp.Altitude, &sp.Heading, &sp.Speed,
		&flight, &callsign, &tail, &typ, &airline, &sp.FirstSeen, &sp.LastSeen, &sp.Updates,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "get position")
	}
	sp.FlightNumber = deref(flight)
	sp.Callsign = deref(callsign)
	sp.TailNumber = deref(tail)
	sp.AircraftType = deref(typ)
	sp.Airline = deref(airline)
	return &sp, nil
}

// Pool returns the underlying connection pool.
func (s *PostgresStore) Pool() Pool {
	return s.pool
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
