package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"airsafe_tracker/internal/table"
	"airsafe_tracker/internal/target"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseStore appends every position change to a MergeTree table.
type ClickHouseStore struct {
	conn    driver.Conn
	changes *table.Changes
}

// OpenClickHouse opens a connection and creates the schema.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open clickhouse")
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, eris.Wrap(err, "ping clickhouse")
	}

	s := &ClickHouseStore{conn: conn, changes: table.NewChanges()}
	if err := s.CreateSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *ClickHouseStore) Name() string { return "clickhouse" }

// Close closes the connection.
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}

// CreateSchema creates the positions table.
func (s *ClickHouseStore) CreateSchema(ctx context.Context) error {
	err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS positions (
			icao_address    LowCardinality(String),
			collection_type LowCardinality(String),
			timestamp       DateTime64(3),
			latitude        Nullable(Float64),
			longitude       Nullable(Float64),
			altitude        Nullable(Float64),
			heading         Nullable(Float64),
			speed           Nullable(Float64),
			flight_number   LowCardinality(String),
			callsign        LowCardinality(String),
			source          LowCardinality(String),
			inserted_at     DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (icao_address, timestamp)`)
	return eris.Wrap(err, "create schema")
}

// Publish appends the aircraft that changed since the previous snapshot.
func (s *ClickHouseStore) Publish(ctx context.Context, snap table.Snapshot) error {
	changed := s.changes.Since(snap)
	if len(changed) == 0 {
		return nil
	}
	if err := s.InsertBatch(ctx, "stream", changed); err != nil {
		s.changes.Forget(changed)
		return err
	}
	return nil
}

// PublishHistory appends a historical track.
func (s *ClickHouseStore) PublishHistory(ctx context.Context, targets []target.Target) error {
	return s.InsertBatch(ctx, "history", targets)
}

// InsertBatch appends targets in a single batch tagged with source.
func (s *ClickHouseStore) InsertBatch(ctx context.Context, source string, targets []target.Target) error {
	if len(targets) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO positions (icao_address, collection_type, timestamp, latitude, longitude, altitude,
			heading, speed, flight_number, callsign, source)
	`)
	if err != nil {
		return eris.Wrap(err, "prepare batch")
	}

	for _, tg := range targets {
		p := NewPosition(tg)
		err := batch.Append(p.ICAOAddress, p.Category, p.Timestamp, p.Latitude, p.Longitude, p.Altitude,
			p.Heading, p.Speed, p.FlightNumber, p.Callsign, source)
		if err != nil {
			_ = batch.Abort()
			return eris.Wrap(err, "append to batch")
		}
	}

	if err := batch.Send(); err != nil {
		return eris.Wrap(err, "send batch")
	}
	zap.L().Debug("clickhouse positions appended", zap.String("source", source), zap.Int("count", len(targets)))
	return nil
}

// Track returns the stored reports of an aircraft, oldest first.
func (s *ClickHouseStore) Track(ctx context.Context, icao string, limit int) ([]Position, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.conn.Query(ctx, `
		SELECT icao_address, collection_type, timestamp, latitude, longitude, altitude, heading, speed,
		       flight_number, callsign
		FROM positions
		WHERE icao_address = ?
		ORDER BY timestamp
		LIMIT ?`, icao, limit)
	if err != nil {
		return nil, eris.Wrap(err, "query track")
	}
	defer func() { _ = rows.Close() }()

	var out []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.ICAOAddress, &p.Category, &p.Timestamp, &p.Latitude, &p.Longitude, &p.Altitude,
			&p.Heading, &p.Speed, &p.FlightNumber, &p.Callsign); err != nil {
			return nil, eris.Wrap(err, "scan track")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "iterate track")
}
