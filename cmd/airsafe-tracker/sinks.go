package main

import (
	"context"
	"io"

	"go.uber.org/zap"

	"airsafe_tracker/internal/api"
	"airsafe_tracker/internal/config"
	"airsafe_tracker/internal/sink"
	"airsafe_tracker/internal/storage"
)

// sinkEnv holds the consumers opened from configuration.
type sinkEnv struct {
	Fanout *sink.Fanout
	Memory *sink.Memory
	Store  api.PositionStore // First configured store with lookups, or nil.
}

func (e *sinkEnv) Close() {
	if err := e.Fanout.Close(); err != nil {
		zap.L().Warn("closing sinks", zap.Error(err))
	}
}

// openSinks opens every enabled sink. Console output goes to out. If any
// sink fails to open, the ones already opened are closed.
func openSinks(ctx context.Context, sc config.SinksConfig, out io.Writer) (env *sinkEnv, err error) {
	mem := sink.NewMemory()
	consumers := []any{mem}
	var store api.PositionStore

	defer func() {
		if err != nil {
			_ = sink.NewFanout(consumers...).Close()
		}
	}()

	if sc.Console.Enabled {
		consumers = append(consumers, sink.NewConsole(out, sc.Console.MaxRows).WithMinInterval(sc.Console.Interval()))
	}
	if sc.Kepler.Enabled {
		consumers = append(consumers, sink.NewKeplerFile(sc.Kepler.Path))
	}
	if sc.GeoJSON.Enabled {
		consumers = append(consumers, sink.NewGeoJSONFile(sc.GeoJSON.Path))
	}
	if sc.KML.Enabled {
		consumers = append(consumers, sink.NewKMLFile(sc.KML.Path))
	}
	if sc.CSV.Enabled {
		consumers = append(consumers, sink.NewCSV(sc.CSV.Dir, sc.CSV.Interval()))
	}
	if sc.NATS.Enabled {
		n, err := sink.DialNATS(sc.NATS.URL, sc.NATS.Prefix)
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, n)
	}
	if sc.SQLite.Enabled {
		s, err := storage.OpenSQLite(sc.SQLite.Path)
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, s)
		store = s
	}
	if sc.Postgres.Enabled {
		pg, err := storage.OpenPostgres(ctx, storage.PostgresConfig{
			Host:     sc.Postgres.Host,
			Port:     sc.Postgres.Port,
			Database: sc.Postgres.Database,
			User:     sc.Postgres.User,
			Password: sc.Postgres.Password,
		})
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, pg)
		if store == nil {
			store = pg
		}
	}
	if sc.ClickHouse.Enabled {
		ch, err := storage.OpenClickHouse(ctx, storage.ClickHouseConfig{
			Host:     sc.ClickHouse.Host,
			Port:     sc.ClickHouse.Port,
			Database: sc.ClickHouse.Database,
			User:     sc.ClickHouse.User,
			Password: sc.ClickHouse.Password,
		})
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, ch)
	}
	if sc.QuestDB.Enabled {
		q, err := storage.OpenQuestDB(ctx, sc.QuestDB.Addr, sc.QuestDB.BufferSize)
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, q)
	}

	f := sink.NewFanout(consumers...)
	zap.L().Info("sinks opened", zap.Int("count", f.Len()))
	return &sinkEnv{Fanout: f, Memory: mem, Store: store}, nil
}
