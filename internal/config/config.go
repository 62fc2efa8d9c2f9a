// Package config loads tracker configuration from config.yaml and the
// environment.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"airsafe_tracker/internal/airsafe"
)

// EnvPrefix prefixes every environment override, e.g. AIRSAFE_API_TOKEN.
const EnvPrefix = "AIRSAFE"

// Config holds the full application configuration.
type Config struct {
	API       APIConfig       `yaml:"api" mapstructure:"api"`
	Stream    StreamConfig    `yaml:"stream" mapstructure:"stream"`
	History   HistoryConfig   `yaml:"history" mapstructure:"history"`
	Serve     ServeConfig     `yaml:"serve" mapstructure:"serve"`
	Sinks     SinksConfig     `yaml:"sinks" mapstructure:"sinks"`
	Animation AnimationConfig `yaml:"animation" mapstructure:"animation"`
	Simulator SimulatorConfig `yaml:"simulator" mapstructure:"simulator"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// APIConfig configures the AirSafe client.
type APIConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Token     string `yaml:"token" mapstructure:"token"`
	ChunkSize int    `yaml:"chunk_size" mapstructure:"chunk_size"`
}

// FilterConfig mirrors the query filters of the targets API. Ranges are
// written "min,max".
type FilterConfig struct {
	LatitudeBetween  string   `yaml:"latitude_between" mapstructure:"latitude_between"`
	LongitudeBetween string   `yaml:"longitude_between" mapstructure:"longitude_between"`
	AltitudeBetween  string   `yaml:"altitude_between" mapstructure:"altitude_between"`
	ICAOAddress      []string `yaml:"icao_address" mapstructure:"icao_address"`
	TailNumber       []string `yaml:"tail_number" mapstructure:"tail_number"`
	Callsign         []string `yaml:"callsign" mapstructure:"callsign"`
	Airline          []string `yaml:"airline" mapstructure:"airline"`
	MaxAge           int      `yaml:"max_age" mapstructure:"max_age"`
}

// StreamConfig configures the live stream.
type StreamConfig struct {
	Compression   string       `yaml:"compression" mapstructure:"compression"`
	LateFilter    bool         `yaml:"late_filter" mapstructure:"late_filter"`
	PositionToken string       `yaml:"position_token" mapstructure:"position_token"`
	Filters       FilterConfig `yaml:"filters" mapstructure:"filters"`
	// Duration bounds a run; it ends at the first position token after it
	// elapses. Zero runs until the stream ends.
	Duration time.Duration `yaml:"duration" mapstructure:"duration"`
}

// HistoryConfig configures the historical fetch. Times are RFC 3339.
type HistoryConfig struct {
	ICAOAddress string       `yaml:"icao_address" mapstructure:"icao_address"`
	Start       string       `yaml:"start" mapstructure:"start"`
	End         string       `yaml:"end" mapstructure:"end"`
	Filters     FilterConfig `yaml:"filters" mapstructure:"filters"`
}

// ServeConfig configures the HTTP API that exposes the latest snapshot.
type ServeConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	Addr           string   `yaml:"addr" mapstructure:"addr"`
	AuthEnabled    bool     `yaml:"auth_enabled" mapstructure:"auth_enabled"`
	APIKeys        []string `yaml:"api_keys" mapstructure:"api_keys"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// SinksConfig selects where snapshots and histories are published.
type SinksConfig struct {
	Console    ConsoleSinkConfig `yaml:"console" mapstructure:"console"`
	Kepler     FileSinkConfig    `yaml:"kepler" mapstructure:"kepler"`
	GeoJSON    FileSinkConfig    `yaml:"geojson" mapstructure:"geojson"`
	KML        FileSinkConfig    `yaml:"kml" mapstructure:"kml"`
	CSV        CSVSinkConfig     `yaml:"csv" mapstructure:"csv"`
	NATS       NATSSinkConfig    `yaml:"nats" mapstructure:"nats"`
	SQLite     SQLiteSinkConfig  `yaml:"sqlite" mapstructure:"sqlite"`
	Postgres   DBSinkConfig      `yaml:"postgres" mapstructure:"postgres"`
	ClickHouse DBSinkConfig      `yaml:"clickhouse" mapstructure:"clickhouse"`
	QuestDB    QuestDBSinkConfig `yaml:"questdb" mapstructure:"questdb"`
}

// ConsoleSinkConfig configures terminal output.
type ConsoleSinkConfig struct {
	Enabled    bool `yaml:"enabled" mapstructure:"enabled"`
	MaxRows    int  `yaml:"max_rows" mapstructure:"max_rows"`
	IntervalMS int  `yaml:"interval_ms" mapstructure:"interval_ms"`
}

// Interval returns the minimum time between two rendered snapshots.
func (c ConsoleSinkConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// FileSinkConfig configures a sink that rewrites a single file.
type FileSinkConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// CSVSinkConfig configures CSV export.
type CSVSinkConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir             string `yaml:"dir" mapstructure:"dir"`
	IntervalMinutes int    `yaml:"interval_minutes" mapstructure:"interval_minutes"`
}

// Interval returns the rotation interval.
func (c CSVSinkConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// NATSSinkConfig configures the NATS publisher.
type NATSSinkConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	URL     string `yaml:"url" mapstructure:"url"`
	Prefix  string `yaml:"prefix" mapstructure:"prefix"`
}

// SQLiteSinkConfig configures the embedded store.
type SQLiteSinkConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// DBSinkConfig configures a networked database store.
type DBSinkConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Database string `yaml:"database" mapstructure:"database"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
}

// QuestDBSinkConfig configures the QuestDB line protocol writer.
type QuestDBSinkConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr       string `yaml:"addr" mapstructure:"addr"`
	BufferSize int    `yaml:"buffer_size" mapstructure:"buffer_size"`
}

// AnimationConfig configures history playback.
type AnimationConfig struct {
	IntervalMS int `yaml:"interval_ms" mapstructure:"interval_ms"`
}

// Interval returns the frame interval.
func (c AnimationConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// SimulatorConfig configures the synthetic AirSafe API.
type SimulatorConfig struct {
	Addr       string `yaml:"addr" mapstructure:"addr"`
	Token      string `yaml:"token" mapstructure:"token"`
	Seed       int64  `yaml:"seed" mapstructure:"seed"`
	Aircraft   int    `yaml:"aircraft" mapstructure:"aircraft"`
	Updates    int    `yaml:"updates" mapstructure:"updates"`
	IntervalMS int    `yaml:"interval_ms" mapstructure:"interval_ms"`
	MaxChunk   int    `yaml:"max_chunk" mapstructure:"max_chunk"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AVIATION_TOKEN is accepted as well.
	if err := v.BindEnv("api.token", EnvPrefix+"_API_TOKEN", "AVIATION_TOKEN"); err != nil {
		return nil, eris.Wrap(err, "config: bind token")
	}

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", airsafe.DefaultBaseURL)
	v.SetDefault("api.chunk_size", airsafe.DefaultChunkSize)

	v.SetDefault("stream.compression", airsafe.CompressionNone)
	v.SetDefault("stream.late_filter", true)
	v.SetDefault("stream.position_token", "")
	v.SetDefault("stream.duration", 0)
	setFilterDefaults(v, "stream.filters")

	v.SetDefault("history.icao_address", "")
	v.SetDefault("history.start", "")
	v.SetDefault("history.end", "")
	setFilterDefaults(v, "history.filters")

	v.SetDefault("serve.enabled", false)
	v.SetDefault("serve.addr", ":8080")
	v.SetDefault("serve.auth_enabled", false)
	v.SetDefault("serve.api_keys", []string{})
	v.SetDefault("serve.allowed_origins", []string{})

	v.SetDefault("sinks.console.enabled", true)
	v.SetDefault("sinks.console.max_rows", 20)
	v.SetDefault("sinks.console.interval_ms", 500)
	v.SetDefault("sinks.kepler.enabled", false)
	v.SetDefault("sinks.kepler.path", "out/datasets.json")
	v.SetDefault("sinks.geojson.enabled", false)
	v.SetDefault("sinks.geojson.path", "out/targets.geojson")
	v.SetDefault("sinks.kml.enabled", false)
	v.SetDefault("sinks.kml.path", "out/targets.kml")
	v.SetDefault("sinks.csv.enabled", false)
	v.SetDefault("sinks.csv.dir", "out")
	v.SetDefault("sinks.csv.interval_minutes", 30)
	v.SetDefault("sinks.nats.enabled", false)
	v.SetDefault("sinks.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("sinks.nats.prefix", "airsafe")
	v.SetDefault("sinks.sqlite.enabled", false)
	v.SetDefault("sinks.sqlite.path", "airsafe.db")
	v.SetDefault("sinks.postgres.enabled", false)
	v.SetDefault("sinks.postgres.host", "localhost")
	v.SetDefault("sinks.postgres.port", 5432)
	v.SetDefault("sinks.postgres.database", "airsafe")
	v.SetDefault("sinks.postgres.user", "airsafe")
	v.SetDefault("sinks.postgres.password", "")
	v.SetDefault("sinks.clickhouse.enabled", false)
	v.SetDefault("sinks.clickhouse.host", "localhost")
	v.SetDefault("sinks.clickhouse.port", 9000)
	v.SetDefault("sinks.clickhouse.database", "default")
	v.SetDefault("sinks.clickhouse.user", "default")
	v.SetDefault("sinks.clickhouse.password", "")
	v.SetDefault("sinks.questdb.enabled", false)
	v.SetDefault("sinks.questdb.addr", "127.0.0.1:9009")
	v.SetDefault("sinks.questdb.buffer_size", 0)

	v.SetDefault("animation.interval_ms", 10)

	v.SetDefault("simulator.addr", ":8089")
	v.SetDefault("simulator.token", "local-token")
	v.SetDefault("simulator.seed", 1)
	v.SetDefault("simulator.aircraft", 25)
	v.SetDefault("simulator.updates", 0)
	v.SetDefault("simulator.interval_ms", 50)
	v.SetDefault("simulator.max_chunk", 512)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func setFilterDefaults(v *viper.Viper, prefix string) {
	for _, key := range []string{"latitude_between", "longitude_between", "altitude_between"} {
		v.SetDefault(prefix+"."+key, "")
	}
	for _, key := range []string{"icao_address", "tail_number", "callsign", "airline"} {
		v.SetDefault(prefix+"."+key, []string{})
	}
	v.SetDefault(prefix+".max_age", 0)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
