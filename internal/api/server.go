// Package api serves the latest ingestion state over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"airsafe_tracker/internal/ingest"
	"airsafe_tracker/internal/sink"
	"airsafe_tracker/internal/storage"
	"airsafe_tracker/internal/table"
	"airsafe_tracker/internal/target"
)

// Source provides the state served by the API. *sink.Memory implements it.
type Source interface {
	Latest() (table.Snapshot, time.Time)
	History() []target.Target
}

// StatsSource reports pipeline counters. *ingest.Stream implements it.
type StatsSource interface {
	Stats() ingest.Stats
}

// PositionStore looks up aircraft that are not in the current snapshot.
// The SQLite and Postgres stores implement it.
type PositionStore interface {
	GetPosition(ctx context.Context, icao string) (*storage.StoredPosition, error)
}

// Config holds configuration for the API server.
type Config struct {
	Addr           string
	AuthEnabled    bool
	APIKeys        []string // Valid API keys.
	AllowedOrigins []string // Defaults to any origin.
}

// Server serves snapshots, history and stats.
type Server struct {
	src         Source
	stats       StatsSource
	store       PositionStore
	addr        string
	authEnabled bool
	apiKeys     map[string]bool
	origins     []string
}

// NewServer creates a server over src.
func NewServer(src Source, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		src:         src,
		addr:        cfg.Addr,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
		origins:     origins,
	}
}

// WithStats attaches a pipeline whose counters are served at /stats.
func (s *Server) WithStats(st StatsSource) *Server {
	s.stats = st
	return s
}

// WithStore attaches a store used when an aircraft is not in memory.
func (s *Server) WithStore(ps PositionStore) *Server {
	s.store = ps
	return s
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required).
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			if s.authEnabled {
				r.Use(s.authMiddleware)
			}
			r.Get("/datasets", s.handleDatasets)
			r.Get("/tables/{category}", s.handleTable)
			r.Get("/aircraft/{icao}", s.handleAircraft)
			r.Get("/history", s.handleHistory)
			r.Get("/stats", s.handleStats)
		})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("api listening", zap.String("addr", s.addr), zap.Bool("auth", s.authEnabled))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return eris.Wrap(err, "api server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "api shutdown")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "api server")
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")

		if apiKey == "" {
			if key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				apiKey = key
			}
		}

		// Query parameter for simple testing.
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}
		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, updated := s.src.Latest()
	resp := map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if !updated.IsZero() {
		resp["last_publish"] = updated.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	snap, _ := s.src.Latest()
	if snap.Datasets == nil {
		snap = table.New().Snapshot()
	}
	writeJSON(w, http.StatusOK, sink.Kepler(snap))
}

// TableResponse is the JSON response for /tables/{category}.
type TableResponse struct {
	Label   string       `json:"label"`
	Columns []string     `json:"columns"`
	Rows    []target.Row `json:"rows"`
	Count   int          `json:"count"`
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	category := target.Category(strings.ToLower(chi.URLParam(r, "category")))
	if !category.Known() {
		writeError(w, http.StatusNotFound, "Unknown category")
		return
	}

	resp := TableResponse{
		Label:   table.DatasetPrefix + string(category),
		Columns: target.Columns,
		Rows:    []target.Row{},
	}
	snap, _ := s.src.Latest()
	if d, ok := snap.Dataset(category); ok && d.Rows != nil {
		resp.Rows = d.Rows
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit >= 0 && limit < len(resp.Rows) {
		resp.Rows = resp.Rows[:limit]
	}
	resp.Count = len(resp.Rows)
	writeJSON(w, http.StatusOK, resp)
}

// AircraftResponse is the JSON response for /aircraft/{icao}.
type AircraftResponse struct {
	Source string                  `json:"source"`
	Target *target.Target          `json:"target,omitempty"`
	Stored *storage.StoredPosition `json:"stored,omitempty"`
}

func (s *Server) handleAircraft(w http.ResponseWriter, r *http.Request) {
	icao := strings.ToUpper(chi.URLParam(r, "icao"))

	snap, _ := s.src.Latest()
	for _, d := range snap.Datasets {
		for i := range d.Targets {
			if strings.EqualFold(d.Targets[i].ICAOAddress, icao) {
				writeJSON(w, http.StatusOK, AircraftResponse{Source: "stream", Target: &d.Targets[i]})
				return
			}
		}
	}

	if s.store != nil {
		p, err := s.store.GetPosition(r.Context(), icao)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if p != nil {
			writeJSON(w, http.StatusOK, AircraftResponse{Source: "store", Stored: p})
			return
		}
	}

	writeError(w, http.StatusNotFound, "Aircraft not tracked")
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := s.src.History()
	if history == nil {
		history = []target.Target{}
	}

	if r.URL.Query().Get("format") == "geojson" {
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(sink.FeatureCollection(history, true))
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusNotFound, "No stream running")
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Stats())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
