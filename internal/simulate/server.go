package simulate

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"airsafe_tracker/internal/airsafe"
	"airsafe_tracker/internal/target"
)

// ServerOptions configures a synthetic AirSafe API.
type ServerOptions struct {
	Token     string
	Generator *Generator

	// Updates is the number of target lines a stream sends before the server
	// closes it. Zero streams until the client disconnects.
	Updates int
	// Interval is the pause between writes. Zero writes as fast as possible.
	Interval time.Duration
	// MaxChunk bounds the random size of each write, so that lines are split
	// across chunks the way the real stream splits them.
	MaxChunk int
	// TokenEvery emits a position token after this many targets.
	TokenEvery int
	// HistorySize is the number of lines a history request returns.
	HistorySize int
}

// Server serves /v2/targets/stream and /v2/targets/history.
type Server struct {
	opts ServerOptions
	mux  *chi.Mux
}

// NewServer creates the handler.
func NewServer(opts ServerOptions) *Server {
	if opts.Generator == nil {
		opts.Generator = NewGenerator(time.Now().UnixNano(), 25)
	}
	if opts.MaxChunk <= 0 {
		opts.MaxChunk = 512
	}
	if opts.TokenEvery <= 0 {
		opts.TokenEvery = 50
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 100
	}

	s := &Server{opts: opts, mux: chi.NewRouter()}
	s.mux.Use(s.authorize)
	s.mux.Get(airsafe.StreamPath, s.handleStream)
	s.mux.Get(airsafe.HistoryPath, s.handleHistory)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token != s.opts.Token {
			http.Error(w, `{"message":"Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gen := s.opts.Generator
	flusher, _ := w.(http.Flusher)

	w.Header().Set("Content-Type", "application/x-ndjson")

	var out io.Writer = w
	var gz *gzip.Writer
	if r.URL.Query().Get("compression") == airsafe.CompressionGzip {
		gz = gzip.NewWriter(w)
		defer func() { _ = gz.Close() }()
		out = gz
	}

	flush := func() {
		if gz != nil {
			_ = gz.Flush()
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	// Lines are written in random-sized pieces; a tail shorter than the
	// next piece waits for more data unless this is the final write.
	var pending []byte
	write := func(final bool) bool {
		for len(pending) > 0 {
			n := gen.chunkSize(s.opts.MaxChunk)
			if n >= len(pending) {
				if !final {
					return true
				}
				n = len(pending)
			}
			if _, err := out.Write(pending[:n]); err != nil {
				return false
			}
			pending = pending[n:]
			flush()
			if s.opts.Interval > 0 {
				select {
				case <-ctx.Done():
					return false
				case <-time.After(s.opts.Interval):
				}
			}
		}
		return true
	}

	zap.L().Debug("simulated stream opened", zap.String("query", r.URL.RawQuery))

	for sent := 0; s.opts.Updates == 0 || sent < s.opts.Updates; sent++ {
		if ctx.Err() != nil {
			return
		}
		tg := gen.Next()
		pending = appendLine(pending, target.Envelope{Target: &tg})
		if (sent+1)%s.opts.TokenEvery == 0 {
			pending = appendLine(pending, target.Envelope{PositionToken: uuid.NewString()})
			pending = appendLine(pending, target.Envelope{Status: &target.Status{
				Timestamp: tg.Timestamp,
				Level:     "INFO",
				Message:   "keep-alive",
			}})
		}
		if !write(false) {
			return
		}
	}
	write(true)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	icao := r.URL.Query().Get("icao_address")
	n := s.opts.HistorySize
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		n = v
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	var buf []byte
	for _, tg := range s.opts.Generator.Track(icao, n) {
		buf = appendLine(buf, target.Envelope{Target: &tg})
	}
	_, _ = w.Write(buf)
}

func appendLine(buf []byte, e target.Envelope) []byte {
	b, err := json.Marshal(e)
	if err != nil {
		return buf
	}
	buf = append(buf, b...)
	return append(buf, '\n')
}
