// Package ingest runs the fetch, parse, fold and publish pipelines.
package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"airsafe_tracker/internal/airsafe"
	"airsafe_tracker/internal/fragment"
	"airsafe_tracker/internal/sink"
	"airsafe_tracker/internal/table"
)

// StreamOpener opens the live stream.
type StreamOpener interface {
	Stream(ctx context.Context, q airsafe.StreamQuery) (*airsafe.ChunkReader, error)
}

// Stream folds a live target stream into per-category tables and publishes a
// snapshot after every chunk. The tables belong to this pipeline alone; all
// mutation happens on the goroutine running Run.
type Stream struct {
	opener   StreamOpener
	query    airsafe.StreamQuery
	sink     sink.Sink
	reporter Reporter
	tables   *table.Tables
	log      *zap.Logger
	duration time.Duration

	mu    sync.Mutex
	stats Stats
}

// NewStream creates a stream pipeline. A nil reporter logs through zap.
func NewStream(opener StreamOpener, q airsafe.StreamQuery, s sink.Sink, r Reporter) *Stream {
	if r == nil {
		r = LogReporter{}
	}
	id := uuid.NewString()
	return &Stream{
		opener:   opener,
		query:    q,
		sink:     s,
		reporter: r,
		tables:   table.New(),
		log:      zap.L().With(zap.String("session", id)),
		stats:    Stats{Session: id},
	}
}

// WithDuration bounds a run: once d has elapsed, Run returns after the next
// chunk carrying a position token, so the last recorded token resumes exactly
// where this run stopped. Zero means no bound.
func (s *Stream) WithDuration(d time.Duration) *Stream {
	s.duration = d
	return s
}

// Run opens the stream and processes chunks until the server closes the
// connection, the transport fails, the duration bound is reached or ctx is
// cancelled. Authorization and
// transport failures are alerted once and returned; nothing is retried.
func (s *Stream) Run(ctx context.Context) error {
	r, err := s.opener.Stream(ctx, s.query)
	if err != nil {
		if ctx.Err() != nil {
			s.log.Info("stream cancelled before it opened")
			return nil
		}
		s.reporter.Alert(Classify(err), err)
		return err
	}
	defer func() { _ = r.Close() }()

	var deadline time.Time
	if s.duration > 0 {
		deadline = time.Now().Add(s.duration)
	}

	for {
		chunk, err := r.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.log.Info("stream closed by server", zap.String("position_token", s.Stats().PositionToken))
				return nil
			case ctx.Err() != nil:
				s.log.Info("stream cancelled", zap.String("position_token", s.Stats().PositionToken))
				return nil
			}
			s.reporter.Alert(Classify(err), err)
			return err
		}
		if s.applyChunk(ctx, chunk) && !deadline.IsZero() && !time.Now().Before(deadline) {
			s.log.Info("stream duration reached",
				zap.Duration("duration", s.duration),
				zap.String("position_token", s.Stats().PositionToken))
			return nil
		}
	}
}

// ApplyChunk parses one raw chunk, folds its targets into the tables and
// publishes a snapshot if any table is non-empty.
func (s *Stream) ApplyChunk(ctx context.Context, chunk []byte) {
	s.applyChunk(ctx, chunk)
}

// applyChunk reports whether the chunk carried a position token.
func (s *Stream) applyChunk(ctx context.Context, chunk []byte) bool {
	res := fragment.Parse(chunk)

	s.mu.Lock()
	st := &s.stats
	st.Chunks++
	st.Bytes += int64(len(chunk))
	st.Fragments += res.Fragments
	st.MissingID += res.MissingID
	st.DecodeErrors += len(res.Errors)
	st.Statuses += len(res.Statuses)
	if n := len(res.PositionTokens); n > 0 {
		st.PositionToken = res.PositionTokens[n-1]
	}

	for _, tg := range res.Targets {
		added, err := s.tables.Upsert(tg)
		if err != nil {
			st.UnknownCategory++
			s.log.Debug("dropping target",
				zap.String("icao_address", tg.ICAOAddress),
				zap.String("collection_type", string(tg.CollectionType)),
				zap.Error(err),
			)
			continue
		}
		st.Accepted++
		if added {
			st.Inserted++
		} else {
			st.Updated++
		}
	}

	publish := !s.tables.Empty()
	var snap table.Snapshot
	if publish {
		snap = s.tables.Snapshot()
		st.Publishes++
	}
	s.mu.Unlock()

	for _, e := range res.Errors {
		s.reporter.Notice(e)
	}
	for _, status := range res.Statuses {
		logStatus(s.log, status.Level, status.Message, status.Timestamp)
	}

	if publish && s.sink != nil {
		if err := s.sink.Publish(ctx, snap); err != nil {
			s.log.Warn("publish failed", zap.Error(err))
		}
	}
	return len(res.PositionTokens) > 0
}

// Tables returns the pipeline's tables. Only safe to read when Run is not
// executing.
func (s *Stream) Tables() *table.Tables {
	return s.tables
}

// Stats returns a copy of the counters. Safe for concurrent use.
func (s *Stream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func logStatus(log *zap.Logger, level, message, ts string) {
	fields := []zap.Field{zap.String("message", message), zap.String("timestamp", ts)}
	switch strings.ToUpper(level) {
	case "ERROR":
		log.Error("stream status", fields...)
	case "WARN", "WARNING":
		log.Warn("stream status", fields...)
	default:
		log.Debug("stream status", fields...)
	}
}
