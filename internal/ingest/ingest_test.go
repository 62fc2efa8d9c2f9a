package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airsafe_tracker/internal/airsafe"
	"airsafe_tracker/internal/fragment"
	"airsafe_tracker/internal/simulate"
	"airsafe_tracker/internal/sink"
	"airsafe_tracker/internal/table"
	"airsafe_tracker/internal/target"
)

type recorder struct {
	mu      sync.Mutex
	alerts  []AlertKind
	notices []error
}

func (r *recorder) Alert(kind AlertKind, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, kind)
}

func (r *recorder) Notice(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, err)
}

func newClient(t *testing.T, url, token string) *airsafe.Client {
	t.Helper()
	c, err := airsafe.New(context.Background(), airsafe.Options{BaseURL: url, Token: token, ChunkSize: 256})
	require.NoError(t, err)
	return c
}

func TestApplyChunkInsertThenUpdate(t *testing.T) {
	mem := sink.NewMemory()
	s := NewStream(nil, airsafe.StreamQuery{}, mem, &recorder{})
	ctx := context.Background()

	s.ApplyChunk(ctx, []byte(`{"icao_address":"AA1","latitude":1,"longitude":2,"collection_type":"satellite"}`))

	snap, _ := mem.Latest()
	sat, ok := snap.Dataset(target.Satellite)
	require.True(t, ok)
	require.Len(t, sat.Rows, 1)
	assert.Equal(t, "AA1", sat.Rows[0][1])
	assert.Equal(t, 2.0, sat.Rows[0][2])
	assert.Equal(t, 1.0, sat.Rows[0][3])
	assert.Equal(t, "aircraft_satellite", sat.Label())

	ter, _ := snap.Dataset(target.Terrestrial)
	assert.Empty(t, ter.Rows)

	s.ApplyChunk(ctx, []byte(`{"icao_address":"AA1","latitude":5,"longitude":2,"collection_type":"satellite"}`))

	snap, _ = mem.Latest()
	sat, _ = snap.Dataset(target.Satellite)
	require.Len(t, sat.Rows, 1)
	assert.Equal(t, 5.0, sat.Rows[0][3])
	assert.Equal(t, 0, s.Tables().Table(target.Satellite).IndexOf("AA1"))

	st := s.Stats()
	assert.Equal(t, 2, st.Chunks)
	assert.Equal(t, 2, st.Accepted)
	assert.Equal(t, 1, st.Inserted)
	assert.Equal(t, 1, st.Updated)
	assert.Equal(t, 2, st.Publishes)
	assert.Equal(t, 2, mem.Publishes())
}

func TestApplyChunkSkipsTruncatedTail(t *testing.T) {
	mem := sink.NewMemory()
	s := NewStream(nil, airsafe.StreamQuery{}, mem, &recorder{})

	s.ApplyChunk(context.Background(), []byte(
		`{"icao_address":"B","collection_type":"terrestrial"}{"icao_add`,
	))

	snap, _ := mem.Latest()
	ter, _ := snap.Dataset(target.Terrestrial)
	require.Len(t, ter.Targets, 1)
	assert.Equal(t, "B", ter.Targets[0].ICAOAddress)
	assert.Equal(t, 1, s.Stats().Fragments)
}

func TestApplyChunkNoPublishWhileEmpty(t *testing.T) {
	mem := sink.NewMemory()
	rec := &recorder{}
	s := NewStream(nil, airsafe.StreamQuery{}, mem, rec)

	s.ApplyChunk(context.Background(), []byte(
		`{"status":{"timestamp":"t","level":"INFO","message":"keep-alive"}}`+
			`{"icao_address":"C","collection_type":"other"}`+
			`{"icao_address": oops}`+
			`{"position_token":"tok-1"}`,
	))

	assert.Equal(t, 0, mem.Publishes())
	st := s.Stats()
	assert.Equal(t, 1, st.UnknownCategory)
	assert.Equal(t, 1, st.DecodeErrors)
	assert.Equal(t, 1, st.Statuses)
	assert.Equal(t, "tok-1", st.PositionToken)
	assert.Equal(t, 0, st.Publishes)
	require.Len(t, rec.notices, 1)

	var de *fragment.DecodeError
	assert.True(t, errors.As(rec.notices[0], &de))
}

type failingSink struct{ calls int }

func (f *failingSink) Name() string { return "failing" }
func (f *failingSink) Publish(context.Context, table.Snapshot) error {
	f.calls++
	return errors.New("boom")
}
func (f *failingSink) Close() error { return nil }

func TestApplyChunkSinkErrorIsNotFatal(t *testing.T) {
	fs := &failingSink{}
	s := NewStream(nil, airsafe.StreamQuery{}, fs, &recorder{})

	s.ApplyChunk(context.Background(), []byte(`{"icao_address":"D","collection_type":"satellite"}`))
	s.ApplyChunk(context.Background(), []byte(`{"icao_address":"E","collection_type":"satellite"}`))

	assert.Equal(t, 2, fs.calls)
	assert.Equal(t, 2, s.Tables().Table(target.Satellite).Len())
}

func TestRunUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Unauthorized"}`))
	}))
	defer srv.Close()

	mem := sink.NewMemory()
	rec := &recorder{}
	s := NewStream(newClient(t, srv.URL, "bad"), airsafe.StreamQuery{}, mem, rec)

	err := s.Run(context.Background())
	require.Error(t, err)

	var authErr *airsafe.AuthorizationError
	assert.True(t, errors.As(err, &authErr))
	assert.Equal(t, []AlertKind{AlertUnauthorized}, rec.alerts)
	assert.Equal(t, 0, s.Stats().Chunks)
	assert.Equal(t, 0, mem.Publishes())
}

func TestRunConnectionDroppedMidStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"target":{"icao_address":"AA1","collection_type":"satellite","latitude":1,"longitude":2}}` + "\n"))
		w.(http.Flusher).Flush()

		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()

	mem := sink.NewMemory()
	rec := &recorder{}
	s := NewStream(newClient(t, srv.URL, "tok"), airsafe.StreamQuery{}, mem, rec)

	err := s.Run(context.Background())
	require.Error(t, err)

	var transportErr *airsafe.TransportError
	assert.True(t, errors.As(err, &transportErr))
	assert.Equal(t, []AlertKind{AlertIngestion}, rec.alerts)
	assert.Equal(t, 1, s.Stats().Chunks)
	assert.Equal(t, 1, s.Stats().Accepted)
	assert.Equal(t, 1, mem.Publishes())
}

func TestRunStopsAtPositionTokenAfterDuration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte(`{"target":{"icao_address":"AA1","collection_type":"satellite","latitude":1,"longitude":2}}` + "\n"))
		flusher.Flush()
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte(`{"position_token":"tok1"}` + "\n"))
		flusher.Flush()
		// Keep the stream open; only the duration bound ends the run.
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mem := sink.NewMemory()
	rec := &recorder{}
	s := NewStream(newClient(t, srv.URL, "tok"), airsafe.StreamQuery{}, mem, rec).WithDuration(time.Millisecond)

	require.NoError(t, s.Run(ctx))
	assert.NoError(t, ctx.Err(), "run ended by the timeout, not the duration bound")
	assert.Equal(t, "tok1", s.Stats().PositionToken)
	assert.Equal(t, 1, s.Stats().Accepted)
	assert.Empty(t, rec.alerts)
}

type openerFunc func(ctx context.Context, q airsafe.StreamQuery) (*airsafe.ChunkReader, error)

func (f openerFunc) Stream(ctx context.Context, q airsafe.StreamQuery) (*airsafe.ChunkReader, error) {
	return f(ctx, q)
}

func TestRunCancelledWhileOpening(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	opener := openerFunc(func(ctx context.Context, _ airsafe.StreamQuery) (*airsafe.ChunkReader, error) {
		return nil, &airsafe.TransportError{Endpoint: airsafe.StreamPath, Err: ctx.Err()}
	})
	s := NewStream(opener, airsafe.StreamQuery{}, sink.NewMemory(), rec)

	assert.NoError(t, s.Run(ctx))
	assert.Empty(t, rec.alerts)
}

func TestRunTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := &recorder{}
	s := NewStream(newClient(t, srv.URL, "tok"), airsafe.StreamQuery{}, nil, rec)

	require.Error(t, s.Run(context.Background()))
	assert.Equal(t, []AlertKind{AlertIngestion}, rec.alerts)
}

func TestRunAgainstSimulator(t *testing.T) {
	gen := simulate.NewGenerator(11, 6)
	srv := httptest.NewServer(simulate.NewServer(simulate.ServerOptions{
		Token:      "secret",
		Generator:  gen,
		Updates:    120,
		MaxChunk:   200,
		TokenEvery: 25,
	}))
	defer srv.Close()

	mem := sink.NewMemory()
	rec := &recorder{}
	s := NewStream(newClient(t, srv.URL, "secret"), airsafe.StreamQuery{}, mem, rec)

	require.NoError(t, s.Run(context.Background()))
	assert.Empty(t, rec.alerts)

	st := s.Stats()
	assert.Positive(t, st.Chunks)
	assert.Positive(t, st.Accepted)
	assert.Positive(t, st.Publishes)
	assert.NotEmpty(t, st.Session)

	// Every tracked aircraft belongs to the generated fleet and appears once.
	fleet := map[string]bool{}
	for _, tg := range gen.Fleet() {
		fleet[tg.ICAOAddress] = true
	}
	snap, _ := mem.Latest()
	seen := map[string]bool{}
	for _, tg := range snap.Targets() {
		assert.True(t, fleet[tg.ICAOAddress])
		assert.False(t, seen[tg.ICAOAddress])
		seen[tg.ICAOAddress] = true
	}
	assert.LessOrEqual(t, snap.Len(), 6)
}

func TestRunCancelled(t *testing.T) {
	srv := httptest.NewServer(simulate.NewServer(simulate.ServerOptions{
		Token:     "secret",
		Generator: simulate.NewGenerator(5, 3),
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	mem := sink.NewMemory()
	rec := &recorder{}
	s := NewStream(newClient(t, srv.URL, "secret"), airsafe.StreamQuery{}, mem, rec)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return mem.Publishes() > 0 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	require.NoError(t, <-done)
	assert.Empty(t, rec.alerts)
}

type fakeFetcher struct {
	res fragment.LineResult
	err error
}

func (f fakeFetcher) History(context.Context, airsafe.HistoryQuery) (fragment.LineResult, error) {
	return f.res, f.err
}

func TestHistoryPublishesInOrder(t *testing.T) {
	mem := sink.NewMemory()
	rec := &recorder{}
	res := fragment.LineResult{
		Lines: 3,
		Targets: []target.Target{
			{ICAOAddress: "A", Timestamp: "1"},
			{ICAOAddress: "A", Timestamp: "2"},
		},
		Errors: []*fragment.DecodeError{{Line: 2, Err: errors.New("bad")}},
	}

	got, err := NewHistory(fakeFetcher{res: res}, airsafe.HistoryQuery{ICAOAddress: "A"}, mem, rec).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	require.Len(t, mem.History(), 2)
	assert.Equal(t, "1", mem.History()[0].Timestamp)
	assert.Equal(t, "2", mem.History()[1].Timestamp)
	assert.Len(t, rec.notices, 1)
}

func TestHistoryUnauthorized(t *testing.T) {
	mem := sink.NewMemory()
	rec := &recorder{}
	err := &airsafe.AuthorizationError{Endpoint: airsafe.HistoryPath}

	_, got := NewHistory(fakeFetcher{err: err}, airsafe.HistoryQuery{}, mem, rec).Run(context.Background())
	require.Error(t, got)
	assert.Equal(t, []AlertKind{AlertUnauthorized}, rec.alerts)
	assert.Equal(t, 0, mem.Publishes())
}
