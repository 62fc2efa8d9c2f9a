package airsafe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(context.Background(), Options{BaseURL: url, Token: "test-token", ChunkSize: 64})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New(context.Background(), Options{BaseURL: "http://localhost"})
	assert.Error(t, err)
}

func TestHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, HistoryPath, r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "398568", r.URL.Query().Get("icao_address"))
		assert.Equal(t, "2021-07-27T22:00:00.000Z", r.URL.Query().Get("start"))
		assert.Equal(t, "2021-07-28T22:00:00.000Z", r.URL.Query().Get("end"))
		assert.Equal(t, "48,49.5", r.URL.Query().Get("latitude_between"))

		_, _ = io.WriteString(w, `{"target":{"icao_address":"398568","latitude":48.1,"longitude":2.1}}`+"\n")
		_, _ = io.WriteString(w, "not json\n\n")
		_, _ = io.WriteString(w, `{"target":{"icao_address":"398568","latitude":48.2,"longitude":2.2}}`+"\n")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.History(context.Background(), HistoryQuery{
		ICAOAddress: "398568",
		Start:       time.Date(2021, 7, 27, 22, 0, 0, 0, time.UTC),
		End:         time.Date(2021, 7, 28, 22, 0, 0, 0, time.UTC),
		Filters:     &Filters{Latitude: &Range{Min: 48, Max: 49.5}},
	})
	require.NoError(t, err)

	require.Len(t, res.Targets, 2)
	assert.InDelta(t, 48.2, res.Targets[1].Lat(), 1e-9)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Line)
}

func TestHistory_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"invalid token"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).History(context.Background(), HistoryQuery{ICAOAddress: "A"})

	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Body, "invalid token")
}

func TestHistory_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).History(context.Background(), HistoryQuery{})

	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, http.StatusBadGateway, tErr.StatusCode)
}

func TestHistory_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url).History(context.Background(), HistoryQuery{})

	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Zero(t, tErr.StatusCode)
}

func TestStream_Chunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, StreamPath, r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "none", r.URL.Query().Get("compression"))
		assert.Equal(t, "true", r.URL.Query().Get("late_filter"))
		assert.Equal(t, "BEGINNING", r.URL.Query().Get("position_token"))

		flusher := w.(http.Flusher)
		_, _ = io.WriteString(w, `{"target":{"icao_address":"A1"`)
		flusher.Flush()
		_, _ = io.WriteString(w, `}}`+"\n")
		flusher.Flush()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	r, err := c.Stream(context.Background(), StreamQuery{LateFilter: true, PositionToken: "BEGINNING"})
	require.NoError(t, err)
	defer r.Close()

	var got []byte
	for {
		chunk, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, chunk...)
	}
	assert.Equal(t, `{"target":{"icao_address":"A1"}}`+"\n", string(got))

	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_NextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"position_token":"abc"}`+"\n")
	}))
	defer srv.Close()

	r, err := newTestClient(t, srv.URL).Stream(context.Background(), StreamQuery{})
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStream_Gzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.URL.Query().Get("compression"))
		zw := gzip.NewWriter(w)
		_, _ = io.WriteString(zw, `{"position_token":"abc"}`+"\n")
		_ = zw.Close()
	}))
	defer srv.Close()

	r, err := newTestClient(t, srv.URL).Stream(context.Background(), StreamQuery{Compression: CompressionGzip})
	require.NoError(t, err)
	defer r.Close()

	var got []byte
	for {
		chunk, err := r.Next(context.Background())
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		got = append(got, chunk...)
	}
	assert.Equal(t, `{"position_token":"abc"}`+"\n", string(got))
}

func TestStream_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r, err := newTestClient(t, srv.URL).Stream(context.Background(), StreamQuery{})
	assert.Nil(t, r)

	var authErr *AuthorizationError
	assert.ErrorAs(t, err, &authErr)
}

func TestStream_UnsupportedCompression(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.Stream(context.Background(), StreamQuery{Compression: "brotli"})
	assert.Error(t, err)
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("33.60, 33.67")
	require.NoError(t, err)
	assert.Equal(t, &Range{Min: 33.60, Max: 33.67}, r)

	r, err = ParseRange("")
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = ParseRange("33.60")
	assert.Error(t, err)
	_, err = ParseRange("a,b")
	assert.Error(t, err)
}
