package simulate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airsafe_tracker/internal/airsafe"
	"airsafe_tracker/internal/fragment"
	"airsafe_tracker/internal/target"
)

func TestGeneratorDeterministic(t *testing.T) {
	a := NewGenerator(42, 10)
	b := NewGenerator(42, 10)

	require.Len(t, a.Fleet(), 10)
	assert.Equal(t, a.Fleet()[3].ICAOAddress, b.Fleet()[3].ICAOAddress)

	seen := map[string]bool{}
	for _, tg := range a.Fleet() {
		assert.False(t, seen[tg.ICAOAddress], "duplicate icao %s", tg.ICAOAddress)
		seen[tg.ICAOAddress] = true
		assert.Len(t, tg.ICAOAddress, 6)
		assert.True(t, tg.CollectionType.Known())
		assert.True(t, tg.HasPosition())
	}
}

func TestGeneratorNextMovesFleetMember(t *testing.T) {
	g := NewGenerator(7, 5)
	ids := map[string]bool{}
	for _, tg := range g.Fleet() {
		ids[tg.ICAOAddress] = true
	}

	for _, tg := range g.Take(50) {
		assert.True(t, ids[tg.ICAOAddress])
		assert.NotEmpty(t, tg.Timestamp)
		assert.InDelta(t, 0, tg.Lat(), 85)
		assert.InDelta(t, 0, tg.Lon(), 180)
	}
}

func TestGeneratorTrack(t *testing.T) {
	g := NewGenerator(1, 3)
	track := g.Track("ABC123", 5)

	require.Len(t, track, 5)
	for i, tg := range track {
		assert.Equal(t, "ABC123", tg.ICAOAddress)
		if i > 0 {
			assert.Less(t, track[i-1].Timestamp, tg.Timestamp)
		}
	}
}

func TestServerRejectsBadToken(t *testing.T) {
	srv := httptest.NewServer(NewServer(ServerOptions{Token: "secret"}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+airsafe.StreamPath, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServerStreamThroughClient(t *testing.T) {
	srv := httptest.NewServer(NewServer(ServerOptions{
		Token:      "secret",
		Generator:  NewGenerator(3, 4),
		Updates:    40,
		MaxChunk:   64,
		TokenEvery: 10,
	}))
	defer srv.Close()

	client, err := airsafe.New(context.Background(), airsafe.Options{BaseURL: srv.URL, Token: "secret"})
	require.NoError(t, err)

	r, err := client.Stream(context.Background(), airsafe.StreamQuery{})
	require.NoError(t, err)
	defer r.Close()

	// Reassemble the body; the lines are complete once the stream ends.
	var body []byte
	for {
		chunk, err := r.Next(context.Background())
		if err != nil {
			break
		}
		body = append(body, chunk...)
	}

	res, err := fragment.ParseLines(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Len(t, res.Targets, 40)
	assert.Empty(t, res.Errors)
}

func TestServerHistory(t *testing.T) {
	srv := httptest.NewServer(NewServer(ServerOptions{Token: "secret", Generator: NewGenerator(3, 2)}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+airsafe.HistoryPath+"?icao_address=AAAAAA&limit=7", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	n := 0
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var e target.Envelope
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		require.NotNil(t, e.Target)
		assert.Equal(t, "AAAAAA", e.Target.ICAOAddress)
		n++
	}
	assert.Equal(t, 7, n)
}
