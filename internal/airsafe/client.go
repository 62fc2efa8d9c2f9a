// Package airsafe is a client for the AirSafe v2 targets API.
//
// Two endpoints are supported: /v2/targets/history, a bounded request
// answered with newline-delimited JSON, and /v2/targets/stream, a long-lived
// response delivering target updates for as long as the server keeps the
// connection open. Neither call is retried: a 401 yields *AuthorizationError
// and any other failure yields *TransportError.
package airsafe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"airsafe_tracker/internal/fragment"
)

const (
	DefaultBaseURL   = "https://api.airsafe.spire.com"
	DefaultChunkSize = 32 * 1024

	StreamPath  = "/v2/targets/stream"
	HistoryPath = "/v2/targets/history"
)

// Compression modes accepted by the stream endpoint.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	Token     string
	ChunkSize int // Read buffer for stream chunks.

	// Base is the transport under the bearer-token layer; nil uses
	// http.DefaultTransport.
	Base http.RoundTripper
}

// Client calls the AirSafe v2 targets API.
type Client struct {
	base      *url.URL
	http      *http.Client
	chunkSize int
}

// New creates a client. The token is sent as a bearer token on every request.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if strings.TrimSpace(opts.Token) == "" {
		return nil, eris.New("airsafe: token is required")
	}

	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, eris.Wrap(err, "airsafe: parse base url")
	}

	if opts.Base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: opts.Base})
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
	hc := oauth2.NewClient(ctx, ts)
	// No client timeout: the stream runs until the server closes it.
	hc.Timeout = 0

	return &Client{base: base, http: hc, chunkSize: opts.ChunkSize}, nil
}

// HistoryQuery selects a bounded window of target updates.
type HistoryQuery struct {
	ICAOAddress string
	Start       time.Time
	End         time.Time
	Filters     *Filters
}

// History fetches the target updates for a time window. Lines that fail to
// decode are returned in the result rather than failing the call.
func (c *Client) History(ctx context.Context, q HistoryQuery) (fragment.LineResult, error) {
	params := url.Values{}
	q.Filters.Encode(params)
	if q.ICAOAddress != "" {
		params.Set("icao_address", q.ICAOAddress)
	}
	if !q.Start.IsZero() {
		params.Set("start", formatTime(q.Start))
	}
	if !q.End.IsZero() {
		params.Set("end", formatTime(q.End))
	}

	resp, err := c.get(ctx, HistoryPath, params)
	if err != nil {
		return fragment.LineResult{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	res, err := fragment.ParseLines(resp.Body)
	if err != nil {
		return res, &TransportError{Endpoint: HistoryPath, Err: err}
	}

	zap.L().Debug("history fetched",
		zap.Int("lines", res.Lines),
		zap.Int("targets", len(res.Targets)),
		zap.Int("decode_errors", len(res.Errors)),
	)
	return res, nil
}

// StreamQuery configures the live stream.
type StreamQuery struct {
	Compression   string // CompressionNone (default) or CompressionGzip.
	LateFilter    bool
	PositionToken string // "BEGINNING", "LATEST" or a token from a previous stream.
	Filters       *Filters
}

// Stream opens the live stream. The caller must Close the returned reader.
func (c *Client) Stream(ctx context.Context, q StreamQuery) (*ChunkReader, error) {
	if q.Compression == "" {
		q.Compression = CompressionNone
	}
	if q.Compression != CompressionNone && q.Compression != CompressionGzip {
		return nil, eris.Errorf("airsafe: unsupported compression %q", q.Compression)
	}

	params := url.Values{}
	q.Filters.Encode(params)
	params.Set("compression", q.Compression)
	params.Set("late_filter", strconv.FormatBool(q.LateFilter))
	if q.PositionToken != "" {
		params.Set("position_token", q.PositionToken)
	}

	resp, err := c.get(ctx, StreamPath, params)
	if err != nil {
		return nil, err
	}

	var body io.Reader = resp.Body
	// The transport has already inflated bodies sent with Content-Encoding.
	if q.Compression == CompressionGzip && !resp.Uncompressed {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, &TransportError{Endpoint: StreamPath, Err: err}
		}
		body = zr
	}

	zap.L().Info("stream connected", zap.String("url", resp.Request.URL.Redacted()))
	return &ChunkReader{
		body:   body,
		closer: resp.Body,
		buf:    make([]byte, c.chunkSize),
	}, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	u := *c.base
	u.Path += path
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "airsafe: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: path, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &AuthorizationError{Endpoint: path, Body: strings.TrimSpace(string(body))}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_ = resp.Body.Close()
		return nil, &TransportError{Endpoint: path, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// ChunkReader yields raw chunks of the stream body as they arrive.
type ChunkReader struct {
	body    io.Reader
	closer  io.Closer
	buf     []byte
	pending error
}

// Next blocks until the next chunk arrives. It returns io.EOF when the server
// ends the stream, ctx.Err() once ctx is done and *TransportError when the
// connection fails. The returned slice is only valid until the next call.
// A read already in flight is unblocked by cancelling the context the stream
// was opened with.
func (r *ChunkReader) Next(ctx context.Context) ([]byte, error) {
	if r.pending != nil {
		return nil, r.pending
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for {
		n, err := r.body.Read(r.buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.pending = io.EOF
			} else {
				r.pending = &TransportError{Endpoint: StreamPath, Err: err}
			}
		}
		if n > 0 {
			return r.buf[:n], nil
		}
		if r.pending != nil {
			return nil, r.pending
		}
	}
}

// Close releases the connection.
func (r *ChunkReader) Close() error {
	return r.closer.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
