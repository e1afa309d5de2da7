package hashkey

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"hk-gateway/pkg/exchanges/common"
)

// DefaultBaseURL is the HashKey Global REST endpoint.
const DefaultBaseURL = "https://api-glb.hashkey.com"

// APIKeyHeader carries the access key on authenticated calls.
const APIKeyHeader = "X-HK-APIKEY"

// Config holds HashKey credentials and transport settings.
type Config struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	RecvWindow int64 // ms
	TimeOffset time.Duration
	TimeSync   bool
	Timeout    time.Duration
	RateRPS    float64
	RateBurst  int
}

// Observer receives the outcome of every outbound call.
type Observer interface {
	ObserveExchangeCall(method, path string, latency time.Duration, err error)
}

// Response is a successful upstream reply.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Client issues signed and public requests against the HashKey REST API.
type Client struct {
	cfg         Config
	baseURL     string
	httpClient  *http.Client
	clock       common.Clock
	timeSync    *common.TimeSync
	rateLimiter *common.RateLimiter
	observer    Observer
	log         *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock replaces the timestamp source.
func WithClock(clock common.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithObserver registers a call observer (metrics).
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New builds a client. Defaults: base URL DefaultBaseURL, recvWindow 5000ms, 10s timeout.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		cfg:         cfg,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: common.NewRateLimiter(cfg.RateRPS, cfg.RateBurst),
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		var serverTime func(context.Context) (int64, error)
		if cfg.TimeSync {
			serverTime = c.ServerTime
		}
		c.timeSync = common.NewTimeSync(cfg.TimeOffset, serverTime, c.log)
		c.clock = c.timeSync
	}
	return c
}

// StartTimeSync begins periodic server time sync when enabled in Config.
func (c *Client) StartTimeSync(ctx context.Context) {
	if c.timeSync != nil {
		c.timeSync.Start(ctx)
	}
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, params *Params, signed bool) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, params, signed)
}

// Post issues a POST request; parameters travel in the query string.
func (c *Client) Post(ctx context.Context, path string, params *Params, signed bool) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, params, signed)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, params *Params, signed bool) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, params, signed)
}

// SignedQuery appends recvWindow and timestamp to params, signs the encoded
// string and returns it with the signature appended last.
func (c *Client) SignedQuery(params *Params) string {
	p := params.Clone()
	p.Add("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	p.Add("timestamp", strconv.FormatInt(c.clock.NowMillis(), 10))
	payload := p.Encode()
	sig := Sign(c.cfg.APISecret, payload)
	if payload == "" {
		return "signature=" + sig
	}
	return payload + "&signature=" + sig
}

func (c *Client) do(ctx context.Context, method, path string, params *Params, signed bool) (resp *Response, err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveExchangeCall(method, path, time.Since(start), err)
		}
	}()

	if signed && (c.cfg.APIKey == "" || c.cfg.APISecret == "") {
		return nil, fmt.Errorf("hashkey: API key/secret required")
	}

	query := params.Encode()
	if signed {
		query = c.SignedQuery(params)
	}
	endpoint := c.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate wait: %w", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	if signed {
		req.Header.Set(APIKeyHeader, c.cfg.APIKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("hashkey request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	c.log.Debug("hashkey response",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", res.StatusCode),
		zap.ByteString("body", body),
	)

	if apiErr := parseAPIError(res.StatusCode, body); apiErr != nil {
		return nil, apiErr
	}
	return &Response{StatusCode: res.StatusCode, Body: rawOrString(body)}, nil
}
