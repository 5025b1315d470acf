package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrymomot/flagkit/pkg/evaluation"
)

// Config holds client connection settings.
type Config struct {
	BaseURL         string        `env:"FLAGKIT_BASE_URL,required"`
	APIKey          string        `env:"FLAGKIT_API_KEY,required"`
	Timeout         time.Duration `env:"FLAGKIT_TIMEOUT" envDefault:"5s"`
	CacheTTL        time.Duration `env:"FLAGKIT_CACHE_TTL" envDefault:"5m"`
	CacheSize       int           `env:"FLAGKIT_CACHE_SIZE" envDefault:"1000"`
	RefreshInterval time.Duration `env:"FLAGKIT_REFRESH_INTERVAL" envDefault:"1m"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger for fetch failures and refresh activity.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// FetchOption adjusts a single GetAllFlags call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	force bool
}

// ForceRefresh bypasses the fresh cache and always hits the server. The
// stale fallback still applies if the fetch fails.
func ForceRefresh() FetchOption {
	return func(o *fetchOptions) { o.force = true }
}

// Client evaluates flags against a flagkit server, caching whole-context
// snapshots locally so repeated lookups for the same context are free.
// Remote failures degrade to the last cached snapshot rather than errors.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	refreshInt time.Duration
	httpClient *http.Client
	cache      *Cache
	log        *slog.Logger

	mu            sync.Mutex
	lastContext   evaluation.Context
	refreshCancel context.CancelFunc
	refreshDone   chan struct{}
	closed        bool
}

// New creates a Client from cfg. BaseURL and APIKey are mandatory; the
// remaining fields fall back to sane defaults when zero.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrMissingBaseURL
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		refreshInt: cfg.RefreshInterval,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      NewCache(cfg.CacheSize, cfg.CacheTTL),
		log:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetAllFlags returns the evaluated flag snapshot for evalCtx. It never
// returns an error: on a remote failure it serves the last cached snapshot
// for the same context, even if expired, and an empty snapshot when no
// fetch has ever succeeded.
func (c *Client) GetAllFlags(ctx context.Context, evalCtx evaluation.Context, opts ...FetchOption) Flags {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}

	key := CanonicalKey(evalCtx)
	c.rememberContext(evalCtx)

	if !o.force {
		if flags, ok := c.cache.Get(key); ok {
			return flags
		}
	}

	flags, err := c.fetchAllFlags(ctx, evalCtx)
	if err != nil {
		c.log.WarnContext(ctx, "flag fetch failed, falling back to cache", "error", err)
		if stale, ok := c.cache.GetStale(key); ok {
			return stale
		}
		return Flags{}
	}

	c.cache.Set(key, flags)
	return flags
}

// IsEnabled fetches the snapshot for evalCtx and reports whether flagKey
// is enabled. Unknown flags and fetch failures without a cached snapshot
// report disabled.
func (c *Client) IsEnabled(ctx context.Context, flagKey string, evalCtx evaluation.Context) bool {
	return c.GetAllFlags(ctx, evalCtx).IsEnabled(flagKey)
}

// GetFlag fetches the snapshot for evalCtx and returns the result for
// flagKey.
func (c *Client) GetFlag(ctx context.Context, flagKey string, evalCtx evaluation.Context) (evaluation.Result, bool) {
	return c.GetAllFlags(ctx, evalCtx).Get(flagKey)
}

// HealthCheck reports whether the server answers its health endpoint.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/evaluate/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// StartBackgroundRefresh begins periodically re-fetching the most recently
// used context so its cached snapshot stays warm. It fails if a refresh
// loop is already running or the client is closed.
func (c *Client) StartBackgroundRefresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if c.refreshCancel != nil {
		return ErrRefreshRunning
	}

	interval := c.refreshInt
	if interval <= 0 {
		interval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.refreshCancel = cancel
	c.refreshDone = done

	go c.refreshLoop(ctx, done, interval)
	return nil
}

// StopBackgroundRefresh stops the refresh loop and waits for it to exit.
// It is a no-op when no loop is running.
func (c *Client) StopBackgroundRefresh() {
	c.mu.Lock()
	cancel := c.refreshCancel
	done := c.refreshDone
	c.refreshCancel = nil
	c.refreshDone = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// CleanupCache sweeps expired snapshots out of the local cache and reports
// how many were removed. Swept contexts lose their stale fallback.
func (c *Client) CleanupCache() int {
	return c.cache.Cleanup()
}

// ClearCache drops every cached snapshot.
func (c *Client) ClearCache() {
	c.cache.Clear()
}

// CacheLen returns the number of cached context snapshots.
func (c *Client) CacheLen() int {
	return c.cache.Len()
}

// Close stops the background refresh and marks the client unusable for
// further refresh starts. In-flight GetAllFlags calls are unaffected.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.StopBackgroundRefresh()
	c.cache.Clear()
	return nil
}

func (c *Client) refreshLoop(ctx context.Context, done chan struct{}, interval time.Duration) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			evalCtx := c.lastContext
			c.mu.Unlock()
			if evalCtx == nil {
				continue
			}
			c.log.DebugContext(ctx, "refreshing cached flags", "context_key", CanonicalKey(evalCtx))
			c.GetAllFlags(ctx, evalCtx, ForceRefresh())
		}
	}
}

func (c *Client) rememberContext(evalCtx evaluation.Context) {
	c.mu.Lock()
	c.lastContext = evalCtx
	c.mu.Unlock()
}

type flagsEnvelope struct {
	Success bool            `json:"success"`
	Data    Flags           `json:"data"`
	Error   json.RawMessage `json:"error,omitempty"`
}

func (c *Client) fetchAllFlags(ctx context.Context, evalCtx evaluation.Context) (Flags, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := map[string]any{"context": evalCtx}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evaluate/flags", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var envelope flagsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("server reported failure: %s", string(envelope.Error))
	}
	if envelope.Data == nil {
		envelope.Data = Flags{}
	}
	return envelope.Data, nil
}
