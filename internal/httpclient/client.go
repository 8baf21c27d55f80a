// Package httpclient provides the resilient HTTP client used to poll
// playlists and download media segments.
//
// On top of the standard http.Client it adds:
//   - a circuit breaker per origin host so a dead CDN is not hammered
//   - retries with exponential backoff on transient status codes
//   - transparent gzip, deflate and brotli decompression
//   - a cookie jar, since some CDNs gate segments behind a manifest cookie
//   - query-string credential obfuscation in logs
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/basshelal/hls2vod/internal/config"
	"github.com/basshelal/hls2vod/internal/version"
)

// Common errors returned by the client.
var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
	ErrMaxRetries  = errors.New("max retries exceeded")
)

// Default configuration values.
const (
	DefaultTimeout            = 30 * time.Second
	DefaultRetryAttempts      = 3
	DefaultRetryDelay         = 1 * time.Second
	DefaultRetryMaxDelay      = 30 * time.Second
	DefaultCircuitThreshold   = 5
	DefaultCircuitTimeout     = 30 * time.Second
	DefaultCircuitHalfOpenMax = 1
	DefaultBackoffMultiplier  = 2.0
	DefaultMaxBodyBytes       = 256 << 20
)

// HTTP header constants.
const (
	HeaderAcceptEncoding  = "Accept-Encoding"
	HeaderContentEncoding = "Content-Encoding"
	HeaderUserAgent       = "User-Agent"

	acceptEncodingValue = "gzip, deflate, br"
)

// StatusError is returned by Fetch when the origin answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Config holds the configuration for the HTTP client.
type Config struct {
	// Timeout is the overall per-attempt request timeout.
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	RetryAttempts int

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration

	// RetryMaxDelay caps the exponential backoff.
	RetryMaxDelay time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// CircuitThreshold is the number of consecutive failures before the circuit opens.
	CircuitThreshold int

	// CircuitTimeout is how long the circuit stays open before probing again.
	CircuitTimeout time.Duration

	// CircuitHalfOpenMax is the number of probe requests allowed while half-open.
	CircuitHalfOpenMax int

	// UserAgent is sent with every request.
	UserAgent string

	// MaxBodyBytes bounds how much Fetch will read from a single response.
	MaxBodyBytes int64

	Logger *slog.Logger

	// BaseClient overrides the underlying http.Client. Mainly for tests.
	BaseClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:            DefaultTimeout,
		RetryAttempts:      DefaultRetryAttempts,
		RetryDelay:         DefaultRetryDelay,
		RetryMaxDelay:      DefaultRetryMaxDelay,
		BackoffMultiplier:  DefaultBackoffMultiplier,
		CircuitThreshold:   DefaultCircuitThreshold,
		CircuitTimeout:     DefaultCircuitTimeout,
		CircuitHalfOpenMax: DefaultCircuitHalfOpenMax,
		UserAgent:          version.UserAgent(),
		MaxBodyBytes:       DefaultMaxBodyBytes,
	}
}

// ConfigFrom maps the application's http_client section onto a client Config.
func ConfigFrom(cfg config.HTTPClientConfig, logger *slog.Logger) Config {
	c := DefaultConfig()
	if cfg.Timeout > 0 {
		c.Timeout = cfg.Timeout
	}
	c.RetryAttempts = cfg.RetryAttempts
	if cfg.RetryDelay > 0 {
		c.RetryDelay = cfg.RetryDelay
	}
	if cfg.CircuitThreshold > 0 {
		c.CircuitThreshold = cfg.CircuitThreshold
	}
	if cfg.CircuitTimeout > 0 {
		c.CircuitTimeout = cfg.CircuitTimeout
	}
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.Logger = logger
	return c
}

// Client is a resilient HTTP client with circuit breaker and retry support.
type Client struct {
	config   Config
	client   *http.Client
	breakers *breakerSet
	logger   *slog.Logger
}

// New creates a new resilient HTTP client with the given configuration.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if cfg.CircuitThreshold <= 0 {
		cfg.CircuitThreshold = DefaultCircuitThreshold
	}
	if cfg.CircuitHalfOpenMax <= 0 {
		cfg.CircuitHalfOpenMax = DefaultCircuitHalfOpenMax
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	baseClient := cfg.BaseClient
	if baseClient == nil {
		// publicsuffix keeps cookies scoped to the registrable domain so a
		// cookie set on cdn.example.com is sent to seg1.cdn.example.com.
		jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		baseClient = &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		}
	}

	return &Client{
		config: cfg,
		client: baseClient,
		logger: cfg.Logger,
		breakers: newBreakerSet(breakerPolicy{
			threshold: cfg.CircuitThreshold,
			cooldown:  cfg.CircuitTimeout,
			probes:    cfg.CircuitHalfOpenMax,
		}),
	}
}

// NewWithDefaults creates a new client with default configuration.
func NewWithDefaults() *Client {
	return New(DefaultConfig())
}

// Do executes an HTTP request with circuit breaker protection and automatic retries.
// Non-retryable error statuses are returned to the caller as ordinary responses.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Header.Get(HeaderUserAgent) == "" && c.config.UserAgent != "" {
		req.Header.Set(HeaderUserAgent, c.config.UserAgent)
	}
	if req.Header.Get(HeaderAcceptEncoding) == "" {
		req.Header.Set(HeaderAcceptEncoding, acceptEncodingValue)
	}

	cb := c.breakers.forHost(req.URL.Host)
	var lastErr error
	delay := c.config.RetryDelay
	target := ObfuscateURL(req.URL)

	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying request",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("url", target),
			)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}

			delay = time.Duration(float64(delay) * c.config.BackoffMultiplier)
			if delay > c.config.RetryMaxDelay {
				delay = c.config.RetryMaxDelay
			}
		}

		if !cb.allow() {
			lastErr = ErrCircuitOpen
			c.logger.Warn("circuit breaker open, skipping request",
				slog.String("url", target),
				slog.String("host", req.URL.Host),
				slog.String("state", cb.state().String()),
			)
			continue
		}

		start := time.Now()
		resp, err := c.client.Do(req.WithContext(ctx))
		elapsed := time.Since(start)

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			cb.failure()
			lastErr = err
			c.logger.Warn("request failed",
				slog.String("url", target),
				slog.Duration("duration", elapsed),
				slog.String("error", err.Error()),
				slog.Int("attempt", attempt),
			)
			continue
		}

		if isRetryableStatus(resp.StatusCode) {
			cb.failure()
			lastErr = &StatusError{URL: target, StatusCode: resp.StatusCode}
			c.logger.Warn("retryable status code",
				slog.String("url", target),
				slog.Int("status", resp.StatusCode),
				slog.Duration("duration", elapsed),
				slog.Int("attempt", attempt),
			)
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			continue
		}

		cb.success()
		c.logger.Debug("request completed",
			slog.String("url", target),
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", elapsed),
			slog.Int64("content_length", resp.ContentLength),
		)

		resp.Body = c.wrapDecompression(resp)
		return resp, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrMaxRetries, lastErr)
	}
	return nil, ErrMaxRetries
}

// Get performs a GET request to the specified URL.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.Do(ctx, req)
}

// Fetch GETs rawURL and returns the decoded body together with the final URL
// after redirects, which is the base for resolving relative references.
// Any non-2xx status is reported as a *StatusError.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, *url.URL, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil, &StatusError{URL: ObfuscateURL(resp.Request.URL), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("reading body: %w", err)
	}

	final := resp.Request.URL
	return body, final, nil
}

// CircuitState returns the least healthy breaker state over every host the
// client has talked to.
func (c *Client) CircuitState() CircuitState {
	return c.breakers.worst()
}

// ResetCircuit closes every host breaker.
func (c *Client) ResetCircuit() {
	c.breakers.reset()
}

// isRetryableStatus reports whether an origin status is worth another attempt.
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
