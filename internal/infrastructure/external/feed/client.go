// Package feed acquires the learner's public activity page and turns it into
// raw records ready for normalization. Acquisition is deliberately polite:
// requests are spaced out, retried with backoff, and cut off by a circuit
// breaker when the page keeps failing, because the feed is a scraped page,
// not an API anyone promised to keep stable.
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pacewise/course-tracker/internal/domain/shared"
	"github.com/pacewise/course-tracker/pkg/circuitbreaker"
	"github.com/pacewise/course-tracker/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT CONFIG
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultTimeout bounds a single page request.
	DefaultTimeout = 30 * time.Second

	// DefaultMinRequestInterval spaces consecutive requests to the feed
	// origin. Hammering a scraped page is the fastest way to get the
	// profile blocked.
	DefaultMinRequestInterval = 20 * time.Second

	// maxResponseBytes caps how much of a response body is read. Even a
	// multi-year profile stays well under a megabyte of raw page text.
	maxResponseBytes = 4 << 20

	defaultUserAgent = "course-tracker/1.0"
)

// ClientConfig holds configuration for the feed client.
type ClientConfig struct {
	// BaseURL is the feed origin, e.g. "https://progress.example.com".
	BaseURL string

	// Username identifies the tracked profile.
	Username string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// MinRequestInterval enforces polite spacing between requests.
	MinRequestInterval time.Duration

	// RetryAttempts, RetryDelay and RetryMaxDelay override the default
	// retry schedule. Zero values keep the standard feed schedule.
	RetryAttempts int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration

	// BreakerThreshold, BreakerTimeout and BreakerHalfOpenMax override
	// the standard feed breaker. Zero values keep the preset.
	BreakerThreshold   int
	BreakerTimeout     time.Duration
	BreakerHalfOpenMax int

	// UserAgent identifies the tracker to the platform.
	UserAgent string

	// Logger receives request diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// Debug enables per-request logging.
	Debug bool
}

// DefaultClientConfig returns a ClientConfig with sensible defaults.
func DefaultClientConfig(baseURL, username string) ClientConfig {
	return ClientConfig{
		BaseURL:            baseURL,
		Username:           username,
		Timeout:            DefaultTimeout,
		MinRequestInterval: DefaultMinRequestInterval,
		UserAgent:          defaultUserAgent,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client fetches the public activity page for one profile.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a feed client. BaseURL and Username are required.
func NewClient(config ClientConfig) (*Client, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, fmt.Errorf("feed base URL is required")
	}
	if strings.TrimSpace(config.Username) == "" {
		return nil, fmt.Errorf("feed username is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     config.Logger,
	}
	c.retrier = newRetrier(config)
	c.breaker = newBreaker(config, c.logger)
	return c, nil
}

func newRetrier(config ClientConfig) *retry.Retrier {
	if config.RetryAttempts == 0 && config.RetryDelay == 0 && config.RetryMaxDelay == 0 {
		return retry.FeedRetrier()
	}
	attempts := config.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := config.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	maxDelay := config.RetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return retry.New(
		retry.WithMaxAttempts(attempts),
		retry.WithInitialDelay(delay),
		retry.WithMaxDelay(maxDelay),
		retry.WithMultiplier(2.0),
		retry.WithJitter(0.2),
	)
}

func newBreaker(config ClientConfig, log *slog.Logger) *circuitbreaker.CircuitBreaker {
	onChange := func(name string, from, to circuitbreaker.State) {
		log.Warn("feed circuit state changed",
			slog.String("breaker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	}
	if config.BreakerThreshold == 0 && config.BreakerTimeout == 0 && config.BreakerHalfOpenMax == 0 {
		return circuitbreaker.FeedBreaker(onChange)
	}
	threshold := config.BreakerThreshold
	if threshold <= 0 {
		threshold = 3
	}
	timeout := config.BreakerTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	halfOpen := config.BreakerHalfOpenMax
	if halfOpen <= 0 {
		halfOpen = 1
	}
	return circuitbreaker.New(
		"activity-feed",
		circuitbreaker.WithFailureThreshold(threshold),
		circuitbreaker.WithSuccessThreshold(2),
		circuitbreaker.WithTimeout(timeout),
		circuitbreaker.WithMaxHalfOpenRequests(halfOpen),
		circuitbreaker.WithOnStateChange(onChange),
	)
}

// Username returns the tracked profile name.
func (c *Client) Username() string {
	return c.config.Username
}

// URL returns the full activity page URL.
func (c *Client) URL() string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/raw/" + url.PathEscape(c.config.Username)
}

// CircuitState exposes the breaker state for health reporting.
func (c *Client) CircuitState() circuitbreaker.State {
	return c.breaker.State()
}

// ══════════════════════════════════════════════════════════════════════════════
// FETCHING
// ══════════════════════════════════════════════════════════════════════════════

// FetchRaw downloads the raw activity page. The returned body is the page
// text as served; parsing is a separate step so archived snapshots keep the
// records exactly as extracted.
func (c *Client) FetchRaw(ctx context.Context) ([]byte, error) {
	start := time.Now()

	var body []byte
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			b, fetchErr := c.fetchOnce(ctx)
			if fetchErr != nil {
				return fetchErr
			}
			body = b
			return nil
		})
	})
	if err != nil {
		return nil, c.classify(err)
	}

	c.logger.Debug("activity page fetched",
		slog.String("url", c.URL()),
		slog.Int("bytes", len(body)),
		slog.Duration("elapsed", time.Since(start)))
	return body, nil
}

// Health performs one direct request, bypassing retries and the breaker, to
// answer "is the feed reachable right now".
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.fetchOnce(ctx); err != nil {
		return c.classify(err)
	}
	return nil
}

// fetchOnce executes a single spaced HTTP request and classifies the outcome
// as retryable or permanent for the retrier.
func (c *Client) fetchOnce(ctx context.Context) ([]byte, error) {
	if err := c.waitTurn(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(), nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build feed request: %w", err))
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "text/html")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isRetryableNetError(err) {
			return nil, retry.Retryable(fmt.Errorf("feed request failed: %w", err))
		}
		return nil, retry.Permanent(fmt.Errorf("feed request failed: %w", err))
	}
	defer resp.Body.Close()

	if c.config.Debug {
		c.logger.Debug("feed request",
			slog.String("url", c.URL()),
			slog.Int("status", resp.StatusCode),
			slog.Duration("elapsed", time.Since(start)))
	}

	if resp.StatusCode != http.StatusOK {
		httpErr := &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
		// A rate limit is not retried inside a run; the next scheduled run
		// is the retry.
		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.Warn("feed rate limited",
				slog.Int("retry_after_seconds", httpErr.RetryAfter))
			return nil, retry.Permanent(httpErr)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, retry.Retryable(httpErr)
		}
		return nil, retry.Permanent(httpErr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, retry.Retryable(fmt.Errorf("read feed response: %w", err))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, retry.Retryable(fmt.Errorf("feed returned an empty page"))
	}
	return body, nil
}

// waitTurn blocks until MinRequestInterval has passed since the previous
// request started.
func (c *Client) waitTurn(ctx context.Context) error {
	c.mu.Lock()
	if c.config.MinRequestInterval > 0 && !c.lastRequest.IsZero() {
		wait := c.config.MinRequestInterval - time.Since(c.lastRequest)
		if wait > 0 {
			c.mu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			c.mu.Lock()
		}
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// HTTPError is a non-success response from the feed origin.
type HTTPError struct {
	StatusCode int
	Status     string
	RetryAfter int // seconds, from the Retry-After header when present
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("feed returned %s (retry after %ds)", e.Status, e.RetryAfter)
	}
	return fmt.Sprintf("feed returned %s", e.Status)
}

// classify maps transport-level failures onto the feed error taxonomy.
func (c *Client) classify(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, circuitbreaker.ErrCircuitOpen),
		errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return shared.WrapError("feed", "Fetch", shared.ErrServiceUnavailable,
			"feed circuit breaker is open", err)
	case errors.Is(err, context.DeadlineExceeded):
		return shared.WrapError("feed", "Fetch", shared.ErrTimeout,
			"activity feed request timed out", err)
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests:
			return shared.WrapError("feed", "Fetch", shared.ErrRateLimited,
				"activity feed rate limit exceeded", err)
		case http.StatusNotFound:
			return shared.WrapError("feed", "Fetch", shared.ErrNotFound,
				"activity page not found, check the username", err)
		default:
			return shared.WrapError("feed", "Fetch", shared.ErrServiceUnavailable,
				"activity feed returned an error response", err)
		}
	}

	if isTimeout(err) {
		return shared.WrapError("feed", "Fetch", shared.ErrTimeout,
			"activity feed request timed out", err)
	}
	return shared.WrapError("feed", "Fetch", shared.ErrServiceUnavailable,
		"activity feed is unavailable", err)
}

func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}

// isRetryableNetError reports whether a transport error is worth another
// attempt. Timeouts and transient connection failures are; everything else
// (TLS, malformed URL) is not.
func isRetryableNetError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return containsAny(strings.ToLower(err.Error()),
		"connection refused",
		"connection reset",
		"no such host",
		"unexpected eof",
		"broken pipe",
		"temporary failure",
	)
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return containsAny(strings.ToLower(err.Error()), "timeout", "deadline exceeded")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
