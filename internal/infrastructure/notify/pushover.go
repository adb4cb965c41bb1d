package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pacewise/course-tracker/pkg/circuitbreaker"
	"github.com/pacewise/course-tracker/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUSHOVER CHANNEL
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultPushoverEndpoint is the Pushover messages API.
	DefaultPushoverEndpoint = "https://api.pushover.net/1/messages.json"

	// DefaultPushoverTimeout bounds one API call.
	DefaultPushoverTimeout = 30 * time.Second

	// Emergency-priority messages must carry a retry/expire pair; these are
	// the API minimum retry and a one-hour expiry.
	emergencyRetrySeconds  = 300
	emergencyExpireSeconds = 3600
)

// PushoverConfig holds credentials and tuning for the Pushover channel.
type PushoverConfig struct {
	// Token is the application API token.
	Token string

	// UserKey is the receiving user key.
	UserKey string

	// Endpoint overrides the API URL; empty means the real API.
	Endpoint string

	// Timeout bounds one API call.
	Timeout time.Duration

	// RetryAttempts and RetryDelay override the default retry schedule.
	RetryAttempts int
	RetryDelay    time.Duration

	// Logger receives delivery diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// PushoverChannel delivers reminders through the Pushover API.
type PushoverChannel struct {
	config     PushoverConfig
	httpClient *http.Client
	logger     *slog.Logger
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
}

// NewPushoverChannel creates the channel. Token and UserKey are required.
func NewPushoverChannel(config PushoverConfig) (*PushoverChannel, error) {
	if strings.TrimSpace(config.Token) == "" {
		return nil, fmt.Errorf("pushover token is required")
	}
	if strings.TrimSpace(config.UserKey) == "" {
		return nil, fmt.Errorf("pushover user key is required")
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultPushoverEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultPushoverTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	p := &PushoverChannel{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     config.Logger,
	}
	p.retrier = newPushoverRetrier(config)
	p.breaker = circuitbreaker.PushoverBreaker(func(name string, from, to circuitbreaker.State) {
		p.logger.Warn("pushover circuit state changed",
			slog.String("breaker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	})
	return p, nil
}

func newPushoverRetrier(config PushoverConfig) *retry.Retrier {
	if config.RetryAttempts == 0 && config.RetryDelay == 0 {
		return retry.PushoverRetrier()
	}
	attempts := config.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := config.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return retry.New(
		retry.WithMaxAttempts(attempts),
		retry.WithInitialDelay(delay),
		retry.WithMaxDelay(10*time.Second),
		retry.WithMultiplier(2.0),
		retry.WithJitter(0.1),
	)
}

// Type returns the channel type.
func (p *PushoverChannel) Type() ChannelType {
	return ChannelTypePushover
}

// IsAvailable reports whether the channel can deliver right now. An open
// circuit means the API was failing moments ago; skip it.
func (p *PushoverChannel) IsAvailable(ctx context.Context) bool {
	return !p.breaker.IsOpen()
}

// Send delivers one message through the API with retries and the breaker.
func (p *PushoverChannel) Send(ctx context.Context, msg Message) DeliveryResult {
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.retrier.Do(ctx, func(ctx context.Context) error {
			return p.sendOnce(ctx, msg)
		})
	})
	if err == nil {
		p.logger.Debug("pushover message delivered",
			slog.String("title", msg.Title),
			slog.Int("priority", int(msg.Priority)))
		return NewSuccessResult(ChannelTypePushover)
	}

	var apiErr *pushoverError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return NewRateLimitedResult(ChannelTypePushover, time.Duration(apiErr.RetryAfter)*time.Second)
	}
	retryable := errors.Is(err, circuitbreaker.ErrCircuitOpen) ||
		errors.Is(err, circuitbreaker.ErrTooManyRequests) ||
		(apiErr != nil && apiErr.Code >= http.StatusInternalServerError) ||
		transientNetError(err)
	return NewFailureResult(ChannelTypePushover, err, retryable)
}

// sendOnce posts the message form and decodes the API verdict.
func (p *PushoverChannel) sendOnce(ctx context.Context, msg Message) error {
	form := url.Values{}
	form.Set("token", p.config.Token)
	form.Set("user", p.config.UserKey)
	form.Set("title", msg.Title)
	form.Set("message", msg.Body)
	form.Set("priority", strconv.Itoa(int(msg.Priority)))
	if !msg.Timestamp.IsZero() {
		form.Set("timestamp", strconv.FormatInt(msg.Timestamp.Unix(), 10))
	}
	if msg.Priority == PriorityEmergency {
		form.Set("retry", strconv.Itoa(emergencyRetrySeconds))
		form.Set("expire", strconv.Itoa(emergencyExpireSeconds))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build pushover request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if transientNetError(err) {
			return retry.Retryable(fmt.Errorf("pushover request failed: %w", err))
		}
		return retry.Permanent(fmt.Errorf("pushover request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return retry.Retryable(fmt.Errorf("read pushover response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		apiErr := &pushoverError{
			Code:       resp.StatusCode,
			RetryAfter: parseRetryAfterHeader(resp.Header.Get("Retry-After")),
			Messages:   decodeAPIErrors(body),
		}
		p.logger.Warn("pushover rate limited",
			slog.Int("retry_after_seconds", apiErr.RetryAfter))
		return retry.Permanent(apiErr)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return retry.Retryable(&pushoverError{Code: resp.StatusCode, Messages: decodeAPIErrors(body)})
	}
	if resp.StatusCode != http.StatusOK {
		return retry.Permanent(&pushoverError{Code: resp.StatusCode, Messages: decodeAPIErrors(body)})
	}

	var verdict pushoverResponse
	if err := json.Unmarshal(body, &verdict); err != nil {
		return retry.Permanent(fmt.Errorf("decode pushover response: %w", err))
	}
	if verdict.Status != 1 {
		return retry.Permanent(&pushoverError{Code: resp.StatusCode, Messages: verdict.Errors})
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// API SHAPES
// ══════════════════════════════════════════════════════════════════════════════

// pushoverResponse is the API verdict; status 1 means accepted.
type pushoverResponse struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors"`
}

// pushoverError is a non-success response from the Pushover API.
type pushoverError struct {
	Code       int
	RetryAfter int // seconds
	Messages   []string
}

// Error implements the error interface.
func (e *pushoverError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("pushover returned %d: %s", e.Code, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("pushover returned %d", e.Code)
}

func decodeAPIErrors(body []byte) []string {
	var verdict pushoverResponse
	if err := json.Unmarshal(body, &verdict); err != nil {
		return nil
	}
	return verdict.Errors
}

func parseRetryAfterHeader(header string) int {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}

// transientNetError reports whether a transport error is worth another try.
func transientNetError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host")
}
