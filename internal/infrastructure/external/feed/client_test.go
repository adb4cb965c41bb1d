package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pacewise/course-tracker/internal/domain/shared"
	"github.com/pacewise/course-tracker/pkg/circuitbreaker"
	"github.com/pacewise/course-tracker/pkg/timeutil"
)

func init() {
	timeutil.SetLocation(time.UTC)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastClientConfig keeps tests quick: no request spacing, millisecond retries.
func fastClientConfig(baseURL string) ClientConfig {
	cfg := DefaultClientConfig(baseURL, "alice")
	cfg.Timeout = 2 * time.Second
	cfg.MinRequestInterval = 0
	cfg.RetryAttempts = 1
	cfg.RetryDelay = time.Millisecond
	cfg.Logger = discardLogger()
	return cfg
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientConfig{Username: "alice"})
	assert.Error(t, err)
}

func TestNewClient_RequiresUsername(t *testing.T) {
	_, err := NewClient(ClientConfig{BaseURL: "https://feed.example.com"})
	assert.Error(t, err)
}

func TestDefaultClientConfig_Defaults(t *testing.T) {
	cfg := DefaultClientConfig("https://feed.example.com", "alice")

	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultMinRequestInterval, cfg.MinRequestInterval)
	assert.NotEmpty(t, cfg.UserAgent)
}

func TestClient_URL(t *testing.T) {
	cfg := fastClientConfig("https://feed.example.com/")
	cfg.Username = "alice b"
	c, err := NewClient(cfg)
	assert.NoError(t, err)

	assert.Equal(t, "https://feed.example.com/raw/alice%20b", c.URL())
}

func TestClient_FetchRaw_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/raw/alice", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("2026-08-19 10:15:42 lesson 12XP"))
	}))
	defer server.Close()

	c, err := NewClient(fastClientConfig(server.URL))
	assert.NoError(t, err)

	body, err := c.FetchRaw(context.Background())
	assert.NoError(t, err)
	assert.Contains(t, string(body), "12XP")
}

func TestClient_FetchRaw_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer server.Close()

	cfg := fastClientConfig(server.URL)
	cfg.RetryAttempts = 3
	c, err := NewClient(cfg)
	assert.NoError(t, err)

	body, err := c.FetchRaw(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "recovered", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_FetchRaw_NoRetryOnNotFound(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := fastClientConfig(server.URL)
	cfg.RetryAttempts = 3
	c, err := NewClient(cfg)
	assert.NoError(t, err)

	_, err = c.FetchRaw(context.Background())
	assert.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_FetchRaw_RateLimitedNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := fastClientConfig(server.URL)
	cfg.RetryAttempts = 3
	c, err := NewClient(cfg)
	assert.NoError(t, err)

	_, err = c.FetchRaw(context.Background())
	assert.ErrorIs(t, err, shared.ErrRateLimited)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_FetchRaw_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, err := NewClient(fastClientConfig(server.URL))
	assert.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = c.FetchRaw(context.Background())
		assert.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateOpen, c.CircuitState())

	// The open circuit short-circuits before the request goes out.
	_, err = c.FetchRaw(context.Background())
	assert.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_FetchRaw_RespectsMinRequestInterval(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("page"))
	}))
	defer server.Close()

	cfg := fastClientConfig(server.URL)
	cfg.MinRequestInterval = 60 * time.Millisecond
	c, err := NewClient(cfg)
	assert.NoError(t, err)

	start := time.Now()
	_, err = c.FetchRaw(context.Background())
	assert.NoError(t, err)
	_, err = c.FetchRaw(context.Background())
	assert.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestClient_FetchRaw_EmptyPageFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("   "))
	}))
	defer server.Close()

	c, err := NewClient(fastClientConfig(server.URL))
	assert.NoError(t, err)

	_, err = c.FetchRaw(context.Background())
	assert.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
}

func TestClient_FetchRaw_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("page"))
	}))
	defer server.Close()

	c, err := NewClient(fastClientConfig(server.URL))
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.FetchRaw(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("page"))
	}))

	c, err := NewClient(fastClientConfig(server.URL))
	assert.NoError(t, err)
	assert.NoError(t, c.Health(context.Background()))

	server.Close()
	err = c.Health(context.Background())
	assert.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
}
