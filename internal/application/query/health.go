package query

import (
	"context"
	"fmt"
	"time"

	"github.com/pacewise/course-tracker/internal/infrastructure/notify"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET HEALTH QUERY
// Probes the tracker's components: the state location, the upstream feed,
// and the notification channels.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultHealthTimeout bounds the whole probe round.
const DefaultHealthTimeout = 10 * time.Second

// Verdicts of a health check.
const (
	// VerdictHealthy - every component responded.
	VerdictHealthy = "healthy"

	// VerdictDegraded - the tracker works but some component is impaired
	// (feed unreachable, no notification channel responding).
	VerdictDegraded = "degraded"

	// VerdictUnhealthy - the state location is unusable; runs cannot
	// persist anything.
	VerdictUnhealthy = "unhealthy"
)

// GetHealthQuery contains the parameters of a health check.
type GetHealthQuery struct {
	// Timeout bounds the probe round. Zero means DefaultHealthTimeout.
	Timeout time.Duration
}

// ComponentHealth is one probed component.
type ComponentHealth struct {
	// Component names what was probed.
	Component string

	// OK is whether the probe passed.
	OK bool

	// Detail describes the probe target or its failure.
	Detail string
}

// HealthResult contains the verdict and the per-component breakdown.
type HealthResult struct {
	// Verdict summarizes the component states.
	Verdict string

	// Components in probe order: state, feed, notification channels.
	Components []ComponentHealth

	// CheckedAt is when the probe round ran.
	CheckedAt time.Time
}

// Healthy reports whether every component passed.
func (r *HealthResult) Healthy() bool {
	return r.Verdict == VerdictHealthy
}

// StateChecker verifies the state location is usable.
type StateChecker interface {
	CheckWritable() error
	Path() string
}

// FeedChecker probes the upstream feed.
type FeedChecker interface {
	Health(ctx context.Context) error
	URL() string
}

// ChannelLister reports registered and responding notification channels.
type ChannelLister interface {
	ChannelTypes() []notify.ChannelType
	AvailableChannels(ctx context.Context) []notify.ChannelType
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetHealthHandler handles the GetHealthQuery.
type GetHealthHandler struct {
	state    StateChecker
	feed     FeedChecker
	channels ChannelLister
}

// NewGetHealthHandler creates a new GetHealthHandler.
func NewGetHealthHandler(state StateChecker, feed FeedChecker, channels ChannelLister) *GetHealthHandler {
	return &GetHealthHandler{
		state:    state,
		feed:     feed,
		channels: channels,
	}
}

// Handle executes the health check. The verdict is unhealthy only when the
// state location fails: everything else the tracker can degrade around.
func (h *GetHealthHandler) Handle(ctx context.Context, query GetHealthQuery) (*HealthResult, error) {
	timeout := query.Timeout
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := &HealthResult{CheckedAt: time.Now()}

	stateOK := h.checkState(result)
	feedOK := h.checkFeed(ctx, result)
	channelsOK := h.checkChannels(ctx, result)

	switch {
	case !stateOK:
		result.Verdict = VerdictUnhealthy
	case !feedOK || !channelsOK:
		result.Verdict = VerdictDegraded
	default:
		result.Verdict = VerdictHealthy
	}
	return result, nil
}

func (h *GetHealthHandler) checkState(result *HealthResult) bool {
	c := ComponentHealth{Component: "state", Detail: h.state.Path(), OK: true}
	if err := h.state.CheckWritable(); err != nil {
		c.OK = false
		c.Detail = err.Error()
	}
	result.Components = append(result.Components, c)
	return c.OK
}

func (h *GetHealthHandler) checkFeed(ctx context.Context, result *HealthResult) bool {
	c := ComponentHealth{Component: "feed", Detail: h.feed.URL(), OK: true}
	if err := h.feed.Health(ctx); err != nil {
		c.OK = false
		c.Detail = err.Error()
	}
	result.Components = append(result.Components, c)
	return c.OK
}

func (h *GetHealthHandler) checkChannels(ctx context.Context, result *HealthResult) bool {
	registered := h.channels.ChannelTypes()
	available := h.channels.AvailableChannels(ctx)

	c := ComponentHealth{
		Component: "notify",
		Detail:    fmt.Sprintf("%d/%d channels available", len(available), len(registered)),
		OK:        len(registered) > 0 && len(available) == len(registered),
	}
	result.Components = append(result.Components, c)
	return c.OK
}
