package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/pacewise/course-tracker/internal/domain/progress"
	"github.com/pacewise/course-tracker/internal/domain/shared"
	"github.com/pacewise/course-tracker/internal/domain/tracking"
	"github.com/pacewise/course-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Outcome reasons.
const (
	ReasonSent           = "sent"
	ReasonQuietHours     = "quiet_hours"
	ReasonThrottled      = "throttled"
	ReasonNoChannels     = "no_channels"
	ReasonDeliveryFailed = "delivery_failed"
)

// Outcome reports what a notification attempt did and why.
type Outcome struct {
	// Sent is whether at least one channel delivered.
	Sent bool

	// Reason is why the attempt ended the way it did.
	Reason string

	// Slot the message was built for, empty when nothing was built.
	Slot Slot

	// Results holds one entry per attempted channel.
	Results []DeliveryResult
}

// Service decides whether to notify and fans the message out to every
// registered channel. The decision chain: quiet hours first (a suppressed
// attempt leaves the throttle stamp untouched), then the cycle throttle
// (which stamps the state when it allows), then delivery.
type Service struct {
	channels   []Channel
	cycle      *tracking.CycleManager
	logger     *slog.Logger
	quietHours bool
}

// NewService creates the notification service. The quiet-hours gate is on
// until SetRespectQuietHours turns it off.
func NewService(cycle *tracking.CycleManager, log *slog.Logger) *Service {
	if cycle == nil {
		cycle = tracking.NewCycleManager(0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{cycle: cycle, logger: log, quietHours: true}
}

// Register adds a delivery channel. Registration order is delivery order.
func (s *Service) Register(ch Channel) {
	s.channels = append(s.channels, ch)
}

// SetRespectQuietHours toggles the quiet-hours gate. Off means reminders may
// fire at any hour; the throttle still applies.
func (s *Service) SetRespectQuietHours(on bool) {
	s.quietHours = on
}

// ChannelTypes lists the registered channels.
func (s *Service) ChannelTypes() []ChannelType {
	types := make([]ChannelType, 0, len(s.channels))
	for _, ch := range s.channels {
		types = append(types, ch.Type())
	}
	return types
}

// AvailableChannels lists the channels that can deliver right now.
func (s *Service) AvailableChannels(ctx context.Context) []ChannelType {
	types := make([]ChannelType, 0, len(s.channels))
	for _, ch := range s.channels {
		if ch.IsAvailable(ctx) {
			types = append(types, ch.Type())
		}
	}
	return types
}

// Notify runs the full decision chain for one tracking pass. newActivity
// bypasses the throttle but never the quiet-hours gate. The state's
// notification stamp is mutated in memory; persisting it is the caller's
// concern, together with the rest of the run's changes.
func (s *Service) Notify(ctx context.Context, st *tracking.State, snap *progress.Snapshot, newActivity bool, now time.Time) Outcome {
	if s.quietHours && !timeutil.IsSafeNotificationTime(now) {
		s.logger.Info("notification suppressed, quiet hours",
			slog.Time("now", now),
			slog.Time("next_safe", timeutil.NextSafeNotificationTime(now)))
		return Outcome{Reason: ReasonQuietHours}
	}
	if !s.cycle.ShouldNotify(st, newActivity, now) {
		s.logger.Debug("notification suppressed, throttled",
			slog.Time("last_notified", st.LastNotificationTimestamp))
		return Outcome{Reason: ReasonThrottled}
	}

	slot := SlotFor(timeutil.ToLocal(now).Hour())
	msg := BuildMessage(slot, snap, now)
	outcome := s.deliver(ctx, msg)
	outcome.Slot = slot
	return outcome
}

// SendTest pushes a probe message through every channel, bypassing the
// throttle and the quiet-hours gate.
func (s *Service) SendTest(ctx context.Context, now time.Time) Outcome {
	return s.deliver(ctx, ProbeMessage(now))
}

func (s *Service) deliver(ctx context.Context, msg Message) Outcome {
	outcome := Outcome{}
	if len(s.channels) == 0 {
		s.logger.Warn("no notification channels registered")
		outcome.Reason = ReasonNoChannels
		return outcome
	}

	for _, ch := range s.channels {
		if !ch.IsAvailable(ctx) {
			s.logger.Warn("notification channel unavailable",
				slog.String("channel", ch.Type().String()))
			outcome.Results = append(outcome.Results,
				NewFailureResult(ch.Type(), shared.ErrChannelUnavailable, true))
			continue
		}

		result := ch.Send(ctx, msg)
		outcome.Results = append(outcome.Results, result)
		if result.Success {
			outcome.Sent = true
			s.logger.Info("notification delivered",
				slog.String("channel", ch.Type().String()),
				slog.String("title", msg.Title),
				slog.Int("priority", int(msg.Priority)))
		} else {
			s.logger.Warn("notification delivery failed",
				slog.String("channel", ch.Type().String()),
				slog.Bool("retryable", result.Retryable),
				slog.Any("error", result.Error))
		}
	}

	if outcome.Sent {
		outcome.Reason = ReasonSent
	} else {
		outcome.Reason = ReasonDeliveryFailed
	}
	return outcome
}
