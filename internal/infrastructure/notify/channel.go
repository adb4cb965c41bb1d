// Package notify delivers tracking reminders through pluggable channels.
// Channels are dumb pipes: the Service decides whether and what to send,
// a Channel only knows how to get one message to one medium.
package notify

import (
	"context"
	"time"

	"github.com/pacewise/course-tracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHANNEL TYPE
// ══════════════════════════════════════════════════════════════════════════════

// ChannelType identifies a delivery medium.
type ChannelType string

const (
	// ChannelTypePushover delivers through the Pushover API.
	ChannelTypePushover ChannelType = "pushover"

	// ChannelTypeDesktop shows a local desktop notification.
	ChannelTypeDesktop ChannelType = "desktop"
)

// IsValid checks that the channel type is known.
func (ct ChannelType) IsValid() bool {
	switch ct {
	case ChannelTypePushover, ChannelTypeDesktop:
		return true
	default:
		return false
	}
}

// String returns the string representation of the channel type.
func (ct ChannelType) String() string {
	return string(ct)
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE
// ══════════════════════════════════════════════════════════════════════════════

// Priority uses the Pushover scale; other channels map it as best they can.
type Priority int

const (
	PriorityLowest    Priority = -2
	PriorityLow       Priority = -1
	PriorityNormal    Priority = 0
	PriorityHigh      Priority = 1
	PriorityEmergency Priority = 2
)

// Message is one reminder ready for delivery.
type Message struct {
	Title     string
	Body      string
	Priority  Priority
	Timestamp time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// DELIVERY RESULT
// ══════════════════════════════════════════════════════════════════════════════

// DeliveryResult reports how one channel handled one message.
type DeliveryResult struct {
	// Success is whether the message went out.
	Success bool

	// Channel that produced this result.
	Channel ChannelType

	// DeliveredAt is when the attempt finished.
	DeliveredAt time.Time

	// Error explains the failure when Success is false.
	Error error

	// Retryable is whether a later attempt could succeed.
	Retryable bool

	// RetryAfter is how long to back off when rate limited.
	RetryAfter time.Duration
}

// NewSuccessResult creates a successful delivery result.
func NewSuccessResult(channel ChannelType) DeliveryResult {
	return DeliveryResult{
		Success:     true,
		Channel:     channel,
		DeliveredAt: time.Now().UTC(),
	}
}

// NewFailureResult creates a failed delivery result.
func NewFailureResult(channel ChannelType, err error, retryable bool) DeliveryResult {
	return DeliveryResult{
		Channel:     channel,
		DeliveredAt: time.Now().UTC(),
		Error:       err,
		Retryable:   retryable,
	}
}

// NewRateLimitedResult creates a rate-limited delivery result.
func NewRateLimitedResult(channel ChannelType, retryAfter time.Duration) DeliveryResult {
	return DeliveryResult{
		Channel:     channel,
		DeliveredAt: time.Now().UTC(),
		Error:       shared.ErrRateLimited,
		Retryable:   true,
		RetryAfter:  retryAfter,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CHANNEL INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Channel is one delivery medium.
type Channel interface {
	// Type returns the channel type.
	Type() ChannelType

	// Send delivers one message. Failures are reported in the result,
	// never panicked or swallowed.
	Send(ctx context.Context, msg Message) DeliveryResult

	// IsAvailable checks whether the channel can deliver right now.
	IsAvailable(ctx context.Context) bool
}
