package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/gen2brain/beeep"
)

// ══════════════════════════════════════════════════════════════════════════════
// DESKTOP CHANNEL
// ══════════════════════════════════════════════════════════════════════════════

// DesktopChannel shows reminders as local desktop notifications. It is a
// best-effort channel: a headless machine reports unavailable instead of
// failing every send.
type DesktopChannel struct {
	logger *slog.Logger
}

// NewDesktopChannel creates the channel.
func NewDesktopChannel(log *slog.Logger) *DesktopChannel {
	if log == nil {
		log = slog.Default()
	}
	return &DesktopChannel{logger: log}
}

// Type returns the channel type.
func (d *DesktopChannel) Type() ChannelType {
	return ChannelTypeDesktop
}

// IsAvailable checks for a display session. On Linux that means X11 or
// Wayland; other platforms always have a desktop when the tracker runs.
func (d *DesktopChannel) IsAvailable(ctx context.Context) bool {
	if runtime.GOOS == "linux" {
		return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
	}
	return true
}

// Send shows the notification. High and emergency priorities use the alert
// variant so they stand out.
func (d *DesktopChannel) Send(ctx context.Context, msg Message) DeliveryResult {
	var err error
	if msg.Priority >= PriorityHigh {
		err = beeep.Alert(msg.Title, msg.Body, "")
	} else {
		err = beeep.Notify(msg.Title, msg.Body, "")
	}
	if err != nil {
		return NewFailureResult(ChannelTypeDesktop,
			fmt.Errorf("desktop notification: %w", err), false)
	}

	d.logger.Debug("desktop notification shown", slog.String("title", msg.Title))
	return NewSuccessResult(ChannelTypeDesktop)
}
