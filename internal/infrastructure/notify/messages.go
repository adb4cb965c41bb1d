package notify

import (
	"fmt"
	"time"

	"github.com/pacewise/course-tracker/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// TIME-SLOT MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

// Slot identifies which daily reminder window a notification belongs to.
type Slot string

const (
	SlotMorning Slot = "morning"
	SlotMidday  Slot = "midday"
	SlotEvening Slot = "evening"
	SlotNight   Slot = "night"
)

// Slot boundaries, hours of the local day.
const (
	morningHour = 5
	middayHour  = 11
	eveningHour = 16
	nightHour   = 21
)

// SlotFor returns the reminder slot for an hour of the local day.
func SlotFor(hour int) Slot {
	switch {
	case hour >= nightHour || hour < morningHour:
		return SlotNight
	case hour < middayHour:
		return SlotMorning
	case hour < eveningHour:
		return SlotMidday
	default:
		return SlotEvening
	}
}

// String returns the string representation of the slot.
func (s Slot) String() string {
	return string(s)
}

// BuildMessage composes the reminder for a slot from the latest snapshot.
// The urgency curve rises through the day: midday stays quiet, evening gets
// loud only when the goal is slipping, night escalates to emergency when
// nothing was done at all.
func BuildMessage(slot Slot, snap *progress.Snapshot, now time.Time) Message {
	msg := Message{Timestamp: now, Priority: PriorityNormal}
	done := snap.DailyLessonsCompleted
	goal := snap.DailyGoalLessons
	left := snap.DailyRemaining()

	switch slot {
	case SlotMorning:
		msg.Title = "Today's lessons"
		msg.Body = fmt.Sprintf("Plan for today: %d lessons. %d units to go in the course.",
			goal, snap.RemainingUnits)

	case SlotMidday:
		msg.Priority = PriorityLow
		msg.Title = "Midday check-in"
		if snap.DailyGoalMet() {
			msg.Body = fmt.Sprintf("%d of %d lessons done. Daily goal met early.", done, goal)
		} else {
			msg.Body = fmt.Sprintf("%d of %d lessons done so far.", done, goal)
		}

	case SlotEvening:
		msg.Title = "Evening reminder"
		if snap.DailyGoalMet() {
			msg.Body = fmt.Sprintf("All %d lessons done for today.", goal)
		} else {
			msg.Priority = PriorityHigh
			msg.Body = fmt.Sprintf("%d lessons left today.", left)
		}

	case SlotNight:
		msg.Title = "Last call"
		switch {
		case done == 0:
			msg.Priority = PriorityEmergency
			msg.Body = fmt.Sprintf("No lessons done today. %d before midnight keeps the pace.", goal)
		case snap.DailyGoalMet():
			msg.Priority = PriorityLow
			msg.Body = fmt.Sprintf("Daily goal met: %d of %d lessons.", done, goal)
		default:
			msg.Priority = PriorityHigh
			msg.Body = fmt.Sprintf("%d of %d lessons done. %d to go before midnight.", done, goal, left)
		}
	}
	return msg
}

// ProbeMessage is what `notify test` sends: fixed content, normal priority.
func ProbeMessage(now time.Time) Message {
	return Message{
		Title:     "Course tracker test",
		Body:      "Notification channels are configured and reachable.",
		Priority:  PriorityNormal,
		Timestamp: now,
	}
}
