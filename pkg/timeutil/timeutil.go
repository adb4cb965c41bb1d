// Package timeutil provides calendar helpers pinned to the learner's timezone.
// Daily resets, pace arithmetic, and notification windows all depend on where
// the learner's day actually starts, so every helper resolves against one
// configured location instead of whatever the host happens to run in.
// No external dependencies - uses only standard library.
package timeutil

import (
	"math"
	"time"
)

// trackerTZ is the location all calendar math resolves in.
// Defaults to the host timezone; SetLocation overrides it once at startup,
// before any goroutines are running.
var trackerTZ = time.Local

// SetLocation pins the learner's timezone. Not safe for concurrent use;
// call it from configuration loading only.
func SetLocation(loc *time.Location) {
	if loc != nil {
		trackerTZ = loc
	}
}

// Location returns the currently configured learner timezone.
func Location() *time.Location {
	return trackerTZ
}

// Now returns the current time in the learner's timezone.
func Now() time.Time {
	return time.Now().In(trackerTZ)
}

// ToLocal converts a time to the learner's timezone.
func ToLocal(t time.Time) time.Time {
	return t.In(trackerTZ)
}

// Date creates a midnight time in the learner's timezone.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, trackerTZ)
}

// DateTime creates a time in the learner's timezone with the given clock values.
func DateTime(year, month, day, hour, min, sec int) time.Time {
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, trackerTZ)
}

// StartOfDay returns the start of the day (00:00:00) in the learner's timezone.
func StartOfDay(t time.Time) time.Time {
	local := ToLocal(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, trackerTZ)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in the learner's timezone.
func EndOfDay(t time.Time) time.Time {
	local := ToLocal(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, trackerTZ)
}

// IsToday checks if the given time falls on today's learner-local date.
func IsToday(t time.Time) bool {
	return IsSameDay(t, Now())
}

// IsSameDay checks if two times are on the same learner-local calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	a, b := ToLocal(t1), ToLocal(t2)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// DaysBetween returns the signed number of calendar days from "from" to "to".
// Negative when "to" is earlier. Day boundaries, not 24h spans, so a Sunday
// 23:59 to Monday 00:01 pair counts as one day. Rounding absorbs the 23h and
// 25h days that DST transitions produce.
func DaysBetween(from, to time.Time) int {
	a := StartOfDay(from)
	b := StartOfDay(to)
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// DaysSince returns how many calendar days ago the given time was.
func DaysSince(t time.Time) int {
	return DaysBetween(t, Now())
}

// WindowStart returns the start of a trailing window of the given length in
// days, ending on the day of t. A 7-day window over a Sunday covers the
// preceding Monday 00:00 through Sunday.
func WindowStart(t time.Time, days int) time.Time {
	if days < 1 {
		days = 1
	}
	return StartOfDay(t).AddDate(0, 0, -(days - 1))
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD) used in persisted
	// state and reports.
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatFeedTimestamp is the timestamp format the activity feed emits.
	FormatFeedTimestamp = "2006-01-02 15:04:05"
	// FormatFileStamp is the compact stamp embedded in archive file names.
	FormatFileStamp = "20060102_150405"
)

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in the learner's timezone.
func FormatDateStr(t time.Time) string {
	return ToLocal(t).Format(FormatDate)
}

// ParseDate parses a date string (YYYY-MM-DD) in the learner's timezone.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, trackerTZ)
}

// ParseFeedTimestamp parses an activity-feed timestamp in the learner's timezone.
func ParseFeedTimestamp(value string) (time.Time, error) {
	return time.ParseInLocation(FormatFeedTimestamp, value, trackerTZ)
}

// Notification timing helpers.

const (
	// QuietHoursEnd is when notifications become acceptable (9:00).
	QuietHoursEnd = 9
	// QuietHoursStart is when notifications stop for the night (22:00).
	QuietHoursStart = 22
)

// IsSafeNotificationTime checks if it's appropriate to send notifications (9:00-22:00).
func IsSafeNotificationTime(t time.Time) bool {
	hour := ToLocal(t).Hour()
	return hour >= QuietHoursEnd && hour < QuietHoursStart
}

// NextSafeNotificationTime returns the next time when notifications are appropriate.
func NextSafeNotificationTime(t time.Time) time.Time {
	local := ToLocal(t)
	hour := local.Hour()

	if hour < QuietHoursEnd {
		return DateTime(local.Year(), int(local.Month()), local.Day(), QuietHoursEnd, 0, 0)
	}
	if hour >= QuietHoursStart {
		tomorrow := local.AddDate(0, 0, 1)
		return DateTime(tomorrow.Year(), int(tomorrow.Month()), tomorrow.Day(), QuietHoursEnd, 0, 0)
	}

	// Already in the safe window
	return local
}
