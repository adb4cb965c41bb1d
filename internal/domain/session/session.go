// Package session turns raw activity-feed records into normalized Sessions.
// A Session is the atomic unit of progress: one XP-earning event. Labels on
// feed entries ("lesson", "practice", "unit review") are unreliable and are
// carried as metadata only; anything that earned XP counts as a lesson.
package session

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// RAW RECORD
// ══════════════════════════════════════════════════════════════════════════════

// RawRecord is one entry as acquired from the activity feed, before any
// validation. Timestamp and XP arrive as text because the feed is a scraped
// page and archived snapshots can be hand-edited; normalization is where they
// earn the right to be typed.
type RawRecord struct {
	// Timestamp in feed format ("2006-01-02 15:04:05").
	Timestamp string `json:"timestamp"`

	// XP is the XP amount as scraped, digits only when well-formed.
	XP string `json:"xp"`

	// Label is the free-form entry label. Metadata only.
	Label string `json:"label,omitempty"`

	// UnitHint is the unit name the entry linked, when it linked one.
	UnitHint string `json:"unit_hint,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session is a single normalized XP-earning activity event.
type Session struct {
	// Timestamp of the event in the learner's timezone.
	Timestamp time.Time

	// XPAmount earned. Always positive; zero-XP records never become Sessions.
	XPAmount int

	// RawLabel is the original feed label, for display and debugging.
	// Classification never branches on it.
	RawLabel string

	// UnitHint is the unit name attached to the event, empty when the feed
	// gave none.
	UnitHint string
}

// HasUnitHint reports whether the session carries a unit attribution.
func (s Session) HasUnitHint() bool {
	return s.UnitHint != ""
}
