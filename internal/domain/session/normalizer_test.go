package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pacewise/course-tracker/internal/domain/shared"
)

func TestNormalizer_PositiveXPBecomesSession(t *testing.T) {
	n := NewNormalizer(time.UTC)

	res := n.Normalize([]RawRecord{
		{Timestamp: "2026-08-20 07:15:00", XP: "20", Label: "lesson", UnitHint: "Greetings"},
	})

	assert.Len(t, res.Sessions, 1)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 0, res.ZeroXP)

	s := res.Sessions[0]
	assert.Equal(t, time.Date(2026, 8, 20, 7, 15, 0, 0, time.UTC), s.Timestamp)
	assert.Equal(t, 20, s.XPAmount)
	assert.Equal(t, "lesson", s.RawLabel)
	assert.Equal(t, "Greetings", s.UnitHint)
	assert.True(t, s.HasUnitHint())
}

func TestNormalizer_LabelDoesNotChangeCounting(t *testing.T) {
	n := NewNormalizer(time.UTC)

	// Practice, stories and reviews all earn XP, so all count as lessons.
	res := n.Normalize([]RawRecord{
		{Timestamp: "2026-08-20 07:00:00", XP: "10", Label: "practice"},
		{Timestamp: "2026-08-20 08:00:00", XP: "30", Label: "story"},
		{Timestamp: "2026-08-20 09:00:00", XP: "40", Label: "unit review"},
	})

	assert.Len(t, res.Sessions, 3)
	assert.Equal(t, "practice", res.Sessions[0].RawLabel)
	assert.Equal(t, "story", res.Sessions[1].RawLabel)
	assert.Equal(t, "unit review", res.Sessions[2].RawLabel)
}

func TestNormalizer_ZeroXPDiscarded(t *testing.T) {
	n := NewNormalizer(time.UTC)

	res := n.Normalize([]RawRecord{
		{Timestamp: "2026-08-20 07:00:00", XP: "0", Label: "lesson"},
		{Timestamp: "2026-08-20 08:00:00", XP: "15"},
	})

	assert.Len(t, res.Sessions, 1)
	assert.Equal(t, 15, res.Sessions[0].XPAmount)
	assert.Equal(t, 1, res.ZeroXP)
	assert.Equal(t, 0, res.Skipped)
}

func TestNormalizer_UnparsableTimestampSkipped(t *testing.T) {
	n := NewNormalizer(time.UTC)

	res := n.Normalize([]RawRecord{
		{Timestamp: "not-a-date", XP: "10"},
		{Timestamp: "2026-08-20 08:00:00", XP: "15"},
	})

	assert.Len(t, res.Sessions, 1)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, res.SkipReasons, 1)
	assert.ErrorIs(t, res.SkipReasons[0], shared.ErrUnparsableTimestamp)
}

func TestNormalizer_UnparsableXPSkipped(t *testing.T) {
	n := NewNormalizer(time.UTC)

	res := n.Normalize([]RawRecord{
		{Timestamp: "2026-08-20 07:00:00", XP: "twenty"},
		{Timestamp: "2026-08-20 08:00:00", XP: "15"},
	})

	assert.Len(t, res.Sessions, 1)
	assert.Equal(t, 1, res.Skipped)
	assert.ErrorIs(t, res.SkipReasons[0], shared.ErrUnparsableXP)
}

func TestNormalizer_NegativeXPSkipped(t *testing.T) {
	n := NewNormalizer(time.UTC)

	res := n.Normalize([]RawRecord{
		{Timestamp: "2026-08-20 07:00:00", XP: "-5"},
	})

	assert.Empty(t, res.Sessions)
	assert.Equal(t, 1, res.Skipped)
	assert.ErrorIs(t, res.SkipReasons[0], shared.ErrNegativeXP)
}

func TestNormalizer_BadRecordsNeverAbortBatch(t *testing.T) {
	n := NewNormalizer(time.UTC)

	res := n.Normalize([]RawRecord{
		{Timestamp: "garbage", XP: "10"},
		{Timestamp: "2026-08-20 07:00:00", XP: "??"},
		{Timestamp: "2026-08-20 08:00:00", XP: "15"},
		{Timestamp: "2026-08-20 09:00:00", XP: "0"},
		{Timestamp: "2026-08-20 10:00:00", XP: "25"},
	})

	assert.Len(t, res.Sessions, 2)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.ZeroXP)
}

func TestNormalizer_PreservesInputOrder(t *testing.T) {
	n := NewNormalizer(time.UTC)

	// Feed pages list newest first; the normalizer must not reorder.
	res := n.Normalize([]RawRecord{
		{Timestamp: "2026-08-20 10:00:00", XP: "30"},
		{Timestamp: "2026-08-20 08:00:00", XP: "10"},
		{Timestamp: "2026-08-20 09:00:00", XP: "20"},
	})

	assert.Len(t, res.Sessions, 3)
	assert.Equal(t, 30, res.Sessions[0].XPAmount)
	assert.Equal(t, 10, res.Sessions[1].XPAmount)
	assert.Equal(t, 20, res.Sessions[2].XPAmount)
}

func TestNormalizer_EmptyInput(t *testing.T) {
	n := NewNormalizer(time.UTC)

	res := n.Normalize(nil)

	assert.Empty(t, res.Sessions)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 0, res.ZeroXP)
}

func TestNormalizer_TrimsWhitespace(t *testing.T) {
	n := NewNormalizer(time.UTC)

	res := n.Normalize([]RawRecord{
		{Timestamp: " 2026-08-20 07:00:00 ", XP: " 12 ", Label: " lesson ", UnitHint: " Food "},
	})

	assert.Len(t, res.Sessions, 1)
	assert.Equal(t, 12, res.Sessions[0].XPAmount)
	assert.Equal(t, "lesson", res.Sessions[0].RawLabel)
	assert.Equal(t, "Food", res.Sessions[0].UnitHint)
}
