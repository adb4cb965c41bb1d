package session

import (
	"strconv"
	"strings"
	"time"

	"github.com/pacewise/course-tracker/internal/domain/shared"
	"github.com/pacewise/course-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// NORMALIZER
// ══════════════════════════════════════════════════════════════════════════════

// Normalizer converts raw feed records into Sessions.
//
// The rules are deliberately blunt: a record with positive XP becomes exactly
// one Session no matter what its label claims, a record with zero XP is
// discarded, and a record whose timestamp or XP cannot be parsed is skipped
// and tallied without failing the batch. Input order is preserved.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer returns a normalizer that parses feed timestamps in the given
// location. A nil location falls back to the tracker-wide zone.
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = timeutil.Location()
	}
	return &Normalizer{loc: loc}
}

// Result is the outcome of normalizing one batch of raw records.
type Result struct {
	// Sessions in input order.
	Sessions []Session

	// Skipped counts malformed records that were dropped.
	Skipped int

	// ZeroXP counts well-formed records discarded for earning nothing.
	ZeroXP int

	// SkipReasons holds one error per skipped record, aligned with the
	// order skips were encountered. Surfaced for logging, never fatal.
	SkipReasons []error
}

// Normalize converts records into Sessions, skipping malformed entries.
// It never returns an error: bad input degrades the batch, it does not
// abort it.
func (n *Normalizer) Normalize(records []RawRecord) Result {
	res := Result{}
	if len(records) == 0 {
		return res
	}

	res.Sessions = make([]Session, 0, len(records))
	for _, rec := range records {
		ts, err := time.ParseInLocation(timeutil.FormatFeedTimestamp, strings.TrimSpace(rec.Timestamp), n.loc)
		if err != nil {
			res.Skipped++
			res.SkipReasons = append(res.SkipReasons, shared.NewDomainError(
				"session", "normalize", shared.ErrUnparsableTimestamp,
				"unparsable timestamp "+strconv.Quote(rec.Timestamp)))
			continue
		}

		xp, err := strconv.Atoi(strings.TrimSpace(rec.XP))
		if err != nil {
			res.Skipped++
			res.SkipReasons = append(res.SkipReasons, shared.NewDomainError(
				"session", "normalize", shared.ErrUnparsableXP,
				"unparsable xp "+strconv.Quote(rec.XP)))
			continue
		}
		if xp < 0 {
			res.Skipped++
			res.SkipReasons = append(res.SkipReasons, shared.NewDomainError(
				"session", "normalize", shared.ErrNegativeXP,
				"negative xp "+strconv.Itoa(xp)))
			continue
		}
		if xp == 0 {
			res.ZeroXP++
			continue
		}

		res.Sessions = append(res.Sessions, Session{
			Timestamp: ts,
			XPAmount:  xp,
			RawLabel:  strings.TrimSpace(rec.Label),
			UnitHint:  strings.TrimSpace(rec.UnitHint),
		})
	}
	return res
}
