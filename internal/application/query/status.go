// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/pacewise/course-tracker/internal/domain/progress"
	"github.com/pacewise/course-tracker/internal/domain/session"
	"github.com/pacewise/course-tracker/internal/domain/tracking"
	"github.com/pacewise/course-tracker/internal/domain/unit"
	"github.com/pacewise/course-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STATUS QUERY
// Computes the current progress figures from the newest archived activity
// snapshot. Pure read: no fetch, no state write, no notification.
// ══════════════════════════════════════════════════════════════════════════════

// GetStatusQuery contains the parameters of a status request.
type GetStatusQuery struct {
	// Now overrides the query clock. Zero means the current time in the
	// tracker timezone.
	Now time.Time
}

// StatusResult carries everything the status command prints.
type StatusResult struct {
	// Snapshot holds the computed progress metrics.
	Snapshot *progress.Snapshot

	// Units is the classified unit list, chronological.
	Units []unit.Unit

	// FetchedAt is when the replayed activity data was originally fetched.
	FetchedAt time.Time

	// DayRolled is true when the persisted daily counter predates today
	// and was zeroed for display.
	DayRolled bool

	// StateWarnings lists validation violations of the persisted state.
	StateWarnings []string
}

// SnapshotArchive replays the newest archived activity snapshot.
type SnapshotArchive interface {
	Latest() ([]session.RawRecord, time.Time, error)
}

// StateReader loads the persisted tracker state.
type StateReader interface {
	Load() (*tracking.State, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetStatusHandler handles the GetStatusQuery.
type GetStatusHandler struct {
	archive SnapshotArchive
	store   StateReader

	normalizer *session.Normalizer
	classifier *unit.Classifier
	engine     *progress.Engine
	cycle      *tracking.CycleManager

	loc *time.Location
}

// GetStatusHandlerConfig contains configuration for the handler.
type GetStatusHandlerConfig struct {
	// Classifier holds the unit segmentation parameters.
	Classifier unit.Config

	// Engine holds the goal parameters.
	Engine progress.Config

	// Timezone is the query clock location. Nil means the tracker default.
	Timezone *time.Location
}

// NewGetStatusHandler creates a new GetStatusHandler.
func NewGetStatusHandler(archive SnapshotArchive, store StateReader, config GetStatusHandlerConfig) *GetStatusHandler {
	if config.Timezone == nil {
		config.Timezone = timeutil.Location()
	}

	return &GetStatusHandler{
		archive:    archive,
		store:      store,
		normalizer: session.NewNormalizer(config.Timezone),
		classifier: unit.NewClassifier(config.Classifier),
		engine:     progress.NewEngine(config.Engine),
		cycle:      tracking.NewCycleManager(0),
		loc:        config.Timezone,
	}
}

// Handle executes the status query.
func (h *GetStatusHandler) Handle(ctx context.Context, query GetStatusQuery) (*StatusResult, error) {
	now := query.Now
	if now.IsZero() {
		now = time.Now().In(h.loc)
	}

	st, err := h.store.Load()
	if err != nil {
		return nil, fmt.Errorf("get_status: load state: %w", err)
	}

	// The display state is rolled on a copy. Status never writes; the next
	// tracking cycle persists the real rollover.
	st = st.Clone()
	rolled := h.cycle.RollDay(st, now) == tracking.PhaseDayRolledOver

	records, fetchedAt, err := h.archive.Latest()
	if err != nil {
		return nil, fmt.Errorf("get_status: %w", err)
	}

	norm := h.normalizer.Normalize(records)
	cls := h.classifier.Classify(norm.Sessions)

	snap := h.engine.Compute(progress.Input{
		Units:    cls.Units,
		Sessions: norm.Sessions,
		State:    st,
		Today:    now,
	})
	snap.SkippedRecords = norm.Skipped

	return &StatusResult{
		Snapshot:      &snap,
		Units:         cls.Units,
		FetchedAt:     fetchedAt,
		DayRolled:     rolled,
		StateWarnings: st.Validate(),
	}, nil
}
