// Package state implements file-backed persistence for the tracker state.
// One JSON document, written atomically, with timestamped backups and a
// recovery chain: state file, then newest valid backup, then fresh default.
// Losing state degrades a run, it never aborts one.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pacewise/course-tracker/internal/domain/shared"
	"github.com/pacewise/course-tracker/internal/domain/tracking"
	"github.com/pacewise/course-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// timestampLayout is the canonical on-disk timestamp format. Bare dates are
// padded to it by the 1.0 -> 1.1 migration.
const timestampLayout = "2006-01-02T15:04:05"

// backupInfix separates the state file name from the backup stamp.
const backupInfix = ".backup_"

// Config configures a state Store.
type Config struct {
	// Path is the state file location.
	Path string

	// BackupKeep is how many timestamped backups survive trimming.
	BackupKeep int

	// DefaultTrackingStart seeds a fresh state when no file exists.
	DefaultTrackingStart time.Time

	// Logger receives recovery and backup events.
	Logger *slog.Logger

	// Clock supplies time; tests override it.
	Clock func() time.Time
}

// DefaultConfig returns store defaults for the given state path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		BackupKeep: 5,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store loads and saves the tracker state.
type Store struct {
	cfg Config
}

// NewStore creates a state store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, shared.NewDomainError("state", "new_store", shared.ErrInvalidInput, "state path is empty")
	}
	if cfg.BackupKeep <= 0 {
		cfg.BackupKeep = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Store{cfg: cfg}, nil
}

// Load returns the last valid persisted state. A missing file yields a fresh
// default, an unusable file falls back to the newest valid backup and then to
// a fresh default. Each recovery is logged and flagged on the returned state;
// Load itself never fails.
func (s *Store) Load() (*tracking.State, error) {
	raw, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.cfg.Logger.Warn("state file unreadable, starting recovery",
				slog.String("path", s.cfg.Path),
				slog.Any("error", err))
			return s.recover(), nil
		}
		s.cfg.Logger.Info("no state file, creating fresh default",
			slog.String("path", s.cfg.Path))
		return s.freshDefault(), nil
	}

	st, err := s.decode(raw)
	if err != nil {
		s.cfg.Logger.Warn("state file unusable, starting recovery",
			slog.String("path", s.cfg.Path),
			slog.Any("error", err))
		return s.recover(), nil
	}
	return st, nil
}

// Save validates the state and writes it atomically: current file backed up,
// new content written to a temp file in the same directory, fsynced, then
// renamed over the original. An unwritable state location is the one fatal
// condition in the tracker.
func (s *Store) Save(st *tracking.State) error {
	if violations := st.Validate(); len(violations) > 0 {
		return shared.NewDomainError("state", "save", shared.ErrStateInvalid,
			"refusing to persist invalid state: "+strings.Join(violations, "; "))
	}

	doc := s.fromDomain(st)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return shared.WrapError("state", "save", shared.ErrStateInvalid, "failed to encode state", err)
	}
	data = append(data, '\n')

	s.backupCurrent()

	if err := s.writeAtomic(data); err != nil {
		return shared.WrapError("state", "save", shared.ErrStateUnwritable, "failed to write state file", err)
	}

	s.trimBackups()
	return nil
}

// CheckWritable probes the state directory with a throwaway file. Returns the
// fatal ErrStateDirUnwritable on failure.
func (s *Store) CheckWritable() error {
	dir := filepath.Dir(s.cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return shared.WrapError("state", "check_writable", shared.ErrStateDirUnwritable, "cannot create state directory", err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return shared.WrapError("state", "check_writable", shared.ErrStateDirUnwritable, "state directory is not writable", err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}

// Backups returns existing backup paths, newest first.
func (s *Store) Backups() []string {
	prefix := filepath.Base(s.cfg.Path) + backupInfix
	entries, err := os.ReadDir(filepath.Dir(s.cfg.Path))
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	// Stamps are lexicographically ordered, newest last.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(filepath.Dir(s.cfg.Path), n)
	}
	return paths
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.cfg.Path
}

// ─────────────────────────────────────────────────────────────────────────────
// Recovery chain
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) freshDefault() *tracking.State {
	st := tracking.NewDefaultState(s.cfg.DefaultTrackingStart, s.cfg.Clock())
	st.RecoveredFromDefault = true
	return st
}

// recover walks backups newest first and returns the first valid one, or a
// fresh default when none qualifies.
func (s *Store) recover() *tracking.State {
	for _, path := range s.Backups() {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		st, err := s.decode(raw)
		if err != nil {
			s.cfg.Logger.Warn("backup unusable, trying older one",
				slog.String("backup", path),
				slog.Any("error", err))
			continue
		}
		s.cfg.Logger.Info("state restored from backup", slog.String("backup", path))
		st.RecoveredFromBackup = true
		return st
	}
	s.cfg.Logger.Warn("no valid backup found, falling back to fresh default state")
	return s.freshDefault()
}

// ─────────────────────────────────────────────────────────────────────────────
// Encoding and migration
// ─────────────────────────────────────────────────────────────────────────────

// stateDocument is the on-disk JSON shape.
type stateDocument struct {
	SchemaVersion             string         `json:"schema_version"`
	TrackingStartDate         string         `json:"tracking_start_date"`
	CompletedUnitNames        []string       `json:"completed_unit_names"`
	DailyLessonsCompleted     int            `json:"daily_lessons_completed"`
	LastDailyResetDate        string         `json:"last_daily_reset_date,omitempty"`
	LastNotificationTimestamp string         `json:"last_notification_timestamp,omitempty"`
	TotalLifetimeLessons      int            `json:"total_lifetime_lessons"`
	Metadata                  *stateMetadata `json:"metadata,omitempty"`
}

type stateMetadata struct {
	CreatedAt        string   `json:"created_at,omitempty"`
	MigrationHistory []string `json:"migration_history,omitempty"`
}

// decode parses raw bytes into a validated domain state, migrating old
// schemas on the way.
func (s *Store) decode(raw []byte) (*tracking.State, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, shared.WrapError("state", "load", shared.ErrStateUnreadable, "state file is not valid JSON", err)
	}

	if err := migrateDocument(generic, s.cfg.Clock()); err != nil {
		return nil, err
	}

	migrated, err := json.Marshal(generic)
	if err != nil {
		return nil, shared.WrapError("state", "load", shared.ErrStateUnreadable, "failed to re-encode migrated state", err)
	}
	var doc stateDocument
	if err := json.Unmarshal(migrated, &doc); err != nil {
		return nil, shared.WrapError("state", "load", shared.ErrStateUnreadable, "migrated state has wrong shape", err)
	}

	st, err := s.toDomain(doc)
	if err != nil {
		return nil, err
	}
	if violations := st.Validate(); len(violations) > 0 {
		return nil, shared.NewDomainError("state", "load", shared.ErrStateInvalid,
			"state violates invariants: "+strings.Join(violations, "; "))
	}
	return st, nil
}

// toDomain maps the document to the domain entity. The tracking start date is
// load-bearing and fails the decode; daily-reset and notification stamps are
// forgiving: an unparsable value means "never", which only causes an extra
// rollover or one extra notification.
func (s *Store) toDomain(doc stateDocument) (*tracking.State, error) {
	start, err := parseStateTime(doc.TrackingStartDate)
	if err != nil {
		return nil, shared.WrapError("state", "load", shared.ErrStateCorrupted,
			fmt.Sprintf("unparsable tracking_start_date %q", doc.TrackingStartDate), err)
	}

	st := &tracking.State{
		SchemaVersion:         doc.SchemaVersion,
		TrackingStartDate:     start,
		CompletedUnitNames:    doc.CompletedUnitNames,
		DailyLessonsCompleted: doc.DailyLessonsCompleted,
		TotalLifetimeLessons:  doc.TotalLifetimeLessons,
	}

	if doc.LastDailyResetDate != "" {
		if t, err := parseStateTime(doc.LastDailyResetDate); err == nil {
			st.LastDailyResetDate = t
		} else {
			s.cfg.Logger.Warn("unparsable last_daily_reset_date, treating as never reset",
				slog.String("value", doc.LastDailyResetDate))
		}
	}
	if doc.LastNotificationTimestamp != "" {
		if t, err := parseStateTime(doc.LastNotificationTimestamp); err == nil {
			st.LastNotificationTimestamp = t
		} else {
			s.cfg.Logger.Warn("unparsable last_notification_timestamp, treating as never notified",
				slog.String("value", doc.LastNotificationTimestamp))
		}
	}
	if doc.Metadata != nil {
		if t, err := parseStateTime(doc.Metadata.CreatedAt); err == nil {
			st.CreatedAt = t
		}
		st.MigrationHistory = doc.Metadata.MigrationHistory
	}
	return st, nil
}

func (s *Store) fromDomain(st *tracking.State) stateDocument {
	doc := stateDocument{
		SchemaVersion:         tracking.SchemaVersion,
		TrackingStartDate:     st.TrackingStartDate.Format(timestampLayout),
		CompletedUnitNames:    st.CompletedUnitNames,
		DailyLessonsCompleted: st.DailyLessonsCompleted,
		TotalLifetimeLessons:  st.TotalLifetimeLessons,
	}
	if !st.LastDailyResetDate.IsZero() {
		doc.LastDailyResetDate = st.LastDailyResetDate.Format(timestampLayout)
	}
	if !st.LastNotificationTimestamp.IsZero() {
		doc.LastNotificationTimestamp = st.LastNotificationTimestamp.Format(timestampLayout)
	}
	meta := &stateMetadata{MigrationHistory: st.MigrationHistory}
	if !st.CreatedAt.IsZero() {
		meta.CreatedAt = st.CreatedAt.Format(timestampLayout)
	}
	doc.Metadata = meta
	return doc
}

// parseStateTime accepts the canonical timestamp layout plus the bare date
// form older files carry.
func parseStateTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if t, err := time.ParseInLocation(timestampLayout, value, timeutil.Location()); err == nil {
		return t, nil
	}
	return time.ParseInLocation(timeutil.FormatDate, value, timeutil.Location())
}

// ─────────────────────────────────────────────────────────────────────────────
// Atomic write and backups
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.cfg.Path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, s.cfg.Path)
}

// backupCurrent copies the existing state file to a timestamped sibling.
// Best effort: a failed backup is logged, not fatal.
func (s *Store) backupCurrent() {
	raw, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		return
	}
	stamp := s.cfg.Clock().Format(timeutil.FormatFileStamp)
	backup := s.cfg.Path + backupInfix + stamp
	if err := os.WriteFile(backup, raw, 0o644); err != nil {
		s.cfg.Logger.Warn("failed to back up state file",
			slog.String("backup", backup),
			slog.Any("error", err))
	}
}

// trimBackups drops the oldest backups beyond the configured keep count.
func (s *Store) trimBackups() {
	backups := s.Backups()
	for i := s.cfg.BackupKeep; i < len(backups); i++ {
		if err := os.Remove(backups[i]); err != nil {
			s.cfg.Logger.Warn("failed to remove old backup",
				slog.String("backup", backups[i]),
				slog.Any("error", err))
		}
	}
}
