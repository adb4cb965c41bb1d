package feed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pacewise/course-tracker/internal/domain/session"
	"github.com/pacewise/course-tracker/internal/domain/shared"
	"github.com/pacewise/course-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT ARCHIVE
// ══════════════════════════════════════════════════════════════════════════════

// DefaultArchiveKeep is how many snapshots survive a cleanup pass.
const DefaultArchiveKeep = 10

// snapshotDocument is the on-disk shape of one archived fetch.
type snapshotDocument struct {
	Username  string              `json:"username"`
	FetchedAt string              `json:"fetched_at"`
	Records   []session.RawRecord `json:"records"`
}

// Archive persists parsed fetches as timestamped JSON snapshots so runs can
// be replayed offline and fetch history audited (or hand-corrected).
type Archive struct {
	dir      string
	username string
	logger   *slog.Logger
}

// NewArchive creates an archive rooted at dir for one profile.
func NewArchive(dir, username string, log *slog.Logger) *Archive {
	if log == nil {
		log = slog.Default()
	}
	return &Archive{dir: dir, username: username, logger: log}
}

// Dir returns the archive directory.
func (a *Archive) Dir() string {
	return a.dir
}

// Store writes one snapshot and returns its path.
func (a *Archive) Store(records []session.RawRecord, fetchedAt time.Time) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	doc := snapshotDocument{
		Username:  a.username,
		FetchedAt: fetchedAt.Format(timeutil.FormatFeedTimestamp),
		Records:   records,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode feed snapshot: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(a.dir, a.snapshotName(fetchedAt))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write feed snapshot: %w", err)
	}

	a.logger.Debug("feed snapshot archived",
		slog.String("path", path),
		slog.Int("records", len(records)))
	return path, nil
}

// Latest loads the newest readable snapshot. Corrupt snapshots are skipped
// with a warning so one bad write does not break offline runs.
func (a *Archive) Latest() ([]session.RawRecord, time.Time, error) {
	paths, err := a.List()
	if err != nil {
		return nil, time.Time{}, err
	}
	for i := len(paths) - 1; i >= 0; i-- {
		records, fetchedAt, err := a.read(paths[i])
		if err != nil {
			a.logger.Warn("unreadable feed snapshot, trying an older one",
				slog.String("path", paths[i]),
				slog.Any("error", err))
			continue
		}
		return records, fetchedAt, nil
	}
	return nil, time.Time{}, shared.ErrNoArchivedSnapshot
}

// List returns all snapshot paths for the profile, oldest first. The file
// stamp sorts lexicographically, so name order is time order.
func (a *Archive) List() ([]string, error) {
	pattern := filepath.Join(a.dir, "activity_"+a.username+"_*.json")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("list feed snapshots: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Cleanup removes all but the newest keep snapshots and reports how many
// files went away. keep <= 0 applies DefaultArchiveKeep.
func (a *Archive) Cleanup(keep int) (int, error) {
	if keep <= 0 {
		keep = DefaultArchiveKeep
	}
	paths, err := a.List()
	if err != nil {
		return 0, err
	}
	if len(paths) <= keep {
		return 0, nil
	}

	removed := 0
	for _, path := range paths[:len(paths)-keep] {
		if err := os.Remove(path); err != nil {
			a.logger.Warn("failed to remove old feed snapshot",
				slog.String("path", path),
				slog.Any("error", err))
			continue
		}
		removed++
	}
	a.logger.Info("feed archive pruned",
		slog.Int("removed", removed),
		slog.Int("kept", len(paths)-removed))
	return removed, nil
}

func (a *Archive) snapshotName(fetchedAt time.Time) string {
	return fmt.Sprintf("activity_%s_%s.json", a.username, fetchedAt.Format(timeutil.FormatFileStamp))
}

func (a *Archive) read(path string) ([]session.RawRecord, time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read feed snapshot: %w", err)
	}
	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode feed snapshot: %w", err)
	}
	fetchedAt, err := timeutil.ParseFeedTimestamp(doc.FetchedAt)
	if err != nil {
		// The file stamp still orders snapshots; a bad fetched_at only
		// loses display precision.
		fetchedAt = time.Time{}
	}
	return doc.Records, fetchedAt, nil
}
