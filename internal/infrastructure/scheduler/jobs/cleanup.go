package jobs

import (
	"context"
	"fmt"
	"log/slog"
)

// CleanupJobName is the name the archive cleanup job registers under.
const CleanupJobName = "archive_cleanup"

// ArchiveCleaner prunes stored snapshots down to a retention count.
type ArchiveCleaner interface {
	Cleanup(keep int) (int, error)
}

// CleanupJob removes archived snapshots beyond the retention count.
// Only the newest few snapshots matter for offline fallback; the rest
// is disk noise.
type CleanupJob struct {
	archive ArchiveCleaner
	keep    int
	logger  *slog.Logger
}

// NewCleanupJob creates the cleanup job. A keep of zero or less falls
// back to the archive's own default retention.
func NewCleanupJob(archive ArchiveCleaner, keep int, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		archive: archive,
		keep:    keep,
		logger:  logger,
	}
}

// Name implements scheduler.Job.
func (j *CleanupJob) Name() string {
	return CleanupJobName
}

// Description implements scheduler.Job.
func (j *CleanupJob) Description() string {
	return "Removes archived activity snapshots beyond the retention count"
}

// Run implements scheduler.Job.
func (j *CleanupJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	removed, err := j.archive.Cleanup(j.keep)
	if err != nil {
		return fmt.Errorf("archive cleanup: %w", err)
	}
	if removed > 0 {
		j.logger.Info("archive pruned", "removed", removed, "keep", j.keep)
	}
	return nil
}
