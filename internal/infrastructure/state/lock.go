package state

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pacewise/course-tracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN LOCK
// ══════════════════════════════════════════════════════════════════════════════

// DefaultLockStaleAfter is how old a lock file must be before a new run may
// take it over from a presumably crashed predecessor.
const DefaultLockStaleAfter = 2 * time.Hour

// Lock is an advisory file lock serializing tracker runs. The whole
// load-compute-save cycle runs under it; a second concurrent run aborts
// before touching any state.
type Lock struct {
	path       string
	staleAfter time.Duration
	logger     *slog.Logger
	held       bool
}

// NewLock creates a run lock at the given path.
func NewLock(path string, staleAfter time.Duration, logger *slog.Logger) *Lock {
	if staleAfter <= 0 {
		staleAfter = DefaultLockStaleAfter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lock{path: path, staleAfter: staleAfter, logger: logger}
}

// Acquire takes the lock or fails fast. A lock file older than the stale
// threshold is presumed abandoned by a crashed run, removed, and taken over
// once. A live lock returns ErrRunInProgress.
func (l *Lock) Acquire() error {
	if err := l.tryCreate(); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrExist) {
		return shared.WrapError("state", "lock", shared.ErrLockDirUnavailable, "cannot create lock file", err)
	}

	holder, age, err := l.inspect()
	if err == nil && age > l.staleAfter {
		l.logger.Warn("taking over stale run lock",
			slog.String("path", l.path),
			slog.String("holder_pid", holder),
			slog.Duration("age", age))
		os.Remove(l.path)
		if err := l.tryCreate(); err == nil {
			return nil
		}
	}

	msg := "another run holds the lock"
	if holder != "" {
		msg = fmt.Sprintf("another run holds the lock (pid %s)", holder)
	}
	return shared.NewDomainError("state", "lock", shared.ErrRunInProgress, msg)
}

// Release removes the lock file. Safe to call when the lock was never taken.
func (l *Lock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return shared.WrapError("state", "unlock", shared.ErrLockDirUnavailable, "cannot remove lock file", err)
	}
	return nil
}

// tryCreate creates the lock file exclusively and writes the holder pid.
func (l *Lock) tryCreate() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	l.held = true
	return nil
}

// inspect reads the holder pid and the age of an existing lock file.
func (l *Lock) inspect() (pid string, age time.Duration, err error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return "", 0, err
	}
	age = time.Since(info.ModTime())

	raw, err := os.ReadFile(l.path)
	if err != nil {
		return "", age, nil
	}
	pid = strings.TrimSpace(string(raw))
	if _, convErr := strconv.Atoi(pid); convErr != nil {
		pid = ""
	}
	return pid, age, nil
}
