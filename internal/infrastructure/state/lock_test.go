package state

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pacewise/course-tracker/internal/domain/shared"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLock_AcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker_state.json.lock")
	l := NewLock(path, 0, quietLogger())

	assert.NoError(t, l.Acquire())
	_, err := os.Stat(path)
	assert.NoError(t, err)

	assert.NoError(t, l.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Can be taken again after release.
	assert.NoError(t, l.Acquire())
	assert.NoError(t, l.Release())
}

func TestLock_SecondAcquireFailsWhileHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker_state.json.lock")
	first := NewLock(path, 0, quietLogger())
	second := NewLock(path, 0, quietLogger())

	assert.NoError(t, first.Acquire())
	defer first.Release()

	err := second.Acquire()

	assert.ErrorIs(t, err, shared.ErrRunInProgress)
	assert.True(t, shared.IsConflict(err))
}

func TestLock_StaleLockIsTakenOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker_state.json.lock")
	assert.NoError(t, os.WriteFile(path, []byte("12345\n"), 0o644))
	old := time.Now().Add(-3 * time.Hour)
	assert.NoError(t, os.Chtimes(path, old, old))

	l := NewLock(path, 2*time.Hour, quietLogger())

	assert.NoError(t, l.Acquire())
	assert.NoError(t, l.Release())
}

func TestLock_FreshForeignLockIsRespected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker_state.json.lock")
	assert.NoError(t, os.WriteFile(path, []byte("12345\n"), 0o644))

	l := NewLock(path, 2*time.Hour, quietLogger())

	err := l.Acquire()
	assert.ErrorIs(t, err, shared.ErrRunInProgress)
}

func TestLock_ReleaseWithoutAcquireIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker_state.json.lock")
	l := NewLock(path, 0, quietLogger())

	assert.NoError(t, l.Release())
}
