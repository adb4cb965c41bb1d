package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestWatcher(t *testing.T, dir string, fired *atomic.Int32) *Watcher {
	w, err := NewWatcher(WatcherConfig{
		Dir:      dir,
		Debounce: 20 * time.Millisecond,
		Logger:   discardLogger(),
	}, func() { fired.Add(1) })
	assert.NoError(t, err)
	return w
}

func writeWatchedFile(t *testing.T, dir, name string) {
	assert.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(`{"records":[]}`), 0o644))
}

func TestNewWatcher_RequiresDirAndTrigger(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{}, func() {})
	assert.Error(t, err)

	_, err = NewWatcher(WatcherConfig{Dir: t.TempDir()}, nil)
	assert.Error(t, err)
}

func TestWatcher_StartFailsOnMissingDir(t *testing.T) {
	var fired atomic.Int32
	w := newTestWatcher(t, filepath.Join(t.TempDir(), "missing"), &fired)

	assert.Error(t, w.Start(context.Background()))
}

func TestWatcher_TriggersOnNewSnapshot(t *testing.T) {
	dir := t.TempDir()
	var fired atomic.Int32
	w := newTestWatcher(t, dir, &fired)

	assert.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeWatchedFile(t, dir, "activity_alice_20260825_120000.json")

	assert.Eventually(t, func() bool {
		return fired.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	var fired atomic.Int32
	w := newTestWatcher(t, dir, &fired)

	assert.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeWatchedFile(t, dir, "notes.txt")
	writeWatchedFile(t, dir, "tracker_state.json")

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestWatcher_DebounceCollapsesBurst(t *testing.T) {
	dir := t.TempDir()
	var fired atomic.Int32
	w, err := NewWatcher(WatcherConfig{
		Dir:      dir,
		Debounce: 100 * time.Millisecond,
		Logger:   discardLogger(),
	}, func() { fired.Add(1) })
	assert.NoError(t, err)

	assert.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeWatchedFile(t, dir, "activity_alice_20260825_120000.json")
	writeWatchedFile(t, dir, "activity_alice_20260825_120001.json")
	writeWatchedFile(t, dir, "activity_alice_20260825_120002.json")

	assert.Eventually(t, func() bool {
		return fired.Load() > 0
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestWatcher_SuppressSwallowsEvents(t *testing.T) {
	dir := t.TempDir()
	var fired atomic.Int32
	w := newTestWatcher(t, dir, &fired)

	assert.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	w.Suppress(time.Hour)
	writeWatchedFile(t, dir, "activity_alice_20260825_120000.json")

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, fired.Load())
}
