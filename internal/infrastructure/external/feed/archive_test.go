package feed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pacewise/course-tracker/internal/domain/session"
	"github.com/pacewise/course-tracker/internal/domain/shared"
)

func testArchive(t *testing.T) *Archive {
	t.Helper()
	return NewArchive(t.TempDir(), "alice", discardLogger())
}

func sampleRecords(xp string) []session.RawRecord {
	return []session.RawRecord{
		{Timestamp: "2026-08-19 10:15:42", XP: xp, Label: "lesson", UnitHint: "Greetings 2"},
	}
}

func TestArchive_StoreAndLatest(t *testing.T) {
	a := testArchive(t)
	t1 := time.Date(2026, 8, 19, 11, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	_, err := a.Store(sampleRecords("12"), t1)
	assert.NoError(t, err)
	_, err = a.Store(sampleRecords("15"), t2)
	assert.NoError(t, err)

	records, fetchedAt, err := a.Latest()
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, "15", records[0].XP)
	assert.True(t, fetchedAt.Equal(t2))
}

func TestArchive_Store_SnapshotName(t *testing.T) {
	a := testArchive(t)

	path, err := a.Store(sampleRecords("12"), time.Date(2026, 8, 19, 11, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Equal(t, "activity_alice_20260819_110000.json", filepath.Base(path))
}

func TestArchive_Store_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "archive")
	a := NewArchive(dir, "alice", discardLogger())

	_, err := a.Store(sampleRecords("12"), time.Date(2026, 8, 19, 11, 0, 0, 0, time.UTC))
	assert.NoError(t, err)

	paths, err := a.List()
	assert.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestArchive_Latest_NoSnapshots(t *testing.T) {
	a := testArchive(t)

	_, _, err := a.Latest()
	assert.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestArchive_Latest_SkipsCorruptSnapshot(t *testing.T) {
	a := testArchive(t)
	t1 := time.Date(2026, 8, 19, 11, 0, 0, 0, time.UTC)

	_, err := a.Store(sampleRecords("12"), t1)
	assert.NoError(t, err)

	// A newer but truncated snapshot must not poison offline replay.
	corrupt := filepath.Join(a.Dir(), "activity_alice_20260819_130000.json")
	assert.NoError(t, os.WriteFile(corrupt, []byte("{typo"), 0o644))

	records, fetchedAt, err := a.Latest()
	assert.NoError(t, err)
	assert.Equal(t, "12", records[0].XP)
	assert.True(t, fetchedAt.Equal(t1))
}

func TestArchive_List_OldestFirst(t *testing.T) {
	a := testArchive(t)
	t1 := time.Date(2026, 8, 19, 11, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := a.Store(sampleRecords("12"), t1.Add(time.Duration(i)*time.Hour))
		assert.NoError(t, err)
	}

	paths, err := a.List()
	assert.NoError(t, err)
	assert.Len(t, paths, 3)
	assert.Equal(t, "activity_alice_20260819_110000.json", filepath.Base(paths[0]))
	assert.Equal(t, "activity_alice_20260819_130000.json", filepath.Base(paths[2]))
}

func TestArchive_List_MissingDirectory(t *testing.T) {
	a := NewArchive(filepath.Join(t.TempDir(), "never-created"), "alice", discardLogger())

	paths, err := a.List()
	assert.NoError(t, err)
	assert.Empty(t, paths)
}

func TestArchive_Cleanup_RemovesOldest(t *testing.T) {
	a := testArchive(t)
	t1 := time.Date(2026, 8, 19, 11, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := a.Store(sampleRecords("12"), t1.Add(time.Duration(i)*time.Hour))
		assert.NoError(t, err)
	}

	removed, err := a.Cleanup(2)
	assert.NoError(t, err)
	assert.Equal(t, 3, removed)

	paths, err := a.List()
	assert.NoError(t, err)
	assert.Len(t, paths, 2)
	assert.Equal(t, "activity_alice_20260819_140000.json", filepath.Base(paths[0]))
	assert.Equal(t, "activity_alice_20260819_150000.json", filepath.Base(paths[1]))
}

func TestArchive_Cleanup_NothingToRemove(t *testing.T) {
	a := testArchive(t)

	_, err := a.Store(sampleRecords("12"), time.Date(2026, 8, 19, 11, 0, 0, 0, time.UTC))
	assert.NoError(t, err)

	removed, err := a.Cleanup(0) // 0 applies the default keep
	assert.NoError(t, err)
	assert.Equal(t, 0, removed)
}
