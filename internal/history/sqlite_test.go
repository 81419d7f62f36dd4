package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveRunAndListFailed(t *testing.T) {
	store := newStore(t)

	latest, err := store.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, latest)

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	run := &Run{
		ID:           NewRunID(),
		Bucket:       "artifacts",
		Prefix:       "web/v1",
		StartedAt:    start,
		FinishedAt:   start.Add(time.Minute),
		Succeeded:    1,
		Failed:       2,
		TotalBytes:   10,
		TotalRetries: 2,
	}
	records := []*Record{
		{LocalPath: "b.js", RemoteKey: "web/v1/b.js", Size: 10, Status: StatusUploaded, Attempts: 1},
		{LocalPath: "c.js", RemoteKey: "web/v1/c.js", Status: StatusFailed, LastError: "stat c.js: not found"},
		{LocalPath: "a.js", RemoteKey: "web/v1/a.js", Size: 5, Status: StatusFailed, Attempts: 3, LastError: "status 503"},
	}

	require.NoError(t, store.SaveRun(run, records))

	latest, err = store.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, 2, latest.Failed)
	assert.Equal(t, int64(10), latest.TotalBytes)
	assert.True(t, latest.FinishedAt.Equal(run.FinishedAt))

	failed, err := store.ListFailed(run.ID)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, "a.js", failed[0].LocalPath)
	assert.Equal(t, 3, failed[0].Attempts)
	assert.Equal(t, "status 503", failed[0].LastError)
	assert.Equal(t, "c.js", failed[1].LocalPath)
}

func TestLatestRunOrdering(t *testing.T) {
	store := newStore(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	older := &Run{ID: "older", Bucket: "b", StartedAt: base, FinishedAt: base.Add(time.Second)}
	newer := &Run{ID: "newer", Bucket: "b", StartedAt: base, FinishedAt: base.Add(time.Hour)}
	require.NoError(t, store.SaveRun(newer, nil))
	require.NoError(t, store.SaveRun(older, nil))

	latest, err := store.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, "newer", latest.ID)
}

func TestClosedStore(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	err := store.SaveRun(&Run{ID: "x"}, nil)
	assert.Error(t, err)

	_, err = store.ListFailed("x")
	assert.Error(t, err)
}

func TestSaveRunRequiresID(t *testing.T) {
	store := newStore(t)
	assert.Error(t, store.SaveRun(&Run{}, nil))
}

func TestIsSQLiteBusyError(t *testing.T) {
	assert.True(t, isSQLiteBusyError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, isSQLiteBusyError(errors.New("no such table")))
	assert.False(t, isSQLiteBusyError(nil))
}
