package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)
	ctx := context.Background()

	_, err := store.StartRun(ctx, "src", "import")
	assert.ErrorIs(t, err, errNotOpened)
	assert.ErrorIs(t, store.Migrate(), errNotOpened)
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_MigrationVersion(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	latest, err := store.LatestRun(ctx, "dump.surql")
	require.NoError(t, err)
	assert.Nil(t, latest)

	run, err := store.StartRun(ctx, "dump.surql", "import")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	require.NoError(t, store.FinishRun(ctx, run.ID, RunStatusFailed, "table posts failed"))

	latest, err = store.LatestRun(ctx, "dump.surql")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, RunStatusFailed, latest.Status)
	assert.Equal(t, "table posts failed", latest.Error)
	assert.NotNil(t, latest.CompletedAt)

	err = store.FinishRun(ctx, "missing", RunStatusCompleted, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLiteStore_Checkpoints(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	const src = "dump.surql@ns/db"

	done, err := store.DefinitionsDone(ctx, src)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, store.MarkDefinitionsDone(ctx, src, 12))
	require.NoError(t, store.MarkDefinitionsDone(ctx, src, 12))
	done, err = store.DefinitionsDone(ctx, src)
	require.NoError(t, err)
	assert.True(t, done)

	p, err := store.TableProgress(ctx, src, 0)
	require.NoError(t, err)
	assert.Equal(t, TableProgress{Segment: 0}, p)

	require.NoError(t, store.SaveTableProgress(ctx, src, TableProgress{Segment: 0, Table: "users", Completed: 10, Total: 30}))
	require.NoError(t, store.SaveTableProgress(ctx, src, TableProgress{Segment: 0, Table: "users", Completed: 30, Total: 30}))
	require.NoError(t, store.SaveTableProgress(ctx, src, TableProgress{Segment: 1, Table: "posts", Completed: 5, Total: 9}))

	p, err = store.TableProgress(ctx, src, 0)
	require.NoError(t, err)
	assert.True(t, p.Done())
	assert.Equal(t, "users", p.Table)

	all, err := store.ListTableProgress(ctx, src)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.False(t, all[1].Done())

	require.NoError(t, store.SaveReplayProgress(ctx, src, 40, 100))
	completed, err := store.ReplayProgress(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 40, completed)

	require.NoError(t, store.Reset(ctx, src))
	done, err = store.DefinitionsDone(ctx, src)
	require.NoError(t, err)
	assert.False(t, done)
	all, err = store.ListTableProgress(ctx, src)
	require.NoError(t, err)
	assert.Empty(t, all)
	completed, err = store.ReplayProgress(ctx, src)
	require.NoError(t, err)
	assert.Zero(t, completed)
}

func TestSQLiteStore_FilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	require.NoError(t, store.Migrate())
	require.NoError(t, store.SaveReplayProgress(ctx, "src", 7, 10))
	require.NoError(t, store.Close())

	reopened := NewSQLiteStore(nil)
	require.NoError(t, reopened.Open(path))
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.Migrate())

	completed, err := reopened.ReplayProgress(ctx, "src")
	require.NoError(t, err)
	assert.Equal(t, 7, completed)
}
