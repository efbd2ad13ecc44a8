package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RecordAndLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Record(ctx, Entry{
		Label:      "General Chemistry",
		SourcePath: "/w/restored.js",
		DestPath:   "/w/script.js",
		OldBody:    "old",
		NewBody:    "new",
		OldHash:    "h-old",
		NewHash:    "h-new",
		CommitSHA:  "abc123",
	})
	require.NoError(t, err)

	second, err := store.Record(ctx, Entry{
		Action:   ActionRevert,
		Label:    "General Chemistry",
		DestPath: "/w/script.js",
		OldBody:  "new",
		NewBody:  "old",
	})
	require.NoError(t, err)
	assert.Greater(t, second, first)

	latest, err := store.Latest(ctx, "/w/script.js", "General Chemistry")
	require.NoError(t, err)
	assert.Equal(t, first, latest.ID)
	assert.Equal(t, ActionSplice, latest.Action)
	assert.Equal(t, "new", latest.NewBody)
	assert.Equal(t, "/w/restored.js", latest.SourcePath)
	assert.WithinDuration(t, time.Now(), latest.CreatedAt, time.Minute)

	entries, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionRevert, entries[0].Action)
	assert.Empty(t, entries[0].SourcePath)
	assert.Equal(t, ActionSplice, entries[1].Action)
	assert.Equal(t, "abc123", entries[1].CommitSHA)
	assert.Equal(t, "/w/restored.js", entries[1].SourcePath)
}

func TestSQLiteStore_LatestOnlyRevertsIsMissing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Record(ctx, Entry{Action: ActionRevert, Label: "Reading", DestPath: "/w/script.js"})
	require.NoError(t, err)

	_, err = store.Latest(ctx, "/w/script.js", "Reading")
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestSQLiteStore_LatestMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Latest(context.Background(), "/w/script.js", "Reading")
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestSQLiteStore_ListFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, e := range []Entry{
		{Label: "A", DestPath: "one.js"},
		{Label: "B", DestPath: "one.js"},
		{Label: "A", DestPath: "two.js"},
		{Label: "A", DestPath: "one.js"},
	} {
		_, err := store.Record(ctx, e)
		require.NoError(t, err)
	}

	byDest, err := store.List(ctx, Filter{DestPath: "one.js"})
	require.NoError(t, err)
	assert.Len(t, byDest, 3)

	byBoth, err := store.List(ctx, Filter{DestPath: "one.js", Label: "A"})
	require.NoError(t, err)
	assert.Len(t, byBoth, 2)

	limited, err := store.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, int64(4), limited[0].ID)
}

func TestSQLiteStore_ReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = store.Record(ctx, Entry{Label: "A", DestPath: "x.js", NewBody: "ΔS"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	latest, err := reopened.Latest(ctx, "x.js", "A")
	require.NoError(t, err)
	assert.Equal(t, "ΔS", latest.NewBody)
}
