package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alvmarrod/devrank/internal/crawler"
	"github.com/alvmarrod/devrank/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ crawler.GraphWriter = (*Graph)(nil)
	_ Store               = (*storage.Storage)(nil)
)

func TestGraph_CollapsesRepeatedWrites(t *testing.T) {
	ctx := context.Background()
	g := NewGraph()

	require.NoError(t, g.UpsertSubject(ctx, "octocat"))
	require.NoError(t, g.UpsertSubject(ctx, "octocat"))
	require.NoError(t, g.UpsertCollection(ctx, "octo/repo"))
	require.NoError(t, g.UpsertLanguage(ctx, "Go", "#00ADD8"))
	require.NoError(t, g.UpsertLanguage(ctx, "Go", ""))
	require.NoError(t, g.RecordContributes(ctx, "octocat", "octo/repo", 1))
	require.NoError(t, g.RecordContributes(ctx, "octocat", "octo/repo", 5))

	nodes, edges := g.GetStats()
	assert.Equal(t, 3, nodes)
	assert.Equal(t, 1, edges)

	count, ok := g.Contribution("octocat", "octo/repo")
	assert.True(t, ok)
	assert.Equal(t, 5, count)
	assert.Equal(t, "#00ADD8", g.languages["Go"])
	assert.True(t, g.HasSubject("octocat"))
}

func TestGraph_FlushIntoStorage(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	defer store.Close()

	g := NewGraph()
	require.NoError(t, g.UpsertSubject(ctx, "octocat"))
	require.NoError(t, g.UpsertCollection(ctx, "octo/repo"))
	require.NoError(t, g.UpsertLanguage(ctx, "Go", "#00ADD8"))
	require.NoError(t, g.RecordContains(ctx, "octo/repo", "Go", 900))
	require.NoError(t, g.RecordContributes(ctx, "octocat", "octo/repo", 4))
	require.NoError(t, g.RecordContributes(ctx, "octocat", "never/materialized", 2))

	require.NoError(t, g.Flush(ctx, store))
	// A second flush is a no-op on the stored graph
	require.NoError(t, g.Flush(ctx, store))

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Stats{Users: 1, Repos: 1, Languages: 1, Contributes: 1, Contains: 1}, st)

	count, ok, err := store.Contribution(ctx, "octocat", "octo/repo")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, count)
}

type failingStore struct {
	calls int
}

var errStore = errors.New("disk full")

func (f *failingStore) UpsertSubject(context.Context, string) error {
	f.calls++
	return errStore
}

func (f *failingStore) UpsertCollection(context.Context, string) error {
	f.calls++
	return nil
}

func (f *failingStore) UpsertLanguage(context.Context, string, string) error {
	f.calls++
	return nil
}

func (f *failingStore) RecordContains(context.Context, string, string, int) error {
	f.calls++
	return nil
}

func (f *failingStore) RecordContributes(context.Context, string, string, int) error {
	f.calls++
	return nil
}

func TestGraph_FlushReportsFirstErrorAndContinues(t *testing.T) {
	ctx := context.Background()
	g := NewGraph()
	g.UpsertSubject(ctx, "a")
	g.UpsertSubject(ctx, "b")
	g.UpsertCollection(ctx, "o/r")
	g.RecordContributes(ctx, "a", "o/r", 1)

	store := &failingStore{}
	err := g.Flush(ctx, store)
	require.ErrorIs(t, err, errStore)
	assert.Equal(t, 4, store.calls)
}
