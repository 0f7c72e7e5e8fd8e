package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStorage_UpsertsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	for i := 0; i < 2; i++ {
		require.NoError(t, store.UpsertSubject(ctx, "octocat"))
		require.NoError(t, store.UpsertCollection(ctx, "octo/repo"))
		require.NoError(t, store.UpsertLanguage(ctx, "Go", "#00ADD8"))
		require.NoError(t, store.RecordContains(ctx, "octo/repo", "Go", 5000))
		require.NoError(t, store.RecordContributes(ctx, "octocat", "octo/repo", 12))
	}

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Users: 1, Repos: 1, Languages: 1, Contributes: 1, Contains: 1}, st)

	count, ok, err := store.Contribution(ctx, "octocat", "octo/repo")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 12, count)
}

func TestStorage_EdgeCountsAreReplaced(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	require.NoError(t, store.UpsertSubject(ctx, "octocat"))
	require.NoError(t, store.UpsertCollection(ctx, "octo/repo"))
	require.NoError(t, store.RecordContributes(ctx, "octocat", "octo/repo", 3))
	require.NoError(t, store.RecordContributes(ctx, "octocat", "octo/repo", 9))

	count, _, err := store.Contribution(ctx, "octocat", "octo/repo")
	require.NoError(t, err)
	assert.Equal(t, 9, count)
}

func TestStorage_EdgesToMissingEndpointsAreDropped(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	require.NoError(t, store.UpsertSubject(ctx, "octocat"))
	require.NoError(t, store.RecordContributes(ctx, "octocat", "never/materialized", 4))
	require.NoError(t, store.RecordContributes(ctx, "ghost", "never/materialized", 4))
	require.NoError(t, store.RecordContains(ctx, "never/materialized", "Go", 10))

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Contributes)
	assert.Zero(t, st.Contains)

	_, ok, err := store.Contribution(ctx, "octocat", "never/materialized")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorage_LanguageColorIsKept(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	require.NoError(t, store.UpsertLanguage(ctx, "Go", "#00ADD8"))
	require.NoError(t, store.UpsertLanguage(ctx, "Go", ""))

	var color string
	require.NoError(t, store.db.QueryRow(`SELECT color FROM languages WHERE name = 'Go'`).Scan(&color))
	assert.Equal(t, "#00ADD8", color)
}

func TestStorage_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	require.NoError(t, store.UpsertCollection(ctx, "octo/repo"))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				assert.NoError(t, store.UpsertSubject(ctx, "shared"))
				assert.NoError(t, store.RecordContributes(ctx, "shared", "octo/repo", i))
			}
		}()
	}
	wg.Wait()

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Users)
	assert.Equal(t, 1, st.Contributes)
}

// seedGraph writes two repos shared by three users
//
//	r1: a(2) b(3)          languages Go
//	r2: a(1) b(4) c(5)     languages Rust
func seedGraph(t *testing.T, store *Storage) {
	t.Helper()
	ctx := context.Background()

	for _, u := range []string{"a", "b", "c"} {
		require.NoError(t, store.UpsertSubject(ctx, u))
	}
	for _, r := range []string{"o/r1", "o/r2"} {
		require.NoError(t, store.UpsertCollection(ctx, r))
	}
	require.NoError(t, store.UpsertLanguage(ctx, "Go", "#00ADD8"))
	require.NoError(t, store.UpsertLanguage(ctx, "Rust", "#dea584"))
	require.NoError(t, store.RecordContains(ctx, "o/r1", "Go", 100))
	require.NoError(t, store.RecordContains(ctx, "o/r2", "Rust", 100))

	edges := []struct {
		login, repo string
		count       int
	}{
		{"a", "o/r1", 2}, {"b", "o/r1", 3},
		{"a", "o/r2", 1}, {"b", "o/r2", 4}, {"c", "o/r2", 5},
	}
	for _, e := range edges {
		require.NoError(t, store.RecordContributes(ctx, e.login, e.repo, e.count))
	}
}

func TestStorage_DeriveRelations(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	seedGraph(t, store)

	require.NoError(t, store.DeriveRelations(ctx))

	knows, err := store.KnowsEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, []WeightedEdge{
		{From: "a", To: "b", Weight: 7},
		{From: "a", To: "c", Weight: 5},
		{From: "b", To: "a", Weight: 3},
		{From: "b", To: "c", Weight: 5},
		{From: "c", To: "a", Weight: 1},
		{From: "c", To: "b", Weight: 4},
	}, knows)

	codes := map[[2]string]int{
		{"a", "Go"}: 2, {"a", "Rust"}: 1,
		{"b", "Go"}: 3, {"b", "Rust"}: 4,
		{"c", "Rust"}: 5,
	}
	for key, want := range codes {
		got, ok, err := store.CodesIn(ctx, key[0], key[1])
		require.NoError(t, err)
		require.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
	_, ok, err := store.CodesIn(ctx, "c", "Go")
	require.NoError(t, err)
	assert.False(t, ok)

	// Rebuilding from scratch leaves the same relations
	require.NoError(t, store.DeriveRelations(ctx))
	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, st.Knows)
	assert.Equal(t, 5, st.CodesIn)

	top, err := store.TopRanked(ctx, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	for _, u := range top {
		assert.Greater(t, u.PageRank, 0.15)
	}
	assert.GreaterOrEqual(t, top[0].PageRank, top[1].PageRank)
	assert.GreaterOrEqual(t, top[1].PageRank, top[2].PageRank)
}

func TestStorage_DeriveOnEmptyGraph(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	require.NoError(t, store.DeriveRelations(ctx))
	top, err := store.TopRanked(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}
