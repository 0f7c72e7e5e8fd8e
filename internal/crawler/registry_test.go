package crawler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry_Namespaces(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()

	won, err := r.TryClaim(ctx, NamespaceSubject, "go")
	require.NoError(t, err)
	assert.True(t, won)

	won, _ = r.TryClaim(ctx, NamespaceSubject, "go")
	assert.False(t, won)

	won, _ = r.TryClaim(ctx, NamespaceCollection, "go")
	assert.True(t, won, "namespaces are disjoint")

	seen, _ := r.Claimed(ctx, NamespaceSubject, "rust")
	assert.False(t, seen)
}

func TestMemoryRegistry_SnapshotRestore(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()
	r.TryClaim(ctx, NamespaceCollection, "b/b")
	r.TryClaim(ctx, NamespaceCollection, "a/a")

	restored := NewMemoryRegistry()
	restored.Restore(NamespaceCollection, r.Snapshot(NamespaceCollection))

	assert.Equal(t, []string{"a/a", "b/b"}, restored.Snapshot(NamespaceCollection))
	won, _ := restored.TryClaim(ctx, NamespaceCollection, "a/a")
	assert.False(t, won)
}

func assertSingleWinner(t *testing.T, r Registry) {
	t.Helper()
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := r.TryClaim(ctx, NamespaceSubject, "contended")
			assert.NoError(t, err)
			if won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryRegistry_ConcurrentClaims(t *testing.T) {
	assertSingleWinner(t, NewMemoryRegistry())
}

func TestRedisRegistry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	r := NewRedisRegistry(client, "")
	assertSingleWinner(t, r)

	seen, err := r.Claimed(ctx, NamespaceSubject, "contended")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = r.Claimed(ctx, NamespaceCollection, "contended")
	require.NoError(t, err)
	assert.False(t, seen)

	n, err := r.Count(ctx, NamespaceSubject)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	members, err := mr.Members("devrank:visited:subject")
	require.NoError(t, err)
	assert.Equal(t, []string{"contended"}, members)
}

func TestRedisRegistry_PrefixIsolatesRuns(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	first := NewRedisRegistry(client, "run:"+uuid.NewString()+":")
	second := NewRedisRegistry(client, "run:"+uuid.NewString()+":")

	won, err := first.TryClaim(ctx, NamespaceSubject, "octocat")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = second.TryClaim(ctx, NamespaceSubject, "octocat")
	require.NoError(t, err)
	assert.True(t, won)
}

func TestRedisRegistry_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	_, err := NewRedisRegistry(client, "").TryClaim(context.Background(), NamespaceSubject, "octocat")
	assert.Error(t, err)
}
