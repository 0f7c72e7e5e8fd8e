package credentials

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool_RequiresToken(t *testing.T) {
	_, err := NewPool(nil, 0)
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestPool_RoundRobin(t *testing.T) {
	p, err := NewPool([]string{"a", "b", "c"}, 0)
	require.NoError(t, err)

	var got []int
	for i := 0; i < 7; i++ {
		got = append(got, p.Next())
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, got)
}

func TestPool_AcquireWraps(t *testing.T) {
	p, err := NewPool([]string{"a", "b"}, 0)
	require.NoError(t, err)

	assert.Equal(t, Credential{Index: 0, Token: "a"}, p.Acquire(0))
	assert.Equal(t, Credential{Index: 1, Token: "b"}, p.Acquire(3))
	assert.Equal(t, Credential{Index: 1, Token: "b"}, p.Acquire(-1))
}

func TestPool_ObserveState(t *testing.T) {
	p, err := NewPool([]string{"a", "b"}, 0)
	require.NoError(t, err)

	assert.False(t, p.State(1).Observed)

	reset := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.Observe(1, 42, reset)

	w := p.State(1)
	assert.True(t, w.Observed)
	assert.Equal(t, 42, w.Remaining)
	assert.Equal(t, reset, w.ResetAt)
	assert.False(t, p.State(0).Observed)
}

func TestPool_ConcurrentNext(t *testing.T) {
	p, err := NewPool([]string{"a", "b", "c", "d"}, 0)
	require.NoError(t, err)

	var mu sync.Mutex
	counts := make(map[int]int)
	var wg sync.WaitGroup
	for i := 0; i < 400; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx := p.Next()
			mu.Lock()
			counts[idx]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		assert.Equal(t, 100, counts[i], "credential %d", i)
	}
}

func TestPool_WaitUnlimited(t *testing.T) {
	p, err := NewPool([]string{"a"}, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(ctx, 0))
	}
}

func TestPool_WaitHonoursContext(t *testing.T) {
	p, err := NewPool([]string{"a"}, 0.001)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Wait(ctx, 0), "burst admits the first request")
	assert.Error(t, p.Wait(ctx, 0))
}
