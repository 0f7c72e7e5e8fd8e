package crawler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontier_FIFO(t *testing.T) {
	f := NewFrontier()
	assert.True(t, f.IsEmpty())

	f.Push(CrawlTask{Login: "a", Hops: 2})
	f.Push(CrawlTask{Login: "b", Hops: 1})
	f.Push(CrawlTask{Login: "a", Hops: 1})
	require.Equal(t, 3, f.Size(), "duplicates are kept")

	for _, want := range []CrawlTask{{"a", 2}, {"b", 1}, {"a", 1}} {
		got, ok := f.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := f.Pop()
	assert.False(t, ok)
}

func TestFrontier_CompactionKeepsOrder(t *testing.T) {
	f := NewFrontier()
	for i := 0; i < 3000; i++ {
		f.Push(CrawlTask{Login: fmt.Sprintf("u%d", i), Hops: 1})
	}
	for i := 0; i < 2500; i++ {
		got, ok := f.Pop()
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("u%d", i), got.Login)
	}

	entries := f.Entries()
	require.Len(t, entries, 500)
	assert.Equal(t, "u2500", entries[0].Login)
	assert.Equal(t, "u2999", entries[499].Login)
}

func TestTerminalSet(t *testing.T) {
	ts := NewTerminalSet()
	assert.True(t, ts.Add("a"))
	assert.True(t, ts.Add("b"))
	assert.False(t, ts.Add("a"))
	assert.True(t, ts.Add("c"))

	assert.Equal(t, []string{"a", "b", "c"}, ts.Items())
	assert.True(t, ts.Contains("b"))

	assert.True(t, ts.Remove("b"))
	assert.False(t, ts.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, ts.Items())
	assert.Equal(t, 2, ts.Len())
}

func TestTerminalSet_Shard(t *testing.T) {
	ts := NewTerminalSet()
	for _, login := range []string{"t0", "t1", "t2", "t3", "t4"} {
		ts.Add(login)
	}

	assert.Equal(t, [][]string{{"t0", "t3"}, {"t1", "t4"}, {"t2"}}, ts.Shard(3))
	assert.Equal(t, [][]string{{"t0", "t1", "t2", "t3", "t4"}}, ts.Shard(0))

	shards := ts.Shard(7)
	require.Len(t, shards, 7)
	assert.Nil(t, shards[6])
}
