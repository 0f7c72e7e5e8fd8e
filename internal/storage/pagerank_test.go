package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageRank_SymmetricPair(t *testing.T) {
	ranks := PageRank([]string{"a", "b"}, []WeightedEdge{
		{From: "a", To: "b", Weight: 2},
		{From: "b", To: "a", Weight: 2},
	}, 20, 0.85)

	// r(n) = 0.15 + 0.85 r(n-1) starting at 0.15
	want := 1 - math.Pow(0.85, 21)
	assert.InDelta(t, want, ranks["a"], 1e-9)
	assert.InDelta(t, want, ranks["b"], 1e-9)
}

func TestPageRank_IsolatedNodeKeepsBase(t *testing.T) {
	ranks := PageRank([]string{"a", "b", "lonely"}, []WeightedEdge{
		{From: "a", To: "b", Weight: 1},
	}, 20, 0.85)

	assert.InDelta(t, 0.15, ranks["lonely"], 1e-12)
	assert.InDelta(t, 0.15, ranks["a"], 1e-12)
	assert.InDelta(t, 0.15+0.85*0.15, ranks["b"], 1e-12)
}

func TestPageRank_WeightsSplitRank(t *testing.T) {
	ranks := PageRank([]string{"a", "heavy", "light"}, []WeightedEdge{
		{From: "a", To: "heavy", Weight: 3},
		{From: "a", To: "light", Weight: 1},
	}, 20, 0.85)

	assert.InDelta(t, 0.15+0.85*0.15*0.75, ranks["heavy"], 1e-12)
	assert.InDelta(t, 0.15+0.85*0.15*0.25, ranks["light"], 1e-12)
}

func TestPageRank_IgnoresUnknownAndEmptyEdges(t *testing.T) {
	ranks := PageRank([]string{"a", "b", "a"}, []WeightedEdge{
		{From: "ghost", To: "a", Weight: 10},
		{From: "a", To: "ghost", Weight: 10},
		{From: "a", To: "b", Weight: 0},
	}, 5, 0.85)

	assert.Len(t, ranks, 2)
	assert.InDelta(t, 0.15, ranks["a"], 1e-12)
	assert.InDelta(t, 0.15, ranks["b"], 1e-12)
}

func TestPageRank_HubCollectsRank(t *testing.T) {
	ranks := PageRank([]string{"hub", "x", "y", "z"}, []WeightedEdge{
		{From: "x", To: "hub", Weight: 1},
		{From: "y", To: "hub", Weight: 1},
		{From: "z", To: "hub", Weight: 1},
		{From: "hub", To: "x", Weight: 1},
	}, 20, 0.85)

	for _, n := range []string{"x", "y", "z"} {
		assert.Greater(t, ranks["hub"], ranks[n], n)
	}
	assert.Greater(t, ranks["x"], ranks["y"])
}
