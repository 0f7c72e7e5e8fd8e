package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Store is the persistent writer a Graph flushes into; satisfied by
// *storage.Storage
type Store interface {
	UpsertSubject(ctx context.Context, login string) error
	UpsertCollection(ctx context.Context, name string) error
	UpsertLanguage(ctx context.Context, name, color string) error
	RecordContains(ctx context.Context, collection, language string, size int) error
	RecordContributes(ctx context.Context, login, collection string, count int) error
}

type edgeKey struct {
	from string
	to   string
}

// Graph buffers crawl writes in memory and replays them into a Store on
// Flush. Repeated writes collapse to the last value, so the flush issues one
// upsert per entity and per edge. Edges are kept even when an endpoint is not
// buffered; the store resolves endpoints when the edge is flushed.
type Graph struct {
	mu          sync.RWMutex
	subjects    map[string]struct{}
	collections map[string]struct{}
	languages   map[string]string // name -> color
	contributes map[edgeKey]int   // login -> collection
	contains    map[edgeKey]int   // collection -> language
}

// NewGraph creates an empty in-memory graph
func NewGraph() *Graph {
	return &Graph{
		subjects:    make(map[string]struct{}),
		collections: make(map[string]struct{}),
		languages:   make(map[string]string),
		contributes: make(map[edgeKey]int),
		contains:    make(map[edgeKey]int),
	}
}

// UpsertSubject buffers a user
func (g *Graph) UpsertSubject(_ context.Context, login string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subjects[login] = struct{}{}
	return nil
}

// UpsertCollection buffers a repository
func (g *Graph) UpsertCollection(_ context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.collections[name] = struct{}{}
	return nil
}

// UpsertLanguage buffers a language. An empty color keeps the known one.
func (g *Graph) UpsertLanguage(_ context.Context, name, color string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.languages[name]; ok && color == "" {
		color = current
	}
	g.languages[name] = color
	return nil
}

// RecordContains buffers a repository -> language edge
func (g *Graph) RecordContains(_ context.Context, collection, language string, size int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contains[edgeKey{collection, language}] = size
	return nil
}

// RecordContributes buffers a user -> repository edge
func (g *Graph) RecordContributes(_ context.Context, login, collection string, count int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contributes[edgeKey{login, collection}] = count
	return nil
}

// HasSubject reports whether login was buffered
func (g *Graph) HasSubject(login string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.subjects[login]
	return ok
}

// Contribution returns a buffered contribution count
func (g *Graph) Contribution(login, collection string) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	count, ok := g.contributes[edgeKey{login, collection}]
	return count, ok
}

// GetStats returns current graph statistics
func (g *Graph) GetStats() (nodeCount, edgeCount int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.subjects) + len(g.collections) + len(g.languages), len(g.contributes) + len(g.contains)
}

// Flush writes all buffered data to store, entities before edges so that
// edges can resolve their endpoints. Failed writes are logged and the first
// error is returned after everything else was attempted.
func (g *Graph) Flush(ctx context.Context, store Store) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	startTime := time.Now()
	logrus.Info("Starting flush to database...")

	var firstErr error
	fail := func(what string, err error) {
		if firstErr == nil {
			firstErr = err
		}
		logrus.Warnf("Failed to flush %s: %v", what, err)
	}

	nodesWritten := 0
	for _, login := range sortedKeys(g.subjects) {
		if err := store.UpsertSubject(ctx, login); err != nil {
			fail("user "+login, err)
			continue
		}
		nodesWritten++
	}
	for _, name := range sortedKeys(g.collections) {
		if err := store.UpsertCollection(ctx, name); err != nil {
			fail("repo "+name, err)
			continue
		}
		nodesWritten++
	}
	for name, color := range g.languages {
		if err := store.UpsertLanguage(ctx, name, color); err != nil {
			fail("language "+name, err)
			continue
		}
		nodesWritten++
	}

	edgesWritten := 0
	for k, size := range g.contains {
		if err := store.RecordContains(ctx, k.from, k.to, size); err != nil {
			fail("contains "+k.from+" -> "+k.to, err)
			continue
		}
		edgesWritten++
	}
	for k, count := range g.contributes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := store.RecordContributes(ctx, k.from, k.to, count); err != nil {
			fail("contributes "+k.from+" -> "+k.to, err)
			continue
		}
		edgesWritten++
	}

	duration := time.Since(startTime)
	logrus.Infof("Flush complete: %d nodes, %d edges written in %v", nodesWritten, edgesWritten, duration)

	return firstErr
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
