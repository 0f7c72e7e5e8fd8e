package crawler

import (
	"context"
	"sort"
	"sync"
)

// Namespace separates identifier spaces; a login and a collection name never
// collide even when textually equal
type Namespace string

const (
	NamespaceSubject    Namespace = "subject"
	NamespaceCollection Namespace = "collection"
)

// Registry is the deduplication oracle. TryClaim atomically tests membership
// and inserts, reporting whether the caller won the claim. Claims are never
// released.
type Registry interface {
	TryClaim(ctx context.Context, ns Namespace, id string) (bool, error)
	Claimed(ctx context.Context, ns Namespace, id string) (bool, error)
}

// MemoryRegistry is a process-local Registry
type MemoryRegistry struct {
	mu      sync.Mutex
	claimed map[Namespace]map[string]struct{}
}

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		claimed: map[Namespace]map[string]struct{}{
			NamespaceSubject:    {},
			NamespaceCollection: {},
		},
	}
}

// TryClaim implements Registry
func (r *MemoryRegistry) TryClaim(_ context.Context, ns Namespace, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.set(ns)
	if _, ok := set[id]; ok {
		return false, nil
	}
	set[id] = struct{}{}
	return true, nil
}

// Claimed implements Registry
func (r *MemoryRegistry) Claimed(_ context.Context, ns Namespace, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.set(ns)[id]
	return ok, nil
}

// Snapshot returns the sorted claimed identifiers of a namespace, for callers
// that want to persist registry state between runs
func (r *MemoryRegistry) Snapshot(ns Namespace) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.claimed[ns]))
	for id := range r.claimed[ns] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Restore marks ids as already claimed
func (r *MemoryRegistry) Restore(ns Namespace, ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.set(ns)
	for _, id := range ids {
		set[id] = struct{}{}
	}
}

// set must be called with mu held
func (r *MemoryRegistry) set(ns Namespace) map[string]struct{} {
	s, ok := r.claimed[ns]
	if !ok {
		s = make(map[string]struct{})
		r.claimed[ns] = s
	}
	return s
}
