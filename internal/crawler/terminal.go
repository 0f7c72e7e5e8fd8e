package crawler

import "sync"

// TerminalSet collects subjects discovered with no hop budget left. It keeps
// discovery order and holds each login at most once.
type TerminalSet struct {
	mu    sync.Mutex
	items []string
	index map[string]struct{}
}

// NewTerminalSet creates an empty terminal set
func NewTerminalSet() *TerminalSet {
	return &TerminalSet{index: make(map[string]struct{})}
}

// Add appends login unless already present, reporting whether it was added
func (t *TerminalSet) Add(login string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.index[login]; ok {
		return false
	}
	t.index[login] = struct{}{}
	t.items = append(t.items, login)
	return true
}

// Contains reports whether login is in the set
func (t *TerminalSet) Contains(login string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.index[login]
	return ok
}

// Len returns the number of terminal subjects
func (t *TerminalSet) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Items returns a copy of the set in discovery order
func (t *TerminalSet) Items() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.items...)
}

// Shard splits the set into k stride partitions: shard i holds items
// i, i+k, i+2k, ... Empty shards are kept so shard i maps to worker i.
func (t *TerminalSet) Shard(k int) [][]string {
	if k < 1 {
		k = 1
	}
	items := t.Items()

	shards := make([][]string, k)
	for i, login := range items {
		shards[i%k] = append(shards[i%k], login)
	}
	return shards
}

// Remove drops login, reporting whether it was present
func (t *TerminalSet) Remove(login string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.index[login]; !ok {
		return false
	}
	delete(t.index, login)
	for i, item := range t.items {
		if item == login {
			t.items = append(t.items[:i], t.items[i+1:]...)
			break
		}
	}
	return true
}
