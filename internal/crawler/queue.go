package crawler

import (
	"sync"
)

// Frontier is the FIFO work queue of the bounded phase. It does not
// deduplicate: a login may be pushed from several collections before its
// first expansion claims it, and later expansions become no-ops.
type Frontier struct {
	mu    sync.Mutex
	items []CrawlTask
	head  int
}

// NewFrontier creates an empty frontier
func NewFrontier() *Frontier {
	return &Frontier{}
}

// Push appends a task
func (f *Frontier) Push(task CrawlTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, task)
}

// Pop removes and returns the oldest task
// Returns (task, true) if one was available, (empty, false) if drained
func (f *Frontier) Pop() (CrawlTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.head >= len(f.items) {
		return CrawlTask{}, false
	}
	task := f.items[f.head]
	f.items[f.head] = CrawlTask{}
	f.head++

	// Compact once the consumed prefix dominates the backing array
	if f.head > 1024 && f.head*2 > len(f.items) {
		f.items = append([]CrawlTask(nil), f.items[f.head:]...)
		f.head = 0
	}
	return task, true
}

// IsEmpty returns true if the frontier has no pending tasks
func (f *Frontier) IsEmpty() bool {
	return f.Size() == 0
}

// Size returns the number of pending tasks
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items) - f.head
}

// Entries returns a snapshot of the pending tasks in order
// Used for persisting frontier state on checkpoint/shutdown
func (f *Frontier) Entries() []CrawlTask {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := make([]CrawlTask, len(f.items)-f.head)
	copy(entries, f.items[f.head:])
	return entries
}
