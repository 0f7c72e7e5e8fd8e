// Package credentials holds the API tokens a crawl can spread its requests
// over, together with the last rate-limit window observed for each one.
package credentials

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ErrNoCredentials is returned when a pool is built without any token
var ErrNoCredentials = errors.New("credentials: at least one token is required")

// Credential is a token bound to its pool index
type Credential struct {
	Index int
	Token string
}

// Window is the rate-limit state last reported for a credential
type Window struct {
	Remaining int
	ResetAt   time.Time
	Observed  bool
}

type entry struct {
	token   string
	mu      sync.Mutex
	window  Window
	limiter *rate.Limiter
}

// Pool hands out credentials round-robin. The same credential may be used by
// several callers at once; throttling is the executor's concern.
type Pool struct {
	entries []*entry
	cur     atomic.Int64
}

// NewPool creates a pool over tokens. requestsPerSecond > 0 installs a
// per-credential limiter that Wait enforces; 0 leaves credentials unthrottled.
func NewPool(tokens []string, requestsPerSecond float64) (*Pool, error) {
	if len(tokens) == 0 {
		return nil, ErrNoCredentials
	}

	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = max(1, int(requestsPerSecond))
	}

	p := &Pool{entries: make([]*entry, len(tokens))}
	for i, tok := range tokens {
		p.entries[i] = &entry{
			token:   tok,
			limiter: rate.NewLimiter(limit, burst),
		}
	}
	return p, nil
}

// Size returns the number of credentials
func (p *Pool) Size() int {
	return len(p.entries)
}

// Next returns the next index in round-robin order
func (p *Pool) Next() int {
	n := p.cur.Add(1) - 1
	return int(n % int64(len(p.entries)))
}

// Acquire returns the credential at index, wrapping modulo the pool size
func (p *Pool) Acquire(index int) Credential {
	i := p.wrap(index)
	return Credential{Index: i, Token: p.entries[i].token}
}

// Wait blocks until the credential's limiter admits one more request
func (p *Pool) Wait(ctx context.Context, index int) error {
	return p.entries[p.wrap(index)].limiter.Wait(ctx)
}

// Observe records the rate-limit window reported with a response
func (p *Pool) Observe(index, remaining int, resetAt time.Time) {
	e := p.entries[p.wrap(index)]
	e.mu.Lock()
	defer e.mu.Unlock()
	e.window = Window{Remaining: remaining, ResetAt: resetAt, Observed: true}
}

// State returns the last observed window for the credential at index
func (p *Pool) State(index int) Window {
	e := p.entries[p.wrap(index)]
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window
}

func (p *Pool) wrap(index int) int {
	n := len(p.entries)
	i := index % n
	if i < 0 {
		i += n
	}
	return i
}
