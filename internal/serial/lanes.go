// Package serial runs tasks one at a time per resource key. Tasks for different
// keys proceed in parallel.
package serial

import (
	"context"
	"sync"
)

type lane struct {
	slot chan struct{}
	refs int
}

// Lanes is a set of single-writer queues keyed by resource.
type Lanes struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

// New returns an empty set of lanes.
func New() *Lanes {
	return &Lanes{lanes: make(map[string]*lane)}
}

// Do runs fn once no other task holds key. It returns ctx.Err() without running fn
// if ctx ends while waiting.
func (l *Lanes) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	ln := l.acquire(key)
	defer l.release(key, ln)

	select {
	case ln.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ln.slot }()

	return fn(ctx)
}

// Len reports how many keys currently have queued or running tasks.
func (l *Lanes) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}

func (l *Lanes) acquire(key string) *lane {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{slot: make(chan struct{}, 1)}
		l.lanes[key] = ln
	}
	ln.refs++
	return ln
}

func (l *Lanes) release(key string, ln *lane) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln.refs--
	if ln.refs == 0 {
		delete(l.lanes, key)
	}
}
