// Package pool implements a fixed-size connection pool gated by a
// condition variable: Acquire blocks until an idle connection exists or
// the pool has room to create one, instead of spinning. It also fixes
// the two bugs the specification calls out in the source's pool: a
// busy-wait spin in request(), and an evicted connection being handed
// back into circulation past the configured pool size.
package pool

import (
	"context"
	"sync"

	"github.com/lattice-db/lattice/pkg/lerrors"
)

// Factory creates a new pooled connection.
type Factory[T any] func() (T, error)

// Closer releases a pooled connection's underlying resources.
type Closer[T any] func(T) error

// Pool hands out up to size connections at a time, blocking Acquire
// callers past that point until one is Released or Evicted.
type Pool[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	factory Factory[T]
	closer  Closer[T]
	size    int
	idle    []T
	active  int // connections currently checked out, plus idle ones already created
	closed  bool
}

// New builds a Pool that lazily creates up to size connections via
// factory, closing them with closer on Evict/Close.
func New[T any](size int, factory Factory[T], closer Closer[T]) *Pool[T] {
	p := &Pool[T]{factory: factory, closer: closer, size: size}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Acquire returns an idle connection if one exists, creates a new one if
// the pool has room, or blocks on the condition variable until either
// becomes true. It unblocks early if ctx is canceled.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-stop:
		}
	}()

	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.closed {
			return zero, &lerrors.UsageError{Reason: "pool is closed"}
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if n := len(p.idle); n > 0 {
			conn := p.idle[n-1]
			p.idle = p.idle[:n-1]
			return conn, nil
		}
		if p.active < p.size {
			conn, err := p.factory()
			if err != nil {
				return zero, err
			}
			p.active++
			return conn, nil
		}
		p.cond.Wait()
	}
}

// Release returns conn to the idle set and wakes one waiter.
func (p *Pool[T]) Release(conn T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.closeOneLocked(conn)
		return
	}
	p.idle = append(p.idle, conn)
	p.cond.Signal()
}

// Evict closes conn and permanently retires its slot — the fix for the
// source's bug: an evicted connection is never placed back in idle, and
// active is decremented so the slot can be refilled by a fresh Acquire
// rather than silently growing the pool past size.
func (p *Pool[T]) Evict(conn T) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
	p.cond.Signal()
	return p.closer(conn)
}

func (p *Pool[T]) closeOneLocked(conn T) {
	p.closer(conn)
}

// Close closes every idle connection and marks the pool closed; any
// connection still checked out is closed when its owner calls Release.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var firstErr error
	for _, conn := range p.idle {
		if err := p.closer(conn); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.idle = nil
	p.cond.Broadcast()
	return firstErr
}

// Len reports the number of idle connections currently cached.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
