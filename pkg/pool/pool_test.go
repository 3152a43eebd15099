package pool_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lattice-db/lattice/pkg/pool"
)

type conn struct{ id int }

func newCountingFactory() (func() (*conn, error), *int32) {
	var n int32
	return func() (*conn, error) {
		id := atomic.AddInt32(&n, 1)
		return &conn{id: int(id)}, nil
	}, &n
}

func TestAcquireCreatesUpToSizeThenBlocks(t *testing.T) {
	factory, created := newCountingFactory()
	p := pool.New(2, factory, func(*conn) error { return nil })

	ctx := context.Background()
	c1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	c2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if *created != 2 {
		t.Fatalf("created = %d, want 2", *created)
	}

	blocked := make(chan *conn, 1)
	go func() {
		c, err := p.Acquire(context.Background())
		if err != nil {
			return
		}
		blocked <- c
	}()

	select {
	case <-blocked:
		t.Fatal("Acquire should have blocked: pool already at size")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(c1)
	select {
	case got := <-blocked:
		if got != c1 {
			t.Fatalf("blocked Acquire returned %v, want the released connection %v", got, c1)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not unblock after Release")
	}
	p.Release(c2)
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	factory, _ := newCountingFactory()
	p := pool.New(1, factory, func(*conn) error { return nil })
	c1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer p.Release(c1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); err == nil {
		t.Fatal("Acquire should fail once ctx is canceled while blocked")
	}
}

func TestEvictDoesNotReturnConnectionToIdleAndFreesASlot(t *testing.T) {
	factory, created := newCountingFactory()
	var closed int32
	p := pool.New(1, factory, func(*conn) error {
		atomic.AddInt32(&closed, 1)
		return nil
	})

	c1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := p.Evict(c1); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if p.Len() != 0 {
		t.Fatalf("Len() after Evict = %d, want 0: an evicted connection must not return to idle", p.Len())
	}
	if atomic.LoadInt32(&closed) != 1 {
		t.Fatalf("closed = %d, want 1", closed)
	}

	c2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after Evict: %v", err)
	}
	if *created != 2 {
		t.Fatalf("created = %d, want 2: Evict must free a slot for a fresh connection", *created)
	}
	p.Release(c2)
}

func TestCloseClosesIdleConnectionsAndRejectsFurtherAcquire(t *testing.T) {
	factory, _ := newCountingFactory()
	var closed int32
	p := pool.New(2, factory, func(*conn) error {
		atomic.AddInt32(&closed, 1)
		return nil
	})
	c1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(c1)

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if atomic.LoadInt32(&closed) != 1 {
		t.Fatalf("closed = %d, want 1", closed)
	}
	if _, err := p.Acquire(context.Background()); err == nil {
		t.Fatal("Acquire after Close should fail")
	}
}
