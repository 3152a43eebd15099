package engine

import (
	"sync"
	"time"
)

// versionBroadcast is the Engine's global "version broadcast" latch: a
// condition variable every open AtomicOperation waits on, woken once per
// accepted Write so a watcher can check whether one of its watched
// (key, record) pairs changed. This replaces the source's busy-wait
// polling loop with a real blocking wait — no watcher spins, and no
// watcher is ever woken more than once per Write.
type versionBroadcast struct {
	mu       sync.Mutex
	cond     *sync.Cond
	version  int64
	watchers map[*watcher]struct{}
}

// watcher is one AtomicOperation's registration for a single (key,
// record) pair it has observed. notified latches true exactly once,
// the instant a Write lands that touches this pair while the operation
// is still open.
type watcher struct {
	key      string
	record   int64
	observed int64
	notified bool
}

func newVersionBroadcast() *versionBroadcast {
	vb := &versionBroadcast{watchers: make(map[*watcher]struct{})}
	vb.cond = sync.NewCond(&vb.mu)
	return vb
}

// register adds w to the broadcast's watch set; w must not be reused
// across operations.
func (vb *versionBroadcast) register(w *watcher) {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	vb.watchers[w] = struct{}{}
}

// unregister removes w once its operation has terminated.
func (vb *versionBroadcast) unregister(w *watcher) {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	delete(vb.watchers, w)
}

// publish records that version now holds for (key, record) and wakes
// every waiter so each can re-check its own watch set. Held only for
// the duration of updating watcher state — the short exclusive critical
// section §4.4 describes for commit/publish.
func (vb *versionBroadcast) publish(key string, record int64, version int64) {
	vb.mu.Lock()
	vb.version = version
	for w := range vb.watchers {
		if w.key == key && w.record == record && version > w.observed {
			w.notified = true
		}
	}
	vb.mu.Unlock()
	vb.cond.Broadcast()
}

// isNotified reports whether w has already been notified of a version
// change. Callers that need to block until it fires should loop on
// vb.cond.Wait() (holding vb.mu) and re-check this after each wake.
func (vb *versionBroadcast) isNotified(w *watcher) bool {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	return w.notified
}

// current returns the latest published version.
func (vb *versionBroadcast) current() int64 {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	return vb.version
}

// waitForAny blocks on the condition variable until any watcher in ws is
// notified or timeout elapses, returning whether one fired. This is the
// actual blocking counterpart to isNotified's poll, used by callers that
// would rather sleep than spin while an atomic operation's commit is
// pending.
func (vb *versionBroadcast) waitForAny(ws []*watcher, timeout time.Duration) bool {
	expired := false
	timer := time.AfterFunc(timeout, func() {
		vb.mu.Lock()
		expired = true
		vb.mu.Unlock()
		vb.cond.Broadcast()
	})
	defer timer.Stop()

	vb.mu.Lock()
	defer vb.mu.Unlock()
	for {
		for _, w := range ws {
			if w.notified {
				return true
			}
		}
		if expired {
			return false
		}
		vb.cond.Wait()
	}
}
