package walog

import "sync"

// Entry and header-buffer pooling, to keep the write path allocation-free
// on the steady-state path (one append per Write accepted by the engine).
var (
	entryPool = sync.Pool{
		New: func() interface{} {
			return &Entry{Payload: make([]byte, 0, 256)}
		},
	}
)

// AcquireEntry obtains a pooled entry. The caller must ReleaseEntry it.
func AcquireEntry() *Entry {
	return entryPool.Get().(*Entry)
}

// ReleaseEntry returns an entry to the pool.
func ReleaseEntry(e *Entry) {
	e.Header = Header{}
	e.Payload = e.Payload[:0]
	entryPool.Put(e)
}
