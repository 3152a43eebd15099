// Package mmapfs gives sealed, immutable block files a zero-copy,
// read-only view. Sealed blocks are never written to again — they are
// candidates for eviction and remap, never for in-place mutation — so a
// read-only mapping is always safe to hand out concurrently.
package mmapfs

import (
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// Region is a memory-mapped, read-only view of one sealed block file.
// Callers must call Close when the block is evicted or the engine stops;
// reading through a Region after Close is a program error, not a
// recoverable one — the caller is responsible for not racing eviction
// against an in-flight read.
type Region struct {
	mu     sync.RWMutex
	file   *os.File
	data   mmap.MMap
	path   string
	closed bool
}

// Open maps path read-only for the duration of the returned Region.
func Open(path string) (*Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmapfs: open %s: %w", path, err)
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmapfs: map %s: %w", path, err)
	}
	return &Region{file: f, data: data, path: path}, nil
}

// Bytes returns the mapped region. The returned slice is only valid
// until Close; it must not be retained past a block eviction.
func (r *Region) Bytes() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, fmt.Errorf("mmapfs: %s is unmapped", r.path)
	}
	return r.data, nil
}

// Len returns the mapped size in bytes.
func (r *Region) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Close unmaps the region and closes the backing file descriptor. It is
// safe to call more than once.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.data.Unmap()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Path returns the path this Region maps.
func (r *Region) Path() string { return r.path }
