package database

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lattice-db/lattice/pkg/btree"
	"github.com/lattice-db/lattice/pkg/lerrors"
	"github.com/lattice-db/lattice/pkg/types"
)

// pendingEntry pairs a write with the composite key it is filed under
// in this family. The search family stages one pendingEntry per token
// extracted from a searchable value; the other two families stage
// exactly one pendingEntry per write.
type pendingEntry struct {
	key   types.Comparable
	write types.Write
}

// family is one block family (cpb, csb or ctb): an unsealed, in-memory
// current block plus a list of sealed, on-disk blocks, ordered by id.
// Rotation works like the teacher's segment rotation — append until a
// threshold, then start fresh — except the unit sealed is a sorted,
// compressed, checksummed, bloom-guarded block instead of a plain
// append-only segment.
type family struct {
	name      string
	dir       string
	threshold int
	log       zerolog.Logger

	mu      sync.RWMutex
	current *btree.BPlusTree // composite key -> index into pending
	pending []pendingEntry   // current block's entries, in insertion order
	sealed  []*sealedBlock   // ascending by id
	nextID  int64
}

func newFamily(name, dir string, threshold int, log zerolog.Logger) *family {
	return &family{
		name:      name,
		dir:       dir,
		threshold: threshold,
		log:       log.With().Str("family", name).Logger(),
		current:   btree.NewTree(64),
	}
}

// start scans dir for previously sealed blocks, loading each one's
// sidecar (but not mapping its body) and ordering them by ascending id.
func (f *family) start() error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return &lerrors.ConfigurationError{Reason: fmt.Sprintf("cannot create %s: %v", f.dir, err)}
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return &lerrors.ConfigurationError{Reason: fmt.Sprintf("cannot read %s: %v", f.dir, err)}
	}

	var ids []int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".block") {
			continue
		}
		idStr := strings.TrimSuffix(e.Name(), ".block")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		b, err := openBlock(f.dir, id)
		if err != nil {
			// A block whose sidecar cannot be read is corrupt or torn;
			// per policy it is dropped, not fatal to startup.
			f.log.Warn().Int64("block_id", id).Err(err).Msg("dropping unreadable sealed block")
			continue
		}
		f.sealed = append(f.sealed, b)
		if id >= f.nextID {
			f.nextID = id + 1
		}
	}
	return nil
}

// add stages w under every key in keys (normally one; the search family
// passes one key per token), sealing the current block first if it has
// reached its record threshold.
func (f *family) add(w types.Write, keys ...types.Comparable) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) >= f.threshold {
		if err := f.sealLocked(); err != nil {
			return err
		}
	}

	for _, key := range keys {
		idx := int64(len(f.pending))
		f.pending = append(f.pending, pendingEntry{key: key, write: w})
		if err := f.current.Insert(key, idx); err != nil {
			return err
		}
	}
	return nil
}

// sealLocked seals the current block to disk and resets it. Entries are
// written in ascending composite-key order. Callers must hold f.mu for
// writing.
func (f *family) sealLocked() error {
	if len(f.pending) == 0 {
		return nil
	}
	sorted := append([]pendingEntry(nil), f.pending...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].key.Compare(sorted[j].key) < 0
	})
	writes := make([]types.Write, len(sorted))
	for i, e := range sorted {
		writes[i] = e.write
	}

	id := f.nextID
	b, err := sealBlock(f.dir, id, writes)
	if err != nil {
		return err
	}
	f.sealed = append(f.sealed, b)
	f.nextID++
	f.pending = nil
	f.current = btree.NewTree(64)
	f.log.Debug().Int64("block_id", id).Int("records", b.count).Msg("sealed block")
	return nil
}

// seal forces a seal of whatever is currently pending, used by
// triggerSync (Scenario 1) and graceful shutdown.
func (f *family) seal() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sealLocked()
}

// blockCount reports the number of sealed blocks plus one if a current
// block has pending entries — used by the block-balance invariant.
func (f *family) blockCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := len(f.sealed)
	if len(f.pending) > 0 {
		n++
	}
	return n
}

// scan walks every write across the sealed blocks (oldest first, each
// already in sorted order) and the current block (insertion order),
// applying visit to each. Stops early if visit returns false.
func (f *family) scan(visit func(types.Write) bool) error {
	f.mu.RLock()
	sealed := append([]*sealedBlock(nil), f.sealed...)
	pending := append([]pendingEntry(nil), f.pending...)
	f.mu.RUnlock()

	for _, b := range sealed {
		entries, err := b.entries()
		if err != nil {
			return err
		}
		for _, w := range entries {
			if !visit(w) {
				return nil
			}
		}
	}
	for _, e := range pending {
		if !visit(e.write) {
			return nil
		}
	}
	return nil
}

// mayContainKey reports whether any sealed block's bloom filter admits
// key might be present, or the current block has unsealed entries —
// used to short-circuit a point lookup before falling back to a scan.
func (f *family) mayContainKey(key string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, b := range f.sealed {
		if b.mayContain(key) {
			return true
		}
	}
	return len(f.pending) > 0
}

// close unmaps every sealed block's body. Safe to call once per family
// at engine shutdown.
func (f *family) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	for _, b := range f.sealed {
		if err := b.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func blockDir(root, name string) string {
	return filepath.Join(root, name)
}
