// Package buffer implements the Write Buffer (WB): an append-only,
// log-backed sequence of Writes that answers reads with overlay
// semantics over the Database and is drained asynchronously into sealed
// DB blocks.
package buffer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lattice-db/lattice/pkg/btree"
	"github.com/lattice-db/lattice/pkg/database"
	"github.com/lattice-db/lattice/pkg/lerrors"
	"github.com/lattice-db/lattice/pkg/query"
	"github.com/lattice-db/lattice/pkg/types"
	"github.com/lattice-db/lattice/pkg/walog"
)

type bufferKey struct {
	record  int64
	key     string
	version int64
}

func (k bufferKey) Compare(other types.Comparable) int {
	o := other.(bufferKey)
	switch {
	case k.record != o.record:
		return cmp64(k.record, o.record)
	case k.key != o.key:
		return cmpStr(k.key, o.key)
	default:
		return cmp64(k.version, o.version)
	}
}

func cmp64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpStr(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// entry is one staged Write plus the WAL sequence number it was logged
// under.
type entry struct {
	write  types.Write
	seq    uint64
	record int64
	key    string
}

// Buffer is the Write Buffer. append serializes through a single writer
// mutex (the log's own); readers take a shared latch that excludes
// transport truncation, matching §7's WB concurrency rule.
type Buffer struct {
	mu      sync.RWMutex
	dir     string
	writer  *walog.Writer
	index   *btree.BPlusTree // (record,key,version) -> index into entries
	entries []entry
	nextSeq uint64
	log     zerolog.Logger
}

// Open opens or creates the buffer's WAL segment under dir and replays
// any existing entries into the in-memory index.
func Open(dir string, opts walog.Options, log zerolog.Logger) (*Buffer, error) {
	log = log.With().Str("component", "buffer").Logger()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &lerrors.ConfigurationError{Reason: fmt.Sprintf("cannot create %s: %v", dir, err)}
	}
	path := filepath.Join(dir, "segment.wal")

	b := &Buffer{dir: dir, index: btree.NewTree(64), log: log}
	if err := b.replay(path); err != nil {
		return nil, err
	}

	writer, err := walog.NewWriter(path, opts)
	if err != nil {
		return nil, &lerrors.DurabilityError{Component: "buffer", Err: err}
	}
	b.writer = writer
	return b, nil
}

func (b *Buffer) replay(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	r, err := walog.NewReader(path)
	if err != nil {
		return &lerrors.DurabilityError{Component: "buffer", Err: err}
	}
	defer r.Close()

	for {
		e, err := r.ReadEntry()
		if err != nil {
			break // io.EOF, or a torn tail entry — both stop replay here
		}
		w, _, err := types.DecodeWrite(e.Payload)
		seq := e.Header.Seq
		walog.ReleaseEntry(e)
		if err != nil {
			b.log.Warn().Err(err).Msg("skipping undecodable buffer entry on replay")
			continue
		}
		b.stage(w, seq)
		if seq >= b.nextSeq {
			b.nextSeq = seq + 1
		}
	}
	return nil
}

// Append durably records w and makes it visible to overlay reads.
func (b *Buffer) Append(w types.Write) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	seq := b.nextSeq
	payload := w.Encode(nil)
	walEntry := walog.AcquireEntry()
	walEntry.Header = walog.Header{
		Magic:      walog.Magic,
		Version:    walog.LogVersion,
		EntryType:  walog.EntryWrite,
		Seq:        seq,
		PayloadLen: uint32(len(payload)),
		CRC32:      walog.CRC32(payload),
	}
	walEntry.Payload = append(walEntry.Payload[:0], payload...)
	err := lerrors.Retry("buffer", func() error { return b.writer.Append(walEntry) })
	walog.ReleaseEntry(walEntry)
	if err != nil {
		return err
	}

	b.stage(w, seq)
	b.nextSeq++
	return nil
}

func (b *Buffer) stage(w types.Write, seq uint64) {
	idx := int64(len(b.entries))
	b.entries = append(b.entries, entry{write: w, seq: seq, record: w.Record, key: w.Key})
	b.index.Insert(bufferKey{record: w.Record, key: w.Key, version: w.Version}, idx)
}

// View folds every staged Write for (key, record), newest-last, over
// upstream — the set of values the Database returns for the same pair —
// and returns the overlaid set. A REMOVE retracts only the value it
// names; the rest of upstream's set is unaffected, per §3's Record view.
func (b *Buffer) View(key string, record int64, upstream []types.Value) []types.Value {
	b.mu.RLock()
	defer b.mu.RUnlock()

	fold := types.NewValueFold(upstream...)
	for _, w := range b.orderedFor(record, key) {
		fold.Apply(w)
	}
	return fold.Values()
}

// Verify reports whether, under the overlay, the folded ADD/REMOVE
// count for (key, value, record) is currently odd — i.e. present — per
// §4.3. upstreamPresent is the DB's own verdict before this buffer's
// Writes are applied.
func (b *Buffer) Verify(key string, value types.Value, record int64, upstreamPresent bool) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	present := upstreamPresent
	for _, e := range b.orderedFor(record, key) {
		if e.Value.Kind() != value.Kind() || e.Value.Compare(value) != 0 {
			continue
		}
		present = e.Op == types.OpAdd
	}
	return present
}

// orderedFor returns this buffer's Writes for (record, key) in version
// order — ascending append order, which append() already guarantees.
func (b *Buffer) orderedFor(record int64, key string) []types.Write {
	var out []types.Write
	for _, e := range b.entries {
		if e.record == record && e.key == key {
			out = append(out, e.write)
		}
	}
	return out
}

// Record overlays this buffer's own staged Writes for record onto base
// (typically database.DB.Record's result), key by key, the same way
// View overlays a single (key, record) pair's value set.
func (b *Buffer) Record(record int64, base map[string][]types.Value) map[string][]types.Value {
	b.mu.RLock()
	defer b.mu.RUnlock()

	folds := make(map[string]*types.ValueFold, len(base))
	var order []string
	for k, vs := range base {
		folds[k] = types.NewValueFold(vs...)
		order = append(order, k)
	}
	for _, e := range b.entries {
		if e.record != record {
			continue
		}
		fold, seen := folds[e.key]
		if !seen {
			fold = types.NewValueFold()
			folds[e.key] = fold
			order = append(order, e.key)
		}
		fold.Apply(e.write)
	}

	out := make(map[string][]types.Value, len(folds))
	for _, k := range order {
		if vs := folds[k].Values(); len(vs) > 0 {
			out[k] = vs
		}
	}
	return out
}

// Find scans every staged Write matching key and folds each record to
// its current value set, returning records with at least one current
// value satisfying cond — mirroring database.DB.Find's overlay-free
// behavior but over only the buffer's own entries.
func (b *Buffer) Find(key string, cond *query.Condition) []int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	byRecord := make(map[int64]*types.ValueFold)
	var order []int64
	for _, e := range b.entries {
		if e.key != key {
			continue
		}
		fold, seen := byRecord[e.record]
		if !seen {
			fold = types.NewValueFold()
			byRecord[e.record] = fold
			order = append(order, e.record)
		}
		fold.Apply(e.write)
	}

	var out []int64
	for _, record := range order {
		for _, v := range byRecord[record].Values() {
			if cond.Matches(v) {
				out = append(out, record)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Transport hands up to limit of the oldest not-yet-transported Writes
// to db, then truncates its own prefix by rotating to a new WAL segment
// (removing the old one) and re-logging the Writes beyond limit into
// it — the same rotate-then-prune
// shape as a segmented heap's rotation, applied to log files instead of
// data files.
func (b *Buffer) Transport(db *database.DB, limit int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit <= 0 || limit > len(b.entries) {
		limit = len(b.entries)
	}
	if limit == 0 {
		return 0, nil
	}

	for _, e := range b.entries[:limit] {
		var err error
		if e.write.Op == types.OpAdd {
			err = db.Add(e.write.Key, e.write.Value, e.write.Record, e.write.Version)
		} else {
			err = db.Remove(e.write.Key, e.write.Value, e.write.Record, e.write.Version)
		}
		if err != nil {
			return 0, &lerrors.DurabilityError{Component: "buffer", Err: err}
		}
	}

	if err := b.rotate(); err != nil {
		return 0, err
	}
	for _, e := range b.entries[limit:] {
		payload := e.write.Encode(nil)
		walEntry := walog.AcquireEntry()
		walEntry.Header = walog.Header{Magic: walog.Magic, Version: walog.LogVersion, EntryType: walog.EntryWrite,
			Seq: e.seq, PayloadLen: uint32(len(payload)), CRC32: walog.CRC32(payload)}
		walEntry.Payload = append(walEntry.Payload[:0], payload...)
		err := b.writer.Append(walEntry)
		walog.ReleaseEntry(walEntry)
		if err != nil {
			return 0, &lerrors.DurabilityError{Component: "buffer", Err: err}
		}
	}

	b.entries = append([]entry(nil), b.entries[limit:]...)
	b.index = btree.NewTree(64)
	for i, e := range b.entries {
		b.index.Insert(bufferKey{record: e.record, key: e.key, version: e.write.Version}, int64(i))
	}
	return limit, nil
}

// rotate closes the current WAL segment, replaces it with an empty one,
// and drops the old file — transport's prefix truncation.
func (b *Buffer) rotate() error {
	path := b.writer.Path()
	if err := b.writer.Close(); err != nil {
		return &lerrors.DurabilityError{Component: "buffer", Err: err}
	}
	tmp := path + ".rotating"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return &lerrors.DurabilityError{Component: "buffer", Err: err}
	}
	if err := os.Rename(path, tmp); err != nil {
		return &lerrors.DurabilityError{Component: "buffer", Err: err}
	}
	writer, err := walog.NewWriter(path, walog.DefaultOptions())
	if err != nil {
		return &lerrors.DurabilityError{Component: "buffer", Err: err}
	}
	b.writer = writer
	return os.Remove(tmp)
}

// Len reports the number of Writes staged but not yet transported.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Close closes the underlying WAL writer.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writer.Close()
}
