// Package database implements the Block-Indexed Database (DB): three
// block families — primary (cpb), secondary (csb) and search (ctb) —
// each an append-then-seal sequence of immutable, sorted, compressed,
// bloom-guarded blocks. It is the durable tier the Write Buffer
// transports into; reads against it are never the hot path for a
// record freshly written, but they are what every buffer eviction and
// every cold lookup ultimately falls back to.
package database

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lattice-db/lattice/pkg/lerrors"
	"github.com/lattice-db/lattice/pkg/query"
	"github.com/lattice-db/lattice/pkg/types"
)

const (
	FamilyPrimary   = "cpb" // (record, key, version) — folds a record's full history
	FamilySecondary = "csb" // (key, value, version) — value-predicate scans
	FamilySearch    = "ctb" // (key, token, record, version) — string search
)

// DB is the three-family block-indexed store.
type DB struct {
	root string
	cpb  *family
	csb  *family
	ctb  *family
	log  zerolog.Logger
}

// New constructs a DB rooted at root (typically Config.DatabaseDir),
// with block sealing after threshold records per family.
func New(root string, threshold int, log zerolog.Logger) *DB {
	log = log.With().Str("component", "database").Logger()
	return &DB{
		root: root,
		cpb:  newFamily(FamilyPrimary, blockDir(root, FamilyPrimary), threshold, log),
		csb:  newFamily(FamilySecondary, blockDir(root, FamilySecondary), threshold, log),
		ctb:  newFamily(FamilySearch, blockDir(root, FamilySearch), threshold, log),
		log:  log,
	}
}

// Start loads every family's sealed blocks from disk and checks the
// block-balance invariant: after start, every block id must appear in
// all three families or none. A family missing a block id another
// family has is treated like any other unreadable block — dropped, not
// fatal — and the discrepancy is logged.
func (db *DB) Start() error {
	for _, f := range []*family{db.cpb, db.csb, db.ctb} {
		if err := f.start(); err != nil {
			return err
		}
	}
	db.enforceBlockBalance()
	return nil
}

// enforceBlockBalance drops sealed blocks present in some families but
// not all three, restoring the invariant that cpb, csb and ctb hold an
// identical set of block ids after start.
func (db *DB) enforceBlockBalance() {
	families := []*family{db.cpb, db.csb, db.ctb}
	counts := make(map[int64]int)
	for _, f := range families {
		f.mu.RLock()
		for _, b := range f.sealed {
			counts[b.id]++
		}
		f.mu.RUnlock()
	}
	for _, f := range families {
		f.mu.Lock()
		kept := f.sealed[:0]
		for _, b := range f.sealed {
			if counts[b.id] == len(families) {
				kept = append(kept, b)
			} else {
				db.log.Warn().Str("family", f.name).Int64("block_id", b.id).Msg("dropping unbalanced block")
				b.close()
			}
		}
		f.sealed = kept
		f.mu.Unlock()
	}
}

// Add records a single ADD Write across every family it participates in:
// always cpb and (if the value is of a comparable, orderable kind) csb,
// plus one ctb entry per token when the value is Searchable (§6: TAG
// values are never indexed for search).
func (db *DB) Add(key string, value types.Value, record, version int64) error {
	return db.apply(types.Write{Op: types.OpAdd, Key: key, Value: value, Record: record, Version: version})
}

// Remove records a REMOVE Write the same way Add records an ADD one —
// the overlay fold (buffer + database) is what turns the pair into
// "absent", not a physical delete.
func (db *DB) Remove(key string, value types.Value, record, version int64) error {
	return db.apply(types.Write{Op: types.OpRemove, Key: key, Value: value, Record: record, Version: version})
}

func (db *DB) apply(w types.Write) error {
	pk := primaryKey{record: w.Record, key: w.Key, version: w.Version}
	if err := db.cpb.add(w, pk); err != nil {
		return err
	}

	sk := secondaryKey{key: w.Key, value: w.Value, version: w.Version}
	if err := db.csb.add(w, sk); err != nil {
		return err
	}

	if w.Value.Searchable() {
		tokens := tokenize(w.Value.AsString())
		keys := make([]types.Comparable, 0, len(tokens))
		for _, tok := range tokens {
			keys = append(keys, tertiaryKey{key: w.Key, token: tok, record: w.Record, version: w.Version})
		}
		if len(keys) > 0 {
			if err := db.ctb.add(w, keys...); err != nil {
				return err
			}
		}
	}
	return nil
}

// Select folds every cpb Write for (key, record) into the record's
// current set of values, honoring ADD/REMOVE ordering by version. A Write
// removing a value only retracts that value; the other values present
// for the pair are unaffected. The result is empty when no value is
// currently present.
func (db *DB) Select(key string, record int64) ([]types.Value, error) {
	fold := types.NewValueFold()
	err := db.cpb.scan(func(w types.Write) bool {
		if w.Record != record || w.Key != key {
			return true
		}
		fold.Apply(w)
		return true
	})
	if err != nil {
		return nil, err
	}
	return fold.Values(), nil
}

// Find scans csb for every (key, record) pair with at least one current
// value satisfying cond, honoring the same per-value ADD/REMOVE ordering
// as Select. Results are returned in ascending record order.
func (db *DB) Find(key string, cond *query.Condition) ([]int64, error) {
	byRecord := make(map[int64]*types.ValueFold)
	var order []int64

	err := db.csb.scan(func(w types.Write) bool {
		if w.Key != key {
			return true
		}
		fold, seen := byRecord[w.Record]
		if !seen {
			fold = types.NewValueFold()
			byRecord[w.Record] = fold
			order = append(order, w.Record)
		}
		fold.Apply(w)
		return true
	})
	if err != nil {
		return nil, err
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
	return out, nil
}

// Search returns every distinct record whose indexed string value for
// key contains token, via the ctb family's bloom-accelerated lookup.
func (db *DB) Search(key, token string) ([]int64, error) {
	token = strings.ToLower(token)
	if !db.ctb.mayContainKey(key) {
		return nil, nil
	}
	seen := make(map[int64]bool)
	var out []int64
	err := db.ctb.scan(func(w types.Write) bool {
		if w.Key != key || !w.Value.Searchable() {
			return true
		}
		for _, tok := range tokenize(w.Value.AsString()) {
			if tok == token && !seen[w.Record] {
				seen[w.Record] = true
				out = append(out, w.Record)
			}
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, err
}

// Record folds every cpb Write for record across all keys into the
// record's current (key -> set of values) view, dropping keys whose
// folded set is empty — the basis for docview's document rendering.
func (db *DB) Record(record int64) (map[string][]types.Value, error) {
	byKey := make(map[string]*types.ValueFold)

	err := db.cpb.scan(func(w types.Write) bool {
		if w.Record != record {
			return true
		}
		fold, seen := byKey[w.Key]
		if !seen {
			fold = types.NewValueFold()
			byKey[w.Key] = fold
		}
		fold.Apply(w)
		return true
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string][]types.Value, len(byKey))
	for key, fold := range byKey {
		if vs := fold.Values(); len(vs) > 0 {
			out[key] = vs
		}
	}
	return out, nil
}

// TriggerSync forces every family to seal its current in-memory block,
// used by Scenario 1 (restart after torn flush) and graceful shutdown.
func (db *DB) TriggerSync() error {
	for _, f := range []*family{db.cpb, db.csb, db.ctb} {
		if err := f.seal(); err != nil {
			return &lerrors.DurabilityError{Component: "database", Err: err}
		}
	}
	return nil
}

// BlockCounts reports the current sealed(+pending) block count per
// family, for the block-balance testable property.
func (db *DB) BlockCounts() (cpb, csb, ctb int) {
	return db.cpb.blockCount(), db.csb.blockCount(), db.ctb.blockCount()
}

// Close unmaps every family's sealed blocks.
func (db *DB) Close() error {
	var firstErr error
	for _, f := range []*family{db.cpb, db.csb, db.ctb} {
		if err := f.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// tokenize lower-cases and splits s on anything that isn't a letter or
// digit, the simplest possible indexing unit for the search family.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}
