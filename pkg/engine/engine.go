// Package engine implements the Engine & Atomic Operations (ENG): the
// component that composes a Buffer and a Database into one versioned
// store, and that hands out AtomicOperations giving a caller a
// read-your-watched-pairs, all-or-nothing view across a sequence of
// reads and writes.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/lattice-db/lattice/pkg/buffer"
	"github.com/lattice-db/lattice/pkg/config"
	"github.com/lattice-db/lattice/pkg/database"
	"github.com/lattice-db/lattice/pkg/lerrors"
	"github.com/lattice-db/lattice/pkg/query"
	"github.com/lattice-db/lattice/pkg/types"
	"github.com/lattice-db/lattice/pkg/walog"
)

// Engine composes the Write Buffer and the Database behind one
// monotonic version counter and one version-change broadcast latch. It
// is the sole entry point every read and write passes through.
type Engine struct {
	cfg *config.Config
	log zerolog.Logger

	wb *buffer.Buffer
	db *database.DB

	version   int64 // atomic; bumped once per committed Write
	broadcast *versionBroadcast

	dirLock *flock.Flock

	commitMu sync.Mutex // the short exclusive critical section §4.4 describes

	transportStop chan struct{}
	transportDone chan struct{}
}

// Open builds an Engine from cfg: it takes an advisory lock on
// cfg.BufferDir (refusing to start against a directory another process
// already holds), opens the Write Buffer and the Database, and starts
// the background transporter that drains the buffer into sealed blocks.
func Open(cfg *config.Config) (*Engine, error) {
	log := cfg.ComponentLogger("engine")

	if err := os.MkdirAll(cfg.BufferDir, 0o755); err != nil {
		return nil, &lerrors.ConfigurationError{Reason: fmt.Sprintf("cannot create %s: %v", cfg.BufferDir, err)}
	}

	lock := flock.New(filepath.Join(cfg.BufferDir, ".lattice.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, &lerrors.DurabilityError{Component: "engine", Err: err}
	}
	if !locked {
		return nil, &lerrors.ConfigurationError{Reason: fmt.Sprintf("bufferDir %q is already locked by another process", cfg.BufferDir)}
	}

	opts := walog.DefaultOptions()
	opts.SyncPolicy = cfg.SyncPolicy
	wb, err := buffer.Open(cfg.BufferDir, opts, cfg.Logger)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	threshold := cfg.BlockRecordThreshold
	if threshold <= 0 {
		threshold = config.DefaultBlockRecordThreshold
	}
	db := database.New(cfg.DatabaseDir, threshold, cfg.Logger)
	if err := db.Start(); err != nil {
		wb.Close()
		lock.Unlock()
		return nil, err
	}

	e := &Engine{
		cfg:           cfg,
		log:           log,
		wb:            wb,
		db:            db,
		broadcast:     newVersionBroadcast(),
		dirLock:       lock,
		transportStop: make(chan struct{}),
		transportDone: make(chan struct{}),
	}
	go e.transportLoop()
	return e, nil
}

// transportLoop periodically drains the buffer into sealed DB blocks.
// Grounded on the teacher's checkpoint ticker: a fixed-interval
// background goroutine rather than a caller-driven flush.
func (e *Engine) transportLoop() {
	defer close(e.transportDone)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-e.transportStop:
			return
		case <-ticker.C:
			if _, err := e.wb.Transport(e.db, 0); err != nil {
				e.log.Warn().Err(err).Msg("background transport failed")
			}
		}
	}
}

// Close stops the transporter, seals any remaining blocks, and releases
// the directory lock.
func (e *Engine) Close() error {
	close(e.transportStop)
	<-e.transportDone

	if _, err := e.wb.Transport(e.db, 0); err != nil {
		e.log.Warn().Err(err).Msg("final transport before close failed")
	}
	var firstErr error
	if err := e.db.TriggerSync(); err != nil {
		firstErr = err
	}
	if err := e.wb.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.dirLock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (e *Engine) nextVersion() int64 {
	return atomic.AddInt64(&e.version, 1)
}

// view is the engine-wide overlay read: the Database's folded set of
// values for (key, record), overlaid by the Write Buffer's own staged
// Writes for the same pair.
func (e *Engine) view(key string, record int64) ([]types.Value, error) {
	base, err := e.db.Select(key, record)
	if err != nil {
		return nil, err
	}
	return e.wb.View(key, record, base), nil
}

// Put performs a single ADD as its own atomic operation: observe
// nothing, buffer one Write, commit. It can only fail on durability
// grounds, never on conflict, since it watches no prior reads.
func (e *Engine) Put(key string, value types.Value, record int64) error {
	op := e.Begin()
	if err := op.Add(key, value, record); err != nil {
		op.Abort()
		return err
	}
	if _, err := op.Commit(); err != nil {
		return err
	}
	return nil
}

// Get performs a single Select outside of any multi-step operation,
// returning the current set of values for (key, record).
func (e *Engine) Get(key string, record int64) ([]types.Value, error) {
	return e.view(key, record)
}

// Select is Get under the name Store requires, so *Engine and
// *AtomicOperation can be used interchangeably by read call sites that
// don't care whether they're inside a multi-step operation.
func (e *Engine) Select(key string, record int64) ([]types.Value, error) {
	return e.Get(key, record)
}

// Add is Put under the name Store requires.
func (e *Engine) Add(key string, value types.Value, record int64) error {
	return e.Put(key, value, record)
}

// Remove performs a single REMOVE as its own atomic operation, the
// mutating counterpart to Put/Add.
func (e *Engine) Remove(key string, value types.Value, record int64) error {
	op := e.Begin()
	if err := op.Remove(key, value, record); err != nil {
		op.Abort()
		return err
	}
	_, err := op.Commit()
	return err
}

// Store is implemented by both *Engine (direct, autocommitting access)
// and *AtomicOperation (buffered, watched access), so call sites that
// just need to read or write don't need to know which one they hold.
type Store interface {
	Select(key string, record int64) ([]types.Value, error)
	Find(key string, cond *query.Condition) ([]int64, error)
	Add(key string, value types.Value, record int64) error
	Remove(key string, value types.Value, record int64) error
}

var (
	_ Store = (*Engine)(nil)
	_ Store = (*AtomicOperation)(nil)
)

// Find evaluates cond over key across every record, overlaying the
// buffer's own staged Writes on top of the Database's folded state —
// the read-path analogue of view, but scanning instead of point
// lookup.
func (e *Engine) Find(key string, cond *query.Condition) ([]int64, error) {
	fromDB, err := e.db.Find(key, cond)
	if err != nil {
		return nil, err
	}
	fromWB := e.wb.Find(key, cond)

	seen := make(map[int64]bool, len(fromDB)+len(fromWB))
	var out []int64
	for _, r := range fromDB {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	for _, r := range fromWB {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	// Keep a candidate only if its overlaid value set still matches cond.
	kept := out[:0]
	for _, r := range out {
		vs, err := e.view(key, r)
		if err != nil {
			return nil, err
		}
		for _, v := range vs {
			if cond.Matches(v) {
				kept = append(kept, r)
				break
			}
		}
	}
	return kept, nil
}

// Checkpoint drains every currently staged Write into the Database and
// forces all three block families to seal, giving latticectl's
// checkpoint subcommand (and graceful shutdown) a synchronous flush
// point instead of waiting on the background transporter's schedule.
func (e *Engine) Checkpoint() error {
	if _, err := e.wb.Transport(e.db, 0); err != nil {
		return err
	}
	return e.db.TriggerSync()
}

// Document folds every key currently present for record, Database state
// overlaid by the Write Buffer's own staged writes, into the (key -> set
// of values) map pkg/docview renders.
func (e *Engine) Document(record int64) (map[string][]types.Value, error) {
	base, err := e.db.Record(record)
	if err != nil {
		return nil, err
	}
	return e.wb.Record(record, base), nil
}

// OperationState is one state in the atomic operation lifecycle:
// OPEN -> COMMITTED | ABORTED, or OPEN -> NOTIFIED -> ABORTED when a
// watched pair changes before commit is attempted.
type OperationState int

const (
	StateOpen OperationState = iota
	StateNotified
	StateCommitted
	StateAborted
)

func (s OperationState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateNotified:
		return "NOTIFIED"
	case StateCommitted:
		return "COMMITTED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// AtomicOperation is one all-or-nothing sequence of reads and writes
// against the Engine. Every Select/Find it performs registers a watcher
// for the pairs it observed; every Add/Remove it performs is buffered
// and invisible to everyone — including this operation's own later
// reads — until Commit. Canonical per-key lock ordering is unnecessary
// here: no lock is ever held across a read, and all buffered writes are
// applied inside one short exclusive section at commit, so there is
// nothing for two operations to deadlock over.
type AtomicOperation struct {
	mu       sync.Mutex
	engine   *Engine
	state    OperationState
	watchers []*watcher
	buffered []types.Write
}

// Begin starts a new AtomicOperation.
func (e *Engine) Begin() *AtomicOperation {
	return &AtomicOperation{engine: e, state: StateOpen}
}

// Open reports whether op is still OPEN: not committed, not aborted,
// and none of its watched pairs has changed since it observed them. A
// true result is a snapshot, not a guarantee — another Write can land
// the instant after this returns.
func (op *AtomicOperation) Open() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.openLocked()
}

func (op *AtomicOperation) openLocked() bool {
	if op.state != StateOpen && op.state != StateNotified {
		return false
	}
	for _, w := range op.watchers {
		if op.engine.broadcast.isNotified(w) {
			op.state = StateNotified
			return false
		}
	}
	return true
}

// Select reads the current set of values for (key, record) through the
// operation's overlay — this operation's own buffered writes so far are
// NOT applied; per §4.4 a mutating call stays invisible to every reader,
// including the operation itself, until commit. The pair is added to
// op's watch set.
func (op *AtomicOperation) Select(key string, record int64) ([]types.Value, error) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if !op.openLocked() {
		return nil, &lerrors.UsageError{Reason: fmt.Sprintf("operation is %s", op.state)}
	}

	vs, err := op.engine.view(key, record)
	if err != nil {
		return nil, err
	}
	op.watch(key, record)
	return vs, nil
}

// Find evaluates cond over key and watches the (key, record) pair of
// every record it returns. Records that did not match are not watched,
// so a later Write that makes one of them match does not cause a
// conflict at commit.
func (op *AtomicOperation) Find(key string, cond *query.Condition) ([]int64, error) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if !op.openLocked() {
		return nil, &lerrors.UsageError{Reason: fmt.Sprintf("operation is %s", op.state)}
	}

	records, err := op.engine.Find(key, cond)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		op.watch(key, r)
	}
	return records, nil
}

func (op *AtomicOperation) watch(key string, record int64) {
	w := &watcher{key: key, record: record, observed: op.engine.broadcast.current()}
	op.watchers = append(op.watchers, w)
	op.engine.broadcast.register(w)
}

// Add stages an ADD Write, invisible until Commit.
func (op *AtomicOperation) Add(key string, value types.Value, record int64) error {
	return op.stage(types.OpAdd, key, value, record)
}

// Remove stages a REMOVE Write, invisible until Commit.
func (op *AtomicOperation) Remove(key string, value types.Value, record int64) error {
	return op.stage(types.OpRemove, key, value, record)
}

func (op *AtomicOperation) stage(kind types.Operation, key string, value types.Value, record int64) error {
	op.mu.Lock()
	defer op.mu.Unlock()
	if !op.openLocked() {
		return &lerrors.UsageError{Reason: fmt.Sprintf("operation is %s", op.state)}
	}
	op.buffered = append(op.buffered, types.Write{Op: kind, Key: key, Value: value, Record: record})
	return nil
}

// Commit takes the engine's short exclusive critical section, checks
// every watched pair for a version change, and — if none fired —
// assigns a version to and durably appends each buffered Write, then
// publishes the new versions so any other operation watching the same
// pairs is notified. It returns (true, nil) on success; a conflict
// returns (false, *lerrors.ConflictError) and the operation moves to
// ABORTED without writing anything.
func (op *AtomicOperation) Commit() (bool, error) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.state == StateCommitted {
		return true, nil
	}
	if op.state == StateAborted {
		return false, &lerrors.UsageError{Reason: "operation already aborted"}
	}

	op.engine.commitMu.Lock()
	defer op.engine.commitMu.Unlock()

	for _, w := range op.watchers {
		if op.engine.broadcast.isNotified(w) {
			op.state = StateAborted
			op.releaseWatchersLocked()
			return false, &lerrors.ConflictError{Key: w.key, Record: w.record}
		}
	}

	for _, w := range op.buffered {
		version := op.engine.nextVersion()
		w.Version = version
		if err := op.engine.wb.Append(w); err != nil {
			op.state = StateAborted
			op.releaseWatchersLocked()
			return false, err
		}
		op.engine.broadcast.publish(w.Key, w.Record, version)
	}

	op.state = StateCommitted
	op.releaseWatchersLocked()
	return true, nil
}

// Abort discards every buffered Write and releases op's watchers
// without touching the Database or Write Buffer.
func (op *AtomicOperation) Abort() {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.state == StateCommitted || op.state == StateAborted {
		return
	}
	op.state = StateAborted
	op.buffered = nil
	op.releaseWatchersLocked()
}

func (op *AtomicOperation) releaseWatchersLocked() {
	for _, w := range op.watchers {
		op.engine.broadcast.unregister(w)
	}
	op.watchers = nil
}

// WaitForChange blocks until one of op's watched pairs changes or
// timeout elapses, whichever comes first, returning whether a change
// was observed. It is the blocking counterpart to polling Open() in a
// loop: a caller that wants to retry a conflicting operation as soon as
// possible, rather than on its own polling schedule, waits here.
func (op *AtomicOperation) WaitForChange(timeout time.Duration) bool {
	op.mu.Lock()
	ws := append([]*watcher(nil), op.watchers...)
	e := op.engine
	op.mu.Unlock()
	if len(ws) == 0 {
		return false
	}
	return e.broadcast.waitForAny(ws, timeout)
}

// State reports op's current lifecycle state.
func (op *AtomicOperation) State() OperationState {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.state
}
