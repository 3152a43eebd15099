package engine_test

import (
	"errors"
	"regexp"
	"testing"

	"github.com/lattice-db/lattice/pkg/config"
	"github.com/lattice-db/lattice/pkg/engine"
	"github.com/lattice-db/lattice/pkg/lerrors"
	"github.com/lattice-db/lattice/pkg/query"
	"github.com/lattice-db/lattice/pkg/types"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg, err := config.New(t.TempDir()+"/buffer", t.TempDir()+"/database", "test")
	if err != nil {
		t.Fatalf("config.New: %v", err)
	}
	e, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("engine.Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func containsInt32(vs []types.Value, want int32) bool {
	for _, v := range vs {
		if v.Kind() == types.KindInteger && v.AsInt32() == want {
			return true
		}
	}
	return false
}

func TestPutGetRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Put("name", types.String("ada"), 1); err != nil {
		t.Fatalf("Put: %v", err)
	}
	vs, err := e.Get("name", 1)
	if err != nil || len(vs) != 1 || vs[0].AsString() != "ada" {
		t.Fatalf("Get = %v, %v, want ([ada], nil)", vs, err)
	}
}

// Scenario 2 — cache append: a record's (key, record) view is the SET of
// values added to it, not a single overwritten scalar. Adding a later,
// distinct value must not make the earlier ones disappear.
func TestGetReturnsTheSetOfAllCurrentlyPresentValues(t *testing.T) {
	e := newTestEngine(t)
	for i := int32(0); i < 17; i++ {
		if err := e.Put("foo", types.Int32(i), 42); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}
	// Populate any read-through cache before the 18th add.
	if _, err := e.Get("foo", 42); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := e.Put("foo", types.Int32(99999), 42); err != nil {
		t.Fatalf("Put 99999: %v", err)
	}

	vs, err := e.Get("foo", 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(vs) != 18 {
		t.Fatalf("Get returned %d values, want 18 (17 earlier + 99999): %v", len(vs), vs)
	}
	if !containsInt32(vs, 99999) {
		t.Fatalf("Get = %v, want a set containing 99999", vs)
	}
	if !containsInt32(vs, 0) {
		t.Fatalf("Get = %v, want the set to still contain the first value added (0)", vs)
	}
}

func TestRemoveOnlyRetractsTheNamedValue(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Put("foo", types.Int32(1), 42); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Put("foo", types.Int32(2), 42); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Remove("foo", types.Int32(1), 42); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	vs, err := e.Get("foo", 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(vs) != 1 || !containsInt32(vs, 2) {
		t.Fatalf("Get = %v, want only [2] left after removing 1", vs)
	}
}

func TestAtomicOperationCommitIsVisibleAfterCommit(t *testing.T) {
	e := newTestEngine(t)
	op := e.Begin()
	if err := op.Add("age", types.Int32(30), 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Invisible to the outside world before commit.
	if vs, _ := e.Get("age", 1); len(vs) != 0 {
		t.Fatal("Get observed a buffered write before Commit")
	}
	ok, err := op.Commit()
	if err != nil || !ok {
		t.Fatalf("Commit = %v, %v, want (true, nil)", ok, err)
	}
	vs, err := e.Get("age", 1)
	if err != nil || len(vs) != 1 || vs[0].AsInt32() != 30 {
		t.Fatalf("Get after Commit = %v, %v, want ([30], nil)", vs, err)
	}
}

func TestCommitConflictsWhenWatchedPairChangesFirst(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Put("age", types.Int32(1), 1); err != nil {
		t.Fatalf("Put: %v", err)
	}

	op := e.Begin()
	if _, err := op.Select("age", 1); err != nil {
		t.Fatalf("Select: %v", err)
	}

	// A competing writer changes the same pair before op commits.
	if err := e.Put("age", types.Int32(2), 1); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if op.Open() {
		t.Fatal("Open() should be false once a watched pair changed")
	}

	if err := op.Add("age", types.Int32(3), 1); err == nil {
		t.Fatal("Add on a non-open operation should fail")
	}

	ok, err := op.Commit()
	if ok || err == nil {
		t.Fatalf("Commit = %v, %v, want (false, conflict)", ok, err)
	}
	var conflict *lerrors.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Commit error = %v, want *lerrors.ConflictError", err)
	}
}

func TestCommitSucceedsWhenNoWatchedPairChanged(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Put("age", types.Int32(1), 1); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Put("age", types.Int32(2), 2); err != nil {
		t.Fatalf("Put: %v", err)
	}

	op := e.Begin()
	if _, err := op.Select("age", 1); err != nil {
		t.Fatalf("Select: %v", err)
	}
	// A write to an unrelated record must not trip the watch.
	if err := e.Put("age", types.Int32(99), 2); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !op.Open() {
		t.Fatal("Open() should remain true: only an unrelated record changed")
	}
	if ok, err := op.Commit(); !ok || err != nil {
		t.Fatalf("Commit = %v, %v, want (true, nil)", ok, err)
	}
}

// Scenario 4 — find(key, NOT_REGEX, value) followed by a write on the
// same key within the same operation must not deadlock: the operation
// never holds a lock across the read, so there is nothing to deadlock on.
func TestFindThenAddOnSameKeyDoesNotDeadlock(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Put("bio", types.String("pilot"), 1); err != nil {
		t.Fatalf("Put: %v", err)
	}

	op := e.Begin()
	cond := query.NotRegex(regexp.MustCompile("pilot"))
	records, err := op.Find("bio", cond)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("Find(NOT_REGEX pilot) = %v, want none", records)
	}
	if err := op.Add("bio", types.String("astronaut"), 2); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ok, err := op.Commit(); !ok || err != nil {
		t.Fatalf("Commit = %v, %v, want (true, nil)", ok, err)
	}
}

func TestCheckpointDrainsBufferIntoSealedBlocks(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Put("k", types.Int32(1), 1); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	vs, err := e.Get("k", 1)
	if err != nil || len(vs) != 1 || vs[0].AsInt32() != 1 {
		t.Fatalf("Get after Checkpoint = %v, %v, want ([1], nil)", vs, err)
	}
}

func TestDocumentFoldsAllKeysForARecord(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Put("name", types.String("ada"), 1); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Put("age", types.Int32(30), 1); err != nil {
		t.Fatalf("Put: %v", err)
	}
	doc, err := e.Document(1)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if len(doc) != 2 || len(doc["name"]) != 1 || doc["name"][0].AsString() != "ada" ||
		len(doc["age"]) != 1 || doc["age"][0].AsInt32() != 30 {
		t.Fatalf("Document = %v, want {name:[ada] age:[30]}", doc)
	}
}

func TestAbortDiscardsBufferedWrites(t *testing.T) {
	e := newTestEngine(t)
	op := e.Begin()
	if err := op.Add("k", types.Int32(1), 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	op.Abort()
	if vs, _ := e.Get("k", 1); len(vs) != 0 {
		t.Fatal("Get observed a write from an aborted operation")
	}
	if ok, err := op.Commit(); ok || err == nil {
		t.Fatal("Commit after Abort should fail")
	}
}
