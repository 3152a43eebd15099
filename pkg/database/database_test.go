package database_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lattice-db/lattice/pkg/database"
	"github.com/lattice-db/lattice/pkg/query"
	"github.com/lattice-db/lattice/pkg/types"
)

func newTestDB(t *testing.T) (*database.DB, string) {
	t.Helper()
	root := t.TempDir()
	db := database.New(root, 4, zerolog.Nop())
	if err := db.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return db, root
}

func TestSelectFoldsAddThenRemove(t *testing.T) {
	db, _ := newTestDB(t)
	if err := db.Add("foo", types.Int32(1), 42, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	vs, err := db.Select("foo", 42)
	if err != nil || len(vs) != 1 || vs[0].AsInt32() != 1 {
		t.Fatalf("Select after Add: vs=%v err=%v", vs, err)
	}

	if err := db.Remove("foo", types.Int32(1), 42, 2); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	vs, err = db.Select("foo", 42)
	if err != nil || len(vs) != 0 {
		t.Fatalf("Select after Remove: expected empty, got vs=%v err=%v", vs, err)
	}
}

// Scenario 2 — cache append: §3's Record view is the SET of values for
// (key, record). A later ADD of a distinct value must appear in the
// result on the very next read, alongside every value added earlier —
// not replace them.
func TestSelectReturnsTheSetOfAllCurrentlyPresentValues(t *testing.T) {
	db, _ := newTestDB(t)
	for i := int32(0); i < 17; i++ {
		if err := db.Add("foo", types.Int32(i), 42, int64(i)+1); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}
	if err := db.Add("foo", types.Int32(99999), 42, 18); err != nil {
		t.Fatalf("Add 99999: %v", err)
	}
	vs, err := db.Select("foo", 42)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(vs) != 18 {
		t.Fatalf("Select returned %d values, want 18 (17 earlier + 99999): %v", len(vs), vs)
	}
	found99999, found0 := false, false
	for _, v := range vs {
		switch v.AsInt32() {
		case 99999:
			found99999 = true
		case 0:
			found0 = true
		}
	}
	if !found99999 {
		t.Fatalf("Select = %v, want a set containing 99999", vs)
	}
	if !found0 {
		t.Fatalf("Select = %v, want the set to still contain the first value added (0)", vs)
	}
}

func TestSelectRemoveOnlyRetractsTheNamedValue(t *testing.T) {
	db, _ := newTestDB(t)
	if err := db.Add("foo", types.Int32(1), 42, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := db.Add("foo", types.Int32(2), 42, 2); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := db.Remove("foo", types.Int32(1), 42, 3); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	vs, err := db.Select("foo", 42)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(vs) != 1 || vs[0].AsInt32() != 2 {
		t.Fatalf("Select = %v, want only [2] left after removing 1", vs)
	}
}

func TestFindMatchesOnFoldedValue(t *testing.T) {
	db, _ := newTestDB(t)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	must(db.Add("age", types.Int32(10), 1, 1))
	must(db.Add("age", types.Int32(20), 2, 2))
	must(db.Add("age", types.Int32(30), 3, 3))
	must(db.Remove("age", types.Int32(30), 3, 4))

	records, err := db.Find("age", query.GreaterOrEqual(types.Int32(15)))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(records) != 1 || records[0] != 2 {
		t.Fatalf("Find(>=15) = %v, want [2] (record 3 was removed)", records)
	}
}

func TestSearchFindsRecordsByToken(t *testing.T) {
	db, _ := newTestDB(t)
	if err := db.Add("bio", types.String("Senior Software Engineer"), 1, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	records, err := db.Search("bio", "engineer")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(records) != 1 || records[0] != 1 {
		t.Fatalf("Search(engineer) = %v, want [1]", records)
	}

	none, err := db.Search("bio", "astronaut")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("Search(astronaut) = %v, want none", none)
	}
}

func TestTagValuesAreNotSearchIndexed(t *testing.T) {
	db, _ := newTestDB(t)
	if err := db.Add("label", types.Tag("internal-only"), 1, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	records, err := db.Search("label", "internal")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("Search over a TAG value should find nothing, got %v", records)
	}
}

// Scenario 1 — restart after torn flush: deleting one family's sealed
// blocks and restarting must drop the corresponding blocks from the
// other two families too, restoring the balance invariant.
func TestStartEnforcesBlockBalanceAfterTornFlush(t *testing.T) {
	root := t.TempDir()
	db := database.New(root, 1, zerolog.Nop())
	if err := db.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := db.Add("k", types.Int32(1), 1, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := db.TriggerSync(); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cpb, csb, ctb := db.BlockCounts()
	if cpb != 1 || csb != 1 {
		t.Fatalf("expected exactly one sealed block in cpb and csb before the torn flush, got cpb=%d csb=%d ctb=%d", cpb, csb, ctb)
	}

	if err := os.RemoveAll(filepath.Join(root, database.FamilySecondary)); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, database.FamilySecondary), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	restarted := database.New(root, 1, zerolog.Nop())
	if err := restarted.Start(); err != nil {
		t.Fatalf("restart Start: %v", err)
	}
	gotCpb, gotCsb, _ := restarted.BlockCounts()
	if gotCpb != 0 || gotCsb != 0 {
		t.Fatalf("expected cpb's now-orphaned block to be dropped for balance, got cpb=%d csb=%d", gotCpb, gotCsb)
	}
}
