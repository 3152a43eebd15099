package buffer_test

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/lattice-db/lattice/pkg/buffer"
	"github.com/lattice-db/lattice/pkg/database"
	"github.com/lattice-db/lattice/pkg/query"
	"github.com/lattice-db/lattice/pkg/types"
	"github.com/lattice-db/lattice/pkg/walog"
)

func openTestBuffer(t *testing.T) *buffer.Buffer {
	t.Helper()
	b, err := buffer.Open(t.TempDir(), walog.DefaultOptions(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestViewOverlaysUpstream(t *testing.T) {
	b := openTestBuffer(t)
	upstream := []types.Value{types.Int32(7)}

	// No buffer writes yet: the upstream set passes through untouched.
	vs := b.View("foo", 1, upstream)
	if len(vs) != 1 || vs[0].AsInt32() != 7 {
		t.Fatalf("View with no overlay = %v, want upstream [7]", vs)
	}

	// ADDing a distinct value extends the set; it doesn't replace it.
	if err := b.Append(types.Write{Op: types.OpAdd, Key: "foo", Value: types.Int32(8), Record: 1, Version: 1}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	vs = b.View("foo", 1, upstream)
	if len(vs) != 2 {
		t.Fatalf("View after overlay ADD = %v, want [7 8]", vs)
	}

	// REMOVE only retracts the value it names.
	if err := b.Append(types.Write{Op: types.OpRemove, Key: "foo", Value: types.Int32(8), Record: 1, Version: 2}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	vs = b.View("foo", 1, upstream)
	if len(vs) != 1 || vs[0].AsInt32() != 7 {
		t.Fatalf("View after overlay REMOVE = %v, want upstream's [7] still present", vs)
	}

	if err := b.Append(types.Write{Op: types.OpRemove, Key: "foo", Value: types.Int32(7), Record: 1, Version: 3}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	vs = b.View("foo", 1, upstream)
	if len(vs) != 0 {
		t.Fatalf("View after removing the last value = %v, want empty", vs)
	}
}

func TestVerifyTracksOddEvenCount(t *testing.T) {
	b := openTestBuffer(t)
	if b.Verify("k", types.Int32(1), 1, false) {
		t.Fatal("Verify on an empty buffer with absent upstream should be false")
	}
	if err := b.Append(types.Write{Op: types.OpAdd, Key: "k", Value: types.Int32(1), Record: 1, Version: 1}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !b.Verify("k", types.Int32(1), 1, false) {
		t.Fatal("Verify after one ADD should be true")
	}
	if err := b.Append(types.Write{Op: types.OpRemove, Key: "k", Value: types.Int32(1), Record: 1, Version: 2}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if b.Verify("k", types.Int32(1), 1, false) {
		t.Fatal("Verify after ADD+REMOVE should be false")
	}
}

func TestTransportDrainsIntoDatabaseAndTruncates(t *testing.T) {
	b := openTestBuffer(t)
	db := database.New(t.TempDir(), 64, zerolog.Nop())
	if err := db.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := int32(0); i < 5; i++ {
		if err := b.Append(types.Write{Op: types.OpAdd, Key: "k", Value: types.Int32(i), Record: 1, Version: int64(i) + 1}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if b.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", b.Len())
	}

	n, err := b.Transport(db, 0)
	if err != nil {
		t.Fatalf("Transport: %v", err)
	}
	if n != 5 {
		t.Fatalf("Transport drained %d, want 5", n)
	}
	if b.Len() != 0 {
		t.Fatalf("Len() after Transport = %d, want 0", b.Len())
	}

	vs, err := db.Select("k", 1)
	if err != nil || len(vs) != 5 {
		t.Fatalf("db.Select after Transport = %v, %v, want 5 values (0..4), nil", vs, err)
	}
}

func TestFindOverOwnEntries(t *testing.T) {
	b := openTestBuffer(t)
	if err := b.Append(types.Write{Op: types.OpAdd, Key: "age", Value: types.Int32(30), Record: 1, Version: 1}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := b.Append(types.Write{Op: types.OpAdd, Key: "age", Value: types.Int32(10), Record: 2, Version: 2}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got := b.Find("age", query.GreaterOrEqual(types.Int32(20)))
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("Find(>=20) = %v, want [1]", got)
	}
}
