package types_test

import (
	"testing"

	"github.com/lattice-db/lattice/pkg/types"
)

func TestWriteEncodeDecodeRoundTrip(t *testing.T) {
	cases := []types.Write{
		{Op: types.OpAdd, Key: "foo", Value: types.Int32(1), Record: 1, Version: 1},
		{Op: types.OpRemove, Key: "ipeds_id", Value: types.String("hello"), Record: 42, Version: 99999},
		{Op: types.OpAdd, Key: "k", Value: types.Link(7), Record: -1, Version: 0},
	}
	for _, w := range cases {
		buf := w.Encode(nil)
		got, n, err := types.DecodeWrite(buf)
		if err != nil {
			t.Fatalf("DecodeWrite: %v", err)
		}
		if n != len(buf) {
			t.Fatalf("consumed %d bytes, encoded %d", n, len(buf))
		}
		if got.Op != w.Op || got.Key != w.Key || got.Record != w.Record || got.Version != w.Version {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, w)
		}
		if got.Value.Kind() != w.Value.Kind() || got.Value.Compare(w.Value) != 0 {
			t.Fatalf("value round trip mismatch: got %v, want %v", got.Value, w.Value)
		}
	}
}

func TestWriteEncodeAppendsToExistingBuffer(t *testing.T) {
	w := types.Write{Op: types.OpAdd, Key: "k", Value: types.Bool(true), Record: 1, Version: 1}
	prefix := []byte{0xAA, 0xBB}
	buf := w.Encode(append([]byte{}, prefix...))
	if buf[0] != 0xAA || buf[1] != 0xBB {
		t.Fatal("Encode must append, not overwrite, an existing buffer")
	}
	got, _, err := types.DecodeWrite(buf[2:])
	if err != nil || got.Record != 1 {
		t.Fatalf("DecodeWrite after prefix: %+v, %v", got, err)
	}
}
