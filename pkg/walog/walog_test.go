package walog_test

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/lattice-db/lattice/pkg/walog"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segment.log")

	w, err := walog.NewWriter(path, walog.DefaultOptions())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	for i := uint64(1); i <= 5; i++ {
		payload := []byte{byte(i), byte(i + 1)}
		entry := walog.AcquireEntry()
		entry.Header = walog.Header{
			Magic:      walog.Magic,
			Version:    walog.LogVersion,
			EntryType:  walog.EntryWrite,
			Seq:        i,
			PayloadLen: uint32(len(payload)),
			CRC32:      walog.CRC32(payload),
		}
		entry.Payload = append(entry.Payload, payload...)
		if err := w.Append(entry); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		walog.ReleaseEntry(entry)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r, err := walog.NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	var seen []uint64
	for {
		entry, err := r.ReadEntry()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadEntry failed: %v", err)
		}
		seen = append(seen, entry.Header.Seq)
		walog.ReleaseEntry(entry)
	}

	if len(seen) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(seen))
	}
	for i, s := range seen {
		if s != uint64(i+1) {
			t.Errorf("entry %d: expected seq %d, got %d", i, i+1, s)
		}
	}
}

func TestReaderRejectsCorruptChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segment.log")

	w, err := walog.NewWriter(path, walog.DefaultOptions())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	entry := walog.AcquireEntry()
	entry.Header = walog.Header{
		Magic:      walog.Magic,
		Version:    walog.LogVersion,
		EntryType:  walog.EntryWrite,
		Seq:        1,
		PayloadLen: 2,
		CRC32:      0xDEADBEEF, // wrong on purpose
	}
	entry.Payload = append(entry.Payload, 1, 2)
	if err := w.Append(entry); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	walog.ReleaseEntry(entry)
	w.Close()

	r, err := walog.NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	if _, err := r.ReadEntry(); err != walog.ErrChecksumMismatch {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}
