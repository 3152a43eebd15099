package walog

import (
	"encoding/binary"
	"io"
)

// Header layout constants. Each entry on disk is HeaderSize bytes of
// fixed header followed by PayloadLen bytes of payload (the §6 Write
// encoding produced by pkg/types).
const (
	HeaderSize = 24
	LogVersion = 1

	// Magic is checked on every read to catch a log opened against the
	// wrong file or a torn write at offset zero.
	Magic = 0xDEADBEEF
)

// EntryType distinguishes the kind of record carried in a log entry.
// The write buffer only ever logs Writes, but Begin/Commit/Abort markers
// are reserved for a future segmented-transaction log and are accepted
// by the reader today even though nothing emits them yet.
const (
	EntryWrite uint8 = iota + 1
	EntryBegin
	EntryCommit
	EntryAbort
)

// Header is the fixed 24-byte prefix of every log entry.
type Header struct {
	Magic      uint32
	Version    uint8
	EntryType  uint8
	Reserved   uint16
	Seq        uint64 // monotonic sequence number assigned by the buffer, not the Write's version
	PayloadLen uint32
	CRC32      uint32
}

func (h *Header) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.EntryType
	binary.LittleEndian.PutUint16(buf[6:8], h.Reserved)
	binary.LittleEndian.PutUint64(buf[8:16], h.Seq)
	binary.LittleEndian.PutUint32(buf[16:20], h.PayloadLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.CRC32)
}

func (h *Header) Decode(buf []byte) {
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = buf[4]
	h.EntryType = buf[5]
	h.Reserved = binary.LittleEndian.Uint16(buf[6:8])
	h.Seq = binary.LittleEndian.Uint64(buf[8:16])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[16:20])
	h.CRC32 = binary.LittleEndian.Uint32(buf[20:24])
}

// Entry is a complete log record: header plus payload.
type Entry struct {
	Header  Header
	Payload []byte
}

// WriteTo serializes header+payload to w, returning the bytes written.
func (e *Entry) WriteTo(w io.Writer) (int64, error) {
	var headerBuf [HeaderSize]byte
	e.Header.Encode(headerBuf[:])

	n, err := w.Write(headerBuf[:])
	if err != nil {
		return int64(n), err
	}

	m, err := w.Write(e.Payload)
	return int64(n + m), err
}
