package database

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/holiman/bloomfilter/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"

	"github.com/lattice-db/lattice/pkg/lerrors"
	"github.com/lattice-db/lattice/pkg/mmapfs"
	"github.com/lattice-db/lattice/pkg/types"
)

// blockFalsePositiveBits is the bloom filter bits-per-entry used when
// sealing a block; 8 bits/entry with 4 hash functions keeps the false
// positive rate low without the filter outgrowing the block it guards.
const blockFalsePositiveBits = 8

// sealedBlock is one immutable, on-disk block: a zstd-compressed, xxh3-
// checksummed body of Writes in the family's composite sort order, plus
// a bloom filter sidecar that lets a point lookup skip the block
// entirely without ever mapping its body.
type sealedBlock struct {
	id       int64
	path     string
	idxPath  string
	checksum uint64
	filter   *bloomfilter.Filter
	count    int

	region *mmapfs.Region // lazily opened by open()
}

// sealBlock writes entries — already produced in the family's sort
// order — to dir as a new sealed block.
func sealBlock(dir string, id int64, entries []types.Write) (*sealedBlock, error) {
	var body []byte
	for _, w := range entries {
		body = w.Encode(body)
	}

	compressed, err := compressBody(body)
	if err != nil {
		return nil, err
	}
	checksum := xxh3.Hash(compressed)

	path := filepath.Join(dir, blockFileName(id))
	if err := os.WriteFile(path, compressed, 0o644); err != nil {
		return nil, &lerrors.DurabilityError{Component: "database", Err: fmt.Errorf("write block %s: %w", path, err)}
	}

	filter, err := bloomfilter.New(uint64(max(len(entries), 1)*blockFalsePositiveBits), 4)
	if err != nil {
		return nil, fmt.Errorf("database: bloom filter: %w", err)
	}
	for _, w := range entries {
		filter.Add(xxh3.HashString(w.Key))
	}

	idxPath := filepath.Join(dir, idxFileName(id))
	if err := writeSidecar(idxPath, checksum, filter); err != nil {
		return nil, err
	}

	return &sealedBlock{id: id, path: path, idxPath: idxPath, checksum: checksum, filter: filter, count: len(entries)}, nil
}

// openBlock loads a previously sealed block's sidecar (checksum +
// filter) without mapping its body; the body is mapped lazily on first
// read via open().
func openBlock(dir string, id int64) (*sealedBlock, error) {
	path := filepath.Join(dir, blockFileName(id))
	idxPath := filepath.Join(dir, idxFileName(id))

	checksum, filter, err := readSidecar(idxPath)
	if err != nil {
		return nil, err
	}
	return &sealedBlock{id: id, path: path, idxPath: idxPath, checksum: checksum, filter: filter}, nil
}

// open maps the block body, verifying its xxh3 checksum. A mismatch
// means the block was torn or corrupted; open then returns a
// DurabilityError, which family.scan passes on to its caller, so every
// read of this block's family fails while the block stays in the
// family's list.
func (b *sealedBlock) open() ([]byte, error) {
	if b.region == nil {
		r, err := mmapfs.Open(b.path)
		if err != nil {
			return nil, &lerrors.DurabilityError{Component: "database", Err: err}
		}
		b.region = r
	}
	raw, err := b.region.Bytes()
	if err != nil {
		return nil, &lerrors.DurabilityError{Component: "database", Err: err}
	}
	if xxh3.Hash(raw) != b.checksum {
		return nil, &lerrors.DurabilityError{Component: "database", Err: fmt.Errorf("block %d: checksum mismatch", b.id)}
	}
	return decompressBody(raw)
}

// mayContain consults the bloom filter for key. A false result proves
// absence; a true result only means "maybe" — the caller must still
// scan the decompressed body to confirm.
func (b *sealedBlock) mayContain(key string) bool {
	if b.filter == nil {
		return true
	}
	return b.filter.Contains(xxh3.HashString(key))
}

// entries decompresses and decodes every Write in the block, in its
// on-disk (sorted) order.
func (b *sealedBlock) entries() ([]types.Write, error) {
	body, err := b.open()
	if err != nil {
		return nil, err
	}
	var out []types.Write
	for len(body) > 0 {
		w, n, err := types.DecodeWrite(body)
		if err != nil {
			return nil, &lerrors.DurabilityError{Component: "database", Err: fmt.Errorf("block %d: %w", b.id, err)}
		}
		out = append(out, w)
		body = body[n:]
	}
	return out, nil
}

// close unmaps the block's body, if mapped. Sealed blocks are evicted
// independently of the family they belong to; callers must not read
// through b after close returns.
func (b *sealedBlock) close() error {
	if b.region == nil {
		return nil
	}
	err := b.region.Close()
	b.region = nil
	return err
}

func blockFileName(id int64) string { return fmt.Sprintf("%020d.block", id) }
func idxFileName(id int64) string   { return fmt.Sprintf("%020d.idx", id) }

func compressBody(body []byte) ([]byte, error) {
	var out bytes.Buffer
	enc, err := zstd.NewWriter(&out)
	if err != nil {
		return nil, fmt.Errorf("database: zstd writer: %w", err)
	}
	if _, err := enc.Write(body); err != nil {
		enc.Close()
		return nil, fmt.Errorf("database: zstd compress: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("database: zstd close: %w", err)
	}
	return out.Bytes(), nil
}

func decompressBody(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("database: zstd reader: %w", err)
	}
	defer dec.Close()
	body, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("database: zstd decompress: %w", err)
	}
	return body, nil
}

// writeSidecar persists checksum followed by the bloom filter's binary
// form to path.
func writeSidecar(path string, checksum uint64, filter *bloomfilter.Filter) error {
	filterBytes, err := filter.MarshalBinary()
	if err != nil {
		return fmt.Errorf("database: marshal bloom filter: %w", err)
	}
	var header [8]byte
	binary.BigEndian.PutUint64(header[:], checksum)

	buf := make([]byte, 0, 8+len(filterBytes))
	buf = append(buf, header[:]...)
	buf = append(buf, filterBytes...)

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return &lerrors.DurabilityError{Component: "database", Err: fmt.Errorf("write sidecar %s: %w", path, err)}
	}
	return nil
}

func readSidecar(path string) (uint64, *bloomfilter.Filter, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, &lerrors.DurabilityError{Component: "database", Err: fmt.Errorf("read sidecar %s: %w", path, err)}
	}
	if len(buf) < 8 {
		return 0, nil, &lerrors.DurabilityError{Component: "database", Err: fmt.Errorf("sidecar %s: truncated header", path)}
	}
	checksum := binary.BigEndian.Uint64(buf[:8])

	filter := new(bloomfilter.Filter)
	if err := filter.UnmarshalBinary(buf[8:]); err != nil {
		return 0, nil, &lerrors.DurabilityError{Component: "database", Err: fmt.Errorf("sidecar %s: unmarshal bloom filter: %w", path, err)}
	}
	return checksum, filter, nil
}
