package database

import (
	"fmt"

	"github.com/lattice-db/lattice/pkg/types"
)

// primaryKey orders cpb entries the way the primary block family is
// scanned: by record, then key, then version ascending. A record's full
// set of writes sits contiguously, in write order, for cheap folding.
type primaryKey struct {
	record  int64
	key     string
	version int64
}

func (k primaryKey) Compare(other types.Comparable) int {
	o := other.(primaryKey)
	switch {
	case k.record != o.record:
		return cmpInt64(k.record, o.record)
	case k.key != o.key:
		return cmpString(k.key, o.key)
	default:
		return cmpInt64(k.version, o.version)
	}
}

// secondaryKey orders csb entries by key, then value, then version
// ascending — the order a value-predicate scan (find(key, op, value))
// walks.
type secondaryKey struct {
	key     string
	value   types.Value
	version int64
}

func (k secondaryKey) Compare(other types.Comparable) int {
	o := other.(secondaryKey)
	if k.key != o.key {
		return cmpString(k.key, o.key)
	}
	if k.value.Kind() != o.value.Kind() {
		return cmpInt(int(k.value.Kind()), int(o.value.Kind()))
	}
	if c := k.value.Compare(o.value); c != 0 {
		return c
	}
	return cmpInt64(k.version, o.version)
}

// tertiaryKey orders ctb entries by key, then search token, then record,
// then version — the order a token lookup (string CONTAINS-style search)
// walks to collect matching records.
type tertiaryKey struct {
	key     string
	token   string
	record  int64
	version int64
}

func (k tertiaryKey) Compare(other types.Comparable) int {
	o := other.(tertiaryKey)
	switch {
	case k.key != o.key:
		return cmpString(k.key, o.key)
	case k.token != o.token:
		return cmpString(k.token, o.token)
	case k.record != o.record:
		return cmpInt64(k.record, o.record)
	default:
		return cmpInt64(k.version, o.version)
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (k primaryKey) String() string   { return fmt.Sprintf("(%d,%s,%d)", k.record, k.key, k.version) }
func (k secondaryKey) String() string { return fmt.Sprintf("(%s,%v,%d)", k.key, k.value, k.version) }
func (k tertiaryKey) String() string {
	return fmt.Sprintf("(%s,%s,%d,%d)", k.key, k.token, k.record, k.version)
}
