package types

// Comparable is implemented by anything that can act as a sort key inside
// a btree.BPlusTree or a database block: records, keys, values and the
// composite sort keys each block family orders its revisions by.
type Comparable interface {
	// Compare returns -1, 0 or 1 as the receiver is less than, equal to,
	// or greater than other. Implementations may panic if other is not
	// the same concrete type, mirroring the teacher's key types.
	Compare(other Comparable) int
}

// RecordKey orders by record id.
type RecordKey int64

func (k RecordKey) Compare(other Comparable) int {
	o := other.(RecordKey)
	switch {
	case k < o:
		return -1
	case k > o:
		return 1
	default:
		return 0
	}
}

// StringKey orders UTF-8 key names lexically.
type StringKey string

func (k StringKey) Compare(other Comparable) int {
	o := other.(StringKey)
	switch {
	case k < o:
		return -1
	case k > o:
		return 1
	default:
		return 0
	}
}

// VersionKey orders by the monotonic version/LSN. The block families'
// own composite keys (pkg/database) compare raw fields rather than these
// types.
type VersionKey int64

func (k VersionKey) Compare(other Comparable) int {
	o := other.(VersionKey)
	switch {
	case k < o:
		return -1
	case k > o:
		return 1
	default:
		return 0
	}
}
