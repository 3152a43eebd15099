package types

import "time"

// Generic Comparable key wrappers, used where a btree.BPlusTree needs a
// plain scalar key rather than one of the composite sort keys the
// database blocks use (e.g. an ad-hoc in-memory index built by a test).

type IntKey int64

func (k IntKey) Compare(other Comparable) int {
	o := other.(IntKey)
	switch {
	case k < o:
		return -1
	case k > o:
		return 1
	default:
		return 0
	}
}

type VarcharKey string

func (k VarcharKey) Compare(other Comparable) int {
	o := other.(VarcharKey)
	switch {
	case k < o:
		return -1
	case k > o:
		return 1
	default:
		return 0
	}
}

type FloatKey float64

func (k FloatKey) Compare(other Comparable) int {
	o := other.(FloatKey)
	switch {
	case k < o:
		return -1
	case k > o:
		return 1
	default:
		return 0
	}
}

type BoolKey bool

func (k BoolKey) Compare(other Comparable) int {
	o := other.(BoolKey)
	if k == o {
		return 0
	}
	if !bool(k) && bool(o) {
		return -1
	}
	return 1
}

type DateKey time.Time

func (k DateKey) Compare(other Comparable) int {
	o := time.Time(other.(DateKey))
	t := time.Time(k)
	switch {
	case t.Before(o):
		return -1
	case t.After(o):
		return 1
	default:
		return 0
	}
}

func (k DateKey) String() string { return time.Time(k).Format(time.RFC3339) }
