// Package slbs implements the sparse long bit-set: a set of signed
// 64-bit integers with near-O(1) membership, addressed by splitting each
// id into a partition key (the high 44 bits) and an offset into a dense
// 2^20-bit vector (the low 20 bits). Ids of small magnitude, of either
// sign, land in one of a handful of partitions, which is what makes the
// set cheap for the clustered record/candidate ids the engine indexes.
//
// A Set is not internally synchronized — callers confine it to a single
// logical operation, or guard it with an external mutex, exactly as the
// specification requires.
package slbs

import "sort"

const (
	partitionBits = 20
	partitionSize = 1 << partitionBits // ids per partition
	partitionMask = partitionSize - 1
	wordsPerPart  = partitionSize / 64
)

type partition [wordsPerPart]uint64

// Set is a sparse set of int64 ids.
type Set struct {
	partitions map[int64]*partition
}

// New returns an empty set.
func New() *Set {
	return &Set{partitions: make(map[int64]*partition)}
}

func split(id int64) (part int64, offset uint) {
	// Arithmetic right shift: Go's >> on a signed integer preserves the
	// sign bit, so ids of either sign partition by magnitude as intended.
	part = id >> partitionBits
	offset = uint(id & partitionMask)
	return
}

// Set adds id to the set, returning true iff the bit transitioned 0→1.
func (s *Set) Set(id int64) bool {
	return s.SetValue(id, true)
}

// SetValue sets id's membership to value. Clearing a bit in a partition
// that was never materialized is a no-op — it never allocates a
// partition just to record an absence.
func (s *Set) SetValue(id int64, value bool) bool {
	part, offset := split(id)
	word, bit := offset/64, offset%64

	p, ok := s.partitions[part]
	if !value {
		if !ok {
			return false
		}
		was := p[word]&(1<<bit) != 0
		p[word] &^= 1 << bit
		return was
	}

	if !ok {
		p = &partition{}
		s.partitions[part] = p
	}

	was := p[word]&(1<<bit) != 0
	p[word] |= 1 << bit
	return !was
}

// Get reports whether id is a member.
func (s *Set) Get(id int64) bool {
	part, offset := split(id)
	p, ok := s.partitions[part]
	if !ok {
		return false
	}
	word, bit := offset/64, offset%64
	return p[word]&(1<<bit) != 0
}

// Contains is an alias for Get, spelled the way §3's invariant states it.
func (s *Set) Contains(id int64) bool { return s.Get(id) }

// PartitionCount returns the number of partitions currently materialized. Useful
// for tests asserting that SetValue(id, false) never allocates.
func (s *Set) PartitionCount() int { return len(s.partitions) }

// All returns a lazy, ascending sequence of every id in the set —
// ascending across partitions (partition keys sorted, including
// negative ones) and ascending within each partition's bit vector.
func (s *Set) All() func(yield func(int64) bool) {
	return func(yield func(int64) bool) {
		if len(s.partitions) == 0 {
			return
		}
		parts := make([]int64, 0, len(s.partitions))
		for p := range s.partitions {
			parts = append(parts, p)
		}
		sort.Slice(parts, func(i, j int) bool { return parts[i] < parts[j] })

		for _, part := range parts {
			bits := s.partitions[part]
			base := part << partitionBits
			for word := 0; word < wordsPerPart; word++ {
				w := bits[word]
				if w == 0 {
					continue
				}
				for bit := 0; bit < 64; bit++ {
					if w&(1<<uint(bit)) == 0 {
						continue
					}
					id := base + int64(word*64+bit)
					if !yield(id) {
						return
					}
				}
			}
		}
	}
}

// Iterator returns a pull-style cursor over All(), for callers that
// prefer Valid()/Next()/Id() over range-over-func.
type Iterator struct {
	ids []int64
	pos int
}

// Iter materializes an ascending iterator over the ids present when it
// is called. All() should be preferred where a lazy sequence suffices;
// Iter is for callers that prefer a pull-style cursor.
func (s *Set) Iter() *Iterator {
	var ids []int64
	for id := range s.All() {
		ids = append(ids, id)
	}
	return &Iterator{ids: ids}
}

func (it *Iterator) Valid() bool { return it.pos < len(it.ids) }
func (it *Iterator) Id() int64   { return it.ids[it.pos] }
func (it *Iterator) Next()       { it.pos++ }
