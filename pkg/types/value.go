package types

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Kind tags the dynamic type carried by a Value, matching the wire tags
// fixed in §6 of the specification.
type Kind uint8

const (
	KindBoolean Kind = iota + 1
	KindInteger      // i32
	KindLong         // i64
	KindFloat        // f32
	KindDouble       // f64
	KindString
	KindTag // like String, but never indexed by the search family
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "BOOLEAN"
	case KindInteger:
		return "INTEGER"
	case KindLong:
		return "LONG"
	case KindFloat:
		return "FLOAT"
	case KindDouble:
		return "DOUBLE"
	case KindString:
		return "STRING"
	case KindTag:
		return "TAG"
	case KindLink:
		return "LINK"
	default:
		return "UNKNOWN"
	}
}

// Value is an immutable typed primitive (the spec's TObject). Once
// constructed it is never mutated; a new Value is built for every Write.
type Value struct {
	kind Kind
	i    int64   // backs Integer, Long and Link
	f    float64 // backs Float and Double
	b    bool
	s    string
}

func Bool(v bool) Value       { return Value{kind: KindBoolean, b: v} }
func Int32(v int32) Value     { return Value{kind: KindInteger, i: int64(v)} }
func Int64(v int64) Value     { return Value{kind: KindLong, i: v} }
func Float32(v float32) Value { return Value{kind: KindFloat, f: float64(v)} }
func Float64(v float64) Value { return Value{kind: KindDouble, f: v} }
func String(v string) Value   { return Value{kind: KindString, s: v} }
func Tag(v string) Value      { return Value{kind: KindTag, s: v} }
func Link(record int64) Value { return Value{kind: KindLink, i: record} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsBool() bool       { return v.b }
func (v Value) AsInt32() int32     { return int32(v.i) }
func (v Value) AsInt64() int64     { return v.i }
func (v Value) AsFloat32() float32 { return float32(v.f) }
func (v Value) AsFloat64() float64 { return v.f }
func (v Value) AsString() string   { return v.s }
func (v Value) AsLink() int64      { return v.i }

func (v Value) String() string {
	switch v.kind {
	case KindBoolean:
		return fmt.Sprintf("%t", v.b)
	case KindInteger:
		return fmt.Sprintf("%d", int32(v.i))
	case KindLong:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%v", float32(v.f))
	case KindDouble:
		return fmt.Sprintf("%v", v.f)
	case KindString, KindTag:
		return v.s
	case KindLink:
		return fmt.Sprintf("@%d", v.i)
	default:
		return ""
	}
}

// Searchable reports whether this value participates in the search
// (tertiary/token) family. Tag values are explicitly excluded, per §6.
func (v Value) Searchable() bool {
	return v.kind == KindString
}

// Compare orders values of the same kind by payload. Values of different
// kinds are ordered by their Kind tag rather than rejected; the secondary
// family's key compares kinds itself before calling Compare.
func (v Value) Compare(other Comparable) int {
	o := other.(Value)
	if v.kind != o.kind {
		if v.kind < o.kind {
			return -1
		}
		return 1
	}
	switch v.kind {
	case KindBoolean:
		if v.b == o.b {
			return 0
		}
		if !v.b {
			return -1
		}
		return 1
	case KindInteger, KindLong, KindLink:
		switch {
		case v.i < o.i:
			return -1
		case v.i > o.i:
			return 1
		default:
			return 0
		}
	case KindFloat, KindDouble:
		switch {
		case v.f < o.f:
			return -1
		case v.f > o.f:
			return 1
		default:
			return 0
		}
	case KindString, KindTag:
		switch {
		case v.s < o.s:
			return -1
		case v.s > o.s:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

// Encode appends the §6 type-tagged, length-prefixed, big-endian encoding
// of v to buf and returns the result.
func (v Value) Encode(buf []byte) []byte {
	buf = append(buf, byte(v.kind))

	var payload []byte
	switch v.kind {
	case KindBoolean:
		payload = []byte{0}
		if v.b {
			payload[0] = 1
		}
	case KindInteger:
		payload = make([]byte, 4)
		binary.BigEndian.PutUint32(payload, uint32(int32(v.i)))
	case KindLong:
		payload = make([]byte, 8)
		binary.BigEndian.PutUint64(payload, uint64(v.i))
	case KindFloat:
		payload = make([]byte, 4)
		binary.BigEndian.PutUint32(payload, math.Float32bits(float32(v.f)))
	case KindDouble:
		payload = make([]byte, 8)
		binary.BigEndian.PutUint64(payload, math.Float64bits(v.f))
	case KindString, KindTag:
		payload = []byte(v.s)
	case KindLink:
		payload = make([]byte, 8)
		binary.BigEndian.PutUint64(payload, uint64(v.i))
	}

	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(payload)))
	buf = append(buf, lenBuf...)
	buf = append(buf, payload...)
	return buf
}

// DecodeValue reads one §6-encoded value from buf, returning the value
// and the number of bytes consumed.
func DecodeValue(buf []byte) (Value, int, error) {
	if len(buf) < 5 {
		return Value{}, 0, fmt.Errorf("types: truncated value header")
	}
	kind := Kind(buf[0])
	length := binary.BigEndian.Uint32(buf[1:5])
	if len(buf) < int(5+length) {
		return Value{}, 0, fmt.Errorf("types: truncated value payload")
	}
	payload := buf[5 : 5+length]
	consumed := 5 + int(length)

	switch kind {
	case KindBoolean:
		return Bool(payload[0] == 1), consumed, nil
	case KindInteger:
		return Int32(int32(binary.BigEndian.Uint32(payload))), consumed, nil
	case KindLong:
		return Int64(int64(binary.BigEndian.Uint64(payload))), consumed, nil
	case KindFloat:
		return Float32(math.Float32frombits(binary.BigEndian.Uint32(payload))), consumed, nil
	case KindDouble:
		return Float64(math.Float64frombits(binary.BigEndian.Uint64(payload))), consumed, nil
	case KindString:
		return String(string(payload)), consumed, nil
	case KindTag:
		return Tag(string(payload)), consumed, nil
	case KindLink:
		return Link(int64(binary.BigEndian.Uint64(payload))), consumed, nil
	default:
		return Value{}, 0, fmt.Errorf("types: unknown value kind %d", kind)
	}
}
