// Package docview folds a record's keys into a BSON document for the
// HTTP document endpoint, grounded on the teacher's pkg/storage/bson.go
// Bson<->JSON conversions but adapted to the Value kinds this module
// actually stores (§6) rather than the teacher's bson.D/time.Time set.
package docview

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/lattice-db/lattice/pkg/types"
)

// Document is a folded view of every (key -> current set of values)
// pair observed for one record — §3's Record view is a set, not a
// single overwritten scalar — the unit docview renders.
type Document map[string][]types.Value

// ToBSON converts d into a bson.M ready for Marshal/MarshalExtJSON, one
// BSON array per key.
func (d Document) ToBSON() bson.M {
	m := make(bson.M, len(d))
	for key, vs := range d {
		arr := make(bson.A, len(vs))
		for i, v := range vs {
			arr[i] = valueToInterface(v)
		}
		m[key] = arr
	}
	return m
}

// ExtJSON renders d as relaxed MongoDB Extended JSON, the body
// pkg/httpapi's document endpoint returns.
func (d Document) ExtJSON() ([]byte, error) {
	out, err := bson.MarshalExtJSON(d.ToBSON(), false, false)
	if err != nil {
		return nil, fmt.Errorf("docview: marshal extjson: %w", err)
	}
	return out, nil
}

// FromBSON builds a Document from a decoded bson.M, the inverse of
// ToBSON. Each
// key's value must decode to a BSON array, one element per value in the
// set.
func FromBSON(m bson.M) (Document, error) {
	doc := make(Document, len(m))
	for key, raw := range m {
		arr, ok := raw.(bson.A)
		if !ok {
			return nil, fmt.Errorf("docview: key %q: expected an array of values, got %T", key, raw)
		}
		vs := make([]types.Value, len(arr))
		for i, elem := range arr {
			v, err := valueFromInterface(elem)
			if err != nil {
				return nil, fmt.Errorf("docview: key %q[%d]: %w", key, i, err)
			}
			vs[i] = v
		}
		doc[key] = vs
	}
	return doc, nil
}

func valueToInterface(v types.Value) any {
	switch v.Kind() {
	case types.KindBoolean:
		return v.AsBool()
	case types.KindInteger:
		return v.AsInt32()
	case types.KindLong:
		return v.AsInt64()
	case types.KindFloat:
		return v.AsFloat32()
	case types.KindDouble:
		return v.AsFloat64()
	case types.KindString:
		return v.AsString()
	case types.KindTag:
		return bson.M{"$tag": v.AsString()}
	case types.KindLink:
		return bson.M{"$link": v.AsLink()}
	default:
		return nil
	}
}

func valueFromInterface(raw any) (types.Value, error) {
	switch val := raw.(type) {
	case bool:
		return types.Bool(val), nil
	case int32:
		return types.Int32(val), nil
	case int64:
		return types.Int64(val), nil
	case int:
		return types.Int64(int64(val)), nil
	case float32:
		return types.Float32(val), nil
	case float64:
		return types.Float64(val), nil
	case string:
		return types.String(val), nil
	case bson.M:
		if tag, ok := val["$tag"].(string); ok {
			return types.Tag(tag), nil
		}
		if link, ok := val["$link"]; ok {
			record, err := toInt64(link)
			if err != nil {
				return types.Value{}, fmt.Errorf("$link: %w", err)
			}
			return types.Link(record), nil
		}
		return types.Value{}, fmt.Errorf("unsupported document value %#v", val)
	default:
		return types.Value{}, fmt.Errorf("unsupported BSON type %T", raw)
	}
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("not a number: %#v", raw)
	}
}
