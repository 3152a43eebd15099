package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lattice-db/lattice/pkg/types"
)

func parseRecordID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid record id %q: %w", s, err)
	}
	return id, nil
}

// parseTypedValue builds a types.Value from a kind name (case
// insensitive, matching types.Kind.String()) and its string form.
func parseTypedValue(kind, raw string) (types.Value, error) {
	switch strings.ToUpper(kind) {
	case "BOOLEAN", "BOOL":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return types.Value{}, fmt.Errorf("invalid BOOLEAN %q: %w", raw, err)
		}
		return types.Bool(b), nil
	case "INTEGER", "INT32", "INT":
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return types.Value{}, fmt.Errorf("invalid INTEGER %q: %w", raw, err)
		}
		return types.Int32(int32(n)), nil
	case "LONG", "INT64":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return types.Value{}, fmt.Errorf("invalid LONG %q: %w", raw, err)
		}
		return types.Int64(n), nil
	case "FLOAT", "FLOAT32":
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return types.Value{}, fmt.Errorf("invalid FLOAT %q: %w", raw, err)
		}
		return types.Float32(float32(f)), nil
	case "DOUBLE", "FLOAT64":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Value{}, fmt.Errorf("invalid DOUBLE %q: %w", raw, err)
		}
		return types.Float64(f), nil
	case "STRING":
		return types.String(raw), nil
	case "TAG":
		return types.Tag(raw), nil
	case "LINK":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return types.Value{}, fmt.Errorf("invalid LINK %q: %w", raw, err)
		}
		return types.Link(n), nil
	default:
		return types.Value{}, fmt.Errorf("unknown value type %q", kind)
	}
}
