// Package query implements the comparison operators the database's
// find(key, op, value) read path and the write buffer's Find use to
// select records by value.
package query

import (
	"regexp"

	"github.com/lattice-db/lattice/pkg/types"
)

// Operator is one of the comparison operators find() accepts.
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterOrEqual
	OpLessThan
	OpLessOrEqual
	OpBetween
	OpRegex    // string values only
	OpNotRegex // string values only; used by scenario 4
)

// Condition describes a single find()/scan predicate.
type Condition struct {
	Operator Operator
	Value    types.Comparable // unary operators
	ValueEnd types.Comparable // BETWEEN's upper bound
	Pattern  *regexp.Regexp   // (NOT_)REGEX
}

func Equal(v types.Comparable) *Condition          { return &Condition{Operator: OpEqual, Value: v} }
func NotEqual(v types.Comparable) *Condition        { return &Condition{Operator: OpNotEqual, Value: v} }
func GreaterThan(v types.Comparable) *Condition     { return &Condition{Operator: OpGreaterThan, Value: v} }
func GreaterOrEqual(v types.Comparable) *Condition  { return &Condition{Operator: OpGreaterOrEqual, Value: v} }
func LessThan(v types.Comparable) *Condition        { return &Condition{Operator: OpLessThan, Value: v} }
func LessOrEqual(v types.Comparable) *Condition     { return &Condition{Operator: OpLessOrEqual, Value: v} }
func Between(start, end types.Comparable) *Condition {
	return &Condition{Operator: OpBetween, Value: start, ValueEnd: end}
}
func Regex(pattern *regexp.Regexp) *Condition {
	return &Condition{Operator: OpRegex, Pattern: pattern}
}
func NotRegex(pattern *regexp.Regexp) *Condition {
	return &Condition{Operator: OpNotRegex, Pattern: pattern}
}

// Matches reports whether key (or, for (NOT_)REGEX, a string value)
// satisfies the condition.
func (c *Condition) Matches(key types.Comparable) bool {
	switch c.Operator {
	case OpEqual:
		return key.Compare(c.Value) == 0
	case OpNotEqual:
		return key.Compare(c.Value) != 0
	case OpGreaterThan:
		return key.Compare(c.Value) > 0
	case OpGreaterOrEqual:
		return key.Compare(c.Value) >= 0
	case OpLessThan:
		return key.Compare(c.Value) < 0
	case OpLessOrEqual:
		return key.Compare(c.Value) <= 0
	case OpBetween:
		return key.Compare(c.Value) >= 0 && key.Compare(c.ValueEnd) <= 0
	case OpRegex, OpNotRegex:
		v, ok := key.(types.Value)
		if !ok || v.Kind() != types.KindString {
			return false
		}
		matched := c.Pattern.MatchString(v.AsString())
		if c.Operator == OpNotRegex {
			return !matched
		}
		return matched
	default:
		return false
	}
}

// GetStartKey returns the key to Seek() to, or nil when a full scan is
// required.
func (c *Condition) GetStartKey() types.Comparable {
	switch c.Operator {
	case OpEqual, OpGreaterThan, OpGreaterOrEqual, OpBetween:
		return c.Value
	default:
		return nil
	}
}

// ShouldSeek reports whether the condition admits a Seek()-optimized scan
// instead of a full walk from the beginning.
func (c *Condition) ShouldSeek() bool {
	switch c.Operator {
	case OpEqual, OpGreaterThan, OpGreaterOrEqual, OpBetween:
		return true
	default:
		return false
	}
}

// ShouldContinue reports whether the scan should keep walking past key.
func (c *Condition) ShouldContinue(key types.Comparable) bool {
	switch c.Operator {
	case OpEqual:
		return key.Compare(c.Value) <= 0
	case OpLessThan:
		return key.Compare(c.Value) < 0
	case OpLessOrEqual:
		return key.Compare(c.Value) <= 0
	case OpBetween:
		return key.Compare(c.ValueEnd) <= 0
	default:
		return true
	}
}
