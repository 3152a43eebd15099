package query_test

import (
	"regexp"
	"testing"

	"github.com/lattice-db/lattice/pkg/query"
	"github.com/lattice-db/lattice/pkg/types"
)

func TestBetweenMatchesInclusive(t *testing.T) {
	c := query.Between(types.IntKey(10), types.IntKey(20))
	if !c.Matches(types.IntKey(10)) || !c.Matches(types.IntKey(20)) || !c.Matches(types.IntKey(15)) {
		t.Fatal("BETWEEN should be inclusive on both ends")
	}
	if c.Matches(types.IntKey(9)) || c.Matches(types.IntKey(21)) {
		t.Fatal("BETWEEN should exclude values outside the range")
	}
}

// Scenario 4: find(ipeds_id, NOT_REGEX, ...) followed by a write in the
// same operation must not deadlock, and must filter correctly.
func TestNotRegexFiltersStringValues(t *testing.T) {
	c := query.NotRegex(regexp.MustCompile(`^A`))
	if c.Matches(types.String("Alpha")) {
		t.Error("NOT_REGEX should exclude a string matching the pattern")
	}
	if !c.Matches(types.String("Beta")) {
		t.Error("NOT_REGEX should include a string not matching the pattern")
	}
}

func TestShouldSeekOptimizableOperators(t *testing.T) {
	cases := map[*query.Condition]bool{
		query.Equal(types.IntKey(1)):          true,
		query.GreaterThan(types.IntKey(1)):    true,
		query.GreaterOrEqual(types.IntKey(1)): true,
		query.Between(types.IntKey(1), types.IntKey(2)): true,
		query.NotEqual(types.IntKey(1)):       false,
		query.LessThan(types.IntKey(1)):       false,
	}
	for c, want := range cases {
		if c.ShouldSeek() != want {
			t.Errorf("operator %v: ShouldSeek() = %v, want %v", c.Operator, c.ShouldSeek(), want)
		}
	}
}
