package main

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lattice-db/lattice/pkg/query"
)

var findCmd = &cobra.Command{
	Use:   "find <key> <operator> <type> <value> [valueEnd]",
	Short: "Scan a key for records whose folded value satisfies operator",
	Long: `Operators: EQ, NEQ, GT, GTE, LT, LTE, BETWEEN (needs valueEnd),
REGEX, NOTREGEX (type is ignored for REGEX/NOTREGEX; value is the pattern).`,
	Args: cobra.RangeArgs(4, 5),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, operator, kind, value := args[0], strings.ToUpper(args[1]), args[2], args[3]

		cond, err := buildCondition(operator, kind, value, args[4:])
		if err != nil {
			return err
		}

		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		records, err := eng.Find(key, cond)
		if err != nil {
			return fmt.Errorf("find: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("(no matches)")
			return nil
		}
		for _, r := range records {
			fmt.Println(r)
		}
		return nil
	},
}

func buildCondition(operator, kind, value string, rest []string) (*query.Condition, error) {
	if operator == "REGEX" || operator == "NOTREGEX" {
		pattern, err := regexp.Compile(value)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", value, err)
		}
		if operator == "REGEX" {
			return query.Regex(pattern), nil
		}
		return query.NotRegex(pattern), nil
	}

	v, err := parseTypedValue(kind, value)
	if err != nil {
		return nil, err
	}
	switch operator {
	case "EQ":
		return query.Equal(v), nil
	case "NEQ":
		return query.NotEqual(v), nil
	case "GT":
		return query.GreaterThan(v), nil
	case "GTE":
		return query.GreaterOrEqual(v), nil
	case "LT":
		return query.LessThan(v), nil
	case "LTE":
		return query.LessOrEqual(v), nil
	case "BETWEEN":
		if len(rest) != 1 {
			return nil, fmt.Errorf("BETWEEN requires a valueEnd argument")
		}
		end, err := parseTypedValue(kind, rest[0])
		if err != nil {
			return nil, err
		}
		return query.Between(v, end), nil
	default:
		return nil, fmt.Errorf("unknown operator %q", operator)
	}
}
