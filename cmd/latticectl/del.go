package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var delCmd = &cobra.Command{
	Use:   "del <record> <key> <type> <value>",
	Short: "Remove a (key, value) pair from a record",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordID, err := parseRecordID(args[0])
		if err != nil {
			return err
		}
		value, err := parseTypedValue(args[2], args[3])
		if err != nil {
			return err
		}

		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		op := eng.Begin()
		if err := op.Remove(args[1], value, recordID); err != nil {
			op.Abort()
			return fmt.Errorf("del: %w", err)
		}
		if _, err := op.Commit(); err != nil {
			return fmt.Errorf("del: %w", err)
		}
		fmt.Printf("removed %s=%v from record %d\n", args[1], value, recordID)
		return nil
	},
}
