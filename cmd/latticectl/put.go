package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <record> <key> <type> <value>",
	Short: "Add a (key, value) pair to a record",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		record, key := args[0], args[1]
		recordID, err := parseRecordID(record)
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

		if err := eng.Put(key, value, recordID); err != nil {
			return fmt.Errorf("put: %w", err)
		}
		fmt.Printf("added %s=%v to record %d\n", key, value, recordID)
		return nil
	},
}
