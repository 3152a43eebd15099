package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <record> [key]",
	Short: "Read the values of one key, or the whole folded document when key is omitted",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordID, err := parseRecordID(args[0])
		if err != nil {
			return err
		}

		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		if len(args) == 1 {
			doc, err := eng.Document(recordID)
			if err != nil {
				return fmt.Errorf("get: %w", err)
			}
			if len(doc) == 0 {
				fmt.Println("(no fields)")
				return nil
			}
			for key, values := range doc {
				fmt.Printf("%s = %v\n", key, values)
			}
			return nil
		}

		values, err := eng.Get(args[1], recordID)
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		if len(values) == 0 {
			fmt.Println("(absent)")
			return nil
		}
		for _, v := range values {
			fmt.Printf("%v\n", v)
		}
		return nil
	},
}
