// Command latticectl is a cobra CLI over pkg/engine: put, get, del,
// find, checkpoint and serve, grounded on the teacher pack sibling
// cuemby-warren's cmd/warren root-command layout (persistent flags and
// subcommands registered in init).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagBufferDir   string
	flagDatabaseDir string
	flagEnvironment string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "latticectl",
	Short: "latticectl drives a lattice engine instance from the command line",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBufferDir, "buffer-dir", "./data/buffer", "write buffer directory")
	rootCmd.PersistentFlags().StringVar(&flagDatabaseDir, "database-dir", "./data/database", "database block directory")
	rootCmd.PersistentFlags().StringVar(&flagEnvironment, "environment", "default", "named environment to operate against")

	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(delCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(serveCmd)
}
