package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lattice-db/lattice/pkg/httpapi"
)

var flagAddr string

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", ":8080", "address to listen on")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API over a lattice engine instance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		log := zerolog.New(zerolog.ConsoleWriter{Out: cmd.OutOrStdout(), TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		server := httpapi.New(eng, log)
		fmt.Printf("listening on %s\n", flagAddr)
		return server.ListenAndServe(flagAddr)
	},
}
