package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "conduit-demo",
	Short: "Demo server for the conduit endpoint framework",
	Long: `conduit-demo runs a small HTTP server whose endpoints are built with the
conduit declarative pipeline: schema validation, service resolution,
sessions, audit records, and event publication all wired through endpoint
definitions rather than hand-written handlers.

Endpoints:
  GET  /health        liveness probe
  POST /users         create a user (audited, publishes user.created)
  GET  /users/:id     fetch a user by id
  GET  /metrics       Prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
