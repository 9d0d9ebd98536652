// Package handlers wires the CLI surface: ingestion runs, digest
// inspection, reader management and the HTTP server.
package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"curio/internal/config"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "curio",
		Short: "Curio builds personalized feed digests",
		Long: `Curio ingests RSS/Atom feeds, scores articles against each reader's
interests with embedding similarity and generative judgment, and
assembles a bounded digest per reader per cycle.

Typical flow:
  curio migrate up
  curio readers add "Ada"
  curio sources add https://example.com/feed.xml --subscribe <reader-id>
  curio interests add --reader <reader-id> --category "AI" --description "ML systems"
  curio ingest
  curio digest show latest --reader <reader-id>`,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.curio.yaml)")

	rootCmd.AddCommand(NewIngestCmd())
	rootCmd.AddCommand(NewDigestCmd())
	rootCmd.AddCommand(NewLearnCmd())
	rootCmd.AddCommand(NewReadersCmd())
	rootCmd.AddCommand(NewSourcesCmd())
	rootCmd.AddCommand(NewInterestsCmd())
	rootCmd.AddCommand(NewSettingsCmd())
	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewServeCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
}
