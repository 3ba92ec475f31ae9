// Package cmd implements the synthgen CLI.
package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "synthgen",
	Short: "Synthgen — relational synthetic data generator",
	Long: `Synthgen generates referentially consistent synthetic data for a
relational schema. It plans a dependency-ordered table sequence, drives
an external generation backend table by table, and validates every row
against the schema's keys and constraints before emitting it.`,
}

func Execute() {
	// A local .env can supply backend credentials during development.
	_ = godotenv.Load()

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.synthgen/synthgen.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}
