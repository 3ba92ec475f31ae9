package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sentientsergio/synthgen/internal/config"
	"github.com/sentientsergio/synthgen/internal/discovery"
)

var discoverOutput string

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover a schema from a live PostgreSQL database",
	Long:  `Connect to the configured source database and extract tables, columns, primary keys, foreign keys, and check constraints into a schema definition file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		d := discovery.NewPostgres(&cfg.Source)
		defer d.Close()

		ctx := context.Background()

		fmt.Printf("Connecting to %s:%d/%s...\n", cfg.Source.Host, cfg.Source.Port, cfg.Source.Database)
		if err := d.Connect(ctx); err != nil {
			return fmt.Errorf("connecting to source: %w", err)
		}

		fmt.Println("Discovering schema...")
		s, err := d.Discover(ctx)
		if err != nil {
			return fmt.Errorf("discovering schema: %w", err)
		}

		fmt.Println(s.Summary())

		outputPath := discoverOutput
		if outputPath == "" {
			outputPath = filepath.Join("output", "schema.yaml")
		}
		if err := s.WriteYAML(outputPath); err != nil {
			return fmt.Errorf("writing schema: %w", err)
		}
		fmt.Printf("\nSchema written to %s\n", outputPath)

		return nil
	},
}

func init() {
	discoverCmd.Flags().StringVarP(&discoverOutput, "output", "o", "", "output path for schema YAML (default: output/schema.yaml)")
	rootCmd.AddCommand(discoverCmd)
}
