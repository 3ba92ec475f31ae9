package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentientsergio/synthgen/internal/refdata"
	"github.com/sentientsergio/synthgen/internal/schema"
)

var (
	validateSchema  string
	validateRefdata string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a schema definition and its reference data",
	Long:  `Check the schema for structural problems (missing foreign key targets, duplicate tables, mismatched key columns) and verify that every mandatory reference table has a non-empty data pool.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := schema.LoadYAML(validateSchema)
		if err != nil {
			return err
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("schema validation: %w", err)
		}
		fmt.Printf("Schema OK: %s\n", s.Summary())

		if validateRefdata != "" {
			data, err := refdata.LoadDir(validateRefdata)
			if err != nil {
				return fmt.Errorf("loading reference data: %w", err)
			}
			index, err := refdata.Merge(s, data)
			if err != nil {
				return fmt.Errorf("reference data validation: %w", err)
			}
			for _, name := range index.Tables() {
				pool, _ := index.Pool(name)
				weighted := ""
				if pool.Weighted {
					weighted = " (weighted)"
				}
				fmt.Printf("  %s: %d rows%s\n", name, pool.Len(), weighted)
			}
		}

		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateSchema, "schema", "s", "schema.yaml", "schema definition file")
	validateCmd.Flags().StringVarP(&validateRefdata, "refdata", "r", "", "reference data directory")
	_ = validateCmd.MarkFlagRequired("schema")
	rootCmd.AddCommand(validateCmd)
}
