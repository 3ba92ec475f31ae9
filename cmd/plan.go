package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentientsergio/synthgen/internal/planner"
	"github.com/sentientsergio/synthgen/internal/refdata"
	"github.com/sentientsergio/synthgen/internal/schema"
)

var (
	planSchema  string
	planRefdata string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the dependency-ordered generation plan",
	Long:  `Compute and print the order tables would be generated in, without generating anything. Fails if the schema contains a foreign key cycle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := schema.LoadYAML(planSchema)
		if err != nil {
			return err
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("schema validation: %w", err)
		}

		if planRefdata != "" {
			data, err := refdata.LoadDir(planRefdata)
			if err != nil {
				return fmt.Errorf("loading reference data: %w", err)
			}
			if _, err := refdata.Merge(s, data); err != nil {
				return fmt.Errorf("merging reference data: %w", err)
			}
		}

		order, err := planner.Plan(s)
		if err != nil {
			return err
		}

		fmt.Printf("Generation plan (%d tables):\n", len(order))
		for i, name := range order {
			marker := ""
			if t := s.Table(name); t != nil && t.IsReference {
				marker = " (reference)"
			}
			fmt.Printf("  %2d. %s%s\n", i+1, name, marker)
		}
		return nil
	},
}

func init() {
	planCmd.Flags().StringVarP(&planSchema, "schema", "s", "schema.yaml", "schema definition file")
	planCmd.Flags().StringVarP(&planRefdata, "refdata", "r", "", "reference data directory")
	_ = planCmd.MarkFlagRequired("schema")
	rootCmd.AddCommand(planCmd)
}
