package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/mdcollate/internal/directive"
	"github.com/solatis/mdcollate/internal/frontmatter"
	"github.com/solatis/mdcollate/internal/schema"
)

var orderCmd = &cobra.Command{
	Use:   "order [directive kinds...]",
	Short: "Show the processing order for directives or a schema",
	Long: `Order prints the stages the pipeline would run. Pass directive kinds
(e.g. x-derived-from x-frontmatter-part) or --schema to read them from a schema.
With neither, the full default table is ordered.`,
	RunE: runOrder,
}

func init() {
	rootCmd.AddCommand(orderCmd)
	orderCmd.Flags().String("schema", "", "schema file to read directives from")
}

func runOrder(cmd *cobra.Command, args []string) error {
	schemaPath, _ := cmd.Flags().GetString("schema")

	var present []directive.Kind
	switch {
	case schemaPath != "":
		if len(args) > 0 {
			return fmt.Errorf("pass directive kinds or --schema, not both")
		}
		schemaTree, err := frontmatter.DecodeFile(schemaPath)
		if err != nil {
			return fmt.Errorf("failed to load schema: %w", err)
		}
		reg, err := cfg.Registry()
		if err != nil {
			return err
		}
		structure, err := schema.NewAnalyzer(reg).Analyze(schemaTree)
		if err != nil {
			return err
		}
		present = structure.Directives
	case len(args) > 0:
		for _, a := range args {
			k := directive.Kind(a)
			if !directive.IsKnown(k) {
				logger.Warn("ignoring unknown directive", "directive", a)
			}
			present = append(present, k)
		}
	default:
		present = directive.Kinds()
	}

	order, err := directive.DefaultOrderManager().DetermineProcessingOrder(present)
	if err != nil {
		return err
	}
	return writeOutput(cmd, order)
}
