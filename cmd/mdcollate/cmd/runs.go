package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/mdcollate/internal/types"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect persisted aggregation runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a stored run result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	runsListCmd.Flags().Int("limit", 20, "maximum runs to list")
}

func runRunsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tMODE\tDOCUMENTS\tOUTPUTS\tWARNINGS\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.RunID, r.Mode, r.Documents, r.Outputs, r.Warnings, r.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := types.ParseRunID(args[0])
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", args[0], err)
	}

	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	res, err := run.Decode()
	if err != nil {
		return err
	}
	return writeOutput(cmd, res)
}
