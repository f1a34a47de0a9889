package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/mdcollate/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply run store migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("status", false, "show migration status without applying")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if cfg.Store.DBURL == "" {
		return fmt.Errorf("--db-url required")
	}

	database, err := db.Open(ctx, cfg.Store.DBURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if statusOnly, _ := cmd.Flags().GetBool("status"); !statusOnly {
		if err := db.MigrateUp(ctx, database); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MIGRATION\tAPPLIED\tAPPLIED AT")
	for _, s := range statuses {
		at := "-"
		if s.AppliedAt != nil {
			at = s.AppliedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\n", s.ID, s.Applied, at)
	}
	return tw.Flush()
}
