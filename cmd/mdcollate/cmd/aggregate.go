package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solatis/mdcollate/internal/aggregate"
	"github.com/solatis/mdcollate/internal/core/db"
	"github.com/solatis/mdcollate/internal/frontmatter"
	"github.com/solatis/mdcollate/internal/pipeline"
	"github.com/solatis/mdcollate/internal/types"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate [files or directories...]",
	Short: "Aggregate frontmatter from Markdown documents",
	Long: `Aggregate runs either a schema (--schema) through the directive pipeline, or
ad-hoc derivation rules (--rule target=source) directly over the documents' frontmatter.

Rule sources accept a path expression or count(...), average(...), count_where(field, cond).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAggregate,
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
	f := aggregateCmd.Flags()
	f.String("schema", "", "schema file (JSON, YAML or TOML)")
	f.StringArray("rule", nil, "derivation rule target=source (repeatable)")
	f.Bool("unique", false, "deduplicate collected values of --rule")
	f.Bool("flatten", false, "flatten nested arrays of --rule")
	f.StringP("output", "o", "", "write JSON to file instead of stdout")
	f.Bool("persist", false, "save the run to the store (schema mode, requires --db-url)")
	aggregateCmd.MarkFlagsMutuallyExclusive("schema", "rule")
}

func runAggregate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flags := cmd.Flags()
	schemaPath, _ := flags.GetString("schema")
	rules, _ := flags.GetStringArray("rule")
	if schemaPath == "" && len(rules) == 0 {
		return fmt.Errorf("one of --schema or --rule is required")
	}

	docs, warnings, err := frontmatter.NewLoader(logger).Load(args)
	if err != nil {
		return err
	}
	printWarnings(cmd.ErrOrStderr(), warnings)

	var out any
	if schemaPath != "" {
		out, err = aggregateSchema(ctx, cmd, schemaPath, docs)
	} else {
		out, err = aggregateRules(cmd, rules, docs)
	}
	if err != nil {
		return err
	}

	return writeOutput(cmd, out)
}

func aggregateSchema(ctx context.Context, cmd *cobra.Command, schemaPath string, docs []types.Document) (*pipeline.Result, error) {
	schemaTree, err := frontmatter.DecodeFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	runner, err := newRunner()
	if err != nil {
		return nil, err
	}

	res, err := runner.Run(ctx, schemaTree, docs)
	if err != nil {
		return nil, err
	}
	printWarnings(cmd.ErrOrStderr(), res.Warnings)

	if persist, _ := cmd.Flags().GetBool("persist"); persist {
		store, closeStore, err := openStore(ctx)
		if err != nil {
			return nil, err
		}
		defer closeStore()
		if err := store.SaveRun(ctx, res); err != nil {
			return nil, err
		}
		logger.Info("run saved", "run_id", res.RunID)
	}
	return res, nil
}

func aggregateRules(cmd *cobra.Command, specs []string, docs []types.Document) (*aggregate.AggregatedResult, error) {
	flags := cmd.Flags()
	unique, _ := flags.GetBool("unique")
	flatten, _ := flags.GetBool("flatten")
	opts := aggregate.RuleOptions{Unique: unique, Flatten: flatten}

	rules := make([]aggregate.DerivationRule, 0, len(specs))
	for _, spec := range specs {
		target, source, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q must be target=source", types.ErrInvalidRule, spec)
		}
		r, err := aggregate.NewNestedDerivationRule(strings.TrimSpace(target), strings.TrimSpace(source), opts)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}

	items := make([]any, len(docs))
	for i, d := range docs {
		items[i] = d.Data
	}

	svc := aggregate.NewService(aggregate.WithLogger(logger))
	res, err := svc.Aggregate(items, aggregate.NewContext(rules, cfg.AggregationOptions()))
	if err != nil {
		return nil, err
	}
	printWarnings(cmd.ErrOrStderr(), res.Metadata.Warnings())
	return res, nil
}

func newRunner() (*pipeline.Runner, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(
		pipeline.WithRegistry(reg),
		pipeline.WithAggregationOptions(cfg.AggregationOptions()),
		pipeline.WithMaxDocuments(cfg.Engine.MaxDocuments),
		pipeline.WithLogger(logger),
	), nil
}

// openStore opens and migrates the configured run store.
func openStore(ctx context.Context) (*db.RunStore, func(), error) {
	if cfg.Store.DBURL == "" {
		return nil, nil, fmt.Errorf("--db-url required")
	}
	database, err := db.Open(ctx, cfg.Store.DBURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	closeFn := func() { database.Close() }

	if err := db.MigrateUp(ctx, database); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	store, err := db.NewRunStore(database)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

func printWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintln(w, "warning:", msg)
	}
}

func writeOutput(cmd *cobra.Command, v any) error {
	w := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
