// internal/pipeline/runner.go
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/solatis/mdcollate/internal/aggregate"
	"github.com/solatis/mdcollate/internal/directive"
	"github.com/solatis/mdcollate/internal/schema"
	"github.com/solatis/mdcollate/internal/types"
)

/*
 * Staged pipeline execution.
 *
 * Run flow:
 *   1. Enforce the document budget (the engine has no other latency bound)
 *   2. Analyze the schema: mode, array target, derivation rules, directives
 *   3. Order the present directives into stages (cycles abort)
 *   4. Check every scheduled directive has a handler (ErrNoHandler otherwise)
 *   5. ArrayBased: one state over all documents, one output
 *      Individual: one state per document, one output each
 *
 * Handlers run stage by stage in ProcessingOrder. Structural errors abort the
 * run; per-item problems become warnings on the Result.
 *
 * Cancellation is checked between documents and between stages.
 */

// Output is one produced data object.
type Output struct {
	Source           string              `json:"source,omitempty"`
	Data             map[string]any      `json:"data"`
	TemplatePath     string              `json:"templatePath,omitempty"`
	TemplatesByType  map[string]string   `json:"templatesByType,omitempty"`
	ItemTemplatePath string              `json:"itemTemplatePath,omitempty"`
	Aggregation      *aggregate.Metadata `json:"aggregation,omitempty"`
}

// Result is the outcome of one Run.
type Result struct {
	RunID     types.RunID                `json:"runId"`
	Mode      types.ProcessingMode       `json:"mode"`
	Order     *directive.ProcessingOrder `json:"order"`
	Outputs   []Output                   `json:"outputs"`
	Warnings  []string                   `json:"warnings,omitempty"`
	Documents int                        `json:"documents"`
}

// Runner executes schemas against document sets. Safe for concurrent use once
// constructed.
type Runner struct {
	analyzer     *schema.Analyzer
	orders       *directive.OrderManager
	service      *aggregate.Service
	options      aggregate.Options
	maxDocuments int
	logger       *slog.Logger
	newID        func() types.RunID
	handlers     map[directive.Kind]Handler
}

// Option configures a Runner.
type Option func(*Runner)

// WithRegistry sets the extension key registry used for schema analysis.
func WithRegistry(r schema.Registry) Option {
	return func(rn *Runner) { rn.analyzer = schema.NewAnalyzer(r) }
}

// WithOrderManager replaces the directive dependency table.
func WithOrderManager(m *directive.OrderManager) Option {
	return func(rn *Runner) { rn.orders = m }
}

// WithService sets the aggregation service.
func WithService(s *aggregate.Service) Option {
	return func(rn *Runner) { rn.service = s }
}

// WithAggregationOptions sets null handling for derived fields.
func WithAggregationOptions(o aggregate.Options) Option {
	return func(rn *Runner) { rn.options = o }
}

// WithMaxDocuments bounds the input size; zero or negative disables the check.
func WithMaxDocuments(n int) Option {
	return func(rn *Runner) { rn.maxDocuments = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(rn *Runner) { rn.logger = l }
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(fn func() types.RunID) Option {
	return func(rn *Runner) { rn.newID = fn }
}

// WithHandler registers h for kind. A nil h removes the handler.
func WithHandler(kind directive.Kind, h Handler) Option {
	return func(rn *Runner) {
		if h == nil {
			delete(rn.handlers, kind)
			return
		}
		rn.handlers[kind] = h
	}
}

// NewRunner creates a Runner with the default registry, table and handlers.
func NewRunner(opts ...Option) *Runner {
	rn := &Runner{
		analyzer:     schema.NewAnalyzer(schema.DefaultRegistry()),
		orders:       directive.DefaultOrderManager(),
		options:      aggregate.DefaultOptions(),
		maxDocuments: types.DefaultMaxDocuments,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:        types.NewRunID,
		handlers:     defaultHandlers(),
	}
	for _, opt := range opts {
		opt(rn)
	}
	if rn.service == nil {
		rn.service = aggregate.NewService(aggregate.WithLogger(rn.logger))
	}
	return rn
}

// Run processes docs against schemaTree.
func (rn *Runner) Run(ctx context.Context, schemaTree map[string]any, docs []types.Document) (*Result, error) {
	if rn.maxDocuments > 0 && len(docs) > rn.maxDocuments {
		return nil, fmt.Errorf("%w: %d documents exceeds limit of %d",
			types.ErrTooManyDocuments, len(docs), rn.maxDocuments)
	}

	structure, err := rn.analyzer.Analyze(schemaTree)
	if err != nil {
		return nil, fmt.Errorf("analyze schema: %w", err)
	}

	order, err := rn.orders.DetermineProcessingOrder(structure.Directives)
	if err != nil {
		return nil, fmt.Errorf("order directives: %w", err)
	}

	for _, k := range order.OrderedDirectives {
		if _, ok := rn.handlers[k]; !ok {
			return nil, fmt.Errorf("%w: %s", types.ErrNoHandler, k)
		}
	}

	rules, err := structure.DerivationRules()
	if err != nil {
		return nil, fmt.Errorf("derivation rules: %w", err)
	}

	res := &Result{
		RunID:     rn.newID(),
		Mode:      structure.Mode(),
		Order:     order,
		Documents: len(docs),
		Warnings:  append([]string(nil), structure.Warnings...),
	}

	rn.logger.Debug("pipeline start",
		"run_id", res.RunID, "mode", res.Mode, "documents", len(docs), "stages", len(order.Stages))

	if structure.Mode() == types.ModeArrayBased {
		st := newState(structure, rules, rn.options, docs, map[string]any{})
		if err := rn.execute(ctx, order, st); err != nil {
			return nil, err
		}
		res.Outputs = []Output{st.output()}
		res.Warnings = append(res.Warnings, st.warnings...)
		return res, nil
	}

	res.Outputs = make([]Output, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st := newState(structure, rules, rn.options, []types.Document{doc}, aggregate.CloneObject(doc.Data))
		if err := rn.execute(ctx, order, st); err != nil {
			return nil, fmt.Errorf("%s: %w", doc.Path, err)
		}
		out := st.output()
		out.Source = doc.Path
		res.Outputs = append(res.Outputs, out)
		for _, w := range st.warnings {
			res.Warnings = append(res.Warnings, doc.Path+": "+w)
		}
	}
	return res, nil
}

func (rn *Runner) execute(ctx context.Context, order *directive.ProcessingOrder, st *state) error {
	for _, stage := range order.Stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, k := range stage.Directives {
			rn.logger.Debug("running directive", "stage", stage.Stage, "directive", string(k))
			if err := rn.handlers[k](ctx, rn, st); err != nil {
				return fmt.Errorf("stage %d %s: %w", stage.Stage, k, err)
			}
		}
	}
	return nil
}
