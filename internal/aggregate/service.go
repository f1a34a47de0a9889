// internal/aggregate/service.go
package aggregate

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/solatis/mdcollate/internal/expr"
	"github.com/solatis/mdcollate/internal/types"
)

/*
 * Aggregation across many documents.
 *
 * Two passes over the context's rules:
 *   1. collect rules, in context order: evaluate per item (with context
 *      resolution fallback), flatten, filter null/undefined, dedup, record stats
 *   2. derived operators (count, average, count_where), in context order
 *
 * A failing rule never aborts the run. It records a warning and contributes its
 * zero value ([] for collect, 0 for counts, nil for average).
 *
 * Service holds only its clock, logger and ID generator, all read-only after
 * construction; Aggregate is safe for concurrent use.
 */

// Clock supplies the aggregation timestamp.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service applies derivation rules to item sets.
type Service struct {
	clock  Clock
	logger *slog.Logger
	newID  func() types.RunID
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for Metadata.AggregatedAt.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger. Per-rule events log at debug, warnings at warn.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(fn func() types.RunID) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a Service with the system clock, UUIDv7 run IDs and a
// discarding logger unless overridden.
func NewService(opts ...Option) *Service {
	s := &Service{
		clock:  systemClock{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:  types.NewRunID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// runState accumulates per-run output.
type runState struct {
	data     map[string]any
	warnings []string
	stats    Statistics
}

func (st *runState) warn(format string, args ...any) {
	st.warnings = append(st.warnings, fmt.Sprintf(format, args...))
}

// Aggregate applies every rule in ctx to items.
// Returns types.ErrInvalidRule only for zero-value rules that bypassed the
// constructors; expression problems become warnings.
func (s *Service) Aggregate(items []any, ctx Context) (*AggregatedResult, error) {
	rules := ctx.rules
	for i, r := range rules {
		if r.IsZero() {
			return nil, fmt.Errorf("%w: rule %d was not constructed", types.ErrInvalidRule, i)
		}
	}

	st := &runState{
		data:  make(map[string]any, len(rules)),
		stats: make(Statistics),
	}

	for _, r := range rules {
		if r.IsDerived() {
			continue
		}
		s.collectRule(items, r, ctx.options, st)
	}

	for _, r := range rules {
		if !r.IsDerived() {
			continue
		}
		s.deriveRule(items, r, st)
	}

	applied := make([]string, len(rules))
	for i, r := range rules {
		applied[i] = r.String()
	}

	for _, w := range st.warnings {
		s.logger.Warn("aggregation warning", "warning", w)
	}

	return &AggregatedResult{
		Data: st.data,
		Metadata: Metadata{
			RunID:          s.newID(),
			ProcessedCount: len(items),
			AggregatedAt:   s.clock.Now(),
			AppliedRules:   applied,
			Detail:         newDetail(st.warnings, st.stats),
		},
	}, nil
}

func (s *Service) collectRule(items []any, r DerivationRule, opts Options, st *runState) {
	values := make([]any, 0, len(items))

	for i, item := range items {
		matched := expr.EvaluatePath(item, r.path)
		if len(matched) == 0 {
			if rebuilt := resolveContext(item, r.path); rebuilt != "" {
				p, err := expr.Parse(rebuilt)
				if err != nil {
					st.warn("rule %s: item %d: resolved expression %q: %v", r.target, i, rebuilt, err)
				} else {
					s.logger.Debug("resolved expression context",
						"target", r.target, "item", i, "from", r.source, "to", rebuilt)
					matched = expr.EvaluatePath(item, p)
				}
			}
		}
		values = append(values, matched...)
	}

	if len(values) == 0 && len(items) > 0 {
		st.warn("rule %s: expression %q matched no values", r.target, r.source)
	}

	if r.options.Flatten {
		values = FlattenDeep(values)
	}

	nulls := 0
	kept := values[:0:0]
	for _, v := range values {
		switch {
		case v == nil:
			nulls++
			if opts.SkipNull {
				continue
			}
		case IsUndefined(v):
			nulls++
			if opts.SkipUndefined {
				continue
			}
		}
		kept = append(kept, v)
	}

	if r.options.Unique {
		kept = Deduplicate(kept)
	}

	var lengths []int
	for _, v := range kept {
		if arr, ok := expr.AsArray(v); ok {
			lengths = append(lengths, len(arr))
		}
	}

	if nulls > 0 || r.options.Unique || len(lengths) > 0 {
		fs := FieldStatistics{NullCount: nulls, ArrayLengths: lengths}
		if r.options.Unique {
			fs.UniqueValues = len(kept)
		}
		st.stats[r.target] = fs
	}

	s.logger.Debug("collected field", "target", r.target, "values", len(kept), "nulls", nulls)
	st.data[r.target] = kept
}

func (s *Service) deriveRule(items []any, r DerivationRule, st *runState) {
	var value any
	switch r.operator {
	case OpCount:
		value = countRule(items, r)
	case OpAverage:
		value = averageRule(items, r)
	case OpCountWhere:
		n, warning := countWhereRule(items, r)
		if warning != "" {
			st.warn("rule %s: %s", r.target, warning)
		}
		value = n
	}

	s.logger.Debug("derived field", "target", r.target, "operator", string(r.operator), "value", value)
	st.data[r.target] = value
}

func countRule(items []any, r DerivationRule) int {
	if r.countAll {
		return len(items)
	}
	if r.countsPath() {
		n := 0
		for _, item := range items {
			n += len(expr.EvaluatePath(item, r.path))
		}
		return n
	}
	if record, ok := wrappedRecord(items); ok {
		if v, found := expr.First(record, r.path); found {
			if arr, isArr := expr.AsArray(v); isArr {
				return len(arr)
			}
		}
	}
	return len(items)
}

func averageRule(items []any, r DerivationRule) any {
	var sum float64
	n := 0
	for _, item := range items {
		for _, v := range expr.EvaluatePath(item, r.path) {
			if f, ok := toFloat64(v); ok {
				sum += f
				n++
			}
		}
	}
	if n == 0 {
		return nil
	}
	return sum / float64(n)
}

func countWhereRule(items []any, r DerivationRule) (int, string) {
	record, ok := wrappedRecord(items)
	if !ok {
		return 0, fmt.Sprintf("count_where requires a single wrapped record, got %d items", len(items))
	}
	v, found := expr.First(record, r.path)
	if !found {
		return 0, fmt.Sprintf("count_where field %q not found", r.path.Expression())
	}
	arr, isArr := expr.AsArray(v)
	if !isArr {
		return 0, fmt.Sprintf("count_where field %q is not an array", r.path.Expression())
	}

	n := 0
	for _, elem := range arr {
		if r.condition.Match(elem) {
			n++
		}
	}
	return n, ""
}

// wrappedRecord returns the sole item when items is one object.
func wrappedRecord(items []any) (map[string]any, bool) {
	if len(items) != 1 {
		return nil, false
	}
	return expr.AsObject(items[0])
}
