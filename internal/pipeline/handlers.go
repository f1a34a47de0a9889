// internal/pipeline/handlers.go
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmespath/go-jmespath"

	"github.com/solatis/mdcollate/internal/aggregate"
	"github.com/solatis/mdcollate/internal/directive"
	"github.com/solatis/mdcollate/internal/expr"
	"github.com/solatis/mdcollate/internal/schema"
	"github.com/solatis/mdcollate/internal/types"
)

/*
 * Built-in directive handlers.
 *
 * Array directives work on st.items and write the list back to the array
 * target after each step, so derived-from always sees the latest items inside
 * the output object:
 *
 *   x-frontmatter-part  items = one entry per document
 *   x-extract-from      item = value(s) at a path inside the item
 *   x-jmespath-filter   items = JMESPath result over the item list
 *   x-merge-arrays      array items are spliced one level
 *
 * Output directives:
 *
 *   x-derived-from      aggregate rules over [output], merge by dot path
 *   x-derived-unique    first-wins dedup on unique-flagged derived fields
 *   x-template(-items)  record template paths, no rendering
 */

// Handler executes one directive against the run state.
type Handler func(ctx context.Context, rn *Runner, st *state) error

func defaultHandlers() map[directive.Kind]Handler {
	return map[directive.Kind]Handler{
		directive.FrontmatterPart: handleFrontmatterPart,
		directive.ExtractFrom:     handleExtractFrom,
		directive.JMESPathFilter:  handleJMESPathFilter,
		directive.MergeArrays:     handleMergeArrays,
		directive.DerivedFrom:     handleDerivedFrom,
		directive.DerivedUnique:   handleDerivedUnique,
		directive.Template:        handleTemplate,
		directive.TemplateItems:   handleTemplateItems,
	}
}

// state is one output under construction.
type state struct {
	structure *schema.Structure
	rules     []aggregate.DerivationRule
	options   aggregate.Options
	docs      []types.Document

	items    []any
	data     map[string]any
	warnings []string

	templatePath     string
	templatesByType  map[string]string
	itemTemplatePath string
	aggregation      *aggregate.Metadata
}

func newState(s *schema.Structure, rules []aggregate.DerivationRule, opts aggregate.Options,
	docs []types.Document, data map[string]any) *state {
	return &state{structure: s, rules: rules, options: opts, docs: docs, data: data}
}

func (st *state) warn(format string, args ...any) {
	st.warnings = append(st.warnings, fmt.Sprintf(format, args...))
}

func (st *state) output() Output {
	return Output{
		Data:             st.data,
		TemplatePath:     st.templatePath,
		TemplatesByType:  st.templatesByType,
		ItemTemplatePath: st.itemTemplatePath,
		Aggregation:      st.aggregation,
	}
}

// target returns the array target or records a warning when there is none.
func (st *state) target(kind directive.Kind) (*schema.ArrayTarget, bool) {
	t := st.structure.ArrayTarget
	if t == nil {
		st.warn("%s requires an array target; skipped", kind)
		return nil, false
	}
	return t, true
}

// commit writes items to the array target path. Iterator markers in nested
// target paths are dropped.
func (st *state) commit() {
	path := strings.ReplaceAll(st.structure.ArrayTarget.PropertyPath, "[]", "")
	items := make([]any, len(st.items))
	copy(items, st.items)
	aggregate.SetPath(st.data, path, items)
}

func handleFrontmatterPart(_ context.Context, _ *Runner, st *state) error {
	if _, ok := st.target(directive.FrontmatterPart); !ok {
		return nil
	}
	st.items = make([]any, 0, len(st.docs))
	for _, d := range st.docs {
		st.items = append(st.items, d.Data)
	}
	st.commit()
	return nil
}

func handleExtractFrom(_ context.Context, _ *Runner, st *state) error {
	t, ok := st.target(directive.ExtractFrom)
	if !ok || t.ExtractFrom == "" {
		return nil
	}
	path, err := expr.Parse(t.ExtractFrom)
	if err != nil {
		return fmt.Errorf("extract-from on %s: %w", t.PropertyPath, err)
	}

	out := make([]any, 0, len(st.items))
	for i, item := range st.items {
		matches := expr.EvaluatePath(item, path)
		switch len(matches) {
		case 0:
			st.warn("extract-from %q: item %d has no value; dropped", t.ExtractFrom, i)
		case 1:
			out = append(out, matches[0])
		default:
			out = append(out, matches)
		}
	}
	st.items = out
	st.commit()
	return nil
}

func handleJMESPathFilter(_ context.Context, _ *Runner, st *state) error {
	t, ok := st.target(directive.JMESPathFilter)
	if !ok || t.JMESPathFilter == "" {
		return nil
	}
	jp, err := jmespath.Compile(t.JMESPathFilter)
	if err != nil {
		return fmt.Errorf("%w: jmespath filter %q: %v", types.ErrInvalidExpression, t.JMESPathFilter, err)
	}

	// JMESPath comparisons expect JSON-decoded numbers.
	input, err := jsonRoundTrip(st.items)
	if err != nil {
		st.warn("jmespath filter: items are not JSON-serializable: %v", err)
		return nil
	}

	result, err := jp.Search(input)
	if err != nil {
		st.warn("jmespath filter %q: %v", t.JMESPathFilter, err)
		return nil
	}
	filtered, ok := result.([]any)
	if !ok {
		st.warn("jmespath filter %q returned %T, want array; items unchanged", t.JMESPathFilter, result)
		return nil
	}
	st.items = filtered
	st.commit()
	return nil
}

func handleMergeArrays(_ context.Context, _ *Runner, st *state) error {
	t, ok := st.target(directive.MergeArrays)
	if !ok || !t.MergeArrays {
		return nil
	}
	merged := make([]any, 0, len(st.items))
	for _, item := range st.items {
		if arr, isArr := expr.AsArray(item); isArr {
			merged = append(merged, arr...)
			continue
		}
		merged = append(merged, item)
	}
	st.items = merged
	st.commit()
	return nil
}

func handleDerivedFrom(_ context.Context, rn *Runner, st *state) error {
	if len(st.rules) == 0 {
		return nil
	}
	ctx := aggregate.NewContext(st.rules, st.options)
	res, err := rn.service.Aggregate([]any{st.data}, ctx)
	if err != nil {
		return err
	}
	st.data = res.ApplyTo(st.data)
	st.warnings = append(st.warnings, res.Metadata.Warnings()...)
	st.aggregation = &res.Metadata
	return nil
}

func handleDerivedUnique(_ context.Context, _ *Runner, st *state) error {
	for _, r := range st.rules {
		if !r.Options().Unique {
			continue
		}
		v, ok := expr.First(st.data, dotPath(r.Target()))
		if !ok {
			continue
		}
		if arr, isArr := expr.AsArray(v); isArr {
			aggregate.SetPath(st.data, r.Target(), aggregate.Deduplicate(arr))
		}
	}
	return nil
}

func handleTemplate(_ context.Context, _ *Runner, st *state) error {
	st.templatePath = st.structure.TemplatePath
	st.templatesByType = st.structure.TemplatesByType
	return nil
}

func handleTemplateItems(_ context.Context, _ *Runner, st *state) error {
	if t := st.structure.ArrayTarget; t != nil {
		st.itemTemplatePath = t.ItemTemplatePath
	}
	return nil
}

// dotPath parses a rule target; targets are validated dotted identifiers.
func dotPath(target string) expr.PathExpression {
	return expr.MustParse(target)
}

func jsonRoundTrip(items []any) (any, error) {
	b, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
