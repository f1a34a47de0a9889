// internal/schema/analyzer.go
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/solatis/mdcollate/internal/aggregate"
	"github.com/solatis/mdcollate/internal/directive"
	"github.com/solatis/mdcollate/internal/types"
)

/*
 * Schema structure analysis.
 *
 * Walks root "properties" and, recursively, nested "properties" and
 * "items.properties" (keys sorted). Finds:
 *   - the array target: type "array" with frontmatter-part true (at most one)
 *   - derived fields: properties carrying derived-from
 *   - template paths on the root and the array target
 *   - every directive kind used anywhere
 *
 * Property paths are dotted from the root; a step through "items" adds "[]",
 * so a target under an array reads "groups[].entries".
 */

// DerivationCollect is the only derivation type schemas express.
const DerivationCollect = "collect"

// ArrayTarget is the property that receives one entry per document.
type ArrayTarget struct {
	PropertyPath     string
	ItemSchema       map[string]any
	ItemTemplatePath string
	ExtractFrom      string
	JMESPathFilter   string
	MergeArrays      bool
}

// DerivedField is one derived-from annotation.
type DerivedField struct {
	TargetProperty string
	SourceArray    string
	DerivationType string
	Unique         bool
	Flatten        bool
}

// Structure is the analysis result.
type Structure struct {
	ArrayTarget     *ArrayTarget
	DerivedFields   []DerivedField
	TemplatePath    string
	TemplatesByType map[string]string
	Directives      []directive.Kind
	Warnings        []string
}

// RequiresArrayBasedProcessing reports whether an array target was found.
func (s *Structure) RequiresArrayBasedProcessing() bool {
	return s.ArrayTarget != nil
}

// Mode returns the processing mode implied by the structure.
func (s *Structure) Mode() types.ProcessingMode {
	if s.RequiresArrayBasedProcessing() {
		return types.ModeArrayBased
	}
	return types.ModeIndividual
}

// DerivationRules builds aggregation rules from the derived fields, in walk order.
func (s *Structure) DerivationRules() ([]aggregate.DerivationRule, error) {
	rules := make([]aggregate.DerivationRule, 0, len(s.DerivedFields))
	for _, f := range s.DerivedFields {
		r, err := aggregate.NewNestedDerivationRule(f.TargetProperty, f.SourceArray, aggregate.RuleOptions{
			Unique:  f.Unique,
			Flatten: f.Flatten,
		})
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// HasDirective reports whether kind appears in the schema.
func (s *Structure) HasDirective(kind directive.Kind) bool {
	for _, k := range s.Directives {
		if k == kind {
			return true
		}
	}
	return false
}

// Analyzer inspects schemas using a Registry for extension keys.
type Analyzer struct {
	registry Registry
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(registry Registry) *Analyzer {
	return &Analyzer{registry: registry}
}

// Analyze walks schema. More than one array target is types.ErrInvalidFormat.
func (a *Analyzer) Analyze(schema map[string]any) (*Structure, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: schema is empty", types.ErrInvalidFormat)
	}

	w := &walker{registry: a.registry, kinds: make(map[directive.Kind]bool)}
	w.noteDirectives(schema)

	if err := w.walkProperties(schema, ""); err != nil {
		return nil, err
	}

	st := &Structure{
		ArrayTarget:   w.target,
		DerivedFields: w.derived,
		Warnings:      w.warnings,
	}

	switch tpl := a.registry.lookupAny(schema, ExtTemplate).(type) {
	case string:
		st.TemplatePath = tpl
	case map[string]any:
		st.TemplatesByType = make(map[string]string, len(tpl))
		for k, v := range tpl {
			if s, ok := v.(string); ok {
				st.TemplatesByType[k] = s
			}
		}
	}

	if st.ArrayTarget != nil && st.ArrayTarget.ItemTemplatePath == "" {
		st.ArrayTarget.ItemTemplatePath = a.registry.StringValue(schema, ExtTemplateItems)
	}

	for _, k := range directive.Kinds() {
		if w.kinds[k] {
			st.Directives = append(st.Directives, k)
		}
	}
	return st, nil
}

func (r Registry) lookupAny(node map[string]any, ext Extension) any {
	v, _ := r.Lookup(node, ext)
	return v
}

type walker struct {
	registry Registry
	target   *ArrayTarget
	derived  []DerivedField
	warnings []string
	kinds    map[directive.Kind]bool
}

func (w *walker) noteDirectives(node map[string]any) {
	for _, k := range w.registry.Directives(node) {
		w.kinds[k] = true
	}
}

func (w *walker) walkProperties(node map[string]any, prefix string) error {
	props, ok := node["properties"].(map[string]any)
	if !ok {
		return nil
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if err := w.visit(prop, path, strings.Contains(prefix, "[]")); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) visit(prop map[string]any, path string, insideItems bool) error {
	w.noteDirectives(prop)
	reg := w.registry

	if prop["type"] == "array" && reg.BoolValue(prop, ExtFrontmatterPart) {
		if w.target != nil {
			return fmt.Errorf("%w: at most one array target allowed, found %q and %q",
				types.ErrInvalidFormat, w.target.PropertyPath, path)
		}
		items, _ := prop["items"].(map[string]any)
		w.target = &ArrayTarget{
			PropertyPath:     path,
			ItemSchema:       items,
			ItemTemplatePath: reg.StringValue(prop, ExtTemplateItems),
			ExtractFrom:      reg.StringValue(prop, ExtExtractFrom),
			JMESPathFilter:   reg.StringValue(prop, ExtJMESPathFilter),
			MergeArrays:      reg.BoolValue(prop, ExtMergeArrays),
		}
	}

	if source := reg.StringValue(prop, ExtDerivedFrom); source != "" {
		if insideItems {
			w.warnings = append(w.warnings,
				fmt.Sprintf("derived field %q inside array items is not supported; ignored", path))
		} else {
			w.derived = append(w.derived, DerivedField{
				TargetProperty: path,
				SourceArray:    source,
				DerivationType: DerivationCollect,
				Unique:         reg.BoolValue(prop, ExtDerivedUnique),
				Flatten:        reg.BoolValue(prop, ExtDerivedFlatten),
			})
		}
	}

	if err := w.walkProperties(prop, path); err != nil {
		return err
	}
	if items, ok := prop["items"].(map[string]any); ok {
		w.noteDirectives(items)
		if err := w.walkProperties(items, path+"[]"); err != nil {
			return err
		}
	}
	return nil
}
