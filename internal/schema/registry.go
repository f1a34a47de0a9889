// internal/schema/registry.go
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/solatis/mdcollate/internal/directive"
)

/*
 * Extension key registry.
 *
 * Schemas carry engine annotations under extension keys ("x-derived-from", ...).
 * Engine code names extensions by logical identity only and asks the Registry
 * for the literal spelling, so deployments can remap keys (e.g. to
 * "x-mdc-derived-from") through configuration.
 */

// Extension is the logical name of a schema annotation.
type Extension string

const (
	ExtFrontmatterPart Extension = "frontmatter-part"
	ExtExtractFrom     Extension = "extract-from"
	ExtJMESPathFilter  Extension = "jmespath-filter"
	ExtMergeArrays     Extension = "merge-arrays"
	ExtDerivedFrom     Extension = "derived-from"
	ExtDerivedUnique   Extension = "derived-unique"
	ExtDerivedFlatten  Extension = "derived-flatten"
	ExtTemplate        Extension = "template"
	ExtTemplateItems   Extension = "template-items"
)

// Extensions lists every logical extension.
func Extensions() []Extension {
	return []Extension{
		ExtFrontmatterPart, ExtExtractFrom, ExtJMESPathFilter, ExtMergeArrays,
		ExtDerivedFrom, ExtDerivedUnique, ExtDerivedFlatten, ExtTemplate, ExtTemplateItems,
	}
}

// directiveKinds maps extensions that schedule a pipeline stage to their kind.
// derived-flatten is an option of derived-from, not a stage.
var directiveKinds = map[Extension]directive.Kind{
	ExtFrontmatterPart: directive.FrontmatterPart,
	ExtExtractFrom:     directive.ExtractFrom,
	ExtJMESPathFilter:  directive.JMESPathFilter,
	ExtMergeArrays:     directive.MergeArrays,
	ExtDerivedFrom:     directive.DerivedFrom,
	ExtDerivedUnique:   directive.DerivedUnique,
	ExtTemplate:        directive.Template,
	ExtTemplateItems:   directive.TemplateItems,
}

// flagExtensions only schedule their stage when set to true.
var flagExtensions = map[Extension]bool{
	ExtFrontmatterPart: true,
	ExtMergeArrays:     true,
	ExtDerivedUnique:   true,
}

// Registry resolves extensions to literal schema keys. The zero value is not
// usable; start from DefaultRegistry. Registry values are immutable.
type Registry struct {
	keys map[Extension]string
}

// DefaultRegistry spells every extension as "x-<name>".
func DefaultRegistry() Registry {
	keys := make(map[Extension]string)
	for _, ext := range Extensions() {
		keys[ext] = "x-" + string(ext)
	}
	return Registry{keys: keys}
}

// NewRegistry applies overrides (logical name -> key) on top of the defaults.
func NewRegistry(overrides map[string]string) (Registry, error) {
	r := DefaultRegistry()

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ext := Extension(name)
		if _, ok := r.keys[ext]; !ok {
			return Registry{}, fmt.Errorf("unknown schema extension %q", name)
		}
		key := strings.TrimSpace(overrides[name])
		if key == "" {
			return Registry{}, fmt.Errorf("empty key for schema extension %q", name)
		}
		r = r.WithKey(ext, key)
	}

	seen := make(map[string]Extension)
	for _, ext := range Extensions() {
		k := r.keys[ext]
		if other, dup := seen[k]; dup {
			return Registry{}, fmt.Errorf("schema key %q used by both %s and %s", k, other, ext)
		}
		seen[k] = ext
	}
	return r, nil
}

// WithKey returns a copy of r with ext spelled as key.
func (r Registry) WithKey(ext Extension, key string) Registry {
	keys := make(map[Extension]string, len(r.keys))
	for k, v := range r.keys {
		keys[k] = v
	}
	keys[ext] = key
	return Registry{keys: keys}
}

// Key returns the literal schema key for ext.
func (r Registry) Key(ext Extension) string {
	return r.keys[ext]
}

// Lookup returns node's value for ext.
func (r Registry) Lookup(node map[string]any, ext Extension) (any, bool) {
	v, ok := node[r.keys[ext]]
	return v, ok
}

// StringValue returns the string value of ext in node, or "".
func (r Registry) StringValue(node map[string]any, ext Extension) string {
	v, _ := r.Lookup(node, ext)
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// BoolValue reports whether ext is set to true in node.
func (r Registry) BoolValue(node map[string]any, ext Extension) bool {
	v, _ := r.Lookup(node, ext)
	b, _ := v.(bool)
	return b
}

// Directives returns the directive kinds whose keys appear in node. Flag
// extensions count only when true.
func (r Registry) Directives(node map[string]any) []directive.Kind {
	var out []directive.Kind
	for _, ext := range Extensions() {
		kind, ok := directiveKinds[ext]
		if !ok {
			continue
		}
		if flagExtensions[ext] {
			if r.BoolValue(node, ext) {
				out = append(out, kind)
			}
			continue
		}
		if _, present := node[r.keys[ext]]; present {
			out = append(out, kind)
		}
	}
	return out
}
