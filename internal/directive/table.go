// internal/directive/table.go
package directive

// Kind names one schema directive.
type Kind string

const (
	FrontmatterPart Kind = "x-frontmatter-part"
	ExtractFrom     Kind = "x-extract-from"
	JMESPathFilter  Kind = "x-jmespath-filter"
	MergeArrays     Kind = "x-merge-arrays"
	DerivedFrom     Kind = "x-derived-from"
	DerivedUnique   Kind = "x-derived-unique"
	Template        Kind = "x-template"
	TemplateItems   Kind = "x-template-items"
)

// Dependency is one row of the ordering table.
type Dependency struct {
	Kind        Kind
	DependsOn   []Kind
	Stage       int
	Description string
}

// defaultTable is never mutated; DefaultTable hands out copies.
var defaultTable = []Dependency{
	{
		Kind:        FrontmatterPart,
		Stage:       1,
		Description: "collect frontmatter from each document",
	},
	{
		Kind:        ExtractFrom,
		DependsOn:   []Kind{FrontmatterPart},
		Stage:       2,
		Description: "extract item fields from collected frontmatter",
	},
	{
		Kind:        JMESPathFilter,
		DependsOn:   []Kind{ExtractFrom},
		Stage:       3,
		Description: "filter collected items with JMESPath",
	},
	{
		Kind:        MergeArrays,
		DependsOn:   []Kind{JMESPathFilter},
		Stage:       4,
		Description: "merge nested arrays into the item list",
	},
	{
		Kind:        DerivedFrom,
		DependsOn:   []Kind{MergeArrays, FrontmatterPart},
		Stage:       5,
		Description: "derive aggregate fields from collected items",
	},
	{
		Kind:        DerivedUnique,
		DependsOn:   []Kind{DerivedFrom},
		Stage:       6,
		Description: "deduplicate derived fields",
	},
	{
		Kind:        TemplateItems,
		DependsOn:   []Kind{FrontmatterPart, DerivedUnique},
		Stage:       7,
		Description: "resolve templates for items and output",
	},
	{
		Kind:        Template,
		DependsOn:   []Kind{DerivedFrom, DerivedUnique},
		Stage:       7,
		Description: "resolve templates for items and output",
	},
}

// DefaultTable returns a copy of the built-in dependency table.
func DefaultTable() []Dependency {
	out := make([]Dependency, len(defaultTable))
	for i, d := range defaultTable {
		d.DependsOn = append([]Kind(nil), d.DependsOn...)
		out[i] = d
	}
	return out
}

// Kinds lists every built-in directive kind in table order.
func Kinds() []Kind {
	out := make([]Kind, len(defaultTable))
	for i, d := range defaultTable {
		out[i] = d.Kind
	}
	return out
}

// IsKnown reports whether k is a built-in directive kind.
func IsKnown(k Kind) bool {
	for _, d := range defaultTable {
		if d.Kind == k {
			return true
		}
	}
	return false
}
