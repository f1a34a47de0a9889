// Package types provides domain models shared across mdcollate components.
//
// Zero-dependency design: types.go and errors.go use only the standard library so
// the engine packages (expr, aggregate, directive, schema) can depend on them
// without pulling in storage or transport deps. ID utilities in ids.go import uuid
// but are isolated.
package types

// RunID identifies one aggregation run.
// String alias keeps JSON serialization a plain string; values are UUIDv7.
type RunID string

// Document is one input file after its frontmatter has been parsed.
// Data is a plain tree of map[string]any, []any, strings, numbers, booleans and nil.
type Document struct {
	Path string         `json:"path"`
	Data map[string]any `json:"data"`
	Body string         `json:"-"`
}

// ProcessingMode selects how documents map to outputs.
type ProcessingMode string

const (
	// ModeIndividual renders one output per document.
	ModeIndividual ProcessingMode = "individual"

	// ModeArrayBased collects every document into a single array-bearing output.
	ModeArrayBased ProcessingMode = "array_based"
)

// Resource limits enforced by the engine.
const (
	// DefaultMaxDocuments bounds a single pipeline run.
	// The engine itself has no cancellation; callers cap input size instead.
	DefaultMaxDocuments = 10000

	// MaxFlattenDepth guards recursive flattening against pathological nesting.
	// Input trees are acyclic by contract, so this only trips on absurd documents.
	MaxFlattenDepth = 256
)
