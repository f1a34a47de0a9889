package types

import "errors"

// Sentinel errors for mdcollate operations.
// Typed errors elsewhere (expr.ParseError, directive.CycleError) unwrap to these
// so callers can branch with errors.Is without importing the producing package.
var (
	// ErrInvalidExpression indicates a malformed path expression.
	ErrInvalidExpression = errors.New("invalid path expression")

	// ErrInvalidRule indicates a derivation rule could not be constructed.
	ErrInvalidRule = errors.New("invalid derivation rule")

	// ErrInvalidCondition indicates a count_where condition could not be parsed.
	ErrInvalidCondition = errors.New("invalid condition")

	// ErrInvalidFormat indicates a schema with an unsatisfiable structure,
	// e.g. more than one frontmatter array target.
	ErrInvalidFormat = errors.New("invalid schema format")

	// ErrCircularDependency indicates the requested directives form a cycle.
	ErrCircularDependency = errors.New("circular directive dependency")

	// ErrNoHandler indicates a directive was scheduled but nothing executes it.
	ErrNoHandler = errors.New("no handler registered for directive")

	// ErrNoFrontmatter indicates a document carries no frontmatter block.
	ErrNoFrontmatter = errors.New("no frontmatter block")

	// ErrUnsupportedFormat indicates a frontmatter payload in an unknown format.
	ErrUnsupportedFormat = errors.New("unsupported frontmatter format")

	// ErrTooManyDocuments indicates the input exceeds the configured document budget.
	ErrTooManyDocuments = errors.New("too many documents")

	// ErrRunNotFound indicates a stored aggregation run does not exist.
	ErrRunNotFound = errors.New("aggregation run not found")
)

// IsStructural reports whether err describes an unsatisfiable configuration
// (as opposed to an I/O or per-item problem). CLI callers treat these as fatal.
func IsStructural(err error) bool {
	return errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrCircularDependency) ||
		errors.Is(err, ErrNoHandler) ||
		errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrInvalidExpression)
}
