// internal/expr/pathexpr.go
package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

/*
 * Restricted path expressions over untyped document trees.
 *
 * Grammar (not JSONPath): an optional leading "$" root marker, dotted property
 * names, "[]" to iterate one array level, "[N]" for an index and "[*]" for all
 * elements. Examples: "title", "$.tags", "items[].name", "$.matrix[0][*]".
 *
 * Parse validates syntax exactly once (characters, dots, brackets, bracket
 * contents) and then tokenizes assuming syntactic validity. Tokenization splits
 * before every "[" and "." so "a.b[0].c" becomes "a", ".b", "[0]", ".c".
 *
 * PathExpression is immutable after Parse; it is safe to share across goroutines
 * and across evaluations of many documents.
 */

// StepKind identifies one navigation step.
type StepKind int

const (
	StepRoot StepKind = iota
	StepProperty
	StepArrayIterator
	StepIndex
)

// String returns the step kind name used in diagnostics.
func (k StepKind) String() string {
	switch k {
	case StepRoot:
		return "root"
	case StepProperty:
		return "property"
	case StepArrayIterator:
		return "array_iterator"
	case StepIndex:
		return "index"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// Step is one component of a parsed expression.
type Step struct {
	Kind     StepKind
	Name     string // property name (StepProperty only)
	Index    int    // element index (StepIndex, !Wildcard)
	Wildcard bool   // "[*]" (StepIndex only)
}

// String renders the step back to expression syntax.
func (s Step) String() string {
	switch s.Kind {
	case StepRoot:
		return "$"
	case StepProperty:
		return s.Name
	case StepArrayIterator:
		return "[]"
	case StepIndex:
		if s.Wildcard {
			return "[*]"
		}
		return "[" + strconv.Itoa(s.Index) + "]"
	default:
		return "?"
	}
}

// PathExpression is a validated, tokenized path expression.
type PathExpression struct {
	expression string
	steps      []Step
}

var (
	allowedChars   = regexp.MustCompile(`^[A-Za-z0-9_.\[\]*$]+$`)
	propertyName   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	bracketContent = regexp.MustCompile(`\[([^\]]*)\]`)
	nonNegativeInt = regexp.MustCompile(`^[0-9]+$`)
)

// Parse validates and tokenizes an expression.
// Returns *ParseError (unwrapping to types.ErrInvalidExpression) on failure.
func Parse(expression string) (PathExpression, error) {
	trimmed := strings.TrimSpace(expression)
	if err := validateSyntax(trimmed); err != nil {
		return PathExpression{}, err
	}

	steps, err := tokenize(trimmed)
	if err != nil {
		return PathExpression{}, err
	}

	return PathExpression{expression: trimmed, steps: steps}, nil
}

// MustParse is Parse for static expressions; it panics on error.
func MustParse(expression string) PathExpression {
	p, err := Parse(expression)
	if err != nil {
		panic(err)
	}
	return p
}

// validateSyntax runs every syntax check before tokenizing.
// Order matters: character check first so bracket checks see only legal runes.
func validateSyntax(expression string) error {
	if expression == "" {
		return newParseError(EmptyExpression, expression, "expression is empty")
	}
	if !allowedChars.MatchString(expression) {
		return newParseError(InvalidCharacters, expression,
			"only letters, digits, '_', '.', '[', ']', '*' and '$' are allowed")
	}
	if strings.Contains(expression, "..") {
		return newParseError(ConsecutiveDots, expression, "consecutive dots")
	}

	depth := 0
	for _, r := range expression {
		switch r {
		case '[':
			depth++
			if depth > 1 {
				return newParseError(UnbalancedBrackets, expression, "nested brackets")
			}
		case ']':
			depth--
			if depth < 0 {
				return newParseError(UnbalancedBrackets, expression, "unexpected ']'")
			}
		}
	}
	if depth != 0 {
		return newParseError(UnbalancedBrackets, expression, "unclosed '['")
	}

	for _, m := range bracketContent.FindAllStringSubmatch(expression, -1) {
		inner := m[1]
		if inner == "" || inner == "*" || nonNegativeInt.MatchString(inner) {
			continue
		}
		return newParseError(InvalidArrayNotation, expression,
			fmt.Sprintf("bracket content %q must be empty, '*' or a non-negative integer", inner))
	}

	return nil
}

// tokenize converts a syntactically valid expression into steps.
func tokenize(expression string) ([]Step, error) {
	tokens := splitTokens(expression)
	steps := make([]Step, 0, len(tokens))

	for i, tok := range tokens {
		switch {
		case i == 0 && tok == "$":
			steps = append(steps, Step{Kind: StepRoot})

		case strings.HasPrefix(tok, "["):
			step, err := parseBracket(expression, tok)
			if err != nil {
				return nil, err
			}
			steps = append(steps, step)

		case i == 0 && strings.HasPrefix(tok, "."):
			return nil, newParseError(EmptyParts, expression, "expression starts with '.'")

		default:
			name := strings.TrimPrefix(tok, ".")
			if name == "" {
				return nil, newParseError(EmptyParts, expression, "empty property segment")
			}
			if !propertyName.MatchString(name) {
				return nil, newParseError(InvalidPropertyName, expression,
					fmt.Sprintf("invalid property name %q", name))
			}
			steps = append(steps, Step{Kind: StepProperty, Name: name})
		}
	}

	if len(steps) == 0 {
		return nil, newParseError(EmptyParts, expression, "expression has no steps")
	}
	return steps, nil
}

// splitTokens splits before every '[' and '.', keeping the delimiter on the
// following token.
func splitTokens(expression string) []string {
	var tokens []string
	start := 0
	for i := 1; i < len(expression); i++ {
		if expression[i] == '[' || expression[i] == '.' {
			tokens = append(tokens, expression[start:i])
			start = i
		}
	}
	return append(tokens, expression[start:])
}

func parseBracket(expression, tok string) (Step, error) {
	if !strings.HasSuffix(tok, "]") {
		return Step{}, newParseError(InvalidArrayNotation, expression,
			fmt.Sprintf("unexpected characters after bracket in %q", tok))
	}
	inner := tok[1 : len(tok)-1]
	switch inner {
	case "":
		return Step{Kind: StepArrayIterator}, nil
	case "*":
		return Step{Kind: StepIndex, Wildcard: true}, nil
	}
	n, err := strconv.Atoi(inner)
	if err != nil || n < 0 {
		return Step{}, newParseError(InvalidArrayNotation, expression,
			fmt.Sprintf("invalid index %q", inner))
	}
	return Step{Kind: StepIndex, Index: n}, nil
}

// Expression returns the trimmed source expression.
func (p PathExpression) Expression() string {
	return p.expression
}

// String implements fmt.Stringer.
func (p PathExpression) String() string {
	return p.expression
}

// Steps returns a copy of the parsed steps.
func (p PathExpression) Steps() []Step {
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// IsZero reports whether p was never parsed.
func (p PathExpression) IsZero() bool {
	return len(p.steps) == 0
}

// HasRoot reports whether the expression starts with "$".
func (p PathExpression) HasRoot() bool {
	return len(p.steps) > 0 && p.steps[0].Kind == StepRoot
}

// HasIterator reports whether the expression contains "[]".
func (p PathExpression) HasIterator() bool {
	for _, s := range p.steps {
		if s.Kind == StepArrayIterator {
			return true
		}
	}
	return false
}

// Equal compares two expressions step by step.
func (p PathExpression) Equal(other PathExpression) bool {
	if p.expression != other.expression || len(p.steps) != len(other.steps) {
		return false
	}
	for i := range p.steps {
		if p.steps[i] != other.steps[i] {
			return false
		}
	}
	return true
}

// LeadingSegment returns the property path before the first "[]", without the
// root marker. "$.data.items[].name" yields "data.items"; expressions without an
// iterator yield "".
func (p PathExpression) LeadingSegment() string {
	var names []string
	for _, s := range p.steps {
		switch s.Kind {
		case StepRoot:
			continue
		case StepArrayIterator:
			return strings.Join(names, ".")
		case StepProperty:
			names = append(names, s.Name)
		default:
			return ""
		}
	}
	return ""
}

// Remainder returns the expression text following the first "[]" (including the
// iterator itself), e.g. "[].name" for "$.items[].name".
func (p PathExpression) Remainder() string {
	idx := strings.Index(p.expression, "[]")
	if idx < 0 {
		return ""
	}
	return p.expression[idx:]
}
