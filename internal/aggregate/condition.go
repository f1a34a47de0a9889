// internal/aggregate/condition.go
package aggregate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/mdcollate/internal/expr"
	"github.com/solatis/mdcollate/internal/types"
)

/*
 * count_where conditions.
 *
 * Grammar: "<path> <op> <literal>" or a bare "<path>" tested for truthiness.
 * The path is evaluated against each array element; "$" alone is the element.
 *
 * Operators:
 *   - == / !=: equality, numeric values compared as float64
 *   - < <= > >=: numeric only (numeric strings coerce), false otherwise
 *
 * Literals: 'single' or "double" quoted strings, true, false, null, numbers.
 * Any other bare word is taken as a string.
 *
 * A missing path resolves to null, so "owner == null" matches elements without
 * an owner.
 */

// CompareOp is a condition comparison operator.
type CompareOp string

const (
	OpTruthy CompareOp = ""
	OpEq     CompareOp = "=="
	OpNeq    CompareOp = "!="
	OpLt     CompareOp = "<"
	OpLte    CompareOp = "<="
	OpGt     CompareOp = ">"
	OpGte    CompareOp = ">="
)

// Two-character operators first so ">=" is not read as ">".
var operatorTokens = []CompareOp{OpEq, OpNeq, OpLte, OpGte, OpLt, OpGt}

// Condition is a parsed count_where predicate.
type Condition struct {
	raw     string
	path    expr.PathExpression
	op      CompareOp
	literal any
}

// ParseCondition parses a count_where condition.
func ParseCondition(s string) (Condition, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Condition{}, fmt.Errorf("%w: empty condition", types.ErrInvalidCondition)
	}

	lhs, op, rhs := splitOperator(raw)

	path, err := expr.Parse(lhs)
	if err != nil {
		return Condition{}, fmt.Errorf("%w: %q: %w", types.ErrInvalidCondition, raw, err)
	}

	c := Condition{raw: raw, path: path, op: op}
	if op == OpTruthy {
		return c, nil
	}

	if strings.TrimSpace(rhs) == "" {
		return Condition{}, fmt.Errorf("%w: %q: missing right-hand side", types.ErrInvalidCondition, raw)
	}
	c.literal, err = parseLiteral(rhs)
	if err != nil {
		return Condition{}, fmt.Errorf("%w: %q: %w", types.ErrInvalidCondition, raw, err)
	}
	return c, nil
}

// String returns the source condition.
func (c Condition) String() string {
	return c.raw
}

// Match evaluates the condition against one array element.
func (c Condition) Match(element any) bool {
	value, ok := expr.First(element, c.path)
	if !ok {
		value = nil
	}

	switch c.op {
	case OpTruthy:
		return truthy(value)
	case OpEq:
		return compareEqual(value, c.literal)
	case OpNeq:
		return !compareEqual(value, c.literal)
	case OpLt, OpLte, OpGt, OpGte:
		cmp, ok := compareNumeric(value, c.literal)
		if !ok {
			return false
		}
		switch c.op {
		case OpLt:
			return cmp < 0
		case OpLte:
			return cmp <= 0
		case OpGt:
			return cmp > 0
		default:
			return cmp >= 0
		}
	default:
		return false
	}
}

// splitOperator finds the first operator outside quotes.
func splitOperator(s string) (string, CompareOp, string) {
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		if ch == '\'' || ch == '"' {
			quote = ch
			continue
		}
		for _, op := range operatorTokens {
			if strings.HasPrefix(s[i:], string(op)) {
				return strings.TrimSpace(s[:i]), op, s[i+len(op):]
			}
		}
	}
	return s, OpTruthy, ""
}

func parseLiteral(s string) (any, error) {
	s = strings.TrimSpace(s)

	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') {
		if s[len(s)-1] != s[0] {
			return nil, fmt.Errorf("unterminated string literal %s", s)
		}
		return s[1 : len(s)-1], nil
	}

	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	if strings.ContainsAny(s, "'\"") {
		return nil, fmt.Errorf("malformed literal %s", s)
	}
	return s, nil
}

// compareEqual treats numbers of any decoded type as equal by value and
// Undefined as null.
func compareEqual(a, b any) bool {
	if IsUndefined(a) {
		a = nil
	}
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	if oka && okb {
		return na == nb
	}
	switch a.(type) {
	case nil, string, bool:
		return a == b
	default:
		// Objects and arrays never equal a scalar literal.
		return false
	}
}

// compareNumeric performs three-way numeric comparison.
// The second return is false when either side is not numeric.
func compareNumeric(a, b any) (int, bool) {
	na, oka := coerceNumeric(a)
	nb, okb := coerceNumeric(b)
	if !oka || !okb {
		return 0, false
	}
	switch {
	case na < nb:
		return -1, true
	case na > nb:
		return 1, true
	default:
		return 0, true
	}
}
