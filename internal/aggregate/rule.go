// internal/aggregate/rule.go
package aggregate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/solatis/mdcollate/internal/expr"
	"github.com/solatis/mdcollate/internal/types"
)

/*
 * Derivation rules: "compute field F from source S".
 *
 * The source is either a path expression (collect) or one of the derived
 * operators, detected by prefix:
 *
 *   count(expr)                    number of matches / items
 *   average(expr)                  mean of numeric matches
 *   count_where(field, condition)  elements of field satisfying condition
 *
 * Everything is validated here so that aggregation never sees a malformed rule.
 * Rules are immutable values.
 */

// Operator identifies how a rule derives its value.
type Operator string

const (
	OpCollect    Operator = "collect"
	OpCount      Operator = "count"
	OpAverage    Operator = "average"
	OpCountWhere Operator = "count_where"
)

var (
	targetPattern       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	nestedTargetPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// RuleOptions controls collect rules. Ignored by derived operators.
type RuleOptions struct {
	Unique  bool
	Flatten bool
}

// DerivationRule computes one target field.
type DerivationRule struct {
	target    string
	source    string
	operator  Operator
	path      expr.PathExpression // collect, average, count (unless countAll), count_where field
	countAll  bool
	condition Condition
	options   RuleOptions
}

// NewDerivationRule builds a rule whose target is a plain identifier.
func NewDerivationRule(target, source string, opts RuleOptions) (DerivationRule, error) {
	if !targetPattern.MatchString(target) {
		return DerivationRule{}, fmt.Errorf("%w: target field %q must match %s",
			types.ErrInvalidRule, target, targetPattern)
	}
	return newRule(target, source, opts)
}

// NewNestedDerivationRule builds a rule whose target may be a dot path such as
// "summary.tags".
func NewNestedDerivationRule(target, source string, opts RuleOptions) (DerivationRule, error) {
	if !nestedTargetPattern.MatchString(target) {
		return DerivationRule{}, fmt.Errorf("%w: target path %q is not a dotted identifier",
			types.ErrInvalidRule, target)
	}
	return newRule(target, source, opts)
}

// MustDerivationRule is NewNestedDerivationRule for static rules; it panics on error.
func MustDerivationRule(target, source string, opts RuleOptions) DerivationRule {
	r, err := NewNestedDerivationRule(target, source, opts)
	if err != nil {
		panic(err)
	}
	return r
}

func newRule(target, source string, opts RuleOptions) (DerivationRule, error) {
	src := strings.TrimSpace(source)
	r := DerivationRule{target: target, source: src, options: opts}

	var err error
	switch {
	case hasCall(src, "count_where"):
		r.operator = OpCountWhere
		err = r.parseCountWhere(callArgs(src, "count_where"))
	case hasCall(src, "count"):
		r.operator = OpCount
		err = r.parseCount(callArgs(src, "count"))
	case hasCall(src, "average"):
		r.operator = OpAverage
		r.path, err = expr.Parse(callArgs(src, "average"))
	default:
		r.operator = OpCollect
		r.path, err = expr.Parse(src)
	}
	if err != nil {
		return DerivationRule{}, fmt.Errorf("%w: %s: %w", types.ErrInvalidRule, target, err)
	}
	return r, nil
}

func hasCall(src, name string) bool {
	return strings.HasPrefix(src, name+"(") && strings.HasSuffix(src, ")")
}

func callArgs(src, name string) string {
	return strings.TrimSpace(src[len(name)+1 : len(src)-1])
}

func (r *DerivationRule) parseCount(arg string) error {
	if arg == "" || arg == "*" {
		r.countAll = true
		return nil
	}
	path, err := expr.Parse(arg)
	if err != nil {
		return err
	}
	r.path = path
	return nil
}

func (r *DerivationRule) parseCountWhere(args string) error {
	field, cond, ok := strings.Cut(args, ",")
	if !ok {
		return fmt.Errorf("count_where needs (field, condition), got %q", args)
	}
	path, err := expr.Parse(field)
	if err != nil {
		return err
	}
	condition, err := ParseCondition(cond)
	if err != nil {
		return err
	}
	r.path = path
	r.condition = condition
	return nil
}

// Target returns the output field (possibly a dot path).
func (r DerivationRule) Target() string { return r.target }

// Source returns the trimmed source expression.
func (r DerivationRule) Source() string { return r.source }

// Operator returns how the rule derives its value.
func (r DerivationRule) Operator() Operator { return r.operator }

// Path returns the parsed path (zero for count(*)).
func (r DerivationRule) Path() expr.PathExpression { return r.path }

// Options returns the collect options.
func (r DerivationRule) Options() RuleOptions { return r.options }

// IsDerived reports whether the rule runs in the second, count-family pass.
func (r DerivationRule) IsDerived() bool {
	return r.operator != OpCollect
}

// IsZero reports whether r was never constructed.
func (r DerivationRule) IsZero() bool {
	return r.target == "" || r.operator == ""
}

// countsPath reports whether count(expr) counts path matches directly rather
// than measuring a field on a wrapped record.
func (r DerivationRule) countsPath() bool {
	return strings.Contains(r.path.Expression(), "$") || r.path.HasIterator()
}

// String renders the rule for logs and metadata.
func (r DerivationRule) String() string {
	var flags []string
	if r.options.Unique {
		flags = append(flags, "unique")
	}
	if r.options.Flatten {
		flags = append(flags, "flatten")
	}
	if len(flags) == 0 {
		return r.target + " <- " + r.source
	}
	return fmt.Sprintf("%s <- %s [%s]", r.target, r.source, strings.Join(flags, ","))
}
