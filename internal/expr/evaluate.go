// internal/expr/evaluate.go
package expr

/*
 * Path evaluation over untyped document trees.
 *
 * Folds the parsed steps over a working set that starts as [data]. Unlike a
 * single-value resolver this returns every match: "[]" and "[*]" fan out, while
 * property and index steps filter. Absent keys, out-of-range indices and type
 * mismatches shrink the working set; they are never errors.
 *
 * Step semantics:
 *   - Root: pass-through
 *   - Property(name): keep objects holding name, project to its value
 *   - ArrayIterator: flatten one level of arrays, drop non-arrays
 *   - Index(n): keep element n of each array when in bounds
 *   - Index(*): flatten every element of each array
 *
 * Result order is the fold order; nothing is sorted.
 */

import "reflect"

// Evaluate parses expression and evaluates it against data.
// The only error is a malformed expression.
func Evaluate(data any, expression string) ([]any, error) {
	path, err := Parse(expression)
	if err != nil {
		return nil, err
	}
	return EvaluatePath(data, path), nil
}

// EvaluatePath evaluates a pre-parsed expression. Never returns nil.
func EvaluatePath(data any, path PathExpression) []any {
	working := []any{data}

	for _, step := range path.steps {
		if len(working) == 0 {
			break
		}
		working = applyStep(step, working)
	}

	if working == nil {
		return []any{}
	}
	return working
}

// First returns the first match of path in data.
func First(data any, path PathExpression) (any, bool) {
	matches := EvaluatePath(data, path)
	if len(matches) == 0 {
		return nil, false
	}
	return matches[0], true
}

func applyStep(step Step, working []any) []any {
	next := make([]any, 0, len(working))

	switch step.Kind {
	case StepRoot:
		return working

	case StepProperty:
		for _, item := range working {
			obj, ok := AsObject(item)
			if !ok {
				continue
			}
			if v, found := obj[step.Name]; found {
				next = append(next, v)
			}
		}

	case StepArrayIterator:
		for _, item := range working {
			if arr, ok := AsArray(item); ok {
				next = append(next, arr...)
			}
		}

	case StepIndex:
		for _, item := range working {
			arr, ok := AsArray(item)
			if !ok {
				continue
			}
			if step.Wildcard {
				next = append(next, arr...)
				continue
			}
			if step.Index >= 0 && step.Index < len(arr) {
				next = append(next, arr[step.Index])
			}
		}
	}

	return next
}

// AsObject returns v as a plain object. nil maps are not objects.
func AsObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return nil, false
	}
	return obj, true
}

// AsArray returns v as []any. Typed slices built in Go rather than decoded
// ([]string, []int, []map[string]any, ...) are copied element by element; a nil
// slice is an empty array.
func AsArray(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []map[string]any:
		out := make([]any, len(arr))
		for i, m := range arr {
			out[i] = m
		}
		return out, true
	case []string:
		out := make([]any, len(arr))
		for i, s := range arr {
			out[i] = s
		}
		return out, true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
