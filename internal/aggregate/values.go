// internal/aggregate/values.go
package aggregate

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/solatis/mdcollate/internal/expr"
	"github.com/solatis/mdcollate/internal/types"
)

/*
 * Value helpers shared by collection, dedup and the count family.
 *
 * Data trees come from YAML, TOML and JSON decoders, so numbers arrive as int,
 * int64, uint64 or float64 depending on the source format. toFloat64 accepts all
 * of them; ordering and averaging work on float64 only.
 *
 * Undefined is distinct from nil. nil is an explicit null in the source document;
 * Undefined marks a value a producer explicitly left unset. Both are filtered by
 * default and both count toward a field's null statistics.
 */

type undefined struct{}

// MarshalJSON renders Undefined as JSON null.
func (undefined) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Undefined is the explicit "no value" marker.
var Undefined any = undefined{}

// IsUndefined reports whether v is the Undefined marker.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

const unserializableKey = "[unserializable]"

// StableKey returns the dedup key for v: primitives stringify directly, null and
// undefined map to "null" and "undefined", objects and arrays use their JSON
// encoding (map keys sorted by encoding/json).
func StableKey(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case undefined:
		return "undefined"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return unserializableKey
	}
	return string(b)
}

// Deduplicate keeps the first occurrence of each StableKey, preserving order.
func Deduplicate(values []any) []any {
	seen := make(map[string]struct{}, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		k := StableKey(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

// FlattenDeep recursively splices nested arrays into one list.
// Arrays nested deeper than types.MaxFlattenDepth are kept as values.
func FlattenDeep(values []any) []any {
	out := make([]any, 0, len(values))
	return flattenInto(out, values, 0)
}

func flattenInto(out, values []any, depth int) []any {
	for _, v := range values {
		arr, ok := expr.AsArray(v)
		if !ok || depth >= types.MaxFlattenDepth {
			out = append(out, v)
			continue
		}
		out = flattenInto(out, arr, depth+1)
	}
	return out
}

// toFloat64 converts any decoded numeric type to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// coerceNumeric is toFloat64 plus numeric strings. Whitespace-only strings are
// not numbers.
func coerceNumeric(v any) (float64, bool) {
	if f, ok := toFloat64(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// truthy applies the usual falsy set: nil, Undefined, false, 0, "", and empty
// arrays or objects.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil, undefined:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case map[string]any:
		return len(val) > 0
	}
	if f, ok := toFloat64(v); ok {
		return f != 0
	}
	if arr, ok := expr.AsArray(v); ok {
		return len(arr) > 0
	}
	return true
}
