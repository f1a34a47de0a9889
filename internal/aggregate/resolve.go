package aggregate

import (
	"sort"
	"strconv"
	"strings"

	"github.com/solatis/mdcollate/internal/expr"
)

// resolveContext handles expressions written against a different nesting than
// the actual document. When "$.items[].name" finds nothing, the item is searched
// depth-first (map keys sorted, arrays in index order) for an array stored under
// the key "items"; the first hit rebuilds the expression at that location, e.g.
// "$.payload.items[].name".
//
// Returns the rebuilt expression text, or "" when the path has no iterator or no
// other matching array exists.
func resolveContext(item any, path expr.PathExpression) string {
	leading := path.LeadingSegment()
	if leading == "" || !path.HasIterator() {
		return ""
	}
	key := leading
	if i := strings.LastIndex(leading, "."); i >= 0 {
		key = leading[i+1:]
	}

	found, ok := findArray(item, key, "", leading)
	if !ok {
		return ""
	}

	rebuilt := found + path.Remainder()
	if path.HasRoot() {
		if strings.HasPrefix(rebuilt, "[") {
			return "$" + rebuilt
		}
		return "$." + rebuilt
	}
	return rebuilt
}

// findArray returns the dot path of the first array stored under key, skipping
// the location the original expression already tried.
func findArray(node any, key, prefix, skip string) (string, bool) {
	if obj, ok := expr.AsObject(node); ok {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			if k == key && p != skip {
				if _, isArr := expr.AsArray(obj[k]); isArr {
					return p, true
				}
			}
			if found, ok := findArray(obj[k], key, p, skip); ok {
				return found, true
			}
		}
		return "", false
	}

	if arr, ok := expr.AsArray(node); ok {
		for i, e := range arr {
			if found, ok := findArray(e, key, prefix+"["+strconv.Itoa(i)+"]", skip); ok {
				return found, true
			}
		}
	}
	return "", false
}
