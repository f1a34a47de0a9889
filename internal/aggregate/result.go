// internal/aggregate/result.go
package aggregate

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/solatis/mdcollate/internal/types"
)

/*
 * Aggregation outcome.
 *
 * Metadata.Detail is a closed union. Exactly one of four variants is present:
 *
 *   Basic                     no warnings, no statistics
 *   WithWarnings              warnings only
 *   WithStatistics            statistics only
 *   WithWarningsAndStatistics both
 *
 * The variants implement an unexported method, so no other package can add a
 * fifth case. Consumers switch on the concrete type or use the Warnings() and
 * Statistics() accessors on Metadata.
 */

// FieldStatistics summarizes one collected field.
type FieldStatistics struct {
	// UniqueValues is set only for unique rules.
	UniqueValues int `json:"uniqueValues,omitempty"`
	// NullCount counts null and undefined values before filtering.
	NullCount int `json:"nullCount"`
	// ArrayLengths lists the length of each final value that is an array.
	ArrayLengths []int `json:"arrayLengths,omitempty"`
}

// Statistics maps target field to its statistics.
type Statistics map[string]FieldStatistics

// Detail is the closed set of optional metadata.
type Detail interface {
	isDetail()
}

// Basic carries nothing beyond the common metadata.
type Basic struct{}

// WithWarnings carries per-rule warnings.
type WithWarnings struct {
	Warnings []string
}

// WithStatistics carries per-field statistics.
type WithStatistics struct {
	Statistics Statistics
}

// WithWarningsAndStatistics carries both.
type WithWarningsAndStatistics struct {
	Warnings   []string
	Statistics Statistics
}

func (Basic) isDetail()                     {}
func (WithWarnings) isDetail()              {}
func (WithStatistics) isDetail()            {}
func (WithWarningsAndStatistics) isDetail() {}

func newDetail(warnings []string, stats Statistics) Detail {
	switch {
	case len(warnings) > 0 && len(stats) > 0:
		return WithWarningsAndStatistics{Warnings: warnings, Statistics: stats}
	case len(warnings) > 0:
		return WithWarnings{Warnings: warnings}
	case len(stats) > 0:
		return WithStatistics{Statistics: stats}
	default:
		return Basic{}
	}
}

// Metadata describes one aggregation run.
type Metadata struct {
	RunID          types.RunID
	ProcessedCount int
	AggregatedAt   time.Time
	AppliedRules   []string
	Detail         Detail
}

// Warnings returns the run's warnings, or nil.
func (m Metadata) Warnings() []string {
	switch d := m.Detail.(type) {
	case WithWarnings:
		return d.Warnings
	case WithWarningsAndStatistics:
		return d.Warnings
	default:
		return nil
	}
}

// Statistics returns the run's statistics, or nil.
func (m Metadata) Statistics() Statistics {
	switch d := m.Detail.(type) {
	case WithStatistics:
		return d.Statistics
	case WithWarningsAndStatistics:
		return d.Statistics
	default:
		return nil
	}
}

type metadataJSON struct {
	RunID          types.RunID `json:"runId"`
	ProcessedCount int         `json:"processedCount"`
	AggregatedAt   time.Time   `json:"aggregatedAt"`
	AppliedRules   []string    `json:"appliedRules"`
	Warnings       []string    `json:"warnings,omitempty"`
	Statistics     Statistics  `json:"statistics,omitempty"`
}

// MarshalJSON flattens Detail so absent variants leave no keys.
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(metadataJSON{
		RunID:          m.RunID,
		ProcessedCount: m.ProcessedCount,
		AggregatedAt:   m.AggregatedAt,
		AppliedRules:   m.AppliedRules,
		Warnings:       m.Warnings(),
		Statistics:     m.Statistics(),
	})
}

// UnmarshalJSON rebuilds Detail from the flattened form.
func (m *Metadata) UnmarshalJSON(b []byte) error {
	var raw metadataJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = Metadata{
		RunID:          raw.RunID,
		ProcessedCount: raw.ProcessedCount,
		AggregatedAt:   raw.AggregatedAt,
		AppliedRules:   raw.AppliedRules,
		Detail:         newDetail(raw.Warnings, raw.Statistics),
	}
	return nil
}

// AggregatedResult maps target fields to computed values.
type AggregatedResult struct {
	Data     map[string]any `json:"data"`
	Metadata Metadata       `json:"metadata"`
}

// ApplyTo merges Data into a deep copy of base. Dotted targets create or extend
// nested objects; only leaves are overwritten. base is not modified.
func (r *AggregatedResult) ApplyTo(base map[string]any) map[string]any {
	out := CloneObject(base)

	keys := make([]string, 0, len(r.Data))
	for k := range r.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		SetPath(out, k, r.Data[k])
	}
	return out
}

// SetPath assigns value at a dot path inside obj, creating intermediate objects
// and replacing non-object intermediates.
func SetPath(obj map[string]any, dotPath string, value any) {
	parts := strings.Split(dotPath, ".")
	cur := obj
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// CloneObject deep-copies nested objects and arrays.
func CloneObject(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneObject(val)
	case []any:
		cp := make([]any, len(val))
		for i, e := range val {
			cp[i] = cloneValue(e)
		}
		return cp
	default:
		return v
	}
}
