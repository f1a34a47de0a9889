package aggregate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyTo_DotPathMerge(t *testing.T) {
	base := map[string]any{
		"title": "Index",
		"summary": map[string]any{
			"author": "ops",
			"tags":   []any{"old"},
		},
		"scalar": "replace-me",
	}
	res := &AggregatedResult{Data: map[string]any{
		"summary.tags":  []any{"go", "yaml"},
		"summary.count": 2,
		"scalar.nested": true,
		"fresh":         "x",
	}}

	out := res.ApplyTo(base)

	assert.Equal(t, map[string]any{
		"title": "Index",
		"summary": map[string]any{
			"author": "ops",
			"tags":   []any{"go", "yaml"},
			"count":  2,
		},
		"scalar": map[string]any{"nested": true},
		"fresh":  "x",
	}, out)

	// base untouched
	assert.Equal(t, []any{"old"}, base["summary"].(map[string]any)["tags"])
	assert.Equal(t, "replace-me", base["scalar"])
}

func TestMetadata_JSONOmitsAbsentDetail(t *testing.T) {
	m := Metadata{RunID: "r", ProcessedCount: 1, AppliedRules: []string{"a <- b"}, Detail: Basic{}}

	b, err := json.Marshal(m)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.NotContains(t, raw, "warnings")
	assert.NotContains(t, raw, "statistics")

	var back Metadata
	require.NoError(t, json.Unmarshal(b, &back))
	assert.IsType(t, Basic{}, back.Detail)
}

func TestMetadata_JSONRoundTripsWarningsAndStatistics(t *testing.T) {
	m := Metadata{
		RunID: "r",
		Detail: WithWarningsAndStatistics{
			Warnings:   []string{"rule x: matched no values"},
			Statistics: Statistics{"tags": {UniqueValues: 2}},
		},
	}

	b, err := json.Marshal(m)
	require.NoError(t, err)

	var back Metadata
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, m.Warnings(), back.Warnings())
	assert.Equal(t, m.Statistics(), back.Statistics())
}

func TestStableKey(t *testing.T) {
	assert.Equal(t, "null", StableKey(nil))
	assert.Equal(t, "undefined", StableKey(Undefined))
	assert.Equal(t, "3", StableKey(3))
	assert.Equal(t, "2.5", StableKey(2.5))
	assert.Equal(t, "true", StableKey(true))
	assert.Equal(t, `{"a":1,"b":2}`, StableKey(map[string]any{"b": 2, "a": 1}))
	assert.Equal(t, unserializableKey, StableKey(map[string]any{"f": func() {}}))
}

func TestDeduplicate_Objects(t *testing.T) {
	in := []any{
		map[string]any{"id": 1},
		map[string]any{"id": 2},
		map[string]any{"id": 1},
		[]any{"x"},
		[]any{"x"},
	}
	assert.Equal(t, []any{
		map[string]any{"id": 1},
		map[string]any{"id": 2},
		[]any{"x"},
	}, Deduplicate(in))
}
