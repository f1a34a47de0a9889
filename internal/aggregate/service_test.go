package aggregate

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/mdcollate/internal/types"
)

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService() *Service {
	return NewService(
		WithClock(ClockFunc(func() time.Time { return fixedTime })),
		WithIDGenerator(func() types.RunID { return "run-1" }),
	)
}

func rule(t *testing.T, target, source string, opts RuleOptions) DerivationRule {
	t.Helper()
	r, err := NewNestedDerivationRule(target, source, opts)
	require.NoError(t, err)
	return r
}

func docs(values ...any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = map[string]any{"v": v}
	}
	return out
}

func TestAggregate_EndToEndUnique(t *testing.T) {
	items := []any{
		map[string]any{"c1": "build"},
		map[string]any{"c1": "test"},
		map[string]any{"c1": "build"},
	}
	ctx := NewContext([]DerivationRule{
		rule(t, "configs", "$.c1", RuleOptions{Unique: true}),
	}, DefaultOptions())

	res, err := newTestService().Aggregate(items, ctx)
	require.NoError(t, err)

	assert.Equal(t, []any{"build", "test"}, res.Data["configs"])
	assert.Equal(t, 3, res.Metadata.ProcessedCount)
	assert.Equal(t, fixedTime, res.Metadata.AggregatedAt)
	assert.Equal(t, types.RunID("run-1"), res.Metadata.RunID)
	assert.Equal(t, []string{"configs <- $.c1 [unique]"}, res.Metadata.AppliedRules)

	stats, ok := res.Metadata.Detail.(WithStatistics)
	require.True(t, ok, "want WithStatistics, got %T", res.Metadata.Detail)
	assert.Equal(t, 2, stats.Statistics["configs"].UniqueValues)
}

func TestAggregate_UniqueKeepsFirstSeenOrder(t *testing.T) {
	ctx := NewContext([]DerivationRule{
		rule(t, "out", "v", RuleOptions{Unique: true}),
	}, DefaultOptions())

	res, err := newTestService().Aggregate(docs("A", "B", "A", "C", "B"), ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"A", "B", "C"}, res.Data["out"])
}

func TestAggregate_FlattenUnboundedDepth(t *testing.T) {
	items := docs(
		[]any{[]any{"a", "b"}, []any{"c"}},
		[]any{[]any{"d"}},
	)
	ctx := NewContext([]DerivationRule{
		rule(t, "out", "v", RuleOptions{Flatten: true}),
	}, DefaultOptions())

	res, err := newTestService().Aggregate(items, ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c", "d"}, res.Data["out"])
}

func TestAggregate_NullHandling(t *testing.T) {
	items := docs("a", nil, "b", Undefined)
	r := rule(t, "out", "v", RuleOptions{})

	t.Run("defaults drop null and undefined", func(t *testing.T) {
		res, err := newTestService().Aggregate(items, NewContext([]DerivationRule{r}, DefaultOptions()))
		require.NoError(t, err)
		assert.Equal(t, []any{"a", "b"}, res.Data["out"])
		assert.Equal(t, 2, res.Metadata.Statistics()["out"].NullCount)
	})

	t.Run("skipNull false keeps null in place", func(t *testing.T) {
		opts := Options{SkipNull: false, SkipUndefined: true}
		res, err := newTestService().Aggregate(items, NewContext([]DerivationRule{r}, opts))
		require.NoError(t, err)
		assert.Equal(t, []any{"a", nil, "b"}, res.Data["out"])
	})
}

func TestAggregate_ArrayLengthStatistics(t *testing.T) {
	items := docs([]any{1, 2}, []any{3})
	ctx := NewContext([]DerivationRule{rule(t, "out", "v", RuleOptions{})}, DefaultOptions())

	res, err := newTestService().Aggregate(items, ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, res.Metadata.Statistics()["out"].ArrayLengths)
}

func TestAggregate_BasicMetadataWithoutWarningsOrStats(t *testing.T) {
	ctx := NewContext([]DerivationRule{rule(t, "out", "v", RuleOptions{})}, DefaultOptions())

	res, err := newTestService().Aggregate(docs("x", "y"), ctx)
	require.NoError(t, err)
	assert.IsType(t, Basic{}, res.Metadata.Detail)
	assert.Nil(t, res.Metadata.Warnings())
	assert.Nil(t, res.Metadata.Statistics())
}

func TestAggregate_NoMatchesWarns(t *testing.T) {
	ctx := NewContext([]DerivationRule{rule(t, "out", "missing", RuleOptions{})}, DefaultOptions())

	res, err := newTestService().Aggregate(docs("x"), ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{}, res.Data["out"])
	assert.IsType(t, WithWarnings{}, res.Metadata.Detail)
	require.Len(t, res.Metadata.Warnings(), 1)
	assert.Contains(t, res.Metadata.Warnings()[0], "matched no values")
}

func TestAggregate_ContextResolutionFallback(t *testing.T) {
	items := []any{
		map[string]any{
			"payload": map[string]any{
				"items": []any{
					map[string]any{"name": "x"},
					map[string]any{"name": "y"},
				},
			},
		},
	}
	ctx := NewContext([]DerivationRule{
		rule(t, "names", "$.items[].name", RuleOptions{}),
	}, DefaultOptions())

	res, err := newTestService().Aggregate(items, ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "y"}, res.Data["names"])
	assert.Nil(t, res.Metadata.Warnings())
}

func TestAggregate_ContextResolutionPicksFirstSortedKey(t *testing.T) {
	items := []any{
		map[string]any{
			"zeta":  map[string]any{"tags": []any{"z"}},
			"alpha": map[string]any{"tags": []any{"a"}},
		},
	}
	ctx := NewContext([]DerivationRule{rule(t, "tags", "tags[]", RuleOptions{})}, DefaultOptions())

	res, err := newTestService().Aggregate(items, ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, res.Data["tags"])
}

func TestAggregate_Count(t *testing.T) {
	wrapped := []any{map[string]any{
		"tasks": []any{
			map[string]any{"status": "done", "points": 3},
			map[string]any{"status": "open", "points": 5},
			map[string]any{"status": "done", "points": 1},
		},
	}}

	tests := []struct {
		name   string
		items  []any
		source string
		want   int
	}{
		{"path expression counts matches", wrapped, "count($.tasks[])", 3},
		{"bare field on wrapped record", wrapped, "count(tasks)", 3},
		{"bare field falls back to item count", docs(1, 2), "count(v)", 2},
		{"star counts items", docs(1, 2, 3), "count(*)", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := NewContext([]DerivationRule{rule(t, "n", tt.source, RuleOptions{})}, DefaultOptions())
			res, err := newTestService().Aggregate(tt.items, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Data["n"])
		})
	}
}

func TestAggregate_Average(t *testing.T) {
	ctx := NewContext([]DerivationRule{rule(t, "avg", "average(v)", RuleOptions{})}, DefaultOptions())

	res, err := newTestService().Aggregate(docs(2, 4.0, "skip", int64(6)), ctx)
	require.NoError(t, err)
	assert.Equal(t, 4.0, res.Data["avg"])

	res, err = newTestService().Aggregate(docs("a", "b"), ctx)
	require.NoError(t, err)
	assert.Nil(t, res.Data["avg"])
}

func TestAggregate_CountWhere(t *testing.T) {
	wrapped := []any{map[string]any{
		"tasks": []any{
			map[string]any{"status": "done", "points": 3},
			map[string]any{"status": "open", "points": 5},
			map[string]any{"status": "done", "points": 1},
		},
	}}

	tests := []struct {
		source string
		want   int
	}{
		{"count_where(tasks, status == 'done')", 2},
		{"count_where(tasks, status != \"done\")", 1},
		{"count_where(tasks, points >= 3)", 2},
		{"count_where(tasks, points < 2)", 1},
		{"count_where(tasks, owner == null)", 3},
		{"count_where(tasks, points)", 3},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			ctx := NewContext([]DerivationRule{rule(t, "n", tt.source, RuleOptions{})}, DefaultOptions())
			res, err := newTestService().Aggregate(wrapped, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Data["n"])
		})
	}
}

func TestAggregate_CountWhereNeedsWrappedRecord(t *testing.T) {
	ctx := NewContext([]DerivationRule{
		rule(t, "n", "count_where(tasks, status == 'done')", RuleOptions{}),
	}, DefaultOptions())

	res, err := newTestService().Aggregate(docs(1, 2), ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Data["n"])
	require.Len(t, res.Metadata.Warnings(), 1)
	assert.Contains(t, res.Metadata.Warnings()[0], "single wrapped record")
}

func TestAggregate_DerivedRunsAfterCollect(t *testing.T) {
	ctx := NewContext([]DerivationRule{
		rule(t, "total", "count(*)", RuleOptions{}),
		rule(t, "values", "v", RuleOptions{}),
	}, DefaultOptions())

	res, err := newTestService().Aggregate(docs("a", "b"), ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Data["total"])
	assert.Equal(t, []any{"a", "b"}, res.Data["values"])
	assert.Equal(t, []string{"total <- count(*)", "values <- v"}, res.Metadata.AppliedRules)
}

func TestAggregate_ZeroRuleRejected(t *testing.T) {
	ctx := NewContext([]DerivationRule{{}}, DefaultOptions())

	_, err := newTestService().Aggregate(docs("a"), ctx)
	assert.ErrorIs(t, err, types.ErrInvalidRule)
}

// Unique output never contains duplicate keys and preserves first-seen order.
func TestDeduplicate_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("dedup is idempotent and a subsequence", prop.ForAll(
		func(nums []int) bool {
			in := make([]any, len(nums))
			for i, n := range nums {
				in[i] = n
			}
			out := Deduplicate(in)

			again := Deduplicate(out)
			if len(again) != len(out) {
				return false
			}

			j := 0
			for _, v := range in {
				if j < len(out) && v == out[j] {
					j++
				}
			}
			return j == len(out)
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
