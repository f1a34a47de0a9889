package directive

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/mdcollate/internal/types"
)

func TestDetermineProcessingOrder_FrontmatterBeforeDerived(t *testing.T) {
	m := DefaultOrderManager()

	for _, present := range [][]Kind{
		{DerivedFrom, FrontmatterPart},
		{FrontmatterPart, DerivedFrom},
	} {
		order, err := m.DetermineProcessingOrder(present)
		require.NoError(t, err)

		assert.Equal(t, []Kind{FrontmatterPart, DerivedFrom}, order.OrderedDirectives)
		require.Len(t, order.Stages, 2)
		assert.Equal(t, 1, order.Stages[0].Stage)
		assert.Equal(t, []Kind{FrontmatterPart}, order.Stages[0].Directives)
		assert.Equal(t, 5, order.Stages[1].Stage)
		assert.Equal(t, []Kind{DerivedFrom}, order.Stages[1].Directives)
	}
}

func TestDetermineProcessingOrder_FullTable(t *testing.T) {
	order, err := DefaultOrderManager().DetermineProcessingOrder(Kinds())
	require.NoError(t, err)

	assert.Equal(t, []Kind{
		FrontmatterPart, ExtractFrom, JMESPathFilter, MergeArrays,
		DerivedFrom, DerivedUnique, TemplateItems, Template,
	}, order.OrderedDirectives)

	require.Len(t, order.Stages, 7)
	last := order.Stages[6]
	assert.Equal(t, 7, last.Stage)
	assert.Equal(t, []Kind{TemplateItems, Template}, last.Directives)
	assert.Equal(t, "resolve templates for items and output", last.Description)
}

func TestDetermineProcessingOrder_AbsentDependenciesIgnored(t *testing.T) {
	order, err := DefaultOrderManager().DetermineProcessingOrder([]Kind{Template, DerivedUnique})
	require.NoError(t, err)

	assert.Equal(t, []Kind{DerivedUnique, Template}, order.OrderedDirectives)
	assert.Equal(t, map[Kind][]Kind{
		DerivedUnique: {},
		Template:      {DerivedUnique},
	}, order.DependencyGraph)
}

func TestDetermineProcessingOrder_UnknownKindsIgnored(t *testing.T) {
	order, err := DefaultOrderManager().DetermineProcessingOrder([]Kind{"x-unknown", FrontmatterPart})
	require.NoError(t, err)
	assert.Equal(t, []Kind{FrontmatterPart}, order.OrderedDirectives)
	assert.NotContains(t, order.DependencyGraph, Kind("x-unknown"))
}

func TestDetermineProcessingOrder_Empty(t *testing.T) {
	order, err := DefaultOrderManager().DetermineProcessingOrder(nil)
	require.NoError(t, err)
	assert.Empty(t, order.OrderedDirectives)
	assert.Empty(t, order.Stages)
}

func TestDetermineProcessingOrder_Cycle(t *testing.T) {
	m, err := NewOrderManager([]Dependency{
		{Kind: "A", DependsOn: []Kind{"B"}, Stage: 1},
		{Kind: "B", DependsOn: []Kind{"A"}, Stage: 2},
		{Kind: "C", Stage: 3},
	})
	require.NoError(t, err)

	_, err = m.DetermineProcessingOrder([]Kind{"A", "B", "C"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCircularDependency)

	var cycle *CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []Kind{"A", "B", "A"}, cycle.Chain)
	assert.Contains(t, err.Error(), "A -> B -> A")
}

func TestDetermineProcessingOrder_CycleBrokenByAbsence(t *testing.T) {
	m, err := NewOrderManager([]Dependency{
		{Kind: "A", DependsOn: []Kind{"B"}, Stage: 1},
		{Kind: "B", DependsOn: []Kind{"A"}, Stage: 2},
	})
	require.NoError(t, err)

	order, err := m.DetermineProcessingOrder([]Kind{"A"})
	require.NoError(t, err)
	assert.Equal(t, []Kind{"A"}, order.OrderedDirectives)
}

func TestNewOrderManager_RejectsDuplicates(t *testing.T) {
	_, err := NewOrderManager([]Dependency{{Kind: "A"}, {Kind: "A"}})
	assert.Error(t, err)
}

func TestDefaultTable_ReturnsCopy(t *testing.T) {
	table := DefaultTable()
	table[4].DependsOn[0] = "mutated"

	assert.Equal(t, MergeArrays, DefaultTable()[4].DependsOn[0])
}

// Every directive appears after all of its present dependencies, for any subset.
func TestDetermineProcessingOrder_DependenciesPrecede(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	all := Kinds()
	m := DefaultOrderManager()

	properties.Property("dependencies precede dependents", prop.ForAll(
		func(mask []bool) bool {
			var present []Kind
			for i, on := range mask {
				if on {
					present = append(present, all[i])
				}
			}

			order, err := m.DetermineProcessingOrder(present)
			if err != nil {
				return false
			}

			pos := make(map[Kind]int, len(order.OrderedDirectives))
			for i, k := range order.OrderedDirectives {
				pos[k] = i
			}
			if len(pos) != len(present) {
				return false
			}
			for k, deps := range order.DependencyGraph {
				for _, d := range deps {
					if pos[d] >= pos[k] {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOfN(len(all), gen.Bool()),
	))

	properties.TestingRun(t)
}
