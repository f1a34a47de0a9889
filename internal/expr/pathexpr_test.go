package expr

import (
	"errors"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/mdcollate/internal/types"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		steps []Step
	}{
		{
			name:  "single property",
			input: "title",
			steps: []Step{{Kind: StepProperty, Name: "title"}},
		},
		{
			name:  "root then property",
			input: "$.c1",
			steps: []Step{{Kind: StepRoot}, {Kind: StepProperty, Name: "c1"}},
		},
		{
			name:  "root only",
			input: "$",
			steps: []Step{{Kind: StepRoot}},
		},
		{
			name:  "iterator followed by property",
			input: "items[].name",
			steps: []Step{
				{Kind: StepProperty, Name: "items"},
				{Kind: StepArrayIterator},
				{Kind: StepProperty, Name: "name"},
			},
		},
		{
			name:  "numeric and wildcard index",
			input: "$.matrix[0][*]",
			steps: []Step{
				{Kind: StepRoot},
				{Kind: StepProperty, Name: "matrix"},
				{Kind: StepIndex, Index: 0},
				{Kind: StepIndex, Wildcard: true},
			},
		},
		{
			name:  "leading iterator",
			input: "[].id",
			steps: []Step{{Kind: StepArrayIterator}, {Kind: StepProperty, Name: "id"}},
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "  a.b  ",
			steps: []Step{{Kind: StepProperty, Name: "a"}, {Kind: StepProperty, Name: "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.steps, p.Steps())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		input string
		kind  ErrorKind
	}{
		{"", EmptyExpression},
		{"   ", EmptyExpression},
		{"a-b", InvalidCharacters},
		{"a b", InvalidCharacters},
		{"a[-1]", InvalidCharacters},
		{"a..b", ConsecutiveDots},
		{"a[0", UnbalancedBrackets},
		{"a]0[", UnbalancedBrackets},
		{"a[[0]]", UnbalancedBrackets},
		{"a[x]", InvalidArrayNotation},
		{"a[$]", InvalidArrayNotation},
		{"a[0]b", InvalidArrayNotation},
		{"1abc", InvalidPropertyName},
		{"a$", InvalidPropertyName},
		{"*", InvalidPropertyName},
		{"a.", EmptyParts},
		{".a", EmptyParts},
		{".", EmptyParts},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe), "want *ParseError, got %T", err)
			assert.Equal(t, tt.kind, pe.Kind)
			assert.ErrorIs(t, err, types.ErrInvalidExpression)
		})
	}
}

func TestPathExpression_Helpers(t *testing.T) {
	p := MustParse("$.data.items[].name")

	assert.True(t, p.HasRoot())
	assert.True(t, p.HasIterator())
	assert.Equal(t, "data.items", p.LeadingSegment())
	assert.Equal(t, "[].name", p.Remainder())

	plain := MustParse("title")
	assert.False(t, plain.HasRoot())
	assert.False(t, plain.HasIterator())
	assert.Equal(t, "", plain.LeadingSegment())
	assert.True(t, PathExpression{}.IsZero())
}

func TestPathExpression_StepsIsCopy(t *testing.T) {
	p := MustParse("a.b")
	steps := p.Steps()
	steps[0].Name = "mutated"

	assert.Equal(t, "a", p.Steps()[0].Name)
}

// Re-parsing Expression() of a parsed value yields an equal parse.
func TestParse_PropertyIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	segment := gen.OneGenOf(
		gen.Identifier(),
		gen.Const("[]"),
		gen.Const("[*]"),
		gen.IntRange(0, 99).Map(func(n int) string { return "[" + strconv.Itoa(n) + "]" }),
	)

	properties.Property("parse(expression(parse(e))) == parse(e)", prop.ForAll(
		func(root bool, first string, rest []string) bool {
			e := first
			if root {
				e = "$." + first
			}
			for _, s := range rest {
				if s[0] == '[' {
					e += s
				} else {
					e += "." + s
				}
			}

			p1, err := Parse(e)
			if err != nil {
				// Generated identifiers are always valid; any error is a bug.
				t.Logf("unexpected parse error for %q: %v", e, err)
				return false
			}
			p2, err := Parse(p1.Expression())
			if err != nil {
				return false
			}
			return p1.Equal(p2)
		},
		gen.Bool(),
		gen.Identifier(),
		gen.SliceOfN(4, segment),
	))

	properties.TestingRun(t)
}
