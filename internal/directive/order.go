// internal/directive/order.go
package directive

import (
	"fmt"
	"sort"
	"strings"

	"github.com/solatis/mdcollate/internal/types"
)

/*
 * Directive processing order.
 *
 * Given the directives present in one schema, restrict the dependency table to
 * them, reject cycles, topologically sort and group by stage.
 *
 * Algorithm:
 *   1. Restrict: rows whose kind is present; unknown kinds are ignored
 *   2. Cycle check: DFS with white/gray/black marking; a gray hit is a cycle
 *   3. Topo sort: iterative DFS post-order; absent dependencies are skipped
 *   4. Group: ascending stage, description from the stage's first directive
 *
 * Roots are visited in table order and dependencies in declared order, so the
 * output depends only on the table and the present set, never on the order of
 * the present slice.
 */

// CycleError reports a dependency cycle.
type CycleError struct {
	Chain []Kind
}

// Error implements error.
func (e *CycleError) Error() string {
	names := make([]string, len(e.Chain))
	for i, k := range e.Chain {
		names[i] = string(k)
	}
	return fmt.Sprintf("%s: %s", types.ErrCircularDependency, strings.Join(names, " -> "))
}

// Unwrap lets errors.Is(err, types.ErrCircularDependency) match.
func (e *CycleError) Unwrap() error {
	return types.ErrCircularDependency
}

// Stage is a group of directives with the same stage number.
type Stage struct {
	Stage       int    `json:"stage"`
	Directives  []Kind `json:"directives"`
	Description string `json:"description"`
}

// ProcessingOrder is the per-schema ordering.
type ProcessingOrder struct {
	OrderedDirectives []Kind          `json:"orderedDirectives"`
	Stages            []Stage         `json:"stages"`
	DependencyGraph   map[Kind][]Kind `json:"dependencyGraph"`
}

// OrderManager computes processing orders from a fixed table.
// Safe for concurrent use.
type OrderManager struct {
	table []Dependency
	rows  map[Kind]Dependency
}

// NewOrderManager builds a manager over table. Duplicate kinds are rejected.
func NewOrderManager(table []Dependency) (*OrderManager, error) {
	m := &OrderManager{
		table: make([]Dependency, 0, len(table)),
		rows:  make(map[Kind]Dependency, len(table)),
	}
	for _, d := range table {
		if _, dup := m.rows[d.Kind]; dup {
			return nil, fmt.Errorf("duplicate directive %q in dependency table", d.Kind)
		}
		d.DependsOn = append([]Kind(nil), d.DependsOn...)
		m.table = append(m.table, d)
		m.rows[d.Kind] = d
	}
	return m, nil
}

// DefaultOrderManager uses the built-in table.
func DefaultOrderManager() *OrderManager {
	m, err := NewOrderManager(defaultTable)
	if err != nil {
		panic(err)
	}
	return m
}

// DetermineProcessingOrder orders the present directives.
// Returns *CycleError when the present directives depend on each other cyclically.
func (m *OrderManager) DetermineProcessingOrder(present []Kind) (*ProcessingOrder, error) {
	nodes, graph := m.restrict(present)

	if chain := findCycle(nodes, graph); chain != nil {
		return nil, &CycleError{Chain: chain}
	}

	ordered := topoSort(nodes, graph)

	return &ProcessingOrder{
		OrderedDirectives: ordered,
		Stages:            m.group(ordered),
		DependencyGraph:   graph,
	}, nil
}

// restrict returns present kinds in table order and their present dependencies.
func (m *OrderManager) restrict(present []Kind) ([]Kind, map[Kind][]Kind) {
	want := make(map[Kind]bool, len(present))
	for _, k := range present {
		want[k] = true
	}

	var nodes []Kind
	for _, d := range m.table {
		if want[d.Kind] {
			nodes = append(nodes, d.Kind)
		}
	}

	graph := make(map[Kind][]Kind, len(nodes))
	for _, k := range nodes {
		deps := []Kind{}
		for _, dep := range m.rows[k].DependsOn {
			if want[dep] {
				if _, known := m.rows[dep]; known {
					deps = append(deps, dep)
				}
			}
		}
		graph[k] = deps
	}
	return nodes, graph
}

const (
	white = iota
	gray
	black
)

// findCycle returns the first cycle found as a closed chain (first == last),
// or nil.
func findCycle(nodes []Kind, graph map[Kind][]Kind) []Kind {
	color := make(map[Kind]int, len(nodes))
	var stack []Kind
	var chain []Kind

	var visit func(k Kind) bool
	visit = func(k Kind) bool {
		color[k] = gray
		stack = append(stack, k)

		for _, dep := range graph[k] {
			switch color[dep] {
			case gray:
				for i, s := range stack {
					if s == dep {
						chain = append(append([]Kind(nil), stack[i:]...), dep)
						break
					}
				}
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[k] = black
		return false
	}

	for _, k := range nodes {
		if color[k] == white && visit(k) {
			return chain
		}
	}
	return nil
}

// topoSort emits each node after all of its dependencies. graph must be acyclic.
func topoSort(nodes []Kind, graph map[Kind][]Kind) []Kind {
	type frame struct {
		kind Kind
		next int
	}

	visited := make(map[Kind]bool, len(nodes))
	out := make([]Kind, 0, len(nodes))

	for _, root := range nodes {
		if visited[root] {
			continue
		}
		visited[root] = true
		stack := []frame{{kind: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := graph[top.kind]
			if top.next < len(deps) {
				dep := deps[top.next]
				top.next++
				if !visited[dep] {
					visited[dep] = true
					stack = append(stack, frame{kind: dep})
				}
				continue
			}
			out = append(out, top.kind)
			stack = stack[:len(stack)-1]
		}
	}
	return out
}

func (m *OrderManager) group(ordered []Kind) []Stage {
	byStage := make(map[int]*Stage)
	var numbers []int

	for _, k := range ordered {
		row := m.rows[k]
		s, ok := byStage[row.Stage]
		if !ok {
			s = &Stage{Stage: row.Stage, Description: row.Description}
			byStage[row.Stage] = s
			numbers = append(numbers, row.Stage)
		}
		s.Directives = append(s.Directives, k)
	}

	sort.Ints(numbers)
	stages := make([]Stage, len(numbers))
	for i, n := range numbers {
		stages[i] = *byStage[n]
	}
	return stages
}
