package engine

import (
	"fmt"
	"sort"
	"strings"
)

// DAGBuilder builds a dependency graph from steps and derives the
// sequential execution order.
type DAGBuilder struct {
	// steps maps step IDs to their definitions
	steps map[string]Step

	// index maps step IDs to their declared position
	index map[string]int

	// adjacencyList maps step IDs to their dependents
	adjacencyList map[string][]string

	// reverseAdjacencyList maps step IDs to their dependencies
	reverseAdjacencyList map[string][]string

	// inDegree tracks the number of incoming edges for each node
	inDegree map[string]int

	// order is the computed execution order
	order []string

	// levels groups step IDs by dependency depth, for visualisation
	levels [][]string
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		steps:                make(map[string]Step),
		index:                make(map[string]int),
		adjacencyList:        make(map[string][]string),
		reverseAdjacencyList: make(map[string][]string),
		inDegree:             make(map[string]int),
	}
}

// Order validates the step graph and returns the steps in execution order.
// Dependencies always come before their dependents; among steps that are
// ready at the same time, declared order wins.
func (b *DAGBuilder) Order(steps []Step) ([]Step, error) {
	if len(steps) == 0 {
		return nil, nil
	}

	if err := b.initialize(steps); err != nil {
		return nil, err
	}

	if err := b.detectCycles(steps); err != nil {
		return nil, err
	}

	if err := b.computeOrder(); err != nil {
		return nil, err
	}

	ordered := make([]Step, 0, len(b.order))
	for _, id := range b.order {
		ordered = append(ordered, b.steps[id])
	}
	return ordered, nil
}

// initialize sets up the internal data structures from steps.
func (b *DAGBuilder) initialize(steps []Step) error {
	for i, step := range steps {
		if step.ID == "" {
			return NewValidationError(fmt.Sprintf("step at position %d has empty ID", i), nil)
		}

		if _, exists := b.steps[step.ID]; exists {
			return NewValidationError(fmt.Sprintf("duplicate step ID: %s", step.ID), nil).
				WithCode(ErrCodeDuplicateStep).WithStep(step.ID)
		}

		if step.Check == nil || step.Apply == nil {
			return NewValidationError("step must define both a precondition and an apply action", nil).
				WithStep(step.ID)
		}

		b.steps[step.ID] = step
		b.index[step.ID] = i
		b.adjacencyList[step.ID] = make([]string, 0)
		b.reverseAdjacencyList[step.ID] = make([]string, 0)
		b.inDegree[step.ID] = 0
	}

	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, exists := b.steps[dep]; !exists {
				return NewValidationError(
					fmt.Sprintf("step %s depends on unknown step %s", step.ID, dep), nil,
				).WithCode(ErrCodeUnknownStep).WithStep(step.ID)
			}

			// Edge from dependency to dependent.
			b.adjacencyList[dep] = append(b.adjacencyList[dep], step.ID)
			b.reverseAdjacencyList[step.ID] = append(b.reverseAdjacencyList[step.ID], dep)
			b.inDegree[step.ID]++
		}
	}

	return nil
}

// detectCycles uses depth-first search to detect circular dependencies.
// Steps are visited in declared order so the reported cycle is stable.
func (b *DAGBuilder) detectCycles(steps []Step) error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, step := range steps {
		if visited[step.ID] {
			continue
		}
		if cycle := b.detectCyclesUtil(step.ID, visited, recStack, nil); cycle != nil {
			return NewValidationError(
				fmt.Sprintf("circular dependency detected: %s", formatCycle(cycle)), nil,
			).WithCode(ErrCodeCycle).WithStep(cycle[0])
		}
	}

	return nil
}

// detectCyclesUtil returns the cycle path when one is reachable from nodeID.
func (b *DAGBuilder) detectCyclesUtil(
	nodeID string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) []string {
	visited[nodeID] = true
	recStack[nodeID] = true
	path = append(path, nodeID)

	for _, dependent := range b.adjacencyList[nodeID] {
		if !visited[dependent] {
			if cycle := b.detectCyclesUtil(dependent, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dependent] {
			for i, id := range path {
				if id == dependent {
					return append(append([]string(nil), path[i:]...), dependent)
				}
			}
		}
	}

	recStack[nodeID] = false
	return nil
}

// computeOrder runs Kahn's algorithm, always taking the ready step that
// was declared first, and records dependency levels on the way.
func (b *DAGBuilder) computeOrder() error {
	inDegreeCopy := make(map[string]int, len(b.inDegree))
	level := make(map[string]int, len(b.inDegree))
	var ready []string
	for id, degree := range b.inDegree {
		inDegreeCopy[id] = degree
		if degree == 0 {
			ready = append(ready, id)
		}
	}

	b.order = make([]string, 0, len(b.steps))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return b.index[ready[i]] < b.index[ready[j]] })
		next := ready[0]
		ready = ready[1:]
		b.order = append(b.order, next)

		for _, dependent := range b.adjacencyList[next] {
			if level[next]+1 > level[dependent] {
				level[dependent] = level[next] + 1
			}
			inDegreeCopy[dependent]--
			if inDegreeCopy[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(b.order) != len(b.steps) {
		return NewInternalError("failed to order all steps - possible cycle", nil)
	}

	b.levels = nil
	for _, id := range b.order {
		l := level[id]
		for len(b.levels) <= l {
			b.levels = append(b.levels, nil)
		}
		b.levels[l] = append(b.levels[l], id)
	}

	return nil
}

// GetLevels returns step IDs grouped by dependency depth.
func (b *DAGBuilder) GetLevels() [][]string {
	return b.levels
}

// ToDOT generates a DOT format representation of the step graph.
// The output can be rendered with Graphviz tools.
func (b *DAGBuilder) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Steps {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range b.levels {
		fmt.Fprintf(&sb, "  subgraph cluster_level_%d {\n", level)
		fmt.Fprintf(&sb, "    label=\"Level %d\";\n", level)
		sb.WriteString("    style=dashed;\n")

		for _, id := range ids {
			fmt.Fprintf(&sb, "    %q [label=%q];\n", id, fmt.Sprintf("%d. %s", b.position(id), id))
		}

		sb.WriteString("  }\n\n")
	}

	for _, id := range b.order {
		for _, dep := range b.reverseAdjacencyList[id] {
			fmt.Fprintf(&sb, "  %q -> %q;\n", dep, id)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// position returns the 1-based execution position of id.
func (b *DAGBuilder) position(id string) int {
	for i, o := range b.order {
		if o == id {
			return i + 1
		}
	}
	return 0
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}
