// Package graph derives a dependency graph from a pipeline's step list,
// validates reference integrity and acyclicity, and produces the topological
// batches the engine schedules.
package graph

import (
	"slices"

	"pipeline/internal/apperrors"
	"pipeline/internal/pipeline"
)

// color marks DFS visitation state during cycle detection.
type color uint8

const (
	white color = iota // unvisited
	gray               // on the current DFS path
	black              // fully explored
)

// Graph is the adjacency structure keyed by step name. It is built once per
// validation and treated as read-only afterwards.
type Graph struct {
	names []string            // declaration order
	deps  map[string][]string // step -> dependency names
	order map[string]int      // step -> declaration index
}

// Build constructs the graph from the step list. Every depends_on entry must
// reference a known step; all missing references are collected and returned
// together.
func Build(steps []pipeline.Step) (*Graph, []error) {
	g := &Graph{
		names: make([]string, 0, len(steps)),
		deps:  make(map[string][]string, len(steps)),
		order: make(map[string]int, len(steps)),
	}
	for i := range steps {
		name := steps[i].Name
		g.names = append(g.names, name)
		g.deps[name] = steps[i].DependsOn
		g.order[name] = i
	}

	var errs []error
	for _, name := range g.names {
		for _, dep := range g.deps[name] {
			if _, known := g.order[dep]; !known {
				errs = append(errs, apperrors.MissingDependency(name, dep))
			}
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return g, nil
}

// DetectCycles runs a three-color DFS over the graph. The first back-edge to
// a gray node is reported as a circular dependency naming the cycle path. A
// self-dependency is a one-node cycle and is found by the same traversal.
func (g *Graph) DetectCycles() error {
	colors := make(map[string]color, len(g.names))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		colors[name] = gray
		path = append(path, name)

		for _, dep := range g.deps[name] {
			switch colors[dep] {
			case gray:
				// Close the loop for the error message: trim the path to
				// start at the gray node, then append it again.
				start := slices.Index(path, dep)
				cycle := append(slices.Clone(path[start:]), dep)
				return apperrors.CircularDependency(cycle)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		colors[name] = black
		path = path[:len(path)-1]
		return nil
	}

	for _, name := range g.names {
		if colors[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Batches returns the topological execution order as a sequence of ready
// sets. Each batch holds the steps whose dependencies are fully satisfied by
// prior batches; steps within a batch are mutually independent. Batch
// membership follows declaration order so scheduling is deterministic for a
// fixed config.
func (g *Graph) Batches() ([][]string, error) {
	remaining := make(map[string]int, len(g.names)) // unsatisfied dependency count
	for _, name := range g.names {
		remaining[name] = len(g.deps[name])
	}

	done := make(map[string]bool, len(g.names))
	var batches [][]string
	emitted := 0

	for emitted < len(g.names) {
		var batch []string
		for _, name := range g.names {
			if done[name] || remaining[name] > 0 {
				continue
			}
			batch = append(batch, name)
		}
		if len(batch) == 0 {
			// Every remaining step waits on another remaining step.
			return nil, apperrors.CircularDependency(g.leftover(done))
		}

		for _, name := range batch {
			done[name] = true
		}
		for _, name := range g.names {
			if done[name] {
				continue
			}
			for _, dep := range g.deps[name] {
				if slices.Contains(batch, dep) {
					remaining[name]--
				}
			}
		}

		batches = append(batches, batch)
		emitted += len(batch)
	}
	return batches, nil
}

// Dependencies returns the dependency names of a step.
func (g *Graph) Dependencies(name string) []string {
	return g.deps[name]
}

// leftover lists the steps that could not be scheduled, in declaration order.
func (g *Graph) leftover(done map[string]bool) []string {
	var names []string
	for _, name := range g.names {
		if !done[name] {
			names = append(names, name)
		}
	}
	return names
}
