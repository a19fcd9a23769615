// Package planner enumerates candidate transformation paths through the
// type graph induced by the registered path tools. It is pure and
// deterministic: no LLM call, no I/O, no external state.
package planner

import (
	"fmt"
	"sort"

	"github.com/pr0ta9/genesis/internal/pathtool"
	"github.com/pr0ta9/genesis/internal/wftype"
)

// PathCandidate is an ordered chain of edges carrying content from the
// first edge's From type to the last edge's To type.
type PathCandidate struct {
	Edges []pathtool.Edge
}

// Length is the number of tool hops in the candidate.
func (p PathCandidate) Length() int { return len(p.Edges) }

// OutputType is the workflow type produced by the final edge.
func (p PathCandidate) OutputType() wftype.Type {
	if len(p.Edges) == 0 {
		return wftype.None
	}
	return p.Edges[len(p.Edges)-1].To
}

// preferredSum is the sum of each edge's tie-break weight, used only for
// ranking equal-length candidates.
func (p PathCandidate) preferredSum() float64 {
	var sum float64
	for _, e := range p.Edges {
		sum += e.Preferred
	}
	return sum
}

// name is the candidate's lexicographic sort key: its tool names joined
// in path order.
func (p PathCandidate) name() string {
	s := ""
	for i, e := range p.Edges {
		if i > 0 {
			s += ">"
		}
		s += e.Name
	}
	return s
}

// NoPathFound is returned when no candidate reaches a satisfying output
// type within the depth bound.
type NoPathFound struct {
	InputType       wftype.Type
	SatisfyingTypes []wftype.Type
	DepthBound      int
}

func (e *NoPathFound) Error() string {
	return fmt.Sprintf("planner: no path from %s to %v within depth %d", e.InputType, e.SatisfyingTypes, e.DepthBound)
}

// Options bounds the enumeration.
type Options struct {
	// MaxDepth caps the number of hops in any candidate. Zero means the
	// default of 4.
	MaxDepth int
	// MaxResults caps the number of candidates returned. Zero means the
	// default of 16.
	MaxResults int
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = 4
	}
	if o.MaxResults <= 0 {
		o.MaxResults = 16
	}
	return o
}

// Registry is the subset of *pathtool.ToolRegistry the planner needs,
// kept narrow so the planner can be tested against a fake adjacency
// list without constructing a full registry.
type Registry interface {
	EdgesFrom(from wftype.Type) []*pathtool.PathTool
}

// FindPaths enumerates every simple path (no type revisited within a
// single candidate) from inputType to any type in satisfying, depth-first,
// up to opts.MaxDepth hops, returning at most opts.MaxResults candidates
// sorted by (length ascending, preferred-score sum descending, name
// lexicographic).
//
// If satisfying is empty, any path reaching a content-bearing sink type
// (anything but NONE) of length <= MaxDepth is acceptable: the Classifier
// could not decide on an output type.
func FindPaths(reg Registry, inputType wftype.Type, satisfying []wftype.Type, opts Options) ([]PathCandidate, error) {
	opts = opts.withDefaults()
	wantAny := len(satisfying) == 0
	want := make(map[wftype.Type]bool, len(satisfying))
	for _, t := range satisfying {
		want[t] = true
	}

	var results []PathCandidate
	visited := map[wftype.Type]bool{inputType: true}
	var walk func(current wftype.Type, chain []pathtool.Edge)
	walk = func(current wftype.Type, chain []pathtool.Edge) {
		if len(results) >= opts.MaxResults*4 {
			// Stop exploring once we have comfortably more raw candidates
			// than we'll keep after ranking; the cap is applied for real below.
			return
		}
		if len(chain) > 0 {
			satisfied := wantAny && current != wftype.None
			if !wantAny {
				satisfied = want[current]
			}
			if satisfied {
				edges := make([]pathtool.Edge, len(chain))
				copy(edges, chain)
				results = append(results, PathCandidate{Edges: edges})
			}
		}
		if len(chain) >= opts.MaxDepth {
			return
		}
		for _, tool := range reg.EdgesFrom(current) {
			edge := pathtool.EdgeOf(tool)
			if visited[edge.To] {
				continue
			}
			visited[edge.To] = true
			walk(edge.To, append(chain, edge))
			visited[edge.To] = false
		}
	}
	walk(inputType, nil)

	if len(results) == 0 {
		return nil, &NoPathFound{InputType: inputType, SatisfyingTypes: satisfying, DepthBound: opts.MaxDepth}
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Length() != b.Length() {
			return a.Length() < b.Length()
		}
		if a.preferredSum() != b.preferredSum() {
			return a.preferredSum() > b.preferredSum()
		}
		return a.name() < b.name()
	})

	if len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}
	return results, nil
}
