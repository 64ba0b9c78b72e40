// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     graph
// Description: Dependency graph of service descriptors and the topological
//              sort producing the start order
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package graph

import (
	"sort"
	"strings"

	mserror "github.com/msto63/mSYS/foundation/core/error"
)

// Node is anything with a unique identity and named dependencies
type Node interface {
	ID() string
	Deps() []string
}

// Graph holds nodes in declaration order and their dependency edges
type Graph[T Node] struct {
	nodes      []T
	index      map[string]int
	dependents [][]int // dependents[i] lists nodes that depend on i
	inDegree   []int
}

// Build validates the nodes and constructs the graph. Duplicate identities
// and dependencies on unknown identities are rejected.
func Build[T Node](nodes []T) (*Graph[T], error) {
	g := &Graph[T]{
		nodes:      append([]T(nil), nodes...),
		index:      make(map[string]int, len(nodes)),
		dependents: make([][]int, len(nodes)),
		inDegree:   make([]int, len(nodes)),
	}

	for i, n := range g.nodes {
		if _, dup := g.index[n.ID()]; dup {
			return nil, mserror.New("service declared twice").
				WithCode(mserror.CodeDuplicateService).
				WithOperation("graph.build").
				WithDetail("service", n.ID())
		}
		g.index[n.ID()] = i
	}

	for i, n := range g.nodes {
		seen := make(map[int]bool)
		for _, dep := range n.Deps() {
			j, ok := g.index[dep]
			if !ok {
				return nil, mserror.New("dependency refers to an unknown service").
					WithCode(mserror.CodeUnknownDependency).
					WithOperation("graph.build").
					WithDetail("service", n.ID()).
					WithDetail("dependency", dep)
			}
			if seen[j] {
				continue
			}
			seen[j] = true
			g.dependents[j] = append(g.dependents[j], i)
			g.inDegree[i]++
		}
	}
	return g, nil
}

// Len returns the number of nodes
func (g *Graph[T]) Len() int {
	return len(g.nodes)
}

// Sort returns the nodes in dependency order. Among nodes that are ready
// at the same time the one declared first comes first, so the order is
// stable for a fixed input. A cycle fails the whole sort.
func (g *Graph[T]) Sort() ([]T, error) {
	inDegree := append([]int(nil), g.inDegree...)

	var ready []int
	for i, d := range inDegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]T, 0, len(g.nodes))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		order = append(order, g.nodes[i])

		for _, dep := range g.dependents[i] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = insertSorted(ready, dep)
			}
		}
	}

	if len(order) != len(g.nodes) {
		var stuck []string
		for i, d := range inDegree {
			if d > 0 {
				stuck = append(stuck, g.nodes[i].ID())
			}
		}
		return nil, mserror.New("dependency cycle detected").
			WithCode(mserror.CodeDependencyCycle).
			WithOperation("graph.sort").
			WithDetail("services", strings.Join(stuck, ","))
	}
	return order, nil
}

func insertSorted(s []int, v int) []int {
	pos := sort.SearchInts(s, v)
	s = append(s, 0)
	copy(s[pos+1:], s[pos:])
	s[pos] = v
	return s
}

// Order is a convenience for Build followed by Sort
func Order[T Node](nodes []T) ([]T, error) {
	g, err := Build(nodes)
	if err != nil {
		return nil, err
	}
	return g.Sort()
}
