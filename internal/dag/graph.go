// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dag runs a validated task graph with bounded concurrency. A task
// becomes ready as soon as its dependencies allow; independent subgraphs
// never wait on each other.
package dag

import (
	"context"
)

// NodeID identifies a node by the unit of work it belongs to and its branch
// within that unit. Run-level nodes have an empty Unit.
type NodeID struct {
	Unit   string
	Branch string
}

func (id NodeID) String() string {
	if id.Unit == "" {
		return id.Branch
	}
	return id.Unit + "/" + id.Branch
}

// Task is the work done by a node. A non-nil error fails the node.
type Task func(ctx context.Context) error

// Node is one task of the graph.
type Node struct {
	ID   NodeID
	Task Task

	// Barrier nodes run once every dependency is terminal, whether it
	// completed, failed or was skipped. Other nodes need every dependency
	// completed.
	Barrier bool
}

// Edge says To depends on From.
type Edge struct {
	From NodeID
	To   NodeID
}

// Graph is an immutable validated DAG. Node order is insertion order, which
// is also the dispatch order among nodes ready at the same time.
type Graph struct {
	nodes    []Node
	index    map[NodeID]int
	outgoing [][]int
	incoming [][]int
}

// NewGraph validates nodes and edges. It rejects an empty graph, nodes
// without a task, duplicate nodes, edges to unknown nodes, duplicate edges,
// self-loops and cycles.
func NewGraph(nodes []Node, edges []Edge) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, invalidf("no nodes")
	}

	g := &Graph{
		nodes:    make([]Node, 0, len(nodes)),
		index:    make(map[NodeID]int, len(nodes)),
		outgoing: make([][]int, len(nodes)),
		incoming: make([][]int, len(nodes)),
	}
	for _, n := range nodes {
		if n.ID.Branch == "" {
			return nil, invalidf("node %q has no branch name", n.ID)
		}
		if n.Task == nil {
			return nil, invalidf("node %q has no task", n.ID)
		}
		if _, dup := g.index[n.ID]; dup {
			return nil, invalidf("duplicate node %q", n.ID)
		}
		g.index[n.ID] = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}

	seen := make(map[Edge]bool, len(edges))
	for _, e := range edges {
		from, okFrom := g.index[e.From]
		to, okTo := g.index[e.To]
		switch {
		case !okFrom:
			return nil, invalidf("edge references unknown node %q", e.From)
		case !okTo:
			return nil, invalidf("edge references unknown node %q", e.To)
		case from == to:
			return nil, invalidf("self-loop on %q", e.From)
		case seen[e]:
			return nil, invalidf("duplicate edge %q -> %q", e.From, e.To)
		}
		seen[e] = true
		g.outgoing[from] = append(g.outgoing[from], to)
		g.incoming[to] = append(g.incoming[to], from)
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// checkAcyclic runs Kahn's algorithm; nodes never released are on a cycle
// or downstream of one.
func (g *Graph) checkAcyclic() error {
	indeg := make([]int, len(g.nodes))
	for i := range g.nodes {
		indeg[i] = len(g.incoming[i])
	}
	queue := make([]int, 0, len(g.nodes))
	for i, d := range indeg {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	released := 0
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		released++
		for _, v := range g.outgoing[u] {
			indeg[v]--
			if indeg[v] == 0 {
				queue = append(queue, v)
			}
		}
	}
	if released == len(g.nodes) {
		return nil
	}
	var stuck []NodeID
	for i, d := range indeg {
		if d > 0 {
			stuck = append(stuck, g.nodes[i].ID)
		}
	}
	return cycleError(stuck)
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns the node IDs in insertion order.
func (g *Graph) Nodes() []NodeID {
	ids := make([]NodeID, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.ID
	}
	return ids
}

// Dependencies returns the IDs id depends on.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	deps := make([]NodeID, len(g.incoming[i]))
	for k, j := range g.incoming[i] {
		deps[k] = g.nodes[j].ID
	}
	return deps
}
