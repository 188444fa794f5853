// Package workflow holds the declared deletion rules and the parent/child
// relation derived from their table names.
package workflow

import (
	"strings"

	"github.com/juju/errors"
)

const (
	// NoRootFound is returned when no node has an empty parent.
	NoRootFound = errors.ConstError("no root workflow found")
	// AmbiguousRoot is returned when more than one node has an empty parent.
	AmbiguousRoot = errors.ConstError("more than one root workflow")
)

// Node is one declared deletion rule.
type Node struct {
	// Table is the target table and the key used to match children and
	// file path mappings.
	Table string
	// Column is selected to obtain the affected identifiers.
	Column string
	// WhereClause is the column used in the WHERE predicate.
	WhereClause string
	// Params is bound as the predicate value of the root node only.
	Params string
	// Parent is the table of the logical parent; empty marks the root.
	Parent string
}

// IsRoot reports whether n has no parent.
func (n Node) IsRoot() bool {
	return n.Parent == ""
}

func (n Node) String() string {
	if n.IsRoot() {
		return n.Table
	}
	return n.Parent + "->" + n.Table
}

// Graph is an immutable set of nodes with exactly one root.
type Graph struct {
	nodes    []Node
	root     int
	children map[string][]int
}

// Build validates that nodes has exactly one root and indexes children by
// parent table, keeping declaration order.
func Build(nodes []Node) (*Graph, error) {
	g := &Graph{
		nodes:    append([]Node(nil), nodes...),
		root:     -1,
		children: make(map[string][]int),
	}
	var roots []string
	for i, n := range g.nodes {
		if n.IsRoot() {
			if g.root < 0 {
				g.root = i
			}
			roots = append(roots, n.Table)
			continue
		}
		g.children[n.Parent] = append(g.children[n.Parent], i)
	}
	switch {
	case len(roots) == 0:
		return nil, errors.Trace(NoRootFound)
	case len(roots) > 1:
		return nil, errors.Annotatef(AmbiguousRoot, "tables %s", strings.Join(roots, ", "))
	}
	return g, nil
}

// Root returns the single node with an empty parent.
func (g *Graph) Root() Node {
	return g.nodes[g.root]
}

// RootIndex returns the position of the root in Nodes.
func (g *Graph) RootIndex() int {
	return g.root
}

// Nodes returns every node in declaration order.
func (g *Graph) Nodes() []Node {
	return append([]Node(nil), g.nodes...)
}

// Node returns the node at position i of the declaration order.
func (g *Graph) Node(i int) Node {
	return g.nodes[i]
}

// Len returns the number of declared nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// ChildrenOf returns every node whose parent is table, in declaration order.
func (g *Graph) ChildrenOf(table string) []Node {
	idx := g.children[table]
	out := make([]Node, 0, len(idx))
	for _, i := range idx {
		out = append(out, g.nodes[i])
	}
	return out
}

// ChildIndexes is ChildrenOf returning positions instead of copies.
func (g *Graph) ChildIndexes(table string) []int {
	return g.children[table]
}

// Unreachable returns the nodes that can never be visited from the root
// because no chain of parents leads back to it.
func (g *Graph) Unreachable() []Node {
	seen := make([]bool, len(g.nodes))
	seen[g.root] = true
	queue := []int{g.root}
	visitedTables := map[string]bool{}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		table := g.nodes[i].Table
		if visitedTables[table] {
			continue
		}
		visitedTables[table] = true
		for _, c := range g.children[table] {
			if !seen[c] {
				seen[c] = true
				queue = append(queue, c)
			}
		}
	}
	var out []Node
	for i, ok := range seen {
		if !ok {
			out = append(out, g.nodes[i])
		}
	}
	return out
}
