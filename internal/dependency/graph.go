package dependency

import (
	"sort"

	"appctl/internal/registry"
)

// NodeID is a strongly-typed identifier for graph nodes. It matches the
// component id used by the descriptor registry.
type NodeID string

// Node is a component's position in the dependency graph. An edge to each
// entry of DependsOn means that entry must initialize first.
type Node struct {
	ID        NodeID
	DependsOn []NodeID
}

// Graph is a directed dependency graph over component ids. Build it with
// AddNode, then call Validate once; the graph is treated as immutable
// afterwards and all derived views (phases, dependent sets) are computed
// from the validated structure.
type Graph struct {
	nodes     map[NodeID]*Node
	validated bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[NodeID]*Node),
	}
}

// FromDescriptors builds a graph holding one node per descriptor.
func FromDescriptors(descriptors []registry.Descriptor) *Graph {
	graph := New()
	for _, desc := range descriptors {
		deps := make([]NodeID, len(desc.DependsOn))
		for i, dep := range desc.DependsOn {
			deps[i] = NodeID(dep)
		}
		graph.AddNode(Node{ID: NodeID(desc.ID), DependsOn: deps})
	}
	return graph
}

// AddNode adds a node to the graph. Adding a node with an existing id
// replaces it. Any previous validation result is discarded.
func (g *Graph) AddNode(node Node) {
	g.nodes[node.ID] = &node
	g.validated = false
}

// Get returns the node with the given id, or nil.
func (g *Graph) Get(id NodeID) *Node {
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// IDs returns all node ids sorted ascending.
func (g *Graph) IDs() []NodeID {
	return g.sortedIDs()
}

// Dependencies returns the direct dependencies of the given node.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	node := g.nodes[id]
	if node == nil {
		return nil
	}
	deps := make([]NodeID, len(node.DependsOn))
	copy(deps, node.DependsOn)
	return deps
}

// Dependents returns the nodes that directly depend on the given node,
// sorted ascending.
func (g *Graph) Dependents(id NodeID) []NodeID {
	var result []NodeID
	for _, candidate := range g.sortedIDs() {
		for _, dep := range g.nodes[candidate].DependsOn {
			if dep == id {
				result = append(result, candidate)
				break
			}
		}
	}
	return result
}

// TransitiveDependents returns every node that directly or indirectly
// depends on the given node, sorted ascending. The node itself is not
// included.
func (g *Graph) TransitiveDependents(id NodeID) []NodeID {
	visited := make(map[NodeID]bool)

	var walk func(current NodeID)
	walk = func(current NodeID) {
		for _, dependent := range g.Dependents(current) {
			if visited[dependent] {
				continue
			}
			visited[dependent] = true
			walk(dependent)
		}
	}
	walk(id)

	result := make([]NodeID, 0, len(visited))
	for dependent := range visited {
		result = append(result, dependent)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

func (g *Graph) sortedIDs() []NodeID {
	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
