package dependency

import (
	"fmt"
	"sort"
	"strings"
)

// MissingDependencyError reports a declared dependency whose id is not
// present in the graph.
type MissingDependencyError struct {
	ComponentID string
	Missing     string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("component %q depends on %q, which is not registered", e.ComponentID, e.Missing)
}

// CycleError reports a dependency cycle. Path holds every node on the
// cycle in order, with the starting node repeated at the end.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle detected: " + strings.Join(e.Path, " -> ")
}

// Validate checks the graph for structural errors. Missing dependencies are
// reported before any cycle check, so a typo'd id fails with the clearer
// error. On success the graph is marked validated; derived views recompute
// it only after further mutation.
func (g *Graph) Validate() error {
	for _, id := range g.sortedIDs() {
		for _, dep := range g.nodes[id].DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return &MissingDependencyError{ComponentID: string(id), Missing: string(dep)}
			}
		}
	}

	if err := g.detectCycles(); err != nil {
		return err
	}

	g.validated = true
	return nil
}

// detectCycles uses depth-first search with an on-path marker. The first
// node found already on the current path closes a cycle; the returned error
// names the full cycle.
// Time complexity: O(V + E) where V is vertices and E is edges.
func (g *Graph) detectCycles() error {
	visited := make(map[NodeID]bool, len(g.nodes))
	onPath := make(map[NodeID]bool, len(g.nodes))

	var dfs func(id NodeID, path []NodeID) error
	dfs = func(id NodeID, path []NodeID) error {
		visited[id] = true
		onPath[id] = true
		path = append(path, id)

		deps := make([]NodeID, len(g.nodes[id].DependsOn))
		copy(deps, g.nodes[id].DependsOn)
		sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })

		for _, dep := range deps {
			if !visited[dep] {
				if err := dfs(dep, path); err != nil {
					return err
				}
			} else if onPath[dep] {
				// Cycle found. Trim the path so the error names exactly
				// the nodes on the cycle.
				start := 0
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append(path[start:], dep)
				pathStr := make([]string, len(cycle))
				for i, n := range cycle {
					pathStr[i] = string(n)
				}
				return &CycleError{Path: pathStr}
			}
		}

		onPath[id] = false
		return nil
	}

	// Check all nodes so disconnected components are covered too.
	for _, id := range g.sortedIDs() {
		if !visited[id] {
			if err := dfs(id, nil); err != nil {
				return err
			}
		}
	}

	return nil
}
