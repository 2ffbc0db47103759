package dependency

import (
	"fmt"
)

// Phases derives the phased initialization order using iterative peeling in
// the style of Kahn's algorithm: every node whose dependencies are all
// satisfied by earlier phases joins the next phase, until no node remains.
// Phase members are sorted by id, so identical input always yields
// identical phases.
//
// An unvalidated graph is validated first; structural errors surface here
// before any phase is produced.
func (g *Graph) Phases() ([][]NodeID, error) {
	if !g.validated {
		if err := g.Validate(); err != nil {
			return nil, err
		}
	}

	unsatisfied := make(map[NodeID]int, len(g.nodes))
	for id, node := range g.nodes {
		unsatisfied[id] = len(node.DependsOn)
	}

	var phases [][]NodeID
	for len(unsatisfied) > 0 {
		var batch []NodeID
		for _, id := range g.sortedIDs() {
			if count, pending := unsatisfied[id]; pending && count == 0 {
				batch = append(batch, id)
			}
		}

		if len(batch) == 0 {
			// Cannot happen on a validated graph; re-run detection for a
			// usable error if it somehow does.
			if err := g.detectCycles(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("phase computation stalled with %d unscheduled components", len(unsatisfied))
		}

		for _, id := range batch {
			delete(unsatisfied, id)
			for _, dependent := range g.Dependents(id) {
				if _, pending := unsatisfied[dependent]; pending {
					unsatisfied[dependent]--
				}
			}
		}

		phases = append(phases, batch)
	}

	return phases, nil
}
