// Package dependency builds and validates the directed graph of component
// dependencies and derives the phased initialization order from it.
//
// # Overview
//
// The graph is built once per startup run from the registered descriptors.
// Validate reports structural problems (a dependency on an unregistered id,
// or a cycle) before any component runs. Phases peels the validated graph
// into batches: phase 0 holds the components with no dependencies, and every
// later phase holds exactly the components whose dependencies all lie in
// earlier phases. Members of one phase are mutually independent and safe to
// initialize concurrently.
//
// # Determinism
//
// Phase contents and intra-phase order are sorted by id, so the same
// descriptor set always produces the same schedule. This keeps startup runs
// reproducible.
//
// Validation complexity: O(V + E) where V is vertices and E is edges.
package dependency
