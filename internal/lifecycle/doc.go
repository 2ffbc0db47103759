// Package lifecycle executes a scheduled startup: it drives components
// through their states, applies the criticality policy to failures, and
// produces the final report.
//
// # Component States
//
// Components move through a small state machine:
//
//	Pending -> Initializing -> Ready
//	                        -> Degraded  (fallback succeeded, or a dependency failed)
//	                        -> Failed    (init and fallback exhausted)
//
// Ready and Degraded both count as available. A Degraded component that
// was rescued by its fallback has a usable instance; one that was merely
// marked Degraded because a dependency failed does not, and dependency
// lookups against it miss.
//
// # Failure Policy
//
// What a failure means depends on the component's criticality tier.
// A declared fallback is always attempted first, whatever the tier.
// After that, Critical failures abort the whole startup, High and below
// settle as Failed, and the executor marks dependents without fallbacks
// as Degraded so the run keeps going.
//
// # Execution
//
// The Executor walks the phase schedule produced by the dependency
// package. Components within a phase initialize concurrently, bounded by
// the configured parallelism; every init call runs under a timeout and
// with panic isolation, so a hung or crashing component settles as a
// state instead of wedging the run.
//
// # State Store
//
// The StateStore is the single source of truth for component states
// during and after a run. Every transition is published on the event bus,
// so observers can follow a startup live instead of polling.
package lifecycle
