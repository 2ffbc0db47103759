// Package orchestrator provides the startup orchestration facade for
// appctl.
//
// The orchestrator bootstraps a modular application from declared component
// descriptors. It resolves a deadlock-free initialization order from the
// dependency graph, executes it phase by phase with bounded intra-phase
// concurrency, applies the per-component criticality policy when an init
// fails, and reports the outcome of every component whether the run
// completes or aborts.
//
// # Architecture
//
// The orchestrator composes the lower layers without adding semantics of
// its own:
//
//   - registry: holds the component descriptors and freezes them for the
//     duration of a run
//   - dependency: validates the graph (missing references, cycles) and
//     peels it into phases
//   - lifecycle: drives init/fallback calls, tracks state, and builds the
//     startup report
//   - bus: carries component and startup events to any subscriber
//   - adapter: bridges the legacy and modern event namespaces and commits
//     multi-adapter transitions atomically
//
// # Criticality
//
// A component's tier decides what its failure means: Critical aborts the
// run, High falls back or fails alone, Medium and Low never threaten the
// run. Failed components degrade their transitive dependents unless those
// declare fallbacks of their own.
//
// # Usage Example
//
//	orch := orchestrator.New(orchestrator.Config{})
//	orch.MustRegister(registry.Descriptor{
//	    ID:   "database",
//	    Tier: registry.TierCritical,
//	    Init: openDatabase,
//	})
//	orch.MustRegister(registry.Descriptor{
//	    ID:        "api",
//	    DependsOn: []string{"database"},
//	    Tier:      registry.TierHigh,
//	    Init:      startAPI,
//	})
//
//	report, err := orch.Start(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(report.Render())
//	defer orch.Shutdown(ctx)
//
// # Lifecycle Scope
//
// One orchestrator owns one bus for its whole life. Start may be called
// again after a previous run returns (the descriptor set may change in
// between); Shutdown stops components in reverse phase order, releases
// every subscription, and spends the orchestrator.
package orchestrator
