package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"appctl/internal/adapter"
	"appctl/internal/bus"
	"appctl/internal/dependency"
	"appctl/internal/lifecycle"
	"appctl/internal/registry"
	"appctl/pkg/logging"
)

// DefaultStopTimeout bounds each component's Stop call during shutdown.
const DefaultStopTimeout = 10 * time.Second

// Config tunes an orchestrator.
type Config struct {
	// MaxConcurrent bounds intra-phase init parallelism. Zero means the
	// executor default.
	MaxConcurrent int

	// InitTimeout applies to components that declare no timeout of their
	// own. Zero means the executor default.
	InitTimeout time.Duration

	// StopTimeout bounds each component's Stop call during shutdown.
	// Zero means DefaultStopTimeout.
	StopTimeout time.Duration
}

// Orchestrator is the startup facade. Components are registered up front;
// Start resolves the dependency graph into phases and drives every
// component to a terminal state; Status stays readable afterwards,
// including after an abort. The registered set may change between runs but
// never during one.
type Orchestrator struct {
	registry    registry.Registry
	events      bus.EventBus
	store       lifecycle.StateStore
	executor    *lifecycle.Executor
	bridge      *adapter.Bridge
	coordinator *adapter.Coordinator
	cfg         Config

	mu         sync.Mutex
	running    bool
	lastReport *lifecycle.Report
}

// New creates a fully wired orchestrator with its own event bus, bridge,
// and coordinator. Nothing starts until Start is called.
func New(cfg Config) *Orchestrator {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}

	events := bus.NewEventBus()
	store := lifecycle.NewStateStore(events)
	executor := lifecycle.NewExecutor(store, events, lifecycle.NewPolicyEngine(), lifecycle.ExecutorConfig{
		MaxConcurrent:  cfg.MaxConcurrent,
		DefaultTimeout: cfg.InitTimeout,
	})

	return &Orchestrator{
		registry:    registry.NewRegistry(),
		events:      events,
		store:       store,
		executor:    executor,
		bridge:      adapter.NewBridge(events),
		coordinator: adapter.NewCoordinator(),
		cfg:         cfg,
	}
}

// Register adds a component descriptor. Registration is rejected while a
// startup run is in progress.
func (o *Orchestrator) Register(desc registry.Descriptor) error {
	return o.registry.Register(desc)
}

// MustRegister is Register for static wiring that cannot legitimately
// fail.
func (o *Orchestrator) MustRegister(desc registry.Descriptor) {
	if err := o.Register(desc); err != nil {
		panic(err)
	}
}

// Deregister removes a component between runs.
func (o *Orchestrator) Deregister(id string) error {
	return o.registry.Deregister(id)
}

// Plan validates the registered descriptors and returns the phase plan
// without starting anything. Structural problems, missing dependencies and
// cycles, surface here as errors.
func (o *Orchestrator) Plan() ([][]string, error) {
	descriptors := o.registry.GetAll()
	graph := dependency.FromDescriptors(descriptors)
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	phases, err := graph.Phases()
	if err != nil {
		return nil, err
	}
	return phasePlan(phases), nil
}

// Start executes one startup run. Structural graph errors return
// immediately with no report; once execution begins the returned report is
// always complete, and the error is a *lifecycle.StartupAbortedError when
// a critical component took the run down.
func (o *Orchestrator) Start(ctx context.Context) (*lifecycle.Report, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, registry.ErrStartupInProgress
	}
	o.running = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	o.registry.Freeze()
	defer o.registry.Thaw()

	descriptors := o.registry.GetAll()
	graph := dependency.FromDescriptors(descriptors)
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("component graph is invalid: %w", err)
	}

	phases, err := graph.Phases()
	if err != nil {
		return nil, fmt.Errorf("phase scheduling failed: %w", err)
	}

	logging.Info("Orchestrator", "Starting %d components in %d phases", len(descriptors), len(phases))

	report, runErr := o.executor.Run(ctx, descriptors, graph, phases)

	o.mu.Lock()
	o.lastReport = report
	o.mu.Unlock()

	return report, runErr
}

// Status snapshots the current state of every component. Usable at any
// time after Start returns, including after an abort.
func (o *Orchestrator) Status() map[string]lifecycle.State {
	states := make(map[string]lifecycle.State)
	for id, snapshot := range o.store.GetAllComponentStates() {
		states[id] = snapshot.State
	}
	return states
}

// GetComponentState returns the full snapshot for one component.
func (o *Orchestrator) GetComponentState(id string) (lifecycle.ComponentSnapshot, bool) {
	return o.store.GetComponentState(id)
}

// GetLastReport returns the report of the most recent run, nil before the
// first run.
func (o *Orchestrator) GetLastReport() *lifecycle.Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastReport
}

// GetEventBus exposes the bus components and adapters publish on.
func (o *Orchestrator) GetEventBus() bus.EventBus {
	return o.events
}

// GetBridge exposes the legacy/modern namespace bridge.
func (o *Orchestrator) GetBridge() *adapter.Bridge {
	return o.bridge
}

// GetCoordinator exposes the multi-adapter commit coordinator.
func (o *Orchestrator) GetCoordinator() *adapter.Coordinator {
	return o.coordinator
}

// Shutdown stops every component that came up, in reverse phase order,
// then detaches the bridge and closes the bus so no subscription outlives
// the orchestrator. The orchestrator is spent afterwards; build a new one
// for another cycle.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	report := o.lastReport
	o.mu.Unlock()

	o.events.Publish(bus.NewEvent(bus.EventTypeShutdownStarted, "orchestrator", nil))

	var shutdownErr error
	if report != nil {
		// Dependents stop before the components they depend on.
		for i := len(report.Phases) - 1; i >= 0; i-- {
			shutdownErr = multierr.Append(shutdownErr, o.stopPhase(ctx, report.Phases[i]))
		}
	}

	o.events.Publish(bus.NewEvent(bus.EventTypeShutdownCompleted, "orchestrator", nil))

	o.bridge.Detach()
	o.events.Close()

	if shutdownErr != nil {
		logging.Error("Orchestrator", shutdownErr, "Shutdown finished with errors")
	} else {
		logging.Info("Orchestrator", "Shutdown complete")
	}
	return shutdownErr
}

// stopPhase stops one phase's components concurrently and waits for all of
// them to finish.
func (o *Orchestrator) stopPhase(ctx context.Context, members []string) error {
	var wg sync.WaitGroup
	errs := make([]error, len(members))

	for i, id := range members {
		snapshot, ok := o.store.GetComponentState(id)
		if !ok || !snapshot.Available {
			continue
		}
		stopper, ok := snapshot.Instance.(registry.Stopper)
		if !ok {
			continue
		}

		wg.Add(1)
		go func(i int, id string, stopper registry.Stopper) {
			defer wg.Done()
			if err := o.stopInstance(ctx, id, stopper); err != nil {
				errs[i] = err
			} else {
				logging.Debug("Orchestrator", "Component %s stopped", id)
			}
		}(i, id, stopper)
	}
	wg.Wait()

	return multierr.Combine(errs...)
}

// stopInstance enforces the stop timeout externally, the same way the
// executor bounds init calls: a Stop that ignores its context is
// abandoned.
func (o *Orchestrator) stopInstance(ctx context.Context, id string, stopper registry.Stopper) error {
	stopCtx, cancel := context.WithTimeout(ctx, o.cfg.StopTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("panic: %v", rec)
			}
		}()
		done <- stopper.Stop(stopCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("component %q stop: %w", id, err)
		}
		return nil
	case <-stopCtx.Done():
		return fmt.Errorf("component %q stop timed out after %s", id, o.cfg.StopTimeout)
	}
}

// phasePlan converts node phases to plain string ids.
func phasePlan(phases [][]dependency.NodeID) [][]string {
	plan := make([][]string, len(phases))
	for i, phase := range phases {
		members := make([]string, len(phase))
		for j, id := range phase {
			members[j] = string(id)
		}
		plan[i] = members
	}
	return plan
}
