package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"appctl/internal/bus"
	"appctl/internal/dependency"
	"appctl/internal/registry"
	"appctl/pkg/logging"
)

const (
	// DefaultInitTimeout bounds init and fallback calls of descriptors
	// that declare no timeout of their own.
	DefaultInitTimeout = 30 * time.Second

	// DefaultMaxConcurrent bounds how many components initialize at once
	// within a phase.
	DefaultMaxConcurrent = 8
)

// InitTimeoutError reports an init or fallback call that exceeded its
// deadline. The call's goroutine is abandoned; whatever it eventually
// returns is discarded.
type InitTimeoutError struct {
	ComponentID string
	Timeout     time.Duration
}

func (e *InitTimeoutError) Error() string {
	return fmt.Sprintf("component %q timed out after %s", e.ComponentID, e.Timeout)
}

// DependencyUnavailableError reports a component whose declared dependency
// did not come up available, so its init was never attempted.
type DependencyUnavailableError struct {
	ComponentID string
	Dependency  string
	State       State
}

func (e *DependencyUnavailableError) Error() string {
	return fmt.Sprintf("component %q requires %q, which is %s", e.ComponentID, e.Dependency, e.State)
}

// StartupAbortedError reports a run stopped by a critical component.
type StartupAbortedError struct {
	ComponentID string
	Cause       error
}

func (e *StartupAbortedError) Error() string {
	return fmt.Sprintf("startup aborted: critical component %q failed: %v", e.ComponentID, e.Cause)
}

func (e *StartupAbortedError) Unwrap() error {
	return e.Cause
}

// ExecutorConfig tunes a lifecycle executor.
type ExecutorConfig struct {
	// MaxConcurrent bounds intra-phase parallelism. Zero means
	// DefaultMaxConcurrent.
	MaxConcurrent int

	// DefaultTimeout applies to descriptors that declare no timeout.
	// Zero means DefaultInitTimeout.
	DefaultTimeout time.Duration
}

// Executor drives components through their lifecycle. Phases run strictly
// in order; components within a phase initialize concurrently under a
// bounded pool. Failures are ruled on by the policy engine, and every
// transition lands in the state store.
type Executor struct {
	store  StateStore
	events bus.EventBus
	policy PolicyEngine
	cfg    ExecutorConfig
}

// NewExecutor creates an executor over the given store, bus, and policy.
func NewExecutor(store StateStore, events bus.EventBus, policy PolicyEngine, cfg ExecutorConfig) *Executor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultInitTimeout
	}
	return &Executor{
		store:  store,
		events: events,
		policy: policy,
		cfg:    cfg,
	}
}

// run carries the bookkeeping of one startup pass.
type run struct {
	id          string
	descriptors map[string]registry.Descriptor
	graph       *dependency.Graph
	startedAt   time.Time

	mu          sync.Mutex
	failed      []string
	abortedAt   string
	abortCause  error
	cancelPhase context.CancelFunc
}

func (r *run) recordFailure(id string) {
	r.mu.Lock()
	r.failed = append(r.failed, id)
	r.mu.Unlock()
}

// recordAbort notes the first critical failure and cancels the rest of the
// current phase. Later aborts lose.
func (r *run) recordAbort(id string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.abortedAt != "" {
		return
	}
	r.abortedAt = id
	r.abortCause = cause
	if r.cancelPhase != nil {
		r.cancelPhase()
	}
}

func (r *run) aborted() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.abortedAt, r.abortCause
}

// takeFailed drains the components that failed during the current phase.
func (r *run) takeFailed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	failed := r.failed
	r.failed = nil
	return failed
}

// Run executes the phase plan against the given descriptors. The returned
// report is complete even when the run aborts; the error is then a
// *StartupAbortedError.
func (e *Executor) Run(ctx context.Context, descriptors []registry.Descriptor, graph *dependency.Graph, phases [][]dependency.NodeID) (*Report, error) {
	r := &run{
		id:          bus.GenerateCorrelationID(),
		descriptors: make(map[string]registry.Descriptor, len(descriptors)),
		graph:       graph,
		startedAt:   time.Now(),
	}
	for _, desc := range descriptors {
		r.descriptors[desc.ID] = desc
	}

	e.store.ClearAll()
	for _, desc := range descriptors {
		e.store.SetComponentState(ComponentUpdate{
			ComponentID: desc.ID,
			Tier:        desc.Tier,
			State:       StatePending,
			Correlation: r.id,
		})
	}

	plan := phasePlan(phases)
	e.publish(bus.EventTypeStartupStarted, bus.StartupResult{RunID: r.id}, r.id)
	logging.Info("Executor", "Starting %d components across %d phases (run %s)", len(descriptors), len(phases), r.id)

	var interrupted error
	for i, phase := range phases {
		if err := ctx.Err(); err != nil {
			interrupted = err
			break
		}

		e.publish(bus.EventTypePhaseStarted, bus.PhaseTransition{RunID: r.id, Index: i, Members: plan[i]}, r.id)
		logging.Debug("Executor", "Phase %d starting: %v", i, plan[i])

		e.runPhase(ctx, r, phase)

		if abortedAt, _ := r.aborted(); abortedAt != "" {
			// Later phases never start; their components stay Pending.
			break
		}

		for _, failedID := range r.takeFailed() {
			e.cascadeFrom(r, failedID)
		}
		e.publish(bus.EventTypePhaseCompleted, bus.PhaseTransition{RunID: r.id, Index: i, Members: plan[i]}, r.id)
	}

	report := e.buildReport(r, plan)
	if report.Aborted() {
		_, cause := r.aborted()
		e.publish(bus.EventTypeStartupAborted, bus.StartupResult{
			RunID:     r.id,
			Aborted:   true,
			AbortedAt: report.AbortedAt,
			Elapsed:   report.Elapsed,
		}, r.id)
		logging.Error("Executor", cause, "Startup aborted by %s after %s", report.AbortedAt, report.Elapsed)
		return report, &StartupAbortedError{ComponentID: report.AbortedAt, Cause: cause}
	}

	e.publish(bus.EventTypeStartupCompleted, bus.StartupResult{RunID: r.id, Elapsed: report.Elapsed}, r.id)
	logging.Info("Executor", "Startup completed in %s", report.Elapsed)

	if interrupted != nil {
		return report, fmt.Errorf("startup interrupted: %w", interrupted)
	}
	return report, nil
}

// runPhase initializes every member of one phase and waits for all of them
// to settle.
func (e *Executor) runPhase(ctx context.Context, r *run, phase []dependency.NodeID) {
	phaseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.cancelPhase = cancel
	r.mu.Unlock()

	var grp errgroup.Group
	grp.SetLimit(e.cfg.MaxConcurrent)

	for _, nodeID := range phase {
		desc, ok := r.descriptors[string(nodeID)]
		if !ok {
			continue
		}
		grp.Go(func() error {
			e.startComponent(phaseCtx, r, desc)
			return nil
		})
	}
	grp.Wait()

	r.mu.Lock()
	r.cancelPhase = nil
	r.mu.Unlock()
}

// startComponent runs one component through init, policy, and fallback,
// settling it in a terminal state.
func (e *Executor) startComponent(ctx context.Context, r *run, desc registry.Descriptor) {
	if snapshot, ok := e.store.GetComponentState(desc.ID); ok && snapshot.State.Terminal() {
		// Already settled, e.g. degraded by an upstream failure.
		return
	}

	began := time.Now()
	e.store.SetComponentState(ComponentUpdate{
		ComponentID: desc.ID,
		Tier:        desc.Tier,
		State:       StateInitializing,
		Correlation: r.id,
	})

	rt := e.runtimeFor(desc)

	var (
		instance any
		outcome  Outcome
		cause    error
	)
	if unavailable := e.unavailableDependency(desc); unavailable != nil {
		outcome = OutcomeSkipped
		cause = unavailable
	} else {
		instance, cause = e.invoke(ctx, desc.ID, e.timeoutFor(desc), func(callCtx context.Context) (any, error) {
			return desc.Init(callCtx, rt)
		})
		outcome = classify(cause)
	}

	decision := e.policy.Resolve(desc, outcome)
	usedFallback := false
	if decision.AttemptFallback {
		logging.Warn("Executor", "Component %s init did not complete (%s), attempting fallback: %v", desc.ID, outcome, cause)
		fbInstance, fbErr := e.invoke(ctx, desc.ID, e.timeoutFor(desc), func(callCtx context.Context) (any, error) {
			return desc.Fallback(callCtx, rt, cause)
		})
		decision = e.policy.ResolveFallback(desc, fbErr)
		if fbErr == nil {
			instance = fbInstance
			usedFallback = true
		} else {
			cause = fmt.Errorf("%v; fallback also failed: %w", cause, fbErr)
		}
	}

	e.settle(r, desc, decision, instance, cause, usedFallback, time.Since(began))
}

// settle records a component's terminal state and rules on the run's fate.
func (e *Executor) settle(r *run, desc registry.Descriptor, decision Decision, instance any, cause error, usedFallback bool, elapsed time.Duration) {
	update := ComponentUpdate{
		ComponentID:  desc.ID,
		Tier:         desc.Tier,
		State:        decision.State,
		Duration:     elapsed,
		UsedFallback: usedFallback,
		Correlation:  r.id,
	}

	switch decision.State {
	case StateReady:
		update.Instance = instance
		update.Available = true
	case StateDegraded:
		update.Instance = instance
		update.Available = true
		update.Reason = "running on fallback"
		update.Err = cause
	case StateFailed:
		update.Reason = "init failed"
		update.Err = cause
	}

	e.store.SetComponentState(update)

	switch decision.State {
	case StateReady:
		logging.Debug("Executor", "Component %s ready in %s", desc.ID, elapsed.Round(time.Millisecond))
	case StateDegraded:
		logging.Warn("Executor", "Component %s degraded: %v", desc.ID, cause)
	case StateFailed:
		logging.Error("Executor", cause, "Component %s failed", desc.ID)
		r.recordFailure(desc.ID)
		if decision.Abort {
			r.recordAbort(desc.ID, cause)
		}
	}
}

// cascadeFrom degrades the transitive dependents of a failed component.
// Dependents that declare a fallback are left alone: they will attempt it
// in their own phase once the missing dependency surfaces. The walk
// continues through every component it marks.
func (e *Executor) cascadeFrom(r *run, failedID string) {
	queue := []string{failedID}
	seen := map[string]bool{failedID: true}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, node := range r.graph.Dependents(dependency.NodeID(current)) {
			id := string(node)
			if seen[id] {
				continue
			}
			seen[id] = true

			desc, ok := r.descriptors[id]
			if !ok {
				continue
			}
			if desc.HasFallback() {
				continue
			}
			if snapshot, ok := e.store.GetComponentState(id); ok && snapshot.State.Terminal() {
				continue
			}

			e.store.SetComponentState(ComponentUpdate{
				ComponentID: id,
				Tier:        desc.Tier,
				State:       StateDegraded,
				Reason:      fmt.Sprintf("dependency %s failed", failedID),
				Correlation: r.id,
			})
			logging.Warn("Executor", "Component %s degraded without starting: dependency %s failed", id, failedID)
			queue = append(queue, id)
		}
	}
}

// unavailableDependency returns an error for the first declared dependency
// that is not available, ids checked in sorted order so the pick is
// deterministic.
func (e *Executor) unavailableDependency(desc registry.Descriptor) error {
	deps := append([]string(nil), desc.DependsOn...)
	sort.Strings(deps)

	for _, dep := range deps {
		snapshot, ok := e.store.GetComponentState(dep)
		if !ok || !snapshot.Available {
			state := StatePending
			if ok {
				state = snapshot.State
			}
			return &DependencyUnavailableError{ComponentID: desc.ID, Dependency: dep, State: state}
		}
	}
	return nil
}

// invoke runs call under a deadline the executor enforces from the
// outside: a call that ignores its context is abandoned, not waited for.
// Panics inside the call are turned into errors.
func (e *Executor) invoke(ctx context.Context, id string, timeout time.Duration, call func(context.Context) (any, error)) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		instance any
		err      error
	}
	results := make(chan result, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				results <- result{err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		instance, err := call(callCtx)
		results <- result{instance: instance, err: err}
	}()

	select {
	case res := <-results:
		return res.instance, res.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("canceled: %w", err)
		}
		return nil, &InitTimeoutError{ComponentID: id, Timeout: timeout}
	}
}

// classify maps an invoke error to an outcome for the policy engine.
func classify(err error) Outcome {
	if err == nil {
		return OutcomeReady
	}
	var timeout *InitTimeoutError
	if errors.As(err, &timeout) {
		return OutcomeTimedOut
	}
	return OutcomeErrored
}

func (e *Executor) timeoutFor(desc registry.Descriptor) time.Duration {
	if desc.Timeout > 0 {
		return desc.Timeout
	}
	return e.cfg.DefaultTimeout
}

// runtimeFor builds the restricted view a component sees during init:
// only declared dependencies resolve.
func (e *Executor) runtimeFor(desc registry.Descriptor) registry.Runtime {
	declared := make(map[string]bool, len(desc.DependsOn))
	for _, dep := range desc.DependsOn {
		declared[dep] = true
	}
	return &componentRuntime{
		declared: declared,
		store:    e.store,
		events:   e.events,
	}
}

func (e *Executor) buildReport(r *run, plan [][]string) *Report {
	abortedAt, _ := r.aborted()

	report := &Report{
		RunID:       r.id,
		StartedAt:   r.startedAt,
		Elapsed:     time.Since(r.startedAt),
		Phases:      plan,
		FinalStates: make(map[string]State, len(r.descriptors)),
		Components:  make(map[string]ComponentResult, len(r.descriptors)),
		AbortedAt:   abortedAt,
	}

	for id, desc := range r.descriptors {
		snapshot, ok := e.store.GetComponentState(id)
		if !ok {
			snapshot = ComponentSnapshot{ID: id, Tier: desc.Tier, State: StatePending}
		}

		result := ComponentResult{
			ID:           id,
			Tier:         desc.Tier,
			State:        snapshot.State,
			Reason:       snapshot.Reason,
			UsedFallback: snapshot.UsedFallback,
			Duration:     snapshot.Duration,
		}
		if snapshot.Err != nil {
			result.Error = snapshot.Err.Error()
		}

		report.FinalStates[id] = snapshot.State
		report.Components[id] = result
	}
	return report
}

func (e *Executor) publish(eventType bus.EventType, payload any, correlation string) {
	if e.events == nil {
		return
	}
	e.events.Publish(bus.NewEvent(eventType, "executor", payload).WithCorrelation(correlation))
}

// phasePlan converts node phases to plain string ids for reporting.
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

// componentRuntime is the view handed to init and fallback functions.
type componentRuntime struct {
	declared map[string]bool
	store    StateStore
	events   bus.EventBus
}

// GetInstance resolves a declared dependency's instance. Undeclared ids
// never resolve, even when the component exists and is available.
func (rt *componentRuntime) GetInstance(id string) (any, bool) {
	if !rt.declared[id] {
		return nil, false
	}
	return rt.store.GetInstance(id)
}

// GetEventBus returns the shared event bus.
func (rt *componentRuntime) GetEventBus() bus.EventBus {
	return rt.events
}
