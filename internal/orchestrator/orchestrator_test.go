package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"appctl/internal/adapter"
	"appctl/internal/bus"
	"appctl/internal/dependency"
	"appctl/internal/lifecycle"
	"appctl/internal/registry"
)

func returning(instance any) registry.InitFunc {
	return func(ctx context.Context, rt registry.Runtime) (any, error) {
		return instance, nil
	}
}

func failing(err error) registry.InitFunc {
	return func(ctx context.Context, rt registry.Runtime) (any, error) {
		return nil, err
	}
}

// stopRecorder is a component instance that records the order Stop calls
// arrive in.
type stopRecorder struct {
	id    string
	mu    *sync.Mutex
	order *[]string
	err   error
}

func (s *stopRecorder) Stop(ctx context.Context) error {
	s.mu.Lock()
	*s.order = append(*s.order, s.id)
	s.mu.Unlock()
	return s.err
}

func TestOrchestrator_StartAllReady(t *testing.T) {
	orch := New(Config{})
	orch.MustRegister(registry.Descriptor{ID: "database", Tier: registry.TierCritical, Init: returning("db")})
	orch.MustRegister(registry.Descriptor{ID: "api", Tier: registry.TierHigh, DependsOn: []string{"database"}, Init: returning("api")})

	report, err := orch.Start(context.Background())
	assert.NoError(t, err)
	assert.False(t, report.Aborted())
	assert.Equal(t, [][]string{{"database"}, {"api"}}, report.Phases)

	status := orch.Status()
	assert.Equal(t, lifecycle.StateReady, status["database"])
	assert.Equal(t, lifecycle.StateReady, status["api"])

	snapshot, ok := orch.GetComponentState("database")
	assert.True(t, ok)
	assert.Equal(t, "db", snapshot.Instance)

	assert.Same(t, report, orch.GetLastReport())
}

func TestOrchestrator_PlanDoesNotStart(t *testing.T) {
	orch := New(Config{})

	initCalled := false
	orch.MustRegister(registry.Descriptor{ID: "database", Tier: registry.TierCritical, Init: func(ctx context.Context, rt registry.Runtime) (any, error) {
		initCalled = true
		return "db", nil
	}})
	orch.MustRegister(registry.Descriptor{ID: "api", Tier: registry.TierHigh, DependsOn: []string{"database"}, Init: returning("api")})

	plan, err := orch.Plan()
	assert.NoError(t, err)
	assert.Equal(t, [][]string{{"database"}, {"api"}}, plan)
	assert.False(t, initCalled)
	assert.Empty(t, orch.Status())
}

func TestOrchestrator_MissingDependencySurfacesBeforeRun(t *testing.T) {
	orch := New(Config{})

	initCalled := false
	orch.MustRegister(registry.Descriptor{ID: "api", Tier: registry.TierHigh, DependsOn: []string{"database"}, Init: func(ctx context.Context, rt registry.Runtime) (any, error) {
		initCalled = true
		return "api", nil
	}})

	report, err := orch.Start(context.Background())
	assert.Nil(t, report)

	var missing *dependency.MissingDependencyError
	assert.ErrorAs(t, err, &missing)
	assert.Equal(t, "api", missing.ComponentID)
	assert.Equal(t, "database", missing.Missing)
	assert.False(t, initCalled, "no component may run when the graph is invalid")
}

func TestOrchestrator_CycleSurfacesBeforeRun(t *testing.T) {
	orch := New(Config{})
	orch.MustRegister(registry.Descriptor{ID: "a", Tier: registry.TierMedium, DependsOn: []string{"b"}, Init: returning("a")})
	orch.MustRegister(registry.Descriptor{ID: "b", Tier: registry.TierMedium, DependsOn: []string{"a"}, Init: returning("b")})

	report, err := orch.Start(context.Background())
	assert.Nil(t, report)

	var cycle *dependency.CycleError
	assert.ErrorAs(t, err, &cycle)
	assert.Contains(t, cycle.Path, "a")
	assert.Contains(t, cycle.Path, "b")
}

func TestOrchestrator_RegistrationRejectedMidRun(t *testing.T) {
	orch := New(Config{})

	var midRunErr error
	orch.MustRegister(registry.Descriptor{ID: "database", Tier: registry.TierCritical, Init: func(ctx context.Context, rt registry.Runtime) (any, error) {
		midRunErr = orch.Register(registry.Descriptor{ID: "late", Tier: registry.TierLow, Init: returning("late")})
		return "db", nil
	}})

	_, err := orch.Start(context.Background())
	assert.NoError(t, err)
	assert.ErrorIs(t, midRunErr, registry.ErrStartupInProgress)

	// The set thaws once the run returns.
	assert.NoError(t, orch.Register(registry.Descriptor{ID: "late", Tier: registry.TierLow, Init: returning("late")}))
}

func TestOrchestrator_OverlappingStartRejected(t *testing.T) {
	orch := New(Config{})

	entered := make(chan struct{})
	release := make(chan struct{})
	orch.MustRegister(registry.Descriptor{ID: "slow", Tier: registry.TierMedium, Init: func(ctx context.Context, rt registry.Runtime) (any, error) {
		close(entered)
		<-release
		return "slow", nil
	}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := orch.Start(context.Background())
		assert.NoError(t, err)
	}()

	<-entered
	_, err := orch.Start(context.Background())
	assert.ErrorIs(t, err, registry.ErrStartupInProgress)

	close(release)
	<-done
}

func TestOrchestrator_AbortKeepsStatusReadable(t *testing.T) {
	orch := New(Config{})
	orch.MustRegister(registry.Descriptor{ID: "database", Tier: registry.TierCritical, Init: failing(errors.New("connection refused"))})
	orch.MustRegister(registry.Descriptor{ID: "api", Tier: registry.TierHigh, DependsOn: []string{"database"}, Init: returning("api")})

	report, err := orch.Start(context.Background())

	var aborted *lifecycle.StartupAbortedError
	assert.ErrorAs(t, err, &aborted)
	assert.True(t, report.Aborted())

	status := orch.Status()
	assert.Equal(t, lifecycle.StateFailed, status["database"])
	assert.Equal(t, lifecycle.StatePending, status["api"])
}

func TestOrchestrator_RegistryChangesBetweenRuns(t *testing.T) {
	orch := New(Config{})
	orch.MustRegister(registry.Descriptor{ID: "database", Tier: registry.TierCritical, Init: returning("db")})

	report, err := orch.Start(context.Background())
	assert.NoError(t, err)
	assert.Len(t, report.Components, 1)

	orch.MustRegister(registry.Descriptor{ID: "cache", Tier: registry.TierLow, Init: returning("cache")})

	report, err = orch.Start(context.Background())
	assert.NoError(t, err)
	assert.Len(t, report.Components, 2)
	assert.Equal(t, lifecycle.StateReady, report.FinalStates["cache"])
}

func TestOrchestrator_ShutdownStopsInReverseOrder(t *testing.T) {
	orch := New(Config{})

	var mu sync.Mutex
	var order []string
	orch.MustRegister(registry.Descriptor{ID: "database", Tier: registry.TierCritical, Init: returning(&stopRecorder{id: "database", mu: &mu, order: &order})})
	orch.MustRegister(registry.Descriptor{ID: "api", Tier: registry.TierHigh, DependsOn: []string{"database"}, Init: returning(&stopRecorder{id: "api", mu: &mu, order: &order})})

	_, err := orch.Start(context.Background())
	assert.NoError(t, err)

	assert.NoError(t, orch.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"api", "database"}, order)
}

func TestOrchestrator_ShutdownReleasesSubscriptions(t *testing.T) {
	orch := New(Config{})
	orch.MustRegister(registry.Descriptor{ID: "database", Tier: registry.TierCritical, Init: returning("db")})

	orch.GetEventBus().SubscribeAll(func(bus.Event) {})

	_, err := orch.Start(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, orch.Shutdown(context.Background()))

	assert.Equal(t, 0, orch.GetEventBus().GetMetrics().ActiveSubscriptions)
}

// Repeated full cycles in one process leak nothing and interfere with
// nothing.
func TestOrchestrator_RepeatedCycles(t *testing.T) {
	for i := 0; i < 3; i++ {
		orch := New(Config{})
		orch.MustRegister(registry.Descriptor{ID: "database", Tier: registry.TierCritical, Init: returning("db")})
		orch.MustRegister(registry.Descriptor{ID: "api", Tier: registry.TierHigh, DependsOn: []string{"database"}, Init: returning("api")})

		report, err := orch.Start(context.Background())
		assert.NoError(t, err)
		assert.False(t, report.Aborted())
		assert.NoError(t, orch.Shutdown(context.Background()))
	}
}

func TestOrchestrator_ShutdownStopTimeout(t *testing.T) {
	orch := New(Config{StopTimeout: 50 * time.Millisecond})
	orch.MustRegister(registry.Descriptor{ID: "stuck", Tier: registry.TierMedium, Init: returning(&hangingStopper{})})

	_, err := orch.Start(context.Background())
	assert.NoError(t, err)

	start := time.Now()
	err = orch.Shutdown(context.Background())
	assert.ErrorContains(t, err, "stop timed out")
	assert.Less(t, time.Since(start), 2*time.Second)
}

type hangingStopper struct{}

func (h *hangingStopper) Stop(ctx context.Context) error {
	// Ignores its context entirely.
	time.Sleep(5 * time.Second)
	return nil
}

// A component publishes a legacy event during startup and a modern-side
// subscriber receives the translated counterpart.
func TestOrchestrator_BridgeTranslatesComponentEvents(t *testing.T) {
	orch := New(Config{})

	err := orch.GetBridge().Register(adapter.Passthrough("legacy.cache.warmed", "modern.cache.warmed", "cache"))
	assert.NoError(t, err)

	sub := orch.GetEventBus().SubscribeChannel(bus.FilterByType("modern.cache.warmed"), 8)
	defer sub.Close()

	orch.MustRegister(registry.Descriptor{ID: "cache", Tier: registry.TierLow, Init: func(ctx context.Context, rt registry.Runtime) (any, error) {
		rt.GetEventBus().Publish(bus.NewEvent("legacy.cache.warmed", "cache", "warm"))
		return "cache", nil
	}})

	_, err = orch.Start(context.Background())
	assert.NoError(t, err)

	select {
	case translated := <-sub.Events():
		assert.Equal(t, bus.EventType("modern.cache.warmed"), translated.Type)
		assert.Equal(t, "warm", translated.Payload)
	case <-time.After(time.Second):
		t.Fatal("translated event never arrived")
	}
}

func TestOrchestrator_CoordinatorCommit(t *testing.T) {
	orch := New(Config{})

	legacyUI := &countingAdapter{id: "legacy-ui"}
	modernUI := &countingAdapter{id: "modern-ui"}
	assert.NoError(t, orch.GetCoordinator().Register(legacyUI))
	assert.NoError(t, orch.GetCoordinator().Register(modernUI))

	err := orch.GetCoordinator().Commit(context.Background(), adapter.Transition{Name: "theme-change", Payload: "dark"})
	assert.NoError(t, err)
	assert.Equal(t, 1, legacyUI.applied)
	assert.Equal(t, 1, modernUI.applied)
}

type countingAdapter struct {
	id      string
	applied int
}

func (a *countingAdapter) ID() string                                        { return a.id }
func (a *countingAdapter) Propose(ctx context.Context, tx adapter.Transition) error { return nil }
func (a *countingAdapter) Apply(ctx context.Context, tx adapter.Transition) error {
	a.applied++
	return nil
}
func (a *countingAdapter) Discard(ctx context.Context, tx adapter.Transition) {}
