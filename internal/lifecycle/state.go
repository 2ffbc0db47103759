package lifecycle

import (
	"sync"
	"time"

	"appctl/internal/bus"
	"appctl/internal/registry"
)

// State represents the current lifecycle state of a component
type State string

const (
	StatePending      State = "Pending"
	StateInitializing State = "Initializing"
	StateReady        State = "Ready"
	StateDegraded     State = "Degraded"
	StateFailed       State = "Failed"
)

// String makes State satisfy the fmt.Stringer interface.
func (s State) String() string {
	return string(s)
}

// Available reports whether dependents may treat the component as usable.
// Ready and Degraded both count; Failed blocks dependents.
func (s State) Available() bool {
	return s == StateReady || s == StateDegraded
}

// Terminal reports whether the component reached its final state for this
// run.
func (s State) Terminal() bool {
	return s == StateReady || s == StateDegraded || s == StateFailed
}

// stateEventType maps a state to the event type announcing the transition.
func stateEventType(state State) bus.EventType {
	switch state {
	case StateInitializing:
		return bus.EventTypeComponentInitializing
	case StateReady:
		return bus.EventTypeComponentReady
	case StateDegraded:
		return bus.EventTypeComponentDegraded
	case StateFailed:
		return bus.EventTypeComponentFailed
	default:
		return bus.EventTypeComponentInitializing
	}
}

// ComponentSnapshot is a complete snapshot of a component's state at a
// point in time.
type ComponentSnapshot struct {
	ID           string
	Tier         registry.Tier
	State        State
	Instance     any
	Err          error
	Reason       string
	UsedFallback bool
	// Available is true only when the component actually initialized
	// (directly or via fallback). Components degraded because an upstream
	// dependency failed never initialized and stay unavailable.
	Available   bool
	Duration    time.Duration
	LastUpdated time.Time
	Correlation string
}

// ComponentUpdate carries a state change into the store.
type ComponentUpdate struct {
	Timestamp    time.Time
	ComponentID  string
	Tier         registry.Tier
	State        State
	Instance     any
	Err          error
	Reason       string
	UsedFallback bool
	Available    bool
	Duration     time.Duration
	Correlation  string
}

// StateStore is the centralized record of component lifecycle state. Every
// state change is published on the event bus as a component.* event.
type StateStore interface {
	// GetComponentState returns the current snapshot of a component
	GetComponentState(id string) (ComponentSnapshot, bool)

	// SetComponentState applies an update, returning true if the state
	// changed. Changes are announced on the event bus.
	SetComponentState(update ComponentUpdate) bool

	// GetAllComponentStates returns all current component snapshots
	GetAllComponentStates() map[string]ComponentSnapshot

	// GetComponentsByState returns all components in a specific state
	GetComponentsByState(state State) map[string]ComponentSnapshot

	// GetInstance returns the instance of an available component
	GetInstance(id string) (any, bool)

	// ClearAll removes all components from the store
	ClearAll()

	// GetMetrics returns state store metrics
	GetMetrics() StateStoreMetrics
}

// StateStoreMetrics tracks state store usage
type StateStoreMetrics struct {
	TotalComponents   int
	StateChanges      int64
	LastStateChange   time.Time
	ComponentsByState map[State]int
	ComponentsByTier  map[registry.Tier]int
}

// DefaultStateStore is the default implementation of StateStore
type DefaultStateStore struct {
	states  map[string]ComponentSnapshot
	events  bus.EventBus
	metrics StateStoreMetrics
	mu      sync.RWMutex
}

// NewStateStore creates a state store that announces changes on the given
// bus. A nil bus keeps the store silent.
func NewStateStore(events bus.EventBus) StateStore {
	return &DefaultStateStore{
		states: make(map[string]ComponentSnapshot),
		events: events,
		metrics: StateStoreMetrics{
			ComponentsByState: make(map[State]int),
			ComponentsByTier:  make(map[registry.Tier]int),
		},
	}
}

// GetComponentState returns the current snapshot of a component
func (s *DefaultStateStore) GetComponentState(id string) (ComponentSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, exists := s.states[id]
	return snapshot, exists
}

// SetComponentState applies an update, returning true if the state changed
func (s *DefaultStateStore) SetComponentState(update ComponentUpdate) bool {
	s.mu.Lock()

	oldSnapshot, existed := s.states[update.ComponentID]
	oldState := StatePending
	if existed {
		oldState = oldSnapshot.State
	}

	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}

	newSnapshot := ComponentSnapshot{
		ID:           update.ComponentID,
		Tier:         update.Tier,
		State:        update.State,
		Instance:     update.Instance,
		Err:          update.Err,
		Reason:       update.Reason,
		UsedFallback: update.UsedFallback,
		Available:    update.Available,
		Duration:     update.Duration,
		LastUpdated:  update.Timestamp,
		Correlation:  update.Correlation,
	}

	stateChanged := !existed || oldState != update.State
	s.states[update.ComponentID] = newSnapshot
	s.updateMetrics(oldState, newSnapshot, existed, stateChanged)
	s.mu.Unlock()

	// Announce outside the lock: a subscriber reading back through the
	// store must not deadlock.
	if stateChanged && existed && s.events != nil {
		s.publishTransition(oldState, newSnapshot)
	}

	return stateChanged
}

// GetAllComponentStates returns all current component snapshots
func (s *DefaultStateStore) GetAllComponentStates() map[string]ComponentSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]ComponentSnapshot, len(s.states))
	for id, snapshot := range s.states {
		result[id] = snapshot
	}
	return result
}

// GetComponentsByState returns all components in a specific state
func (s *DefaultStateStore) GetComponentsByState(state State) map[string]ComponentSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]ComponentSnapshot)
	for id, snapshot := range s.states {
		if snapshot.State == state {
			result[id] = snapshot
		}
	}
	return result
}

// GetInstance returns the instance of an available component. Components
// that never initialized (Failed, Pending, or degraded by an upstream
// failure) have no instance to hand out.
func (s *DefaultStateStore) GetInstance(id string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, exists := s.states[id]
	if !exists || !snapshot.Available {
		return nil, false
	}
	return snapshot.Instance, true
}

// ClearAll removes all components from the store
func (s *DefaultStateStore) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states = make(map[string]ComponentSnapshot)
	s.metrics.TotalComponents = 0
	s.metrics.ComponentsByState = make(map[State]int)
	s.metrics.ComponentsByTier = make(map[registry.Tier]int)
}

// GetMetrics returns state store metrics
func (s *DefaultStateStore) GetMetrics() StateStoreMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Return a copy to prevent external modification
	metrics := s.metrics
	metrics.ComponentsByState = make(map[State]int)
	metrics.ComponentsByTier = make(map[registry.Tier]int)

	for k, v := range s.metrics.ComponentsByState {
		metrics.ComponentsByState[k] = v
	}
	for k, v := range s.metrics.ComponentsByTier {
		metrics.ComponentsByTier[k] = v
	}

	return metrics
}

// updateMetrics updates internal metrics after a state change. Caller holds
// the write lock.
func (s *DefaultStateStore) updateMetrics(oldState State, newSnapshot ComponentSnapshot, existed, stateChanged bool) {
	if !existed {
		s.metrics.TotalComponents++
		s.metrics.ComponentsByTier[newSnapshot.Tier]++
	} else if stateChanged {
		s.metrics.ComponentsByState[oldState]--
		if s.metrics.ComponentsByState[oldState] == 0 {
			delete(s.metrics.ComponentsByState, oldState)
		}
	}

	if stateChanged {
		s.metrics.ComponentsByState[newSnapshot.State]++
		s.metrics.StateChanges++
		s.metrics.LastStateChange = time.Now()
	}
}

func (s *DefaultStateStore) publishTransition(oldState State, snapshot ComponentSnapshot) {
	payload := bus.ComponentTransition{
		ComponentID: snapshot.ID,
		OldState:    string(oldState),
		NewState:    string(snapshot.State),
		Reason:      snapshot.Reason,
	}
	if snapshot.Err != nil {
		payload.Error = snapshot.Err.Error()
	}

	event := bus.NewEvent(stateEventType(snapshot.State), snapshot.ID, payload)
	if snapshot.Correlation != "" {
		event = event.WithCorrelation(snapshot.Correlation)
	}
	s.events.Publish(event)
}
