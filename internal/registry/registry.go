package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"appctl/pkg/logging"
)

// ErrStartupInProgress is returned when the descriptor set is mutated while
// a startup run has it frozen.
var ErrStartupInProgress = errors.New("startup run in progress")

// Registry manages the declared component descriptors
type Registry interface {
	// Register adds a descriptor to the registry
	Register(desc Descriptor) error

	// Deregister removes a descriptor from the registry
	Deregister(id string) error

	// Get returns a descriptor by id
	Get(id string) (Descriptor, bool)

	// GetAll returns all registered descriptors sorted by id
	GetAll() []Descriptor

	// GetByTier returns all descriptors of a specific tier sorted by id
	GetByTier(tier Tier) []Descriptor

	// Freeze rejects further mutation until Thaw is called. A startup run
	// freezes the set for its whole duration.
	Freeze()

	// Thaw allows mutation again after a startup run finished
	Thaw()
}

// DefaultRegistry is the default implementation of Registry
type DefaultRegistry struct {
	descriptors map[string]Descriptor
	frozen      bool
	mu          sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() Registry {
	return &DefaultRegistry{
		descriptors: make(map[string]Descriptor),
	}
}

// Register adds a descriptor to the registry
func (r *DefaultRegistry) Register(desc Descriptor) error {
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("invalid descriptor: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("cannot register %q: %w", desc.ID, ErrStartupInProgress)
	}
	if _, exists := r.descriptors[desc.ID]; exists {
		return fmt.Errorf("component %q is already registered", desc.ID)
	}

	r.descriptors[desc.ID] = desc
	logging.Debug("Registry", "Registered component %s (tier %s, %d dependencies)", desc.ID, desc.Tier, len(desc.DependsOn))
	return nil
}

// Deregister removes a descriptor from the registry
func (r *DefaultRegistry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("cannot deregister %q: %w", id, ErrStartupInProgress)
	}
	if _, exists := r.descriptors[id]; !exists {
		return fmt.Errorf("component %q is not registered", id)
	}

	delete(r.descriptors, id)
	logging.Debug("Registry", "Deregistered component %s", id)
	return nil
}

// Get returns a descriptor by id
func (r *DefaultRegistry) Get(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, exists := r.descriptors[id]
	return desc, exists
}

// GetAll returns all registered descriptors sorted by id
func (r *DefaultRegistry) GetAll() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Descriptor, 0, len(r.descriptors))
	for _, desc := range r.descriptors {
		all = append(all, desc)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].ID < all[j].ID
	})
	return all
}

// GetByTier returns all descriptors of a specific tier sorted by id
func (r *DefaultRegistry) GetByTier(tier Tier) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matching []Descriptor
	for _, desc := range r.descriptors {
		if desc.Tier == tier {
			matching = append(matching, desc)
		}
	}
	sort.Slice(matching, func(i, j int) bool {
		return matching[i].ID < matching[j].ID
	})
	return matching
}

// Freeze rejects further mutation until Thaw is called
func (r *DefaultRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Thaw allows mutation again after a startup run finished
func (r *DefaultRegistry) Thaw() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = false
}
