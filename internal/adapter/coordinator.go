package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"appctl/pkg/logging"
)

// Transition describes one coordinated state change to commit across
// adapters.
type Transition struct {
	Name    string
	Payload any
}

// Adapter is a participant in coordinated state transitions. An adapter
// stages a transition in Propose, makes it effective in Apply, and throws
// the staging away in Discard when another participant vetoes the commit.
type Adapter interface {
	ID() string
	Propose(ctx context.Context, tx Transition) error
	Apply(ctx context.Context, tx Transition) error
	Discard(ctx context.Context, tx Transition)
}

// DesyncError reports a coordinated commit that could not complete
// atomically. Stage is "propose" when a veto stopped the commit before
// anything applied, "apply" when applying diverged after a clean vote.
type DesyncError struct {
	Transition string
	AdapterID  string
	Stage      string
	Err        error
}

func (e *DesyncError) Error() string {
	if e.AdapterID != "" {
		return fmt.Sprintf("commit %q desynced at %s by adapter %s: %v", e.Transition, e.Stage, e.AdapterID, e.Err)
	}
	return fmt.Sprintf("commit %q desynced at %s: %v", e.Transition, e.Stage, e.Err)
}

func (e *DesyncError) Unwrap() error {
	return e.Err
}

// Coordinator commits state transitions across a set of adapters with
// all-or-nothing semantics: every named adapter proposes first, and only a
// unanimous vote lets any of them apply. A failed commit never takes the
// application down; the caller decides what a DesyncError means for it.
type Coordinator struct {
	adapters map[string]Adapter
	mu       sync.RWMutex
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter. IDs must be unique.
func (c *Coordinator) Register(adapter Adapter) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := adapter.ID()
	if id == "" {
		return fmt.Errorf("adapter has no id")
	}
	if _, exists := c.adapters[id]; exists {
		return fmt.Errorf("adapter %q is already registered", id)
	}
	c.adapters[id] = adapter

	logging.Debug("Coordinator", "Registered adapter %s", id)
	return nil
}

// Deregister removes an adapter.
func (c *Coordinator) Deregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.adapters, id)
}

// Adapters returns the registered adapter ids, sorted.
func (c *Coordinator) Adapters() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.adapters))
	for id := range c.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Commit runs the two-phase commit over the named adapters, or over every
// registered adapter when none are named. If any proposal fails, adapters
// that already staged are told to discard and nothing applies.
func (c *Coordinator) Commit(ctx context.Context, tx Transition, ids ...string) error {
	participants, err := c.participants(ids)
	if err != nil {
		return err
	}
	if len(participants) == 0 {
		return fmt.Errorf("commit %q has no participating adapters", tx.Name)
	}

	logging.Debug("Coordinator", "Committing %q across %d adapters", tx.Name, len(participants))

	var prepared []Adapter
	for _, adapter := range participants {
		if proposeErr := adapter.Propose(ctx, tx); proposeErr != nil {
			for _, staged := range prepared {
				staged.Discard(ctx, tx)
			}
			desync := &DesyncError{Transition: tx.Name, AdapterID: adapter.ID(), Stage: "propose", Err: proposeErr}
			logging.Error("Coordinator", proposeErr, "Commit %q vetoed by %s, nothing applied", tx.Name, adapter.ID())
			return desync
		}
		prepared = append(prepared, adapter)
	}

	var applyErr error
	for _, adapter := range participants {
		if err := adapter.Apply(ctx, tx); err != nil {
			applyErr = multierr.Append(applyErr, fmt.Errorf("adapter %s: %w", adapter.ID(), err))
		}
	}
	if applyErr != nil {
		desync := &DesyncError{Transition: tx.Name, Stage: "apply", Err: applyErr}
		logging.Error("Coordinator", applyErr, "Commit %q applied unevenly", tx.Name)
		return desync
	}

	logging.Debug("Coordinator", "Commit %q applied by all %d adapters", tx.Name, len(participants))
	return nil
}

// participants resolves the adapters taking part in a commit, in sorted id
// order for deterministic propose/apply sequencing.
func (c *Coordinator) participants(ids []string) ([]Adapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(ids) == 0 {
		ids = make([]string, 0, len(c.adapters))
		for id := range c.adapters {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	participants := make([]Adapter, 0, len(ids))
	for _, id := range ids {
		adapter, exists := c.adapters[id]
		if !exists {
			return nil, fmt.Errorf("unknown adapter %q", id)
		}
		participants = append(participants, adapter)
	}
	return participants, nil
}
