package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"appctl/internal/bus"
)

// Tier classifies how much of the system is unusable without a component.
// Critical components gate the entire startup; lower tiers trade
// completeness for availability.
type Tier string

const (
	TierCritical Tier = "Critical"
	TierHigh     Tier = "High"
	TierMedium   Tier = "Medium"
	TierLow      Tier = "Low"
)

// String makes Tier satisfy the fmt.Stringer interface.
func (t Tier) String() string {
	return string(t)
}

// Valid reports whether the tier is one of the known values.
func (t Tier) Valid() bool {
	switch t {
	case TierCritical, TierHigh, TierMedium, TierLow:
		return true
	default:
		return false
	}
}

// ParseTier converts a textual tier into a Tier value.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return TierCritical, nil
	case "high":
		return TierHigh, nil
	case "medium":
		return TierMedium, nil
	case "low":
		return TierLow, nil
	default:
		return "", fmt.Errorf("unknown criticality tier %q", s)
	}
}

// Runtime is handed to init and fallback functions. It exposes the
// instances of the component's declared dependencies and the event bus for
// publishing domain events. Lookups outside the declared dependency set
// always miss.
type Runtime interface {
	// GetInstance returns the initialized instance of a declared
	// dependency. It returns false for undeclared ids and for declared
	// dependencies that are not available (Failed or skipped).
	GetInstance(id string) (any, bool)

	// GetEventBus returns the bus shared by all components.
	GetEventBus() bus.EventBus
}

// InitFunc brings a component up and returns its instance. The context
// carries the component's timeout; implementations must honor cancellation.
type InitFunc func(ctx context.Context, rt Runtime) (any, error)

// FallbackFunc is the secondary initialization path attempted when init
// does not produce a usable instance. cause is the error that triggered it,
// or a description of the unavailable dependency for skipped components.
type FallbackFunc func(ctx context.Context, rt Runtime, cause error) (any, error)

// Stopper is an optional interface for instances that need teardown when
// the application shuts down.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Descriptor is the static declaration of a component: identity, declared
// dependencies, criticality tier and lifecycle callbacks.
type Descriptor struct {
	// ID uniquely identifies the component.
	ID string

	// DependsOn lists the ids of components that must initialize first.
	DependsOn []string

	// Tier decides what happens when init fails: Critical aborts the
	// startup, High attempts the fallback, Medium and Low log and continue.
	Tier Tier

	// Timeout bounds a single init or fallback call. Zero means the
	// executor's default applies.
	Timeout time.Duration

	// Init is the primary initialization path.
	Init InitFunc

	// Fallback is the optional secondary path. Components without one are
	// marked Degraded when a dependency fails, or Failed when their own
	// init fails.
	Fallback FallbackFunc
}

// HasFallback reports whether the descriptor declares a fallback path.
func (d Descriptor) HasFallback() bool {
	return d.Fallback != nil
}

// Validate checks the descriptor for structural problems. Dependency
// existence is checked later, against the full registry.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("descriptor has an empty id")
	}
	if d.Init == nil {
		return fmt.Errorf("component %q has no init function", d.ID)
	}
	if !d.Tier.Valid() {
		return fmt.Errorf("component %q has unknown criticality tier %q", d.ID, d.Tier)
	}
	if d.Timeout < 0 {
		return fmt.Errorf("component %q has negative timeout %s", d.ID, d.Timeout)
	}

	seen := make(map[string]bool, len(d.DependsOn))
	for _, dep := range d.DependsOn {
		if dep == d.ID {
			return fmt.Errorf("component %q depends on itself", d.ID)
		}
		if seen[dep] {
			return fmt.Errorf("component %q declares dependency %q twice", d.ID, dep)
		}
		seen[dep] = true
	}

	return nil
}
