package lifecycle

import (
	"appctl/internal/registry"
)

// Outcome classifies how an init attempt ended.
type Outcome string

const (
	// OutcomeReady means init returned an instance without error.
	OutcomeReady Outcome = "Ready"
	// OutcomeErrored means init returned an error or panicked.
	OutcomeErrored Outcome = "Errored"
	// OutcomeTimedOut means init exceeded its deadline.
	OutcomeTimedOut Outcome = "TimedOut"
	// OutcomeSkipped means init was never attempted because a declared
	// dependency is unavailable.
	OutcomeSkipped Outcome = "Skipped"
)

// Decision tells the executor what to do with a component after an init or
// fallback attempt.
type Decision struct {
	// State is the state to settle the component in. Ignored while
	// AttemptFallback is set.
	State State
	// AttemptFallback asks the executor to run the declared fallback
	// before settling.
	AttemptFallback bool
	// Abort stops the startup run after the current phase drains.
	Abort bool
}

// PolicyEngine maps init outcomes to decisions based on a component's
// criticality tier. It holds no state of its own.
type PolicyEngine interface {
	// Resolve decides what happens after the primary init attempt.
	Resolve(desc registry.Descriptor, outcome Outcome) Decision

	// ResolveFallback decides the final state after a fallback attempt.
	// A nil error means the fallback produced a usable substitute.
	ResolveFallback(desc registry.Descriptor, err error) Decision
}

// DefaultPolicyEngine implements the tiered failure policy:
//
//   - Critical: a failure aborts startup. A declared fallback is still
//     attempted first; only when it also fails does the run abort.
//   - High: a failure falls back when possible, otherwise the component
//     fails and startup continues.
//   - Medium, Low: a failure never threatens the run. Fallbacks are
//     attempted when declared, otherwise the component just fails.
type DefaultPolicyEngine struct{}

// NewPolicyEngine creates the default tiered policy engine.
func NewPolicyEngine() PolicyEngine {
	return &DefaultPolicyEngine{}
}

// Resolve decides what happens after the primary init attempt.
func (p *DefaultPolicyEngine) Resolve(desc registry.Descriptor, outcome Outcome) Decision {
	if outcome == OutcomeReady {
		return Decision{State: StateReady}
	}

	if desc.HasFallback() {
		return Decision{AttemptFallback: true}
	}

	return p.settleFailure(desc)
}

// ResolveFallback decides the final state after a fallback attempt.
func (p *DefaultPolicyEngine) ResolveFallback(desc registry.Descriptor, err error) Decision {
	if err == nil {
		return Decision{State: StateDegraded}
	}
	return p.settleFailure(desc)
}

// settleFailure is the terminal ruling for a component with no remaining
// options. Only Critical components take the run down with them.
func (p *DefaultPolicyEngine) settleFailure(desc registry.Descriptor) Decision {
	if desc.Tier == registry.TierCritical {
		return Decision{State: StateFailed, Abort: true}
	}
	return Decision{State: StateFailed}
}
