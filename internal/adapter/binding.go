package adapter

import (
	"fmt"

	"appctl/internal/bus"
)

// TranslateFunc converts an event payload from one namespace's
// representation to the other's.
type TranslateFunc func(payload any) (any, error)

// Binding declares a bidirectional translation between one legacy event
// type and one modern event type. Bindings are registered with a Bridge,
// which enforces that neither side is claimed twice.
type Binding struct {
	Legacy   bus.EventType
	Modern   bus.EventType
	ToModern TranslateFunc
	ToLegacy TranslateFunc
	Owner    string
}

// Validate checks the binding is complete and its types sit in the right
// namespaces.
func (b Binding) Validate() error {
	if b.Legacy == "" || b.Modern == "" {
		return fmt.Errorf("binding must name both a legacy and a modern event type")
	}
	if b.Legacy.Namespace() != bus.NamespaceLegacy {
		return fmt.Errorf("binding legacy type %q is not in the %s namespace", b.Legacy, bus.NamespaceLegacy)
	}
	if b.Modern.Namespace() != bus.NamespaceModern {
		return fmt.Errorf("binding modern type %q is not in the %s namespace", b.Modern, bus.NamespaceModern)
	}
	if b.ToModern == nil || b.ToLegacy == nil {
		return fmt.Errorf("binding %s <-> %s must translate in both directions", b.Legacy, b.Modern)
	}
	if b.Owner == "" {
		return fmt.Errorf("binding %s <-> %s has no owner", b.Legacy, b.Modern)
	}
	return nil
}

// Passthrough builds a binding whose translations hand the payload through
// unchanged, for event types whose payloads are already shared between the
// two generations.
func Passthrough(legacy, modern bus.EventType, owner string) Binding {
	identity := func(payload any) (any, error) {
		return payload, nil
	}
	return Binding{
		Legacy:   legacy,
		Modern:   modern,
		ToModern: identity,
		ToLegacy: identity,
		Owner:    owner,
	}
}

// BindingCollisionError reports an attempt to bind an event type that an
// earlier binding already claims.
type BindingCollisionError struct {
	EventType bus.EventType
	Existing  string
	Rejected  string
}

func (e *BindingCollisionError) Error() string {
	return fmt.Sprintf("binding collision on %s: already bound by %s, rejected for %s", e.EventType, e.Existing, e.Rejected)
}
