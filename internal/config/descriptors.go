package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"appctl/internal/adapter"
	"appctl/internal/bus"
	"appctl/internal/registry"
)

// Descriptors converts the manifest's component definitions into runnable
// descriptors whose init and fallback calls simulate the declared
// behavior: sleeping for the declared delay, failing with the declared
// message, and announcing events on the bus.
func Descriptors(manifest Manifest) ([]registry.Descriptor, error) {
	descriptors := make([]registry.Descriptor, 0, len(manifest.Components))

	for _, def := range manifest.Components {
		tier, err := registry.ParseTier(def.Criticality)
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", def.ID, err)
		}

		desc := registry.Descriptor{
			ID:        def.ID,
			DependsOn: append([]string(nil), def.DependsOn...),
			Tier:      tier,
			Timeout:   def.Timeout.Std(),
			Init:      simulate(def.ID, def.Init, "primary"),
		}

		if def.Fallback != nil {
			behavior := simulate(def.ID, *def.Fallback, "fallback")
			desc.Fallback = func(ctx context.Context, rt registry.Runtime, cause error) (any, error) {
				return behavior(ctx, rt)
			}
		}

		descriptors = append(descriptors, desc)
	}

	return descriptors, nil
}

// Bindings converts the manifest's bridge declarations into passthrough
// bindings ready to register.
func Bindings(manifest Manifest) []adapter.Binding {
	bindings := make([]adapter.Binding, 0, len(manifest.Bridges))

	for _, def := range manifest.Bridges {
		owner := def.Owner
		if owner == "" {
			owner = "manifest"
		}
		bindings = append(bindings, adapter.Passthrough(bus.EventType(def.Legacy), bus.EventType(def.Modern), owner))
	}

	return bindings
}

// simulate builds an init-shaped call out of a behavior spec. The variant
// tags the produced instance so fallback results are distinguishable from
// primary ones in reports and tests.
func simulate(id string, spec BehaviorSpec, variant string) registry.InitFunc {
	return func(ctx context.Context, rt registry.Runtime) (any, error) {
		if spec.Delay > 0 {
			select {
			case <-time.After(spec.Delay.Std()):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if spec.Fail {
			msg := spec.FailWith
			if msg == "" {
				msg = "simulated failure"
			}
			return nil, errors.New(msg)
		}

		if spec.Announce != "" {
			rt.GetEventBus().Publish(bus.NewEvent(bus.EventType(spec.Announce), id, nil))
		}

		return fmt.Sprintf("%s (%s)", id, variant), nil
	}
}
