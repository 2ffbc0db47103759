package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"appctl/internal/registry"
)

// Manifest is the top-level startup manifest for appctl. It declares the
// components of the application, how their simulated initialization
// behaves, and which event types are bridged between the legacy and modern
// namespaces.
type Manifest struct {
	Settings   Settings              `yaml:"settings,omitempty"`
	Components []ComponentDefinition `yaml:"components"`
	Bridges    []BridgeDefinition    `yaml:"bridges,omitempty"`
}

// Settings holds run-wide tuning. Zero values defer to the orchestrator's
// defaults.
type Settings struct {
	MaxConcurrent int      `yaml:"maxConcurrent,omitempty"` // intra-phase parallelism bound
	InitTimeout   Duration `yaml:"initTimeout,omitempty"`   // default per-component init bound
	StopTimeout   Duration `yaml:"stopTimeout,omitempty"`   // per-component stop bound at shutdown
	LogLevel      string   `yaml:"logLevel,omitempty"`      // debug, info, warn, error
}

// ComponentDefinition declares one component of the simulated application.
type ComponentDefinition struct {
	ID          string        `yaml:"id"`                  // unique component id
	Criticality string        `yaml:"criticality"`         // critical, high, medium, or low
	DependsOn   []string      `yaml:"dependsOn,omitempty"` // ids that must be available first
	Timeout     Duration      `yaml:"timeout,omitempty"`   // per-attempt bound, orchestrator default when zero
	Init        BehaviorSpec  `yaml:"init"`
	Fallback    *BehaviorSpec `yaml:"fallback,omitempty"`
}

// BehaviorSpec describes what a simulated init or fallback call does.
type BehaviorSpec struct {
	Delay    Duration `yaml:"delay,omitempty"`    // how long the call takes
	Fail     bool     `yaml:"fail,omitempty"`     // whether the call errors
	FailWith string   `yaml:"failWith,omitempty"` // error message when failing
	Announce string   `yaml:"announce,omitempty"` // event type published on success
}

// BridgeDefinition declares a passthrough binding between a legacy and a
// modern event type.
type BridgeDefinition struct {
	Legacy string `yaml:"legacy"`
	Modern string `yaml:"modern"`
	Owner  string `yaml:"owner,omitempty"`
}

// Duration is a time.Duration that reads "250ms"-style strings from YAML,
// and plain integers as nanoseconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts either a duration string or an integer nanosecond
// count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(v)
	case int64:
		*d = Duration(v)
	case float64:
		*d = Duration(v)
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Validate checks the manifest is internally consistent: unique component
// ids, parseable criticality tiers, dependencies referencing declared
// components, and complete bridge declarations. Graph-level validation
// (cycles) happens later, in the orchestrator.
func (m Manifest) Validate() error {
	if len(m.Components) == 0 {
		return fmt.Errorf("manifest declares no components")
	}

	ids := make(map[string]bool, len(m.Components))
	for _, def := range m.Components {
		if def.ID == "" {
			return fmt.Errorf("component with empty id")
		}
		if ids[def.ID] {
			return fmt.Errorf("duplicate component id %q", def.ID)
		}
		ids[def.ID] = true

		if _, err := registry.ParseTier(def.Criticality); err != nil {
			return fmt.Errorf("component %q: %w", def.ID, err)
		}
		if def.Timeout < 0 {
			return fmt.Errorf("component %q: negative timeout", def.ID)
		}
	}

	for _, def := range m.Components {
		for _, dep := range def.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("component %q depends on %q, which the manifest does not declare", def.ID, dep)
			}
		}
	}

	seenLegacy := make(map[string]bool, len(m.Bridges))
	for _, bridge := range m.Bridges {
		if bridge.Legacy == "" || bridge.Modern == "" {
			return fmt.Errorf("bridge must declare both a legacy and a modern event type")
		}
		if seenLegacy[bridge.Legacy] {
			return fmt.Errorf("duplicate bridge for legacy type %q", bridge.Legacy)
		}
		seenLegacy[bridge.Legacy] = true
	}

	return nil
}
