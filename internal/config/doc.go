// Package config provides startup-manifest management for appctl.
//
// A manifest declares the components of the application, how their
// simulated initialization behaves, and which legacy/modern event types
// the bridge translates between. Manifests are YAML files loaded either
// directly (the CLI's --manifest flag) or through a layered lookup.
//
// # Manifest Layers
//
// Load merges manifests in the following order, with later sources
// overriding earlier ones:
//
//  1. Default Manifest (embedded in binary)
//     - Tuning defaults only; no components
//
//  2. User Manifest (~/.config/appctl/manifest.yaml)
//     - User-specific components and settings
//
//  3. Project Manifest (./.appctl/manifest.yaml)
//     - Project-specific manifest in the current directory
//     - Allows teams to share a startup plan via version control
//
// Components and bridges merge by key: an entry in a later layer replaces
// the earlier entry with the same id (or legacy event type), and new
// entries are appended.
//
// # Manifest Structure
//
// A manifest looks like this:
//
//	settings:
//	  maxConcurrent: 4
//	  initTimeout: 5s
//	  logLevel: info
//
//	components:
//	  - id: database
//	    criticality: critical
//	    init:
//	      delay: 100ms
//	    fallback:
//	      delay: 50ms
//
//	  - id: api
//	    criticality: high
//	    dependsOn: [database]
//	    timeout: 2s
//	    init:
//	      delay: 20ms
//	      announce: modern.api.listening
//
//	bridges:
//	  - legacy: legacy.cache.warmed
//	    modern: modern.cache.warmed
//	    owner: cache
//
// Durations accept Go duration strings ("250ms", "5s"). A component's
// init block may declare a delay, a forced failure (fail / failWith), and
// an event type to announce on success.
//
// # Usage Example
//
//	manifest, err := config.LoadManifest("appctl.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := manifest.Validate(); err != nil {
//	    return err
//	}
//	descriptors, err := config.Descriptors(manifest)
//	if err != nil {
//	    return err
//	}
//	for _, desc := range descriptors {
//	    if err := orch.Register(desc); err != nil {
//	        return err
//	    }
//	}
package config
