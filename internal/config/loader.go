package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Function variables for mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/appctl"
	projectConfigDir = ".appctl"
	manifestFileName = "manifest.yaml"
)

// Load reads the layered manifest: built-in defaults, overlaid with the
// user manifest (~/.config/appctl/manifest.yaml) when present, overlaid
// with the project manifest (./.appctl/manifest.yaml) when present.
// Missing files are skipped silently; unreadable or malformed files fail
// the load.
func Load() (Manifest, error) {
	manifest := GetDefaultManifest()

	userPath, err := getUserManifestPath()
	if err != nil {
		// Home directory lookup failed; continue with defaults.
		fmt.Fprintf(os.Stderr, "Warning: could not determine user manifest path: %v\n", err)
	} else if fileExists(userPath) {
		userManifest, err := LoadManifest(userPath)
		if err != nil {
			return Manifest{}, fmt.Errorf("failed to load user manifest: %w", err)
		}
		manifest = mergeManifests(manifest, userManifest)
	}

	projectPath, err := getProjectManifestPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not determine project manifest path: %v\n", err)
	} else if fileExists(projectPath) {
		projectManifest, err := LoadManifest(projectPath)
		if err != nil {
			return Manifest{}, fmt.Errorf("failed to load project manifest: %w", err)
		}
		manifest = mergeManifests(manifest, projectManifest)
	}

	return manifest, nil
}

// LoadManifest reads and parses a single manifest file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest file %s: %w", path, err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest file %s: %w", path, err)
	}

	return manifest, nil
}

// getUserManifestPath returns the path to the user-level manifest.
// Replaceable in tests.
var getUserManifestPath = func() (string, error) {
	home, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, userConfigDir, manifestFileName), nil
}

// getProjectManifestPath returns the path to the project-level manifest in
// the current working directory. Replaceable in tests.
var getProjectManifestPath = func() (string, error) {
	cwd, err := osGetwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return filepath.Join(cwd, projectConfigDir, manifestFileName), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// mergeManifests overlays the overlay manifest onto the base. Settings
// merge field-wise, with non-zero overlay values winning. Components and
// bridges merge by key: an overlay entry replaces the base entry with the
// same id (or legacy type), otherwise it is appended. Base entries the
// overlay does not mention are kept.
func mergeManifests(base, overlay Manifest) Manifest {
	merged := base

	if overlay.Settings.MaxConcurrent != 0 {
		merged.Settings.MaxConcurrent = overlay.Settings.MaxConcurrent
	}
	if overlay.Settings.InitTimeout != 0 {
		merged.Settings.InitTimeout = overlay.Settings.InitTimeout
	}
	if overlay.Settings.StopTimeout != 0 {
		merged.Settings.StopTimeout = overlay.Settings.StopTimeout
	}
	if overlay.Settings.LogLevel != "" {
		merged.Settings.LogLevel = overlay.Settings.LogLevel
	}

	merged.Components = mergeComponents(base.Components, overlay.Components)
	merged.Bridges = mergeBridges(base.Bridges, overlay.Bridges)

	return merged
}

func mergeComponents(base, overlay []ComponentDefinition) []ComponentDefinition {
	merged := make([]ComponentDefinition, len(base))
	copy(merged, base)

	for _, def := range overlay {
		replaced := false
		for i, existing := range merged {
			if existing.ID == def.ID {
				merged[i] = def
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, def)
		}
	}

	return merged
}

func mergeBridges(base, overlay []BridgeDefinition) []BridgeDefinition {
	merged := make([]BridgeDefinition, len(base))
	copy(merged, base)

	for _, def := range overlay {
		replaced := false
		for i, existing := range merged {
			if existing.Legacy == def.Legacy {
				merged[i] = def
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, def)
		}
	}

	return merged
}
