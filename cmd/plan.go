package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"appctl/internal/config"
	"appctl/internal/orchestrator"
)

// planCmd validates the manifest and prints the phase schedule without
// initializing anything.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Validate the manifest and print the startup phases",
	Long: `Validates the startup manifest and prints the phase schedule the up
command would execute: every component appears in a phase strictly after
all of its dependencies.

The command fails without starting anything when the manifest is
malformed, names a dependency no component declares, or contains a
dependency cycle.`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	manifest, err := loadManifest()
	if err != nil {
		return err
	}

	orch, err := buildOrchestrator(manifest)
	if err != nil {
		return err
	}

	phases, err := orch.Plan()
	if err != nil {
		return err
	}

	fmt.Printf("Startup plan: %d components in %d phases\n", len(manifest.Components), len(phases))
	for i, members := range phases {
		fmt.Printf("  phase %d: %s\n", i+1, strings.Join(members, ", "))
	}
	if len(manifest.Bridges) > 0 {
		fmt.Printf("  bridged event types: %d\n", len(manifest.Bridges))
	}

	return nil
}

// buildOrchestrator assembles an orchestrator from the manifest: tuning
// settings, one registered descriptor per component, and the declared
// bridge bindings.
func buildOrchestrator(manifest config.Manifest) (*orchestrator.Orchestrator, error) {
	descriptors, err := config.Descriptors(manifest)
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(orchestrator.Config{
		MaxConcurrent: manifest.Settings.MaxConcurrent,
		InitTimeout:   manifest.Settings.InitTimeout.Std(),
		StopTimeout:   manifest.Settings.StopTimeout.Std(),
	})

	for _, desc := range descriptors {
		if err := orch.Register(desc); err != nil {
			return nil, fmt.Errorf("failed to register component %q: %w", desc.ID, err)
		}
	}

	for _, binding := range config.Bindings(manifest) {
		if err := orch.GetBridge().Register(binding); err != nil {
			return nil, fmt.Errorf("failed to register bridge: %w", err)
		}
	}

	return orch, nil
}

func init() {
	rootCmd.AddCommand(planCmd)
}
