package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"appctl/pkg/logging"
)

// upJSON switches the report output from the human-readable rendering to
// indented JSON, for scripting and CI use.
var upJSON bool

// upCmd runs the startup described by the manifest and prints the report.
var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Run the startup described by the manifest",
	Long: `Runs the startup: components initialize phase by phase in dependency
order, failures are resolved by criticality tier, and a report of every
component's final state is printed when the run settles.

The command exits non-zero when a critical component aborts the startup
or the run is interrupted. Degraded components do not fail the run; they
are visible in the report.

After the report, components that came up are stopped again in reverse
phase order.`,
	Args: cobra.NoArgs,
	RunE: runUp,
}

func runUp(cmd *cobra.Command, args []string) error {
	manifest, err := loadManifest()
	if err != nil {
		return err
	}

	orch, err := buildOrchestrator(manifest)
	if err != nil {
		return err
	}

	// Handle interrupts gracefully: a signal cancels the run, the report
	// still covers whatever settled.
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, stopping startup...")
		cancel()
	}()

	report, startErr := orch.Start(ctx)
	if report == nil {
		// Structural failure before any component ran
		return startErr
	}

	if upJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Println(string(data))
	} else {
		fmt.Print(report.Render())
	}

	// Stop whatever came up, even after an aborted run. The per-component
	// stop timeout bounds this, so no deadline on the context.
	shutdownErr := orch.Shutdown(context.Background())
	if shutdownErr != nil {
		logging.Error("Up", shutdownErr, "Shutdown after startup run reported errors")
	}

	if startErr != nil {
		return startErr
	}
	return shutdownErr
}

func init() {
	rootCmd.AddCommand(upCmd)

	upCmd.Flags().BoolVar(&upJSON, "json", false, "print the startup report as JSON")
}
