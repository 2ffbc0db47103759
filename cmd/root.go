package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"appctl/internal/config"
	"appctl/pkg/logging"
)

// manifestPath overrides the layered manifest lookup with a single file.
var manifestPath string

// debugLogging forces debug-level logging regardless of the manifest's
// logLevel setting.
var debugLogging bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "appctl",
	Short: "Stage and supervise application startup",
	Long: `appctl brings an application's components up in dependency order:
components are grouped into phases, each phase runs concurrently, and
failures are handled by criticality tier. Critical failures abort the
startup, high-criticality components fall back to degraded mode, and
everything else logs and continues.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid manifests, failed startups)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "appctl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "", "path to a manifest file (default: layered lookup)")
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "enable debug logging")
}

// loadManifest reads the manifest named by --manifest, or the layered
// default/user/project stack when the flag is unset, validates it, and
// initializes logging from its settings.
func loadManifest() (config.Manifest, error) {
	var manifest config.Manifest
	var err error

	if manifestPath != "" {
		manifest, err = config.LoadManifest(manifestPath)
	} else {
		manifest, err = config.Load()
	}
	if err != nil {
		return config.Manifest{}, err
	}

	if err := manifest.Validate(); err != nil {
		return config.Manifest{}, err
	}

	level := logging.ParseLevel(manifest.Settings.LogLevel)
	if debugLogging {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	return manifest, nil
}
