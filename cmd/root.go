package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"echopulse/internal/config"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfigError indicates the configuration could not be loaded or is invalid.
	ExitCodeConfigError = 2
)

// rootCmd represents the base command for the echopulse application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "echopulse",
	Short: "Mirror Docker containers as a living population of agents",
	Long: `echopulse watches the local container runtime and mirrors every container
as an agent with a zone and a mood. Agents whose containers disappear are
retired to the Memory Garden instead of being deleted.

Connected observers receive the full population over a WebSocket after every
reconciliation cycle and may start, stop, restart, create or retire agents.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "echopulse version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return ExitCodeConfigError
	}

	var validationErrs config.ValidationErrors
	if errors.As(err, &validationErrs) {
		return ExitCodeConfigError
	}

	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newListCmd())
}
