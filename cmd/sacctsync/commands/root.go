// Package commands implements the CLI commands for sacctsync.
package commands

import (
	"fmt"

	configcmd "github.com/clusterops/sacctsync/cmd/sacctsync/commands/config"
	"github.com/clusterops/sacctsync/internal/logger"
	"github.com/clusterops/sacctsync/pkg/config"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sacctsync",
	Short: "Reconcile cluster accounting settings against layered policy",
	Long: `sacctsync compares the user and limit state of a cluster accounting
system against the host identity database and a layered policy
configuration, and emits the minimal ordered set of accounting-tool
commands needed to bring them in line.

sacctsync only computes and prints commands; it never executes them.

Use "sacctsync [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configcmd.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the --config flag value.
func GetConfigFile() string {
	path, _ := rootCmd.PersistentFlags().GetString("config")
	return path
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
