package commands

import (
	"fmt"
	"os"

	"github.com/clusterops/sacctsync/internal/cli/prompt"
	"github.com/clusterops/sacctsync/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a configuration file with default values to the default
location ($XDG_CONFIG_HOME/sacctsync/config.yaml), or to the path given
with --config. An existing file is only overwritten after confirmation,
or with --force.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file without asking")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		ok, err := prompt.Confirm(fmt.Sprintf("Configuration file %s exists, overwrite", path), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
	fmt.Fprintln(cmd.OutOrStdout(), "Edit the inputs section before running \"sacctsync sync\".")
	return nil
}
