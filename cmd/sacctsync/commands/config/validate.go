package config

import (
	"fmt"
	"os"

	"github.com/clusterops/sacctsync/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Validate the sacctsync configuration file: syntax, required
fields, and value ranges. Also warns about input files that are
configured but not readable.`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.Inputs.Policy == "" {
		warnings = append(warnings, "no policy input configured - sync will fail")
	}
	for name, path := range map[string]string{
		"passwd":       cfg.Inputs.Passwd,
		"group":        cfg.Inputs.Group,
		"aliases":      cfg.Inputs.Aliases,
		"associations": cfg.Inputs.Associations,
		"roster":       cfg.Inputs.Roster,
		"transactions": cfg.Inputs.Transactions,
		"policy":       cfg.Inputs.Policy,
	} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			warnings = append(warnings, fmt.Sprintf("inputs.%s: %s is not readable", name, path))
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration file: %s\n", displayPath)
	fmt.Fprintln(cmd.OutOrStdout(), "Validation: OK")
	if len(warnings) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "\nWarnings:")
		for _, w := range warnings {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", w)
		}
	}
	return nil
}
