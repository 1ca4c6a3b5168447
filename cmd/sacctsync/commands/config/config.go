// Package config implements the "sacctsync config" subcommands.
package config

import "github.com/spf13/cobra"

// Cmd is the parent "config" command.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate the configuration",
}

func init() {
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(schemaCmd)
}
