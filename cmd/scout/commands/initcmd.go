package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/hirewire/scout/config"
)

// InitCmd writes a default scout.toml to the current directory.
var InitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default scout.toml",
	Long:  `Write a scout.toml with default values to the current directory. Refuses to overwrite an existing file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "scout.toml"
		if len(args) > 0 {
			path = args[0]
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		pterm.Printf("Wrote %s\n", path)
		return nil
	},
	Args: cobra.MaximumNArgs(1),
}
