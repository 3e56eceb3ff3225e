package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hirewire/scout/cmd/scout/commands"
	"github.com/hirewire/scout/logger"
)

var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "Scout - batch applicant extraction orchestrator",
	Long: `Scout - rate-limited batch extraction of job applicant profiles.

Scout pulls applicant lists from a roster source, fetches profiles (and
optionally CVs) in fixed-size batches with cooldowns and bounded retries,
and preserves partial results across pause, cancel and failure.

Available commands:
  run     - Run an extraction for a job
  serve   - Start the HTTP/websocket control server
  runs    - List past extraction runs
  export  - Export a past run's results as JSON
  init    - Write a default scout.toml

Examples:
  scout init                         # Write default configuration
  scout run job-1 --max-items 50     # Extract up to 50 applicants
  scout runs                         # Show run history
  scout export <run-id> -o out.json  # Export a stored run
  scout serve                        # Serve the control API`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			if err := logger.SetVerbose(); err != nil {
				return fmt.Errorf("failed to enable verbose logging: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&commands.ConfigPath, "config", "", "Path to scout.toml (default: search upward from cwd)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.ExportCmd)
	rootCmd.AddCommand(commands.InitCmd)
}

func main() {
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
