package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	dbPath     string
	backupRoot string
	logLevel   string

	// RootCmd is the root command for tweakguard
	RootCmd = &cobra.Command{
		Use:   "tweakguard",
		Short: "Back up system settings before tweaking them, restore them after",
		Long: `tweakguard captures registry keys, files, services, the active power plan
and startup items before an optimization changes them, and replays those
backups to undo the change.

Every backup is a JSON document under the backup root, named after the
operation that created it. Restores are best effort: each item is restored
independently and the result is reported item by item.

Features:
  • Registry, file, directory, service, power plan and startup item capture
  • Checksummed payloads verified before every restore
  • Preview of every restore before it runs
  • Age-based pruning of old backups
  • SQLite index and restore audit log kept current by 'tweakguard watch'

Examples:
  # Back up a registry key under a new backup
  tweakguard capture registry 'HKCU\Software\Contoso' --op DisableTelemetry

  # List backups
  tweakguard list

  # See what a restore would do
  tweakguard preview latest

  # Undo the last operation
  tweakguard restore latest`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "tweakguard: operation backup and restore")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Tip: Run 'tweakguard list' to see available backups.")
			fmt.Fprintln(out, "     Run 'tweakguard doctor' to check this machine.")
			fmt.Fprintln(out, "     Run 'tweakguard --help' for all commands.")
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/tweakguard/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "index database path (default: ~/.tweakguard/tweakguard.db)")
	RootCmd.PersistentFlags().StringVar(&backupRoot, "root", "", "backup root directory (default: ~/.tweakguard/backups)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(captureCmd)
	RootCmd.AddCommand(watchCmd)
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// ensureDir creates dir if it does not exist.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
