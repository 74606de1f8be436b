package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pruneOlderThan time.Duration

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old backups",
	Long: `Delete backups older than the retention age together with their payloads.
Payload directories left behind by interrupted captures are removed too.`,
	Example: `  tweakguard prune                     # Use the configured retention
  tweakguard prune --older-than 168h   # Keep one week`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 0, "maximum backup age (default: config retention, 720h)")

	RootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	maxAge := e.cfg.Retention
	if pruneOlderThan != 0 {
		maxAge = pruneOlderThan
	}
	if maxAge < 0 {
		return fmt.Errorf("--older-than must not be negative")
	}

	res, err := e.manager.Prune(maxAge)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(res.Removed) == 0 && res.OrphansRemoved == 0 {
		fmt.Fprintf(out, "No backups older than %s.\n", maxAge)
		return nil
	}
	for _, id := range res.Removed {
		fmt.Fprintf(out, "  removed %s\n", id)
	}
	fmt.Fprintf(out, "\n✓ Pruned %d backups (%d payload files, %d orphaned payload directories)\n",
		len(res.Removed), res.BlobsRemoved, res.OrphansRemoved)
	return nil
}
