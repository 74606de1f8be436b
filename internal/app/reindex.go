package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tweakguard/internal/output"
	"github.com/blackwell-systems/tweakguard/internal/watcher"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the index from the backup root",
	Long: `Re-read every backup document and rebuild the SQLite index. Indexed
backups whose document is gone are dropped. The restore history is kept.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	RootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	spinner := output.NewSpinner("Indexing backups...")
	spinner.SetWriter(cmd.OutOrStdout())
	spinner.Start()
	res, err := watcher.Reindex(e.ledger, e.store)
	if err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to reindex: %w", err)
	}
	spinner.StopWithMessage(fmt.Sprintf("✓ Indexed %d backups, dropped %d stale entries", res.Indexed, res.Removed))
	return nil
}
