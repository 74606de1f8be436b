package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tweakguard/internal/output"
	"github.com/blackwell-systems/tweakguard/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history [backup-id | latest]",
	Short: "Show past restore runs",
	Long: `Show the restore audit log, newest first. With a backup id only runs of
that backup are shown. Runs stay in the log after their backup is pruned.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	RootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	id := ""
	if len(args) == 1 {
		if id, err = resolveBackupID(e.manager, args[0]); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if id != "" {
		b, err := e.store.GetBackup(id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			fmt.Fprintf(out, "Backup %s is not in the index (pruned, or run 'tweakguard reindex')\n\n", id)
		case err != nil:
			return fmt.Errorf("failed to look up backup %s: %w", id, err)
		default:
			fmt.Fprint(out, output.RenderBackupHeader(b))
		}
	}

	runs, err := e.store.ListRestoreRuns(id)
	if err != nil {
		return fmt.Errorf("failed to read restore history: %w", err)
	}
	fmt.Fprint(out, output.RenderRestoreRuns(runs))
	return nil
}
