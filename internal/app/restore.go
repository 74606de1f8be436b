package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tweakguard/internal/output"
	"github.com/blackwell-systems/tweakguard/internal/snapshots"
)

var restoreFlagYes bool

var restoreCmd = &cobra.Command{
	Use:   "restore [backup-id | latest]",
	Short: "Restore a backup",
	Long: `Replay every item of a backup: registry keys, then files and
directories, services, the power plan and finally startup items.

Items are restored independently. A failed item does not stop the others;
the report lists every item with its outcome.

Arguments:
  backup-id  The id of the backup to restore
  latest     Restore the most recent backup`,
	Example: `  tweakguard restore latest
  tweakguard restore DisableTelemetry_20261018_142233
  tweakguard restore latest --yes     # Restore without confirmation`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreFlagYes, "yes", false, "Skip confirmation prompt")

	RootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	bar := output.NewProgress(0)
	bar.SetWriter(out)

	e, err := openEnv(snapshots.WithProgress(bar.Observe))
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := resolveBackupID(e.manager, args[0])
	if err != nil {
		return err
	}

	p, err := e.manager.Preview(id)
	if errors.Is(err, snapshots.ErrNotFound) {
		return fmt.Errorf("backup %s not found\n\nRun 'tweakguard list' to see available backups", id)
	}
	if err != nil {
		return err
	}

	fmt.Fprint(out, output.RenderPreview(p))
	fmt.Fprintln(out)
	if len(p.Actions) == 0 {
		return nil
	}

	if !restoreFlagYes {
		if !confirm(cmd.InOrStdin(), out, fmt.Sprintf("Restore %d items?", len(p.Actions))) {
			fmt.Fprintln(out, "Restore cancelled.")
			return nil
		}
	}

	report, err := e.manager.Restore(cmd.Context(), id)
	bar.Finish()
	if err != nil {
		return fmt.Errorf("failed to restore %s: %w", id, err)
	}

	fmt.Fprintln(out)
	fmt.Fprint(out, output.RenderRestoreReport(report))

	if !report.Success {
		return fmt.Errorf("restore incomplete: %d of %d items failed", len(report.Failed()), len(report.Outcomes))
	}
	return nil
}
