package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tweakguard/internal/output"
	"github.com/blackwell-systems/tweakguard/internal/snapshots"
)

var previewCmd = &cobra.Command{
	Use:   "preview [backup-id | latest]",
	Short: "Show what a restore would do",
	Long: `Show the actions a restore would take, in the order it would take them,
without changing anything. Items whose payload is missing or damaged are
flagged.`,
	Example: `  tweakguard preview latest
  tweakguard preview DisableTelemetry_20261018_142233`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	RootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
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

	fmt.Fprint(cmd.OutOrStdout(), output.RenderPreview(p))
	return nil
}
