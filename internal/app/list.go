package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tweakguard/internal/output"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List restorable backups",
	Long: `List every backup in the backup root, newest first, with the number of
captured items per section.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	RootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	backups, err := e.manager.ListRestorable()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, output.RenderBackupTable(backups))
	if len(backups) > 0 {
		fmt.Fprintf(out, "\nPreview with: tweakguard preview <backup>\n")
	}
	return nil
}
