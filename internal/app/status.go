package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tweakguard/internal/output"
	"github.com/blackwell-systems/tweakguard/internal/watcher"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics and daemon state",
	Long: `Display the backup root, the index and the watch daemon state.

Shows:
  • Watch daemon running status and PID
  • Backup root and index locations
  • Number of backups, entries and payload bytes
  • Oldest and newest backup
  • Number of restore runs and when the last one ran`,
	Example: `  # Check status
  tweakguard status`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	// Register with root command
	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	out := cmd.OutOrStdout()
	pidFile := e.cfg.PIDFile()

	running, err := watcher.IsDaemonRunning(pidFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		fmt.Fprintf(out, "Watch daemon:  %s\n", daemonLabel(pidFile))
	} else {
		fmt.Fprintln(out, "Watch daemon:  stopped (run 'tweakguard watch --daemon')")
	}
	fmt.Fprintf(out, "Backup root:   %s\n", e.cfg.BackupRoot)
	fmt.Fprintf(out, "Index:         %s\n", e.cfg.DBPath)
	fmt.Fprintf(out, "Retention:     %s\n\n", e.cfg.Retention)

	stats, err := e.store.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}
	fmt.Fprint(out, output.RenderStats(stats))

	// The index lags when documents were written without it.
	docs, err := e.ledger.List()
	if err == nil && len(docs) != stats.Backups {
		fmt.Fprintf(out, "\n⚠ Index has %d backups but the backup root has %d.\n", stats.Backups, len(docs))
		fmt.Fprintln(out, "  Action: Run 'tweakguard reindex'")
	}
	return nil
}

// daemonLabel reads the PID for display.
func daemonLabel(pidFile string) string {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return "running"
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return "running"
	}
	return fmt.Sprintf("running (PID %d)", pid)
}
