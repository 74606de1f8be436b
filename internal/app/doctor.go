package app

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tweakguard/internal/system"
	"github.com/blackwell-systems/tweakguard/internal/watcher"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common issues and check system health",
	Long: `Runs diagnostic checks on this machine.

Checks:
  • Configuration is valid
  • Process is elevated (needed for HKLM keys, services and power plans)
  • reg, sc and powercfg are available
  • Backup root is writable
  • Index is readable and current
  • Watch daemon is running`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

// requiredTools are the OS tools the archivers shell out to.
var requiredTools = []string{"reg", "sc", "powercfg"}

// lookPath and isElevated are replaced in tests.
var (
	lookPath   = exec.LookPath
	isElevated = system.IsElevated
)

func init() {
	RootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Running tweakguard diagnostics...")
	fmt.Fprintln(out)

	// Critical issues make restores fail; warnings only limit them.
	criticalIssues := 0
	warningIssues := 0

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(out, "✗ Configuration:", err)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Found 1 critical issue(s).")
		return fmt.Errorf("diagnostics failed")
	}
	fmt.Fprintln(out, "✓ Configuration loaded")

	if isElevated() {
		fmt.Fprintln(out, "✓ Running elevated")
	} else {
		fmt.Fprintln(out, "⚠ Not elevated: HKLM keys, services and power plans cannot be restored")
		fmt.Fprintln(out, "  Action: Run from an elevated prompt")
		warningIssues++
	}

	for _, tool := range requiredTools {
		if p, err := lookPath(tool); err != nil {
			fmt.Fprintf(out, "✗ %s not found in PATH\n", tool)
			criticalIssues++
		} else {
			fmt.Fprintf(out, "✓ %s: %s\n", tool, p)
		}
	}

	if err := checkWritable(cfg.BackupRoot); err != nil {
		fmt.Fprintln(out, "✗ Backup root not writable:", err)
		criticalIssues++
	} else {
		fmt.Fprintln(out, "✓ Backup root writable:", cfg.BackupRoot)
	}

	if criticalIssues == 0 {
		e, err := openEnv()
		if err != nil {
			fmt.Fprintln(out, "✗ Cannot open index:", err)
			criticalIssues++
		} else {
			defer e.Close()
			stats, err := e.store.GetStats()
			docs, listErr := e.ledger.List()
			switch {
			case err != nil:
				fmt.Fprintln(out, "✗ Cannot read index:", err)
				criticalIssues++
			case listErr == nil && len(docs) != stats.Backups:
				fmt.Fprintf(out, "⚠ Index is stale (%d indexed, %d on disk)\n", stats.Backups, len(docs))
				fmt.Fprintln(out, "  Action: Run 'tweakguard reindex'")
				warningIssues++
			default:
				fmt.Fprintf(out, "✓ Index current (%d backups)\n", stats.Backups)
			}
		}
	}

	running, err := watcher.IsDaemonRunning(cfg.PIDFile())
	switch {
	case err != nil:
		fmt.Fprintln(out, "⚠ Failed to check daemon status:", err)
		warningIssues++
	case !running:
		fmt.Fprintln(out, "⚠ Watch daemon not running: retention is not enforced")
		fmt.Fprintln(out, "  Action: Run 'tweakguard watch --daemon'")
		warningIssues++
	default:
		fmt.Fprintln(out, "✓ Watch daemon running")
	}

	fmt.Fprintln(out)
	if criticalIssues == 0 && warningIssues == 0 {
		fmt.Fprintln(out, "✓ All checks passed!")
		return nil
	}
	if criticalIssues > 0 {
		fmt.Fprintf(out, "Found %d critical issue(s) and %d warning(s).\n", criticalIssues, warningIssues)
		return fmt.Errorf("diagnostics failed")
	}
	fmt.Fprintf(out, "Found %d warning(s). Backups work but some restores may not.\n", warningIssues)
	return nil
}

// checkWritable creates dir if needed and writes and removes a probe file.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".probe-"+uuid.NewString())
	if err := os.WriteFile(probe, nil, 0644); err != nil {
		return err
	}
	return os.Remove(probe)
}
