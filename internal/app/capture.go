package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tweakguard/internal/output"
	"github.com/blackwell-systems/tweakguard/internal/snapshots"
	"github.com/blackwell-systems/tweakguard/internal/system"
)

var (
	captureBackup string
	captureOp     string
	captureDesc   string

	captureCmd = &cobra.Command{
		Use:   "capture",
		Short: "Capture system state into a backup",
		Long: `Capture one kind of system state into a backup.

Use --op to open a new backup named after the operation, or --backup to
add to an existing one. Resources that do not exist are reported as
skipped and nothing is recorded for them.`,
		Example: `  tweakguard capture registry 'HKCU\Software\Contoso' --op DisableTelemetry
  tweakguard capture file C:\Windows\System32\drivers\etc\hosts --backup DisableTelemetry_20261018_142233
  tweakguard capture dir C:\ProgramData\Contoso --op CleanupContoso
  tweakguard capture service DiagTrack dmwappushservice --op DisableTelemetry
  tweakguard capture power --op HighPerformance
  tweakguard capture startup --op TrimStartup`,
	}

	captureRegistryCmd = &cobra.Command{
		Use:   "registry <key>...",
		Short: "Export registry keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: captureRun(func(ctx context.Context, m *snapshots.Manager, id string, args []string) ([]*snapshots.CaptureResult, error) {
			var results []*snapshots.CaptureResult
			var errs []error
			for _, arg := range args {
				key, err := system.ParseKey(arg)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				r, err := m.CaptureRegistryKey(ctx, id, key.Hive, key.Path, captureDesc)
				results = append(results, r)
				errs = append(errs, err)
			}
			return results, errors.Join(errs...)
		}),
	}

	captureFileCmd = &cobra.Command{
		Use:   "file <path>...",
		Short: "Copy files (directories are archived)",
		Args:  cobra.MinimumNArgs(1),
		RunE: captureRun(func(ctx context.Context, m *snapshots.Manager, id string, args []string) ([]*snapshots.CaptureResult, error) {
			return m.CaptureFiles(ctx, id, args, captureDesc)
		}),
	}

	captureDirCmd = &cobra.Command{
		Use:   "dir <path>",
		Short: "Archive a directory tree",
		Args:  cobra.ExactArgs(1),
		RunE: captureRun(func(ctx context.Context, m *snapshots.Manager, id string, args []string) ([]*snapshots.CaptureResult, error) {
			r, err := m.CaptureDirectory(ctx, id, args[0], captureDesc)
			return []*snapshots.CaptureResult{r}, err
		}),
	}

	captureServiceCmd = &cobra.Command{
		Use:   "service <name>...",
		Short: "Record service run states",
		Args:  cobra.MinimumNArgs(1),
		RunE: captureRun(func(ctx context.Context, m *snapshots.Manager, id string, args []string) ([]*snapshots.CaptureResult, error) {
			var results []*snapshots.CaptureResult
			var errs []error
			for _, name := range args {
				r, err := m.CaptureService(ctx, id, name)
				results = append(results, r)
				errs = append(errs, err)
			}
			return results, errors.Join(errs...)
		}),
	}

	capturePowerCmd = &cobra.Command{
		Use:   "power",
		Short: "Record the active power plan",
		Args:  cobra.NoArgs,
		RunE: captureRun(func(ctx context.Context, m *snapshots.Manager, id string, _ []string) ([]*snapshots.CaptureResult, error) {
			r, err := m.CapturePowerPlan(ctx, id)
			return []*snapshots.CaptureResult{r}, err
		}),
	}

	captureStartupCmd = &cobra.Command{
		Use:   "startup",
		Short: "Record startup items (Run keys and Startup folders)",
		Args:  cobra.NoArgs,
		RunE: captureRun(func(ctx context.Context, m *snapshots.Manager, id string, _ []string) ([]*snapshots.CaptureResult, error) {
			return m.CaptureStartupItems(ctx, id)
		}),
	}
)

func init() {
	captureCmd.PersistentFlags().StringVar(&captureBackup, "backup", "", "add to an existing backup id")
	captureCmd.PersistentFlags().StringVar(&captureOp, "op", "", "open a new backup for this operation name")
	captureCmd.PersistentFlags().StringVar(&captureDesc, "desc", "", "description shown in previews and reports")

	captureCmd.AddCommand(captureRegistryCmd)
	captureCmd.AddCommand(captureFileCmd)
	captureCmd.AddCommand(captureDirCmd)
	captureCmd.AddCommand(captureServiceCmd)
	captureCmd.AddCommand(capturePowerCmd)
	captureCmd.AddCommand(captureStartupCmd)
}

type captureFunc func(ctx context.Context, m *snapshots.Manager, backupID string, args []string) ([]*snapshots.CaptureResult, error)

// captureRun resolves the target backup, runs fn and prints its results.
// Results are printed even when some captures failed.
func captureRun(fn captureFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if (captureBackup == "") == (captureOp == "") {
			return fmt.Errorf("exactly one of --backup or --op is required")
		}

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		id := captureBackup
		if captureOp != "" {
			if id, err = e.manager.Begin(captureOp); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		results, capErr := fn(cmd.Context(), e.manager, id, args)
		printCaptureResults(out, id, results)
		if doc, err := e.ledger.Get(id); err == nil {
			fmt.Fprintf(out, "\nBackup now holds: %s\n", output.RenderCounts(doc.Counts()))
		}
		if capErr != nil {
			return fmt.Errorf("capture incomplete: %w", capErr)
		}
		return nil
	}
}

func printCaptureResults(out io.Writer, backupID string, results []*snapshots.CaptureResult) {
	fmt.Fprintf(out, "Backup: %s\n", backupID)
	fmt.Fprint(out, output.RenderCaptureResults(results))
}
