package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tweakguard/internal/logging"
	"github.com/blackwell-systems/tweakguard/internal/metrics"
	"github.com/blackwell-systems/tweakguard/internal/output"
	"github.com/blackwell-systems/tweakguard/internal/snapshots"
	"github.com/blackwell-systems/tweakguard/internal/watcher"
)

var (
	watchDaemon      bool
	watchDaemonChild bool
	watchPIDFile     string
	watchLogFile     string
	watchStop        bool
	watchMetricsAddr string

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Keep the index current and enforce retention",
		Long: `Watch the backup root and keep the SQLite index in step with it.

Backup documents written by other processes are indexed as soon as they
appear and dropped when they are deleted. A full reconcile runs every
reindex interval, and backups older than the retention age are pruned
every hour.

Watch modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as background process
  • Stop: Stop a running daemon

With --metrics-addr, Prometheus metrics are served on /metrics.`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  tweakguard watch

  # Run as background daemon with metrics
  tweakguard watch --daemon --metrics-addr 127.0.0.1:9465

  # Stop running daemon
  tweakguard watch --stop`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: ~/.tweakguard/watch.pid)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "log file path (default: ~/.tweakguard/watch.log)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop running daemon")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (default: config watch.metrics_addr)")

	// Hide the internal daemon-child flag from help
	watchCmd.Flags().MarkHidden("daemon-child")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if watchPIDFile == "" {
		watchPIDFile = cfg.PIDFile()
	}
	if watchLogFile == "" {
		watchLogFile = cfg.LogFile()
	}
	if watchMetricsAddr == "" {
		watchMetricsAddr = cfg.Watch.MetricsAddr
	}
	if err := ensureDir(cfg.BackupRoot); err != nil {
		return err
	}
	if err := ensureDir(filepath.Dir(watchPIDFile)); err != nil {
		return err
	}

	if watchStop {
		return stopWatchDaemon(cmd)
	}
	if watchDaemon {
		return startWatchDaemon(cmd)
	}

	m := metrics.New()
	opts := []snapshots.Option{snapshots.WithMetrics(m)}
	var childLog *zerolog.Logger
	if watchDaemonChild {
		// The child writes JSON lines to the log file it inherited.
		level, _ := logging.ParseLevel(cfg.LogLevel)
		l := logging.NewJSON(os.Stderr, level, "watch")
		childLog = &l
		opts = append(opts, snapshots.WithLogger(l))
	}

	e, err := openEnv(opts...)
	if err != nil {
		return err
	}
	defer e.Close()

	log := e.log
	if childLog != nil {
		log = *childLog
	}

	w, err := watcher.New(e.ledger, e.store,
		watcher.WithMetrics(m),
		watcher.WithLogger(log),
		watcher.WithInterval(cfg.Watch.ReindexInterval),
		watcher.WithRetention(e.manager, cfg.Retention),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if watchDaemonChild {
		// Runs until SIGTERM; stdout and stderr go to the log file.
		return w.RunDaemon(watchPIDFile, watchMetricsAddr)
	}
	return runWatchForeground(cmd, w)
}

func stopWatchDaemon(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		fmt.Fprintln(out, "Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Stopping daemon...")
	spinner.SetWriter(out)
	if err := watcher.StopDaemon(watchPIDFile); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon stopped")
	return nil
}

func startWatchDaemon(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	// The child re-reads configuration, so forward the global overrides.
	childArgs := []string{"watch", "--daemon-child", "--pid-file", watchPIDFile}
	for _, f := range []string{"config", "db", "root", "log-level"} {
		if v := RootCmd.PersistentFlags().Lookup(f).Value.String(); v != "" {
			childArgs = append(childArgs, "--"+f, v)
		}
	}
	if watchMetricsAddr != "" {
		childArgs = append(childArgs, "--metrics-addr", watchMetricsAddr)
	}

	spinner := output.NewSpinner("Starting daemon...")
	spinner.SetWriter(out)
	if err := watcher.StartDaemon(watchPIDFile, watchLogFile, childArgs...); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon started")

	fmt.Fprintf(out, "\nIndex daemon started\n")
	fmt.Fprintf(out, "  PID file: %s\n", watchPIDFile)
	fmt.Fprintf(out, "  Log file: %s\n", watchLogFile)
	if watchMetricsAddr != "" {
		fmt.Fprintf(out, "  Metrics:  http://%s/metrics\n", watchMetricsAddr)
	}
	fmt.Fprintf(out, "\nTo stop: tweakguard watch --stop\n")
	return nil
}

func runWatchForeground(cmd *cobra.Command, w *watcher.Watcher) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Watching backups (press Ctrl+C to stop)...")
	if watchMetricsAddr != "" {
		fmt.Fprintf(out, "Metrics: http://%s/metrics\n", watchMetricsAddr)
	}
	fmt.Fprintln(out)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	if err := w.Run(ctx, watchMetricsAddr); err != nil {
		return err
	}
	fmt.Fprintln(out, "\n✓ Watcher stopped")
	return nil
}
