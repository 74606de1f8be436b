package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tweakguard/internal/archive"
	"github.com/blackwell-systems/tweakguard/internal/config"
	"github.com/blackwell-systems/tweakguard/internal/ledger"
	"github.com/blackwell-systems/tweakguard/internal/logging"
	"github.com/blackwell-systems/tweakguard/internal/snapshots"
	"github.com/blackwell-systems/tweakguard/internal/store"
	"github.com/blackwell-systems/tweakguard/internal/system"
)

// capabilities are the OS adapters the archivers drive.
type capabilities struct {
	registry system.Registry
	services system.Services
	power    system.PowerPlans
}

// newCapabilities builds the reg.exe, sc.exe and powercfg adapters.
// Tests replace it with in-memory fakes.
var newCapabilities = func(cfg *config.Config, log zerolog.Logger) capabilities {
	runner := system.NewExecRunner(cfg.CommandTimeout, log)
	return capabilities{
		registry: system.NewRegTool(runner),
		services: system.NewServiceControl(runner),
		power:    system.NewPowerCfg(runner),
	}
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if backupRoot != "" {
		cfg.BackupRoot = backupRoot
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer, component string) zerolog.Logger {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	return logging.New(w, level, component)
}

// env is everything a command needs: configuration, the index and the
// backup manager.
type env struct {
	cfg     *config.Config
	log     zerolog.Logger
	store   *store.Store
	ledger  *ledger.Ledger
	manager *snapshots.Manager
}

// openEnv loads configuration, opens the index and the ledger, and wires
// the backup manager. Extra options are applied to the manager last.
func openEnv(opts ...snapshots.Option) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg, os.Stderr, "cli")

	if err := ensureDir(filepath.Dir(cfg.DBPath)); err != nil {
		return nil, err
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}

	led, err := ledger.Open(cfg.BackupRoot, ledger.WithLogger(log), ledger.WithIndexer(st))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open backup root: %w", err)
	}

	caps := newCapabilities(cfg, log)
	set := archive.NewSet(archive.Config{
		Registry:       caps.registry,
		Services:       caps.services,
		Power:          caps.power,
		Blobs:          led,
		StartupFolders: cfg.Startup.Folders,
		FallbackPlan:   cfg.Power.FallbackPlan,
		Log:            log,
	})

	base := []snapshots.Option{
		snapshots.WithStore(st),
		snapshots.WithLogger(log),
		snapshots.WithEntryTimeout(cfg.CommandTimeout),
	}
	mgr := snapshots.New(led, set, append(base, opts...)...)

	return &env{cfg: cfg, log: log, store: st, ledger: led, manager: mgr}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

// resolveBackupID maps "latest" to the newest backup id.
func resolveBackupID(mgr *snapshots.Manager, arg string) (string, error) {
	if strings.EqualFold(arg, "latest") {
		id, err := mgr.Latest()
		if errors.Is(err, snapshots.ErrNotFound) {
			return "", fmt.Errorf("no backups available\n\nBackups are created by 'tweakguard capture' or by an optimization")
		}
		if err != nil {
			return "", err
		}
		return id, nil
	}
	return arg, nil
}

// confirm prompts on out and reads a yes/no answer from in.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)

	reader := bufio.NewReader(in)
	response, err := reader.ReadString('\n')
	if err != nil && response == "" {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
