// Package config loads the tweakguard configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/tweakguard/internal/system"
)

const (
	// DefaultRetention is how long backups are kept by prune and the daemon.
	DefaultRetention = 30 * 24 * time.Hour
	// DefaultReindexInterval is how often the daemon reconciles the index.
	DefaultReindexInterval = 10 * time.Minute
)

// Config is the on-disk configuration. Zero fields take defaults.
type Config struct {
	BackupRoot     string        `yaml:"backup_root"`
	DBPath         string        `yaml:"db_path"`
	Retention      time.Duration `yaml:"retention"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	LogLevel       string        `yaml:"log_level"`
	Power          PowerConfig   `yaml:"power"`
	Startup        StartupConfig `yaml:"startup"`
	Watch          WatchConfig   `yaml:"watch"`
}

// PowerConfig configures power plan restore.
type PowerConfig struct {
	FallbackPlan string `yaml:"fallback_plan"`
}

// StartupConfig configures startup item capture. Nil folders means the
// per-user and common Startup folders.
type StartupConfig struct {
	Folders []string `yaml:"folders"`
}

// WatchConfig configures the watch daemon.
type WatchConfig struct {
	ReindexInterval time.Duration `yaml:"reindex_interval"`
	MetricsAddr     string        `yaml:"metrics_addr"`
}

// Dir returns the tweakguard config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/tweakguard if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "tweakguard"), nil
}

// DataDir returns ~/.tweakguard, home of the backup root, the index and
// the daemon's PID and log files.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tweakguard"), nil
}

// Default returns the built-in configuration.
func Default() (*Config, error) {
	data, err := DataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	return &Config{
		BackupRoot:     filepath.Join(data, "backups"),
		DBPath:         filepath.Join(data, "tweakguard.db"),
		Retention:      DefaultRetention,
		CommandTimeout: system.DefaultCommandTimeout,
		LogLevel:       "warn",
		Power:          PowerConfig{FallbackPlan: system.PlanBalanced},
		Watch:          WatchConfig{ReindexInterval: DefaultReindexInterval},
	}, nil
}

// Load reads the config file at path, or {Dir}/config.yaml when path is
// empty. A missing file yields the defaults without an error.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config directory: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := decode(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	cfg.BackupRoot = expandHome(cfg.BackupRoot)
	cfg.DBPath = expandHome(cfg.DBPath)
	for i, f := range cfg.Startup.Folders {
		cfg.Startup.Folders[i] = expandHome(os.ExpandEnv(f))
	}
	return nil
}

var guidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.BackupRoot == "" {
		return errors.New("backup_root must not be empty")
	}
	if c.Retention <= 0 {
		return fmt.Errorf("retention must be positive, got %s", c.Retention)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout must be positive, got %s", c.CommandTimeout)
	}
	if c.Watch.ReindexInterval <= 0 {
		return fmt.Errorf("watch.reindex_interval must be positive, got %s", c.Watch.ReindexInterval)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Power.FallbackPlan != "" && !guidPattern.MatchString(c.Power.FallbackPlan) {
		return fmt.Errorf("power.fallback_plan %q is not a GUID", c.Power.FallbackPlan)
	}
	return nil
}

// PIDFile is the watch daemon's PID file, next to the index.
func (c *Config) PIDFile() string {
	return filepath.Join(filepath.Dir(c.DBPath), "watch.pid")
}

// LogFile is the watch daemon's log file.
func (c *Config) LogFile() string {
	return filepath.Join(filepath.Dir(c.DBPath), "watch.log")
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}
