package app

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tweakguard/internal/config"
	"github.com/blackwell-systems/tweakguard/internal/system/systemtest"
)

// testEnv points the CLI at temp paths and in-memory OS fakes.
type testEnv struct {
	dir     string
	root    string
	db      string
	config  string
	startup string
	reg     *systemtest.Registry
	svc     *systemtest.Services
	power   *systemtest.Power
}

func setupCLI(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	te := &testEnv{
		dir:     dir,
		root:    filepath.Join(dir, "backups"),
		db:      filepath.Join(dir, "index", "tweakguard.db"),
		config:  filepath.Join(dir, "config.yaml"),
		startup: filepath.Join(dir, "Startup"),
		reg:     systemtest.NewRegistry(),
		svc:     systemtest.NewServices(),
		power:   systemtest.NewPower(),
	}
	if err := os.MkdirAll(te.startup, 0755); err != nil {
		t.Fatalf("failed to create startup folder: %v", err)
	}
	cfg := fmt.Sprintf("retention: 720h\nstartup:\n  folders:\n    - %q\n", te.startup)
	if err := os.WriteFile(te.config, []byte(cfg), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	oldCaps := newCapabilities
	newCapabilities = func(*config.Config, zerolog.Logger) capabilities {
		return capabilities{registry: te.reg, services: te.svc, power: te.power}
	}
	t.Cleanup(func() {
		newCapabilities = oldCaps
		resetFlags()
	})
	resetFlags()
	return te
}

// resetFlags clears package-level flag values; cobra keeps them between
// executions of the same command tree.
func resetFlags() {
	cfgFile, dbPath, backupRoot, logLevel = "", "", "", ""
	captureBackup, captureOp, captureDesc = "", "", ""
	restoreFlagYes = false
	pruneOlderThan = 0
	watchDaemon, watchDaemonChild, watchStop = false, false, false
	watchPIDFile, watchLogFile, watchMetricsAddr = "", "", ""
}

// run executes the CLI with stdin and returns stdout.
func (te *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetIn(strings.NewReader(stdin))
	RootCmd.SetArgs(append([]string{"--config", te.config, "--root", te.root, "--db", te.db}, args...))
	defer RootCmd.SetArgs(nil)

	err := RootCmd.Execute()
	return out.String(), err
}
