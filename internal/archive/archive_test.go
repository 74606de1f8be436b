package archive_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/tweakguard/internal/archive"
	"github.com/blackwell-systems/tweakguard/internal/ledger"
	"github.com/blackwell-systems/tweakguard/internal/system"
	"github.com/blackwell-systems/tweakguard/internal/system/systemtest"
)

type fixture struct {
	set     *archive.Set
	ledger  *ledger.Ledger
	reg     *systemtest.Registry
	svc     *systemtest.Services
	power   *systemtest.Power
	startup string
	id      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l, err := ledger.Open(t.TempDir())
	require.NoError(t, err)
	id, err := l.New("test op")
	require.NoError(t, err)

	f := &fixture{
		ledger:  l,
		reg:     systemtest.NewRegistry(),
		svc:     systemtest.NewServices(),
		power:   systemtest.NewPower(),
		startup: filepath.Join(t.TempDir(), "Startup"),
		id:      id,
	}
	f.set = archive.NewSet(archive.Config{
		Registry:       f.reg,
		Services:       f.svc,
		Power:          f.power,
		Blobs:          l,
		StartupFolders: []string{f.startup},
		Log:            zerolog.Nop(),
	})
	return f
}

var ctx = context.Background()

func TestRegistry_CaptureRestoreDWORD(t *testing.T) {
	f := newFixture(t)
	key := system.Key{Hive: system.HKCU, Path: `Software\Example`}
	f.reg.Set(key, system.Value{Name: "Flag", Type: system.TypeDWord, Integer: 0})

	e, err := f.set.Registry.Capture(ctx, f.id, key, "example flag")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, system.HKCU, e.Hive)
	assert.NotEmpty(t, e.SHA256)
	assert.FileExists(t, e.BlobPath)

	f.reg.Set(key, system.Value{Name: "Flag", Type: system.TypeDWord, Integer: 1})

	out, err := f.set.Restore(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, archive.StatusOK, out.Status)
	v, ok := f.reg.Get(key, "Flag")
	require.True(t, ok)
	assert.Equal(t, uint64(0), v.Integer)
}

func TestRegistry_AbsentKeyIsSkipped(t *testing.T) {
	f := newFixture(t)
	e, err := f.set.Registry.Capture(ctx, f.id, system.Key{Hive: system.HKLM, Path: `Software\Missing`}, "")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestRegistry_AccessDeniedIsNotSkipped(t *testing.T) {
	f := newFixture(t)
	key := system.Key{Hive: system.HKLM, Path: `Software\Policies\Example`}
	f.reg.Set(key, system.Value{Name: "A", Type: system.TypeDWord, Integer: 1})
	f.reg.Deny(key)

	e, err := f.set.Registry.Capture(ctx, f.id, key, "")
	assert.Nil(t, e)
	assert.ErrorIs(t, err, systemtest.ErrAccessDenied)
}

func TestRegistry_ExportFailure(t *testing.T) {
	f := newFixture(t)
	key := system.Key{Hive: system.HKCU, Path: `Software\Example`}
	f.reg.Set(key, system.Value{Name: "A", Type: system.TypeString, String: "x"})
	f.reg.ExportErr = errors.New("access denied")

	_, err := f.set.Registry.Capture(ctx, f.id, key, "")
	assert.ErrorContains(t, err, "access denied")
}

func TestRegistry_RestoreDetectsTamperedBlob(t *testing.T) {
	f := newFixture(t)
	key := system.Key{Hive: system.HKCU, Path: `Software\Example`}
	f.reg.Set(key, system.Value{Name: "A", Type: system.TypeString, String: "x"})
	e, err := f.set.Registry.Capture(ctx, f.id, key, "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(e.BlobPath, []byte("garbage"), 0600))
	out, err := f.set.Restore(ctx, e)
	assert.ErrorIs(t, err, archive.ErrChecksumMismatch)
	assert.Equal(t, archive.StatusFailed, out.Status)
	assert.Equal(t, 0, f.reg.Imports)

	require.NoError(t, os.Remove(e.BlobPath))
	_, err = f.set.Restore(ctx, e)
	assert.ErrorIs(t, err, archive.ErrBlobMissing)
}

func TestFile_CaptureRestore(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "conf", "app.ini")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("mode=fast\n"), 0640))

	e, err := f.set.File.Capture(ctx, f.id, path, "")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(10), e.Size)
	assert.Equal(t, ledger.KindFile, e.Kind)

	// Delete the whole parent; restore recreates it.
	require.NoError(t, os.RemoveAll(filepath.Dir(path)))
	_, err = f.set.Restore(ctx, e)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mode=fast\n", string(got))

	// Restoring twice leaves the same result.
	_, err = f.set.Restore(ctx, e)
	require.NoError(t, err)
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mode=fast\n", string(got))
}

func TestFile_AbsentAndDirectory(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	e, err := f.set.File.Capture(ctx, f.id, filepath.Join(dir, "nope.txt"), "")
	require.NoError(t, err)
	assert.Nil(t, e)

	_, err = f.set.File.Capture(ctx, f.id, dir, "")
	assert.Error(t, err)
}

func TestFile_SameNameDifferentDirs(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a", "hosts")
	b := filepath.Join(dir, "b", "hosts")
	for _, p := range []string{a, b} {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(p), 0644))
	}

	ea, err := f.set.File.Capture(ctx, f.id, a, "")
	require.NoError(t, err)
	eb, err := f.set.File.Capture(ctx, f.id, b, "")
	require.NoError(t, err)
	assert.NotEqual(t, ea.BlobPath, eb.BlobPath)

	// Capturing the same path again must not clobber the first blob.
	ea2, err := f.set.File.Capture(ctx, f.id, a, "")
	require.NoError(t, err)
	assert.NotEqual(t, ea.BlobPath, ea2.BlobPath)
}

func TestDirectory_CaptureRestore(t *testing.T) {
	f := newFixture(t)
	root := filepath.Join(t.TempDir(), "Settings")
	files := map[string]string{
		"one.cfg":         "0123456789",
		"sub/two.cfg":     "abcdefghij",
		"sub/deep/3.json": "{\"k\": 12}",
	}
	var total int64
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0644))
		total += int64(len(body))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))

	e, err := f.set.Directory.Capture(ctx, f.id, root, "settings")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, ledger.KindDirectory, e.Kind)
	assert.Equal(t, total, e.Size)
	assert.Equal(t, int64(29), e.Size)

	// Mutate the tree: change, add and delete.
	require.NoError(t, os.WriteFile(filepath.Join(root, "one.cfg"), []byte("changed"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "extra.tmp"), []byte("x"), 0644))
	require.NoError(t, os.RemoveAll(filepath.Join(root, "sub")))

	out, err := f.set.Restore(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, archive.StatusOK, out.Status)

	for name, body := range files {
		got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
		require.NoError(t, err, name)
		assert.Equal(t, body, string(got))
	}
	assert.NoFileExists(t, filepath.Join(root, "extra.tmp"))
	assert.DirExists(t, filepath.Join(root, "empty"))
}

func TestDirectory_CancelledRestoreLeavesLiveTree(t *testing.T) {
	f := newFixture(t)
	parent := t.TempDir()
	root := filepath.Join(parent, "Cache")
	require.NoError(t, os.MkdirAll(root, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.bin"), []byte("original"), 0644))

	e, err := f.set.Directory.Capture(ctx, f.id, root, "cache")
	require.NoError(t, err)
	require.NotNil(t, e)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.bin"), []byte("current"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.bin"), []byte("new"), 0644))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	out, err := f.set.Restore(cctx, e)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, archive.StatusFailed, out.Status)

	got, err := os.ReadFile(filepath.Join(root, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "current", string(got))
	assert.FileExists(t, filepath.Join(root, "b.bin"))

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no staging directory is left behind")
	assert.Equal(t, "Cache", entries[0].Name())
}

func TestDirectory_RestoreLeavesNoStagingDirs(t *testing.T) {
	f := newFixture(t)
	parent := t.TempDir()
	root := filepath.Join(parent, "Settings")
	require.NoError(t, os.MkdirAll(root, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "one.cfg"), []byte("1"), 0644))

	e, err := f.set.Directory.Capture(ctx, f.id, root, "")
	require.NoError(t, err)

	for _, remove := range []bool{false, true} {
		if remove {
			require.NoError(t, os.RemoveAll(root))
		}
		out, err := f.set.Restore(ctx, e)
		require.NoError(t, err)
		assert.Equal(t, archive.StatusOK, out.Status)

		entries, err := os.ReadDir(parent)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Settings", entries[0].Name())
		got, err := os.ReadFile(filepath.Join(root, "one.cfg"))
		require.NoError(t, err)
		assert.Equal(t, "1", string(got))
	}
}

func TestDirectory_AbsentIsSkipped(t *testing.T) {
	f := newFixture(t)
	e, err := f.set.Directory.Capture(ctx, f.id, filepath.Join(t.TempDir(), "gone"), "")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestService_CaptureRestore(t *testing.T) {
	f := newFixture(t)
	f.svc.Install("svcA", system.StateRunning, map[string]string{"START_TYPE": "2 AUTO_START"})

	e, err := f.set.Service.Capture(ctx, "svcA", "")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, system.StateRunning, e.State)
	assert.Equal(t, "2 AUTO_START", e.Config["START_TYPE"])

	f.svc.SetState("svcA", system.StateStopped)
	out, err := f.set.Restore(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, archive.StatusOK, out.Status)
	st, _ := f.svc.Status(ctx, "svcA")
	assert.Equal(t, system.StateRunning, st)
}

func TestService_NotInstalledAndPaused(t *testing.T) {
	f := newFixture(t)
	e, err := f.set.Service.Capture(ctx, "ghost", "")
	require.NoError(t, err)
	assert.Nil(t, e)

	out, err := f.set.Restore(ctx, &ledger.ServiceEntry{Name: "svcB", State: system.StatePaused})
	require.NoError(t, err)
	assert.Equal(t, archive.StatusSkipped, out.Status)

	_, err = f.set.Restore(ctx, &ledger.ServiceEntry{Name: "ghost", State: system.StateRunning})
	assert.ErrorIs(t, err, system.ErrServiceNotFound)
}

func TestPower_RestoreAndFallback(t *testing.T) {
	f := newFixture(t)
	custom := "11111111-2222-3333-4444-555555555555"
	f.power.AddPlan(custom, "Gaming")
	require.NoError(t, f.power.SetActive(ctx, custom))

	e, err := f.set.Power.Capture(ctx)
	require.NoError(t, err)
	assert.Equal(t, custom, e.GUID)
	assert.Equal(t, "Gaming", e.Name)

	require.NoError(t, f.power.SetActive(ctx, system.PlanHighPerformance))
	out, err := f.set.Restore(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, archive.StatusOK, out.Status)
	assert.Equal(t, custom, f.power.ActiveGUID())

	// The plan gets deleted; restore falls back to Balanced.
	require.NoError(t, f.power.SetActive(ctx, system.PlanHighPerformance))
	f.power.RemovePlan(custom)
	out, err = f.set.Restore(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, archive.StatusApproximate, out.Status)
	assert.Contains(t, out.Detail, custom)
	assert.Equal(t, system.PlanBalanced, f.power.ActiveGUID())
}

func TestPower_FallbackWithLocalizedPowercfg(t *testing.T) {
	const custom = "11111111-2222-3333-4444-555555555555"
	r := systemtest.NewRunner()
	r.On("powercfg /getactivescheme", 0,
		"GUID do Esquema de Energia: 8c5e7fda-e8bf-4a96-9a85-a6e23a8c635c  (Alto desempenho)\r\n")
	r.On("powercfg /setactive "+custom, 1,
		"O esquema de energia, subgrupo ou configuração especificado não existe.")
	r.On("powercfg /list", 0,
		"GUID do Esquema de Energia: 381b4222-f694-41f0-9685-ff5bb260df2e  (Equilibrado)\r\n"+
			"GUID do Esquema de Energia: 8c5e7fda-e8bf-4a96-9a85-a6e23a8c635c  (Alto desempenho) *\r\n")
	r.On("powercfg /setactive "+system.PlanBalanced, 0, "")

	set := archive.NewSet(archive.Config{Power: system.NewPowerCfg(r), Log: zerolog.Nop()})
	out, err := set.Restore(ctx, &ledger.PowerEntry{GUID: custom, Name: "Jogos"})
	require.NoError(t, err)
	assert.Equal(t, archive.StatusApproximate, out.Status)
	assert.Contains(t, r.Calls, "powercfg /setactive "+system.PlanBalanced)
}

func TestStartup_DeniedKeyIsReported(t *testing.T) {
	f := newFixture(t)
	userRun := system.Key{Hive: system.HKCU, Path: `Software\Microsoft\Windows\CurrentVersion\Run`}
	machineRun := system.Key{Hive: system.HKLM, Path: `Software\Microsoft\Windows\CurrentVersion\Run`}
	f.reg.Set(userRun, system.Value{Name: "Updater", Type: system.TypeString, String: `C:\upd.exe`})
	f.reg.Set(machineRun, system.Value{Name: "Agent", Type: system.TypeString, String: `C:\agent.exe`})
	f.reg.Deny(machineRun)

	entries, err := f.set.Startup.Capture(ctx, f.id)
	assert.ErrorIs(t, err, systemtest.ErrAccessDenied)
	require.Len(t, entries, 1)
	assert.Equal(t, "Updater", entries[0].Name)
}

func TestStartup_CaptureRestore(t *testing.T) {
	f := newFixture(t)
	run := system.Key{Hive: system.HKCU, Path: `Software\Microsoft\Windows\CurrentVersion\Run`}
	f.reg.Set(run, system.Value{Name: "Updater", Type: system.TypeString, String: `C:\upd.exe /quiet`})
	require.NoError(t, os.MkdirAll(f.startup, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.startup, "Tool.lnk"), []byte("lnk"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(f.startup, "desktop.ini"), []byte("ini"), 0644))

	entries, err := f.set.Startup.Capture(ctx, f.id)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.StartupRegistry, entries[0].Kind)
	assert.Equal(t, "Updater", entries[0].Name)
	assert.Equal(t, ledger.StartupFolder, entries[1].Kind)
	assert.Equal(t, "Tool.lnk", entries[1].Name)

	// An optimizer disables both.
	f.reg.Set(run, system.Value{Name: "Updater", Type: system.TypeString, String: ""})
	require.NoError(t, os.Remove(filepath.Join(f.startup, "Tool.lnk")))

	for _, e := range entries {
		out, err := f.set.Restore(ctx, e)
		require.NoError(t, err)
		assert.Equal(t, archive.StatusOK, out.Status)
	}
	v, ok := f.reg.Get(run, "Updater")
	require.True(t, ok)
	assert.Equal(t, `C:\upd.exe /quiet`, v.String)
	assert.FileExists(t, filepath.Join(f.startup, "Tool.lnk"))
}

func TestStartup_NothingPresent(t *testing.T) {
	f := newFixture(t)
	entries, err := f.set.Startup.Capture(ctx, f.id)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
