package archive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tweakguard/internal/ledger"
	"github.com/blackwell-systems/tweakguard/internal/system"
)

const (
	runKey     = `Software\Microsoft\Windows\CurrentVersion\Run`
	runOnceKey = `Software\Microsoft\Windows\CurrentVersion\RunOnce`
)

// DefaultStartupKeys returns the per-user and machine-wide Run and
// RunOnce keys.
func DefaultStartupKeys() []system.Key {
	return []system.Key{
		{Hive: system.HKCU, Path: runKey},
		{Hive: system.HKCU, Path: runOnceKey},
		{Hive: system.HKLM, Path: runKey},
		{Hive: system.HKLM, Path: runOnceKey},
	}
}

// DefaultStartupFolders returns the per-user and common Startup folders.
// Folders whose base variable is unset are omitted.
func DefaultStartupFolders() []string {
	var out []string
	for _, env := range []string{"APPDATA", "ProgramData"} {
		base := os.Getenv(env)
		if base == "" {
			continue
		}
		out = append(out, filepath.Join(base, "Microsoft", "Windows", "Start Menu", "Programs", "Startup"))
	}
	return out
}

// StartupArchiver records auto-run items from the Run keys and the
// Startup folders.
type StartupArchiver struct {
	reg     system.Registry
	blobs   BlobDirs
	keys    []system.Key
	folders []string
	log     zerolog.Logger
}

// Capture enumerates every startup location. Locations that do not exist
// are skipped. The returned entries are valid even when err is non-nil:
// err joins the locations that could not be read.
func (a *StartupArchiver) Capture(ctx context.Context, backupID string) ([]*ledger.StartupEntry, error) {
	var (
		entries []*ledger.StartupEntry
		errs    []error
	)

	for _, key := range a.keys {
		values, err := a.reg.Values(ctx, key)
		if errors.Is(err, system.ErrKeyNotFound) {
			a.log.Debug().Str("key", key.String()).Msg("startup key absent")
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to read %s: %w", key, err))
			continue
		}
		for _, v := range values {
			if v.Name == "" {
				continue
			}
			entries = append(entries, &ledger.StartupEntry{
				Kind:      ledger.StartupRegistry,
				Hive:      key.Hive,
				Location:  key.Path,
				Name:      v.Name,
				ValueType: v.Type,
				Value:     v.Data(),
			})
		}
	}

	for _, folder := range a.folders {
		items, err := a.captureFolder(backupID, folder)
		if err != nil {
			errs = append(errs, err)
		}
		entries = append(entries, items...)
	}

	a.log.Info().Int("items", len(entries)).Msg("startup items recorded")
	return entries, errors.Join(errs...)
}

func (a *StartupArchiver) captureFolder(backupID, folder string) ([]*ledger.StartupEntry, error) {
	dirents, err := os.ReadDir(folder)
	if os.IsNotExist(err) {
		a.log.Debug().Str("folder", folder).Msg("startup folder absent")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", folder, err)
	}

	var (
		out  []*ledger.StartupEntry
		errs []error
	)
	for _, d := range dirents {
		if !d.Type().IsRegular() || strings.EqualFold(d.Name(), "desktop.ini") {
			continue
		}
		dir, err := a.blobs.BlobDir(backupID, ledger.SectionStartup)
		if err != nil {
			return out, err
		}
		src := filepath.Join(folder, d.Name())
		blob := uniquePath(dir, blobName(src, filepath.Ext(src)))
		if _, sum, err := copyFile(src, blob, 0600); err != nil {
			errs = append(errs, fmt.Errorf("failed to copy %s: %w", src, err))
		} else {
			out = append(out, &ledger.StartupEntry{
				Kind:     ledger.StartupFolder,
				Location: folder,
				Name:     d.Name(),
				BlobPath: blob,
				SHA256:   sum,
			})
		}
	}
	return out, errors.Join(errs...)
}

// Restore rewrites a Run value or puts a folder item back.
func (a *StartupArchiver) Restore(ctx context.Context, e *ledger.StartupEntry) (Outcome, error) {
	switch e.Kind {
	case ledger.StartupRegistry:
		v, err := valueFromData(e.Name, e.ValueType, e.Value)
		if err != nil {
			return Outcome{Status: StatusFailed}, err
		}
		key := system.Key{Hive: e.Hive, Path: e.Location}
		if err := a.reg.SetValue(ctx, key, v); err != nil {
			return Outcome{Status: StatusFailed}, fmt.Errorf("failed to write %s: %w", e.Target(), err)
		}
	case ledger.StartupFolder:
		if err := verifyBlob(e.BlobPath, e.SHA256); err != nil {
			return Outcome{Status: StatusFailed}, err
		}
		if err := os.MkdirAll(e.Location, 0755); err != nil {
			return Outcome{Status: StatusFailed}, fmt.Errorf("failed to create %s: %w", e.Location, err)
		}
		if _, _, err := copyFile(e.BlobPath, filepath.Join(e.Location, e.Name), 0644); err != nil {
			return Outcome{Status: StatusFailed}, fmt.Errorf("failed to restore %s: %w", e.Target(), err)
		}
	default:
		return Outcome{Status: StatusFailed}, fmt.Errorf("unknown startup item kind %q", e.Kind)
	}
	a.log.Info().Str("item", e.Target()).Msg("startup item restored")
	return ok(), nil
}

// valueFromData is the inverse of system.Value.Data.
func valueFromData(name string, typ system.ValueType, data string) (system.Value, error) {
	v := system.Value{Name: name, Type: typ}
	switch typ {
	case system.TypeDWord, system.TypeQWord:
		n, err := strconv.ParseUint(data, 10, 64)
		if err != nil {
			return v, fmt.Errorf("invalid %s data %q: %w", typ, data, err)
		}
		v.Integer = n
	case system.TypeMultiString:
		v.Strings = strings.Split(data, `\0`)
	case system.TypeBinary:
		b, err := hex.DecodeString(data)
		if err != nil {
			return v, fmt.Errorf("invalid %s data %q: %w", typ, data, err)
		}
		v.Binary = b
	case "":
		v.Type = system.TypeString
		v.String = data
	default:
		v.String = data
	}
	return v, nil
}
