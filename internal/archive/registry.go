package archive

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tweakguard/internal/ledger"
	"github.com/blackwell-systems/tweakguard/internal/system"
)

// RegistryArchiver exports registry keys to native .reg blobs.
type RegistryArchiver struct {
	reg   system.Registry
	blobs BlobDirs
	log   zerolog.Logger
}

// Capture exports key. A missing key is not an error: it returns nil, nil.
// The export is parsed back before it is trusted, so a truncated or
// empty export fails the capture instead of failing a later restore.
func (a *RegistryArchiver) Capture(ctx context.Context, backupID string, key system.Key, description string) (*ledger.RegistryEntry, error) {
	exists, err := a.reg.KeyExists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", key, err)
	}
	if !exists {
		a.log.Info().Str("key", key.String()).Msg("registry key absent, nothing to back up")
		return nil, nil
	}

	dir, err := a.blobs.BlobDir(backupID, ledger.SectionRegistry)
	if err != nil {
		return nil, err
	}
	path := uniquePath(dir, blobName(key.String(), ".reg"))

	if err := a.reg.Export(ctx, key, path); err != nil {
		os.Remove(path)
		if errors.Is(err, system.ErrKeyNotFound) {
			a.log.Info().Str("key", key.String()).Msg("registry key vanished before export")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to export %s: %w", key, err)
	}

	if err := validateExport(path, key); err != nil {
		os.Remove(path)
		return nil, err
	}

	sum, err := checksumFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to checksum %s: %w", path, err)
	}

	a.log.Info().Str("key", key.String()).Str("blob", path).Msg("registry key exported")
	return &ledger.RegistryEntry{
		Hive:        key.Hive,
		Path:        key.Path,
		BlobPath:    path,
		SHA256:      sum,
		Description: description,
	}, nil
}

func validateExport(path string, key system.Key) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open export of %s: %w", key, err)
	}
	defer f.Close()
	rf, err := system.DecodeRegFile(f)
	if err != nil {
		return fmt.Errorf("export of %s is unreadable: %w", key, err)
	}
	if rf.Find(key) == nil {
		return fmt.Errorf("export of %s does not contain the key", key)
	}
	return nil
}

// Restore imports the blob back, overwriting current values.
func (a *RegistryArchiver) Restore(ctx context.Context, e *ledger.RegistryEntry) (Outcome, error) {
	if err := verifyBlob(e.BlobPath, e.SHA256); err != nil {
		return Outcome{Status: StatusFailed}, err
	}
	if err := a.reg.Import(ctx, e.BlobPath); err != nil {
		return Outcome{Status: StatusFailed}, fmt.Errorf("failed to import %s: %w", e.Target(), err)
	}
	a.log.Info().Str("key", e.Target()).Msg("registry key restored")
	return ok(), nil
}
