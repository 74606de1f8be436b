package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tweakguard/internal/ledger"
)

// FileArchiver copies single files byte for byte.
type FileArchiver struct {
	blobs BlobDirs
	log   zerolog.Logger
}

// Capture copies path into the backup. A missing file returns nil, nil.
func (a *FileArchiver) Capture(ctx context.Context, backupID, path, description string) (*ledger.FileEntry, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		a.log.Info().Str("path", path).Msg("file absent, nothing to back up")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	dir, err := a.blobs.BlobDir(backupID, ledger.SectionFile)
	if err != nil {
		return nil, err
	}
	blob := uniquePath(dir, blobName(path, filepath.Ext(path)))

	size, sum, err := copyFile(path, blob, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to copy %s: %w", path, err)
	}

	a.log.Info().Str("path", path).Int64("bytes", size).Msg("file backed up")
	return &ledger.FileEntry{
		Kind:         ledger.KindFile,
		OriginalPath: path,
		BlobPath:     blob,
		Size:         size,
		Mode:         info.Mode().Perm(),
		SHA256:       sum,
		Description:  description,
	}, nil
}

// Restore copies the blob back over the original path, recreating
// parent directories as needed.
func (a *FileArchiver) Restore(ctx context.Context, e *ledger.FileEntry) (Outcome, error) {
	if err := verifyBlob(e.BlobPath, e.SHA256); err != nil {
		return Outcome{Status: StatusFailed}, err
	}
	if err := ctx.Err(); err != nil {
		return Outcome{Status: StatusFailed}, err
	}
	if err := os.MkdirAll(filepath.Dir(e.OriginalPath), 0755); err != nil {
		return Outcome{Status: StatusFailed}, fmt.Errorf("failed to create parent of %s: %w", e.OriginalPath, err)
	}
	if _, _, err := copyFile(e.BlobPath, e.OriginalPath, e.Mode); err != nil {
		return Outcome{Status: StatusFailed}, fmt.Errorf("failed to restore %s: %w", e.OriginalPath, err)
	}
	a.log.Info().Str("path", e.OriginalPath).Msg("file restored")
	return ok(), nil
}
