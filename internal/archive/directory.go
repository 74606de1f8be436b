package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tweakguard/internal/ledger"
)

// DirectoryArchiver stores a directory tree as a deflate zip.
type DirectoryArchiver struct {
	blobs BlobDirs
	log   zerolog.Logger
}

// Capture zips the tree rooted at path. Unreadable files are logged and
// left out; the rest of the tree is still captured. A missing directory
// returns nil, nil.
func (a *DirectoryArchiver) Capture(ctx context.Context, backupID, path, description string) (*ledger.FileEntry, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		a.log.Info().Str("path", path).Msg("directory absent, nothing to back up")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}

	dir, err := a.blobs.BlobDir(backupID, ledger.SectionFile)
	if err != nil {
		return nil, err
	}
	blob := uniquePath(dir, blobName(path, ".zip"))

	size, err := a.zipTree(ctx, path, blob)
	if err != nil {
		os.Remove(blob)
		return nil, fmt.Errorf("failed to archive %s: %w", path, err)
	}
	sum, err := checksumFile(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to checksum %s: %w", blob, err)
	}

	a.log.Info().Str("path", path).Int64("bytes", size).Msg("directory backed up")
	return &ledger.FileEntry{
		Kind:         ledger.KindDirectory,
		OriginalPath: path,
		BlobPath:     blob,
		Size:         size,
		Mode:         info.Mode().Perm(),
		SHA256:       sum,
		Description:  description,
	}, nil
}

// zipTree writes root into a zip at dest and returns the uncompressed
// byte total.
func (a *DirectoryArchiver) zipTree(ctx context.Context, root, dest string) (int64, error) {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	var total int64

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			a.log.Warn().Err(err).Str("path", p).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			a.log.Warn().Err(err).Str("path", p).Msg("skipping unreadable entry")
			return nil
		}
		if d.IsDir() {
			hdr, err := zip.FileInfoHeader(info)
			if err != nil {
				return err
			}
			hdr.Name = name + "/"
			_, err = zw.CreateHeader(hdr)
			return err
		}
		if !info.Mode().IsRegular() {
			a.log.Debug().Str("path", p).Msg("skipping non-regular file")
			return nil
		}

		n, err := addFile(zw, p, name, info)
		if err != nil {
			if os.IsPermission(err) || os.IsNotExist(err) {
				a.log.Warn().Err(err).Str("path", p).Msg("skipping unreadable file")
				return nil
			}
			return err
		}
		total += n
		return nil
	})
	if walkErr != nil {
		return 0, walkErr
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return total, out.Sync()
}

func addFile(zw *zip.Writer, path, name string, info fs.FileInfo) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return 0, err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return 0, err
	}
	return io.Copy(w, f)
}

// Restore extracts the archive into a staging directory next to the
// original path and swaps it in. The live tree is only touched by the
// final renames, after extraction has fully succeeded.
func (a *DirectoryArchiver) Restore(ctx context.Context, e *ledger.FileEntry) (Outcome, error) {
	if err := verifyBlob(e.BlobPath, e.SHA256); err != nil {
		return Outcome{Status: StatusFailed}, err
	}
	zr, err := zip.OpenReader(e.BlobPath)
	if err != nil {
		return Outcome{Status: StatusFailed}, fmt.Errorf("failed to open archive %s: %w", e.BlobPath, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !filepath.IsLocal(strings.TrimSuffix(f.Name, "/")) {
			return Outcome{Status: StatusFailed}, fmt.Errorf("archive %s contains unsafe path %q", e.BlobPath, f.Name)
		}
	}
	if err := ctx.Err(); err != nil {
		return Outcome{Status: StatusFailed}, err
	}

	parent, base := filepath.Dir(e.OriginalPath), filepath.Base(e.OriginalPath)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return Outcome{Status: StatusFailed}, fmt.Errorf("failed to create parent of %s: %w", e.OriginalPath, err)
	}
	staging, err := os.MkdirTemp(parent, "."+base+".restore-")
	if err != nil {
		return Outcome{Status: StatusFailed}, fmt.Errorf("failed to stage %s: %w", e.OriginalPath, err)
	}
	swapped := false
	defer func() {
		if !swapped {
			os.RemoveAll(staging)
		}
	}()

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return Outcome{Status: StatusFailed}, err
		}
		if err := extract(f, staging); err != nil {
			return Outcome{Status: StatusFailed}, fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}
	mode := e.Mode
	if mode == 0 {
		mode = 0755
	}
	if err := os.Chmod(staging, mode|0700); err != nil {
		return Outcome{Status: StatusFailed}, fmt.Errorf("failed to set mode on %s: %w", e.OriginalPath, err)
	}
	if err := ctx.Err(); err != nil {
		return Outcome{Status: StatusFailed}, err
	}

	if err := a.swapIn(staging, e.OriginalPath); err != nil {
		return Outcome{Status: StatusFailed}, err
	}
	swapped = true

	a.log.Info().Str("path", e.OriginalPath).Int("entries", len(zr.File)).Msg("directory restored")
	return ok(), nil
}

// swapIn moves staging to dst. An existing dst is renamed aside first and
// put back if the second rename fails.
func (a *DirectoryArchiver) swapIn(staging, dst string) error {
	if _, err := os.Lstat(dst); os.IsNotExist(err) {
		if err := os.Rename(staging, dst); err != nil {
			return fmt.Errorf("failed to move restored tree into %s: %w", dst, err)
		}
		return nil
	}

	old := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".old-"+uuid.NewString()[:8])
	if err := os.Rename(dst, old); err != nil {
		return fmt.Errorf("failed to move %s aside: %w", dst, err)
	}
	if err := os.Rename(staging, dst); err != nil {
		if rerr := os.Rename(old, dst); rerr != nil {
			return fmt.Errorf("failed to move restored tree into %s (previous tree left at %s): %w", dst, old, err)
		}
		return fmt.Errorf("failed to move restored tree into %s: %w", dst, err)
	}
	if err := os.RemoveAll(old); err != nil {
		a.log.Warn().Err(err).Str("path", old).Msg("failed to remove previous tree")
	}
	return nil
}

func extract(f *zip.File, root string) error {
	target := filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(f.Name, "/")))
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, f.Mode().Perm()|0700)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
