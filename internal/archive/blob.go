package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/blackwell-systems/tweakguard/internal/ledger"
)

var (
	// ErrBlobMissing means a captured payload is gone.
	ErrBlobMissing = errors.New("backup blob missing")
	// ErrChecksumMismatch means a captured payload changed after capture.
	ErrChecksumMismatch = errors.New("backup blob checksum mismatch")
)

// BlobDirs hands out blob directories. *ledger.Ledger implements it, so
// blob lifetime stays with the ledger.
type BlobDirs interface {
	BlobDir(backupID string, s ledger.Section) (string, error)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// blobName derives a file name from a live resource locator. A short hash
// of the full locator keeps names that sanitize identically apart.
func blobName(locator, ext string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(locator)))
	base := strings.Trim(unsafeChars.ReplaceAllString(locator, "_"), "_.")
	if len(base) > 80 {
		base = base[len(base)-80:]
	}
	return fmt.Sprintf("%s-%s%s", base, hex.EncodeToString(sum[:4]), ext)
}

// uniquePath returns dir/name, suffixed with -2, -3, ... when taken.
func uniquePath(dir, name string) string {
	p := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		if _, err := os.Lstat(p); os.IsNotExist(err) {
			return p
		}
		p = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
	}
}

// checksumFile returns the hex sha256 of a file.
func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// verifyBlob checks that a blob exists and, when a checksum was
// recorded, that it still matches.
func verifyBlob(path, sum string) error {
	if path == "" {
		return fmt.Errorf("%w: no blob recorded", ErrBlobMissing)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrBlobMissing, path)
		}
		return fmt.Errorf("failed to stat blob %s: %w", path, err)
	}
	if sum == "" {
		return nil
	}
	got, err := checksumFile(path)
	if err != nil {
		return fmt.Errorf("failed to checksum blob %s: %w", path, err)
	}
	if got != sum {
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, path)
	}
	return nil
}

// copyFile copies src to dst through a temp file in dst's directory and
// returns the byte count and sha256 of what was written.
func copyFile(src, dst string, mode os.FileMode) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", err
	}
	defer in.Close()

	if mode == 0 {
		mode = 0644
	}
	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+"."+uuid.NewString()[:8]+".tmp")
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return 0, "", err
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, h), in)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
