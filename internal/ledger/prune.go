package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PruneResult summarizes a Prune call.
type PruneResult struct {
	Removed        []string
	BlobsRemoved   int
	OrphansRemoved int
}

// Prune deletes documents created more than maxAge ago together with
// their blobs. A blob still referenced by a surviving document is never
// removed. Blob directories and temp files left behind by crashed
// writers are removed once they are older than the cutoff.
func (l *Ledger) Prune(maxAge time.Duration) (*PruneResult, error) {
	cutoff := l.now().Add(-maxAge)

	docs, err := l.List()
	if err != nil {
		return nil, err
	}

	live := make(map[string]bool)
	liveIDs := make(map[string]bool)
	var expired []*OperationBackup
	for _, doc := range docs {
		if doc.CreatedAt.Before(cutoff) {
			expired = append(expired, doc)
			continue
		}
		liveIDs[doc.BackupID] = true
		for _, b := range doc.Blobs() {
			live[filepath.Clean(b)] = true
		}
	}

	res := &PruneResult{}
	for _, doc := range expired {
		m := l.lockFor(doc.BackupID)
		m.Lock()
		for _, b := range doc.Blobs() {
			if live[filepath.Clean(b)] {
				continue
			}
			if err := os.Remove(b); err == nil {
				res.BlobsRemoved++
			} else if !os.IsNotExist(err) {
				l.log.Warn().Err(err).Str("blob", b).Msg("failed to remove blob")
			}
		}
		if err := os.Remove(l.DocumentPath(doc.BackupID)); err != nil && !os.IsNotExist(err) {
			m.Unlock()
			return res, fmt.Errorf("failed to delete backup %s: %w", doc.BackupID, err)
		}
		l.removeBlobDir(doc.BackupID, live)
		m.Unlock()

		res.Removed = append(res.Removed, doc.BackupID)
		if l.index != nil {
			if err := l.index.RemoveBackup(doc.BackupID); err != nil {
				l.log.Warn().Err(err).Str("backup_id", doc.BackupID).Msg("failed to remove backup from index")
			}
		}
		l.log.Info().Str("backup_id", doc.BackupID).Time("created_at", doc.CreatedAt).Msg("backup pruned")
	}

	res.OrphansRemoved = l.pruneOrphans(cutoff, liveIDs, live)
	return res, nil
}

// removeBlobDir deletes the blob directory of a pruned backup unless a
// live document still points into it.
func (l *Ledger) removeBlobDir(backupID string, live map[string]bool) {
	dir := filepath.Join(l.root, "blobs", backupID)
	prefix := dir + string(os.PathSeparator)
	for b := range live {
		if strings.HasPrefix(b, prefix) {
			return
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		l.log.Warn().Err(err).Str("dir", dir).Msg("failed to remove blob directory")
	}
}

func (l *Ledger) pruneOrphans(cutoff time.Time, liveIDs, live map[string]bool) int {
	removed := 0

	blobRoot := filepath.Join(l.root, "blobs")
	dirs, err := os.ReadDir(blobRoot)
	if err != nil {
		l.log.Warn().Err(err).Msg("failed to scan blob directory")
		return 0
	}
	for _, de := range dirs {
		if !de.IsDir() || liveIDs[de.Name()] {
			continue
		}
		if _, err := os.Stat(l.DocumentPath(de.Name())); err == nil {
			continue
		}
		info, err := de.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		l.removeBlobDir(de.Name(), live)
		removed++
	}

	files, err := os.ReadDir(l.root)
	if err != nil {
		return removed
	}
	for _, de := range files {
		if de.IsDir() || !strings.HasPrefix(de.Name(), ".") || !strings.HasSuffix(de.Name(), ".tmp") {
			continue
		}
		info, err := de.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(l.root, de.Name())) == nil {
			removed++
		}
	}
	return removed
}
