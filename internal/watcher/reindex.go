package watcher

import (
	"fmt"

	"github.com/blackwell-systems/tweakguard/internal/ledger"
	"github.com/blackwell-systems/tweakguard/internal/store"
)

// ReindexResult counts what a full reconcile changed.
type ReindexResult struct {
	Indexed int
	Removed int
}

// Reindex rebuilds the index from the ledger: every readable document is
// upserted and every indexed backup without a document is dropped.
func Reindex(l *ledger.Ledger, st *store.Store) (*ReindexResult, error) {
	docs, err := l.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	res := &ReindexResult{}
	live := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if err := st.IndexBackup(doc, l.DocumentPath(doc.BackupID)); err != nil {
			return res, fmt.Errorf("failed to index %s: %w", doc.BackupID, err)
		}
		live[doc.BackupID] = true
		res.Indexed++
	}

	indexed, err := st.ListBackups()
	if err != nil {
		return res, fmt.Errorf("failed to list indexed backups: %w", err)
	}
	for _, b := range indexed {
		if live[b.BackupID] {
			continue
		}
		if err := st.RemoveBackup(b.BackupID); err != nil {
			return res, fmt.Errorf("failed to drop %s: %w", b.BackupID, err)
		}
		res.Removed++
	}

	return res, nil
}
