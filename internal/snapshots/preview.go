package snapshots

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/blackwell-systems/tweakguard/internal/ledger"
	"github.com/blackwell-systems/tweakguard/internal/system"
)

// Preview describes what Restore would do, in the same order, without
// touching the system.
func (m *Manager) Preview(backupID string) (*RestorePreview, error) {
	doc, err := m.ledger.Get(backupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup %s: %w", backupID, err)
	}

	p := &RestorePreview{
		BackupID:  doc.BackupID,
		Operation: doc.Operation,
		CreatedAt: doc.CreatedAt,
	}
	for _, e := range doc.Entries() {
		p.Actions = append(p.Actions, m.plan(e))
	}
	return p, nil
}

func (m *Manager) plan(e ledger.Entry) PlannedAction {
	a := PlannedAction{
		Section:     e.Section(),
		Target:      e.Target(),
		Description: e.Label(),
	}

	switch e := e.(type) {
	case *ledger.RegistryEntry:
		a.Action = "import " + e.BlobPath + " into " + e.Target()
		a.Warning = blobWarning(e.BlobPath)
	case *ledger.FileEntry:
		if e.Kind == ledger.KindDirectory {
			a.Action = fmt.Sprintf("replace %s with archived tree (%s)", e.OriginalPath, humanize.Bytes(uint64(e.Size)))
		} else {
			a.Action = fmt.Sprintf("copy back %s (%s)", e.OriginalPath, humanize.Bytes(uint64(e.Size)))
		}
		a.Warning = blobWarning(e.BlobPath)
	case *ledger.ServiceEntry:
		switch e.State {
		case system.StateRunning:
			a.Action = "start service " + e.Name
		case system.StateStopped:
			a.Action = "stop service " + e.Name
		default:
			a.Action = fmt.Sprintf("leave service %s unchanged (recorded state %s)", e.Name, e.State)
		}
	case *ledger.PowerEntry:
		name := e.Name
		if name == "" {
			name = e.GUID
		}
		a.Action = fmt.Sprintf("activate power plan %s, falling back to %s if it no longer exists", name, m.archivers.Power.Fallback())
	case *ledger.StartupEntry:
		if e.Kind == ledger.StartupRegistry {
			a.Action = fmt.Sprintf("set %s = %q", e.Target(), e.Value)
		} else {
			a.Action = "copy back " + e.Target()
			a.Warning = blobWarning(e.BlobPath)
		}
	}
	return a
}

func blobWarning(path string) string {
	if _, err := os.Stat(path); err != nil {
		return "backup blob missing: " + path
	}
	return ""
}

// ListRestorable returns every backup with its per-section item counts,
// newest first.
func (m *Manager) ListRestorable() ([]Restorable, error) {
	docs, err := m.ledger.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	out := make([]Restorable, 0, len(docs))
	for _, d := range docs {
		out = append(out, Restorable{
			BackupID:  d.BackupID,
			Operation: d.Operation,
			CreatedAt: d.CreatedAt,
			Counts:    d.Counts(),
		})
	}
	return out, nil
}

// Latest returns the id of the newest backup.
func (m *Manager) Latest() (string, error) {
	docs, err := m.ledger.List()
	if err != nil {
		return "", fmt.Errorf("failed to list backups: %w", err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("no backups: %w", ErrNotFound)
	}
	return docs[0].BackupID, nil
}

// Prune removes backups older than maxAge.
func (m *Manager) Prune(maxAge time.Duration) (*ledger.PruneResult, error) {
	res, err := m.ledger.Prune(maxAge)
	if err != nil {
		return nil, fmt.Errorf("failed to prune backups: %w", err)
	}
	m.metrics.Pruned(len(res.Removed), res.BlobsRemoved+res.OrphansRemoved)
	m.log.Info().Int("removed", len(res.Removed)).Int("blobs", res.BlobsRemoved).Int("orphans", res.OrphansRemoved).Msg("pruned backups")
	return res, nil
}
