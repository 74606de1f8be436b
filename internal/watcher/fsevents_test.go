package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blackwell-systems/tweakguard/internal/ledger"
	"github.com/blackwell-systems/tweakguard/internal/metrics"
	"github.com/blackwell-systems/tweakguard/internal/store"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func indexedCount(t *testing.T, m *metrics.Metrics) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == "tweakguard_index_documents_indexed_total" {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestNew_RequiresLedgerAndStore(t *testing.T) {
	st := setupTestStore(t)
	l := setupTestLedger(t)

	if _, err := New(nil, st); err == nil {
		t.Error("New(nil, st) expected error")
	}
	if _, err := New(l, nil); err == nil {
		t.Error("New(l, nil) expected error")
	}
	w, err := New(l, st)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if w.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", w.interval, DefaultInterval)
	}
}

func TestReindex(t *testing.T) {
	st := setupTestStore(t)
	l := setupTestLedger(t)

	id, err := l.New("Disable telemetry")
	if err != nil {
		t.Fatalf("ledger.New() error = %v", err)
	}

	// A row whose document no longer exists.
	stale := &ledger.OperationBackup{BackupID: "gone_20200101_000000", Operation: "gone", CreatedAt: time.Now()}
	if err := st.IndexBackup(stale, filepath.Join(l.Root(), "gone_20200101_000000.json")); err != nil {
		t.Fatalf("IndexBackup() error = %v", err)
	}

	res, err := Reindex(l, st)
	if err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}
	if res.Indexed != 1 || res.Removed != 1 {
		t.Errorf("Reindex() = %+v, want 1 indexed, 1 removed", res)
	}

	if _, err := st.GetBackup(id); err != nil {
		t.Errorf("backup %s not indexed: %v", id, err)
	}
	if _, err := st.GetBackup(stale.BackupID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("stale backup still indexed: %v", err)
	}
}

func TestWatcher_StartIndexesExisting(t *testing.T) {
	st := setupTestStore(t)
	l := setupTestLedger(t)
	m := metrics.New()

	id, err := l.New("Existing")
	if err != nil {
		t.Fatalf("ledger.New() error = %v", err)
	}

	w, err := New(l, st, WithMetrics(m))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if _, err := st.GetBackup(id); err != nil {
		t.Errorf("existing backup not indexed on start: %v", err)
	}
	if got := indexedCount(t, m); got < 1 {
		t.Errorf("indexed counter = %v, want >= 1", got)
	}
}

func TestWatcher_FollowsDocumentChanges(t *testing.T) {
	st := setupTestStore(t)
	l := setupTestLedger(t)

	w, err := New(l, st)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	id, err := l.New("Created while watching")
	if err != nil {
		t.Fatalf("ledger.New() error = %v", err)
	}
	waitFor(t, "backup to be indexed", func() bool {
		_, err := st.GetBackup(id)
		return err == nil
	})

	if err := os.Remove(l.DocumentPath(id)); err != nil {
		t.Fatalf("failed to remove document: %v", err)
	}
	waitFor(t, "backup to be dropped", func() bool {
		_, err := st.GetBackup(id)
		return errors.Is(err, store.ErrNotFound)
	})
}

func TestWatcher_IgnoresNonDocuments(t *testing.T) {
	st := setupTestStore(t)
	l := setupTestLedger(t)

	w, err := New(l, st)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	for _, name := range []string{"notes.txt", ".partial.json.tmp"} {
		if err := os.WriteFile(filepath.Join(l.Root(), name), []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
	time.Sleep(200 * time.Millisecond)

	backups, err := st.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected no indexed backups, got %d", len(backups))
	}
}

func TestWatcher_StopBeforeStart(t *testing.T) {
	w, err := New(setupTestLedger(t), setupTestStore(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() before Start() error = %v, want nil", err)
	}
}
