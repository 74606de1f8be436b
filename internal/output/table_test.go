package output

import (
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/tweakguard/internal/archive"
	"github.com/blackwell-systems/tweakguard/internal/ledger"
	"github.com/blackwell-systems/tweakguard/internal/snapshots"
	"github.com/blackwell-systems/tweakguard/internal/store"
)

func TestRenderBackupTable_Empty(t *testing.T) {
	if got := RenderBackupTable(nil); got != "No backups found.\n" {
		t.Errorf("unexpected output for empty list: %q", got)
	}
}

func TestRenderBackupTable_Rows(t *testing.T) {
	backups := []snapshots.Restorable{
		{
			BackupID:  "disable_telemetry_20260101_120000",
			Operation: "Disable telemetry",
			CreatedAt: time.Now().Add(-2 * time.Hour),
			Counts:    ledger.Counts{Registry: 2, Services: 1, Total: 3},
		},
	}

	out := RenderBackupTable(backups)
	for _, want := range []string{"Backup", "disable_telemetry_20260101_120000", "Disable telemetry", "2 hours ago"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderPreview(t *testing.T) {
	p := &snapshots.RestorePreview{
		BackupID:  "op_20260101_120000",
		Operation: "op",
		CreatedAt: time.Now(),
		Actions: []snapshots.PlannedAction{
			{Section: ledger.SectionRegistry, Description: "explorer tweaks", Action: "import HKCU\\Software\\X"},
			{Section: ledger.SectionFile, Description: "hosts file", Action: "copy back", Warning: "blob missing"},
		},
	}

	out := RenderPreview(p)
	if !strings.Contains(out, "1    registry  explorer tweaks") {
		t.Errorf("preview missing first action:\n%s", out)
	}
	if !strings.Contains(out, "⚠ blob missing") {
		t.Errorf("preview missing warning:\n%s", out)
	}
	if !strings.Contains(out, "2 actions, 1 would fail") {
		t.Errorf("preview missing footer:\n%s", out)
	}
}

func TestRenderPreview_Empty(t *testing.T) {
	out := RenderPreview(&snapshots.RestorePreview{BackupID: "x", Operation: "x"})
	if !strings.Contains(out, "Nothing to restore.") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestRenderRestoreReport(t *testing.T) {
	start := time.Now()
	r := &snapshots.RestoreReport{
		BackupID:   "op_20260101_120000",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Outcomes: []snapshots.EntryOutcome{
			{Section: ledger.SectionRegistry, Description: "explorer tweaks", Status: archive.StatusOK},
			{Section: ledger.SectionFile, Description: "hosts file", Status: archive.StatusFailed, Detail: "access denied"},
		},
	}

	out := RenderRestoreReport(r)
	if !strings.Contains(out, "FAILED") || !strings.Contains(out, "(access denied)") {
		t.Errorf("report missing failed entry:\n%s", out)
	}
	if !strings.Contains(out, "✗ 1 of 2 items restored; failed: hosts file in 1.5s") {
		t.Errorf("report missing summary:\n%s", out)
	}
}

func TestRenderCaptureResults(t *testing.T) {
	out := RenderCaptureResults([]*snapshots.CaptureResult{
		{Section: ledger.SectionService, Target: "DiagTrack"},
		nil,
		{Section: ledger.SectionFile, Target: `C:\missing.txt`, Skipped: true, Reason: "file does not exist"},
	})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "captured") {
		t.Errorf("first line should be captured: %q", lines[0])
	}
	if !strings.Contains(lines[1], "file does not exist") {
		t.Errorf("second line should carry the reason: %q", lines[1])
	}
}

func TestRenderRestoreRuns(t *testing.T) {
	if got := RenderRestoreRuns(nil); got != "No restore runs recorded.\n" {
		t.Errorf("unexpected output: %q", got)
	}

	out := RenderRestoreRuns([]*store.RestoreRun{
		{BackupID: "op_1", StartedAt: time.Now(), Success: true, Summary: "1 of 1 items restored"},
		{BackupID: "op_2", StartedAt: time.Now(), Success: false, Summary: "0 of 1 items restored; failed: x"},
	})
	if !strings.Contains(out, "ok") || !strings.Contains(out, "partial") {
		t.Errorf("runs missing result labels:\n%s", out)
	}
}

func TestRenderStats(t *testing.T) {
	out := RenderStats(&store.Stats{Backups: 2, Entries: 5, BlobBytes: 2048, RestoreRuns: 0})
	for _, want := range []string{"Backups:       2 (5 entries)", "2.0 kB", "Restore runs:  0\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats missing %q:\n%s", want, out)
		}
	}
}

func TestRenderBackupHeader(t *testing.T) {
	b := &store.Backup{
		BackupID:      "Tune_20261018_142233",
		Operation:     "Tune",
		CreatedAt:     time.Now().Add(-72 * time.Hour),
		RegistryCount: 2,
		ServiceCount:  1,
	}
	want := "Backup Tune_20261018_142233 (Tune, 3 days ago): 2 registry keys, 1 service\n\n"
	if got := RenderBackupHeader(b); got != want {
		t.Errorf("RenderBackupHeader() = %q, want %q", got, want)
	}
}

func TestRenderCounts(t *testing.T) {
	tests := []struct {
		counts ledger.Counts
		want   string
	}{
		{ledger.Counts{}, "empty"},
		{ledger.Counts{Registry: 1, Files: 2}, "1 registry key, 2 files"},
		{ledger.Counts{Power: 1, Startup: 3}, "1 power plan, 3 startup items"},
	}
	for _, tt := range tests {
		if got := RenderCounts(tt.counts); got != tt.want {
			t.Errorf("RenderCounts(%+v) = %q, want %q", tt.counts, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestFormatRelativeTime(t *testing.T) {
	if got := formatRelativeTime(time.Time{}); got != "never" {
		t.Errorf("zero time = %q, want never", got)
	}
	if got := formatRelativeTime(time.Now()); got != "just now" {
		t.Errorf("now = %q, want just now", got)
	}
	if got := formatRelativeTime(time.Now().Add(-3 * 24 * time.Hour)); got != "3 days ago" {
		t.Errorf("3 days = %q", got)
	}
}
