// Package output provides terminal output utilities for tweakguard.
//
// This package includes:
//   - Table rendering for backups, restore previews, restore reports and the audit log
//   - Progress bars for restores
//   - Spinners for indeterminate operations
//
// All table rendering functions use ASCII characters and ANSI color codes for terminal output.
// Progress indicators are thread-safe and can be used from multiple goroutines.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/tweakguard/internal/archive"
	"github.com/blackwell-systems/tweakguard/internal/ledger"
	"github.com/blackwell-systems/tweakguard/internal/snapshots"
	"github.com/blackwell-systems/tweakguard/internal/store"
)

// ANSI color codes for status display
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderBackupTable renders the restorable backups, newest first as given.
func RenderBackupTable(backups []snapshots.Restorable) string {
	if len(backups) == 0 {
		return "No backups found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-36s %-16s %5s %5s %5s %5s %5s  %s\n",
		"Backup", "Created", "Reg", "Files", "Svc", "Power", "Start", "Operation"))
	sb.WriteString(strings.Repeat("─", 100))
	sb.WriteString("\n")

	for _, b := range backups {
		sb.WriteString(fmt.Sprintf("%-36s %-16s %5d %5d %5d %5d %5d  %s\n",
			truncate(b.BackupID, 36),
			formatRelativeTime(b.CreatedAt),
			b.Counts.Registry,
			b.Counts.Files,
			b.Counts.Services,
			b.Counts.Power,
			b.Counts.Startup,
			truncate(b.Operation, 30)))
	}

	return sb.String()
}

// RenderPreview renders the planned actions of a restore in execution order.
func RenderPreview(p *snapshots.RestorePreview) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Backup %s (%s, %s)\n\n",
		p.BackupID, p.Operation, formatRelativeTime(p.CreatedAt)))

	if len(p.Actions) == 0 {
		sb.WriteString("Nothing to restore.\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("%-4s %-9s %-40s %s\n", "#", "Section", "Item", "Action"))
	sb.WriteString(strings.Repeat("─", 90))
	sb.WriteString("\n")

	warnings := 0
	for i, a := range p.Actions {
		sb.WriteString(fmt.Sprintf("%-4d %-9s %-40s %s\n",
			i+1, a.Section, truncate(a.Description, 40), a.Action))
		if a.Warning != "" {
			warnings++
			sb.WriteString("     " + colorize(colorYellow, "⚠ "+a.Warning) + "\n")
		}
	}

	sb.WriteString(fmt.Sprintf("\n%d %s", len(p.Actions), plural(len(p.Actions), "action", "actions")))
	if warnings > 0 {
		sb.WriteString(fmt.Sprintf(", %d would fail", warnings))
	}
	sb.WriteString("\n")
	return sb.String()
}

// RenderRestoreReport renders every entry outcome followed by the summary line.
func RenderRestoreReport(r *snapshots.RestoreReport) string {
	var sb strings.Builder

	for _, o := range r.Outcomes {
		line := fmt.Sprintf("%-12s %-9s %s", formatStatus(o.Status), o.Section, o.Description)
		if o.Detail != "" {
			line += colorize(colorGray, " ("+o.Detail+")")
		}
		sb.WriteString(line + "\n")
	}

	if len(r.Outcomes) > 0 {
		sb.WriteString("\n")
	}
	summary := r.Summary()
	if r.Success {
		sb.WriteString(colorize(colorGreen, "✓ "+summary))
	} else {
		sb.WriteString(colorize(colorRed, "✗ "+summary))
	}
	sb.WriteString(fmt.Sprintf(" in %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)))
	return sb.String()
}

// RenderCaptureResults renders one line per capture call.
func RenderCaptureResults(results []*snapshots.CaptureResult) string {
	var sb strings.Builder
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Skipped {
			sb.WriteString(fmt.Sprintf("%s %-9s %s: %s\n",
				colorize(colorGray, "skipped "), r.Section, r.Target, r.Reason))
			continue
		}
		sb.WriteString(fmt.Sprintf("%s %-9s %s\n", colorize(colorGreen, "captured"), r.Section, r.Target))
	}
	return sb.String()
}

// RenderRestoreRuns renders the restore audit log.
func RenderRestoreRuns(runs []*store.RestoreRun) string {
	if len(runs) == 0 {
		return "No restore runs recorded.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-16s %-36s %-8s %s\n", "When", "Backup", "Result", "Summary"))
	sb.WriteString(strings.Repeat("─", 100))
	sb.WriteString("\n")

	for _, run := range runs {
		result := colorize(colorGreen, "ok      ")
		if !run.Success {
			result = colorize(colorRed, "partial ")
		}
		sb.WriteString(fmt.Sprintf("%-16s %-36s %s %s\n",
			formatRelativeTime(run.StartedAt),
			truncate(run.BackupID, 36),
			result,
			run.Summary))
	}
	return sb.String()
}

// RenderBackupHeader renders an indexed backup as a one-line heading.
func RenderBackupHeader(b *store.Backup) string {
	counts := RenderCounts(ledger.Counts{
		Registry: b.RegistryCount,
		Files:    b.FileCount,
		Services: b.ServiceCount,
		Power:    b.PowerCount,
		Startup:  b.StartupCount,
	})
	return fmt.Sprintf("Backup %s (%s, %s): %s\n\n", b.BackupID, b.Operation, formatRelativeTime(b.CreatedAt), counts)
}

// RenderStats renders the index summary shown by the status command.
func RenderStats(s *store.Stats) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Backups:       %d (%d entries)\n", s.Backups, s.Entries))
	sb.WriteString(fmt.Sprintf("Blob storage:  %s\n", formatSize(s.BlobBytes)))
	if s.Backups > 0 {
		sb.WriteString(fmt.Sprintf("Newest:        %s\n", formatRelativeTime(s.Newest)))
		sb.WriteString(fmt.Sprintf("Oldest:        %s\n", formatRelativeTime(s.Oldest)))
	}
	sb.WriteString(fmt.Sprintf("Restore runs:  %d", s.RestoreRuns))
	if !s.LastRestore.IsZero() {
		sb.WriteString(fmt.Sprintf(" (last %s)", formatRelativeTime(s.LastRestore)))
	}
	sb.WriteString("\n")
	return sb.String()
}

// RenderCounts renders section counts as "2 registry, 1 file".
func RenderCounts(c ledger.Counts) string {
	var parts []string
	add := func(n int, one, many string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, plural(n, one, many)))
		}
	}
	add(c.Registry, "registry key", "registry keys")
	add(c.Files, "file", "files")
	add(c.Services, "service", "services")
	add(c.Power, "power plan", "power plans")
	add(c.Startup, "startup item", "startup items")
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, ", ")
}

// formatStatus returns a colored, fixed-width status label.
func formatStatus(s archive.Status) string {
	label := fmt.Sprintf("%-12s", strings.ToUpper(string(s)))
	return colorize(statusColor(s), label)
}

func statusColor(s archive.Status) string {
	switch s {
	case archive.StatusOK:
		return colorGreen
	case archive.StatusApproximate:
		return colorYellow
	case archive.StatusFailed:
		return colorRed
	default:
		return colorGray
	}
}

// formatSize converts bytes to a human-readable size.
func formatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.Bytes(uint64(bytes))
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if time.Since(t) < time.Minute {
		return "just now"
	}
	return humanize.Time(t)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
