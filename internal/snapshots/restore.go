package snapshots

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/blackwell-systems/tweakguard/internal/archive"
	"github.com/blackwell-systems/tweakguard/internal/ledger"
	"github.com/blackwell-systems/tweakguard/internal/store"
)

// Restore replays every entry of a backup: registry, files and
// directories, services, power plan, startup items. Entry failures are
// recorded in the report and never stop the traversal; the error is
// non-nil only when the backup cannot be loaded.
func (m *Manager) Restore(ctx context.Context, backupID string) (*RestoreReport, error) {
	doc, err := m.ledger.Get(backupID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.metrics.Restore("not_found", 0)
		}
		return nil, fmt.Errorf("failed to load backup %s: %w", backupID, err)
	}

	report := &RestoreReport{
		RunID:     uuid.NewString(),
		BackupID:  doc.BackupID,
		Operation: doc.Operation,
		StartedAt: m.now(),
	}

	entries := doc.Entries()
	for i, e := range entries {
		out := m.restoreEntry(ctx, e)
		m.metrics.RestoreEntry(string(out.Section), string(out.Status))
		report.Outcomes = append(report.Outcomes, out)
		if m.progress != nil {
			m.progress(i+1, len(entries), out)
		}
	}

	report.FinishedAt = m.now()
	report.Success = len(report.Failed()) == 0

	result := "success"
	if !report.Success {
		result = "partial"
	}
	m.metrics.Restore(result, report.FinishedAt.Sub(report.StartedAt))
	m.recordRun(report)

	m.log.Info().Str("backup_id", backupID).Bool("success", report.Success).Msg(report.Summary())
	return report, nil
}

// restoreEntry runs one archiver restore to completion before returning,
// so entries never overlap. Entries that drive OS tools run under the
// entry timeout; file and directory entries only stop on cancellation of
// ctx itself.
func (m *Manager) restoreEntry(ctx context.Context, e ledger.Entry) EntryOutcome {
	outcome := EntryOutcome{
		Section:     e.Section(),
		Target:      e.Target(),
		Description: e.Label(),
	}

	ectx := ctx
	if usesTools(e) {
		var cancel context.CancelFunc
		ectx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	out, err := m.runArchiver(ectx, e)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("timed out after %s: %w", m.timeout, err)
	}
	if err != nil {
		outcome.Status = archive.StatusFailed
		outcome.Detail = err.Error()
		m.log.Warn().Err(err).Str("target", outcome.Target).Msg("restore entry failed")
		return outcome
	}
	outcome.Status = out.Status
	outcome.Detail = out.Detail
	return outcome
}

func (m *Manager) runArchiver(ctx context.Context, e ledger.Entry) (out archive.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = archive.Outcome{Status: archive.StatusFailed}
			err = fmt.Errorf("%w: panic: %v", ErrArchiver, r)
		}
	}()
	return m.archivers.Restore(ctx, e)
}

// usesTools reports whether restoring e shells out to reg, sc or powercfg.
func usesTools(e ledger.Entry) bool {
	switch e := e.(type) {
	case *ledger.RegistryEntry, *ledger.ServiceEntry, *ledger.PowerEntry:
		return true
	case *ledger.StartupEntry:
		return e.Kind == ledger.StartupRegistry
	default:
		return false
	}
}

func (m *Manager) recordRun(r *RestoreReport) {
	if m.store == nil {
		return
	}
	run := &store.RestoreRun{
		ID:         r.RunID,
		BackupID:   r.BackupID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Total:      len(r.Outcomes),
		Restored:   r.Restored(),
		Failed:     len(r.Failed()),
		Success:    r.Success,
		Summary:    r.Summary(),
	}
	if err := m.store.InsertRestoreRun(run); err != nil {
		m.log.Warn().Err(err).Str("backup_id", r.BackupID).Msg("failed to record restore run")
	}
}
