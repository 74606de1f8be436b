package snapshots

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/tweakguard/internal/ledger"
	"github.com/blackwell-systems/tweakguard/internal/system"
)

// captureParallelism bounds concurrent file captures.
const captureParallelism = 4

// Begin opens a new backup for operation and returns its id.
func (m *Manager) Begin(operation string) (string, error) {
	id, err := m.ledger.New(operation)
	if err != nil {
		return "", fmt.Errorf("failed to begin backup for %s: %w", operation, err)
	}
	m.log.Info().Str("backup_id", id).Str("operation", operation).Msg("backup opened")
	return id, nil
}

// CaptureRegistryKey exports a registry key into the backup.
func (m *Manager) CaptureRegistryKey(ctx context.Context, backupID string, hive system.Hive, path, description string) (*CaptureResult, error) {
	key := system.Key{Hive: hive, Path: path}
	e, err := m.archivers.Registry.Capture(ctx, backupID, key, description)
	if err != nil {
		return nil, m.captureFailed(ledger.SectionRegistry, key.String(), err)
	}
	if e == nil {
		return m.skipped(backupID, ledger.SectionRegistry, key.String(), "registry key does not exist"), nil
	}
	return m.record(backupID, e)
}

// CaptureFile copies a single file into the backup.
func (m *Manager) CaptureFile(ctx context.Context, backupID, path, description string) (*CaptureResult, error) {
	e, err := m.archivers.File.Capture(ctx, backupID, path, description)
	if err != nil {
		return nil, m.captureFailed(ledger.SectionFile, path, err)
	}
	if e == nil {
		return m.skipped(backupID, ledger.SectionFile, path, "file does not exist"), nil
	}
	return m.record(backupID, e)
}

// CaptureDirectory archives a directory tree into the backup.
func (m *Manager) CaptureDirectory(ctx context.Context, backupID, path, description string) (*CaptureResult, error) {
	e, err := m.archivers.Directory.Capture(ctx, backupID, path, description)
	if err != nil {
		return nil, m.captureFailed(ledger.SectionFile, path, err)
	}
	if e == nil {
		return m.skipped(backupID, ledger.SectionFile, path, "directory does not exist"), nil
	}
	return m.record(backupID, e)
}

// CaptureFiles captures several paths concurrently. Directories are
// archived, everything else is copied. Results are in input order; a
// failed path leaves a nil result and contributes to the joined error.
func (m *Manager) CaptureFiles(ctx context.Context, backupID string, paths []string, description string) ([]*CaptureResult, error) {
	results := make([]*CaptureResult, len(paths))
	errs := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(captureParallelism)
	for i, p := range paths {
		g.Go(func() error {
			capture := m.CaptureFile
			if info, err := os.Stat(p); err == nil && info.IsDir() {
				capture = m.CaptureDirectory
			}
			results[i], errs[i] = capture(ctx, backupID, p, description)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// CaptureService records a service's run state.
func (m *Manager) CaptureService(ctx context.Context, backupID, name string) (*CaptureResult, error) {
	e, err := m.archivers.Service.Capture(ctx, name, "")
	if err != nil {
		return nil, m.captureFailed(ledger.SectionService, name, err)
	}
	if e == nil {
		return m.skipped(backupID, ledger.SectionService, name, "service is not installed"), nil
	}
	return m.record(backupID, e)
}

// CapturePowerPlan records the active power plan. Only the first
// capture per backup is kept; later ones are reported as skipped.
func (m *Manager) CapturePowerPlan(ctx context.Context, backupID string) (*CaptureResult, error) {
	e, err := m.archivers.Power.Capture(ctx)
	if err != nil {
		return nil, m.captureFailed(ledger.SectionPower, "active power plan", err)
	}
	return m.record(backupID, e)
}

// CaptureStartupItems records every startup item. Items that were read
// are attached even when some locations failed.
func (m *Manager) CaptureStartupItems(ctx context.Context, backupID string) ([]*CaptureResult, error) {
	entries, capErr := m.archivers.Startup.Capture(ctx, backupID)

	var results []*CaptureResult
	for _, e := range entries {
		r, err := m.record(backupID, e)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	if capErr != nil {
		return results, m.captureFailed(ledger.SectionStartup, "startup items", capErr)
	}
	if len(results) == 0 {
		results = append(results, m.skipped(backupID, ledger.SectionStartup, "startup items", "no startup items found"))
	}
	return results, nil
}

func (m *Manager) record(backupID string, e ledger.Entry) (*CaptureResult, error) {
	err := m.ledger.Append(backupID, e)
	if errors.Is(err, ledger.ErrAlreadyCaptured) {
		return m.skipped(backupID, e.Section(), e.Target(), "already captured in this backup"), nil
	}
	if err != nil {
		m.metrics.Capture(string(e.Section()), "failed")
		return nil, fmt.Errorf("failed to record %s in %s: %w", e.Target(), backupID, err)
	}
	m.metrics.Capture(string(e.Section()), "captured")
	m.log.Debug().Str("backup_id", backupID).Str("section", string(e.Section())).Str("target", e.Target()).Msg("capture recorded")
	return &CaptureResult{BackupID: backupID, Section: e.Section(), Target: e.Target()}, nil
}

func (m *Manager) skipped(backupID string, s ledger.Section, target, reason string) *CaptureResult {
	m.metrics.Capture(string(s), "skipped")
	m.log.Info().Str("backup_id", backupID).Str("target", target).Str("reason", reason).Msg("capture skipped")
	return &CaptureResult{BackupID: backupID, Section: s, Target: target, Skipped: true, Reason: reason}
}

func (m *Manager) captureFailed(s ledger.Section, target string, err error) error {
	m.metrics.Capture(string(s), "failed")
	return fmt.Errorf("%w: %s %s: %w", ErrArchiver, s, target, err)
}
