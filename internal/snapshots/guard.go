package snapshots

import (
	"context"
	"fmt"
)

// Apply runs a mutating operation under a fresh backup. capture attaches
// snapshots to the backup; if it fails, mutate is never called. If
// mutate fails, the backup is restored immediately and the result
// carries the rollback report.
func (m *Manager) Apply(ctx context.Context, operation string,
	capture func(ctx context.Context, backupID string) error,
	mutate func(ctx context.Context) error,
) (*ApplyResult, error) {
	id, err := m.Begin(operation)
	if err != nil {
		return nil, err
	}
	res := &ApplyResult{BackupID: id}

	if err := capture(ctx, id); err != nil {
		return res, fmt.Errorf("backup for %s failed, change not applied: %w", operation, err)
	}

	mutErr := mutate(ctx)
	if mutErr == nil {
		return res, nil
	}

	m.log.Warn().Err(mutErr).Str("backup_id", id).Msg("operation failed, rolling back")
	report, err := m.Restore(ctx, id)
	if err != nil {
		return res, fmt.Errorf("%s failed (%w) and rollback could not start: %v", operation, mutErr, err)
	}
	res.RolledBack = true
	res.Rollback = report
	return res, fmt.Errorf("%s failed and was rolled back (%s): %w", operation, report.Summary(), mutErr)
}
