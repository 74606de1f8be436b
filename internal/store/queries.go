package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/blackwell-systems/tweakguard/internal/ledger"
)

// runTimeLayout is fixed width so restore runs sort lexically.
const runTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Backup operations

// IndexBackup writes or refreshes the index rows for a ledger document.
// It implements ledger.Indexer.
func (s *Store) IndexBackup(b *ledger.OperationBackup, docPath string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	counts := b.Counts()
	var blobBytes int64
	for _, f := range b.Files {
		blobBytes += f.Size
	}

	query := `
		INSERT INTO backups
		(backup_id, operation, created_at, document_path, registry_count, file_count,
		 service_count, power_count, startup_count, total_count, blob_bytes, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(backup_id) DO UPDATE SET
			operation = excluded.operation,
			created_at = excluded.created_at,
			document_path = excluded.document_path,
			registry_count = excluded.registry_count,
			file_count = excluded.file_count,
			service_count = excluded.service_count,
			power_count = excluded.power_count,
			startup_count = excluded.startup_count,
			total_count = excluded.total_count,
			blob_bytes = excluded.blob_bytes,
			indexed_at = excluded.indexed_at
	`
	_, err = tx.Exec(query,
		b.BackupID,
		b.Operation,
		b.CreatedAt.UTC().Format(time.RFC3339),
		docPath,
		counts.Registry,
		counts.Files,
		counts.Services,
		counts.Power,
		counts.Startup,
		counts.Total,
		blobBytes,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return wrap(err, "failed to index backup %s", b.BackupID)
	}

	if _, err := tx.Exec("DELETE FROM backup_entries WHERE backup_id = ?", b.BackupID); err != nil {
		return wrap(err, "failed to clear entries for %s", b.BackupID)
	}
	for i, e := range b.Entries() {
		_, err := tx.Exec(
			"INSERT INTO backup_entries (backup_id, seq, section, target, description) VALUES (?, ?, ?, ?, ?)",
			b.BackupID, i, string(e.Section()), e.Target(), e.Label(),
		)
		if err != nil {
			return wrap(err, "failed to index entry %d of %s", i, b.BackupID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index of %s: %w", b.BackupID, err)
	}
	return nil
}

// RemoveBackup drops a backup and its entries. Restore runs are kept.
// It implements ledger.Indexer.
func (s *Store) RemoveBackup(backupID string) error {
	if _, err := s.db.Exec("DELETE FROM backups WHERE backup_id = ?", backupID); err != nil {
		return wrap(err, "failed to remove backup %s", backupID)
	}
	return nil
}

const backupColumns = `backup_id, operation, created_at, document_path, registry_count, file_count,
	service_count, power_count, startup_count, total_count, blob_bytes, indexed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanBackup(row scanner) (*Backup, error) {
	var b Backup
	var createdAt, indexedAt string
	err := row.Scan(
		&b.BackupID,
		&b.Operation,
		&createdAt,
		&b.DocumentPath,
		&b.RegistryCount,
		&b.FileCount,
		&b.ServiceCount,
		&b.PowerCount,
		&b.StartupCount,
		&b.TotalCount,
		&b.BlobBytes,
		&indexedAt,
	)
	if err != nil {
		return nil, err
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at for %s: %w", b.BackupID, err)
	}
	if b.IndexedAt, err = time.Parse(time.RFC3339, indexedAt); err != nil {
		return nil, fmt.Errorf("failed to parse indexed_at for %s: %w", b.BackupID, err)
	}
	return &b, nil
}

// GetBackup retrieves an indexed backup by id.
func (s *Store) GetBackup(backupID string) (*Backup, error) {
	row := s.db.QueryRow("SELECT "+backupColumns+" FROM backups WHERE backup_id = ?", backupID)
	b, err := scanBackup(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", backupID, ErrNotFound)
	}
	if err != nil {
		return nil, wrap(err, "failed to get backup %s", backupID)
	}
	return b, nil
}

// ListBackups returns all indexed backups, newest first.
func (s *Store) ListBackups() ([]*Backup, error) {
	rows, err := s.db.Query("SELECT " + backupColumns + " FROM backups ORDER BY created_at DESC, backup_id DESC")
	if err != nil {
		return nil, wrap(err, "failed to list backups")
	}
	defer rows.Close()

	var backups []*Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup row: %w", err)
		}
		backups = append(backups, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backups: %w", err)
	}
	return backups, nil
}

// ListEntries returns the indexed entries of a backup in restore order.
func (s *Store) ListEntries(backupID string) ([]*Entry, error) {
	query := `
		SELECT backup_id, seq, section, target, COALESCE(description, '')
		FROM backup_entries
		WHERE backup_id = ?
		ORDER BY seq
	`
	rows, err := s.db.Query(query, backupID)
	if err != nil {
		return nil, wrap(err, "failed to list entries for %s", backupID)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.BackupID, &e.Seq, &e.Section, &e.Target, &e.Description); err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return entries, nil
}

// Restore run operations

// InsertRestoreRun appends a restore run to the audit log.
func (s *Store) InsertRestoreRun(run *RestoreRun) error {
	query := `
		INSERT INTO restore_runs
		(id, backup_id, started_at, finished_at, total, restored, failed, success, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		run.ID,
		run.BackupID,
		run.StartedAt.UTC().Format(runTimeLayout),
		run.FinishedAt.UTC().Format(runTimeLayout),
		run.Total,
		run.Restored,
		run.Failed,
		run.Success,
		run.Summary,
	)
	if err != nil {
		return wrap(err, "failed to insert restore run %s", run.ID)
	}
	return nil
}

// ListRestoreRuns returns restore runs newest first. An empty backupID
// returns runs for every backup.
func (s *Store) ListRestoreRuns(backupID string) ([]*RestoreRun, error) {
	query := `
		SELECT id, backup_id, started_at, finished_at, total, restored, failed, success, COALESCE(summary, '')
		FROM restore_runs
		WHERE (? = '' OR backup_id = ?)
		ORDER BY started_at DESC
	`
	rows, err := s.db.Query(query, backupID, backupID)
	if err != nil {
		return nil, wrap(err, "failed to list restore runs")
	}
	defer rows.Close()

	var runs []*RestoreRun
	for rows.Next() {
		var r RestoreRun
		var started, finished string
		err := rows.Scan(&r.ID, &r.BackupID, &started, &finished, &r.Total, &r.Restored, &r.Failed, &r.Success, &r.Summary)
		if err != nil {
			return nil, fmt.Errorf("failed to scan restore run row: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("failed to parse started_at for run %s: %w", r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("failed to parse finished_at for run %s: %w", r.ID, err)
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating restore runs: %w", err)
	}
	return runs, nil
}

// GetStats summarizes the index.
func (s *Store) GetStats() (*Stats, error) {
	var st Stats
	var oldest, newest, lastRestore sql.NullString

	err := s.db.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(blob_bytes), 0), MIN(created_at), MAX(created_at) FROM backups",
	).Scan(&st.Backups, &st.BlobBytes, &oldest, &newest)
	if err != nil {
		return nil, wrap(err, "failed to count backups")
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM backup_entries").Scan(&st.Entries); err != nil {
		return nil, wrap(err, "failed to count entries")
	}
	err = s.db.QueryRow("SELECT COUNT(*), MAX(started_at) FROM restore_runs").Scan(&st.RestoreRuns, &lastRestore)
	if err != nil {
		return nil, wrap(err, "failed to count restore runs")
	}

	if oldest.Valid {
		st.Oldest, _ = time.Parse(time.RFC3339, oldest.String)
	}
	if newest.Valid {
		st.Newest, _ = time.Parse(time.RFC3339, newest.String)
	}
	if lastRestore.Valid {
		st.LastRestore, _ = time.Parse(time.RFC3339Nano, lastRestore.String)
	}
	return &st, nil
}
