package store

const schema = `
CREATE TABLE IF NOT EXISTS backups (
    backup_id TEXT PRIMARY KEY,
    operation TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    document_path TEXT NOT NULL,
    registry_count INTEGER NOT NULL DEFAULT 0,
    file_count INTEGER NOT NULL DEFAULT 0,
    service_count INTEGER NOT NULL DEFAULT 0,
    power_count INTEGER NOT NULL DEFAULT 0,
    startup_count INTEGER NOT NULL DEFAULT 0,
    total_count INTEGER NOT NULL DEFAULT 0,
    blob_bytes INTEGER NOT NULL DEFAULT 0,
    indexed_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS backup_entries (
    backup_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    section TEXT NOT NULL,
    target TEXT NOT NULL,
    description TEXT,
    PRIMARY KEY (backup_id, seq),
    FOREIGN KEY (backup_id) REFERENCES backups(backup_id) ON DELETE CASCADE
);

-- restore_runs has no foreign key: the audit log outlives pruned backups.
CREATE TABLE IF NOT EXISTS restore_runs (
    id TEXT PRIMARY KEY,
    backup_id TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL,
    total INTEGER NOT NULL,
    restored INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    success BOOLEAN NOT NULL,
    summary TEXT
);

CREATE INDEX IF NOT EXISTS idx_backups_created ON backups(created_at);
CREATE INDEX IF NOT EXISTS idx_entries_section ON backup_entries(section);
CREATE INDEX IF NOT EXISTS idx_restore_runs_backup ON restore_runs(backup_id);
CREATE INDEX IF NOT EXISTS idx_restore_runs_started ON restore_runs(started_at);
`
