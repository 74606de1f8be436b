package store

import "time"

// Backup is the indexed summary of one ledger document.
type Backup struct {
	BackupID      string
	Operation     string
	CreatedAt     time.Time
	DocumentPath  string
	RegistryCount int
	FileCount     int
	ServiceCount  int
	PowerCount    int
	StartupCount  int
	TotalCount    int
	BlobBytes     int64
	IndexedAt     time.Time
}

// Entry is one indexed snapshot entry.
type Entry struct {
	BackupID    string
	Seq         int
	Section     string
	Target      string
	Description string
}

// RestoreRun records one restore of a backup.
type RestoreRun struct {
	ID         string
	BackupID   string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Restored   int
	Failed     int
	Success    bool
	Summary    string
}

// Stats summarizes the index.
type Stats struct {
	Backups     int
	Entries     int
	BlobBytes   int64
	RestoreRuns int
	Oldest      time.Time
	Newest      time.Time
	LastRestore time.Time
}
