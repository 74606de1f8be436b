package snapshots

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tweakguard/internal/archive"
	"github.com/blackwell-systems/tweakguard/internal/ledger"
	"github.com/blackwell-systems/tweakguard/internal/metrics"
	"github.com/blackwell-systems/tweakguard/internal/store"
	"github.com/blackwell-systems/tweakguard/internal/system"
)

var (
	// ErrNotFound means the backup id has no ledger document.
	ErrNotFound = ledger.ErrNotFound
	// ErrArchiver wraps a failed capture step.
	ErrArchiver = errors.New("archiver failure")
	// ErrLedgerWrite means a capture could not be persisted.
	ErrLedgerWrite = ledger.ErrLedgerWrite
)

// Manager opens backups, attaches captures to them and replays them.
type Manager struct {
	ledger    *ledger.Ledger
	archivers *archive.Set
	store     *store.Store
	metrics   *metrics.Metrics
	log       zerolog.Logger
	timeout   time.Duration
	progress  ProgressFunc
	now       func() time.Time
}

// ProgressFunc is called after each restored entry.
type ProgressFunc func(done, total int, out EntryOutcome)

// Option configures a Manager.
type Option func(*Manager)

// WithStore records restore runs in the index audit log.
func WithStore(s *store.Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithMetrics counts captures, restored entries and pruning.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithEntryTimeout bounds each restored entry that runs OS tools
// (registry, services, power, registry startup items).
func WithEntryTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithProgress reports restore progress entry by entry.
func WithProgress(fn ProgressFunc) Option {
	return func(m *Manager) { m.progress = fn }
}

// New creates a new Manager.
func New(l *ledger.Ledger, set *archive.Set, opts ...Option) *Manager {
	m := &Manager{
		ledger:    l,
		archivers: set,
		log:       zerolog.Nop(),
		timeout:   system.DefaultCommandTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ledger returns the ledger the manager writes to.
func (m *Manager) Ledger() *ledger.Ledger {
	return m.ledger
}

// CaptureResult describes one capture call. Skipped is set when there
// was nothing to protect; Reason says why.
type CaptureResult struct {
	BackupID string
	Section  ledger.Section
	Target   string
	Skipped  bool
	Reason   string
}

// EntryOutcome is the result of restoring one entry.
type EntryOutcome struct {
	Section     ledger.Section
	Target      string
	Description string
	Status      archive.Status
	Detail      string
}

// RestoreReport aggregates every entry outcome of one restore run.
type RestoreReport struct {
	RunID      string
	BackupID   string
	Operation  string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []EntryOutcome
	Success    bool
}

// Restored counts entries that did not fail.
func (r *RestoreReport) Restored() int {
	return len(r.Outcomes) - len(r.Failed())
}

// Failed returns the failed outcomes.
func (r *RestoreReport) Failed() []EntryOutcome {
	var out []EntryOutcome
	for _, o := range r.Outcomes {
		if o.Status == archive.StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

// Summary renders the one-line result, e.g.
// "3 of 4 items restored; failed: hosts file".
func (r *RestoreReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d items restored", r.Restored(), len(r.Outcomes))

	var failed, approx []string
	for _, o := range r.Outcomes {
		switch o.Status {
		case archive.StatusFailed:
			failed = append(failed, o.Description)
		case archive.StatusApproximate:
			approx = append(approx, o.Description)
		}
	}
	if len(failed) > 0 {
		b.WriteString("; failed: " + strings.Join(failed, ", "))
	}
	if len(approx) > 0 {
		b.WriteString("; approximate: " + strings.Join(approx, ", "))
	}
	return b.String()
}

// PlannedAction is what a restore would do for one entry.
type PlannedAction struct {
	Section     ledger.Section
	Target      string
	Description string
	Action      string
	// Warning flags an entry that would fail, such as a missing blob.
	Warning string
}

// RestorePreview lists the planned actions of a restore, in order.
type RestorePreview struct {
	BackupID  string
	Operation string
	CreatedAt time.Time
	Actions   []PlannedAction
}

// Restorable is a backup available for restore.
type Restorable struct {
	BackupID  string
	Operation string
	CreatedAt time.Time
	Counts    ledger.Counts
}

// ApplyResult is the result of a guarded operation.
type ApplyResult struct {
	BackupID   string
	RolledBack bool
	Rollback   *RestoreReport
}
