package watcher

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tweakguard/internal/ledger"
	"github.com/blackwell-systems/tweakguard/internal/metrics"
	"github.com/blackwell-systems/tweakguard/internal/store"
)

// DefaultInterval is how often the full reconcile runs.
const DefaultInterval = 10 * time.Minute

// pruneInterval is how often retention is enforced when enabled.
const pruneInterval = time.Hour

// Pruner removes expired backups.
type Pruner interface {
	Prune(maxAge time.Duration) (*ledger.PruneResult, error)
}

// Watcher mirrors ledger documents into the index as they change.
type Watcher struct {
	ledger    *ledger.Ledger
	store     *store.Store
	metrics   *metrics.Metrics
	log       zerolog.Logger
	interval  time.Duration
	pruner    Pruner
	retention time.Duration

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithMetrics counts indexed documents.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Watcher) { w.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(w *Watcher) { w.log = log }
}

// WithInterval sets the full reconcile interval.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithRetention prunes backups older than maxAge every hour.
func WithRetention(p Pruner, maxAge time.Duration) Option {
	return func(w *Watcher) {
		w.pruner = p
		w.retention = maxAge
	}
}

// New creates a new Watcher instance.
func New(l *ledger.Ledger, st *store.Store, opts ...Option) (*Watcher, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	w := &Watcher{
		ledger:   l,
		store:    st,
		log:      zerolog.Nop(),
		interval: DefaultInterval,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start reconciles once, subscribes to the backup root and begins
// processing events in the background.
func (w *Watcher) Start() error {
	if res, err := Reindex(w.ledger, w.store); err != nil {
		w.log.Warn().Err(err).Msg("initial reindex failed")
	} else {
		w.metrics.Indexed(res.Indexed)
		w.log.Info().Int("indexed", res.Indexed).Int("removed", res.Removed).Msg("initial reindex")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(w.ledger.Root()); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.ledger.Root(), err)
	}
	w.fsw = fsw

	w.wg.Add(1)
	go w.run()

	return nil
}

func (w *Watcher) run() {
	defer w.wg.Done()

	reconcile := time.NewTicker(w.interval)
	defer reconcile.Stop()

	var pruneC <-chan time.Time
	if w.pruner != nil && w.retention > 0 {
		prune := time.NewTicker(pruneInterval)
		defer prune.Stop()
		pruneC = prune.C
	}

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("file watcher error")
		case <-reconcile.C:
			res, err := Reindex(w.ledger, w.store)
			if err != nil {
				w.log.Warn().Err(err).Msg("reindex failed")
				continue
			}
			w.log.Debug().Int("indexed", res.Indexed).Int("removed", res.Removed).Msg("reindexed")
		case <-pruneC:
			if _, err := w.pruner.Prune(w.retention); err != nil {
				w.log.Warn().Err(err).Msg("retention prune failed")
			}
		case <-w.stopCh:
			return
		}
	}
}

// handle re-indexes the document an event refers to. Temp files and
// blob directories are ignored.
func (w *Watcher) handle(ev fsnotify.Event) {
	id, ok := ledger.IDFromPath(ev.Name)
	if !ok {
		return
	}
	if err := w.sync(id); err != nil {
		w.log.Warn().Err(err).Str("backup_id", id).Str("op", ev.Op.String()).Msg("failed to index backup")
	}
}

func (w *Watcher) sync(id string) error {
	doc, err := w.ledger.Get(id)
	if errors.Is(err, ledger.ErrNotFound) {
		return w.store.RemoveBackup(id)
	}
	if err != nil {
		return err
	}
	if err := w.store.IndexBackup(doc, w.ledger.DocumentPath(id)); err != nil {
		return err
	}
	w.metrics.Indexed(1)
	w.log.Debug().Str("backup_id", id).Msg("indexed backup")
	return nil
}

// Stop halts the watcher and releases the file watch.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	w.wg.Wait()

	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}
