// Package ledger stores operation backups as one JSON document per
// backup id under a backup root, together with the blobs the documents
// reference.
//
// Layout:
//
//	<root>/<backup_id>.json
//	<root>/blobs/<backup_id>/<section>/<blob>
//
// Documents are only ever appended to. They disappear as a whole when
// Prune removes them.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound means no document exists for the backup id.
	ErrNotFound = errors.New("backup not found")
	// ErrBackupExists means New collided with an existing document.
	ErrBackupExists = errors.New("backup already exists")
	// ErrLedgerWrite means a document could not be durably written.
	ErrLedgerWrite = errors.New("ledger write failed")
	// ErrAlreadyCaptured means a singleton section was already filled.
	ErrAlreadyCaptured = errors.New("section already captured")
	// ErrInvalidID means a backup id is not a safe file name.
	ErrInvalidID = errors.New("invalid backup id")
)

// idTimeFormat gives ids second resolution.
const idTimeFormat = "20060102_150405"

const docSuffix = ".json"

// Indexer is notified after documents are written or pruned. Failures are
// logged, never propagated: the JSON documents are authoritative.
type Indexer interface {
	IndexBackup(b *OperationBackup, docPath string) error
	RemoveBackup(backupID string) error
}

// Ledger is the backup ledger rooted at one directory.
type Ledger struct {
	root  string
	log   zerolog.Logger
	index Indexer
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithIndexer attaches an index that mirrors every write.
func WithIndexer(idx Indexer) Option {
	return func(l *Ledger) { l.index = idx }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Open creates the backup root if needed and returns a Ledger for it.
func Open(root string, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		root:  root,
		log:   zerolog.Nop(),
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := os.MkdirAll(filepath.Join(root, "blobs"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup root: %w", err)
	}
	return l, nil
}

// Root returns the backup root directory.
func (l *Ledger) Root() string {
	return l.root
}

// DocumentPath returns the document path for a backup id.
func (l *Ledger) DocumentPath(backupID string) string {
	return filepath.Join(l.root, backupID+docSuffix)
}

// BlobDir returns (and creates) the blob directory for one section of a
// backup.
func (l *Ledger) BlobDir(backupID string, s Section) (string, error) {
	if err := validateID(backupID); err != nil {
		return "", err
	}
	dir := filepath.Join(l.root, "blobs", backupID, string(s))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}
	return dir, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName maps an arbitrary label to a file-name-safe token.
func SanitizeName(s string) string {
	s = strings.Trim(unsafeName.ReplaceAllString(s, "_"), "_.")
	if s == "" {
		return "operation"
	}
	return s
}

func validateID(id string) error {
	if id == "" || id != filepath.Base(id) || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func (l *Ledger) lockFor(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// New creates the document for a new operation and returns its id.
//
// Ids have second resolution: two operations with the same name started
// in the same second collide, and the second New fails with
// ErrBackupExists.
func (l *Ledger) New(operation string) (string, error) {
	now := l.now()
	id := fmt.Sprintf("%s_%s", SanitizeName(operation), now.Format(idTimeFormat))

	m := l.lockFor(id)
	m.Lock()
	defer m.Unlock()

	path := l.DocumentPath(id)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrBackupExists, id)
	}

	doc := &OperationBackup{
		Version:   SchemaVersion,
		BackupID:  id,
		Operation: operation,
		CreatedAt: now.UTC().Truncate(time.Second),
	}
	if err := l.write(doc); err != nil {
		return "", err
	}
	l.log.Info().Str("backup_id", id).Str("operation", operation).Msg("backup created")
	return id, nil
}

// Append adds an entry to a backup. When no document exists yet an empty
// one is started. Service entries replace an earlier entry for the same
// service; a second power entry fails with ErrAlreadyCaptured.
//
// Appends for the same id are serialized within this process only.
func (l *Ledger) Append(backupID string, e Entry) error {
	if err := validateID(backupID); err != nil {
		return err
	}
	m := l.lockFor(backupID)
	m.Lock()
	defer m.Unlock()

	doc, err := l.load(backupID)
	if errors.Is(err, ErrNotFound) {
		doc = &OperationBackup{
			Version:   SchemaVersion,
			BackupID:  backupID,
			Operation: backupID,
			CreatedAt: l.now().UTC().Truncate(time.Second),
		}
	} else if err != nil {
		return err
	}

	switch e := e.(type) {
	case *RegistryEntry:
		doc.Registry = append(doc.Registry, e)
	case *FileEntry:
		doc.Files = append(doc.Files, e)
	case *ServiceEntry:
		if doc.Services == nil {
			doc.Services = make(map[string]*ServiceEntry)
		}
		doc.Services[e.Name] = e
	case *PowerEntry:
		if doc.Power != nil {
			return fmt.Errorf("%w: power plan in %s", ErrAlreadyCaptured, backupID)
		}
		doc.Power = e
	case *StartupEntry:
		doc.Startup = append(doc.Startup, e)
	default:
		return fmt.Errorf("unsupported entry type %T", e)
	}

	if err := l.write(doc); err != nil {
		return err
	}
	l.log.Debug().Str("backup_id", backupID).Str("section", string(e.Section())).Str("target", e.Target()).Msg("entry appended")
	return nil
}

// Get loads a backup document.
func (l *Ledger) Get(backupID string) (*OperationBackup, error) {
	if err := validateID(backupID); err != nil {
		return nil, err
	}
	return l.load(backupID)
}

// List returns every readable document, newest first. Unreadable
// documents are logged and skipped.
func (l *Ledger) List() ([]*OperationBackup, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup root: %w", err)
	}

	var docs []*OperationBackup
	for _, de := range entries {
		id, ok := idFromFileName(de.Name())
		if de.IsDir() || !ok {
			continue
		}
		doc, err := l.load(id)
		if err != nil {
			l.log.Warn().Err(err).Str("file", de.Name()).Msg("skipping unreadable backup document")
			continue
		}
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].BackupID > docs[j].BackupID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

// IDFromPath returns the backup id for a document path, if it is one.
func IDFromPath(path string) (string, bool) {
	return idFromFileName(filepath.Base(path))
}

func idFromFileName(name string) (string, bool) {
	if !strings.HasSuffix(name, docSuffix) || strings.HasPrefix(name, ".") {
		return "", false
	}
	return strings.TrimSuffix(name, docSuffix), true
}

func (l *Ledger) load(backupID string) (*OperationBackup, error) {
	data, err := os.ReadFile(l.DocumentPath(backupID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, backupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup %s: %w", backupID, err)
	}
	var doc OperationBackup
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse backup %s: %w", backupID, err)
	}
	// The file name is the identity; writes and prunes go by it.
	if doc.BackupID != "" && doc.BackupID != backupID {
		l.log.Warn().Str("backup_id", backupID).Str("recorded_id", doc.BackupID).
			Msg("backup document records a different id, using the file name")
	}
	doc.BackupID = backupID
	return &doc, nil
}

// write replaces the document atomically: temp file, fsync, rename.
func (l *Ledger) write(doc *OperationBackup) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal %s: %w", ErrLedgerWrite, doc.BackupID, err)
	}

	path := l.DocumentPath(doc.BackupID)
	tmp := filepath.Join(l.root, "."+doc.BackupID+"."+uuid.NewString()+".tmp")
	if err := writeSync(tmp, data); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %s: %w", ErrLedgerWrite, doc.BackupID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %s: %w", ErrLedgerWrite, doc.BackupID, err)
	}

	if l.index != nil {
		if err := l.index.IndexBackup(doc, path); err != nil {
			l.log.Warn().Err(err).Str("backup_id", doc.BackupID).Msg("failed to index backup")
		}
	}
	return nil
}

func writeSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
