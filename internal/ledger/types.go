package ledger

import (
	"os"
	"sort"
	"time"

	"github.com/blackwell-systems/tweakguard/internal/system"
)

// SchemaVersion is written into every document.
const SchemaVersion = 1

// Section is the kind of a snapshot entry.
type Section string

const (
	SectionRegistry Section = "registry"
	SectionFile     Section = "file"
	SectionService  Section = "service"
	SectionPower    Section = "power"
	SectionStartup  Section = "startup"
)

// Entry is one captured resource. The concrete types below are the only
// implementations.
type Entry interface {
	Section() Section
	// Target names the live resource, e.g. a registry key or a file path.
	Target() string
	// Label is the human description shown in previews and reports.
	Label() string
	blobs() []string
}

// RegistryEntry is a registry key exported to a .reg blob.
type RegistryEntry struct {
	Hive        system.Hive `json:"hive"`
	Path        string      `json:"path"`
	BlobPath    string      `json:"blob_path"`
	SHA256      string      `json:"sha256,omitempty"`
	Description string      `json:"description,omitempty"`
}

func (e *RegistryEntry) Section() Section { return SectionRegistry }
func (e *RegistryEntry) Target() string   { return system.Key{Hive: e.Hive, Path: e.Path}.String() }
func (e *RegistryEntry) Label() string    { return labelOr(e.Description, e.Target()) }
func (e *RegistryEntry) blobs() []string  { return []string{e.BlobPath} }

// FileKind distinguishes single files from directory archives.
type FileKind string

const (
	KindFile      FileKind = "file"
	KindDirectory FileKind = "directory"
)

// FileEntry is a file copy or a zipped directory tree.
type FileEntry struct {
	Kind         FileKind    `json:"kind"`
	OriginalPath string      `json:"original_path"`
	BlobPath     string      `json:"blob_path"`
	Size         int64       `json:"size"`
	Mode         os.FileMode `json:"mode,omitempty"`
	SHA256       string      `json:"sha256,omitempty"`
	Description  string      `json:"description,omitempty"`
}

func (e *FileEntry) Section() Section { return SectionFile }
func (e *FileEntry) Target() string   { return e.OriginalPath }
func (e *FileEntry) Label() string    { return labelOr(e.Description, e.OriginalPath) }
func (e *FileEntry) blobs() []string  { return []string{e.BlobPath} }

// ServiceEntry is the recorded run state of a service.
type ServiceEntry struct {
	Name        string              `json:"name"`
	State       system.ServiceState `json:"state"`
	Config      map[string]string   `json:"config,omitempty"`
	Description string              `json:"description,omitempty"`
}

func (e *ServiceEntry) Section() Section { return SectionService }
func (e *ServiceEntry) Target() string   { return e.Name }
func (e *ServiceEntry) Label() string    { return labelOr(e.Description, "service "+e.Name) }
func (e *ServiceEntry) blobs() []string  { return nil }

// PowerEntry is the power plan active at capture time.
type PowerEntry struct {
	GUID       string    `json:"guid"`
	Name       string    `json:"name,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

func (e *PowerEntry) Section() Section { return SectionPower }
func (e *PowerEntry) Target() string   { return e.GUID }
func (e *PowerEntry) Label() string    { return labelOr(e.Name, "power plan "+e.GUID) }
func (e *PowerEntry) blobs() []string  { return nil }

// StartupKind is where an auto-run entry lives.
type StartupKind string

const (
	StartupRegistry StartupKind = "registry"
	StartupFolder   StartupKind = "folder"
)

// StartupEntry is one auto-run item. Registry items carry the value
// inline; folder items carry a blob copy of the shortcut file.
type StartupEntry struct {
	Kind        StartupKind      `json:"kind"`
	Hive        system.Hive      `json:"hive,omitempty"`
	Location    string           `json:"location"`
	Name        string           `json:"name"`
	ValueType   system.ValueType `json:"value_type,omitempty"`
	Value       string           `json:"value,omitempty"`
	BlobPath    string           `json:"blob_path,omitempty"`
	SHA256      string           `json:"sha256,omitempty"`
	Description string           `json:"description,omitempty"`
}

func (e *StartupEntry) Section() Section { return SectionStartup }

func (e *StartupEntry) Target() string {
	if e.Kind == StartupRegistry {
		return system.Key{Hive: e.Hive, Path: e.Location}.String() + `\` + e.Name
	}
	return e.Location + string(os.PathSeparator) + e.Name
}

func (e *StartupEntry) Label() string { return labelOr(e.Description, "startup item "+e.Name) }

func (e *StartupEntry) blobs() []string {
	if e.BlobPath == "" {
		return nil
	}
	return []string{e.BlobPath}
}

func labelOr(desc, fallback string) string {
	if desc != "" {
		return desc
	}
	return fallback
}

// OperationBackup is the persisted record of one operation.
type OperationBackup struct {
	Version   int                      `json:"version"`
	BackupID  string                   `json:"backup_id"`
	Operation string                   `json:"operation"`
	CreatedAt time.Time                `json:"created_at"`
	Registry  []*RegistryEntry         `json:"registry,omitempty"`
	Files     []*FileEntry             `json:"files,omitempty"`
	Services  map[string]*ServiceEntry `json:"services,omitempty"`
	Power     *PowerEntry              `json:"power,omitempty"`
	Startup   []*StartupEntry          `json:"startup,omitempty"`
}

// Counts holds per-section item counts.
type Counts struct {
	Registry int `json:"registry"`
	Files    int `json:"files"`
	Services int `json:"services"`
	Power    int `json:"power"`
	Startup  int `json:"startup"`
	Total    int `json:"total"`
}

// Counts returns the number of entries in each section.
func (b *OperationBackup) Counts() Counts {
	c := Counts{
		Registry: len(b.Registry),
		Files:    len(b.Files),
		Services: len(b.Services),
		Startup:  len(b.Startup),
	}
	if b.Power != nil {
		c.Power = 1
	}
	c.Total = c.Registry + c.Files + c.Services + c.Power + c.Startup
	return c
}

// Entries returns every entry in restore order: registry, files and
// directories, services by name, power plan, startup items.
func (b *OperationBackup) Entries() []Entry {
	var out []Entry
	for _, e := range b.Registry {
		out = append(out, e)
	}
	for _, e := range b.Files {
		out = append(out, e)
	}
	names := make([]string, 0, len(b.Services))
	for name := range b.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, b.Services[name])
	}
	if b.Power != nil {
		out = append(out, b.Power)
	}
	for _, e := range b.Startup {
		out = append(out, e)
	}
	return out
}

// Blobs returns every blob path referenced by the document.
func (b *OperationBackup) Blobs() []string {
	var out []string
	for _, e := range b.Entries() {
		for _, p := range e.blobs() {
			if p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
