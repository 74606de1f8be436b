// Package archive implements the resource archivers: one capture/restore
// pair per resource kind. Archivers are independent of each other and
// safe to repeat; a failure in one never affects another.
//
// Capture returns a nil entry and a nil error when the resource does not
// exist: there is nothing to protect, and the caller records nothing.
package archive

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tweakguard/internal/ledger"
	"github.com/blackwell-systems/tweakguard/internal/system"
)

// Status classifies a successful restore.
type Status string

const (
	StatusOK          Status = "ok"
	StatusApproximate Status = "approximate"
	StatusSkipped     Status = "skipped"
	StatusFailed      Status = "failed"
)

// Outcome describes a restore that did not fail. Detail explains
// approximate and skipped results.
type Outcome struct {
	Status Status
	Detail string
}

func ok() Outcome { return Outcome{Status: StatusOK} }

// Config wires the archivers to their capabilities.
type Config struct {
	Registry       system.Registry
	Services       system.Services
	Power          system.PowerPlans
	Blobs          BlobDirs
	StartupKeys    []system.Key
	StartupFolders []string
	FallbackPlan   string
	Log            zerolog.Logger
}

// Set bundles one archiver per resource kind.
type Set struct {
	Registry  *RegistryArchiver
	File      *FileArchiver
	Directory *DirectoryArchiver
	Service   *ServiceArchiver
	Power     *PowerArchiver
	Startup   *StartupArchiver
}

// NewSet builds every archiver from cfg.
func NewSet(cfg Config) *Set {
	if cfg.FallbackPlan == "" {
		cfg.FallbackPlan = system.PlanBalanced
	}
	if cfg.StartupKeys == nil {
		cfg.StartupKeys = DefaultStartupKeys()
	}
	if cfg.StartupFolders == nil {
		cfg.StartupFolders = DefaultStartupFolders()
	}
	return &Set{
		Registry:  &RegistryArchiver{reg: cfg.Registry, blobs: cfg.Blobs, log: cfg.Log},
		File:      &FileArchiver{blobs: cfg.Blobs, log: cfg.Log},
		Directory: &DirectoryArchiver{blobs: cfg.Blobs, log: cfg.Log},
		Service:   &ServiceArchiver{svc: cfg.Services, log: cfg.Log},
		Power:     &PowerArchiver{power: cfg.Power, fallback: cfg.FallbackPlan, log: cfg.Log},
		Startup: &StartupArchiver{
			reg:     cfg.Registry,
			blobs:   cfg.Blobs,
			keys:    cfg.StartupKeys,
			folders: cfg.StartupFolders,
			log:     cfg.Log,
		},
	}
}

// Restore dispatches an entry to the archiver for its kind.
func (s *Set) Restore(ctx context.Context, e ledger.Entry) (Outcome, error) {
	switch e := e.(type) {
	case *ledger.RegistryEntry:
		return s.Registry.Restore(ctx, e)
	case *ledger.FileEntry:
		if e.Kind == ledger.KindDirectory {
			return s.Directory.Restore(ctx, e)
		}
		return s.File.Restore(ctx, e)
	case *ledger.ServiceEntry:
		return s.Service.Restore(ctx, e)
	case *ledger.PowerEntry:
		return s.Power.Restore(ctx, e)
	case *ledger.StartupEntry:
		return s.Startup.Restore(ctx, e)
	default:
		return Outcome{Status: StatusFailed}, fmt.Errorf("no archiver for entry type %T", e)
	}
}
