package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tweakguard/internal/ledger"
	"github.com/blackwell-systems/tweakguard/internal/system"
)

// ServiceArchiver records and re-applies service run state.
type ServiceArchiver struct {
	svc system.Services
	log zerolog.Logger
}

// Capture records the state of service name. An uninstalled service
// returns nil, nil. Configuration is informational; failing to read it
// does not fail the capture.
func (a *ServiceArchiver) Capture(ctx context.Context, name, description string) (*ledger.ServiceEntry, error) {
	state, err := a.svc.Status(ctx, name)
	if errors.Is(err, system.ErrServiceNotFound) {
		a.log.Info().Str("service", name).Msg("service not installed, nothing to back up")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query service %s: %w", name, err)
	}

	cfg, err := a.svc.Config(ctx, name)
	if err != nil {
		a.log.Warn().Err(err).Str("service", name).Msg("could not read service configuration")
		cfg = nil
	}

	a.log.Info().Str("service", name).Str("state", string(state)).Msg("service state recorded")
	return &ledger.ServiceEntry{
		Name:        name,
		State:       state,
		Config:      cfg,
		Description: description,
	}, nil
}

// Restore starts or stops the service to match the recorded state.
// Transitional and unknown states are not replayed.
func (a *ServiceArchiver) Restore(ctx context.Context, e *ledger.ServiceEntry) (Outcome, error) {
	var err error
	switch e.State {
	case system.StateRunning:
		err = a.svc.Start(ctx, e.Name)
	case system.StateStopped:
		err = a.svc.Stop(ctx, e.Name)
	default:
		return Outcome{
			Status: StatusSkipped,
			Detail: fmt.Sprintf("recorded state %s is not restorable", e.State),
		}, nil
	}
	if err != nil {
		return Outcome{Status: StatusFailed}, fmt.Errorf("failed to set service %s to %s: %w", e.Name, e.State, err)
	}
	a.log.Info().Str("service", e.Name).Str("state", string(e.State)).Msg("service state restored")
	return ok(), nil
}
