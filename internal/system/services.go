package system

import (
	"context"
	"fmt"
	"strings"
)

// scServiceMissing is the Win32 error sc.exe exits with for unknown services.
const scServiceMissing = 1060

// ServiceControl implements Services with sc.exe and net.exe.
type ServiceControl struct {
	runner Runner
}

// NewServiceControl creates a ServiceControl.
func NewServiceControl(r Runner) *ServiceControl {
	return &ServiceControl{runner: r}
}

// Status parses the STATE line of "sc query <name>".
func (s *ServiceControl) Status(ctx context.Context, name string) (ServiceState, error) {
	res, err := s.runner.Run(ctx, "sc", "query", name)
	if err != nil {
		return StateUnknown, err
	}
	if res.ExitCode == scServiceMissing {
		return StateUnknown, fmt.Errorf("%s: %w", name, ErrServiceNotFound)
	}
	if res.ExitCode != 0 {
		return StateUnknown, toolError("sc", "query "+name, res)
	}
	return parseServiceState(res.Stdout), nil
}

func parseServiceState(out string) ServiceState {
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) != "STATE" {
			continue
		}
		// STATE              : 4  RUNNING
		fields := strings.Fields(strings.ToUpper(value))
		for _, f := range fields {
			switch f {
			case "RUNNING":
				return StateRunning
			case "STOPPED":
				return StateStopped
			case "PAUSED":
				return StatePaused
			}
		}
	}
	return StateUnknown
}

// Config returns the "KEY : value" pairs printed by "sc qc <name>".
func (s *ServiceControl) Config(ctx context.Context, name string) (map[string]string, error) {
	res, err := s.runner.Run(ctx, "sc", "qc", name)
	if err != nil {
		return nil, err
	}
	if res.ExitCode == scServiceMissing {
		return nil, fmt.Errorf("%s: %w", name, ErrServiceNotFound)
	}
	if res.ExitCode != 0 {
		return nil, toolError("sc", "qc "+name, res)
	}

	info := make(map[string]string)
	for _, line := range strings.Split(res.Stdout, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || strings.HasPrefix(key, "[SC]") {
			continue
		}
		info[key] = strings.TrimSpace(value)
	}
	return info, nil
}

// Start starts the service unless it is already running.
func (s *ServiceControl) Start(ctx context.Context, name string) error {
	return s.drive(ctx, name, "start", StateRunning)
}

// Stop stops the service unless it is already stopped.
func (s *ServiceControl) Stop(ctx context.Context, name string) error {
	return s.drive(ctx, name, "stop", StateStopped)
}

func (s *ServiceControl) drive(ctx context.Context, name, verb string, want ServiceState) error {
	state, err := s.Status(ctx, name)
	if err != nil {
		return err
	}
	if state == want {
		return nil
	}
	res, err := s.runner.Run(ctx, "net", verb, name)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return toolError("net", verb+" "+name, res)
	}
	return nil
}
