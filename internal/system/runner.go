package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCommandTimeout bounds every OS tool invocation.
const DefaultCommandTimeout = 30 * time.Second

// ErrTimeout is returned when an OS tool does not finish in time.
var ErrTimeout = errors.New("command timed out")

// Result is the outcome of a finished command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Output returns stdout and stderr combined, trimmed, for error messages.
func (r *Result) Output() string {
	return strings.TrimSpace(r.Stdout + "\n" + r.Stderr)
}

// Runner executes an external program. A non-zero exit code is reported
// in Result, not as an error; errors mean the program could not be run
// or did not finish.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

// ExecRunner runs programs with os/exec under a per-call timeout.
type ExecRunner struct {
	Timeout time.Duration
	Log     zerolog.Logger
}

// NewExecRunner creates an ExecRunner. A zero timeout uses DefaultCommandTimeout.
func NewExecRunner(timeout time.Duration, log zerolog.Logger) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &ExecRunner{Timeout: timeout, Log: log}
}

// Run executes name with args and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Log.Debug().Str("cmd", name).Strs("args", args).Msg("running command")
	start := time.Now()
	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if ctx.Err() == context.DeadlineExceeded {
		r.Log.Warn().Str("cmd", name).Dur("timeout", r.Timeout).Msg("command timed out")
		return res, fmt.Errorf("%s %s: %w after %s", name, strings.Join(args, " "), ErrTimeout, r.Timeout)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		r.Log.Debug().Str("cmd", name).Int("exit", res.ExitCode).Dur("took", time.Since(start)).Msg("command failed")
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("failed to run %s: %w", name, err)
	}
	return res, nil
}

// toolError formats a failed tool invocation.
func toolError(name, verb string, res *Result) error {
	return fmt.Errorf("%s %s failed (exit %d, output: %s)", name, verb, res.ExitCode, res.Output())
}
