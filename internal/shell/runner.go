package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/specialistvlad/formulago/internal/ctxlog"
)

// ErrTimeout is returned when an invocation exceeds its timeout and is killed.
var ErrTimeout = errors.New("timed out")

// Command is a single external invocation.
type Command struct {
	Args []string
	Dir  string
	// Env replaces the process environment when non-nil. Its PATH, if
	// set, is also where a bare Args[0] is looked up.
	Env []string
	// Timeout overrides the runner default when positive.
	Timeout time.Duration
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// Result holds the captured output of a finished invocation.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Success reports whether the process exited with status zero.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Runner executes commands.
//
// A process that starts and exits non-zero is not an error: Run returns a
// Result carrying the exit code. Errors are reserved for processes that
// could not start and for timeouts; in both cases the Result is still
// returned with whatever output was captured.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Timeout applies to every invocation that does not set its own.
	Timeout time.Duration
}

// NewExecRunner creates a runner with the given default timeout. Zero
// disables the timeout.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

// Run executes cmd and waits for it to finish.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("command", cmd.String(), "dir", cmd.Dir)
	if len(cmd.Args) == 0 {
		return &Result{ExitCode: -1}, errors.New("empty command")
	}

	timeout := r.Timeout
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	exe := cmd.Args[0]
	if !strings.ContainsRune(exe, filepath.Separator) {
		// os/exec searches the parent's PATH; the command's own PATH wins.
		if path, ok := lookupEnv(cmd.Env, "PATH"); ok {
			resolved, err := LookPath(exe, path)
			if err != nil {
				logger.Debug("External command could not be started.", "error", err)
				return &Result{ExitCode: -1}, fmt.Errorf("failed to start %s: %w", exe, err)
			}
			exe = resolved
		}
	}

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(runCtx, exe, cmd.Args[1:]...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env
	c.Stdout = &stdout
	c.Stderr = &stderr
	// Children that inherit the pipes must not keep Wait blocked after the
	// process itself was killed.
	c.WaitDelay = time.Second

	logger.Debug("Running external command.", "timeout", timeout)
	start := time.Now()
	err := c.Run()
	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode(c, err),
		Duration: time.Since(start),
	}

	if timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		logger.Warn("External command timed out and was killed.", "timeout", timeout)
		return res, fmt.Errorf("%s: %w after %s", cmd.Args[0], ErrTimeout, timeout)
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		logger.Debug("External command could not be started.", "error", err)
		return res, fmt.Errorf("failed to start %s: %w", cmd.Args[0], err)
	}

	logger.Debug("External command finished.", "exit_code", res.ExitCode, "duration", res.Duration)
	return res, nil
}

func exitCode(c *exec.Cmd, err error) int {
	if c.ProcessState != nil {
		return c.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

// Environ returns the current environment without the named variables and
// with the given overrides applied. Overrides are "KEY=value" pairs.
func Environ(unset []string, overrides ...string) []string {
	drop := make(map[string]struct{}, len(unset)+len(overrides))
	for _, k := range unset {
		drop[k] = struct{}{}
	}
	for _, kv := range overrides {
		if k, _, ok := strings.Cut(kv, "="); ok {
			drop[k] = struct{}{}
		}
	}

	var env []string
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		if _, skip := drop[k]; skip {
			continue
		}
		env = append(env, kv)
	}
	return append(env, overrides...)
}
