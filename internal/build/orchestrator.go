package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/formulago/internal/ctxlog"
	"github.com/specialistvlad/formulago/internal/resolve"
	"github.com/specialistvlad/formulago/internal/shell"
)

// Options configures an Orchestrator.
type Options struct {
	// WorkDir is the scratch root; each plan gets its own subdirectory.
	WorkDir string
	// KeepBuildDir keeps the work directory after a verified install.
	KeepBuildDir bool
	// Timeout bounds the source download and every external invocation.
	// Zero means no limit.
	Timeout time.Duration
	// SearchPath replaces PATH for build and test commands when set.
	SearchPath string
}

// Result summarizes one pipeline run.
type Result struct {
	BuildID string
	State   State
	// FailedStage is the stage that failed; empty on success.
	FailedStage State
	Prefix      string
	WorkDir     string
	// VerificationOutput is the captured stdout of the test command.
	VerificationOutput string
	Timings            []StageTiming
}

// Orchestrator executes install plans.
type Orchestrator struct {
	runner    shell.Runner
	fetcher   Fetcher
	opts      Options
	observers []Observer
}

// New creates an Orchestrator.
func New(runner shell.Runner, fetcher Fetcher, opts Options, observers ...Observer) *Orchestrator {
	return &Orchestrator{runner: runner, fetcher: fetcher, opts: opts, observers: observers}
}

// run carries the mutable state of a single Install call.
type run struct {
	plan     *resolve.Plan
	workDir  string
	srcDir   string
	buildDir string
	env      []string
	result   *Result
}

type stage struct {
	state State
	fn    func(ctx context.Context, r *run) error
}

// Install takes plan from Resolved to Verified. On failure it returns the
// partial Result together with a *StageError.
func (o *Orchestrator) Install(ctx context.Context, plan *resolve.Plan) (*Result, error) {
	buildID := uuid.NewString()
	ctx, logger := ctxlog.With(ctx, "build_id", buildID, "package", plan.Name, "version", plan.Version)

	r := &run{
		plan:    plan,
		workDir: filepath.Join(o.opts.WorkDir, plan.Name+"-"+plan.Version),
		result:  &Result{BuildID: buildID, Prefix: plan.Prefix},
	}
	r.result.WorkDir = r.workDir
	r.env = o.environ(plan)

	m := newMachine(StateResolved, o.observers)
	stages := []stage{
		{StateFetching, o.fetch},
		{StateConfiguring, o.configure},
		{StateBuilding, o.compile},
		{StateInstalling, o.install},
		{StateVerifying, o.verify},
	}

	logger.Info("🚀 Starting install.", "prefix", plan.Prefix, "work_dir", r.workDir)
	for _, s := range stages {
		m.advance(ctx, s.state)
		if err := s.fn(ctx, r); err != nil {
			var stageErr *StageError
			if !errors.As(err, &stageErr) {
				err = &StageError{Stage: s.state, Kind: kindOf(s.state), Cause: err}
			}
			m.fail(ctx, err)
			r.result.State = StateFailed
			r.result.FailedStage = s.state
			r.result.Timings = m.timings
			logger.Error("Install failed.", "stage", s.state, "error", err, "work_dir", r.workDir)
			return r.result, err
		}
	}
	m.advance(ctx, StateVerified)
	r.result.State = StateVerified
	r.result.Timings = m.timings

	if !o.opts.KeepBuildDir {
		if err := os.RemoveAll(r.workDir); err != nil {
			logger.Warn("Failed to remove work directory.", "error", err)
		}
	}
	logger.Info("🏁 Install verified.", "prefix", plan.Prefix)
	return r.result, nil
}

func (o *Orchestrator) environ(plan *resolve.Plan) []string {
	var overrides []string
	if o.opts.SearchPath != "" {
		overrides = append(overrides, "PATH="+o.opts.SearchPath)
	}
	return shell.Environ(plan.Build.UnsetEnv, overrides...)
}

// fetch wipes the work directory, then downloads and unpacks the source.
func (o *Orchestrator) fetch(ctx context.Context, r *run) error {
	if err := os.RemoveAll(r.workDir); err != nil {
		return fmt.Errorf("failed to clean work directory: %w", err)
	}
	extractDir := filepath.Join(r.workDir, "src")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	fetchCtx := ctx
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}
	archive, err := o.fetcher.Fetch(fetchCtx, r.plan.URL, r.plan.Checksum)
	if err != nil {
		return err
	}
	root, err := Extract(archive, extractDir)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", archive, err)
	}
	r.srcDir = root
	ctxlog.FromContext(ctx).Debug("Source extracted.", "source_dir", root)
	return nil
}

// configure recreates the build directory and runs the configure command
// with the plan flags appended.
func (o *Orchestrator) configure(ctx context.Context, r *run) error {
	r.buildDir = filepath.Join(r.srcDir, r.plan.Build.Directory)
	if err := os.RemoveAll(r.buildDir); err != nil {
		return fmt.Errorf("failed to clean build directory: %w", err)
	}
	if err := os.MkdirAll(r.buildDir, 0o755); err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}

	args := append(append([]string(nil), r.plan.Build.Configure...), r.plan.Args()...)
	_, err := o.exec(ctx, StateConfiguring, args, r.buildDir, r.env)
	return err
}

func (o *Orchestrator) compile(ctx context.Context, r *run) error {
	if len(r.plan.Build.Compile) == 0 {
		ctxlog.FromContext(ctx).Debug("No compile command, building during install.")
		return nil
	}
	_, err := o.exec(ctx, StateBuilding, r.plan.Build.Compile, r.buildDir, r.env)
	return err
}

// install replaces any previous keg for the same version, runs the install
// command and applies the permission fixes.
func (o *Orchestrator) install(ctx context.Context, r *run) error {
	logger := ctxlog.FromContext(ctx)
	if _, err := os.Stat(r.plan.Prefix); err == nil {
		logger.Warn("Replacing existing installation.", "prefix", r.plan.Prefix)
		if err := os.RemoveAll(r.plan.Prefix); err != nil {
			return fmt.Errorf("failed to remove previous installation: %w", err)
		}
	}

	if _, err := o.exec(ctx, StateInstalling, r.plan.Build.Install, r.buildDir, r.env); err != nil {
		return err
	}
	return applyPermissions(ctx, r.plan.Prefix, r.plan.Permissions)
}

// verify writes the test files into a fresh directory, runs the test
// command and compares its stdout byte for byte.
func (o *Orchestrator) verify(ctx context.Context, r *run) error {
	logger := ctxlog.FromContext(ctx)
	test := r.plan.Test
	if test == nil {
		logger.Warn("Descriptor has no test block, skipping verification.")
		return nil
	}

	testDir := filepath.Join(r.workDir, "test")
	if err := os.RemoveAll(testDir); err != nil {
		return err
	}
	for _, f := range test.Files {
		p := filepath.Join(testDir, f.Path)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("failed to write test file %s: %w", f.Path, err)
		}
	}
	if err := os.MkdirAll(testDir, 0o755); err != nil {
		return err
	}

	searchPath := o.opts.SearchPath
	if searchPath == "" {
		searchPath = os.Getenv("PATH")
	}
	env := shell.Environ(r.plan.Build.UnsetEnv, "PATH="+filepath.Join(r.plan.Prefix, "bin")+string(os.PathListSeparator)+searchPath)

	res, err := o.exec(ctx, StateVerifying, test.Command, testDir, env)
	if err != nil {
		return err
	}
	r.result.VerificationOutput = string(res.Stdout)

	if test.Expect != nil && string(res.Stdout) != *test.Expect {
		return &StageError{
			Stage:    StateVerifying,
			Kind:     ErrVerificationFailed,
			Cause:    fmt.Errorf("output mismatch: expected %q, got %q", *test.Expect, string(res.Stdout)),
			ExitCode: res.ExitCode,
			Stdout:   string(res.Stdout),
			Stderr:   string(res.Stderr),
		}
	}
	logger.Info("✅ Verification passed.")
	return nil
}

// exec runs one external command and converts failures into StageErrors.
func (o *Orchestrator) exec(ctx context.Context, state State, args []string, dir string, env []string) (*shell.Result, error) {
	logger := ctxlog.FromContext(ctx).With("stage", state)
	logger.Info("Running "+string(state)+" command.", "command", strings.Join(args, " "))

	res, err := o.runner.Run(ctx, shell.Command{Args: args, Dir: dir, Env: env, Timeout: o.opts.Timeout})
	if res == nil {
		res = &shell.Result{ExitCode: -1}
	}
	if err != nil {
		return res, &StageError{
			Stage:    state,
			Kind:     kindOf(state),
			Cause:    err,
			ExitCode: res.ExitCode,
			Stdout:   string(res.Stdout),
			Stderr:   string(res.Stderr),
		}
	}
	if !res.Success() {
		return res, &StageError{
			Stage:    state,
			Kind:     kindOf(state),
			ExitCode: res.ExitCode,
			Stdout:   string(res.Stdout),
			Stderr:   string(res.Stderr),
		}
	}
	return res, nil
}

func kindOf(state State) error {
	switch state {
	case StateFetching:
		return ErrFetchFailed
	case StateConfiguring:
		return ErrConfigureFailed
	case StateBuilding:
		return ErrBuildFailed
	case StateInstalling:
		return ErrInstallFailed
	default:
		return ErrVerificationFailed
	}
}
