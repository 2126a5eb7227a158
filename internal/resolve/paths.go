package resolve

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/specialistvlad/formulago/internal/shell"
)

// PathResolver is the capability interface for everything the resolver
// needs to learn from the host about language runtimes.
type PathResolver interface {
	// LookPath locates an executable by name.
	LookPath(name string) (string, error)
	// Query runs the executable with args and returns its stdout.
	Query(ctx context.Context, executable string, args []string) (string, error)
	// Exists reports whether a file exists at path.
	Exists(path string) bool
}

// ExecPathResolver implements PathResolver on top of a shell.Runner and a
// caller-defined search path.
type ExecPathResolver struct {
	runner shell.Runner
	path   string
}

// NewExecPathResolver creates a resolver that searches the PATH-style list
// searchPath. An empty searchPath falls back to the PATH variable.
func NewExecPathResolver(runner shell.Runner, searchPath string) *ExecPathResolver {
	if searchPath == "" {
		searchPath = os.Getenv("PATH")
	}
	return &ExecPathResolver{runner: runner, path: searchPath}
}

var _ PathResolver = (*ExecPathResolver)(nil)

// LookPath searches the configured path list rather than the process PATH.
func (p *ExecPathResolver) LookPath(name string) (string, error) {
	return shell.LookPath(name, p.path)
}

// Query runs the executable and returns its stdout. A non-zero exit is an
// error carrying the captured stderr.
func (p *ExecPathResolver) Query(ctx context.Context, executable string, args []string) (string, error) {
	cmd := shell.Command{
		Args: append([]string{executable}, args...),
		Env:  shell.Environ(nil, "PATH="+p.path),
	}
	res, err := p.runner.Run(ctx, cmd)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", fmt.Errorf("%s exited with code %d: %s", cmd.String(), res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
	return string(res.Stdout), nil
}

// Exists reports whether path exists.
func (p *ExecPathResolver) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
