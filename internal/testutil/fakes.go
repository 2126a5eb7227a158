package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/specialistvlad/formulago/internal/shell"
)

// FakePaths is an in-memory stand-in for the host's runtime introspection.
type FakePaths struct {
	// Executables maps a bare name to the path LookPath returns.
	Executables map[string]string
	// Answers maps "<executable> <args...>" to the query stdout.
	Answers map[string]string
	// Files lists the paths Exists reports as present.
	Files map[string]bool

	mu      sync.Mutex
	queries []string
}

// LookPath returns the configured path for name.
func (f *FakePaths) LookPath(name string) (string, error) {
	if p, ok := f.Executables[name]; ok {
		return p, nil
	}
	return "", fmt.Errorf("executable %q not found", name)
}

// Query returns the configured answer for the invocation.
func (f *FakePaths) Query(_ context.Context, executable string, args []string) (string, error) {
	key := strings.Join(append([]string{executable}, args...), " ")
	f.mu.Lock()
	f.queries = append(f.queries, key)
	f.mu.Unlock()

	if out, ok := f.Answers[key]; ok {
		return out, nil
	}
	return "", fmt.Errorf("%s exited with code 1", key)
}

// Exists reports whether path was registered in Files.
func (f *FakePaths) Exists(path string) bool {
	return f.Files[path]
}

// Queries returns the invocations made so far.
func (f *FakePaths) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// RecordingRunner is a shell.Runner that records commands instead of
// running them. Respond, when set, decides each command's outcome; every
// command succeeds with empty output otherwise.
type RecordingRunner struct {
	Respond func(cmd shell.Command) (*shell.Result, error)

	mu    sync.Mutex
	calls []shell.Command
}

var _ shell.Runner = (*RecordingRunner)(nil)

// Run implements shell.Runner.
func (r *RecordingRunner) Run(_ context.Context, cmd shell.Command) (*shell.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()

	if r.Respond != nil {
		return r.Respond(cmd)
	}
	return &shell.Result{}, nil
}

// Calls returns the commands run so far.
func (r *RecordingRunner) Calls() []shell.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shell.Command(nil), r.calls...)
}

// CommandLines returns the recorded commands joined with spaces.
func (r *RecordingRunner) CommandLines() []string {
	var lines []string
	for _, c := range r.Calls() {
		lines = append(lines, c.String())
	}
	return lines
}
