package build

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFetchFailed is returned when the source cannot be downloaded,
	// fails checksum verification, or cannot be extracted.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrConfigureFailed is returned when the configure step fails.
	ErrConfigureFailed = errors.New("configure failed")
	// ErrBuildFailed is returned when the compile step fails.
	ErrBuildFailed = errors.New("build failed")
	// ErrInstallFailed is returned when the install step or a permission
	// fix fails.
	ErrInstallFailed = errors.New("install failed")
	// ErrVerificationFailed is returned when the test script exits non-zero
	// or prints something other than the expected output.
	ErrVerificationFailed = errors.New("verification failed")
)

// stderrTailLines bounds how much captured stderr goes into Error().
const stderrTailLines = 10

// StageError describes a terminal pipeline failure.
type StageError struct {
	Stage State
	// Kind is one of the Err* sentinels of this package.
	Kind error
	// Cause is the underlying error, if any, such as shell.ErrTimeout.
	Cause    error
	ExitCode int
	Stdout   string
	Stderr   string
}

// Error implements the error interface.
func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v", e.Stage, e.Kind)
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if tail := lastLines(e.Stderr, stderrTailLines); tail != "" {
		fmt.Fprintf(&b, "\n%s", tail)
	}
	return b.String()
}

// Unwrap exposes both the sentinel and the cause to errors.Is and errors.As.
func (e *StageError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func lastLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
