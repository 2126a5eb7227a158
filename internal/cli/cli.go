package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/formulago/internal/app"
	"github.com/specialistvlad/formulago/internal/build"
)

// Environment variables consulted when the matching flag is not given.
const (
	EnvPrefix = "FORMULAGO_PREFIX"
	EnvPath   = "FORMULAGO_PATH"
	EnvTap    = "FORMULAGO_TAP"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// usageError builds the exit-2 error reported for bad invocations.
func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// FromRunError converts an application error into an ExitError whose
// message names the failing stage when there is one.
func FromRunError(err error) *ExitError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	var stageErr *build.StageError
	if errors.As(err, &stageErr) {
		return &ExitError{Code: 1, Message: fmt.Sprintf("Error: [%s] %v", stageErr.Stage, err)}
	}
	return &ExitError{Code: 1, Message: "Error: " + err.Error()}
}

// listFlag collects every occurrence of a repeatable flag. A single value
// may also hold a comma separated list.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return errors.New("empty dependency name")
		}
		*l = append(*l, part)
	}
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	return parse(args, output, os.Getenv)
}

func parse(args []string, output io.Writer, getenv func(string) string) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("formulago", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
formulago - build and install a package from a descriptor.

Usage:
  formulago [options] install <DESCRIPTOR> [--with=<dep>]... [--without=<dep>]...
  formulago [options] plan <DESCRIPTOR> [--with=<dep>]... [--without=<dep>]...

Arguments:
  DESCRIPTOR
    Path to a .hcl, .yaml or .yml descriptor, or a package name looked up in the tap.

Environment:
  FORMULAGO_PREFIX  install root (default ~/.formulago)
  FORMULAGO_PATH    search path for runtimes and build tools (default PATH)
  FORMULAGO_TAP     directory searched for descriptors by name

Options:
`)
		flagSet.PrintDefaults()
	}

	var with, without listFlag
	flagSet.Var(&with, "with", "Enable an optional or recommended dependency. Repeatable.")
	flagSet.Var(&without, "without", "Disable a recommended or optional dependency. Repeatable.")
	prefixFlag := flagSet.String("prefix", getenv(EnvPrefix), "Install root. Kegs go to <prefix>/Cellar/<name>/<version>.")
	searchPathFlag := flagSet.String("path", getenv(EnvPath), "Search path for runtimes and build tools.")
	tapFlag := flagSet.String("tap", getenv(EnvTap), "Directory of descriptors to search by name.")
	workDirFlag := flagSet.String("work-dir", "", "Scratch directory for builds (default <prefix>/var/formulago/build).")
	cacheDirFlag := flagSet.String("cache-dir", "", "Download cache directory (default <prefix>/var/formulago/cache).")
	timeoutFlag := flagSet.Duration("timeout", 0, "Timeout for each external command, e.g. '30m'. 0 is no limit.")
	keepFlag := flagSet.Bool("keep-build-dir", false, "Keep the build directory after a successful install.")
	skipDepsFlag := flagSet.Bool("skip-dependency-check", false, "Do not check that build and runtime dependencies are installed.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	metricsFileFlag := flagSet.String("metrics-file", "", "Write Prometheus metrics to this file when the run ends.")
	eventsURLFlag := flagSet.String("events-url", "", "socket.io server that receives pipeline progress events.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	// The flag package stops at the first positional, so keep parsing the
	// remainder to allow flags after the command and descriptor.
	var positionals []string
	rest := args
	for {
		if err := flagSet.Parse(rest); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil, true, nil
			}
			return nil, false, usageError("%s", err.Error())
		}
		rest = flagSet.Args()
		if len(rest) == 0 {
			break
		}
		positionals = append(positionals, rest[0])
		rest = rest[1:]
	}

	if len(positionals) == 0 {
		flagSet.Usage()
		return nil, true, nil
	}
	command := positionals[0]
	if command != app.CommandInstall && command != app.CommandPlan {
		return nil, false, usageError("unknown command %q: must be 'install' or 'plan'", command)
	}
	if len(positionals) < 2 {
		return nil, false, usageError("%s requires a descriptor path or package name", command)
	}
	if len(positionals) > 2 {
		return nil, false, usageError("unexpected arguments: %s", strings.Join(positionals[2:], " "))
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, usageError("invalid log-format: must be 'text' or 'json'")
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}

	prefix := *prefixFlag
	if prefix == "" {
		prefix = defaultPrefix(getenv)
	}

	config, err := app.NewConfig(app.Config{
		Command:             command,
		Descriptor:          positionals[1],
		With:                with,
		Without:             without,
		Prefix:              prefix,
		WorkDir:             *workDirFlag,
		CacheDir:            *cacheDirFlag,
		Tap:                 *tapFlag,
		SearchPath:          *searchPathFlag,
		Timeout:             *timeoutFlag,
		KeepBuildDir:        *keepFlag,
		SkipDependencyCheck: *skipDepsFlag,
		LogFormat:           logFormat,
		LogLevel:            logLevel,
		HealthcheckPort:     *healthPortFlag,
		MetricsFile:         *metricsFileFlag,
		EventsURL:           *eventsURLFlag,
	})
	if err != nil {
		return nil, false, usageError("%s", err.Error())
	}

	return config, false, nil
}

func defaultPrefix(getenv func(string) string) string {
	if home := getenv("HOME"); home != "" {
		return filepath.Join(home, ".formulago")
	}
	return filepath.Join(os.TempDir(), "formulago")
}
