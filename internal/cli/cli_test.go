package cli

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/formulago/internal/app"
	"github.com/specialistvlad/formulago/internal/build"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestParse_ValidInvocations(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		args  []string
		env   map[string]string
		check func(t *testing.T, cfg *app.Config)
	}{
		{
			name: "flags before and after positionals",
			args: []string{"--log-level=debug", "install", "--with=python3", "root.hcl", "--without", "python", "--prefix", "/opt/fg"},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, app.CommandInstall, cfg.Command)
				assert.Equal(t, "root.hcl", cfg.Descriptor)
				assert.Equal(t, []string{"python3"}, cfg.With)
				assert.Equal(t, []string{"python"}, cfg.Without)
				assert.Equal(t, "/opt/fg", cfg.Prefix)
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, "/opt/fg/var/formulago/build", cfg.WorkDir)
				assert.Equal(t, "/opt/fg/var/formulago/cache", cfg.CacheDir)
			},
		},
		{
			name: "comma separated and repeated dependency lists",
			args: []string{"plan", "root", "--with=python,python3", "--with", "xrootd"},
			env:  map[string]string{"HOME": "/home/ada"},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, app.CommandPlan, cfg.Command)
				assert.Equal(t, []string{"python", "python3", "xrootd"}, cfg.With)
				assert.Equal(t, "/home/ada/.formulago", cfg.Prefix)
			},
		},
		{
			name: "environment fallbacks",
			args: []string{"install", "gsl"},
			env: map[string]string{
				EnvPrefix: "/srv/formulago",
				EnvTap:    "/srv/taps/science",
				EnvPath:   "/usr/local/bin:/usr/bin",
			},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, "/srv/formulago", cfg.Prefix)
				assert.Equal(t, "/srv/taps/science", cfg.Tap)
				assert.Equal(t, "/usr/local/bin:/usr/bin", cfg.SearchPath)
			},
		},
		{
			name: "flags override the environment",
			args: []string{"--prefix=/opt/other", "--tap", "/taps", "install", "gsl"},
			env:  map[string]string{EnvPrefix: "/srv/formulago", EnvTap: "/srv/taps"},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, "/opt/other", cfg.Prefix)
				assert.Equal(t, "/taps", cfg.Tap)
			},
		},
		{
			name: "build knobs",
			args: []string{
				"install", "root.yaml", "--prefix=/opt/fg",
				"--timeout=45m", "--keep-build-dir", "--skip-dependency-check",
				"--work-dir=/scratch", "--cache-dir=/cache",
				"--healthcheck-port=8081", "--metrics-file=/var/lib/node_exporter/formulago.prom",
				"--log-format=JSON", "--events-url=http://dashboard.local:3000/socket.io/",
			},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, 45*time.Minute, cfg.Timeout)
				assert.True(t, cfg.KeepBuildDir)
				assert.True(t, cfg.SkipDependencyCheck)
				assert.Equal(t, "/scratch", cfg.WorkDir)
				assert.Equal(t, "/cache", cfg.CacheDir)
				assert.Equal(t, 8081, cfg.HealthcheckPort)
				assert.Equal(t, "/var/lib/node_exporter/formulago.prom", cfg.MetricsFile)
				assert.Equal(t, "json", cfg.LogFormat)
				assert.Equal(t, "http://dashboard.local:3000/socket.io/", cfg.EventsURL)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			var out bytes.Buffer

			// --- Act ---
			cfg, shouldExit, err := parse(tc.args, &out, envFrom(tc.env))

			// --- Assert ---
			require.NoError(t, err)
			require.False(t, shouldExit)
			require.NotNil(t, cfg)
			tc.check(t, cfg)
		})
	}
}

func TestParse_UsageErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{name: "unknown command", args: []string{"upgrade", "root"}, wantMsg: `unknown command "upgrade"`},
		{name: "missing descriptor", args: []string{"install"}, wantMsg: "install requires a descriptor"},
		{name: "extra positionals", args: []string{"install", "root", "gsl"}, wantMsg: "unexpected arguments: gsl"},
		{name: "undefined flag", args: []string{"--colour", "install", "root"}, wantMsg: "flag provided but not defined: -colour"},
		{name: "empty dependency", args: []string{"install", "root", "--with=python,"}, wantMsg: "empty dependency name"},
		{name: "invalid log format", args: []string{"--log-format=xml", "install", "root"}, wantMsg: "invalid log-format"},
		{name: "invalid log level", args: []string{"--log-level=trace", "install", "root"}, wantMsg: "invalid log-level"},
		{name: "negative timeout", args: []string{"--timeout=-1s", "install", "root"}, wantMsg: "timeout must not be negative"},
		{name: "relative events url", args: []string{"--events-url=dashboard.local", "install", "root"}, wantMsg: "events URL"},
		{name: "port out of range", args: []string{"--healthcheck-port=70000", "install", "root"}, wantMsg: "out of range"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			var out bytes.Buffer

			// --- Act ---
			cfg, shouldExit, err := parse(tc.args, &out, envFrom(map[string]string{"HOME": "/home/ada"}))

			// --- Assert ---
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.False(t, shouldExit)
			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr))
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.wantMsg)
		})
	}
}

func TestParse_HelpExitsCleanly(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{{"-h"}, {"--help"}, {}} {
		t.Run(fmt.Sprintf("%q", args), func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			cfg, shouldExit, err := parse(args, &out, envFrom(nil))

			require.NoError(t, err)
			assert.True(t, shouldExit)
			assert.Nil(t, cfg)
			assert.Contains(t, out.String(), "Usage:")
			assert.Contains(t, out.String(), "FORMULAGO_TAP")
		})
	}
}

func TestDefaultPrefix_WithoutHome(t *testing.T) {
	t.Parallel()

	got := defaultPrefix(envFrom(nil))

	assert.Equal(t, "formulago", filepath.Base(got))
	assert.True(t, filepath.IsAbs(got))
}

func TestFromRunError(t *testing.T) {
	t.Parallel()

	stageErr := &build.StageError{Stage: build.StateBuilding, Kind: build.ErrBuildFailed, ExitCode: 2}

	testCases := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{
			name:     "stage failure names the stage",
			err:      fmt.Errorf("install of root 6.12.04 failed: %w", stageErr),
			wantCode: 1,
			wantMsg:  "Error: [building] install of root 6.12.04 failed: building: build failed (exit code 2)",
		},
		{
			name:     "plain error",
			err:      errors.New("failed to load descriptor: no such file"),
			wantCode: 1,
			wantMsg:  "Error: failed to load descriptor: no such file",
		},
		{
			name:     "exit error passes through",
			err:      usageError("bad flag"),
			wantCode: 2,
			wantMsg:  "bad flag",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := FromRunError(tc.err)

			assert.Equal(t, tc.wantCode, got.Code)
			assert.Equal(t, tc.wantMsg, got.Message)
		})
	}
}
