package app

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"
)

// Commands understood by App.Run.
const (
	CommandInstall = "install"
	CommandPlan    = "plan"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Command    string
	Descriptor string // path or bare name looked up in Tap
	With       []string
	Without    []string

	Prefix     string // install root; kegs live under Prefix/Cellar
	WorkDir    string
	CacheDir   string
	Tap        string
	SearchPath string // PATH used for runtimes and build tools

	Timeout             time.Duration
	KeepBuildDir        bool
	SkipDependencyCheck bool

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	MetricsFile     string
	EventsURL       string // socket.io server receiving pipeline transitions
}

// NewConfig validates cfg and fills in the directories derived from Prefix.
func NewConfig(cfg Config) (*Config, error) {
	switch cfg.Command {
	case CommandInstall, CommandPlan:
	case "":
		return nil, errors.New("a command is required: 'install' or 'plan'")
	default:
		return nil, fmt.Errorf("unknown command %q: must be 'install' or 'plan'", cfg.Command)
	}
	if cfg.Descriptor == "" {
		return nil, errors.New("Descriptor is a required configuration field and cannot be empty")
	}
	if cfg.Prefix == "" {
		return nil, errors.New("Prefix is a required configuration field and cannot be empty")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %s", cfg.Timeout)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("healthcheck port %d is out of range", cfg.HealthcheckPort)
	}

	if cfg.EventsURL != "" {
		u, err := url.Parse(cfg.EventsURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("events URL %q must be an absolute http(s) or ws(s) URL", cfg.EventsURL)
		}
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return nil, fmt.Errorf("events URL %q must be an absolute http(s) or ws(s) URL", cfg.EventsURL)
		}
	}

	prefix, err := filepath.Abs(cfg.Prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve prefix: %w", err)
	}
	cfg.Prefix = prefix
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(prefix, "var", "formulago", "build")
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(prefix, "var", "formulago", "cache")
	}

	return &cfg, nil
}
