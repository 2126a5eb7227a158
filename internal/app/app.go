package app

import (
	"context"
	"io"
	"net/http"

	"github.com/specialistvlad/formulago/internal/build"
	"github.com/specialistvlad/formulago/internal/catalog"
	"github.com/specialistvlad/formulago/internal/ctxlog"
	"github.com/specialistvlad/formulago/internal/metrics"
	"github.com/specialistvlad/formulago/internal/resolve"
	"github.com/specialistvlad/formulago/internal/shell"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx    context.Context
	outW   io.Writer
	config *Config

	catalog *catalog.Catalog
	runner  shell.Runner
	paths   resolve.PathResolver
	fetcher build.Fetcher

	metrics    *metrics.Collector
	status     *statusTracker
	httpServer *http.Server
}

// Option overrides one of the App's collaborators, mostly for tests.
type Option func(*App)

// WithRunner replaces the subprocess runner.
func WithRunner(r shell.Runner) Option {
	return func(a *App) { a.runner = r }
}

// WithPathResolver replaces the runtime introspection backend.
func WithPathResolver(p resolve.PathResolver) Option {
	return func(a *App) { a.paths = p }
}

// WithFetcher replaces the source fetcher.
func WithFetcher(f build.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// NewApp is the constructor for the main application. Logs go to logW,
// command output (plans, caveats) to outW.
func NewApp(ctx context.Context, outW, logW io.Writer, cfg *Config, opts ...Option) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		ctx:     ctx,
		outW:    outW,
		config:  cfg,
		catalog: catalog.New(cfg.Tap),
		metrics: metrics.New(),
		status:  newStatusTracker(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.runner == nil {
		a.runner = shell.NewExecRunner(cfg.Timeout)
	}
	if a.paths == nil {
		a.paths = resolve.NewExecPathResolver(a.runner, cfg.SearchPath)
	}
	if a.fetcher == nil {
		a.fetcher = build.NewCachingFetcher(cfg.CacheDir)
	}

	logger.Debug("App initialized.", "prefix", cfg.Prefix, "work_dir", cfg.WorkDir, "cache_dir", cfg.CacheDir)
	return a
}

// Metrics returns the application's metric collector. This is primarily for testing.
func (a *App) Metrics() *metrics.Collector {
	return a.metrics
}

func (a *App) layout() resolve.Layout {
	return resolve.Layout{Root: a.config.Prefix}
}

// inventory reports installed dependencies: first kegs in the Cellar, then
// executables on the search path. It is nil when checks are disabled.
func (a *App) inventory() resolve.Inventory {
	if a.config.SkipDependencyCheck {
		return nil
	}
	return resolve.Inventories{
		resolve.NewCellarInventory(a.layout().Cellar()),
		resolve.NewPathInventory(a.paths),
	}
}
