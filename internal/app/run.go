package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/specialistvlad/formulago/internal/build"
	"github.com/specialistvlad/formulago/internal/ctxlog"
	"github.com/specialistvlad/formulago/internal/events"
	"github.com/specialistvlad/formulago/internal/resolve"
)

// Run executes the configured command. For install it returns the pipeline
// result, which is non-nil even when the install fails past resolution.
func (a *App) Run(ctx context.Context) (*build.Result, error) {
	ctx = ctxlog.WithLogger(ctx, ctxlog.FromContext(a.ctx))
	logger := ctxlog.FromContext(ctx)
	logger.Debug("App.Run method started.", "command", a.config.Command)

	if _, err := a.healthCheckServer(); err != nil {
		return nil, err
	}
	defer a.closeHealthCheckServer()

	plan, err := a.plan(ctx)
	if err != nil {
		a.status.set(build.StateFailed)
		return nil, err
	}

	if a.config.Command == CommandPlan {
		fmt.Fprint(a.outW, plan.Describe())
		a.printCaveats(plan)
		return nil, nil
	}

	observers := []build.Observer{a.metrics, a.status}
	if a.config.EventsURL != "" {
		publisher, err := events.Connect(ctx, events.Options{URL: a.config.EventsURL}, plan.Name, plan.Version)
		if err != nil {
			logger.Warn("Events server unavailable, continuing without progress events.", "error", err)
		} else {
			defer publisher.Close()
			observers = append(observers, publisher)
		}
	}

	orchestrator := build.New(a.runner, a.fetcher, build.Options{
		WorkDir:      a.config.WorkDir,
		KeepBuildDir: a.config.KeepBuildDir,
		Timeout:      a.config.Timeout,
		SearchPath:   a.config.SearchPath,
	}, observers...)

	result, installErr := orchestrator.Install(ctx, plan)

	if a.config.MetricsFile != "" {
		if err := a.metrics.WriteTextfile(a.config.MetricsFile); err != nil {
			logger.Warn("Failed to write metrics file.", "path", a.config.MetricsFile, "error", err)
		}
	}
	if installErr != nil {
		return result, fmt.Errorf("install of %s %s failed: %w", plan.Name, plan.Version, installErr)
	}

	a.printCaveats(plan)
	logger.Debug("App.Run method finished.")
	return result, nil
}

// plan loads the descriptor and resolves it against the host.
func (a *App) plan(ctx context.Context) (*resolve.Plan, error) {
	logger := ctxlog.FromContext(ctx)

	pkg, err := a.catalog.Load(ctx, a.config.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("failed to load descriptor: %w", err)
	}
	a.status.set(build.StateLoaded)
	logger.Info("Descriptor loaded.", "package", pkg.Name, "version", pkg.Version, "source", pkg.Source)

	resolver := resolve.New(a.layout(), a.paths, a.inventory())
	plan, err := resolver.Resolve(ctx, pkg, resolve.Selection{With: a.config.With, Without: a.config.Without})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", pkg.Name, err)
	}
	a.status.set(build.StateResolved)
	logger.Info("Install plan resolved.", "prefix", plan.Prefix, "dependencies", len(plan.Dependencies))
	return plan, nil
}

func (a *App) printCaveats(plan *resolve.Plan) {
	caveats := strings.TrimSpace(plan.Caveats)
	if caveats == "" {
		return
	}
	fmt.Fprintf(a.outW, "==> Caveats\n%s\n", caveats)
}
