package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/specialistvlad/formulago/internal/build"
	"github.com/specialistvlad/formulago/internal/ctxlog"
)

// statusTracker remembers the pipeline stage for the health endpoint.
type statusTracker struct {
	mu    sync.Mutex
	stage build.State
	since time.Time
}

func newStatusTracker() *statusTracker {
	return &statusTracker{stage: build.StateLoaded, since: time.Now()}
}

// Transition implements build.Observer.
func (s *statusTracker) Transition(_ context.Context, _, to build.State, _ time.Duration, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = to
	s.since = time.Now()
}

func (s *statusTracker) set(stage build.State) {
	s.Transition(context.Background(), "", stage, 0, nil)
}

func (s *statusTracker) current() (build.State, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage, s.since
}

// healthHandler reports liveness and the stage the install is in.
func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(app.ctx)
	logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)

	stage, since := app.status.current()
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK\nstage=%s\nsince=%s\n", stage, since.UTC().Format(time.RFC3339))
}

// healthCheckServer starts the health and metrics server in the background.
// It returns the address it listens on, or "" when disabled.
func (app *App) healthCheckServer() (string, error) {
	logger := ctxlog.FromContext(app.ctx)
	if app.config.HealthcheckPort <= 0 {
		logger.Debug("Health check server not started: disabled")
		return "", nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", app.healthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(app.metrics.Registry(), promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", app.config.HealthcheckPort))
	if err != nil {
		return "", fmt.Errorf("failed to start health check server: %w", err)
	}

	app.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	addr := ln.Addr().String()
	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://%s/health", addr))
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
	return addr, nil
}

func (app *App) closeHealthCheckServer() error {
	logger := ctxlog.FromContext(app.ctx)
	if app.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(app.ctx), 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	if err := app.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return err
	}
	app.httpServer = nil
	return nil
}
