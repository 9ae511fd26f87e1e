package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vk/routepack/internal/ctxlog"
	"github.com/vk/routepack/internal/endpoint"
	"github.com/vk/routepack/internal/project"
	"github.com/vk/routepack/internal/watch"
)

// Run executes the main application logic: build every endpoint, report
// per-route results, and optionally keep watching for config changes.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(a.config.HealthcheckPort)
		defer a.closeHealthcheckServer()
	}

	a.logger.Info("Starting build.",
		"build_id", a.project.BuildID(),
		"endpoints", len(a.project.Endpoints()),
		"workers", a.config.WorkerCount)

	written, errs := a.buildAll(ctx)
	failed := a.report(written, errs)

	if a.config.Watch {
		return a.watchLoop(ctx)
	}

	if failed == len(errs) && failed > 0 {
		return fmt.Errorf("all %d endpoints failed to build", failed)
	}
	a.logger.Info("Build finished.", "built", len(written)-failed, "failed", failed)
	return nil
}

// buildAll fans the endpoints out over the worker pool. A failing endpoint
// never aborts its siblings; failures come back positionally.
func (a *App) buildAll(ctx context.Context) ([]*endpoint.WrittenEndpoint, []error) {
	endpoints := a.project.Endpoints()
	written := make([]*endpoint.WrittenEndpoint, len(endpoints))
	errs := make([]error, len(endpoints))

	g := new(errgroup.Group)
	g.SetLimit(a.config.WorkerCount)
	for i, e := range endpoints {
		i, e := i, e
		g.Go(func() error {
			written[i], errs[i] = e.WriteToDisk(ctx)
			return nil
		})
	}
	g.Wait()
	return written, errs
}

// report logs per-endpoint results and returns the failure count.
func (a *App) report(written []*endpoint.WrittenEndpoint, errs []error) int {
	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			a.logger.Error("Endpoint build failed.", "error", err)
			continue
		}
		w := written[i]
		a.logger.Info("Endpoint built.",
			"route", w.Route,
			"original_name", w.OriginalName,
			"runtime", w.Runtime.String(),
			"entry", w.ServerEntryPath,
			"server_files", len(w.ServerPaths),
			"client_files", len(w.ClientPaths))
	}
	return failed
}

// watchLoop rebuilds on configuration changes until the context is canceled.
func (a *App) watchLoop(ctx context.Context) error {
	watcher, err := watch.New([]string{a.config.ConfigPath}, 0)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()
	a.logger.Info("Watching for configuration changes.", "path", a.config.ConfigPath)

	err = watcher.Run(ctx, func(paths []string) {
		a.logger.Info("Configuration changed, rebuilding.", "paths", paths)
		if err := a.reload(ctx); err != nil {
			a.logger.Error("Reload failed, keeping the previous project.", "error", err)
			return
		}
		written, errs := a.buildAll(ctx)
		failed := a.report(written, errs)
		a.logger.Info("Rebuild finished.", "built", len(written)-failed, "failed", failed)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// reload re-reads the configuration and swaps in a fresh project.
func (a *App) reload(ctx context.Context) error {
	model, err := a.loader.Load(ctx, a.config.ConfigPath)
	if err != nil {
		return err
	}
	proj, err := project.New(model, projectOptions(a.config))
	if err != nil {
		return err
	}
	a.project = proj
	return nil
}
