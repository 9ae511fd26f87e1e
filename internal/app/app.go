package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/routepack/internal/config"
	"github.com/vk/routepack/internal/ctxlog"
	"github.com/vk/routepack/internal/project"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	loader  config.Loader
	project *project.AppProject

	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and project
// state. A failure to load the configuration is a fatal startup error and
// panics; the entrypoint recovers and reports it.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.ConfigPath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Configuration loaded and translated into unified model.")

	proj, err := project.New(model, projectOptions(appConfig))
	if err != nil {
		panic(fmt.Errorf("failed to initialize project: %w", err))
	}
	logger.Debug("Project initialized.",
		"build_id", proj.BuildID(),
		"endpoints", len(proj.Endpoints()))

	return &App{
		outW:    outW,
		logger:  logger,
		config:  appConfig,
		loader:  loader,
		project: proj,
	}
}

// Project returns the application's project. This is primarily for testing.
func (a *App) Project() *project.AppProject {
	return a.project
}

func projectOptions(appConfig *Config) project.Options {
	return project.Options{
		ServerDir: appConfig.DistDir,
		ClientDir: appConfig.ClientDir,
	}
}
