package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// ConfigPath points at a single .hcl file or a directory of .hcl files.
	ConfigPath string
	// DistDir overrides the project's configured server output directory.
	DistDir string
	// ClientDir overrides the client output directory. Defaults to
	// DistDir/static.
	ClientDir string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int
	// Watch keeps the app running and rebuilds on config changes.
	Watch bool
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 8
	}
	return &cfg, nil
}
