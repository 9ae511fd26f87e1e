// Package config defines the format-agnostic configuration model for the
// application, along with the Loader interface for loading and interpreting
// configuration from various sources.
//
// The config.Model is the single source of truth for the project and
// endpoint packages. The concrete HCL loader lives alongside the model in
// this package.
package config
