// Package buildfail defines the failure kinds of the build pipeline and the
// per-route attribution wrapper the orchestrator uses to isolate failures.
//
// Four kinds exist: resolution failures (scoped to one import subtree),
// configuration failures (fatal to the affected entry), serialization
// failures (fatal to the endpoint), and consistency failures (planning bugs,
// never ignored).
package buildfail

import (
	"errors"
	"fmt"
)

// Phase names the pipeline stage a failure occurred in.
type Phase string

const (
	PhaseEntry     Phase = "entry"
	PhaseClientRef Phase = "client-references"
	PhaseChunking  Phase = "chunking"
	PhaseManifest  Phase = "manifest"
	PhaseWrite     Phase = "write"
)

// ResolveError reports an import specifier that could not be resolved in a
// module context. It is scoped to the importing subtree and must not abort
// sibling branches.
type ResolveError struct {
	Specifier string
	FromPath  string
	Context   string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("cannot resolve %q imported from %q in context %q", e.Specifier, e.FromPath, e.Context)
}

// ConfigError reports missing or invalid project/runtime configuration.
type ConfigError struct {
	Missing string
	Detail  string
}

func (e *ConfigError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("missing required configuration: %s", e.Missing)
	}
	return fmt.Sprintf("invalid configuration %s: %s", e.Missing, e.Detail)
}

// SerializeError reports a manifest that could not be encoded.
type SerializeError struct {
	Manifest string
	Route    string
	Err      error
}

func (e *SerializeError) Error() string {
	return fmt.Sprintf("failed to serialize %s manifest for route %q: %v", e.Manifest, e.Route, e.Err)
}

func (e *SerializeError) Unwrap() error { return e.Err }

// ConsistencyError reports an asset path that escaped its output root. This
// always indicates a planning bug.
type ConsistencyError struct {
	Path string
	Root string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("asset path %q escapes output root %q", e.Path, e.Root)
}

// RouteError attributes a failure to one route and pipeline phase so a
// multi-route build can report partial success.
type RouteError struct {
	Route string
	Phase Phase
	Err   error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("route %q: %s failed: %v", e.Route, e.Phase, e.Err)
}

func (e *RouteError) Unwrap() error { return e.Err }

// Attribute wraps err with route and phase attribution. A nil err stays nil.
func Attribute(route string, phase Phase, err error) error {
	if err == nil {
		return nil
	}
	return &RouteError{Route: route, Phase: phase, Err: err}
}

// IsResolve reports whether err is (or wraps) a resolution failure.
func IsResolve(err error) bool {
	var re *ResolveError
	return errors.As(err, &re)
}
