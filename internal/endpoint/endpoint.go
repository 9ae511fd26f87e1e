// Package endpoint orchestrates one route endpoint's build: entry
// resolution, client boundary analysis, chunk planning, manifest emission and
// the disk write. Every failure is attributed to its route and phase, so a
// multi-route build reports partial success instead of aborting siblings.
package endpoint

import (
	"context"

	"github.com/vk/routepack/internal/buildctx"
	"github.com/vk/routepack/internal/buildfail"
	"github.com/vk/routepack/internal/chunk"
	"github.com/vk/routepack/internal/config"
	"github.com/vk/routepack/internal/memo"
	"github.com/vk/routepack/internal/output"
	"github.com/vk/routepack/internal/track"
)

// ChunkContexts bundles the per-target chunking contexts of one project.
type ChunkContexts struct {
	Client *chunk.Context
	Server *chunk.Context
	SSR    *chunk.Context
	Edge   *chunk.Context
}

// App is the per-project state an endpoint builds against. Implemented by
// project.AppProject; an interface here keeps the dependency one-directional.
type App interface {
	Model() *config.Model
	Contexts() *buildctx.Set
	ChunkContexts() ChunkContexts
	Store() *memo.Store
	Tracker() *track.Tracker
	Emitter() *output.Emitter

	// SharedClientGroup is the chunk group of the modules common to all
	// routes, computed once per project per build generation.
	SharedClientGroup(ctx context.Context) (*chunk.Group, error)
	// Polyfill returns the precompiled polyfill asset, nil when the project
	// declares none.
	Polyfill(ctx context.Context) (*output.Asset, error)
}

// Variant distinguishes the two endpoints an app page yields.
type Variant int

const (
	VariantNone Variant = iota
	// VariantHtml renders the page to HTML, client and SSR halves included.
	VariantHtml
	// VariantRsc serves the server component payload only.
	VariantRsc
)

// Endpoint is one buildable route endpoint.
type Endpoint struct {
	app     App
	ep      *config.Entrypoint
	variant Variant
}

// New derives the endpoints of one declared entrypoint. A page yields an
// Html and an Rsc endpoint sharing the loader tree; routes and metadata
// yield one endpoint each.
func New(app App, ep *config.Entrypoint) []*Endpoint {
	if ep.Kind == config.EntrypointPage {
		return []*Endpoint{
			{app: app, ep: ep, variant: VariantHtml},
			{app: app, ep: ep, variant: VariantRsc},
		}
	}
	return []*Endpoint{{app: app, ep: ep}}
}

// Pathname is the route pathname, e.g. "/blog/[slug]".
func (e *Endpoint) Pathname() string { return e.ep.Pathname }

// Kind returns the underlying entrypoint kind.
func (e *Endpoint) Kind() config.EntrypointKind { return e.ep.Kind }

// OriginalName is the route's manifest identity, e.g. "/blog/[slug]/page".
func (e *Endpoint) OriginalName() string {
	base := e.ep.Pathname
	if base == "/" {
		base = ""
	}
	switch e.ep.Kind {
	case config.EntrypointPage:
		if e.variant == VariantRsc {
			return base + "/page.rsc"
		}
		return base + "/page"
	case config.EntrypointRoute:
		return base + "/route"
	default:
		return base + "/metadata"
	}
}

// processClient reports whether the endpoint carries a client half at all.
func (e *Endpoint) processClient() bool {
	return e.ep.Kind == config.EntrypointPage
}

// processSSR reports whether client references need SSR twin chunks. Only
// the HTML variant server-renders client components.
func (e *Endpoint) processSSR() bool {
	return e.ep.Kind == config.EntrypointPage && e.variant == VariantHtml
}

// Entry is the resolved build entry of one endpoint.
type Entry struct {
	// Module is the entry module under the NodeJs server context. The
	// runtime branch happens later, at output computation.
	Module *buildctx.Module
	// Layouts are the root layout modules, outermost first.
	Layouts []*buildctx.Module
	Config  *SegmentConfig

	Pathname     string
	OriginalName string
}

// Entry resolves the endpoint's entry and merged segment config. Memoized;
// a runtime preference change does not re-resolve the entry.
func (e *Endpoint) Entry(ctx context.Context) (*Entry, error) {
	key := memo.Key("entry", e.OriginalName())
	return memo.Get(ctx, e.app.Store(), key, func(ctx context.Context) (*Entry, error) {
		set := e.app.Contexts()
		model := e.app.Model()
		resolveCtx := set.ServerEntry(e.ep.Kind)

		var layouts []*buildctx.Module
		segments := make([]*config.Segment, 0, len(e.ep.RootLayouts)+1)
		for _, layoutPath := range e.ep.RootLayouts {
			m, err := resolveCtx.Resolve(ctx, layoutPath)
			if err != nil {
				return nil, err
			}
			layouts = append(layouts, m)
			segments = append(segments, model.SegmentFor(layoutPath))
		}

		entry, err := resolveCtx.Resolve(ctx, e.ep.Entry)
		if err != nil {
			return nil, err
		}
		segments = append(segments, model.SegmentFor(e.ep.Entry))

		cfg, err := MergeSegments(segments...)
		if err != nil {
			return nil, err
		}
		return &Entry{
			Module:       entry,
			Layouts:      layouts,
			Config:       cfg,
			Pathname:     e.ep.Pathname,
			OriginalName: e.OriginalName(),
		}, nil
	})
}

// RootModules returns the entry's root module set without forcing output
// computation.
func (e *Endpoint) RootModules(ctx context.Context) ([]*buildctx.Module, error) {
	entry, err := e.Entry(ctx)
	if err != nil {
		return nil, buildfail.Attribute(e.Pathname(), buildfail.PhaseEntry, err)
	}
	roots := make([]*buildctx.Module, 0, len(entry.Layouts)+1)
	roots = append(roots, entry.Layouts...)
	return append(roots, entry.Module), nil
}

// WrittenEndpoint summarizes one materialized endpoint.
type WrittenEndpoint struct {
	Route        string
	OriginalName string
	Runtime      buildctx.Runtime
	// ServerEntryPath is empty for Edge endpoints, which have no discrete
	// per-route server entry file.
	ServerEntryPath string
	ServerPaths     []string
	ClientPaths     []string
}

// WriteToDisk materializes the endpoint's output assets. Memoized per build
// generation; the emitter additionally skips unchanged files, so repeated
// calls are no-ops.
func (e *Endpoint) WriteToDisk(ctx context.Context) (*WrittenEndpoint, error) {
	key := memo.Key("written", e.OriginalName())
	return memo.Get(ctx, e.app.Store(), key, func(ctx context.Context) (*WrittenEndpoint, error) {
		out, err := e.Output(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := e.app.Emitter().Emit(ctx, out.Assets); err != nil {
			return nil, buildfail.Attribute(e.Pathname(), buildfail.PhaseWrite, err)
		}
		return &WrittenEndpoint{
			Route:           e.Pathname(),
			OriginalName:    e.OriginalName(),
			Runtime:         out.Runtime,
			ServerEntryPath: out.ServerEntryPath,
			ServerPaths:     output.Paths(out.Assets, output.RootServer),
			ClientPaths:     output.Paths(out.Assets, output.RootClient),
		}, nil
	})
}

// ServerChanged subscribes to changes of the endpoint's server asset set.
func (e *Endpoint) ServerChanged() *track.Handle {
	return e.app.Tracker().Subscribe(e.OriginalName() + "/server")
}

// ClientChanged subscribes to changes of the endpoint's client asset set.
func (e *Endpoint) ClientChanged() *track.Handle {
	return e.app.Tracker().Subscribe(e.OriginalName() + "/client")
}
