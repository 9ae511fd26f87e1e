// Package project owns the per-application build state: the module context
// set, chunking contexts, memo store, change tracker and disk emitter, plus
// the endpoints derived from the declared entrypoints. Everything an
// endpoint needs is reachable through the App interface this package
// implements.
package project

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/vk/routepack/internal/buildctx"
	"github.com/vk/routepack/internal/chunk"
	"github.com/vk/routepack/internal/config"
	"github.com/vk/routepack/internal/endpoint"
	"github.com/vk/routepack/internal/memo"
	"github.com/vk/routepack/internal/output"
	"github.com/vk/routepack/internal/track"
)

// Options tunes project construction. Zero values fall back to the config
// model's dist dir and the default memo capacity.
type Options struct {
	// ServerDir overrides the server output directory.
	ServerDir string
	// ClientDir overrides the client output directory.
	ClientDir string
	// CacheCells caps the memo store.
	CacheCells int
}

// AppProject is one buildable application.
type AppProject struct {
	model   *config.Model
	set     *buildctx.Set
	store   *memo.Store
	tracker *track.Tracker
	emitter *output.Emitter

	chunkCtxs endpoint.ChunkContexts
	buildID   string
	endpoints []*endpoint.Endpoint
}

// New derives the full project state from a loaded config model.
func New(model *config.Model, opts Options) (*AppProject, error) {
	model.ApplyDefaults()

	table, err := model.BuildTable()
	if err != nil {
		return nil, err
	}
	store, err := memo.NewStore(opts.CacheCells)
	if err != nil {
		return nil, err
	}
	set, err := buildctx.NewSet(model.Project, table, store)
	if err != nil {
		return nil, err
	}

	serverDir := opts.ServerDir
	if serverDir == "" {
		serverDir = model.Project.DistDir
	}
	clientDir := opts.ClientDir
	if clientDir == "" {
		clientDir = filepath.Join(serverDir, "static")
	}

	p := &AppProject{
		model:   model,
		set:     set,
		store:   store,
		tracker: track.New(),
		emitter: output.NewEmitter(serverDir, clientDir),
		buildID: uuid.NewString(),
		chunkCtxs: endpoint.ChunkContexts{
			Client: &chunk.Context{Name: "client", Root: output.RootClient, Dir: "chunks"},
			Server: &chunk.Context{Name: "node-server", Root: output.RootServer, Dir: "server/chunks"},
			SSR:    &chunk.Context{Name: "ssr", Root: output.RootServer, Dir: "server/chunks/ssr"},
			Edge: &chunk.Context{
				Name:                "edge-server",
				Root:                output.RootServer,
				Dir:                 "server/edge/chunks",
				IncludeClientAssets: true,
			},
		},
	}
	for _, ep := range model.Entrypoints {
		p.endpoints = append(p.endpoints, endpoint.New(p, ep)...)
	}
	return p, nil
}

// BuildID identifies this project instance, e.g. in summaries and logs.
func (p *AppProject) BuildID() string { return p.buildID }

// Endpoints returns every derived endpoint, page variants included.
func (p *AppProject) Endpoints() []*endpoint.Endpoint { return p.endpoints }

// Generation returns the current build generation.
func (p *AppProject) Generation() uint64 { return p.store.Generation() }

// Invalidate advances the build generation; the next request for any derived
// value recomputes from the current inputs.
func (p *AppProject) Invalidate() uint64 { return p.store.Invalidate() }

func (p *AppProject) Model() *config.Model { return p.model }

func (p *AppProject) Contexts() *buildctx.Set { return p.set }

func (p *AppProject) ChunkContexts() endpoint.ChunkContexts { return p.chunkCtxs }

func (p *AppProject) Store() *memo.Store { return p.store }

func (p *AppProject) Tracker() *track.Tracker { return p.tracker }

func (p *AppProject) Emitter() *output.Emitter { return p.emitter }

// SharedClientGroup plans the chunk group of the client runtime entries.
// Computed once per build generation and read-shared by every endpoint.
func (p *AppProject) SharedClientGroup(ctx context.Context) (*chunk.Group, error) {
	key := memo.Key("shared-client-group")
	return memo.Get(ctx, p.store, key, func(ctx context.Context) (*chunk.Group, error) {
		if p.model.Project.ClientRuntime == "" {
			return &chunk.Group{Availability: chunk.RootAvailability()}, nil
		}
		entry, err := p.set.Client.Resolve(ctx, p.model.Project.ClientRuntime)
		if err != nil {
			return nil, err
		}
		return chunk.SharedGroup(ctx, p.chunkCtxs.Client, "main", []*buildctx.Module{entry})
	})
}

// Polyfill returns the precompiled polyfill copied verbatim into the client
// root, nil when the project declares none.
func (p *AppProject) Polyfill(ctx context.Context) (*output.Asset, error) {
	if p.model.Project.Polyfill == "" {
		return nil, nil
	}
	key := memo.Key("polyfill")
	return memo.Get(ctx, p.store, key, func(ctx context.Context) (*output.Asset, error) {
		m, err := p.set.Client.Resolve(ctx, p.model.Project.Polyfill)
		if err != nil {
			return nil, err
		}
		return output.New(output.RootClient, "polyfills.js", output.KindRaw, []byte(m.Source))
	})
}
