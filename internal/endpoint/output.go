package endpoint

import (
	"context"
	"sort"

	"github.com/vk/routepack/internal/buildctx"
	"github.com/vk/routepack/internal/buildfail"
	"github.com/vk/routepack/internal/chunk"
	"github.com/vk/routepack/internal/clientref"
	"github.com/vk/routepack/internal/ctxlog"
	"github.com/vk/routepack/internal/manifest"
	"github.com/vk/routepack/internal/memo"
	"github.com/vk/routepack/internal/output"
)

// Output is the computed asset set of one endpoint under its resolved
// runtime. Immutable once produced, shared by identity.
type Output struct {
	Runtime buildctx.Runtime
	// ServerEntryPath is the NodeJs server entry chunk path, empty for Edge.
	ServerEntryPath string
	Assets          []*output.Asset
	// Problems are subtree-scoped failures that did not abort the build.
	Problems []error
}

// ServerAssets returns the assets under the server output root.
func (o *Output) ServerAssets() []*output.Asset { return filterRoot(o.Assets, output.RootServer) }

// ClientAssets returns the assets under the client output root.
func (o *Output) ClientAssets() []*output.Asset { return filterRoot(o.Assets, output.RootClient) }

func filterRoot(assets []*output.Asset, root output.Root) []*output.Asset {
	var out []*output.Asset
	for _, a := range assets {
		if a.Root == root {
			out = append(out, a)
		}
	}
	return out
}

// Output computes the endpoint's full asset set. Idempotent and memoized by
// endpoint identity and build generation.
func (e *Endpoint) Output(ctx context.Context) (*Output, error) {
	key := memo.Key("output", e.OriginalName())
	return memo.Get(ctx, e.app.Store(), key, e.computeOutput)
}

func (e *Endpoint) computeOutput(ctx context.Context) (*Output, error) {
	route := e.Pathname()
	ctx = ctxlog.With(ctx, "route", route)
	logger := ctxlog.FromContext(ctx)

	entry, err := e.Entry(ctx)
	if err != nil {
		return nil, buildfail.Attribute(route, buildfail.PhaseEntry, err)
	}

	out := &Output{Runtime: entry.Config.Runtime}
	cc := e.app.ChunkContexts()
	set := e.app.Contexts()
	project := e.app.Model().Project

	roots := make([]*buildctx.Module, 0, len(entry.Layouts)+1)
	roots = append(roots, entry.Layouts...)
	roots = append(roots, entry.Module)

	// The boundary walk runs on the NodeJs graph for every endpoint kind:
	// routes need it for server actions and server-side dynamic imports,
	// pages additionally for client references. Its topology does not
	// depend on the resolved runtime.
	graph, err := collectAll(ctx, roots)
	if err != nil {
		return nil, buildfail.Attribute(route, buildfail.PhaseClientRef, err)
	}
	out.Problems = append(out.Problems, graph.Problems...)

	// Untransitioned dynamic boundaries stay server chunks; transitioned
	// ones belong to the client planner.
	var clientDynamics, serverDynamics []*buildctx.Module
	for _, m := range graph.DynamicImports {
		if m.Context.CompileTime.Target == buildctx.TargetBrowser {
			clientDynamics = append(clientDynamics, m)
		} else {
			serverDynamics = append(serverDynamics, m)
		}
	}

	var (
		refGroups     []*chunk.RefGroup
		dynGroups     []*chunk.DynamicGroup
		rootMainFiles []string
		polyfillFiles []string
		appFiles      []string
	)
	if e.processClient() {
		shared, err := e.app.SharedClientGroup(ctx)
		if err != nil {
			return nil, buildfail.Attribute(route, buildfail.PhaseChunking, err)
		}
		out.Assets = append(out.Assets, shared.Assets...)
		rootMainFiles = withBasePath(project.BasePath, output.JSPaths(shared.Assets, output.RootClient))

		polyfill, err := e.app.Polyfill(ctx)
		if err != nil {
			return nil, buildfail.Attribute(route, buildfail.PhaseChunking, err)
		}
		if polyfill != nil {
			out.Assets = append(out.Assets, polyfill)
			polyfillFiles = withBasePath(project.BasePath, []string{polyfill.Path})
		}

		refs := graph.References
		ssrCC := cc.SSR
		if out.Runtime == buildctx.RuntimeEdge {
			// SSR twins recompile under the edge contexts and are emitted
			// as statically loaded edge chunks, but only when the edge
			// context carries client assets alongside the evaluated chunk.
			ssrCC = nil
			if cc.Edge.IncludeClientAssets {
				ssrCC = cc.Edge
				refs, err = edgeRefs(ctx, set, refs)
				if err != nil {
					return nil, buildfail.Attribute(route, buildfail.PhaseClientRef, err)
				}
			}
		}
		if !e.processSSR() {
			ssrCC = nil
		}

		refGroups, _, err = chunk.ReferenceGroups(ctx, cc.Client, ssrCC, refs, shared.Availability)
		if err != nil {
			return nil, buildfail.Attribute(route, buildfail.PhaseChunking, err)
		}
		for _, rg := range refGroups {
			out.Assets = append(out.Assets, rg.Client.Assets...)
			out.Problems = append(out.Problems, rg.Client.Problems...)
			appFiles = append(appFiles, output.Paths(rg.Client.Assets, output.RootClient)...)
			if rg.SSR != nil {
				out.Assets = append(out.Assets, rg.SSR.Assets...)
				out.Problems = append(out.Problems, rg.SSR.Problems...)
			}
		}
		sort.Strings(appFiles)

		dynGroups, err = chunk.DynamicImportGroups(ctx, cc.Client, clientDynamics, shared.Availability)
		if err != nil {
			return nil, buildfail.Attribute(route, buildfail.PhaseChunking, err)
		}
		for _, dg := range dynGroups {
			out.Assets = append(out.Assets, dg.Group.Assets...)
			out.Problems = append(out.Problems, dg.Group.Problems...)
		}
	}

	var middlewareFiles []string
	switch out.Runtime {
	case buildctx.RuntimeEdge:
		edgeCtx := set.EdgeTwin(entry.Module.Context)
		var evalRoots []*buildctx.Module
		if project.ServerRuntime != "" {
			rt, err := edgeCtx.Resolve(ctx, project.ServerRuntime)
			if err != nil {
				return nil, buildfail.Attribute(route, buildfail.PhaseChunking, err)
			}
			evalRoots = append(evalRoots, rt)
		}
		for _, r := range roots {
			m, err := edgeCtx.Resolve(ctx, r.Path)
			if err != nil {
				return nil, buildfail.Attribute(route, buildfail.PhaseChunking, err)
			}
			evalRoots = append(evalRoots, m)
		}
		// Server action modules stay reachable as loader roots of the
		// evaluated group.
		for _, action := range graph.ServerActions {
			m, err := edgeCtx.Resolve(ctx, action.Path)
			if err != nil {
				out.Problems = append(out.Problems, err)
				continue
			}
			evalRoots = append(evalRoots, m)
		}
		// The edge runtime cannot load chunks lazily; server-side dynamic
		// boundaries ride along as additional evaluated roots.
		var edgeDynamics []*buildctx.Module
		for _, dyn := range serverDynamics {
			m, err := edgeCtx.Resolve(ctx, dyn.Path)
			if err != nil {
				out.Problems = append(out.Problems, err)
				continue
			}
			edgeDynamics = append(edgeDynamics, m)
			evalRoots = append(evalRoots, m)
		}

		group, err := chunk.EvaluatedGroup(ctx, cc.Edge, "app"+e.OriginalName(), evalRoots)
		if err != nil {
			return nil, buildfail.Attribute(route, buildfail.PhaseChunking, err)
		}
		out.Assets = append(out.Assets, group.Assets...)
		out.Problems = append(out.Problems, group.Problems...)
		for _, dyn := range edgeDynamics {
			dynGroups = append(dynGroups, &chunk.DynamicGroup{Module: dyn, Group: group})
		}

		preloads, err := manifest.EdgePreloadAssets()
		if err != nil {
			return nil, buildfail.Attribute(route, buildfail.PhaseChunking, err)
		}
		out.Assets = append(out.Assets, preloads...)

		middlewareFiles = append(middlewareFiles, manifest.EdgePreloads...)
		middlewareFiles = append(middlewareFiles, output.JSPaths(group.Assets, output.RootServer)...)
		for _, rg := range refGroups {
			if rg.SSR != nil {
				middlewareFiles = append(middlewareFiles, output.JSPaths(rg.SSR.Assets, output.RootServer)...)
			}
		}

	default:
		entryPath := "server/app" + e.OriginalName() + ".js"
		asset, group, err := chunk.EntryChunk(ctx, cc.Server, entryPath, roots, chunk.RootAvailability())
		if err != nil {
			return nil, buildfail.Attribute(route, buildfail.PhaseChunking, err)
		}
		out.ServerEntryPath = asset.Path
		out.Assets = append(out.Assets, group.Assets...)
		out.Problems = append(out.Problems, group.Problems...)

		// Server-side dynamic boundaries load lazily in-process; each gets
		// its own chunk planned against the entry availability.
		serverDynGroups, err := chunk.DynamicImportGroups(ctx, cc.Server, serverDynamics, group.Availability)
		if err != nil {
			return nil, buildfail.Attribute(route, buildfail.PhaseChunking, err)
		}
		for _, dg := range serverDynGroups {
			out.Assets = append(out.Assets, dg.Group.Assets...)
			out.Problems = append(out.Problems, dg.Group.Problems...)
		}
		dynGroups = append(dynGroups, serverDynGroups...)
	}

	if err := e.emitManifests(ctx, out, entry, refGroups, dynGroups, rootMainFiles, polyfillFiles, appFiles, middlewareFiles); err != nil {
		return nil, err
	}

	out.Assets = output.Dedupe(out.Assets)

	tracker := e.app.Tracker()
	tracker.Observe(e.OriginalName()+"/server", output.HashAll(out.ServerAssets()))
	tracker.Observe(e.OriginalName()+"/client", output.HashAll(out.ClientAssets()))

	logger.Debug("Endpoint output computed.",
		"original_name", e.OriginalName(),
		"runtime", out.Runtime.String(),
		"assets", len(out.Assets),
		"problems", len(out.Problems))
	return out, nil
}

func (e *Endpoint) emitManifests(
	ctx context.Context,
	out *Output,
	entry *Entry,
	refGroups []*chunk.RefGroup,
	dynGroups []*chunk.DynamicGroup,
	rootMainFiles, polyfillFiles, appFiles, middlewareFiles []string,
) error {
	route := e.Pathname()
	orig := e.OriginalName()
	project := e.app.Model().Project

	entryPath := out.ServerEntryPath
	if out.Runtime == buildctx.RuntimeEdge {
		entryPath = manifest.EdgeNoEntrypoint
	}

	// The font manifest is emitted for every endpoint kind, routes and
	// metadata included; it is simply empty when no fonts are referenced.
	clientAssets := out.ClientAssets()
	emitters := []func() (*output.Asset, error){
		func() (*output.Asset, error) { return manifest.AppPaths(route, orig, entryPath) },
		func() (*output.Asset, error) { return manifest.Fonts(route, orig, clientAssets) },
	}
	if e.processClient() {
		emitters = append(emitters,
			func() (*output.Asset, error) { return manifest.Build(route, orig, rootMainFiles, polyfillFiles) },
			func() (*output.Asset, error) { return manifest.AppBuild(route, orig, appFiles) },
			func() (*output.Asset, error) { return manifest.ClientReferences(route, orig, refGroups) },
			func() (*output.Asset, error) { return manifest.Loadable(route, orig, dynGroups) },
		)
	}
	if out.Runtime == buildctx.RuntimeEdge {
		emitters = append(emitters, func() (*output.Asset, error) {
			return manifest.Middleware(route, orig, e.Pathname(), middlewareFiles,
				entry.Config.PreferredRegions, project.EdgeEnv)
		})
	}

	for _, emit := range emitters {
		asset, err := emit()
		if err != nil {
			return buildfail.Attribute(route, buildfail.PhaseManifest, err)
		}
		out.Assets = append(out.Assets, asset)
	}
	return nil
}

// collectAll merges the boundary walks of all loader-tree roots, deduping by
// module identity.
func collectAll(ctx context.Context, roots []*buildctx.Module) (*clientref.Graph, error) {
	merged := &clientref.Graph{}
	seenRefs := make(map[string]struct{})
	seenDyn := make(map[string]struct{})
	seenActions := make(map[string]struct{})

	for _, root := range roots {
		g, err := clientref.Collect(ctx, root)
		if err != nil {
			return nil, err
		}
		for _, ref := range g.References {
			if _, ok := seenRefs[ref.ID()]; ok {
				continue
			}
			seenRefs[ref.ID()] = struct{}{}
			merged.References = append(merged.References, ref)
		}
		for _, m := range g.DynamicImports {
			if _, ok := seenDyn[m.ID()]; ok {
				continue
			}
			seenDyn[m.ID()] = struct{}{}
			merged.DynamicImports = append(merged.DynamicImports, m)
		}
		for _, m := range g.ServerActions {
			if _, ok := seenActions[m.ID()]; ok {
				continue
			}
			seenActions[m.ID()] = struct{}{}
			merged.ServerActions = append(merged.ServerActions, m)
		}
		merged.Problems = append(merged.Problems, g.Problems...)
	}
	return merged, nil
}

// edgeRefs swaps each script reference's SSR twin for its edge-compiled
// counterpart.
func edgeRefs(ctx context.Context, set *buildctx.Set, refs []*clientref.ClientReference) ([]*clientref.ClientReference, error) {
	out := make([]*clientref.ClientReference, 0, len(refs))
	for _, ref := range refs {
		if ref.SSR == nil {
			out = append(out, ref)
			continue
		}
		twin, err := set.EdgeTwin(set.SSR).Resolve(ctx, ref.SSR.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, &clientref.ClientReference{Kind: ref.Kind, Client: ref.Client, SSR: twin})
	}
	return out, nil
}

func withBasePath(basePath string, paths []string) []string {
	if basePath == "" {
		return paths
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = basePath + "/" + p
	}
	return out
}
