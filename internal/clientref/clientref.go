// Package clientref walks a server entry's module graph to find the modules
// that cross the server->client trust boundary, classifies them, and
// collects the dynamic-import boundaries the loadable manifest needs.
package clientref

import (
	"context"

	"github.com/vk/routepack/internal/buildctx"
	"github.com/vk/routepack/internal/ctxlog"
)

// RefKind classifies a client reference by its declared module kind.
type RefKind int

const (
	// RefScript needs both an SSR twin and a client twin.
	RefScript RefKind = iota
	// RefStylesheet is client-only.
	RefStylesheet
)

func (k RefKind) String() string {
	if k == RefStylesheet {
		return "stylesheet"
	}
	return "script"
}

// ClientReference is one module reachable from a server entry across the
// client-reference transition.
type ClientReference struct {
	Kind RefKind
	// Client is the hydration-compiled twin.
	Client *buildctx.Module
	// SSR is the server-render-compiled twin, nil for stylesheets.
	SSR *buildctx.Module
}

// ID is the reference's identity: the client twin's module identity.
func (r *ClientReference) ID() string { return r.Client.ID() }

// Graph is the result of one boundary walk. Reference order is the stable
// discovery order; correctness does not depend on it, manifest diffing does.
type Graph struct {
	References []*ClientReference
	// DynamicImports are the modules behind dynamic-import boundaries:
	// client twins behind the dynamic-import transition, and in-context
	// server modules imported dynamically on the server graph.
	DynamicImports []*buildctx.Module
	// ServerActions are reachable modules carrying the "use server"
	// directive.
	ServerActions []*buildctx.Module
	// Problems are subtree-scoped resolution failures. They are reported,
	// not fatal: sibling branches keep their results.
	Problems []error
}

// Scripts returns the script references in discovery order.
func (g *Graph) Scripts() []*ClientReference {
	var scripts []*ClientReference
	for _, r := range g.References {
		if r.Kind == RefScript {
			scripts = append(scripts, r)
		}
	}
	return scripts
}

// Collect walks the module graph from the server entry. Client-reference
// edges record the target and stop the server walk there; the client-side
// subgraph is only visited to discover nested dynamic-import boundaries,
// its chunking is planned separately.
func Collect(ctx context.Context, entry *buildctx.Module) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	w := &walker{
		graph:        &Graph{},
		seenServer:   make(map[string]struct{}),
		seenRefs:     make(map[string]struct{}),
		seenDynamics: make(map[string]struct{}),
		seenActions:  make(map[string]struct{}),
		seenClient:   make(map[string]struct{}),
	}
	w.walkServer(ctx, entry)
	logger.Debug("Client boundary walk finished.",
		"entry", entry.ID(),
		"references", len(w.graph.References),
		"dynamic_imports", len(w.graph.DynamicImports),
		"problems", len(w.graph.Problems))
	return w.graph, nil
}

type walker struct {
	graph        *Graph
	seenServer   map[string]struct{}
	seenRefs     map[string]struct{}
	seenDynamics map[string]struct{}
	seenActions  map[string]struct{}
	seenClient   map[string]struct{}
}

func (w *walker) walkServer(ctx context.Context, m *buildctx.Module) {
	if _, ok := w.seenServer[m.ID()]; ok {
		return
	}
	w.seenServer[m.ID()] = struct{}{}

	if m.Directive == "use server" {
		if _, ok := w.seenActions[m.ID()]; !ok {
			w.seenActions[m.ID()] = struct{}{}
			w.graph.ServerActions = append(w.graph.ServerActions, m)
		}
	}

	refs, err := m.Context.References(ctx, m)
	if err != nil {
		w.graph.Problems = append(w.graph.Problems, err)
	}

	for _, ref := range refs {
		if ref.Transition == nil {
			// An untransitioned dynamic edge is still a boundary: the
			// target keeps its server context but loads lazily.
			if ref.Dynamic {
				w.recordDynamic(ref.Module)
			}
			w.walkServer(ctx, ref.Module)
			continue
		}
		switch ref.Transition.Kind {
		case buildctx.TransitionSSR, buildctx.TransitionShared:
			w.walkServer(ctx, ref.Module)

		case buildctx.TransitionDynamicImport:
			w.recordDynamic(ref.Module)
			w.walkClient(ctx, ref.Module)

		case buildctx.TransitionClientReference:
			w.recordReference(ref)
			w.walkClient(ctx, ref.Module)
		}
	}
}

func (w *walker) recordReference(ref buildctx.Reference) {
	id := ref.Module.ID()
	if _, ok := w.seenRefs[id]; ok {
		return
	}
	w.seenRefs[id] = struct{}{}

	kind := RefScript
	if ref.SSRModule == nil {
		kind = RefStylesheet
	}
	w.graph.References = append(w.graph.References, &ClientReference{
		Kind:   kind,
		Client: ref.Module,
		SSR:    ref.SSRModule,
	})
}

func (w *walker) recordDynamic(m *buildctx.Module) {
	if _, ok := w.seenDynamics[m.ID()]; ok {
		return
	}
	w.seenDynamics[m.ID()] = struct{}{}
	w.graph.DynamicImports = append(w.graph.DynamicImports, m)
}

// walkClient visits a client subgraph only to find nested dynamic-import
// boundaries; its modules are otherwise the chunk planner's business.
func (w *walker) walkClient(ctx context.Context, m *buildctx.Module) {
	if _, ok := w.seenClient[m.ID()]; ok {
		return
	}
	w.seenClient[m.ID()] = struct{}{}

	refs, err := m.Context.References(ctx, m)
	if err != nil {
		w.graph.Problems = append(w.graph.Problems, err)
	}
	for _, ref := range refs {
		if ref.Dynamic {
			w.recordDynamic(ref.Module)
		}
		w.walkClient(ctx, ref.Module)
	}
}
