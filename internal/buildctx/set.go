package buildctx

import (
	"github.com/vk/routepack/internal/buildfail"
	"github.com/vk/routepack/internal/config"
	"github.com/vk/routepack/internal/memo"
	"github.com/vk/routepack/internal/modgraph"
)

// Set bundles the module contexts of one AppProject. Construction is pure
// and deterministic from the project config; edge contexts differ from their
// NodeJs counterparts only in resolution conditions and compile-time
// constants, never in transition topology, so chunk planning code is shared
// between runtimes.
type Set struct {
	Client *Context

	RSC     *Context
	EdgeRSC *Context

	Route     *Context
	EdgeRoute *Context

	SSR     *Context
	EdgeSSR *Context

	Shared     *Context
	EdgeShared *Context
}

// NewSet derives the full context set from the project configuration.
// It fails only when required resolution configuration is absent.
func NewSet(p *config.Project, table *modgraph.Table, store *memo.Store) (*Set, error) {
	if p == nil {
		return nil, &buildfail.ConfigError{Missing: "project block"}
	}
	if len(p.PageExtensions) == 0 {
		return nil, &buildfail.ConfigError{Missing: "page_extensions", Detail: "resolution extension order is required"}
	}

	newContext := func(tag string, target Target, env map[string]string, conditions []string) *Context {
		return &Context{
			Tag: tag,
			CompileTime: CompileTimeInfo{
				Target:  target,
				Defines: defines(target, env),
			},
			ResolveOpts: ResolveOptions{
				Conditions: conditions,
				Extensions: p.PageExtensions,
			},
			table: table,
			store: store,
		}
	}

	s := &Set{
		Client:     newContext("app-client", TargetBrowser, p.ClientEnv, []string{"browser", "import"}),
		SSR:        newContext("app-ssr", TargetServer, p.ServerEnv, []string{"node", "import", "require"}),
		EdgeSSR:    newContext("app-edge-ssr", TargetEdge, p.EdgeEnv, []string{"edge-light", "import"}),
		Shared:     newContext("app-shared", TargetServer, p.ServerEnv, []string{"node", "import", "require"}),
		EdgeShared: newContext("app-edge-shared", TargetEdge, p.EdgeEnv, []string{"edge-light", "import"}),
	}

	s.RSC = newContext("app-rsc", TargetServer, p.ServerEnv, []string{"react-server", "node", "import"})
	s.EdgeRSC = newContext("app-edge-rsc", TargetEdge, p.EdgeEnv, []string{"react-server", "edge-light", "import"})
	s.Route = newContext("app-route", TargetServer, p.ServerEnv, []string{"react-server", "node", "import"})
	s.EdgeRoute = newContext("app-edge-route", TargetEdge, p.EdgeEnv, []string{"react-server", "edge-light", "import"})

	s.RSC.transitions = s.serverTransitions(false)
	s.Route.transitions = s.serverTransitions(false)
	s.EdgeRSC.transitions = s.serverTransitions(true)
	s.EdgeRoute.transitions = s.serverTransitions(true)

	return s, nil
}

// serverTransitions builds the named transition table of a server context.
// The table is closed; the edge variant swaps target contexts, not topology.
func (s *Set) serverTransitions(edge bool) map[string]*Transition {
	ssr, shared := s.SSR, s.Shared
	if edge {
		ssr, shared = s.EdgeSSR, s.EdgeShared
	}
	return map[string]*Transition{
		KeyClientReference: {Kind: TransitionClientReference, Client: s.Client, SSR: ssr},
		KeyDynamicImport:   {Kind: TransitionDynamicImport, Client: s.Client},
		KeySSR:             {Kind: TransitionSSR, Target: ssr},
		KeyShared:          {Kind: TransitionShared, Target: shared},
	}
}

// ServerEntry returns the entry resolution context for an endpoint kind.
// Entry resolution always happens under the NodeJs variant; the runtime
// branch is taken later, at output computation time.
func (s *Set) ServerEntry(kind config.EntrypointKind) *Context {
	if kind == config.EntrypointRoute {
		return s.Route
	}
	return s.RSC
}

// EdgeTwin returns the edge counterpart of a NodeJs server context.
func (s *Set) EdgeTwin(c *Context) *Context {
	switch c {
	case s.RSC:
		return s.EdgeRSC
	case s.Route:
		return s.EdgeRoute
	case s.SSR:
		return s.EdgeSSR
	case s.Shared:
		return s.EdgeShared
	}
	return c
}

func defines(target Target, env map[string]string) map[string]string {
	d := make(map[string]string, len(env)+1)
	for k, v := range env {
		d["process.env."+k] = v
	}
	d["routepack.target"] = target.String()
	return d
}
