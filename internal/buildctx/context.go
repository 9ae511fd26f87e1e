// Package buildctx builds the per-context module resolution settings and the
// fixed transition edges between contexts. A ModuleContext pins a module to
// one compilation target (browser, server, edge) with its compile-time
// constants and resolution options; crossing a named transition is how the
// pipeline produces e.g. the SSR-compiled twin of a client-targeted module.
package buildctx

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/routepack/internal/buildfail"
	"github.com/vk/routepack/internal/memo"
	"github.com/vk/routepack/internal/modgraph"
)

// Target is the compilation platform of a module context.
type Target int

const (
	TargetBrowser Target = iota
	TargetServer
	TargetEdge
)

func (t Target) String() string {
	switch t {
	case TargetBrowser:
		return "browser"
	case TargetServer:
		return "server"
	case TargetEdge:
		return "edge"
	}
	return "unknown"
}

// CompileTimeInfo holds the compile-time constants of one context.
type CompileTimeInfo struct {
	Target  Target
	Defines map[string]string
}

// ResolveOptions holds the module resolution settings of one context.
type ResolveOptions struct {
	// Conditions are the platform resolution conditions, e.g. "browser" or
	// "edge-light".
	Conditions []string
	// Extensions is the extension probing order for extensionless specifiers.
	Extensions []string
}

// Context is a module context: a tag, compile-time constants, resolution
// options and the closed named transition table reachable from modules
// resolved in it. Contexts are immutable value objects created once per
// AppProject.
type Context struct {
	// Tag is the short stable identifier, e.g. "app-rsc" or "app-edge-ssr".
	Tag string

	CompileTime CompileTimeInfo
	ResolveOpts ResolveOptions

	transitions map[string]*Transition

	table *modgraph.Table
	store *memo.Store
}

// Transition looks up a named transition by its edge key.
func (c *Context) Transition(key string) (*Transition, bool) {
	t, ok := c.transitions[key]
	return t, ok
}

// TransitionCount returns the number of named transitions. The table is
// closed: it never grows after context construction.
func (c *Context) TransitionCount() int { return len(c.transitions) }

// Module is a source module instantiated under one context. Two contexts
// instantiating the same source path yield distinct modules (the compiled
// twins differ); identity is (context tag, path).
type Module struct {
	Context   *Context
	Path      string
	Kind      modgraph.Kind
	Directive string
	Source    string
}

// ID returns the module's stable identity.
func (m *Module) ID() string {
	return m.Context.Tag + ":" + m.Path
}

// Reference is one resolved import edge of a module.
type Reference struct {
	// Dynamic marks a dynamic-import boundary.
	Dynamic bool
	// Transition is the crossed transition, nil for an in-context import.
	Transition *Transition
	// Module is the resolved target: in-context, under the transition's
	// target context, or the client twin for client-reference and
	// dynamic-import transitions.
	Module *Module
	// SSRModule is the server-executable twin, set only for script
	// client references.
	SSRModule *Module
}

// Resolve instantiates the module at path under this context. Memoized by
// (context tag, path) and the current build generation.
func (c *Context) Resolve(ctx context.Context, path string) (*Module, error) {
	key := memo.Key("module", c.Tag, path)
	return memo.Get(ctx, c.store, key, func(ctx context.Context) (*Module, error) {
		src, ok := c.table.Lookup(path)
		if !ok {
			return nil, &buildfail.ResolveError{Specifier: path, FromPath: path, Context: c.Tag}
		}
		return c.instantiate(src), nil
	})
}

func (c *Context) instantiate(src *modgraph.SourceModule) *Module {
	return &Module{
		Context:   c,
		Path:      src.Path,
		Kind:      src.Kind,
		Directive: src.Directive,
		Source:    src.Source,
	}
}

// References resolves m's import edges under this context. Unresolvable
// imports are scoped failures: the successfully resolved references are
// returned alongside an error joining the per-import failures, and callers
// continue with the siblings.
func (c *Context) References(ctx context.Context, m *Module) ([]Reference, error) {
	src, ok := c.table.Lookup(m.Path)
	if !ok {
		return nil, &buildfail.ResolveError{Specifier: m.Path, FromPath: m.Path, Context: c.Tag}
	}

	refs := make([]Reference, 0, len(src.Imports))
	var errs []error
	for _, imp := range src.Imports {
		ref, err := c.resolveImport(ctx, m, imp)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		refs = append(refs, ref)
	}
	return refs, errors.Join(errs...)
}

func (c *Context) resolveImport(ctx context.Context, m *Module, imp modgraph.Import) (Reference, error) {
	if imp.Transition == "" {
		target, err := c.table.Resolve(m.Path, imp.Specifier, c.Tag, c.ResolveOpts.Extensions)
		if err != nil {
			return Reference{}, err
		}
		return Reference{Dynamic: imp.Dynamic, Module: c.instantiate(target)}, nil
	}

	tr, ok := c.transitions[imp.Transition]
	if !ok {
		return Reference{}, fmt.Errorf("import %q from %q carries unknown transition key %q in context %q",
			imp.Specifier, m.Path, imp.Transition, c.Tag)
	}

	switch tr.Kind {
	case TransitionSSR, TransitionShared:
		dst := tr.Target
		target, err := dst.table.Resolve(m.Path, imp.Specifier, dst.Tag, dst.ResolveOpts.Extensions)
		if err != nil {
			return Reference{}, err
		}
		return Reference{Dynamic: imp.Dynamic, Transition: tr, Module: dst.instantiate(target)}, nil

	case TransitionDynamicImport:
		dst := tr.Client
		target, err := dst.table.Resolve(m.Path, imp.Specifier, dst.Tag, dst.ResolveOpts.Extensions)
		if err != nil {
			return Reference{}, err
		}
		return Reference{Dynamic: true, Transition: tr, Module: dst.instantiate(target)}, nil

	case TransitionClientReference:
		clientCtx := tr.Client
		target, err := clientCtx.table.Resolve(m.Path, imp.Specifier, clientCtx.Tag, clientCtx.ResolveOpts.Extensions)
		if err != nil {
			return Reference{}, err
		}
		ref := Reference{Dynamic: imp.Dynamic, Transition: tr, Module: clientCtx.instantiate(target)}
		// Stylesheets are client-only; scripts get the SSR twin too.
		if target.Kind == modgraph.KindEcmaScript {
			ref.SSRModule = tr.SSR.instantiate(target)
		}
		return ref, nil
	}
	return Reference{}, fmt.Errorf("unhandled transition kind %v", tr.Kind)
}
