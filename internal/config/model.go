package config

import (
	"github.com/vk/routepack/internal/buildfail"
	"github.com/vk/routepack/internal/modgraph"
)

// Model is the unified, format-agnostic representation of one project build
// configuration: the project block, the declared route entrypoints, and the
// module table handed over by the external resolver/parser.
type Model struct {
	Project     *Project
	Entrypoints []*Entrypoint
	Modules     []*Module
}

// Project holds the root build configuration shared by every route.
type Project struct {
	// AppDir is the route-tree root directory, relative to the project root.
	AppDir string
	// DistDir is the server output root.
	DistDir string
	// BasePath is prepended to client-relative chunk URLs.
	BasePath string
	// PageExtensions is the resolution extension order.
	PageExtensions []string

	// ClientRuntime is the module path of the client bootstrap entry.
	ClientRuntime string
	// ServerRuntime is the module path of the server bootstrap entry.
	ServerRuntime string
	// Polyfill is the module path of the precompiled polyfill asset, copied
	// verbatim into the client root.
	Polyfill string

	// Compile-time environment per compilation target.
	ClientEnv map[string]string
	ServerEnv map[string]string
	EdgeEnv   map[string]string
}

// EntrypointKind distinguishes the three route endpoint flavors.
type EntrypointKind int

const (
	EntrypointPage EntrypointKind = iota
	EntrypointRoute
	EntrypointMetadata
)

func (k EntrypointKind) String() string {
	switch k {
	case EntrypointPage:
		return "page"
	case EntrypointRoute:
		return "route"
	case EntrypointMetadata:
		return "metadata"
	}
	return "unknown"
}

// Entrypoint is one discovered route endpoint.
type Entrypoint struct {
	Kind     EntrypointKind
	Pathname string
	// Entry is the module path of the endpoint's source file.
	Entry string
	// RootLayouts lists layout module paths outermost-first.
	RootLayouts []string
}

// Segment is the raw per-route segment config declared by a layout or entry
// module. Field semantics and merge order live in internal/endpoint.
type Segment struct {
	Runtime          string
	PreferredRegions []string
	MaxDuration      *int
}

// Module is the format-agnostic representation of a `module` block.
type Module struct {
	Path      string
	Kind      string
	Directive string
	Source    string
	Imports   []*ImportSpec
	Segment   *Segment
}

// ImportSpec is one import edge of a module block.
type ImportSpec struct {
	Specifier  string
	Transition string
	Dynamic    bool
}

// BuildTable converts the declared module blocks into the module table the
// build contexts resolve against.
func (m *Model) BuildTable() (*modgraph.Table, error) {
	modules := make([]*modgraph.SourceModule, 0, len(m.Modules))
	for _, mod := range m.Modules {
		kind, ok := modgraph.ParseKind(mod.Kind)
		if !ok {
			return nil, &buildfail.ConfigError{Missing: "module kind", Detail: mod.Path + " declares unknown kind " + mod.Kind}
		}
		sm := &modgraph.SourceModule{
			Path:      mod.Path,
			Kind:      kind,
			Directive: mod.Directive,
			Source:    mod.Source,
		}
		for _, imp := range mod.Imports {
			sm.Imports = append(sm.Imports, modgraph.Import{
				Specifier:  imp.Specifier,
				Transition: imp.Transition,
				Dynamic:    imp.Dynamic,
			})
		}
		modules = append(modules, sm)
	}
	return modgraph.New(modules...), nil
}

// SegmentFor returns the segment config declared by the module at path, or
// nil when the module declares none.
func (m *Model) SegmentFor(path string) *Segment {
	for _, mod := range m.Modules {
		if mod.Path == path {
			return mod.Segment
		}
	}
	return nil
}

// ApplyDefaults fills unset project fields with their defaults.
func (m *Model) ApplyDefaults() {
	if m.Project == nil {
		m.Project = &Project{}
	}
	p := m.Project
	if p.AppDir == "" {
		p.AppDir = "app"
	}
	if p.DistDir == "" {
		p.DistDir = ".routepack"
	}
	if len(p.PageExtensions) == 0 {
		p.PageExtensions = []string{"js", "jsx", "ts", "tsx"}
	}
}
