// Package modgraph holds the module table the external resolver/parser
// produces for one project tree: source modules, their import edges, and
// relative-specifier resolution. The transition key carried on an import
// edge is an opaque string here; interpreting it is the job of the module
// contexts in internal/buildctx.
package modgraph

import (
	"path"
	"strings"

	"github.com/vk/routepack/internal/buildfail"
)

// Kind classifies a source module.
type Kind int

const (
	KindEcmaScript Kind = iota
	KindStylesheet
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindEcmaScript:
		return "ecmascript"
	case KindStylesheet:
		return "stylesheet"
	case KindRaw:
		return "raw"
	}
	return "unknown"
}

// ParseKind maps the serialized kind names to Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "", "ecmascript":
		return KindEcmaScript, true
	case "stylesheet":
		return KindStylesheet, true
	case "raw":
		return KindRaw, true
	}
	return 0, false
}

// Import is one edge in a source module's import list.
type Import struct {
	// Specifier is the literal import specifier ("./button.js", "react").
	Specifier string
	// Transition is the named transition key carried on the edge, empty for
	// an in-context import. The key is only ever interpreted at this
	// serialization boundary.
	Transition string
	// Dynamic marks a dynamic-import boundary.
	Dynamic bool
}

// SourceModule is one entry of the module table.
type SourceModule struct {
	// Path is the project-relative file path, "/"-separated.
	Path string
	Kind Kind
	// Directive is the module-level directive, if any ("use server").
	Directive string
	// Source is the module's source text as produced by the parser.
	Source string
	// Imports are the module's import edges in source order.
	Imports []Import
}

// Table is the module table for one project tree. Immutable after New.
type Table struct {
	modules map[string]*SourceModule
}

// New builds a table from the given modules. Later duplicates win, matching
// the resolver's overwrite-on-reparse behavior.
func New(modules ...*SourceModule) *Table {
	t := &Table{modules: make(map[string]*SourceModule, len(modules))}
	for _, m := range modules {
		t.modules[path.Clean(m.Path)] = m
	}
	return t
}

// Lookup returns the module at the exact path.
func (t *Table) Lookup(p string) (*SourceModule, bool) {
	m, ok := t.modules[path.Clean(p)]
	return m, ok
}

// Len returns the number of modules in the table.
func (t *Table) Len() int { return len(t.modules) }

// Resolve resolves an import specifier against the importing module's path.
// Relative specifiers are joined to the importer's directory; bare
// specifiers are looked up as table paths directly. Each candidate is tried
// verbatim first, then with the given extensions appended in order.
// The contextTag only labels the returned error.
func (t *Table) Resolve(fromPath, specifier, contextTag string, extensions []string) (*SourceModule, error) {
	candidate := specifier
	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") {
		candidate = path.Join(path.Dir(fromPath), specifier)
	}

	if m, ok := t.Lookup(candidate); ok {
		return m, nil
	}
	for _, ext := range extensions {
		if m, ok := t.Lookup(candidate + "." + ext); ok {
			return m, nil
		}
	}
	return nil, &buildfail.ResolveError{Specifier: specifier, FromPath: fromPath, Context: contextTag}
}
