package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/routepack/internal/ctxlog"
)

// hclFile mirrors the top-level structure of one .hcl config file.
type hclFile struct {
	Project  *hclProject  `hcl:"project,block"`
	Pages    []*hclEntry  `hcl:"page,block"`
	Routes   []*hclEntry  `hcl:"route,block"`
	Metadata []*hclEntry  `hcl:"metadata,block"`
	Modules  []*hclModule `hcl:"module,block"`
}

type hclProject struct {
	AppDir         string   `hcl:"app_dir,optional"`
	DistDir        string   `hcl:"dist_dir,optional"`
	BasePath       string   `hcl:"base_path,optional"`
	PageExtensions []string `hcl:"page_extensions,optional"`
	ClientRuntime  string   `hcl:"client_runtime,optional"`
	ServerRuntime  string   `hcl:"server_runtime,optional"`
	Polyfill       string   `hcl:"polyfill,optional"`

	ClientEnv hcl.Expression `hcl:"client_env,optional"`
	ServerEnv hcl.Expression `hcl:"server_env,optional"`
	EdgeEnv   hcl.Expression `hcl:"edge_env,optional"`
}

type hclEntry struct {
	Pathname    string   `hcl:"pathname,label"`
	Entry       string   `hcl:"entry"`
	RootLayouts []string `hcl:"root_layouts,optional"`
}

type hclModule struct {
	Path      string        `hcl:"path,label"`
	Kind      string        `hcl:"kind,optional"`
	Directive string        `hcl:"directive,optional"`
	Source    string        `hcl:"source,optional"`
	Imports   []*hclImport  `hcl:"import,block"`
	Segment   *hclSegment   `hcl:"segment,block"`
}

type hclImport struct {
	Specifier  string `hcl:"specifier,label"`
	Transition string `hcl:"transition,optional"`
	Dynamic    bool   `hcl:"dynamic,optional"`
}

type hclSegment struct {
	Runtime          string   `hcl:"runtime,optional"`
	PreferredRegions []string `hcl:"preferred_regions,optional"`
	MaxDuration      *int     `hcl:"max_duration,optional"`
}

// HCLLoader loads project configuration from .hcl files.
type HCLLoader struct{}

// NewHCLLoader creates the HCL-backed config loader.
func NewHCLLoader() *HCLLoader {
	return &HCLLoader{}
}

// Load implements the Loader interface. Each path may be a single file or a
// directory searched recursively for .hcl files; all files are merged into
// one model. Exactly one project block is allowed across all files.
func (l *HCLLoader) Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)

	var files []string
	for _, p := range paths {
		found, err := collectHCLFiles(p)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	sort.Strings(files)
	logger.Debug("Collected config files.", "count", len(files))

	model := &Model{}
	parser := hclparse.NewParser()
	for _, file := range files {
		parsed, err := decodeHCLFile(parser, file)
		if err != nil {
			return nil, err
		}
		if err := mergeFile(model, parsed, file); err != nil {
			return nil, err
		}
	}

	model.ApplyDefaults()
	logger.Debug("Configuration translated into unified model.",
		"entrypoints", len(model.Entrypoints), "modules", len(model.Modules))
	return model, nil
}

func collectHCLFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config path %q: %w", root, err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".hcl") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk config directory %q: %w", root, err)
	}
	return files, nil
}

func decodeHCLFile(parser *hclparse.Parser, path string) (*hclFile, error) {
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %s", path, diags.Error())
	}
	var decoded hclFile
	diags = gohcl.DecodeBody(file.Body, nil, &decoded)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %s", path, diags.Error())
	}
	return &decoded, nil
}

func mergeFile(model *Model, file *hclFile, path string) error {
	if file.Project != nil {
		if model.Project != nil {
			return fmt.Errorf("duplicate project block in %s: only one project block is allowed", path)
		}
		project, err := convertProject(file.Project)
		if err != nil {
			return fmt.Errorf("invalid project block in %s: %w", path, err)
		}
		model.Project = project
	}

	for _, e := range file.Pages {
		model.Entrypoints = append(model.Entrypoints, convertEntry(EntrypointPage, e))
	}
	for _, e := range file.Routes {
		model.Entrypoints = append(model.Entrypoints, convertEntry(EntrypointRoute, e))
	}
	for _, e := range file.Metadata {
		model.Entrypoints = append(model.Entrypoints, convertEntry(EntrypointMetadata, e))
	}
	for _, m := range file.Modules {
		model.Modules = append(model.Modules, convertModule(m))
	}
	return nil
}

func convertProject(p *hclProject) (*Project, error) {
	clientEnv, err := decodeEnv(p.ClientEnv, "client_env")
	if err != nil {
		return nil, err
	}
	serverEnv, err := decodeEnv(p.ServerEnv, "server_env")
	if err != nil {
		return nil, err
	}
	edgeEnv, err := decodeEnv(p.EdgeEnv, "edge_env")
	if err != nil {
		return nil, err
	}
	return &Project{
		AppDir:         p.AppDir,
		DistDir:        p.DistDir,
		BasePath:       p.BasePath,
		PageExtensions: p.PageExtensions,
		ClientRuntime:  p.ClientRuntime,
		ServerRuntime:  p.ServerRuntime,
		Polyfill:       p.Polyfill,
		ClientEnv:      clientEnv,
		ServerEnv:      serverEnv,
		EdgeEnv:        edgeEnv,
	}, nil
}

// decodeEnv evaluates an env map attribute into plain strings. Values must
// be strings; anything else is a config authoring error.
func decodeEnv(expr hcl.Expression, name string) (map[string]string, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to evaluate %s: %s", name, diags.Error())
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.CanIterateElements() {
		return nil, fmt.Errorf("%s must be a map of strings", name)
	}

	env := make(map[string]string)
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		if v.IsNull() {
			continue
		}
		if v.Type() != cty.String {
			return nil, fmt.Errorf("%s[%s] must be a string", name, k.AsString())
		}
		env[k.AsString()] = v.AsString()
	}
	return env, nil
}

func convertEntry(kind EntrypointKind, e *hclEntry) *Entrypoint {
	return &Entrypoint{
		Kind:        kind,
		Pathname:    e.Pathname,
		Entry:       e.Entry,
		RootLayouts: e.RootLayouts,
	}
}

func convertModule(m *hclModule) *Module {
	mod := &Module{
		Path:      m.Path,
		Kind:      m.Kind,
		Directive: m.Directive,
		Source:    m.Source,
	}
	for _, imp := range m.Imports {
		mod.Imports = append(mod.Imports, &ImportSpec{
			Specifier:  imp.Specifier,
			Transition: imp.Transition,
			Dynamic:    imp.Dynamic,
		})
	}
	if m.Segment != nil {
		mod.Segment = &Segment{
			Runtime:          m.Segment.Runtime,
			PreferredRegions: m.Segment.PreferredRegions,
			MaxDuration:      m.Segment.MaxDuration,
		}
	}
	return mod
}
