// Package manifest renders the manifest family consumed by the runtime
// loaders: build manifest, app-build manifest, app-paths manifest,
// client-reference manifest, middleware manifest, loadable manifest and the
// font manifest. Rendering is pure; every emitter is a deterministic function
// of planned chunk groups and route identity.
package manifest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vk/routepack/internal/buildfail"
	"github.com/vk/routepack/internal/chunk"
	"github.com/vk/routepack/internal/output"
)

// EdgeNoEntrypoint is the app-paths value of an Edge route: the edge runtime
// has no discrete per-route server entry file.
const EdgeNoEntrypoint = "app-edge-has-no-entrypoint"

// EdgePreloads are the fixed global-variable files the edge SSR loader
// expects before any per-route file.
var EdgePreloads = []string{
	"server/server-reference-manifest.js",
	"server/middleware-build-manifest.js",
	"server/middleware-react-loadable-manifest.js",
	"server/next-font-manifest.js",
	"server/interception-route-rewrite-manifest.js",
}

// EdgePreloadAssets synthesizes the fixed global-variable stub files behind
// EdgePreloads, so every file the middleware manifest references exists among
// the emitted server assets.
func EdgePreloadAssets() ([]*output.Asset, error) {
	assets := make([]*output.Asset, 0, len(EdgePreloads))
	for _, p := range EdgePreloads {
		name := globalName(p)
		content := fmt.Sprintf("self.%s = self.%s || {};\n", name, name)
		a, err := output.New(output.RootServer, p, output.KindChunk, []byte(content))
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, nil
}

var globalNameReplacer = strings.NewReplacer("-", "_", ".", "_")

// globalName derives the global variable a preload stub populates:
// "server/middleware-build-manifest.js" -> "__MIDDLEWARE_BUILD_MANIFEST".
func globalName(p string) string {
	base := p[strings.LastIndex(p, "/")+1:]
	base = strings.TrimSuffix(base, ".js")
	return "__" + strings.ToUpper(globalNameReplacer.Replace(base))
}

// Dir returns the server-root-relative directory a route's manifests are
// emitted under, e.g. "/blog/[slug]/page" -> "server/app/blog/[slug]/page".
func Dir(originalName string) string {
	return "server/app" + originalName
}

func emit(route, name, path string, v any) (*output.Asset, error) {
	asset, err := output.NewJSON(output.RootServer, path, v)
	if err != nil {
		return nil, &buildfail.SerializeError{Manifest: name, Route: route, Err: err}
	}
	return asset, nil
}

// strs normalizes a nil slice so manifests always carry [] rather than null.
func strs(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// BuildManifest lists the client files a route needs before hydration.
type BuildManifest struct {
	DevFiles         []string            `json:"devFiles"`
	AmpDevFiles      []string            `json:"ampDevFiles"`
	PolyfillFiles    []string            `json:"polyfillFiles"`
	LowPriorityFiles []string            `json:"lowPriorityFiles"`
	RootMainFiles    []string            `json:"rootMainFiles"`
	Pages            map[string][]string `json:"pages"`
	AmpFirstPages    []string            `json:"ampFirstPages"`
}

// Build renders the build manifest. rootMainFiles are the client-relative JS
// paths of the shared chunk group, in load order.
func Build(route, originalName string, rootMainFiles, polyfillFiles []string) (*output.Asset, error) {
	m := BuildManifest{
		DevFiles:         []string{},
		AmpDevFiles:      []string{},
		PolyfillFiles:    strs(polyfillFiles),
		LowPriorityFiles: []string{},
		RootMainFiles:    strs(rootMainFiles),
		Pages:            map[string][]string{"/_app": {}},
		AmpFirstPages:    []string{},
	}
	return emit(route, "build", Dir(originalName)+"/build-manifest.json", &m)
}

// AppBuildManifest maps a route's original name to its per-page client chunk
// paths.
type AppBuildManifest struct {
	Pages map[string][]string `json:"pages"`
}

// AppBuild renders the app-build manifest from the route's client chunk
// groups, shared group excluded.
func AppBuild(route, originalName string, clientFiles []string) (*output.Asset, error) {
	m := AppBuildManifest{Pages: map[string][]string{originalName: strs(clientFiles)}}
	return emit(route, "app-build", Dir(originalName)+"/app-build-manifest.json", &m)
}

// AppPaths renders the app-paths manifest entry for one route. entryPath is
// the server entry chunk path for NodeJs routes and EdgeNoEntrypoint for Edge
// routes.
func AppPaths(route, originalName, entryPath string) (*output.Asset, error) {
	m := map[string]string{originalName: entryPath}
	return emit(route, "app-paths", Dir(originalName)+"/app-paths-manifest.json", m)
}

// ClientModule is one entry of the client-reference manifest.
type ClientModule struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Chunks []string `json:"chunks"`
	Async  bool     `json:"async"`
}

// ClientReferenceManifest tells the server renderer which chunks each client
// reference needs on the client and which server chunks hold its SSR twin.
type ClientReferenceManifest struct {
	ClientModules    map[string]ClientModule `json:"clientModules"`
	SSRModuleMapping map[string]ClientModule `json:"ssrModuleMapping"`
	EntryCSSFiles    map[string][]string     `json:"entryCSSFiles"`
}

// ClientReferences renders the client-reference manifest from the planned
// reference groups.
func ClientReferences(route, originalName string, groups []*chunk.RefGroup) (*output.Asset, error) {
	m := ClientReferenceManifest{
		ClientModules:    map[string]ClientModule{},
		SSRModuleMapping: map[string]ClientModule{},
		EntryCSSFiles:    map[string][]string{originalName: {}},
	}
	for _, g := range groups {
		id := g.Ref.ID()
		m.ClientModules[id] = ClientModule{
			ID:     id,
			Name:   "*",
			Chunks: strs(output.JSPaths(g.Client.Assets, output.RootClient)),
		}
		m.EntryCSSFiles[originalName] = append(m.EntryCSSFiles[originalName],
			cssPaths(g.Client.Assets)...)
		if g.SSR != nil {
			m.SSRModuleMapping[id] = ClientModule{
				ID:     g.Ref.SSR.ID(),
				Name:   "*",
				Chunks: strs(output.JSPaths(g.SSR.Assets, output.RootServer)),
			}
		}
	}
	sort.Strings(m.EntryCSSFiles[originalName])
	return emit(route, "client-reference", Dir(originalName)+"/client-reference-manifest.json", &m)
}

func cssPaths(assets []*output.Asset) []string {
	var paths []string
	for _, a := range assets {
		if a.Root == output.RootClient && strings.HasSuffix(a.Path, ".css") {
			paths = append(paths, a.Path)
		}
	}
	return paths
}

// LoadableEntry maps one dynamic-import boundary to the chunks satisfying it.
type LoadableEntry struct {
	ID    string   `json:"id"`
	Files []string `json:"files"`
}

// Loadable renders the react-loadable manifest from the planned dynamic
// import groups.
func Loadable(route, originalName string, groups []*chunk.DynamicGroup) (*output.Asset, error) {
	m := map[string]LoadableEntry{}
	for _, g := range groups {
		id := g.Module.ID()
		files := output.Paths(g.Group.Assets, output.RootClient)
		files = append(files, output.Paths(g.Group.Assets, output.RootServer)...)
		m[id] = LoadableEntry{
			ID:    id,
			Files: strs(files),
		}
	}
	return emit(route, "react-loadable", Dir(originalName)+"/react-loadable-manifest.json", m)
}

// MiddlewareMatcher matches request paths against one route.
type MiddlewareMatcher struct {
	Regexp         string `json:"regexp"`
	OriginalSource string `json:"originalSource"`
}

// EdgeFunctionDefinition describes one edge function to the edge runtime.
type EdgeFunctionDefinition struct {
	Env      map[string]string   `json:"env"`
	Files    []string            `json:"files"`
	Name     string              `json:"name"`
	Page     string              `json:"page"`
	Matchers []MiddlewareMatcher `json:"matchers"`
	Regions  []string            `json:"regions,omitempty"`
}

// MiddlewaresManifest is the version-2 middleware manifest, one per Edge
// route.
type MiddlewaresManifest struct {
	Version          int                               `json:"version"`
	SortedMiddleware []string                          `json:"sortedMiddleware"`
	Middleware       map[string]EdgeFunctionDefinition `json:"middleware"`
	Functions        map[string]EdgeFunctionDefinition `json:"functions"`
}

// Middleware renders the middleware manifest for an Edge route. files must
// hold everything the edge runtime preloads, sentinel globals and inlined SSR
// chunks included.
func Middleware(route, originalName, pathname string, files, regions []string, env map[string]string) (*output.Asset, error) {
	if env == nil {
		env = map[string]string{}
	}
	def := EdgeFunctionDefinition{
		Env:   env,
		Files: strs(files),
		Name:  originalName,
		Page:  pathname,
		Matchers: []MiddlewareMatcher{{
			Regexp:         PathRegex(pathname),
			OriginalSource: pathname,
		}},
		Regions: regions,
	}
	m := MiddlewaresManifest{
		Version:          2,
		SortedMiddleware: []string{},
		Middleware:       map[string]EdgeFunctionDefinition{},
		Functions:        map[string]EdgeFunctionDefinition{originalName: def},
	}
	return emit(route, "middleware", Dir(originalName)+"/middleware-manifest.json", &m)
}

var (
	catchAllSeg = regexp.MustCompile(`^\[\.\.\.([^\]]+)\]$`)
	dynamicSeg  = regexp.MustCompile(`^\[([^\].]+)\]$`)
)

// PathRegex converts a route pathname into an anchored, named-group matcher:
// "/blog/[slug]" becomes "^/blog/(?P<slug>[^/]+)$". Catch-all segments match
// the rest of the path; optional catch-alls also match the bare parent path.
func PathRegex(pathname string) string {
	if pathname == "/" {
		return "^/$"
	}
	var b strings.Builder
	b.WriteString("^")
	for _, seg := range strings.Split(strings.Trim(pathname, "/"), "/") {
		if strings.HasPrefix(seg, "[[...") && strings.HasSuffix(seg, "]]") {
			name := seg[len("[[...") : len(seg)-2]
			fmt.Fprintf(&b, "(?:/(?P<%s>.+))?", name)
			continue
		}
		if m := catchAllSeg.FindStringSubmatch(seg); m != nil {
			fmt.Fprintf(&b, "/(?P<%s>.+)", m[1])
			continue
		}
		if m := dynamicSeg.FindStringSubmatch(seg); m != nil {
			fmt.Fprintf(&b, "/(?P<%s>[^/]+)", m[1])
			continue
		}
		b.WriteString("/" + regexp.QuoteMeta(seg))
	}
	b.WriteString("$")
	return b.String()
}

// FontManifest enumerates preloadable font resources emitted under the
// client root.
type FontManifest struct {
	App                  map[string][]string `json:"app"`
	Pages                map[string][]string `json:"pages"`
	AppUsingSizeAdjust   bool                `json:"appUsingSizeAdjust"`
	PagesUsingSizeAdjust bool                `json:"pagesUsingSizeAdjust"`
}

var fontExts = []string{".woff2", ".woff", ".ttf", ".otf", ".eot"}

// Fonts renders the font manifest, deriving the preload list from the
// route's emitted client assets.
func Fonts(route, originalName string, clientAssets []*output.Asset) (*output.Asset, error) {
	var fonts []string
	for _, a := range clientAssets {
		if a.Root != output.RootClient {
			continue
		}
		for _, ext := range fontExts {
			if strings.HasSuffix(a.Path, ext) {
				fonts = append(fonts, a.Path)
				break
			}
		}
	}
	sort.Strings(fonts)
	m := FontManifest{
		App:   map[string][]string{originalName: strs(fonts)},
		Pages: map[string][]string{},
	}
	return emit(route, "font", Dir(originalName)+"/next-font-manifest.json", &m)
}
