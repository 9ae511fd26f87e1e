package project

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/routepack/internal/config"
	"github.com/vk/routepack/internal/ctxlog"
	"github.com/vk/routepack/internal/output"
)

func testCtx() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testModel() *config.Model {
	return &config.Model{
		Project: &config.Project{
			ClientRuntime: "runtime/client.js",
			Polyfill:      "runtime/polyfill.js",
		},
		Entrypoints: []*config.Entrypoint{
			{Kind: config.EntrypointPage, Pathname: "/", Entry: "app/page.js"},
			{Kind: config.EntrypointRoute, Pathname: "/api/items", Entry: "app/api/route.js"},
		},
		Modules: []*config.Module{
			{Path: "runtime/client.js", Source: "bootstrap()"},
			{Path: "runtime/polyfill.js", Source: "// polyfill"},
			{Path: "app/page.js", Source: "page()"},
			{Path: "app/api/route.js", Source: "handler()"},
		},
	}
}

func newProject(t *testing.T) *AppProject {
	t.Helper()
	dir := t.TempDir()
	p, err := New(testModel(), Options{ServerDir: dir, ClientDir: dir + "/static"})
	require.NoError(t, err)
	return p
}

func TestNewDerivesEndpoints(t *testing.T) {
	p := newProject(t)

	var names []string
	for _, e := range p.Endpoints() {
		names = append(names, e.OriginalName())
	}
	assert.Equal(t, []string{"/page", "/page.rsc", "/api/items/route"}, names,
		"a page yields two endpoints, a route one")
	assert.NotEmpty(t, p.BuildID())
}

func TestNewRejectsUnknownModuleKind(t *testing.T) {
	m := testModel()
	m.Modules[0].Kind = "wasm"
	_, err := New(m, Options{ServerDir: t.TempDir()})
	require.Error(t, err)
}

func TestSharedClientGroupComputedOncePerGeneration(t *testing.T) {
	p := newProject(t)
	ctx := testCtx()

	first, err := p.SharedClientGroup(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, first.Availability.Has("app-client:runtime/client.js"))

	second, err := p.SharedClientGroup(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second, "within one generation the group is read-shared")

	p.Invalidate()
	third, err := p.SharedClientGroup(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, third, "a new generation recomputes")
	assert.Equal(t, first.ModuleIDs, third.ModuleIDs)
}

func TestSharedClientGroupWithoutRuntime(t *testing.T) {
	m := testModel()
	m.Project.ClientRuntime = ""
	p, err := New(m, Options{ServerDir: t.TempDir()})
	require.NoError(t, err)

	g, err := p.SharedClientGroup(testCtx())
	require.NoError(t, err)
	assert.Empty(t, g.Assets)
	assert.Equal(t, 0, g.Availability.Len())
}

func TestPolyfill(t *testing.T) {
	p := newProject(t)

	a, err := p.Polyfill(testCtx())
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, output.RootClient, a.Root)
	assert.Equal(t, "polyfills.js", a.Path)
	assert.Equal(t, output.KindRaw, a.Kind)
	assert.Equal(t, "// polyfill", string(a.Content))
}

func TestPolyfillUnconfigured(t *testing.T) {
	m := testModel()
	m.Project.Polyfill = ""
	p, err := New(m, Options{ServerDir: t.TempDir()})
	require.NoError(t, err)

	a, err := p.Polyfill(testCtx())
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestInvalidateAdvancesGeneration(t *testing.T) {
	p := newProject(t)
	g0 := p.Generation()
	assert.Equal(t, g0+1, p.Invalidate())
	assert.Equal(t, g0+1, p.Generation())
}

func TestEndpointsBuildThroughProject(t *testing.T) {
	p := newProject(t)
	ctx := testCtx()

	for _, e := range p.Endpoints() {
		written, err := e.WriteToDisk(ctx)
		require.NoError(t, err, "endpoint %s", e.OriginalName())
		assert.NotEmpty(t, written.ServerPaths)
	}
}
