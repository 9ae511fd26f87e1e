package chunk

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/routepack/internal/buildctx"
	"github.com/vk/routepack/internal/clientref"
	"github.com/vk/routepack/internal/config"
	"github.com/vk/routepack/internal/ctxlog"
	"github.com/vk/routepack/internal/memo"
	"github.com/vk/routepack/internal/modgraph"
	"github.com/vk/routepack/internal/output"
)

func testSet(t *testing.T, modules ...*modgraph.SourceModule) *buildctx.Set {
	t.Helper()
	store, err := memo.NewStore(0)
	require.NoError(t, err)
	set, err := buildctx.NewSet(&config.Project{PageExtensions: []string{"js"}}, modgraph.New(modules...), store)
	require.NoError(t, err)
	return set
}

func testCtx() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func clientCC() *Context {
	return &Context{Name: "client", Root: output.RootClient, Dir: "chunks"}
}

func serverCC() *Context {
	return &Context{Name: "node-server", Root: output.RootServer, Dir: "server/chunks"}
}

func edgeCC() *Context {
	return &Context{Name: "edge-server", Root: output.RootServer, Dir: "edge/chunks", IncludeClientAssets: true}
}

func resolve(t *testing.T, c *buildctx.Context, path string) *buildctx.Module {
	t.Helper()
	m, err := c.Resolve(testCtx(), path)
	require.NoError(t, err)
	return m
}

func runtimeModules() []*modgraph.SourceModule {
	return []*modgraph.SourceModule{
		{Path: "runtime/client.js", Source: "bootstrap()", Imports: []modgraph.Import{
			{Specifier: "runtime/scheduler.js"},
		}},
		{Path: "runtime/scheduler.js", Source: "schedule()"},
	}
}

func TestSharedGroupCoversRuntime(t *testing.T) {
	set := testSet(t, runtimeModules()...)

	shared, err := SharedGroup(testCtx(), clientCC(), "main", []*buildctx.Module{
		resolve(t, set.Client, "runtime/client.js"),
	})
	require.NoError(t, err)
	require.Len(t, shared.Assets, 1)
	assert.Equal(t, output.RootClient, shared.Assets[0].Root)
	assert.Equal(t, []string{"app-client:runtime/client.js", "app-client:runtime/scheduler.js"}, shared.ModuleIDs)
	assert.Equal(t, 2, shared.Availability.Len())
	assert.Equal(t, []string{"app-client:runtime/client.js", "app-client:runtime/scheduler.js"},
		shared.Availability.Modules(), "the baseline covers exactly the runtime closure")
}

func TestEntryGroupExcludesBaseline(t *testing.T) {
	mods := append(runtimeModules(),
		&modgraph.SourceModule{Path: "app/widget.js", Source: "widget()", Imports: []modgraph.Import{
			{Specifier: "runtime/scheduler.js"},
			{Specifier: "./styles.css"},
		}},
		&modgraph.SourceModule{Path: "app/styles.css", Kind: modgraph.KindStylesheet, Source: ".a{}"},
	)
	set := testSet(t, mods...)
	cc := clientCC()

	shared, err := SharedGroup(testCtx(), cc, "main", []*buildctx.Module{
		resolve(t, set.Client, "runtime/client.js"),
	})
	require.NoError(t, err)

	entry, err := EntryGroup(testCtx(), cc, "page", []*buildctx.Module{
		resolve(t, set.Client, "app/widget.js"),
	}, shared.Availability)
	require.NoError(t, err)

	assert.NotContains(t, entry.ModuleIDs, "app-client:runtime/scheduler.js",
		"baseline modules must not be re-emitted")
	assert.Contains(t, entry.ModuleIDs, "app-client:app/widget.js")
	assert.Contains(t, entry.ModuleIDs, "app-client:app/styles.css")
	require.Len(t, entry.Assets, 2, "scripts and styles split into separate chunks")

	sharedIDs := map[string]struct{}{}
	for _, a := range shared.Assets {
		sharedIDs[a.ID()] = struct{}{}
	}
	for _, a := range entry.Assets {
		assert.NotContains(t, sharedIDs, a.ID(), "no baseline asset reappears in the entry group")
	}
}

func TestEntryGroupDeterministic(t *testing.T) {
	mods := append(runtimeModules(),
		&modgraph.SourceModule{Path: "app/widget.js", Source: "widget()"},
	)

	plan := func() []string {
		set := testSet(t, mods...)
		g, err := EntryGroup(testCtx(), clientCC(), "page", []*buildctx.Module{
			resolve(t, set.Client, "app/widget.js"),
			resolve(t, set.Client, "runtime/client.js"),
		}, RootAvailability())
		require.NoError(t, err)
		var paths []string
		for _, a := range g.Assets {
			paths = append(paths, a.Path)
		}
		return paths
	}

	first := plan()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, plan())
	}
}

func TestEntryChunkFixedPath(t *testing.T) {
	set := testSet(t,
		&modgraph.SourceModule{Path: "app/page.js", Source: "page()", Imports: []modgraph.Import{
			{Specifier: "./data.js"},
			{Specifier: "./island.js", Transition: buildctx.KeyClientReference},
		}},
		&modgraph.SourceModule{Path: "app/data.js", Source: "data()"},
		&modgraph.SourceModule{Path: "app/island.js", Source: "island()"},
	)

	asset, group, err := EntryChunk(testCtx(), serverCC(), "server/app/page.js", []*buildctx.Module{
		resolve(t, set.RSC, "app/page.js"),
	}, RootAvailability())
	require.NoError(t, err)
	assert.Equal(t, "server/app/page.js", asset.Path)
	assert.Contains(t, group.ModuleIDs, "app-rsc:app/data.js")
	assert.NotContains(t, group.ModuleIDs, "app-client:app/island.js",
		"client boundary ends the server traversal")
}

func TestReachFollowsSharedAndSSRTransitions(t *testing.T) {
	set := testSet(t,
		&modgraph.SourceModule{Path: "app/page.js", Imports: []modgraph.Import{
			{Specifier: "./util.js", Transition: buildctx.KeyShared},
			{Specifier: "./render.js", Transition: buildctx.KeySSR},
		}},
		&modgraph.SourceModule{Path: "app/util.js"},
		&modgraph.SourceModule{Path: "app/render.js"},
	)

	_, group, err := EntryChunk(testCtx(), serverCC(), "server/app/page.js", []*buildctx.Module{
		resolve(t, set.RSC, "app/page.js"),
	}, RootAvailability())
	require.NoError(t, err)
	assert.Contains(t, group.ModuleIDs, "app-shared:app/util.js")
	assert.Contains(t, group.ModuleIDs, "app-ssr:app/render.js")
}

func TestEvaluatedGroupInlinesEverything(t *testing.T) {
	set := testSet(t,
		&modgraph.SourceModule{Path: "app/page.js", Source: "page()", Imports: []modgraph.Import{
			{Specifier: "./data.js"},
		}},
		&modgraph.SourceModule{Path: "app/data.js", Source: "data()"},
		&modgraph.SourceModule{Path: "runtime/server.js", Source: "serve()"},
	)

	group, err := EvaluatedGroup(testCtx(), edgeCC(), "app/page", []*buildctx.Module{
		resolve(t, set.EdgeRSC, "runtime/server.js"),
		resolve(t, set.EdgeRSC, "app/page.js"),
	})
	require.NoError(t, err)
	require.Len(t, group.Assets, 1, "edge output is one statically loaded file")
	assert.Equal(t, []string{
		"app-edge-rsc:runtime/server.js",
		"app-edge-rsc:app/page.js",
		"app-edge-rsc:app/data.js",
	}, group.ModuleIDs)
}

func TestReferenceGroups(t *testing.T) {
	set := testSet(t,
		&modgraph.SourceModule{Path: "app/page.js", Imports: []modgraph.Import{
			{Specifier: "./a.js", Transition: buildctx.KeyClientReference},
			{Specifier: "./b.js", Transition: buildctx.KeyClientReference},
			{Specifier: "./theme.css", Transition: buildctx.KeyClientReference},
		}},
		&modgraph.SourceModule{Path: "app/a.js", Source: "a()", Imports: []modgraph.Import{
			{Specifier: "./common.js"},
		}},
		&modgraph.SourceModule{Path: "app/b.js", Source: "b()", Imports: []modgraph.Import{
			{Specifier: "./common.js"},
		}},
		&modgraph.SourceModule{Path: "app/common.js", Source: "common()"},
		&modgraph.SourceModule{Path: "app/theme.css", Kind: modgraph.KindStylesheet, Source: ".t{}"},
	)

	entry := resolve(t, set.RSC, "app/page.js")
	graph, err := clientref.Collect(testCtx(), entry)
	require.NoError(t, err)
	require.Len(t, graph.References, 3)

	groups, avail, err := ReferenceGroups(testCtx(), clientCC(), serverCC(), graph.References, RootAvailability())
	require.NoError(t, err)
	require.Len(t, groups, 3)

	a, b, css := groups[0], groups[1], groups[2]
	assert.Contains(t, a.Client.ModuleIDs, "app-client:app/common.js")
	assert.NotContains(t, b.Client.ModuleIDs, "app-client:app/common.js",
		"client availability chains across references")

	require.NotNil(t, a.SSR)
	assert.Contains(t, a.SSR.ModuleIDs, "app-ssr:app/a.js")
	require.NotNil(t, b.SSR)
	assert.Contains(t, b.SSR.ModuleIDs, "app-ssr:app/common.js",
		"ssr groups plan against the root baseline")

	assert.Nil(t, css.SSR, "stylesheets have no ssr group")
	assert.True(t, avail.Has("app-client:app/common.js"))
}

func TestDynamicImportGroupsShareBaselineOnly(t *testing.T) {
	set := testSet(t,
		&modgraph.SourceModule{Path: "app/x.js", Source: "x()", Imports: []modgraph.Import{
			{Specifier: "./dep.js"},
		}},
		&modgraph.SourceModule{Path: "app/y.js", Source: "y()", Imports: []modgraph.Import{
			{Specifier: "./dep.js"},
		}},
		&modgraph.SourceModule{Path: "app/dep.js", Source: "dep()"},
	)

	groups, err := DynamicImportGroups(testCtx(), clientCC(), []*buildctx.Module{
		resolve(t, set.Client, "app/x.js"),
		resolve(t, set.Client, "app/y.js"),
	}, RootAvailability())
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Contains(t, groups[0].Group.ModuleIDs, "app-client:app/dep.js")
	assert.Contains(t, groups[1].Group.ModuleIDs, "app-client:app/dep.js",
		"dynamic chunks must be self-sufficient, not chained on siblings")
}
