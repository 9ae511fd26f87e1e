package clientref

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/routepack/internal/buildctx"
	"github.com/vk/routepack/internal/config"
	"github.com/vk/routepack/internal/ctxlog"
	"github.com/vk/routepack/internal/memo"
	"github.com/vk/routepack/internal/modgraph"
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

func entryModule(t *testing.T, set *buildctx.Set, path string) *buildctx.Module {
	t.Helper()
	m, err := set.RSC.Resolve(testCtx(), path)
	require.NoError(t, err)
	return m
}

func TestCollectFindsAndClassifiesReferences(t *testing.T) {
	set := testSet(t,
		&modgraph.SourceModule{Path: "app/page.js", Imports: []modgraph.Import{
			{Specifier: "./layout.js"},
			{Specifier: "./button.js", Transition: buildctx.KeyClientReference},
			{Specifier: "./theme.css", Transition: buildctx.KeyClientReference},
		}},
		&modgraph.SourceModule{Path: "app/layout.js", Imports: []modgraph.Import{
			// The same reference reached on a second path must dedupe.
			{Specifier: "./button.js", Transition: buildctx.KeyClientReference},
		}},
		&modgraph.SourceModule{Path: "app/button.js"},
		&modgraph.SourceModule{Path: "app/theme.css", Kind: modgraph.KindStylesheet},
	)

	graph, err := Collect(testCtx(), entryModule(t, set, "app/page.js"))
	require.NoError(t, err)
	require.Len(t, graph.References, 2)

	button := graph.References[0]
	assert.Equal(t, RefScript, button.Kind)
	assert.Equal(t, "app-client:app/button.js", button.Client.ID())
	require.NotNil(t, button.SSR)
	assert.Equal(t, "app-ssr:app/button.js", button.SSR.ID())

	theme := graph.References[1]
	assert.Equal(t, RefStylesheet, theme.Kind)
	assert.Nil(t, theme.SSR)

	assert.Len(t, graph.Scripts(), 1)
	assert.Empty(t, graph.Problems)
}

func TestCollectStopsServerWalkAtBoundary(t *testing.T) {
	// secret.js is only imported from inside the client subgraph; the server
	// walk must not surface it as a reference.
	set := testSet(t,
		&modgraph.SourceModule{Path: "app/page.js", Imports: []modgraph.Import{
			{Specifier: "./island.js", Transition: buildctx.KeyClientReference},
		}},
		&modgraph.SourceModule{Path: "app/island.js", Imports: []modgraph.Import{
			{Specifier: "./secret.js"},
		}},
		&modgraph.SourceModule{Path: "app/secret.js"},
	)

	graph, err := Collect(testCtx(), entryModule(t, set, "app/page.js"))
	require.NoError(t, err)
	require.Len(t, graph.References, 1)
	assert.Equal(t, "app-client:app/island.js", graph.References[0].ID())
}

func TestCollectDynamicImports(t *testing.T) {
	set := testSet(t,
		&modgraph.SourceModule{Path: "app/page.js", Imports: []modgraph.Import{
			{Specifier: "./hero.js", Transition: buildctx.KeyDynamicImport, Dynamic: true},
			{Specifier: "./island.js", Transition: buildctx.KeyClientReference},
		}},
		&modgraph.SourceModule{Path: "app/hero.js"},
		&modgraph.SourceModule{Path: "app/island.js", Imports: []modgraph.Import{
			{Specifier: "./chart.js", Dynamic: true},
		}},
		&modgraph.SourceModule{Path: "app/chart.js"},
	)

	graph, err := Collect(testCtx(), entryModule(t, set, "app/page.js"))
	require.NoError(t, err)

	var ids []string
	for _, m := range graph.DynamicImports {
		ids = append(ids, m.ID())
	}
	assert.Equal(t, []string{"app-client:app/hero.js", "app-client:app/chart.js"}, ids)
}

func TestCollectInContextDynamicImports(t *testing.T) {
	set := testSet(t,
		&modgraph.SourceModule{Path: "app/page.js", Imports: []modgraph.Import{
			{Specifier: "./lazy.js", Dynamic: true},
		}},
		&modgraph.SourceModule{Path: "app/lazy.js", Imports: []modgraph.Import{
			{Specifier: "./island.js", Transition: buildctx.KeyClientReference},
		}},
		&modgraph.SourceModule{Path: "app/island.js"},
	)

	graph, err := Collect(testCtx(), entryModule(t, set, "app/page.js"))
	require.NoError(t, err)

	var ids []string
	for _, m := range graph.DynamicImports {
		ids = append(ids, m.ID())
	}
	assert.Equal(t, []string{"app-rsc:app/lazy.js"}, ids,
		"an untransitioned dynamic edge is a boundary in its own context")
	require.Len(t, graph.References, 1,
		"the walk continues through the boundary and still finds client references")
	assert.Equal(t, "app-client:app/island.js", graph.References[0].ID())
}

func TestCollectServerActions(t *testing.T) {
	set := testSet(t,
		&modgraph.SourceModule{Path: "app/page.js", Imports: []modgraph.Import{
			{Specifier: "./actions.js"},
		}},
		&modgraph.SourceModule{Path: "app/actions.js", Directive: "use server"},
	)

	graph, err := Collect(testCtx(), entryModule(t, set, "app/page.js"))
	require.NoError(t, err)
	require.Len(t, graph.ServerActions, 1)
	assert.Equal(t, "app-rsc:app/actions.js", graph.ServerActions[0].ID())
}

func TestCollectIsolatesResolutionFailures(t *testing.T) {
	set := testSet(t,
		&modgraph.SourceModule{Path: "app/page.js", Imports: []modgraph.Import{
			{Specifier: "./broken.js"},
			{Specifier: "./ok.js", Transition: buildctx.KeyClientReference},
		}},
		&modgraph.SourceModule{Path: "app/ok.js"},
	)

	graph, err := Collect(testCtx(), entryModule(t, set, "app/page.js"))
	require.NoError(t, err)
	require.Len(t, graph.Problems, 1, "the unresolved subtree is reported")
	require.Len(t, graph.References, 1, "the sibling branch still yields its reference")
	assert.Equal(t, "app-client:app/ok.js", graph.References[0].ID())
}

func TestCollectIsDeterministic(t *testing.T) {
	build := func() []string {
		set := testSet(t,
			&modgraph.SourceModule{Path: "app/page.js", Imports: []modgraph.Import{
				{Specifier: "./b.js", Transition: buildctx.KeyClientReference},
				{Specifier: "./a.js", Transition: buildctx.KeyClientReference},
			}},
			&modgraph.SourceModule{Path: "app/a.js"},
			&modgraph.SourceModule{Path: "app/b.js"},
		)
		graph, err := Collect(testCtx(), entryModule(t, set, "app/page.js"))
		require.NoError(t, err)
		var ids []string
		for _, r := range graph.References {
			ids = append(ids, r.ID())
		}
		return ids
	}

	first := build()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, build())
	}
}
