package modgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/routepack/internal/buildfail"
)

func testTable() *Table {
	return New(
		&SourceModule{Path: "app/page.js", Kind: KindEcmaScript},
		&SourceModule{Path: "app/button.jsx", Kind: KindEcmaScript},
		&SourceModule{Path: "app/styles.css", Kind: KindStylesheet},
		&SourceModule{Path: "react", Kind: KindEcmaScript},
	)
}

func TestResolveRelative(t *testing.T) {
	tbl := testTable()

	m, err := tbl.Resolve("app/page.js", "./styles.css", "app-rsc", nil)
	require.NoError(t, err)
	assert.Equal(t, "app/styles.css", m.Path)

	m, err = tbl.Resolve("app/sub/layout.js", "../button.jsx", "app-rsc", nil)
	require.NoError(t, err)
	assert.Equal(t, "app/button.jsx", m.Path)
}

func TestResolveExtensionOrder(t *testing.T) {
	tbl := testTable()

	m, err := tbl.Resolve("app/page.js", "./button", "app-rsc", []string{"js", "jsx"})
	require.NoError(t, err)
	assert.Equal(t, "app/button.jsx", m.Path)

	_, err = tbl.Resolve("app/page.js", "./button", "app-rsc", nil)
	var re *buildfail.ResolveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "./button", re.Specifier)
	assert.Equal(t, "app/page.js", re.FromPath)
	assert.Equal(t, "app-rsc", re.Context)
}

func TestResolveBare(t *testing.T) {
	tbl := testTable()

	m, err := tbl.Resolve("app/page.js", "react", "app-client", nil)
	require.NoError(t, err)
	assert.Equal(t, "react", m.Path)
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("")
	require.True(t, ok)
	assert.Equal(t, KindEcmaScript, k)

	k, ok = ParseKind("stylesheet")
	require.True(t, ok)
	assert.Equal(t, KindStylesheet, k)

	_, ok = ParseKind("wasm")
	assert.False(t, ok)
}
