package refs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coa-dev/codesearch/internal/cserr"
	"github.com/coa-dev/codesearch/internal/symbols"
)

// fixture builds a two-file store: Foo.cs defines HttpClientFactory.Build,
// Bar.cs calls it from Consumer.Run.
func fixture(t *testing.T) *symbols.Store {
	t.Helper()
	s, err := symbols.Open(filepath.Join(t.TempDir(), "ws.db"), "testhash")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.UpsertFile(ctx, &symbols.FileExtraction{
		FilePath: "src/Foo.cs",
		Symbols: []symbols.Symbol{
			{FilePath: "src/Foo.cs", Name: "HttpClientFactory", Kind: symbols.KindClass, StartLine: 1, EndLine: 12},
			{FilePath: "src/Foo.cs", Name: "Build", Kind: symbols.KindMethod, ContainingType: "HttpClientFactory", StartLine: 3, EndLine: 6},
		},
		Identifiers: []symbols.Identifier{
			{FilePath: "src/Foo.cs", Line: 1, Col: 14, Name: "HttpClientFactory"},
		},
	}))
	require.NoError(t, s.UpsertFile(ctx, &symbols.FileExtraction{
		FilePath: "src/Bar.cs",
		Symbols: []symbols.Symbol{
			{FilePath: "src/Bar.cs", Name: "Consumer", Kind: symbols.KindClass, StartLine: 1, EndLine: 20},
			{FilePath: "src/Bar.cs", Name: "Run", Kind: symbols.KindMethod, ContainingType: "Consumer", StartLine: 5, EndLine: 12},
		},
		Identifiers: []symbols.Identifier{
			{FilePath: "src/Bar.cs", Line: 7, Col: 9, Name: "HttpClientFactory", ContainingType: ""},
			{FilePath: "src/Bar.cs", Line: 8, Col: 9, Name: "Build", ContainingType: "HttpClientFactory"},
		},
	}))
	return s
}

func TestFindDefinitions(t *testing.T) {
	r := NewResolver(fixture(t), nil)

	defs, err := r.FindDefinitions(context.Background(), "HttpClientFactory", symbols.KindClass)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "src/Foo.cs", defs[0].FilePath)
}

func TestFindReferences(t *testing.T) {
	r := NewResolver(fixture(t), func(path string, line int) string {
		return "snippet:" + path
	})

	occs, err := r.FindReferences(context.Background(), "HttpClientFactory", "")
	require.NoError(t, err)
	require.Len(t, occs, 2)

	var barHit bool
	for _, o := range occs {
		if o.FilePath == "src/Bar.cs" {
			barHit = true
			assert.Equal(t, 7, o.Line)
			assert.Equal(t, "snippet:src/Bar.cs", o.Snippet)
		}
	}
	assert.True(t, barHit, "reference in the calling file must be found")
}

func TestFindReferencesQualifiedDisambiguation(t *testing.T) {
	r := NewResolver(fixture(t), nil)

	// "HttpClientFactory.Build" matches only occurrences whose containing
	// type is HttpClientFactory.
	occs, err := r.FindReferences(context.Background(), "HttpClientFactory.Build", "")
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, "src/Bar.cs", occs[0].FilePath)
	assert.Equal(t, 8, occs[0].Line)
}

func TestTraceCallPathUp(t *testing.T) {
	r := NewResolver(fixture(t), nil)

	graph, err := r.TraceCallPath(context.Background(), "Build", DirectionUp, 3, 50)
	require.NoError(t, err)
	require.NotNil(t, graph.Root)
	assert.Equal(t, "Build", graph.Root.Symbol.Name)

	require.NotEmpty(t, graph.Root.Children, "Run calls Build, so up-trace must find it")
	assert.Equal(t, "Run", graph.Root.Children[0].Symbol.Name)
}

func TestTraceCallPathDown(t *testing.T) {
	r := NewResolver(fixture(t), nil)

	graph, err := r.TraceCallPath(context.Background(), "Run", DirectionDown, 3, 50)
	require.NoError(t, err)
	require.NotNil(t, graph.Root)

	var names []string
	for _, c := range graph.Root.Children {
		names = append(names, c.Symbol.Name)
	}
	assert.Contains(t, names, "Build")
}

func TestTraceCallPathDepthBound(t *testing.T) {
	r := NewResolver(fixture(t), nil)

	graph, err := r.TraceCallPath(context.Background(), "Run", DirectionDown, 0, 50)
	require.NoError(t, err)
	// maxDepth <= 0 falls back to the default; a depth of exactly the walk
	// length marks truncation when children remain.
	assert.NotNil(t, graph.Root)
}

func TestTraceCallPathNodeBudget(t *testing.T) {
	r := NewResolver(fixture(t), nil)

	graph, err := r.TraceCallPath(context.Background(), "Run", DirectionDown, 5, 1)
	require.NoError(t, err)
	assert.True(t, graph.NodesTruncated)
	assert.Greater(t, graph.Omitted, 0)
}

func TestTraceCallPathUnknownSymbol(t *testing.T) {
	r := NewResolver(fixture(t), nil)

	_, err := r.TraceCallPath(context.Background(), "Nonexistent", DirectionDown, 3, 50)
	require.Error(t, err)
	assert.Equal(t, cserr.ErrCodeSymbolNotFound, cserr.GetCode(err))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, DirectionDown, d)

	_, err = ParseDirection("sideways")
	require.Error(t, err)
}
