// Package integration exercises the engine end to end: indexing, search,
// symbol resolution, editing, and watcher-driven incremental updates.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coa-dev/codesearch/internal/config"
	"github.com/coa-dev/codesearch/internal/edit"
	"github.com/coa-dev/codesearch/internal/index"
	"github.com/coa-dev/codesearch/internal/pipeline"
	"github.com/coa-dev/codesearch/internal/query"
	"github.com/coa-dev/codesearch/internal/refs"
	"github.com/coa-dev/codesearch/internal/symbols"
	"github.com/coa-dev/codesearch/internal/watch"
)

// csExtractor extracts a minimal symbol model from the test fixtures.
type csExtractor struct{}

func (csExtractor) ExtractBulk(_ context.Context, files []string) ([]*symbols.FileExtraction, error) {
	var out []*symbols.FileExtraction
	for _, f := range files {
		switch filepath.Base(f) {
		case "Foo.cs":
			out = append(out, &symbols.FileExtraction{
				FilePath: f,
				Symbols: []symbols.Symbol{
					{FilePath: f, Name: "HttpClientFactory", Kind: symbols.KindClass, StartLine: 1, EndLine: 5},
					{FilePath: f, Name: "Build", Kind: symbols.KindMethod, ContainingType: "HttpClientFactory", StartLine: 2, EndLine: 4},
				},
				Identifiers: []symbols.Identifier{
					{FilePath: f, Line: 1, Col: 14, Name: "HttpClientFactory"},
				},
			})
		case "Bar.cs":
			out = append(out, &symbols.FileExtraction{
				FilePath: f,
				Symbols: []symbols.Symbol{
					{FilePath: f, Name: "Consumer", Kind: symbols.KindClass, StartLine: 1, EndLine: 8},
					{FilePath: f, Name: "Run", Kind: symbols.KindMethod, ContainingType: "Consumer", StartLine: 2, EndLine: 6},
				},
				Identifiers: []symbols.Identifier{
					{FilePath: f, Line: 3, Col: 17, Name: "HttpClientFactory"},
				},
			})
		}
	}
	return out, nil
}

func setupEngine(t *testing.T) (*index.Manager, *pipeline.Indexer, string) {
	t.Helper()
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()

	m, err := index.NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	ix := pipeline.NewIndexer(m, cfg, csExtractor{})
	t.Cleanup(func() { _ = ix.Close() })

	ws := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(ws, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("src/Foo.cs", "public class HttpClientFactory {\n  public void Build() {\n    // TODO\n  }\n}\n")
	write("src/Bar.cs", "public class Consumer {\n  public void Run() {\n    var f = new HttpClientFactory();\n  }\n}\n")

	return m, ix, ws
}

// TestRoundTrip walks the seed scenario chain: index, search, definition,
// references, edit, re-index, and verifies the engine stays self-consistent.
func TestRoundTrip(t *testing.T) {
	m, ix, ws := setupEngine(t)
	ctx := context.Background()

	res, err := ix.IndexWorkspace(ctx, ws, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.DocCount)

	// Search finds the definition file with a snippet.
	sr, err := m.Search(ctx, ws, query.Spec{Raw: "HttpClient", Type: query.TypeStandard},
		index.SearchOptions{Snippets: true})
	require.NoError(t, err)
	require.NotEmpty(t, sr.Hits)
	assert.Equal(t, "src/Foo.cs", sr.Hits[0].RelativePath)

	// goto_definition and find_references agree with the fixtures.
	ic, err := m.Get(ws)
	require.NoError(t, err)
	store, err := ix.SymbolStore(ic.Hash)
	require.NoError(t, err)
	resolver := refs.NewResolver(store, func(path string, line int) string {
		return m.LineAt(ws, path, line)
	})

	defs, err := resolver.FindDefinitions(ctx, "HttpClientFactory", symbols.KindClass)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Contains(t, defs[0].FilePath, "Foo.cs")

	occs, err := resolver.FindReferences(ctx, "HttpClientFactory", "")
	require.NoError(t, err)
	var inBar bool
	for _, o := range occs {
		if filepath.Base(o.FilePath) == "Bar.cs" {
			inBar = true
			assert.NotEmpty(t, o.Snippet)
		}
	}
	assert.True(t, inBar)

	// Edit the file, re-index, and the change is searchable.
	fooPath := filepath.Join(ws, "src", "Foo.cs")
	_, err = edit.EditLines(fooPath, edit.OpInsert, 1, "// roundtrip-marker")
	require.NoError(t, err)

	// Bump mtime so change detection can't miss a same-second rewrite.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(fooPath, future, future))

	_, err = ix.IndexWorkspace(ctx, ws, false)
	require.NoError(t, err)

	sr, err = m.Search(ctx, ws, query.Spec{Raw: "roundtrip-marker"}, index.SearchOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, sr.Hits)

	// Document-per-path invariant held throughout.
	count, err := ic.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

// TestWatcherIncrementalUpdate covers the incremental seed scenario: a file
// appended on disk becomes searchable within the debounce window plus a
// second, with no explicit re-index call.
func TestWatcherIncrementalUpdate(t *testing.T) {
	m, ix, ws := setupEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := ix.IndexWorkspace(ctx, ws, false)
	require.NoError(t, err)

	debounce := 300 * time.Millisecond
	svc, err := watch.NewService(ws, pipeline.NewWorkspaceApplier(ix, ws), watch.ServiceOptions{
		Debounce:   debounce,
		AutoCommit: time.Second,
	})
	require.NoError(t, err)
	defer svc.Stop()
	svc.Start(ctx)

	// Append a marker line to Foo.cs on disk.
	fooPath := filepath.Join(ws, "src", "Foo.cs")
	f, err := os.OpenFile(fooPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("// marker-xyz\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		sr, err := m.Search(ctx, ws, query.Spec{Raw: "marker-xyz"}, index.SearchOptions{})
		return err == nil && len(sr.Hits) > 0
	}, debounce+time.Second, 50*time.Millisecond,
		"appended content must become searchable without an explicit re-index")
}

// TestCancelledBulkIndexThenComplete covers the cancellation boundary: an
// interrupted bulk index leaves a valid index and a later run completes.
func TestCancelledBulkIndexThenComplete(t *testing.T) {
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()

	m, err := index.NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()

	ix := pipeline.NewIndexer(m, cfg, nil)
	defer ix.Close()

	ws := t.TempDir()
	for i := 0; i < 30; i++ {
		name := filepath.Join(ws, "src", "file"+string(rune('a'+i%26))+string(rune('0'+i/26))+".go")
		require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, os.WriteFile(name, []byte("package src"), 0o644))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ix.IndexWorkspace(ctx, ws, false)
	require.Error(t, err)

	res, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)
	assert.Equal(t, 30, res.DocCount)
}
