package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coa-dev/codesearch/internal/config"
	"github.com/coa-dev/codesearch/internal/index"
	"github.com/coa-dev/codesearch/internal/query"
	"github.com/coa-dev/codesearch/internal/symbols"
)

func newTestPipeline(t *testing.T) (*Indexer, *index.Manager) {
	t.Helper()
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	cfg.Performance.Workers = 2

	m, err := index.NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	ix := NewIndexer(m, cfg, nil)
	t.Cleanup(func() { _ = ix.Close() })
	return ix, m
}

func writeFile(t *testing.T, ws, rel, content string) string {
	t.Helper()
	path := filepath.Join(ws, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIndexWorkspaceEmpty(t *testing.T) {
	ix, _ := newTestPipeline(t)
	ws := t.TempDir()

	res, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)
	assert.True(t, res.New)
	assert.Equal(t, 0, res.DocCount)
}

func TestIndexWorkspaceIndexesFiles(t *testing.T) {
	ix, m := newTestPipeline(t)
	ws := t.TempDir()

	writeFile(t, ws, "src/Foo.cs", "public class HttpClientFactory { }")
	writeFile(t, ws, "src/util.go", "package util\nfunc Helper() {}")
	writeFile(t, ws, "README.md", "# readme")

	res, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.FilesIndexed)
	assert.Equal(t, 3, res.DocCount)

	sr, err := m.Search(context.Background(), ws, query.Spec{Raw: "HttpClientFactory"}, index.SearchOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, sr.Hits)
}

func TestIndexWorkspaceSkipsUnchanged(t *testing.T) {
	ix, _ := newTestPipeline(t)
	ws := t.TempDir()
	writeFile(t, ws, "a.go", "package a")

	_, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)

	res, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.FilesIndexed)
	assert.Equal(t, 1, res.FilesSkipped, "same size+mtime must be skipped")

	// force re-indexes everything.
	res, err = ix.IndexWorkspace(context.Background(), ws, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesIndexed)
}

func TestIndexWorkspaceSkipsBinaryAndJunk(t *testing.T) {
	ix, _ := newTestPipeline(t)
	ws := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(ws, "node_modules", "dep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "node_modules", "dep", "index.js"),
		[]byte("module.exports = 1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "blob.go"),
		[]byte{0x00, 0x01, 0x02, 'a'}, 0o644))
	writeFile(t, ws, "keep.go", "package keep")

	res, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DocCount, "junk dirs and binary files stay out")
}

func TestIndexWorkspaceRemovesDeleted(t *testing.T) {
	ix, m := newTestPipeline(t)
	ws := t.TempDir()

	gone := writeFile(t, ws, "gone.go", "package gone // vanish-token")
	writeFile(t, ws, "stay.go", "package stay")

	_, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)

	require.NoError(t, os.Remove(gone))

	res, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesDeleted)

	sr, err := m.Search(context.Background(), ws, query.Spec{Raw: "vanish-token"}, index.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, sr.Hits)
}

func TestIndexWorkspaceCancellationLeavesIndexValid(t *testing.T) {
	ix, _ := newTestPipeline(t)
	ws := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, ws, filepath.Join("src", "f"+string(rune('a'+i))+".go"), "package f")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ix.IndexWorkspace(ctx, ws, false)
	require.Error(t, err)

	// A subsequent run completes and converges.
	res, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)
	assert.Equal(t, 20, res.DocCount)
}

func TestIndexFileIncremental(t *testing.T) {
	ix, m := newTestPipeline(t)
	ws := t.TempDir()

	_, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)

	path := writeFile(t, ws, "src/new.go", "package neu // fresh-token")
	require.NoError(t, ix.IndexFile(context.Background(), ws, path))
	require.NoError(t, m.Commit(context.Background(), ws))

	sr, err := m.Search(context.Background(), ws, query.Spec{Raw: "fresh-token"}, index.SearchOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, sr.Hits)
}

// staticExtractor fakes the external extractor.
type staticExtractor struct{}

func (staticExtractor) ExtractBulk(_ context.Context, files []string) ([]*symbols.FileExtraction, error) {
	var out []*symbols.FileExtraction
	for _, f := range files {
		if filepath.Ext(f) != ".cs" {
			continue
		}
		out = append(out, &symbols.FileExtraction{
			FilePath: f,
			Symbols: []symbols.Symbol{
				{FilePath: f, Name: "HttpClientFactory", Kind: symbols.KindClass, StartLine: 1, EndLine: 3},
			},
		})
	}
	return out, nil
}

func TestIndexWorkspaceEmbedsTypeInfo(t *testing.T) {
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()

	m, err := index.NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()

	ix := NewIndexer(m, cfg, staticExtractor{})
	defer ix.Close()

	ws := t.TempDir()
	writeFile(t, ws, "src/Foo.cs", "public class HttpClientFactory { }")

	_, err = ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)

	sr, err := m.Search(context.Background(), ws, query.Spec{Raw: "HttpClientFactory"}, index.SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, sr.Hits)
	require.NotNil(t, sr.Hits[0].TypeInfo)
	assert.Equal(t, "HttpClientFactory", sr.Hits[0].TypeInfo.Types[0].Name)

	// Symbols landed in the store too.
	ic, err := m.Get(ws)
	require.NoError(t, err)
	store, err := ix.SymbolStore(ic.Hash)
	require.NoError(t, err)

	syms, err := store.SearchByName(context.Background(), "HttpClientFactory", symbols.MatchExact, "", 10)
	require.NoError(t, err)
	assert.Len(t, syms, 1)
}

func TestReadFileNormalization(t *testing.T) {
	dir := t.TempDir()

	bomFile := filepath.Join(dir, "bom.txt")
	require.NoError(t, os.WriteFile(bomFile, append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello")...), 0o644))

	r, err := ReadFile(bomFile)
	require.NoError(t, err)
	assert.Equal(t, "hello", r.Content, "BOM must be stripped")
	assert.False(t, r.Binary)

	crlf := filepath.Join(dir, "crlf.txt")
	require.NoError(t, os.WriteFile(crlf, []byte("a\r\nb"), 0o644))
	r, err = ReadFile(crlf)
	require.NoError(t, err)
	assert.Equal(t, "\r\n", r.LineEnding)
	assert.Equal(t, "a\r\nb", r.Content, "line endings preserved in content")
}

func TestWalkRespectsExcludes(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, ws, "src/a.go", "package a")
	writeFile(t, ws, "gen/b.go", "package b")

	var got []string
	err := Walk(context.Background(), ws, WalkOptions{
		IncludeExtensions: []string{".go"},
		Exclude:           []string{"gen/**"},
	}, func(f WalkedFile) error {
		got = append(got, f.RelPath)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.go"}, got)
}

func TestWalkSizeCap(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, ws, "big.go", string(make([]byte, 1000)))
	writeFile(t, ws, "small.go", "package s")

	var got []string
	err := Walk(context.Background(), ws, WalkOptions{
		IncludeExtensions: []string{".go"},
		MaxFileSize:       100,
	}, func(f WalkedFile) error {
		got = append(got, f.RelPath)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"small.go"}, got)
}

func TestWorkspaceApplierRoundTrip(t *testing.T) {
	ix, m := newTestPipeline(t)
	ws := t.TempDir()
	_, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)

	a := NewWorkspaceApplier(ix, ws)

	path := writeFile(t, ws, "w.go", "package w // applier-token")
	require.NoError(t, a.IndexFile(context.Background(), path))
	require.NoError(t, a.Commit(context.Background()))

	sr, err := m.Search(context.Background(), ws, query.Spec{Raw: "applier-token"}, index.SearchOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, sr.Hits)

	require.NoError(t, a.RemoveFile(context.Background(), path))
	require.NoError(t, a.Commit(context.Background()))

	sr, err = m.Search(context.Background(), ws, query.Spec{Raw: "applier-token"}, index.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, sr.Hits)
}

func TestIndexWorkspaceMtimeChangeReindexes(t *testing.T) {
	ix, m := newTestPipeline(t)
	ws := t.TempDir()
	path := writeFile(t, ws, "a.go", "package a // before")

	_, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)

	// Rewrite with different content and a bumped mtime.
	require.NoError(t, os.WriteFile(path, []byte("package a // after-token"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	res, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesIndexed)

	sr, err := m.Search(context.Background(), ws, query.Spec{Raw: "after-token"}, index.SearchOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, sr.Hits)
}
