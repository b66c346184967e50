package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coa-dev/codesearch/internal/config"
	"github.com/coa-dev/codesearch/internal/cserr"
	"github.com/coa-dev/codesearch/internal/query"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	cfg.Index.BatchDocs = 2 // small batches exercise flushing

	m, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newTestWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	ws := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(ws, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return ws
}

func indexFile(t *testing.T, m *Manager, ws, rel, content string) {
	t.Helper()
	abs := filepath.Join(ws, rel)
	doc := NewDocument(abs, rel, content, time.Now(), int64(len(content)), 10000)
	require.NoError(t, m.Index(context.Background(), ws, []*Document{doc}))
}

func TestInitializeEmptyWorkspace(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)

	res, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)
	assert.True(t, res.New)
	assert.Equal(t, 0, res.DocCount)
	assert.DirExists(t, res.IndexPath)

	// Second initialize reports an existing index.
	res2, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)
	assert.False(t, res2.New)
}

func TestInitializeRejectsMissingDirectory(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Initialize(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, cserr.ErrCodeNoSuchDirectory, cserr.GetCode(err))
}

func TestSearchWithoutIndexReturnsNoIndex(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)

	_, err := m.Search(context.Background(), ws, query.Spec{Raw: "x"}, SearchOptions{})
	require.Error(t, err)
	assert.Equal(t, cserr.ErrCodeNoIndex, cserr.GetCode(err))
}

func TestIndexAndSearchSingleFile(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)
	_, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)

	content := "public class HttpClientFactory { public void Build() { /* TODO */ } }"
	indexFile(t, m, ws, "src/Foo.cs", content)
	require.NoError(t, m.Commit(context.Background(), ws))

	res, err := m.Search(context.Background(), ws, query.Spec{Raw: "HttpClient", Type: query.TypeStandard},
		SearchOptions{Snippets: true})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "src/Foo.cs", res.Hits[0].RelativePath)
	require.NotEmpty(t, res.Hits[0].Snippets)
	assert.Contains(t, res.Hits[0].Snippets[0].Text, "HttpClientFactory")
}

func TestCamelCaseRecall(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)
	_, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)

	indexFile(t, m, ws, "src/Foo.cs", "public class HttpClientFactory {}")
	require.NoError(t, m.Commit(context.Background(), ws))

	res, err := m.Search(context.Background(), ws, query.Spec{Raw: "client factory", Type: query.TypeStandard}, SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits, "identifier split must make camelCase parts searchable")
	assert.Equal(t, "src/Foo.cs", res.Hits[0].RelativePath)
}

func TestLeadingWildcardRejected(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)
	_, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)

	_, err = m.Search(context.Background(), ws, query.Spec{Raw: "*util", Type: query.TypeStandard}, SearchOptions{})
	require.Error(t, err)

	var e *cserr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, cserr.ErrCodeInvalidQuery, e.Code)
	assert.NotEmpty(t, e.Suggestion)
}

func TestExactlyOneDocumentPerPath(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)
	_, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)

	// Interleave updates and deletes on the same path.
	for i := 0; i < 5; i++ {
		indexFile(t, m, ws, "src/a.go", "package a // revision")
		if i%2 == 1 {
			require.NoError(t, m.Delete(context.Background(), ws, filepath.Join(ws, "src/a.go")))
		}
	}
	indexFile(t, m, ws, "src/a.go", "package a // final")
	require.NoError(t, m.Commit(context.Background(), ws))

	ic, err := m.Get(ws)
	require.NoError(t, err)
	count, err := ic.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestReadYourWritesAfterCommit(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)
	_, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)

	indexFile(t, m, ws, "src/marker.go", "package marker // marker-xyz sentinel")
	require.NoError(t, m.Commit(context.Background(), ws))

	res, err := m.Search(context.Background(), ws, query.Spec{Raw: "marker-xyz"}, SearchOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Hits, "a search after commit must see the committed write")
}

func TestRefreshVersionMonotonic(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)
	_, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)

	ic, err := m.Get(ws)
	require.NoError(t, err)

	var versions []uint64
	for i := 0; i < 4; i++ {
		indexFile(t, m, ws, "src/a.go", "package a")
		require.NoError(t, m.Commit(context.Background(), ws))
		snap := ic.Searcher()
		versions = append(versions, snap.RefreshVersion)
	}

	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1], "refresh_version must be strictly monotonic")
	}
}

func TestScoreDeterminism(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)
	_, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)

	indexFile(t, m, ws, "src/alpha.go", "package alpha // widget handler")
	indexFile(t, m, ws, "src/beta.go", "package beta // widget handler")
	indexFile(t, m, ws, "lib/gamma.go", "package gamma // widget handler")
	require.NoError(t, m.Commit(context.Background(), ws))

	var orders [][]string
	for i := 0; i < 3; i++ {
		res, err := m.Search(context.Background(), ws, query.Spec{Raw: "widget handler"}, SearchOptions{})
		require.NoError(t, err)
		var order []string
		for _, h := range res.Hits {
			order = append(order, h.RelativePath)
		}
		orders = append(orders, order)
	}
	assert.Equal(t, orders[0], orders[1])
	assert.Equal(t, orders[1], orders[2])
}

func TestDeleteRemovesDocument(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)
	_, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)

	indexFile(t, m, ws, "src/gone.go", "package gone // findme-token")
	require.NoError(t, m.Commit(context.Background(), ws))

	require.NoError(t, m.Delete(context.Background(), ws, filepath.Join(ws, "src/gone.go")))
	require.NoError(t, m.Commit(context.Background(), ws))

	res, err := m.Search(context.Background(), ws, query.Spec{Raw: "findme-token"}, SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestClearEmptiesIndex(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)
	_, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)

	indexFile(t, m, ws, "src/a.go", "package a")
	indexFile(t, m, ws, "src/b.go", "package b")
	require.NoError(t, m.Commit(context.Background(), ws))

	require.NoError(t, m.Clear(context.Background(), ws))

	ic, err := m.Get(ws)
	require.NoError(t, err)
	count, err := ic.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestRebuildDropsAndRecreates(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)
	_, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)

	indexFile(t, m, ws, "src/a.go", "package a")
	require.NoError(t, m.Commit(context.Background(), ws))

	res, err := m.Rebuild(context.Background(), ws)
	require.NoError(t, err)
	assert.True(t, res.New)
	assert.Equal(t, 0, res.DocCount)
}

func TestSearchFilesGlob(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)
	_, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)

	indexFile(t, m, ws, "src/FooFactory.cs", "class FooFactory {}")
	indexFile(t, m, ws, "src/util/helpers.go", "package util")
	indexFile(t, m, ws, "docs/readme.md", "# readme")
	require.NoError(t, m.Commit(context.Background(), ws))

	res, err := m.SearchFiles(context.Background(), ws, "**/*Factory*.cs", "", 10)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "src/FooFactory.cs", res.Matches[0].RelativePath)

	// Extension filter.
	res, err = m.SearchFiles(context.Background(), ws, "**/*", ".go", 10)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "src/util/helpers.go", res.Matches[0].RelativePath)
}

func TestRecentFiles(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)
	_, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)

	old := NewDocument(filepath.Join(ws, "old.go"), "old.go", "package old",
		time.Now().Add(-48*time.Hour), 10, 1000)
	fresh := NewDocument(filepath.Join(ws, "fresh.go"), "fresh.go", "package fresh",
		time.Now(), 10, 1000)
	require.NoError(t, m.Index(context.Background(), ws, []*Document{old, fresh}))
	require.NoError(t, m.Commit(context.Background(), ws))

	res, err := m.RecentFiles(context.Background(), ws, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "fresh.go", res.Matches[0].RelativePath)
}

func TestSearchLinesWithContext(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)
	_, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)

	content := "line one\nline two target\nline three\nline four"
	indexFile(t, m, ws, "src/a.txt", content)
	require.NoError(t, m.Commit(context.Background(), ws))

	res, err := m.SearchLines(context.Background(), ws, "target", 1, 10)
	require.NoError(t, err)
	require.NotEmpty(t, res.Matches)
	match := res.Matches[0]
	assert.Equal(t, 2, match.Line)
	assert.Equal(t, []string{"line one"}, match.Before)
	assert.Equal(t, []string{"line three"}, match.After)
}

func TestCancelledSearchReturnsNoResults(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)
	_, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)

	indexFile(t, m, ws, "src/a.go", "package a")
	require.NoError(t, m.Commit(context.Background(), ws))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.Search(ctx, ws, query.Spec{Raw: "package"}, SearchOptions{})
	require.Error(t, err)
	assert.Equal(t, cserr.ErrCodeCancelled, cserr.GetCode(err))
}

func TestStatsAndHealth(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)
	_, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)

	indexFile(t, m, ws, "src/a.go", "package a")
	require.NoError(t, m.Commit(context.Background(), ws))

	stats, err := m.Stats(ws)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.DocCount)
	assert.Greater(t, stats.DiskBytes, int64(0))

	h, err := m.Health(ws)
	require.NoError(t, err)
	assert.True(t, h.OK)
}

func TestLRUEvictionCommitsAndCloses(t *testing.T) {
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	cfg.Index.MaxConcurrentIndexes = 1

	m, err := NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()

	ws1 := newTestWorkspace(t, nil)
	ws2 := newTestWorkspace(t, nil)

	_, err = m.Initialize(context.Background(), ws1)
	require.NoError(t, err)
	indexFile(t, m, ws1, "a.go", "package a // evicted-token")

	// Opening the second workspace evicts the first, which must commit its
	// pending write before closing.
	_, err = m.Initialize(context.Background(), ws2)
	require.NoError(t, err)

	res, err := m.Search(context.Background(), ws1, query.Spec{Raw: "evicted-token"}, SearchOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Hits)
}

func TestHashCollisionDetected(t *testing.T) {
	m := newTestManager(t)
	ws := newTestWorkspace(t, nil)

	res, err := m.Initialize(context.Background(), ws)
	require.NoError(t, err)

	// Forge a sidecar claiming this index belongs to another workspace,
	// then force a reopen.
	require.NoError(t, m.Close())

	hash := filepath.Base(res.IndexPath)
	md, err := m.Paths().ReadMetadata(hash)
	require.NoError(t, err)
	md.OriginalPath = "/somewhere/else"
	require.NoError(t, m.Paths().WriteMetadata(hash, md))

	m2, err := NewManager(m.Config())
	require.NoError(t, err)
	defer m2.Close()

	_, err = m2.Initialize(context.Background(), ws)
	require.Error(t, err)
	assert.Equal(t, cserr.ErrCodeHashCollision, cserr.GetCode(err))
}
