package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coa-dev/codesearch/internal/config"
	"github.com/coa-dev/codesearch/internal/index"
	"github.com/coa-dev/codesearch/internal/pipeline"
	"github.com/coa-dev/codesearch/internal/query"
)

func setup(t *testing.T) (*Reconciler, *index.Manager, *pipeline.Indexer, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()

	m, err := index.NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	ix := pipeline.NewIndexer(m, cfg, nil)
	t.Cleanup(func() { _ = ix.Close() })

	return New(cfg, m, ix), m, ix, cfg
}

func TestRunOnEmptyBaseDir(t *testing.T) {
	r, _, _, _ := setup(t)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Workspaces)
}

func TestRunSweepsStaleLock(t *testing.T) {
	r, m, ix, _ := setup(t)
	ws := t.TempDir()

	_, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)
	require.NoError(t, m.Close()) // release the live lock

	// Fabricate a dead-owner lock in the index dir.
	ic := mustHash(t, m, ws)
	indexDir := m.Paths().IndexDir(ic)
	require.NoError(t, os.WriteFile(filepath.Join(indexDir, ".write.lock"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(indexDir, ".write.pid"), []byte("999999999"), 0o644))

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Workspaces, 1)
	assert.True(t, report.Workspaces[0].StaleLockRemoved)
}

func mustHash(t *testing.T, m *index.Manager, ws string) string {
	t.Helper()
	hashes, err := m.Paths().ListIndexDirs()
	require.NoError(t, err)
	require.Len(t, hashes, 1)
	_ = ws
	return hashes[0]
}

func TestRunRepairsCorruptIndex(t *testing.T) {
	r, m, ix, _ := setup(t)
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.go"), []byte("package a // survivor"), 0o644))

	_, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	// Corrupt the index metadata.
	hash := mustHash(t, m, ws)
	metaPath := filepath.Join(m.Paths().IndexDir(hash), "index_meta.json")
	require.NoError(t, os.WriteFile(metaPath, []byte("{not json"), 0o644))

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Workspaces, 1)
	wr := report.Workspaces[0]
	assert.True(t, wr.Corrupt)
	assert.True(t, wr.Repaired)
	assert.Empty(t, wr.Error)

	// The rebuilt index answers searches again.
	res, err := m.Search(context.Background(), ws, query.Spec{Raw: "survivor"}, index.SearchOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Hits)
}

func TestRunSurfacesCorruptionWhenAutoRepairOff(t *testing.T) {
	r, m, ix, cfg := setup(t)
	cfg.Repair.Auto = false

	ws := t.TempDir()
	_, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	hash := mustHash(t, m, ws)
	metaPath := filepath.Join(m.Paths().IndexDir(hash), "index_meta.json")
	require.NoError(t, os.WriteFile(metaPath, []byte(""), 0o644))

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Workspaces, 1)
	assert.True(t, report.Workspaces[0].Corrupt)
	assert.False(t, report.Workspaces[0].Repaired)
	assert.Contains(t, report.Workspaces[0].Error, "ERR_203")
}

func TestRunRestoresCleanMarkerAfterVerify(t *testing.T) {
	r, m, ix, _ := setup(t)
	ws := t.TempDir()

	_, err := ix.IndexWorkspace(context.Background(), ws, false)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	// Simulate an unclean shutdown with an otherwise healthy index.
	hash := mustHash(t, m, ws)
	md, err := m.Paths().ReadMetadata(hash)
	require.NoError(t, err)
	md.CleanShutdown = false
	require.NoError(t, m.Paths().WriteMetadata(hash, md))

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Workspaces, 1)
	assert.True(t, report.Workspaces[0].UncleanShutdown)
	assert.False(t, report.Workspaces[0].Corrupt)

	md, err = m.Paths().ReadMetadata(hash)
	require.NoError(t, err)
	assert.True(t, md.CleanShutdown)
}
