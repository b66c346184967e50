package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/coa-dev/codesearch/internal/config"
	"github.com/coa-dev/codesearch/internal/cserr"
	"github.com/coa-dev/codesearch/internal/workspace"
)

// Manager owns every IndexContext in the process. Contexts are created
// lazily, bounded by MaxConcurrentIndexes, and evicted least-recently-used.
// Eviction commits pending writes before closing.
type Manager struct {
	cfg   *config.Config
	paths *workspace.Paths

	mu       sync.Mutex
	contexts *lru.Cache[string, *IndexContext]
}

// IndexInitResult reports the outcome of Initialize.
type IndexInitResult struct {
	New       bool   `json:"new"`
	DocCount  int    `json:"doc_count"`
	IndexPath string `json:"index_path"`
}

// Stats is the read-only diagnostic view of one workspace index.
type Stats struct {
	Workspace      string    `json:"workspace"`
	Hash           string    `json:"hash"`
	IndexPath      string    `json:"index_path"`
	DocCount       uint64    `json:"doc_count"`
	DiskBytes      int64     `json:"disk_bytes"`
	RefreshVersion uint64    `json:"refresh_version"`
	LastAccess     time.Time `json:"last_access"`
}

// Health reports index directory health.
type Health struct {
	OK            bool     `json:"ok"`
	CleanShutdown bool     `json:"clean_shutdown"`
	Issues        []string `json:"issues,omitempty"`
}

// NewManager creates the index manager for a base directory.
func NewManager(cfg *config.Config) (*Manager, error) {
	paths, err := workspace.NewPaths(cfg.BaseDir)
	if err != nil {
		return nil, err
	}

	m := &Manager{cfg: cfg, paths: paths}

	cache, err := lru.NewWithEvict(cfg.Index.MaxConcurrentIndexes,
		func(hash string, ic *IndexContext) {
			if err := ic.close(); err != nil {
				slog.Warn("failed to close evicted index context",
					slog.String("hash", hash),
					slog.String("error", err.Error()))
			}
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create context cache: %w", err)
	}
	m.contexts = cache

	return m, nil
}

// Paths exposes the base-directory layout.
func (m *Manager) Paths() *workspace.Paths {
	return m.paths
}

// Config returns the manager's configuration.
func (m *Manager) Config() *config.Config {
	return m.cfg
}

// Initialize opens or creates the index for a workspace. The workspace must
// be an existing directory.
func (m *Manager) Initialize(ctx context.Context, wsPath string) (*IndexInitResult, error) {
	canonical, err := workspace.NormalizeDir(wsPath)
	if err != nil {
		return nil, err
	}
	hash := workspace.Hash(canonical)

	ic, created, err := m.getOrCreate(canonical, hash)
	if err != nil {
		return nil, err
	}

	count, err := ic.DocCount()
	if err != nil {
		return nil, cserr.Wrap(cserr.ErrCodeIndexFailed, err)
	}

	return &IndexInitResult{
		New:       created,
		DocCount:  int(count),
		IndexPath: m.paths.IndexDir(hash),
	}, nil
}

// Get returns the context for a workspace that already has an index on disk.
// Returns NoIndex otherwise.
func (m *Manager) Get(wsPath string) (*IndexContext, error) {
	canonical, err := workspace.Normalize(wsPath)
	if err != nil {
		return nil, err
	}
	hash := workspace.Hash(canonical)

	m.mu.Lock()
	if ic, ok := m.contexts.Get(hash); ok {
		m.mu.Unlock()
		return ic, nil
	}
	m.mu.Unlock()

	if _, err := os.Stat(m.paths.IndexDir(hash)); os.IsNotExist(err) {
		return nil, cserr.NoIndex(wsPath)
	}

	ic, _, err := m.getOrCreate(canonical, hash)
	return ic, err
}

// getOrCreate returns the cached context or opens it.
func (m *Manager) getOrCreate(canonical, hash string) (*IndexContext, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ic, ok := m.contexts.Get(hash); ok {
		return ic, false, nil
	}

	ic, created, err := openContext(canonical, hash, m.paths, m.cfg.Index, m.cfg.Repair.Auto)
	if err != nil {
		return nil, false, err
	}

	m.contexts.Add(hash, ic)
	return ic, created, nil
}

// Index inserts or updates documents in a workspace, then runs the memory
// monitor. Batching thresholds live in the context.
func (m *Manager) Index(ctx context.Context, wsPath string, docs []*Document) error {
	ic, err := m.Get(wsPath)
	if err != nil {
		return err
	}
	if err := ic.IndexDocs(ctx, docs); err != nil {
		return err
	}
	m.enforceRAMCeiling(ctx)
	return nil
}

// Delete removes one document by path.
func (m *Manager) Delete(ctx context.Context, wsPath, filePath string) error {
	ic, err := m.Get(wsPath)
	if err != nil {
		return err
	}
	return ic.DeleteDoc(ctx, filePath)
}

// Commit flushes a workspace's writer and forces reader refresh on the next
// search.
func (m *Manager) Commit(ctx context.Context, wsPath string) error {
	ic, err := m.Get(wsPath)
	if err != nil {
		return err
	}
	return ic.Commit(ctx)
}

// Clear removes all documents from a workspace index.
func (m *Manager) Clear(ctx context.Context, wsPath string) error {
	ic, err := m.Get(wsPath)
	if err != nil {
		return err
	}
	return ic.Clear(ctx)
}

// Rebuild drops the index directory entirely and recreates an empty index.
// The caller re-walks the source tree afterwards.
func (m *Manager) Rebuild(ctx context.Context, wsPath string) (*IndexInitResult, error) {
	canonical, err := workspace.NormalizeDir(wsPath)
	if err != nil {
		return nil, err
	}
	hash := workspace.Hash(canonical)

	m.mu.Lock()
	if ic, ok := m.contexts.Get(hash); ok {
		m.contexts.Remove(hash)
		_ = ic.close()
	}
	m.mu.Unlock()

	if err := os.RemoveAll(m.paths.IndexDir(hash)); err != nil {
		return nil, cserr.Wrap(cserr.ErrCodeIndexFailed, err)
	}

	return m.Initialize(ctx, wsPath)
}

// Repair backs up and drops bad segments, then reopens a fresh index.
func (m *Manager) Repair(ctx context.Context, wsPath string, opts RepairOptions) (*RepairReport, error) {
	canonical, err := workspace.Normalize(wsPath)
	if err != nil {
		return nil, err
	}
	hash := workspace.Hash(canonical)

	m.mu.Lock()
	if ic, ok := m.contexts.Get(hash); ok {
		m.contexts.Remove(hash)
		_ = ic.close()
	}
	m.mu.Unlock()

	report, err := repairIndexDir(m.paths.IndexDir(hash), opts)
	if err != nil {
		return nil, cserr.IndexCorrupt(m.paths.IndexDir(hash), err)
	}

	if _, _, err := m.getOrCreate(canonical, hash); err != nil {
		return report, err
	}
	return report, nil
}

// Stats returns read-only diagnostics for a workspace.
func (m *Manager) Stats(wsPath string) (*Stats, error) {
	ic, err := m.Get(wsPath)
	if err != nil {
		return nil, err
	}

	count, err := ic.DocCount()
	if err != nil {
		return nil, cserr.Wrap(cserr.ErrCodeIndexFailed, err)
	}

	return &Stats{
		Workspace:      ic.Workspace,
		Hash:           ic.Hash,
		IndexPath:      ic.dir,
		DocCount:       count,
		DiskBytes:      ic.DiskSize(),
		RefreshVersion: ic.RefreshVersion(),
		LastAccess:     ic.LastAccess(),
	}, nil
}

// Health verifies index directory integrity without mutating anything.
func (m *Manager) Health(wsPath string) (*Health, error) {
	canonical, err := workspace.Normalize(wsPath)
	if err != nil {
		return nil, err
	}
	hash := workspace.Hash(canonical)
	dir := m.paths.IndexDir(hash)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, cserr.NoIndex(wsPath)
	}

	h := &Health{OK: true}
	if err := ValidateIntegrity(dir); err != nil {
		h.OK = false
		h.Issues = append(h.Issues, err.Error())
	}
	if md, _ := m.paths.ReadMetadata(hash); md != nil {
		h.CleanShutdown = md.CleanShutdown
		if !md.CleanShutdown {
			h.Issues = append(h.Issues, "previous shutdown was unclean")
		}
	}
	return h, nil
}

// enforceRAMCeiling commits the context with the largest pending buffer when
// total buffered bytes exceed the configured ceiling.
func (m *Manager) enforceRAMCeiling(ctx context.Context) {
	ceiling := m.cfg.Index.RAMCeiling
	if ceiling <= 0 {
		return
	}

	m.mu.Lock()
	var total int64
	var biggest *IndexContext
	var biggestBytes int64
	for _, hash := range m.contexts.Keys() {
		ic, ok := m.contexts.Peek(hash)
		if !ok {
			continue
		}
		b := ic.PendingBytes()
		total += b
		if b > biggestBytes {
			biggest, biggestBytes = ic, b
		}
	}
	m.mu.Unlock()

	if total > ceiling && biggest != nil {
		slog.Debug("memory ceiling exceeded, forcing commit",
			slog.Int64("total_pending", total),
			slog.String("workspace", biggest.Workspace))
		if err := biggest.Commit(ctx); err != nil {
			slog.Warn("forced commit failed",
				slog.String("workspace", biggest.Workspace),
				slog.String("error", err.Error()))
		}
	}
}

// Close commits and closes every open context. Called at process shutdown.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, hash := range m.contexts.Keys() {
		if ic, ok := m.contexts.Peek(hash); ok {
			if err := ic.close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	m.contexts.Purge()
	return firstErr
}
