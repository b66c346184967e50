package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"

	"github.com/coa-dev/codesearch/internal/config"
	"github.com/coa-dev/codesearch/internal/cserr"
	"github.com/coa-dev/codesearch/internal/workspace"
)

// IndexContext is the per-workspace holder of the index handle, write lock,
// reader cache, and batching state. At most one exists per workspace hash.
type IndexContext struct {
	// Hash is the workspace hash this context serves.
	Hash string

	// Workspace is the canonical workspace path.
	Workspace string

	dir   string
	paths *workspace.Paths
	cfg   config.IndexConfig

	// mu serializes writer operations and reader-cache mutations.
	mu sync.Mutex

	idx    bleve.Index
	lock   *WriteLock
	reader *ReaderCache

	// writerGen counts applied mutations; the reader cache compares
	// against it to detect staleness.
	writerGen uint64

	// Batching state, guarded by mu.
	pending      *bleve.Batch
	pendingDocs  int
	pendingBytes int64

	lastAccess time.Time
	closed     bool
}

// openContext opens (or creates) the index for a workspace.
func openContext(canonical, hash string, paths *workspace.Paths, cfg config.IndexConfig, repairAuto bool) (*IndexContext, bool, error) {
	dir := paths.IndexDir(hash)
	created := false

	if err := ValidateIntegrity(dir); err != nil {
		if !repairAuto {
			return nil, false, cserr.IndexCorrupt(dir, err)
		}
		if _, rerr := repairIndexDir(dir, RepairOptions{Backup: true}); rerr != nil {
			return nil, false, cserr.IndexCorrupt(dir, rerr)
		}
	}

	idx, err := bleve.Open(dir)
	if err == bleve.ErrorIndexPathDoesNotExist {
		m, merr := buildIndexMapping()
		if merr != nil {
			return nil, false, merr
		}
		idx, err = bleve.New(dir, m)
		created = true
	} else if err != nil && IsCorruptionError(err) {
		if !repairAuto {
			return nil, false, cserr.IndexCorrupt(dir, err)
		}
		if _, rerr := repairIndexDir(dir, RepairOptions{Backup: true}); rerr != nil {
			return nil, false, cserr.IndexCorrupt(dir, rerr)
		}
		m, merr := buildIndexMapping()
		if merr != nil {
			return nil, false, merr
		}
		idx, err = bleve.New(dir, m)
		created = true
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to open index %s: %w", dir, err)
	}

	ic := &IndexContext{
		Hash:       hash,
		Workspace:  canonical,
		dir:        dir,
		paths:      paths,
		cfg:        cfg,
		idx:        idx,
		reader:     NewReaderCache(cfg.ReaderMaxAge),
		lastAccess: time.Now(),
	}

	if created {
		md := &workspace.Metadata{
			OriginalPath:  canonical,
			CreatedAt:     time.Now().UTC(),
			CleanShutdown: true,
		}
		if err := paths.WriteMetadata(hash, md); err != nil {
			slog.Warn("failed to write workspace metadata",
				slog.String("hash", hash), slog.String("error", err.Error()))
		}
	} else if md, _ := paths.ReadMetadata(hash); md != nil &&
		md.OriginalPath != "" && md.OriginalPath != canonical {
		_ = idx.Close()
		return nil, false, cserr.New(cserr.ErrCodeHashCollision,
			fmt.Sprintf("workspace hash %s maps to both %s and %s", hash, md.OriginalPath, canonical), nil)
	}

	return ic, created, nil
}

// ensureWriterLocked acquires the OS write lock on first write and marks the
// sidecar dirty. Caller holds mu.
func (c *IndexContext) ensureWriterLocked() error {
	if c.lock != nil && c.lock.Locked() {
		return nil
	}
	lock := NewWriteLock(c.dir)
	if err := lock.Acquire(c.cfg.LockTimeout); err != nil {
		return err
	}
	c.lock = lock

	if md, _ := c.paths.ReadMetadata(c.Hash); md != nil {
		md.CleanShutdown = false
		_ = c.paths.WriteMetadata(c.Hash, md)
	}
	return nil
}

// IndexDocs inserts or updates documents keyed by path. The delete-then-add
// per path rides in a single batch operation, so the unique-document
// invariant holds under any interleaving.
func (c *IndexContext) IndexDocs(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return cserr.Internal("index context is closed", nil)
	}
	if err := c.ensureWriterLocked(); err != nil {
		return err
	}
	c.touchLocked()

	if c.pending == nil {
		c.pending = c.idx.NewBatch()
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			// Leave accumulated work in the pending batch; the next
			// commit flushes it or Clear discards it.
			return cserr.Wrap(cserr.ErrCodeCancelled, err)
		}
		if err := c.pending.Index(doc.Path, doc.indexable()); err != nil {
			return cserr.Wrap(cserr.ErrCodeIndexFailed, err)
		}
		c.pendingDocs++
		c.pendingBytes += int64(len(doc.Content))
	}

	if c.pendingDocs >= c.cfg.BatchDocs || c.pendingBytes >= c.cfg.BatchBytes {
		return c.flushLocked()
	}
	return nil
}

// DeleteDoc removes the document for a path (term delete by document key).
func (c *IndexContext) DeleteDoc(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return cserr.Internal("index context is closed", nil)
	}
	if err := c.ensureWriterLocked(); err != nil {
		return err
	}
	c.touchLocked()

	if c.pending == nil {
		c.pending = c.idx.NewBatch()
	}
	c.pending.Delete(path)
	c.pendingDocs++

	if c.pendingDocs >= c.cfg.BatchDocs {
		return c.flushLocked()
	}
	return nil
}

// flushLocked applies the pending batch. Caller holds mu.
func (c *IndexContext) flushLocked() error {
	if c.pending == nil || c.pendingDocs == 0 {
		return nil
	}
	if err := c.idx.Batch(c.pending); err != nil {
		return cserr.Wrap(cserr.ErrCodeIndexFailed, err)
	}
	c.writerGen++
	c.pending = nil
	c.pendingDocs = 0
	c.pendingBytes = 0
	return nil
}

// Commit flushes pending writes and invalidates the reader so the next
// search observes every effect of the commit.
func (c *IndexContext) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return cserr.Internal("index context is closed", nil)
	}
	c.touchLocked()

	if err := c.flushLocked(); err != nil {
		return err
	}
	c.reader.InvalidateReader()

	if md, _ := c.paths.ReadMetadata(c.Hash); md != nil {
		md.LastIndexedAt = time.Now().UTC()
		if n, err := c.idx.DocCount(); err == nil {
			md.DocCount = int(n)
		}
		_ = c.paths.WriteMetadata(c.Hash, md)
	}
	return nil
}

// Searcher captures the current reader snapshot, refreshing if stale.
func (c *IndexContext) Searcher() *Snapshot {
	c.mu.Lock()
	gen := c.writerGen
	idx := c.idx
	c.touchLocked()
	c.mu.Unlock()

	return c.reader.GetSearcher(idx, gen)
}

// FreshSearcher forces a reader reopen.
func (c *IndexContext) FreshSearcher() *Snapshot {
	c.mu.Lock()
	gen := c.writerGen
	idx := c.idx
	c.mu.Unlock()

	return c.reader.GetFreshSearcher(idx, gen)
}

// DocCount returns the number of documents visible in the index.
func (c *IndexContext) DocCount() (uint64, error) {
	return c.idx.DocCount()
}

// PendingBytes reports buffered-but-unflushed content size. The manager's
// memory monitor reads this to decide on forced commits.
func (c *IndexContext) PendingBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingBytes
}

// RefreshVersion exposes the reader cache's monotonic counter.
func (c *IndexContext) RefreshVersion() uint64 {
	return c.reader.RefreshVersion()
}

// LastAccess returns the most recent use of this context.
func (c *IndexContext) LastAccess() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAccess
}

// Clear removes every document from the index, discarding pending writes.
func (c *IndexContext) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return cserr.Internal("index context is closed", nil)
	}
	if err := c.ensureWriterLocked(); err != nil {
		return err
	}
	c.touchLocked()

	// Discard the pending batch outright.
	c.pending = nil
	c.pendingDocs = 0
	c.pendingBytes = 0

	// Term-delete everything in one batch.
	count, err := c.idx.DocCount()
	if err != nil {
		return cserr.Wrap(cserr.ErrCodeIndexFailed, err)
	}
	q := bleve.NewMatchAllQuery()
	req := bleve.NewSearchRequestOptions(q, int(count), 0, false)
	res, err := c.idx.Search(req)
	if err != nil {
		return cserr.Wrap(cserr.ErrCodeIndexFailed, err)
	}

	batch := c.idx.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	if err := c.idx.Batch(batch); err != nil {
		return cserr.Wrap(cserr.ErrCodeIndexFailed, err)
	}
	c.writerGen++
	c.reader.InvalidateReader()
	return nil
}

// close commits pending work, restores the clean-shutdown marker, and
// releases the OS lock. Called by the manager on eviction and shutdown.
func (c *IndexContext) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	if err := c.flushLocked(); err != nil {
		firstErr = err
	}

	if md, _ := c.paths.ReadMetadata(c.Hash); md != nil {
		md.CleanShutdown = true
		if n, err := c.idx.DocCount(); err == nil {
			md.DocCount = int(n)
		}
		_ = c.paths.WriteMetadata(c.Hash, md)
	}

	if err := c.idx.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if c.lock != nil {
		if err := c.lock.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// touchLocked updates the LRU timestamp. Caller holds mu.
func (c *IndexContext) touchLocked() {
	c.lastAccess = time.Now()
}

// DiskSize sums the on-disk size of the index directory.
func (c *IndexContext) DiskSize() int64 {
	var total int64
	_ = filepath.Walk(c.dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
