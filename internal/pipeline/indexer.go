package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coa-dev/codesearch/internal/config"
	"github.com/coa-dev/codesearch/internal/cserr"
	"github.com/coa-dev/codesearch/internal/index"
	"github.com/coa-dev/codesearch/internal/symbols"
)

// maxStoredLines caps the stored line array per document; larger files are
// searchable but return no snippets.
const maxStoredLines = 20000

// Indexer runs the indexing pipeline for workspaces.
type Indexer struct {
	manager   *index.Manager
	cfg       *config.Config
	extractor symbols.Extractor

	// symbolStores caches open per-workspace symbol stores.
	mu           sync.Mutex
	symbolStores map[string]*symbols.Store
}

// NewIndexer creates the pipeline around an index manager.
// extractor may be nil; indexing then skips symbol enrichment.
func NewIndexer(manager *index.Manager, cfg *config.Config, extractor symbols.Extractor) *Indexer {
	return &Indexer{
		manager:      manager,
		cfg:          cfg,
		extractor:    extractor,
		symbolStores: make(map[string]*symbols.Store),
	}
}

// Result summarizes one workspace indexing run.
type Result struct {
	New          bool          `json:"new"`
	DocCount     int           `json:"doc_count"`
	FilesIndexed int           `json:"files_indexed"`
	FilesSkipped int           `json:"files_skipped"`
	FilesFailed  int           `json:"files_failed"`
	FilesDeleted int           `json:"files_deleted"`
	Took         time.Duration `json:"took"`
}

// SymbolStore returns the symbol store for a workspace hash, opening it on
// first use. Returns an error with code SymbolStoreUnavailable on failure.
func (ix *Indexer) SymbolStore(hash string) (*symbols.Store, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if s, ok := ix.symbolStores[hash]; ok {
		return s, nil
	}
	s, err := symbols.Open(ix.manager.Paths().SymbolDBPath(hash), hash)
	if err != nil {
		return nil, err
	}
	ix.symbolStores[hash] = s
	return s, nil
}

// Close closes cached symbol stores.
func (ix *Indexer) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var firstErr error
	for _, s := range ix.symbolStores {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	ix.symbolStores = make(map[string]*symbols.Store)
	return firstErr
}

// IndexWorkspace walks a workspace and brings the index up to date.
// Unchanged files (same size and mtime) are skipped unless force is set.
// A single failing file logs and skips; cancellation leaves the index
// consistent with whatever committed.
func (ix *Indexer) IndexWorkspace(ctx context.Context, wsPath string, force bool) (*Result, error) {
	start := time.Now()

	init, err := ix.manager.Initialize(ctx, wsPath)
	if err != nil {
		return nil, err
	}

	known := map[string]index.FileStat{}
	if !force && !init.New {
		if stats, err := ix.manager.StoredFileStats(ctx, wsPath); err == nil {
			known = stats
		}
	}

	// Phase 1: enumerate candidates.
	var toIndex []WalkedFile
	seen := map[string]struct{}{}
	result := &Result{New: init.New}

	walkErr := Walk(ctx, wsPath, WalkOptions{
		IncludeExtensions: ix.cfg.Paths.IncludeExtensions,
		Exclude:           ix.cfg.Paths.Exclude,
		MaxFileSize:       ix.cfg.Paths.MaxFileSize,
	}, func(f WalkedFile) error {
		seen[f.AbsPath] = struct{}{}
		if prev, ok := known[f.AbsPath]; ok && prev.Size == f.Size && prev.LastModified == f.ModTime {
			result.FilesSkipped++
			return nil
		}
		toIndex = append(toIndex, f)
		return nil
	})
	if walkErr != nil {
		if ctx.Err() != nil {
			return result, cserr.Wrap(cserr.ErrCodeCancelled, ctx.Err())
		}
		return result, cserr.Wrap(cserr.ErrCodeIndexFailed, walkErr)
	}

	// Phase 2: bulk symbol extraction for changed files.
	extractions := ix.extractBulk(ctx, wsPath, toIndex)

	// Phase 3: read, build, and index with a bounded worker pool feeding a
	// single writer.
	docs := make(chan *index.Document, ix.cfg.Performance.Workers*2)

	var writeErr error
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for doc := range docs {
			if writeErr != nil {
				continue
			}
			if err := ix.manager.Index(ctx, wsPath, []*index.Document{doc}); err != nil {
				writeErr = err
			} else {
				result.FilesIndexed++
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Performance.Workers)

	var failed sync.Map
	for _, f := range toIndex {
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			read, err := ReadFile(f.AbsPath)
			if err != nil {
				failed.Store(f.AbsPath, err)
				slog.Warn("failed to read file, skipping",
					slog.String("path", f.AbsPath),
					slog.String("error", err.Error()))
				return nil
			}
			if read.Binary {
				return nil
			}

			doc := index.NewDocument(f.AbsPath, f.RelPath, read.Content,
				time.Unix(f.ModTime, 0), f.Size, maxStoredLines)
			if ex, ok := extractions[f.AbsPath]; ok {
				doc.SetTypeInfo(typeInfoFrom(ex))
			}

			select {
			case docs <- doc:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	groupErr := g.Wait()
	close(docs)
	<-writerDone

	failed.Range(func(_, _ interface{}) bool {
		result.FilesFailed++
		return true
	})

	if groupErr != nil && ctx.Err() != nil {
		// Cancellation mid-index: committed state stays valid; pending
		// buffered writes flush on the next commit or die on clear.
		return result, cserr.Wrap(cserr.ErrCodeCancelled, ctx.Err())
	}
	if writeErr != nil {
		return result, writeErr
	}

	// Phase 4: remove documents for files no longer on disk.
	for path := range known {
		if _, still := seen[path]; !still {
			if err := ix.manager.Delete(ctx, wsPath, path); err == nil {
				result.FilesDeleted++
				ix.deleteSymbols(ctx, wsPath, path)
			}
		}
	}

	if err := ix.manager.Commit(ctx, wsPath); err != nil {
		return result, err
	}

	if count, err := ix.docCount(wsPath); err == nil {
		result.DocCount = count
	}
	result.Took = time.Since(start)
	return result, nil
}

// IndexFile indexes one file incrementally (the watcher path).
func (ix *Indexer) IndexFile(ctx context.Context, wsPath, filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return cserr.Wrap(cserr.ErrCodeFileIO, err)
	}
	if ix.cfg.Paths.MaxFileSize > 0 && info.Size() > ix.cfg.Paths.MaxFileSize {
		return nil
	}

	read, err := ReadFile(filePath)
	if err != nil {
		return cserr.Wrap(cserr.ErrCodeFileIO, err)
	}
	if read.Binary {
		return nil
	}

	rel, err := filepath.Rel(wsPath, filePath)
	if err != nil {
		rel = filepath.Base(filePath)
	}

	doc := index.NewDocument(filePath, rel, read.Content, info.ModTime(), info.Size(), maxStoredLines)

	extractions := ix.extractBulk(ctx, wsPath, []WalkedFile{{AbsPath: filePath, RelPath: rel}})
	if ex, ok := extractions[filePath]; ok {
		doc.SetTypeInfo(typeInfoFrom(ex))
	}

	return ix.manager.Index(ctx, wsPath, []*index.Document{doc})
}

// RemoveFile deletes one file from the index and symbol store.
func (ix *Indexer) RemoveFile(ctx context.Context, wsPath, filePath string) error {
	if err := ix.manager.Delete(ctx, wsPath, filePath); err != nil {
		return err
	}
	ix.deleteSymbols(ctx, wsPath, filePath)
	return nil
}

// extractBulk runs the external extractor and upserts results into the
// symbol store. Extraction failure degrades (no enrichment), never aborts.
func (ix *Indexer) extractBulk(ctx context.Context, wsPath string, files []WalkedFile) map[string]*symbols.FileExtraction {
	out := map[string]*symbols.FileExtraction{}
	if ix.extractor == nil || len(files) == 0 {
		return out
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.AbsPath
	}

	extractions, err := ix.extractor.ExtractBulk(ctx, paths)
	if err != nil {
		slog.Warn("symbol extraction failed, continuing without enrichment",
			slog.String("workspace", wsPath),
			slog.String("error", err.Error()))
		return out
	}

	store, storeErr := ix.storeFor(wsPath)
	for _, ex := range extractions {
		out[ex.FilePath] = ex
		if storeErr == nil {
			if err := store.UpsertFile(ctx, ex); err != nil {
				slog.Warn("failed to persist symbols",
					slog.String("file", ex.FilePath),
					slog.String("error", err.Error()))
			}
		}
	}
	return out
}

func (ix *Indexer) deleteSymbols(ctx context.Context, wsPath, filePath string) {
	store, err := ix.storeFor(wsPath)
	if err != nil {
		return
	}
	if err := store.DeleteForFile(ctx, filePath); err != nil {
		slog.Warn("failed to delete symbols",
			slog.String("file", filePath),
			slog.String("error", err.Error()))
	}
}

func (ix *Indexer) storeFor(wsPath string) (*symbols.Store, error) {
	ic, err := ix.manager.Get(wsPath)
	if err != nil {
		return nil, err
	}
	return ix.SymbolStore(ic.Hash)
}

func (ix *Indexer) docCount(wsPath string) (int, error) {
	ic, err := ix.manager.Get(wsPath)
	if err != nil {
		return 0, err
	}
	n, err := ic.DocCount()
	return int(n), err
}

// typeInfoFrom summarizes an extraction into the embedded document summary.
func typeInfoFrom(ex *symbols.FileExtraction) *index.TypeInfo {
	info := &index.TypeInfo{}
	methodsByType := map[string][]string{}

	for _, sym := range ex.Symbols {
		switch sym.Kind {
		case symbols.KindMethod, symbols.KindFunction:
			if sym.ContainingType != "" {
				methodsByType[sym.ContainingType] = append(methodsByType[sym.ContainingType], sym.Name)
			}
		}
	}
	for _, sym := range ex.Symbols {
		switch sym.Kind {
		case symbols.KindClass, symbols.KindInterface, symbols.KindStruct, symbols.KindEnum:
			info.Types = append(info.Types, index.TypeEntry{
				Name:    sym.Name,
				Kind:    string(sym.Kind),
				Line:    sym.StartLine,
				Methods: methodsByType[sym.Name],
			})
		}
	}
	return info
}
