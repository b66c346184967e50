// Package reconcile brings on-disk index state back to health at process
// start: stale write locks are swept, unclean shutdowns verified and
// repaired, and symbol extractions that lag their files re-enqueued.
package reconcile

import (
	"context"
	"log/slog"
	"os"

	"github.com/coa-dev/codesearch/internal/config"
	"github.com/coa-dev/codesearch/internal/cserr"
	"github.com/coa-dev/codesearch/internal/index"
	"github.com/coa-dev/codesearch/internal/pipeline"
)

// WorkspaceReport is the reconciliation outcome for one index directory.
type WorkspaceReport struct {
	Hash          string `json:"hash"`
	WorkspacePath string `json:"workspace_path,omitempty"`

	StaleLockRemoved bool `json:"stale_lock_removed,omitempty"`
	UncleanShutdown  bool `json:"unclean_shutdown,omitempty"`
	Corrupt          bool `json:"corrupt,omitempty"`
	Repaired         bool `json:"repaired,omitempty"`
	StaleExtractions int  `json:"stale_extractions,omitempty"`

	Error string `json:"error,omitempty"`
}

// Report is the full reconciliation outcome.
type Report struct {
	Workspaces []WorkspaceReport `json:"workspaces"`
}

// Reconciler runs the startup pass.
type Reconciler struct {
	cfg     *config.Config
	manager *index.Manager
	indexer *pipeline.Indexer
}

// New creates a reconciler.
func New(cfg *config.Config, manager *index.Manager, indexer *pipeline.Indexer) *Reconciler {
	return &Reconciler{cfg: cfg, manager: manager, indexer: indexer}
}

// Run reconciles every index directory found under the base dir.
// Per-workspace failures are recorded, never fatal to the pass, except that
// corruption with auto-repair disabled surfaces IndexCorrupt in the report.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	hashes, err := r.manager.Paths().ListIndexDirs()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, hash := range hashes {
		if err := ctx.Err(); err != nil {
			return report, cserr.Wrap(cserr.ErrCodeCancelled, err)
		}
		report.Workspaces = append(report.Workspaces, r.reconcileOne(ctx, hash))
	}
	return report, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, hash string) WorkspaceReport {
	wr := WorkspaceReport{Hash: hash}
	paths := r.manager.Paths()
	indexDir := paths.IndexDir(hash)

	// 1. Sweep stale write locks whose owning process died.
	if index.SweepStaleLock(indexDir) {
		wr.StaleLockRemoved = true
		slog.Info("removed stale write lock", slog.String("index", indexDir))
	}

	wsPath, known := paths.TryReverse(hash)
	wr.WorkspacePath = wsPath

	// 2. Unclean shutdown: verify integrity read-only.
	md, _ := paths.ReadMetadata(hash)
	if md != nil && !md.CleanShutdown {
		wr.UncleanShutdown = true
	}

	if err := index.ValidateIntegrity(indexDir); err != nil {
		wr.Corrupt = true
		// 3. Repair or surface, per configuration.
		if !r.cfg.Repair.Auto {
			wr.Error = cserr.IndexCorrupt(indexDir, err).Error()
			return wr
		}
		if !known {
			// No workspace mapping to rebuild from; drop the directory.
			_ = os.RemoveAll(indexDir)
			wr.Repaired = true
			return wr
		}
		if _, rerr := r.manager.Repair(ctx, wsPath, index.RepairOptions{Backup: true}); rerr != nil {
			wr.Error = rerr.Error()
			return wr
		}
		if _, rerr := r.indexer.IndexWorkspace(ctx, wsPath, true); rerr != nil {
			wr.Error = rerr.Error()
			return wr
		}
		wr.Repaired = true
	} else if wr.UncleanShutdown && md != nil {
		// Index verified fine; restore the clean marker.
		md.CleanShutdown = true
		_ = paths.WriteMetadata(hash, md)
	}

	// 4. Re-extract files whose symbols lag the file mtime.
	if known {
		wr.StaleExtractions = r.reextractStale(ctx, hash, wsPath)
	}

	return wr
}

// reextractStale re-indexes files whose symbol store timestamp is older
// than the file's mtime. Returns the number of stragglers enqueued.
func (r *Reconciler) reextractStale(ctx context.Context, hash, wsPath string) int {
	store, err := r.indexer.SymbolStore(hash)
	if err != nil {
		return 0
	}
	stamps, err := store.Stamps(ctx)
	if err != nil {
		return 0
	}

	stale := 0
	for _, stamp := range stamps {
		info, err := os.Stat(stamp.FilePath)
		if err != nil {
			continue
		}
		if info.ModTime().After(stamp.ExtractedAt) {
			stale++
			if err := r.indexer.IndexFile(ctx, wsPath, stamp.FilePath); err != nil {
				slog.Warn("failed to re-extract stale file",
					slog.String("file", stamp.FilePath),
					slog.String("error", err.Error()))
			}
		}
	}
	if stale > 0 {
		_ = r.manager.Commit(ctx, wsPath)
	}
	return stale
}
