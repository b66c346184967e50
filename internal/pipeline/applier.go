package pipeline

import (
	"context"
)

// WorkspaceApplier adapts the Indexer to the watch.Applier contract for one
// workspace.
type WorkspaceApplier struct {
	ix *Indexer
	ws string
}

// NewWorkspaceApplier creates the watcher bridge for a workspace.
func NewWorkspaceApplier(ix *Indexer, wsPath string) *WorkspaceApplier {
	return &WorkspaceApplier{ix: ix, ws: wsPath}
}

// IndexFile implements watch.Applier.
func (a *WorkspaceApplier) IndexFile(ctx context.Context, path string) error {
	return a.ix.IndexFile(ctx, a.ws, path)
}

// RemoveFile implements watch.Applier.
func (a *WorkspaceApplier) RemoveFile(ctx context.Context, path string) error {
	return a.ix.RemoveFile(ctx, a.ws, path)
}

// Rewalk implements watch.Applier; the back-pressure fallback re-indexes
// the whole workspace with change detection doing the bounding.
func (a *WorkspaceApplier) Rewalk(ctx context.Context) error {
	_, err := a.ix.IndexWorkspace(ctx, a.ws, false)
	return err
}

// Commit implements watch.Applier.
func (a *WorkspaceApplier) Commit(ctx context.Context) error {
	return a.ix.manager.Commit(ctx, a.ws)
}
