package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Applier receives settled watcher events. The indexing pipeline implements
// it; the service stays ignorant of index internals.
type Applier interface {
	// IndexFile (re)indexes one file.
	IndexFile(ctx context.Context, path string) error

	// RemoveFile deletes one file from the index.
	RemoveFile(ctx context.Context, path string) error

	// Rewalk re-indexes the whole workspace; the back-pressure fallback.
	Rewalk(ctx context.Context) error

	// Commit makes applied changes visible to searches.
	Commit(ctx context.Context) error
}

// ServiceOptions configures a workspace watch service.
type ServiceOptions struct {
	// Debounce is the settle window for event coalescing.
	Debounce time.Duration

	// AutoCommit is the maximum interval between commits while changes
	// are flowing.
	AutoCommit time.Duration

	// MaxQueue is the pending-event depth beyond which the service marks
	// the workspace dirty and schedules a bounded re-walk instead of
	// per-file updates.
	MaxQueue int
}

func (o ServiceOptions) withDefaults() ServiceOptions {
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}
	if o.AutoCommit <= 0 {
		o.AutoCommit = 10 * time.Second
	}
	if o.MaxQueue <= 0 {
		o.MaxQueue = 512
	}
	return o
}

// Service wires one workspace's watcher through the debouncer to the index.
type Service struct {
	root     string
	opts     ServiceOptions
	applier  Applier
	watcher  *Watcher
	debounce *Debouncer

	mu      sync.Mutex
	dirty   bool
	pending int

	stopOnce sync.Once
	done     chan struct{}
}

// NewService creates a watch service for a workspace root.
func NewService(root string, applier Applier, opts ServiceOptions) (*Service, error) {
	opts = opts.withDefaults()

	watcher, err := NewWatcher(root, opts.MaxQueue*2)
	if err != nil {
		return nil, err
	}

	return &Service{
		root:     root,
		opts:     opts,
		applier:  applier,
		watcher:  watcher,
		debounce: NewDebouncer(opts.Debounce),
		done:     make(chan struct{}),
	}, nil
}

// Start runs the service until the context is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) {
	s.watcher.Start(ctx)
	go s.pump(ctx)
	go s.apply(ctx)
}

// Stop shuts the service down. Safe to call multiple times.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.watcher.Stop()
		s.debounce.Stop()
	})
}

// pump moves raw watcher events into the debouncer, tracking queue depth
// for back-pressure.
func (s *Service) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case err, ok := <-s.watcher.Errors():
			if ok && err != nil {
				slog.Warn("watcher error", slog.String("error", err.Error()))
			}
		case ev, ok := <-s.watcher.Events():
			if !ok {
				return
			}
			if ev.IsDir {
				continue
			}

			s.debounce.Add(ev)
			if s.debounce.PendingCount() > s.opts.MaxQueue {
				s.markDirty()
			}
		}
	}
}

// apply drains settled batches and commits on drain or on the auto-commit
// interval, whichever comes first.
func (s *Service) apply(ctx context.Context) {
	ticker := time.NewTicker(s.opts.AutoCommit)
	defer ticker.Stop()

	changed := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return

		case batch, ok := <-s.debounce.Output():
			if !ok {
				return
			}
			if s.consumeDirty(ctx) {
				changed = true
				continue
			}
			for _, ev := range batch {
				s.applyEvent(ctx, ev)
			}
			changed = true

			// Queue drained: commit now rather than waiting for the tick.
			if s.debounce.PendingCount() == 0 {
				s.commit(ctx)
				changed = false
			}

		case <-ticker.C:
			if s.consumeDirty(ctx) {
				changed = true
			}
			if changed {
				s.commit(ctx)
				changed = false
			}
		}
	}
}

func (s *Service) applyEvent(ctx context.Context, ev FileEvent) {
	var err error
	switch ev.Operation {
	case OpCreate, OpModify:
		err = s.applier.IndexFile(ctx, ev.Path)
	case OpDelete, OpRename:
		// A rename's new path arrives separately as a create.
		err = s.applier.RemoveFile(ctx, ev.Path)
	}
	if err != nil {
		slog.Warn("failed to apply file event",
			slog.String("path", ev.Path),
			slog.String("operation", ev.Operation.String()),
			slog.String("error", err.Error()))
	}
}

func (s *Service) commit(ctx context.Context) {
	if err := s.applier.Commit(ctx); err != nil {
		slog.Warn("watcher commit failed", slog.String("error", err.Error()))
	}
}

func (s *Service) markDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		s.dirty = true
		slog.Info("watch queue over limit, degrading to re-walk",
			slog.String("workspace", s.root))
	}
}

// consumeDirty runs the bounded re-walk when the dirty flag is set.
// Individual batch events are skipped while dirty; the walk covers them.
func (s *Service) consumeDirty(ctx context.Context) bool {
	s.mu.Lock()
	wasDirty := s.dirty
	s.dirty = false
	s.mu.Unlock()

	if !wasDirty {
		return false
	}
	if err := s.applier.Rewalk(ctx); err != nil {
		slog.Warn("dirty re-walk failed", slog.String("error", err.Error()))
	}
	return true
}
