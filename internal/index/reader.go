package index

import (
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
)

// Snapshot is one generation of the reader. Searches run against a captured
// Snapshot so a concurrent refresh never swaps state under them.
type Snapshot struct {
	idx bleve.Index

	// Generation is the writer generation this snapshot reflects.
	Generation uint64

	// RefreshVersion is the monotonic reopen counter at capture time.
	RefreshVersion uint64

	// OpenedAt is when this snapshot was (re)opened.
	OpenedAt time.Time
}

// Index returns the underlying searchable index for this snapshot.
func (s *Snapshot) Index() bleve.Index {
	return s.idx
}

// ReaderCache tracks the near-real-time reader for one IndexContext.
//
// State machine:
//
//	[None] --first search--> [Fresh(gen)]
//	[Fresh] --age > maxAge or writer gen advanced--> [Stale]
//	[Stale] --next search--> reopen -> [Fresh(gen')]
//	[Fresh] --commit / InvalidateReader--> [Invalidated]
//	[Invalidated] --next search--> reopen -> [Fresh(gen')]
//
// The underlying index applies writes to its live view, so a "reopen" here
// is capturing a fresh snapshot with current generation bookkeeping rather
// than reopening segment files; the visibility contract is the same.
type ReaderCache struct {
	mu             sync.Mutex
	snapshot       *Snapshot
	lastUpdate     time.Time
	lastGeneration uint64
	refreshVersion uint64
	invalidated    bool
	maxAge         time.Duration
}

// NewReaderCache creates a reader cache with the given freshness window.
func NewReaderCache(maxAge time.Duration) *ReaderCache {
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}
	return &ReaderCache{maxAge: maxAge}
}

// GetSearcher returns the cached snapshot if fresh, otherwise reopens
// against the current writer generation.
func (r *ReaderCache) GetSearcher(idx bleve.Index, writerGen uint64) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snapshot != nil && !r.invalidated &&
		time.Since(r.lastUpdate) <= r.maxAge &&
		r.lastGeneration >= writerGen {
		return r.snapshot
	}

	return r.reopenLocked(idx, writerGen)
}

// GetFreshSearcher forces a reopen unconditionally. Used after large batch
// commits where the caller must observe every write.
func (r *ReaderCache) GetFreshSearcher(idx bleve.Index, writerGen uint64) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reopenLocked(idx, writerGen)
}

// InvalidateReader marks the current reader disposed; the next search
// rebuilds it. Called at commit time to guarantee read-your-writes.
func (r *ReaderCache) InvalidateReader() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = true
	r.snapshot = nil
}

// RefreshVersion returns the monotonic reopen counter.
func (r *ReaderCache) RefreshVersion() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshVersion
}

// LastGeneration returns the writer generation of the current reader.
func (r *ReaderCache) LastGeneration() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastGeneration
}

func (r *ReaderCache) reopenLocked(idx bleve.Index, writerGen uint64) *Snapshot {
	r.refreshVersion++
	r.lastGeneration = writerGen
	r.lastUpdate = time.Now()
	r.invalidated = false
	r.snapshot = &Snapshot{
		idx:            idx,
		Generation:     writerGen,
		RefreshVersion: r.refreshVersion,
		OpenedAt:       r.lastUpdate,
	}
	return r.snapshot
}
