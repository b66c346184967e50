package index

import (
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memIndex(t *testing.T) bleve.Index {
	t.Helper()
	m, err := buildIndexMapping()
	require.NoError(t, err)
	idx, err := bleve.NewMemOnly(m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestReaderCacheReturnsFreshSnapshot(t *testing.T) {
	idx := memIndex(t)
	rc := NewReaderCache(time.Minute)

	s1 := rc.GetSearcher(idx, 1)
	s2 := rc.GetSearcher(idx, 1)
	assert.Same(t, s1, s2, "fresh snapshot must be reused")
	assert.Equal(t, uint64(1), rc.RefreshVersion())
}

func TestReaderCacheReopensOnGenerationAdvance(t *testing.T) {
	idx := memIndex(t)
	rc := NewReaderCache(time.Minute)

	s1 := rc.GetSearcher(idx, 1)
	s2 := rc.GetSearcher(idx, 2)
	assert.NotSame(t, s1, s2)
	assert.Equal(t, uint64(2), s2.Generation)
	assert.Greater(t, s2.RefreshVersion, s1.RefreshVersion)
}

func TestReaderCacheReopensAfterMaxAge(t *testing.T) {
	idx := memIndex(t)
	rc := NewReaderCache(10 * time.Millisecond)

	s1 := rc.GetSearcher(idx, 1)
	time.Sleep(25 * time.Millisecond)
	s2 := rc.GetSearcher(idx, 1)
	assert.NotSame(t, s1, s2, "aged snapshot must reopen")
}

func TestInvalidateForcesReopen(t *testing.T) {
	idx := memIndex(t)
	rc := NewReaderCache(time.Minute)

	s1 := rc.GetSearcher(idx, 1)
	rc.InvalidateReader()
	s2 := rc.GetSearcher(idx, 1)
	assert.NotSame(t, s1, s2)
}

func TestGetFreshSearcherAlwaysReopens(t *testing.T) {
	idx := memIndex(t)
	rc := NewReaderCache(time.Minute)

	s1 := rc.GetSearcher(idx, 1)
	s2 := rc.GetFreshSearcher(idx, 1)
	assert.NotSame(t, s1, s2)
}

func TestRefreshVersionStrictlyMonotonic(t *testing.T) {
	idx := memIndex(t)
	rc := NewReaderCache(time.Minute)

	var last uint64
	for gen := uint64(1); gen <= 10; gen++ {
		s := rc.GetFreshSearcher(idx, gen)
		assert.Greater(t, s.RefreshVersion, last)
		last = s.RefreshVersion
	}
}
