package respond

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coa-dev/codesearch/internal/index"
)

func makeHits(n int, snippetSize int) []index.SearchHit {
	hits := make([]index.SearchHit, n)
	for i := range hits {
		hits[i] = index.SearchHit{
			Path:         fmt.Sprintf("/ws/src/file%03d.go", i),
			RelativePath: fmt.Sprintf("src/file%03d.go", i),
			Filename:     fmt.Sprintf("file%03d.go", i),
			Extension:    ".go",
			Language:     "go",
			Score:        1.0 - float64(i)*0.01,
			LastModified: time.Now().Unix(),
		}
		if snippetSize > 0 {
			hits[i].Snippets = []index.Snippet{{
				Line: 1,
				Text: strings.Repeat("func handler() {} ", snippetSize),
			}}
		}
	}
	return hits
}

func result(hits []index.SearchHit) *index.SearchResult {
	return &index.SearchResult{Hits: hits, TotalMatches: uint64(len(hits))}
}

func TestReduceWithinBudgetKeepsEverything(t *testing.T) {
	r := NewReducer(20000, nil)
	res := r.Reduce(result(makeHits(5, 1)), ModeFull, 0)

	assert.Len(t, res.Hits, 5)
	assert.False(t, res.Reduced)
	assert.Equal(t, ModeFull, res.Mode)
	assert.NotEmpty(t, res.Insights)
}

func TestReduceEnforcesBudget(t *testing.T) {
	r := NewReducer(20000, nil)

	// Big snippets against a tiny budget force reduction.
	res := r.Reduce(result(makeHits(40, 50)), ModeFull, 800)

	assert.True(t, res.Reduced)
	assert.Equal(t, 40, res.OriginalCount)
	assert.Less(t, len(res.Hits), 40)
	assert.LessOrEqual(t, res.EstimatedTokens, 800,
		"estimated tokens must not exceed the budget")
}

func TestReduceAutoModeSwitch(t *testing.T) {
	r := NewReducer(20000, nil)
	res := r.Reduce(result(makeHits(30, 80)), ModeFull, 600)

	assert.True(t, res.AutoModeSwitch, "heavy reduction must downgrade to summary")
	assert.Equal(t, ModeSummary, res.Mode)
	for _, h := range res.Hits {
		assert.Nil(t, h.Snippets, "summary mode strips snippets")
	}
}

func TestReduceDropsLowestPriorityFirst(t *testing.T) {
	r := NewReducer(20000, nil)
	res := r.Reduce(result(makeHits(30, 30)), ModeFull, 1500)

	require.True(t, res.Reduced)
	require.NotEmpty(t, res.Hits)
	// Surviving hits are the top of the ranked list.
	assert.Equal(t, "src/file000.go", res.Hits[0].RelativePath)
	for i := 1; i < len(res.Hits); i++ {
		assert.Greater(t, res.Hits[i-1].Score, res.Hits[i].Score)
	}
}

func TestReduceEmptyResultIsSummary(t *testing.T) {
	r := NewReducer(20000, nil)
	res := r.Reduce(result(nil), ModeFull, 0)

	assert.Equal(t, ModeSummary, res.Mode)
	assert.Contains(t, res.Insights[0], "no matches")
	assert.NotEmpty(t, res.Actions)
}

func TestReduceStoresHandleOnReduction(t *testing.T) {
	hs, err := NewHandleStore(t.TempDir())
	require.NoError(t, err)

	r := NewReducer(20000, hs)
	res := r.Reduce(result(makeHits(40, 50)), ModeFull, 600)

	require.True(t, res.Reduced)
	require.NotEmpty(t, res.ResultHandle)
	assert.True(t, strings.HasPrefix(res.ResultHandle, "codesearch://results/"))

	data, err := hs.Get(res.ResultHandle)
	require.NoError(t, err)
	assert.Contains(t, string(data), "src/file039.go", "full set must be retrievable")
}

func TestHandleStoreContentAddressed(t *testing.T) {
	hs, err := NewHandleStore(t.TempDir())
	require.NoError(t, err)

	u1, err := hs.Put([]string{"a", "b"})
	require.NoError(t, err)
	u2, err := hs.Put([]string{"a", "b"})
	require.NoError(t, err)
	u3, err := hs.Put([]string{"c"})
	require.NoError(t, err)

	assert.Equal(t, u1, u2)
	assert.NotEqual(t, u1, u3)
}

func TestHandleStoreRejectsTraversal(t *testing.T) {
	hs, err := NewHandleStore(t.TempDir())
	require.NoError(t, err)

	_, err = hs.Get("codesearch://results/../../etc/passwd")
	assert.Error(t, err)
}

func TestInsightsDeterministic(t *testing.T) {
	res := result(makeHits(10, 2))
	i1 := Insights(res)
	i2 := Insights(res)
	assert.Equal(t, i1, i2)
}

func TestEstimatorCounts(t *testing.T) {
	e := NewEstimator()
	assert.Equal(t, 0, e.Count(""))
	assert.Greater(t, e.Count("func main() { fmt.Println(42) }"), 5)
	assert.Greater(t, e.CountJSON(map[string]string{"k": "value"}), 0)
}
