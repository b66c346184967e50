package respond

import (
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/coa-dev/codesearch/internal/index"
)

// Insights derives deterministic observations from a result set: file-type
// distribution, directory concentration, score spread, and recency. No
// model calls, same input same output.
func Insights(res *index.SearchResult) []string {
	if len(res.Hits) == 0 {
		return []string{"no matches found"}
	}

	var insights []string

	// File-type distribution.
	extCounts := map[string]int{}
	for _, h := range res.Hits {
		extCounts[h.Extension]++
	}
	type extCount struct {
		ext string
		n   int
	}
	var exts []extCount
	for ext, n := range extCounts {
		exts = append(exts, extCount{ext, n})
	}
	sort.Slice(exts, func(i, j int) bool {
		if exts[i].n != exts[j].n {
			return exts[i].n > exts[j].n
		}
		return exts[i].ext < exts[j].ext
	})
	if len(exts) == 1 {
		insights = append(insights, fmt.Sprintf("all %d hits are %s files", len(res.Hits), exts[0].ext))
	} else {
		insights = append(insights, fmt.Sprintf("%d hits across %d file types, mostly %s (%d)",
			len(res.Hits), len(exts), exts[0].ext, exts[0].n))
	}

	// Directory concentration.
	dirCounts := map[string]int{}
	for _, h := range res.Hits {
		dirCounts[path.Dir(h.RelativePath)]++
	}
	var topDir string
	var topN int
	for dir, n := range dirCounts {
		if n > topN || (n == topN && dir < topDir) {
			topDir, topN = dir, n
		}
	}
	if topN > len(res.Hits)/2 && len(res.Hits) > 1 {
		insights = append(insights, fmt.Sprintf("matches concentrate in %s (%d of %d)",
			topDir, topN, len(res.Hits)))
	}

	// Score spread.
	top := res.Hits[0].Score
	bottom := res.Hits[len(res.Hits)-1].Score
	if top > 0 && top-bottom > 0.5*top {
		insights = append(insights, "wide score spread: top hits are much stronger than the tail")
	} else if len(res.Hits) > 1 {
		insights = append(insights, "scores cluster tightly; ordering past the first few is weak signal")
	}

	// Recency.
	weekAgo := time.Now().Add(-7 * 24 * time.Hour).Unix()
	recent := 0
	for _, h := range res.Hits {
		if h.LastModified >= weekAgo {
			recent++
		}
	}
	if recent > 0 {
		insights = append(insights, fmt.Sprintf("%d of %d matched files changed in the last week",
			recent, len(res.Hits)))
	}

	return insights
}

// Actions derives follow-up suggestions from a result set.
func Actions(res *index.SearchResult) []string {
	if len(res.Hits) == 0 {
		return []string{
			"broaden the query or try search_type=fuzzy",
			"verify the workspace is indexed with index_workspace",
		}
	}

	actions := []string{
		fmt.Sprintf("read top hit %s with get_symbols_overview", res.Hits[0].RelativePath),
	}
	if res.TotalMatches > uint64(len(res.Hits)) {
		actions = append(actions, fmt.Sprintf(
			"raise max_results to see more of the %d total matches", res.TotalMatches))
	}
	return actions
}
