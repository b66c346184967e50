package index

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/coa-dev/codesearch/internal/cserr"
	"github.com/coa-dev/codesearch/internal/query"
	"github.com/coa-dev/codesearch/internal/scoring"
)

// rescoreMultiplier widens the candidate pool fetched from the base query so
// the composite scorer can reorder before truncation.
const rescoreMultiplier = 3

// Search runs the full query pipeline for one workspace: build the base
// query, capture a reader snapshot, collect candidates, apply the composite
// scorer, and shape hits.
func (m *Manager) Search(ctx context.Context, wsPath string, spec query.Spec, opts SearchOptions) (*SearchResult, error) {
	ic, err := m.Get(wsPath)
	if err != nil {
		return nil, err
	}

	if opts.CaseSensitive {
		spec.CaseSensitive = true
	}

	built, err := query.Build(spec)
	if err != nil {
		return nil, err
	}

	if opts.MaxResults <= 0 {
		opts.MaxResults = m.cfg.Search.MaxResults
	}

	var snap *Snapshot
	if opts.Fresh {
		snap = ic.FreshSearcher()
	} else {
		snap = ic.Searcher()
	}

	start := time.Now()

	fetch := opts.MaxResults * rescoreMultiplier
	req := bleve.NewSearchRequestOptions(built.Query, fetch, 0, false)
	req.Fields = storedFields

	res, err := snap.Index().SearchInContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled searches return no results, never partial ones.
			return nil, cserr.Wrap(cserr.ErrCodeCancelled, ctx.Err())
		}
		return nil, cserr.Wrap(cserr.ErrCodeSearchFailed, err)
	}

	qc := scoring.NewQueryContext(spec.Raw, built.Terms, spec.CaseSensitive)
	factors := scoring.DefaultFactors()

	scored := make([]*scoring.Scored, 0, len(res.Hits))
	views := make(map[*scoring.DocView]*storedDoc, len(res.Hits))
	for _, hit := range res.Hits {
		if err := ctx.Err(); err != nil {
			return nil, cserr.Wrap(cserr.ErrCodeCancelled, err)
		}
		sd := storedDocFromFields(hit.ID, hit.Fields)
		view := &scoring.DocView{
			Path:         sd.Path,
			RelativePath: sd.RelativePath,
			Filename:     sd.Filename,
			Extension:    sd.Extension,
			Language:     sd.Language,
			LastModified: sd.LastModified,
			Size:         sd.Size,
			TypeNames:    sd.typeNames(),
			Lines:        sd.lines(),
		}
		views[view] = sd
		scored = append(scored, scoring.Combine(hit.Score, view, qc, factors))
	}

	scoring.Rank(scored)
	if len(scored) > opts.MaxResults {
		scored = scored[:opts.MaxResults]
	}

	result := &SearchResult{
		Hits:           make([]SearchHit, 0, len(scored)),
		TotalMatches:   res.Total,
		RefreshVersion: snap.RefreshVersion,
		Took:           time.Since(start),
	}

	for _, s := range scored {
		sd := views[s.Doc]
		hit := SearchHit{
			Path:         sd.Path,
			RelativePath: sd.RelativePath,
			Filename:     sd.Filename,
			Extension:    sd.Extension,
			Language:     sd.Language,
			Score:        s.Final,
			BaseScore:    s.Base,
			LastModified: sd.LastModified,
			Size:         sd.Size,
			TypeInfo:     sd.typeInfo(),
		}
		if opts.Snippets {
			hit.Snippets = extractSnippets(sd.lines(), built.Terms, spec.CaseSensitive, opts.ContextLines, 3)
		}
		result.Hits = append(result.Hits, hit)
	}

	return result, nil
}

// SearchFiles matches workspace file paths against a doublestar glob. A
// pattern that is not a valid glob is compiled as a regular expression and
// matched against relative paths instead.
func (m *Manager) SearchFiles(ctx context.Context, wsPath, pattern, extFilter string, maxResults int) (*FileSearchResult, error) {
	ic, err := m.Get(wsPath)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(pattern) == "" {
		return nil, cserr.InvalidQuery("file pattern is empty", "provide a glob such as **/*.go")
	}
	if maxResults <= 0 {
		maxResults = m.cfg.Search.MaxResults
	}

	snap := ic.Searcher()
	docs, err := allStoredDocs(ctx, snap)
	if err != nil {
		return nil, err
	}

	var re *regexp.Regexp
	if !doublestar.ValidatePattern(pattern) {
		re, err = regexp.Compile(pattern)
		if err != nil {
			return nil, cserr.InvalidQuery(
				"pattern is neither a valid glob nor a valid regex",
				"use doublestar glob syntax, e.g. src/**/*Factory*.cs")
		}
	}

	result := &FileSearchResult{}
	for _, sd := range docs {
		if err := ctx.Err(); err != nil {
			return nil, cserr.Wrap(cserr.ErrCodeCancelled, err)
		}
		if extFilter != "" && !strings.EqualFold(sd.Extension, extFilter) {
			continue
		}

		matched := false
		if re != nil {
			matched = re.MatchString(sd.RelativePath)
		} else {
			matched, _ = doublestar.Match(pattern, sd.RelativePath)
			if !matched {
				// A bare name should match anywhere in the tree.
				matched, _ = doublestar.Match("**/"+pattern, sd.RelativePath)
			}
		}
		if !matched {
			continue
		}

		result.Total++
		if len(result.Matches) < maxResults {
			result.Matches = append(result.Matches, FileMatch{
				Path:         sd.Path,
				RelativePath: sd.RelativePath,
				Extension:    sd.Extension,
				LastModified: sd.LastModified,
				Size:         sd.Size,
			})
		}
	}

	sort.Slice(result.Matches, func(i, j int) bool {
		return result.Matches[i].RelativePath < result.Matches[j].RelativePath
	})
	return result, nil
}

// SearchLines finds individual matching lines across the workspace with
// surrounding context.
func (m *Manager) SearchLines(ctx context.Context, wsPath, queryStr string, contextLines, maxResults int) (*LineSearchResult, error) {
	if maxResults <= 0 {
		maxResults = m.cfg.Search.MaxResults
	}

	// Candidate documents come from a standard search; line scanning runs
	// over their stored lines.
	res, err := m.Search(ctx, wsPath, query.Spec{Raw: queryStr, Type: query.TypeStandard}, SearchOptions{
		MaxResults: maxResults,
	})
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(queryStr))
	result := &LineSearchResult{}

	ic, err := m.Get(wsPath)
	if err != nil {
		return nil, err
	}
	snap := ic.Searcher()

	for _, hit := range res.Hits {
		sd, err := storedDocByID(snap, hit.Path)
		if err != nil || sd == nil {
			continue
		}
		lines := sd.lines()
		for i, line := range lines {
			if !strings.Contains(strings.ToLower(line), needle) {
				continue
			}
			match := LineMatch{
				Path: sd.Path,
				Line: i + 1,
				Text: line,
			}
			if contextLines > 0 {
				match.Before = contextSlice(lines, i-contextLines, i)
				match.After = contextSlice(lines, i+1, i+1+contextLines)
			}
			result.Total++
			if len(result.Matches) < maxResults {
				result.Matches = append(result.Matches, match)
			}
		}
	}

	return result, nil
}

// RecentFiles returns files modified within the time frame, newest first.
func (m *Manager) RecentFiles(ctx context.Context, wsPath string, since time.Time, maxResults int) (*FileSearchResult, error) {
	ic, err := m.Get(wsPath)
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		maxResults = m.cfg.Search.MaxResults
	}

	cutoff := float64(since.Unix())
	q := bleve.NewNumericRangeQuery(&cutoff, nil)
	q.SetField("last_modified")

	snap := ic.Searcher()
	req := bleve.NewSearchRequestOptions(q, maxResults, 0, false)
	req.Fields = storedFields
	req.SortBy([]string{"-last_modified"})

	res, err := snap.Index().SearchInContext(ctx, req)
	if err != nil {
		return nil, cserr.Wrap(cserr.ErrCodeSearchFailed, err)
	}

	result := &FileSearchResult{Total: int(res.Total)}
	for _, hit := range res.Hits {
		sd := storedDocFromFields(hit.ID, hit.Fields)
		result.Matches = append(result.Matches, FileMatch{
			Path:         sd.Path,
			RelativePath: sd.RelativePath,
			Extension:    sd.Extension,
			LastModified: sd.LastModified,
			Size:         sd.Size,
		})
	}
	return result, nil
}

// FileStat is the change-detection view of one indexed file.
type FileStat struct {
	Size         int64
	LastModified int64
}

// StoredFileStats returns size and mtime for every indexed file, keyed by
// absolute path. The pipeline uses it to skip unchanged files.
func (m *Manager) StoredFileStats(ctx context.Context, wsPath string) (map[string]FileStat, error) {
	ic, err := m.Get(wsPath)
	if err != nil {
		return nil, err
	}

	docs, err := allStoredDocs(ctx, ic.Searcher())
	if err != nil {
		return nil, err
	}

	stats := make(map[string]FileStat, len(docs))
	for _, sd := range docs {
		stats[sd.Path] = FileStat{Size: sd.Size, LastModified: sd.LastModified}
	}
	return stats, nil
}

// LineAt returns one stored line of an indexed file (1-based), or "".
// Reference occurrences use it for snippet text.
func (m *Manager) LineAt(wsPath, filePath string, line int) string {
	ic, err := m.Get(wsPath)
	if err != nil {
		return ""
	}
	sd, err := storedDocByID(ic.Searcher(), filePath)
	if err != nil || sd == nil {
		return ""
	}
	lines := sd.lines()
	if line < 1 || line > len(lines) {
		return ""
	}
	return lines[line-1]
}

// extractSnippets scans stored lines for query terms, returning up to
// maxSnippets matching lines with context.
func extractSnippets(lines, terms []string, caseSensitive bool, contextLines, maxSnippets int) []Snippet {
	if len(lines) == 0 || len(terms) == 0 {
		return nil
	}

	var snippets []Snippet
	for i, line := range lines {
		hay := line
		if !caseSensitive {
			hay = strings.ToLower(line)
		}
		for _, term := range terms {
			if !caseSensitive {
				term = strings.ToLower(term)
			}
			if strings.Contains(hay, term) {
				s := Snippet{Line: i + 1, Text: line}
				if contextLines > 0 {
					s.Before = contextSlice(lines, i-contextLines, i)
					s.After = contextSlice(lines, i+1, i+1+contextLines)
				}
				snippets = append(snippets, s)
				break
			}
		}
		if len(snippets) >= maxSnippets {
			break
		}
	}
	return snippets
}

func contextSlice(lines []string, from, to int) []string {
	if from < 0 {
		from = 0
	}
	if to > len(lines) {
		to = len(lines)
	}
	if from >= to {
		return nil
	}
	out := make([]string, to-from)
	copy(out, lines[from:to])
	return out
}

// allStoredDocs fetches every document's stored fields from a snapshot.
func allStoredDocs(ctx context.Context, snap *Snapshot) ([]*storedDoc, error) {
	count, err := snap.Index().DocCount()
	if err != nil {
		return nil, cserr.Wrap(cserr.ErrCodeSearchFailed, err)
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	req.Fields = storedFields

	res, err := snap.Index().SearchInContext(ctx, req)
	if err != nil {
		return nil, cserr.Wrap(cserr.ErrCodeSearchFailed, err)
	}

	docs := make([]*storedDoc, 0, len(res.Hits))
	for _, hit := range res.Hits {
		docs = append(docs, storedDocFromFields(hit.ID, hit.Fields))
	}
	return docs, nil
}

// storedDocByID fetches one document's stored fields by path.
func storedDocByID(snap *Snapshot, id string) (*storedDoc, error) {
	q := bleve.NewDocIDQuery([]string{id})
	req := bleve.NewSearchRequestOptions(q, 1, 0, false)
	req.Fields = storedFields

	res, err := snap.Index().Search(req)
	if err != nil {
		return nil, err
	}
	if len(res.Hits) == 0 {
		return nil, nil
	}
	return storedDocFromFields(res.Hits[0].ID, res.Hits[0].Fields), nil
}
