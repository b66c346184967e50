package edit

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/coa-dev/codesearch/internal/cserr"
	"github.com/coa-dev/codesearch/internal/index"
	"github.com/coa-dev/codesearch/internal/query"
)

// ReplaceChange is one file's planned or applied replacement.
type ReplaceChange struct {
	FilePath     string `json:"file_path"`
	Replacements int    `json:"replacements"`

	// Preview holds the first few changed lines as before/after pairs.
	Preview []LineDiff `json:"preview,omitempty"`
}

// LineDiff is one changed line in a preview.
type LineDiff struct {
	Line   int    `json:"line"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// ReplaceResult reports a search-and-replace run.
type ReplaceResult struct {
	Changes      []ReplaceChange `json:"changes"`
	FilesChanged int             `json:"files_changed"`
	TotalEdits   int             `json:"total_edits"`
	Preview      bool            `json:"preview"`
}

// Replacer runs workspace-wide search and replace over indexed files.
type Replacer struct {
	manager *index.Manager
}

// NewReplacer creates a replacer over the index manager.
func NewReplacer(manager *index.Manager) *Replacer {
	return &Replacer{manager: manager}
}

// maxPreviewDiffs bounds the per-file preview size.
const maxPreviewDiffs = 5

// Replace finds pattern matches across the workspace and rewrites them.
// The pattern compiles as a regex; a failed compile falls back to literal
// matching. Preview mode plans without writing.
//
// Conflict detection: each file's mtime is captured when its content is
// read; if the file changes before the write lands, the whole operation
// fails with ConflictDetected and no partial state for that file.
func (r *Replacer) Replace(ctx context.Context, wsPath, pattern, replacement string, preview bool) (*ReplaceResult, error) {
	re, reErr := regexp.Compile(pattern)
	if reErr != nil {
		re = regexp.MustCompile(regexp.QuoteMeta(pattern))
	}

	// Candidate files come from the index rather than a fresh walk.
	found, err := r.manager.Search(ctx, wsPath, query.Spec{Raw: pattern, Type: query.TypeLiteral},
		index.SearchOptions{MaxResults: 500})
	if err != nil || len(found.Hits) == 0 {
		// Regex-only patterns rarely survive literal search; degrade to a
		// standard search over the pattern's word parts.
		fallback, ferr := r.manager.Search(ctx, wsPath, query.Spec{Raw: pattern, Type: query.TypeStandard},
			index.SearchOptions{MaxResults: 500})
		if ferr != nil {
			if err != nil {
				return nil, err
			}
			return nil, ferr
		}
		found = fallback
	}

	result := &ReplaceResult{Preview: preview}

	for _, hit := range found.Hits {
		if err := ctx.Err(); err != nil {
			return nil, cserr.Wrap(cserr.ErrCodeCancelled, err)
		}

		change, err := r.replaceInFile(hit.Path, re, replacement, preview)
		if err != nil {
			return nil, err
		}
		if change == nil {
			continue
		}

		result.Changes = append(result.Changes, *change)
		result.FilesChanged++
		result.TotalEdits += change.Replacements
	}

	return result, nil
}

func (r *Replacer) replaceInFile(path string, re *regexp.Regexp, replacement string, preview bool) (*ReplaceChange, error) {
	info, err := os.Stat(path)
	if err != nil {
		// The index can lag the filesystem; a vanished file is no match.
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cserr.Wrap(cserr.ErrCodeFileIO, err)
	}
	if !preview && info.Mode().Perm()&0o200 == 0 {
		return nil, readOnlyErr(path)
	}
	readMtime := info.ModTime()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cserr.Wrap(cserr.ErrCodeFileIO, err)
	}
	content := string(data)

	count := len(re.FindAllStringIndex(content, -1))
	if count == 0 {
		return nil, nil
	}

	change := &ReplaceChange{FilePath: path, Replacements: count}

	// Build the line-level preview before rewriting.
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if len(change.Preview) >= maxPreviewDiffs {
			break
		}
		if re.MatchString(line) {
			change.Preview = append(change.Preview, LineDiff{
				Line:   i + 1,
				Before: line,
				After:  re.ReplaceAllString(line, replacement),
			})
		}
	}

	if preview {
		return change, nil
	}

	updated := re.ReplaceAllString(content, replacement)

	// The file must not have changed between read and write.
	current, err := os.Stat(path)
	if err != nil {
		return nil, cserr.Wrap(cserr.ErrCodeFileIO, err)
	}
	if !current.ModTime().Equal(readMtime) {
		return nil, cserr.New(cserr.ErrCodeConflict,
			fmt.Sprintf("file changed during replace: %s", path), nil).
			WithDetail("file", path).
			WithSuggestion("retry the operation; the file was modified concurrently")
	}

	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return nil, cserr.Wrap(cserr.ErrCodeFileIO, err)
	}

	// Touch forward so watchers and change detection notice.
	now := time.Now()
	_ = os.Chtimes(path, now, now)

	return change, nil
}
