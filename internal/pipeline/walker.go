// Package pipeline implements the indexing pipeline: walk the workspace,
// filter and read files, build documents, batch them into the index, and
// feed the symbol store.
package pipeline

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/coa-dev/codesearch/internal/watch"
)

// WalkOptions filters the file walk.
type WalkOptions struct {
	// IncludeExtensions is the allow-list (with leading dot). Empty allows
	// everything.
	IncludeExtensions []string

	// Exclude are doublestar patterns matched against the relative path.
	Exclude []string

	// MaxFileSize skips files larger than this many bytes.
	MaxFileSize int64
}

// WalkedFile is one file surviving the walk filters.
type WalkedFile struct {
	AbsPath string
	RelPath string
	Size    int64
	ModTime int64
}

// Walk enumerates indexable files under root, skipping junk directories,
// disallowed extensions, oversized files, and excluded patterns. Results
// stream to the callback; returning an error stops the walk.
func Walk(ctx context.Context, root string, opts WalkOptions, fn func(WalkedFile) error) error {
	allowed := map[string]struct{}{}
	for _, ext := range opts.IncludeExtensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && (watch.IsJunkDir(name) || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}

		if len(allowed) > 0 {
			ext := strings.ToLower(filepath.Ext(name))
			if _, ok := allowed[ext]; !ok {
				return nil
			}
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		for _, pattern := range opts.Exclude {
			if matched, _ := doublestar.Match(pattern, rel); matched {
				return nil
			}
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if opts.MaxFileSize > 0 && info.Size() > opts.MaxFileSize {
			return nil
		}

		return fn(WalkedFile{
			AbsPath: path,
			RelPath: rel,
			Size:    info.Size(),
			ModTime: info.ModTime().Unix(),
		})
	})
}
