// Package workspace resolves workspace paths to stable identities and
// on-disk index locations.
//
// A workspace is an absolute directory path. Its canonical form is produced
// by Normalize; the canonical form hashes to a short stable WorkspaceHash
// which keys every per-workspace resource (index directory, symbol database,
// metadata sidecar).
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/coa-dev/codesearch/internal/cserr"
)

// Normalize converts a workspace path to canonical form: absolute,
// symlink-resolved, cleaned, and case-folded on case-insensitive platforms.
// Normalize is idempotent: Normalize(Normalize(p)) == Normalize(p).
func Normalize(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", cserr.BadPath(path, fmt.Errorf("empty path"))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", cserr.BadPath(path, err)
	}

	// Resolve symlinks when the path exists; a missing path still normalizes
	// (read-side callers decide whether existence is required).
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	abs = filepath.Clean(abs)

	if caseInsensitiveFS() {
		abs = strings.ToLower(abs)
	}

	return abs, nil
}

// NormalizeDir is Normalize plus the requirement that the path is an existing
// directory. Write operations (indexing, watching) go through this.
func NormalizeDir(path string) (string, error) {
	canonical, err := Normalize(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return "", cserr.New(cserr.ErrCodeNoSuchDirectory,
			fmt.Sprintf("workspace directory does not exist: %s", path), err).
			WithDetail("path", path)
	}
	if !info.IsDir() {
		return "", cserr.BadPath(path, fmt.Errorf("not a directory"))
	}

	return canonical, nil
}

// Hash produces the stable short WorkspaceHash for a canonical path.
// The value is a 16-hex-digit xxhash64, identical across runs and platforms
// for the same canonical input.
func Hash(canonical string) string {
	// Hash the forward-slash form so Windows and Unix agree on the same
	// logical path.
	return fmt.Sprintf("%016x", xxhash.Sum64String(filepath.ToSlash(canonical)))
}

// Resolve normalizes a path and returns (canonical, hash).
func Resolve(path string) (string, string, error) {
	canonical, err := Normalize(path)
	if err != nil {
		return "", "", err
	}
	return canonical, Hash(canonical), nil
}

// caseInsensitiveFS reports whether the host filesystem folds case.
func caseInsensitiveFS() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}
