package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths computes per-workspace resource locations under a base directory.
//
// Layout:
//
//	<base>/indexes/<ws-hash>/                        inverted index
//	<base>/indexes/<ws-hash>/workspace_metadata.json sidecar
//	<base>/symbols/<ws-hash>.db                      symbol store
//	<base>/logs/                                     shared append log
//	<base>/cache/                                    reduced-result handles
//	<base>/.gitignore                                excludes index data
type Paths struct {
	Base string
}

// NewPaths creates a Paths rooted at base, materializing the base directory
// and its .gitignore on first use.
func NewPaths(base string) (*Paths, error) {
	if base == "" {
		return nil, fmt.Errorf("base directory must not be empty")
	}
	p := &Paths{Base: base}
	if err := p.ensureLayout(); err != nil {
		return nil, err
	}
	return p, nil
}

// IndexDir returns the inverted index directory for a workspace hash.
func (p *Paths) IndexDir(hash string) string {
	return filepath.Join(p.Base, "indexes", hash)
}

// MetadataPath returns the workspace metadata sidecar path.
func (p *Paths) MetadataPath(hash string) string {
	return filepath.Join(p.IndexDir(hash), "workspace_metadata.json")
}

// SymbolDBPath returns the symbol database file for a workspace hash.
func (p *Paths) SymbolDBPath(hash string) string {
	return filepath.Join(p.Base, "symbols", hash+".db")
}

// LogDir returns the shared log directory.
func (p *Paths) LogDir() string {
	return filepath.Join(p.Base, "logs")
}

// CacheDir returns the directory for content-addressed result handles.
func (p *Paths) CacheDir() string {
	return filepath.Join(p.Base, "cache")
}

// ListIndexDirs returns the hashes of all index directories present on disk.
// Used by the startup reconciler.
func (p *Paths) ListIndexDirs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(p.Base, "indexes"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list index dirs: %w", err)
	}

	var hashes []string
	for _, e := range entries {
		if e.IsDir() {
			hashes = append(hashes, e.Name())
		}
	}
	return hashes, nil
}

// ensureLayout creates the base layout and the .gitignore that keeps index
// data out of version control when the base dir lives inside a repo.
func (p *Paths) ensureLayout() error {
	for _, dir := range []string{
		p.Base,
		filepath.Join(p.Base, "indexes"),
		filepath.Join(p.Base, "symbols"),
		p.LogDir(),
		p.CacheDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	gitignore := filepath.Join(p.Base, ".gitignore")
	if _, err := os.Stat(gitignore); os.IsNotExist(err) {
		content := []byte("indexes/\nsymbols/\nlogs/\ncache/\n")
		if err := os.WriteFile(gitignore, content, 0o644); err != nil {
			return fmt.Errorf("failed to write .gitignore: %w", err)
		}
	}
	return nil
}
