package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Metadata is the sidecar stored next to each index directory. It lets
// tooling map an index directory back to the workspace it was built from.
type Metadata struct {
	OriginalPath  string    `json:"original_path"`
	CreatedAt     time.Time `json:"created_at"`
	LastIndexedAt time.Time `json:"last_indexed_at,omitempty"`
	DocCount      int       `json:"doc_count"`

	// CleanShutdown is cleared while a writer is open and restored on
	// orderly close. The startup reconciler checks it.
	CleanShutdown bool `json:"clean_shutdown"`
}

// WriteMetadata persists the sidecar atomically (write temp, rename).
func (p *Paths) WriteMetadata(hash string, md *Metadata) error {
	path := p.MetadataPath(hash)
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workspace metadata: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write workspace metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace workspace metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads the sidecar for a workspace hash.
// Returns (nil, nil) when the sidecar does not exist.
func (p *Paths) ReadMetadata(hash string) (*Metadata, error) {
	data, err := os.ReadFile(p.MetadataPath(hash))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace metadata: %w", err)
	}

	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("corrupt workspace metadata: %w", err)
	}
	return &md, nil
}

// TryReverse maps an index directory back to its original workspace path
// using the metadata sidecar. Returns ("", false) when no sidecar exists.
func (p *Paths) TryReverse(hash string) (string, bool) {
	md, err := p.ReadMetadata(hash)
	if err != nil || md == nil || md.OriginalPath == "" {
		return "", false
	}
	return md.OriginalPath, true
}
