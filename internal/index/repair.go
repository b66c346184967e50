package index

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
)

// ValidateIntegrity checks whether an index directory is structurally valid
// before opening. Returns nil when the directory is valid or absent.
func ValidateIntegrity(indexDir string) error {
	if _, err := os.Stat(indexDir); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(indexDir, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		// A directory without index metadata was interrupted mid-create.
		// An otherwise empty directory (only lock/sidecar files) is fine.
		if onlyHousekeepingFiles(indexDir) {
			return nil
		}
		return fmt.Errorf("index_meta.json missing (incomplete index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}

// IsCorruptionError checks if an error indicates index corruption.
func IsCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	if err == bleve.ErrorIndexMetaCorrupt {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		strings.Contains(errStr, "metadata missing")
}

// RepairOptions configures a repair run.
type RepairOptions struct {
	// Backup moves the damaged directory aside instead of deleting it.
	Backup bool
}

// RepairReport describes what a repair did.
type RepairReport struct {
	IndexPath  string    `json:"index_path"`
	BackupPath string    `json:"backup_path,omitempty"`
	Dropped    bool      `json:"dropped"`
	RepairedAt time.Time `json:"repaired_at"`
}

// repairIndexDir backs up a damaged index directory and clears it so the
// next open recreates a fresh index. The caller re-walks the source tree to
// repopulate.
func repairIndexDir(indexDir string, opts RepairOptions) (*RepairReport, error) {
	report := &RepairReport{
		IndexPath:  indexDir,
		RepairedAt: time.Now().UTC(),
	}

	if _, err := os.Stat(indexDir); os.IsNotExist(err) {
		return report, nil
	}

	if opts.Backup {
		// The directory must be fully gone afterwards: creating a fresh
		// index fails if the path still exists. The sidecar survives in
		// the backup; reconciliation reads it before repairing.
		backup := fmt.Sprintf("%s.bad-%d", indexDir, time.Now().Unix())
		if err := os.Rename(indexDir, backup); err != nil {
			return nil, fmt.Errorf("failed to back up damaged index: %w", err)
		}
		report.BackupPath = backup
	} else {
		if err := os.RemoveAll(indexDir); err != nil {
			return nil, fmt.Errorf("failed to remove damaged index: %w", err)
		}
	}

	report.Dropped = true
	slog.Warn("index_repaired",
		slog.String("path", indexDir),
		slog.String("backup", report.BackupPath))
	return report, nil
}

// onlyHousekeepingFiles reports whether the directory holds nothing beyond
// lock files and the workspace sidecar.
func onlyHousekeepingFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		switch e.Name() {
		case lockFileName, pidFileName, "workspace_metadata.json":
		default:
			return false
		}
	}
	return true
}
