package logging

import (
	"os"
	"path/filepath"
)

// LogDir returns the log directory under the given base directory.
func LogDir(baseDir string) string {
	return filepath.Join(baseDir, "logs")
}

// LogPath returns the server log path under the given base directory.
func LogPath(baseDir string) string {
	return filepath.Join(LogDir(baseDir), "server.log")
}

// FindLogFile attempts to find the log file for viewing.
// An explicit path takes precedence; otherwise the shared server log under
// baseDir is used when present.
func FindLogFile(baseDir, explicit string) (string, bool) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, true
		}
		return "", false
	}

	p := LogPath(baseDir)
	if _, err := os.Stat(p); err == nil {
		return p, true
	}
	return "", false
}
