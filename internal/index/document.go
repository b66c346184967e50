// Package index owns per-workspace inverted indexes: their lifecycle,
// writer locks, reader cache, and search execution.
//
// Each workspace maps to exactly one IndexContext, created lazily and
// evicted least-recently-used. All writer operations and reader-cache
// mutations on a context serialize under its mutex; searches capture the
// current reader snapshot atomically and run without the mutex.
package index

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"
)

// Document is the logical record for one indexed file.
// The document ID in the underlying index is Path, which makes a
// delete-then-add on the same path a single atomic batch operation.
type Document struct {
	// Path is the absolute file path and unique document key.
	Path string `json:"path"`

	// Filename is the base name, analyzed for matching.
	Filename string `json:"filename"`

	// RelativePath is the path relative to the workspace root.
	RelativePath string `json:"relative_path"`

	// Extension is the file extension with leading dot, exact-matched.
	Extension string `json:"extension"`

	// Content is the full text body. Indexed, never stored.
	Content string `json:"content"`

	// LinesJSON is the pre-split line array as JSON, stored for snippet
	// extraction. Empty for oversized files.
	LinesJSON string `json:"lines"`

	// LastModified is the file mtime in unix seconds.
	LastModified int64 `json:"last_modified"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// TypeInfoJSON is the embedded per-file symbol summary as JSON.
	TypeInfoJSON string `json:"type_info"`

	// Language is the detected language identifier.
	Language string `json:"language"`
}

// TypeInfo is the embedded symbol summary stored with each document.
type TypeInfo struct {
	Types []TypeEntry `json:"types,omitempty"`
}

// TypeEntry summarizes one type-like symbol in a file.
type TypeEntry struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Line    int      `json:"line"`
	Methods []string `json:"methods,omitempty"`
}

// NewDocument builds a Document from file data.
// maxStoredLines caps the stored line array; larger files index content but
// skip snippet storage.
func NewDocument(absPath, relPath, content string, modTime time.Time, size int64, maxStoredLines int) *Document {
	ext := strings.ToLower(filepath.Ext(absPath))

	doc := &Document{
		Path:         absPath,
		Filename:     filepath.Base(absPath),
		RelativePath: filepath.ToSlash(relPath),
		Extension:    ext,
		Content:      content,
		LastModified: modTime.Unix(),
		Size:         size,
		Language:     LanguageForExtension(ext),
	}

	lines := strings.Split(content, "\n")
	if maxStoredLines <= 0 || len(lines) <= maxStoredLines {
		if data, err := json.Marshal(lines); err == nil {
			doc.LinesJSON = string(data)
		}
	}

	return doc
}

// SetTypeInfo attaches the symbol summary to the document.
func (d *Document) SetTypeInfo(info *TypeInfo) {
	if info == nil || len(info.Types) == 0 {
		return
	}
	if data, err := json.Marshal(info); err == nil {
		d.TypeInfoJSON = string(data)
	}
}

// Lines decodes the stored line array. Returns nil when not stored.
func (d *Document) Lines() []string {
	if d.LinesJSON == "" {
		return nil
	}
	var lines []string
	if err := json.Unmarshal([]byte(d.LinesJSON), &lines); err != nil {
		return nil
	}
	return lines
}

// indexable converts the Document into the map bleve indexes. The content
// field is indexed under both analyzer variants; stored-only fields carry
// their values for later retrieval.
func (d *Document) indexable() map[string]interface{} {
	return map[string]interface{}{
		"path":          d.Path,
		"filename":      d.Filename,
		"relative_path": d.RelativePath,
		"extension":     d.Extension,
		"content":       d.Content,
		"content_cs":    d.Content,
		"lines":         d.LinesJSON,
		"last_modified": float64(d.LastModified),
		"size":          float64(d.Size),
		"type_info":     d.TypeInfoJSON,
		"language":      d.Language,
	}
}

// LanguageForExtension maps a file extension to a language identifier.
func LanguageForExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".go":
		return "go"
	case ".cs":
		return "csharp"
	case ".ts", ".tsx":
		return "typescript"
	case ".js", ".jsx":
		return "javascript"
	case ".py":
		return "python"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".c", ".h":
		return "c"
	case ".cpp", ".hpp", ".cc":
		return "cpp"
	case ".rb":
		return "ruby"
	case ".php":
		return "php"
	case ".swift":
		return "swift"
	case ".kt":
		return "kotlin"
	case ".scala":
		return "scala"
	case ".sql":
		return "sql"
	case ".sh":
		return "shell"
	case ".md":
		return "markdown"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	case ".xml":
		return "xml"
	case ".html":
		return "html"
	case ".css":
		return "css"
	case ".proto":
		return "protobuf"
	default:
		return "text"
	}
}
