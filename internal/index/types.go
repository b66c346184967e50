package index

import (
	"encoding/json"
	"time"
)

// SearchOptions shapes one search call.
type SearchOptions struct {
	// MaxResults caps returned hits (default 50).
	MaxResults int

	// Snippets requests per-hit matching lines.
	Snippets bool

	// ContextLines is the number of lines around each snippet line.
	ContextLines int

	// CaseSensitive selects the case-sensitive content field.
	CaseSensitive bool

	// Fresh forces a reader reopen before searching.
	Fresh bool
}

// Snippet is one matching line with optional surrounding context.
type Snippet struct {
	Line    int      `json:"line"`
	Text    string   `json:"text"`
	Before  []string `json:"before,omitempty"`
	After   []string `json:"after,omitempty"`
}

// SearchHit is one shaped result.
type SearchHit struct {
	Path         string    `json:"path"`
	RelativePath string    `json:"relative_path"`
	Filename     string    `json:"filename"`
	Extension    string    `json:"extension"`
	Language     string    `json:"language"`
	Score        float64   `json:"score"`
	BaseScore    float64   `json:"base_score"`
	LastModified int64     `json:"last_modified"`
	Size         int64     `json:"size"`
	Snippets     []Snippet `json:"snippets,omitempty"`
	TypeInfo     *TypeInfo `json:"type_info,omitempty"`
}

// SearchResult is the output of one text search.
type SearchResult struct {
	Hits           []SearchHit   `json:"hits"`
	TotalMatches   uint64        `json:"total_matches"`
	RefreshVersion uint64        `json:"refresh_version"`
	Took           time.Duration `json:"took"`
}

// FileMatch is one filename/path search result.
type FileMatch struct {
	Path         string `json:"path"`
	RelativePath string `json:"relative_path"`
	Extension    string `json:"extension"`
	LastModified int64  `json:"last_modified"`
	Size         int64  `json:"size"`
}

// FileSearchResult is the output of a filename/path search.
type FileSearchResult struct {
	Matches []FileMatch `json:"matches"`
	Total   int         `json:"total"`
}

// LineMatch is one matching line from a line-level search.
type LineMatch struct {
	Path    string   `json:"path"`
	Line    int      `json:"line"`
	Text    string   `json:"text"`
	Before  []string `json:"before,omitempty"`
	After   []string `json:"after,omitempty"`
}

// LineSearchResult is the output of a line-level search.
type LineSearchResult struct {
	Matches []LineMatch `json:"matches"`
	Total   int         `json:"total"`
}

// storedDoc reconstructs document fields from a search hit's stored fields.
type storedDoc struct {
	Path         string
	RelativePath string
	Filename     string
	Extension    string
	Language     string
	LastModified int64
	Size         int64
	LinesJSON    string
	TypeInfoJSON string
}

func storedDocFromFields(id string, fields map[string]interface{}) *storedDoc {
	d := &storedDoc{Path: id}
	if v, ok := fields["relative_path"].(string); ok {
		d.RelativePath = v
	}
	if v, ok := fields["filename"].(string); ok {
		d.Filename = v
	}
	if v, ok := fields["extension"].(string); ok {
		d.Extension = v
	}
	if v, ok := fields["language"].(string); ok {
		d.Language = v
	}
	if v, ok := fields["last_modified"].(float64); ok {
		d.LastModified = int64(v)
	}
	if v, ok := fields["size"].(float64); ok {
		d.Size = int64(v)
	}
	if v, ok := fields["lines"].(string); ok {
		d.LinesJSON = v
	}
	if v, ok := fields["type_info"].(string); ok {
		d.TypeInfoJSON = v
	}
	return d
}

func (d *storedDoc) lines() []string {
	if d.LinesJSON == "" {
		return nil
	}
	var lines []string
	if err := json.Unmarshal([]byte(d.LinesJSON), &lines); err != nil {
		return nil
	}
	return lines
}

func (d *storedDoc) typeInfo() *TypeInfo {
	if d.TypeInfoJSON == "" {
		return nil
	}
	var info TypeInfo
	if err := json.Unmarshal([]byte(d.TypeInfoJSON), &info); err != nil {
		return nil
	}
	return &info
}

func (d *storedDoc) typeNames() []string {
	info := d.typeInfo()
	if info == nil {
		return nil
	}
	names := make([]string, 0, len(info.Types))
	for _, t := range info.Types {
		names = append(names, t.Name)
	}
	return names
}
