// Package symbols stores extracted code symbols and identifier occurrences
// in a per-workspace SQLite database.
//
// The engine never parses source itself; an external extractor process
// produces symbol records, and this package persists them transactionally
// per file and answers structural queries: name search, identifier
// candidates for reference resolution, and per-file overviews.
package symbols

import "time"

// Kind classifies a symbol.
type Kind string

const (
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindStruct    Kind = "struct"
	KindEnum      Kind = "enum"
	KindMethod    Kind = "method"
	KindFunction  Kind = "function"
	KindProperty  Kind = "property"
	KindField     Kind = "field"
	KindVariable  Kind = "variable"
	KindConstant  Kind = "constant"
)

// Symbol is one extracted definition.
type Symbol struct {
	ID             int64  `json:"id,omitempty"`
	WorkspaceHash  string `json:"workspace_hash,omitempty"`
	FilePath       string `json:"file_path"`
	Name           string `json:"name"`
	Kind           Kind   `json:"kind"`
	Signature      string `json:"signature,omitempty"`
	Language       string `json:"language,omitempty"`
	StartLine      int    `json:"start_line"`
	StartCol       int    `json:"start_col"`
	EndLine        int    `json:"end_line"`
	EndCol         int    `json:"end_col"`
	Modifiers      string `json:"modifiers,omitempty"`
	BaseType       string `json:"base_type,omitempty"`
	Interfaces     string `json:"interfaces,omitempty"`
	ContainingType string `json:"containing_type,omitempty"`
	ReturnType     string `json:"return_type,omitempty"`
	Parameters     string `json:"parameters,omitempty"`
}

// Identifier is one occurrence of a name in source, candidate fuel for
// reference resolution.
type Identifier struct {
	ID             int64  `json:"id,omitempty"`
	FilePath       string `json:"file_path"`
	Line           int    `json:"line"`
	Col            int    `json:"col"`
	Name           string `json:"name"`
	ContainingType string `json:"containing_type,omitempty"`
}

// FileExtraction is the extractor's output for one file.
type FileExtraction struct {
	FilePath    string       `json:"file_path"`
	Language    string       `json:"language,omitempty"`
	Symbols     []Symbol     `json:"symbols"`
	Identifiers []Identifier `json:"identifiers"`
}

// NameMatchMode selects how SearchByName compares names.
type NameMatchMode string

const (
	MatchExact  NameMatchMode = "exact"
	MatchPrefix NameMatchMode = "prefix"
	MatchFuzzy  NameMatchMode = "fuzzy"
)

// Overview groups a file's symbols by kind for the symbols-overview
// operation.
type Overview struct {
	FilePath string              `json:"file_path"`
	Groups   map[Kind][]Symbol   `json:"groups"`
	Counts   map[Kind]int        `json:"counts"`
}

// FileStamp pairs a file path with its extraction timestamp, used by the
// startup reconciler to find stale extractions.
type FileStamp struct {
	FilePath    string
	ExtractedAt time.Time
}
