package server

import (
	"github.com/coa-dev/codesearch/internal/edit"
	"github.com/coa-dev/codesearch/internal/index"
	"github.com/coa-dev/codesearch/internal/pipeline"
	"github.com/coa-dev/codesearch/internal/refs"
	"github.com/coa-dev/codesearch/internal/respond"
	"github.com/coa-dev/codesearch/internal/symbols"
)

// IndexWorkspaceInput defines the input schema for index_workspace.
type IndexWorkspaceInput struct {
	WorkspacePath string `json:"workspace_path" jsonschema:"absolute path of the directory to index"`
	Force         bool   `json:"force,omitempty" jsonschema:"re-index every file even if unchanged"`
}

// IndexWorkspaceOutput reports an indexing run.
type IndexWorkspaceOutput struct {
	Result pipeline.Result `json:"result"`
}

// TextSearchInput defines the input schema for text_search.
type TextSearchInput struct {
	Query         string `json:"query" jsonschema:"the search query"`
	WorkspacePath string `json:"workspace_path" jsonschema:"workspace to search"`
	SearchType    string `json:"search_type,omitempty" jsonschema:"standard, literal, code, wildcard, fuzzy, phrase, or regex"`
	CaseSensitive bool   `json:"case_sensitive,omitempty" jsonschema:"match case exactly"`
	MaxResults    int    `json:"max_results,omitempty" jsonschema:"maximum hits to return"`
	Snippets      bool   `json:"snippets,omitempty" jsonschema:"include matching lines per hit"`
	ContextLines  int    `json:"context_lines,omitempty" jsonschema:"context lines around each snippet"`
	ResponseMode  string `json:"response_mode,omitempty" jsonschema:"full or summary"`
	MaxTokens     int    `json:"max_tokens,omitempty" jsonschema:"token budget override for the response"`
}

// TextSearchOutput wraps the reduced search response.
type TextSearchOutput struct {
	Response *respond.Response `json:"response"`
}

// SearchFilesInput defines the input schema for search_files.
type SearchFilesInput struct {
	Pattern         string `json:"pattern" jsonschema:"doublestar glob or regex matched against relative paths"`
	WorkspacePath   string `json:"workspace_path" jsonschema:"workspace to search"`
	ExtensionFilter string `json:"extension_filter,omitempty" jsonschema:"restrict to one extension, e.g. .go"`
	MaxResults      int    `json:"max_results,omitempty" jsonschema:"maximum matches to return"`
}

// SearchFilesOutput wraps file search results.
type SearchFilesOutput struct {
	Result *index.FileSearchResult `json:"result"`
}

// LineSearchInput defines the input schema for line_search.
type LineSearchInput struct {
	Query         string `json:"query" jsonschema:"text to find"`
	WorkspacePath string `json:"workspace_path" jsonschema:"workspace to search"`
	ContextLines  int    `json:"context_lines,omitempty" jsonschema:"context lines around each match"`
}

// LineSearchOutput wraps line search results.
type LineSearchOutput struct {
	Result *index.LineSearchResult `json:"result"`
}

// SearchAndReplaceInput defines the input schema for search_and_replace.
type SearchAndReplaceInput struct {
	Query         string `json:"query" jsonschema:"pattern to find (regex or literal)"`
	Replacement   string `json:"replacement" jsonschema:"replacement text; $1 style captures allowed"`
	WorkspacePath string `json:"workspace_path" jsonschema:"workspace to modify"`
	Preview       bool   `json:"preview,omitempty" jsonschema:"plan without writing"`
}

// SearchAndReplaceOutput wraps a replace run.
type SearchAndReplaceOutput struct {
	Result *edit.ReplaceResult `json:"result"`
}

// RecentFilesInput defines the input schema for recent_files.
type RecentFilesInput struct {
	WorkspacePath string `json:"workspace_path" jsonschema:"workspace to inspect"`
	TimeFrame     string `json:"time_frame" jsonschema:"look-back window, e.g. 30m, 24h, 7d"`
	MaxResults    int    `json:"max_results,omitempty" jsonschema:"maximum files to return"`
}

// RecentFilesOutput wraps recent file results.
type RecentFilesOutput struct {
	Result *index.FileSearchResult `json:"result"`
}

// EditLinesInput defines the input schema for edit_lines.
type EditLinesInput struct {
	FilePath  string `json:"file_path" jsonschema:"absolute path of the file to edit"`
	Operation string `json:"operation" jsonschema:"insert, replace, or delete"`
	Line      int    `json:"line" jsonschema:"1-based line number"`
	Content   string `json:"content,omitempty" jsonschema:"text for insert and replace"`
}

// EditLinesOutput wraps a line edit.
type EditLinesOutput struct {
	Result *edit.EditResult `json:"result"`
}

// SymbolSearchInput defines the input schema for symbol_search.
type SymbolSearchInput struct {
	Query         string `json:"query" jsonschema:"symbol name to find"`
	WorkspacePath string `json:"workspace_path" jsonschema:"workspace to search"`
	Kind          string `json:"kind,omitempty" jsonschema:"filter: class, interface, method, function, ..."`
	Match         string `json:"match,omitempty" jsonschema:"exact, prefix, or fuzzy (default prefix)"`
	MaxResults    int    `json:"max_results,omitempty" jsonschema:"maximum symbols to return"`
}

// SymbolSearchOutput wraps symbol search results.
type SymbolSearchOutput struct {
	Symbols []symbols.Symbol `json:"symbols"`
}

// GotoDefinitionInput defines the input schema for goto_definition.
type GotoDefinitionInput struct {
	Symbol        string `json:"symbol" jsonschema:"symbol name to resolve"`
	WorkspacePath string `json:"workspace_path" jsonschema:"workspace to search"`
}

// GotoDefinitionOutput wraps definitions.
type GotoDefinitionOutput struct {
	Definitions []symbols.Symbol `json:"definitions"`
}

// FindReferencesInput defines the input schema for find_references.
type FindReferencesInput struct {
	Symbol        string `json:"symbol" jsonschema:"symbol name, optionally Type.Member qualified"`
	WorkspacePath string `json:"workspace_path" jsonschema:"workspace to search"`
	Kind          string `json:"kind,omitempty" jsonschema:"narrow to a symbol kind"`
}

// FindReferencesOutput wraps reference occurrences.
type FindReferencesOutput struct {
	Occurrences []refs.Occurrence `json:"occurrences"`
}

// TraceCallPathInput defines the input schema for trace_call_path.
type TraceCallPathInput struct {
	Symbol        string `json:"symbol" jsonschema:"root symbol of the trace"`
	WorkspacePath string `json:"workspace_path" jsonschema:"workspace to search"`
	Direction     string `json:"direction,omitempty" jsonschema:"up (callers) or down (callees)"`
	MaxDepth      int    `json:"max_depth,omitempty" jsonschema:"depth bound"`
	MaxNodes      int    `json:"max_nodes,omitempty" jsonschema:"total node bound"`
}

// TraceCallPathOutput wraps a call graph.
type TraceCallPathOutput struct {
	Graph *refs.CallGraph `json:"graph"`
}

// SymbolsOverviewInput defines the input schema for get_symbols_overview.
type SymbolsOverviewInput struct {
	FilePath      string `json:"file_path" jsonschema:"file to summarize"`
	WorkspacePath string `json:"workspace_path" jsonschema:"workspace the file belongs to"`
}

// SymbolsOverviewOutput wraps a file overview.
type SymbolsOverviewOutput struct {
	Overview *symbols.Overview `json:"overview"`
}

// ReadSymbolsInput defines the input schema for read_symbols.
type ReadSymbolsInput struct {
	FilePath      string   `json:"file_path" jsonschema:"file holding the symbols"`
	WorkspacePath string   `json:"workspace_path" jsonschema:"workspace the file belongs to"`
	Names         []string `json:"names" jsonschema:"symbol names to read"`
	Detail        string   `json:"detail,omitempty" jsonschema:"signature or full (default signature)"`
}

// ReadSymbol is one resolved symbol with optional body text.
type ReadSymbol struct {
	Symbol symbols.Symbol `json:"symbol"`
	Body   string         `json:"body,omitempty"`
}

// ReadSymbolsOutput wraps read symbols and the names that missed.
type ReadSymbolsOutput struct {
	Symbols  []ReadSymbol `json:"symbols"`
	NotFound []string     `json:"not_found,omitempty"`
}
