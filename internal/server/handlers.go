package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/coa-dev/codesearch/internal/edit"
	"github.com/coa-dev/codesearch/internal/index"
	"github.com/coa-dev/codesearch/internal/query"
	"github.com/coa-dev/codesearch/internal/refs"
	"github.com/coa-dev/codesearch/internal/respond"
	"github.com/coa-dev/codesearch/internal/symbols"
)

func (s *Server) handleIndexWorkspace(ctx context.Context, req *mcp.CallToolRequest, input IndexWorkspaceInput) (
	*mcp.CallToolResult, IndexWorkspaceOutput, error,
) {
	if input.WorkspacePath == "" {
		return nil, IndexWorkspaceOutput{}, NewInvalidParamsError("workspace_path is required")
	}

	result, err := s.indexer.IndexWorkspace(ctx, input.WorkspacePath, input.Force)
	if err != nil {
		return nil, IndexWorkspaceOutput{}, MapError(err)
	}

	s.ensureWatcher(ctx, input.WorkspacePath)
	return nil, IndexWorkspaceOutput{Result: *result}, nil
}

func (s *Server) handleTextSearch(ctx context.Context, req *mcp.CallToolRequest, input TextSearchInput) (
	*mcp.CallToolResult, TextSearchOutput, error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, TextSearchOutput{}, NewInvalidParamsError("query is required and must be non-empty")
	}
	if input.WorkspacePath == "" {
		return nil, TextSearchOutput{}, NewInvalidParamsError("workspace_path is required")
	}

	requestID := newRequestID()
	start := time.Now()

	searchType, err := query.ParseType(input.SearchType)
	if err != nil {
		return nil, TextSearchOutput{}, MapError(err)
	}

	spec := query.Spec{
		Raw:                  input.Query,
		Type:                 searchType,
		CaseSensitive:        input.CaseSensitive,
		AllowLeadingWildcard: s.cfg.Search.AllowLeadingWildcard,
	}

	result, err := s.manager.Search(ctx, input.WorkspacePath, spec, index.SearchOptions{
		MaxResults:   input.MaxResults,
		Snippets:     input.Snippets,
		ContextLines: input.ContextLines,
		CaseSensitive: input.CaseSensitive,
	})
	if err != nil {
		return nil, TextSearchOutput{}, MapError(err)
	}

	response := s.reducer.Reduce(result, respond.Mode(input.ResponseMode), input.MaxTokens)

	s.logger.Debug("text_search completed",
		"request_id", requestID,
		"query", input.Query,
		"hits", len(response.Hits),
		"mode", string(response.Mode),
		"took", time.Since(start).String())

	return nil, TextSearchOutput{Response: response}, nil
}

func (s *Server) handleSearchFiles(ctx context.Context, req *mcp.CallToolRequest, input SearchFilesInput) (
	*mcp.CallToolResult, SearchFilesOutput, error,
) {
	if input.Pattern == "" {
		return nil, SearchFilesOutput{}, NewInvalidParamsError("pattern is required")
	}
	if input.WorkspacePath == "" {
		return nil, SearchFilesOutput{}, NewInvalidParamsError("workspace_path is required")
	}

	result, err := s.manager.SearchFiles(ctx, input.WorkspacePath, input.Pattern,
		input.ExtensionFilter, input.MaxResults)
	if err != nil {
		return nil, SearchFilesOutput{}, MapError(err)
	}
	return nil, SearchFilesOutput{Result: result}, nil
}

func (s *Server) handleLineSearch(ctx context.Context, req *mcp.CallToolRequest, input LineSearchInput) (
	*mcp.CallToolResult, LineSearchOutput, error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, LineSearchOutput{}, NewInvalidParamsError("query is required")
	}
	if input.WorkspacePath == "" {
		return nil, LineSearchOutput{}, NewInvalidParamsError("workspace_path is required")
	}

	result, err := s.manager.SearchLines(ctx, input.WorkspacePath, input.Query,
		input.ContextLines, s.cfg.Search.MaxResults)
	if err != nil {
		return nil, LineSearchOutput{}, MapError(err)
	}
	return nil, LineSearchOutput{Result: result}, nil
}

func (s *Server) handleSearchAndReplace(ctx context.Context, req *mcp.CallToolRequest, input SearchAndReplaceInput) (
	*mcp.CallToolResult, SearchAndReplaceOutput, error,
) {
	if input.Query == "" {
		return nil, SearchAndReplaceOutput{}, NewInvalidParamsError("query is required")
	}
	if input.WorkspacePath == "" {
		return nil, SearchAndReplaceOutput{}, NewInvalidParamsError("workspace_path is required")
	}

	result, err := s.replacer.Replace(ctx, input.WorkspacePath, input.Query, input.Replacement, input.Preview)
	if err != nil {
		return nil, SearchAndReplaceOutput{}, MapError(err)
	}

	// Applied changes re-index immediately rather than waiting for the
	// watcher's debounce window.
	if !input.Preview && result.FilesChanged > 0 {
		for _, change := range result.Changes {
			if err := s.indexer.IndexFile(ctx, input.WorkspacePath, change.FilePath); err != nil {
				s.logger.Warn("failed to re-index replaced file",
					"path", change.FilePath, "error", err.Error())
			}
		}
		if err := s.manager.Commit(ctx, input.WorkspacePath); err != nil {
			return nil, SearchAndReplaceOutput{}, MapError(err)
		}
	}

	return nil, SearchAndReplaceOutput{Result: result}, nil
}

func (s *Server) handleRecentFiles(ctx context.Context, req *mcp.CallToolRequest, input RecentFilesInput) (
	*mcp.CallToolResult, RecentFilesOutput, error,
) {
	if input.WorkspacePath == "" {
		return nil, RecentFilesOutput{}, NewInvalidParamsError("workspace_path is required")
	}

	window, err := parseTimeFrame(input.TimeFrame)
	if err != nil {
		return nil, RecentFilesOutput{}, NewInvalidParamsError(err.Error())
	}

	result, err := s.manager.RecentFiles(ctx, input.WorkspacePath, time.Now().Add(-window), input.MaxResults)
	if err != nil {
		return nil, RecentFilesOutput{}, MapError(err)
	}
	return nil, RecentFilesOutput{Result: result}, nil
}

func (s *Server) handleEditLines(ctx context.Context, req *mcp.CallToolRequest, input EditLinesInput) (
	*mcp.CallToolResult, EditLinesOutput, error,
) {
	if input.FilePath == "" {
		return nil, EditLinesOutput{}, NewInvalidParamsError("file_path is required")
	}

	op, err := edit.ParseOperation(input.Operation)
	if err != nil {
		return nil, EditLinesOutput{}, MapError(err)
	}

	result, err := edit.EditLines(input.FilePath, op, input.Line, input.Content)
	if err != nil {
		return nil, EditLinesOutput{}, MapError(err)
	}

	// Re-index the touched file when its workspace is known.
	if ws := s.workspaceFor(input.FilePath); ws != "" {
		if err := s.indexer.IndexFile(ctx, ws, input.FilePath); err == nil {
			_ = s.manager.Commit(ctx, ws)
		}
	}

	return nil, EditLinesOutput{Result: result}, nil
}

func (s *Server) handleSymbolSearch(ctx context.Context, req *mcp.CallToolRequest, input SymbolSearchInput) (
	*mcp.CallToolResult, SymbolSearchOutput, error,
) {
	if input.Query == "" {
		return nil, SymbolSearchOutput{}, NewInvalidParamsError("query is required")
	}

	store, err := s.symbolStore(input.WorkspacePath)
	if err != nil {
		return nil, SymbolSearchOutput{}, MapError(err)
	}

	mode := symbols.NameMatchMode(input.Match)
	if mode == "" {
		mode = symbols.MatchPrefix
	}

	syms, err := store.SearchByName(ctx, input.Query, mode, symbols.Kind(input.Kind), input.MaxResults)
	if err != nil {
		return nil, SymbolSearchOutput{}, MapError(err)
	}
	return nil, SymbolSearchOutput{Symbols: syms}, nil
}

func (s *Server) handleGotoDefinition(ctx context.Context, req *mcp.CallToolRequest, input GotoDefinitionInput) (
	*mcp.CallToolResult, GotoDefinitionOutput, error,
) {
	if input.Symbol == "" {
		return nil, GotoDefinitionOutput{}, NewInvalidParamsError("symbol is required")
	}

	resolver, err := s.resolver(input.WorkspacePath)
	if err != nil {
		return nil, GotoDefinitionOutput{}, MapError(err)
	}

	defs, err := resolver.FindDefinitions(ctx, input.Symbol, "")
	if err != nil {
		return nil, GotoDefinitionOutput{}, MapError(err)
	}
	if len(defs) == 0 {
		return nil, GotoDefinitionOutput{}, &RPCError{
			Code:       ErrCodeSymbolStore,
			Message:    fmt.Sprintf("symbol %q not found", input.Symbol),
			Suggestion: "check spelling, or run index_workspace to refresh the symbol store",
		}
	}
	return nil, GotoDefinitionOutput{Definitions: defs}, nil
}

func (s *Server) handleFindReferences(ctx context.Context, req *mcp.CallToolRequest, input FindReferencesInput) (
	*mcp.CallToolResult, FindReferencesOutput, error,
) {
	if input.Symbol == "" {
		return nil, FindReferencesOutput{}, NewInvalidParamsError("symbol is required")
	}

	resolver, err := s.resolver(input.WorkspacePath)
	if err != nil {
		return nil, FindReferencesOutput{}, MapError(err)
	}

	occs, err := resolver.FindReferences(ctx, input.Symbol, symbols.Kind(input.Kind))
	if err != nil {
		return nil, FindReferencesOutput{}, MapError(err)
	}
	return nil, FindReferencesOutput{Occurrences: occs}, nil
}

func (s *Server) handleTraceCallPath(ctx context.Context, req *mcp.CallToolRequest, input TraceCallPathInput) (
	*mcp.CallToolResult, TraceCallPathOutput, error,
) {
	if input.Symbol == "" {
		return nil, TraceCallPathOutput{}, NewInvalidParamsError("symbol is required")
	}

	dir, err := refs.ParseDirection(input.Direction)
	if err != nil {
		return nil, TraceCallPathOutput{}, MapError(err)
	}

	resolver, err := s.resolver(input.WorkspacePath)
	if err != nil {
		return nil, TraceCallPathOutput{}, MapError(err)
	}

	graph, err := resolver.TraceCallPath(ctx, input.Symbol, dir, input.MaxDepth, input.MaxNodes)
	if err != nil {
		return nil, TraceCallPathOutput{}, MapError(err)
	}
	return nil, TraceCallPathOutput{Graph: graph}, nil
}

func (s *Server) handleSymbolsOverview(ctx context.Context, req *mcp.CallToolRequest, input SymbolsOverviewInput) (
	*mcp.CallToolResult, SymbolsOverviewOutput, error,
) {
	if input.FilePath == "" {
		return nil, SymbolsOverviewOutput{}, NewInvalidParamsError("file_path is required")
	}

	store, err := s.symbolStore(s.workspaceOrFile(input.WorkspacePath, input.FilePath))
	if err != nil {
		return nil, SymbolsOverviewOutput{}, MapError(err)
	}

	overview, err := store.OverviewForFile(ctx, input.FilePath)
	if err != nil {
		return nil, SymbolsOverviewOutput{}, MapError(err)
	}
	return nil, SymbolsOverviewOutput{Overview: overview}, nil
}

func (s *Server) handleReadSymbols(ctx context.Context, req *mcp.CallToolRequest, input ReadSymbolsInput) (
	*mcp.CallToolResult, ReadSymbolsOutput, error,
) {
	if input.FilePath == "" {
		return nil, ReadSymbolsOutput{}, NewInvalidParamsError("file_path is required")
	}
	if len(input.Names) == 0 {
		return nil, ReadSymbolsOutput{}, NewInvalidParamsError("names must contain at least one symbol")
	}

	ws := s.workspaceOrFile(input.WorkspacePath, input.FilePath)
	store, err := s.symbolStore(ws)
	if err != nil {
		return nil, ReadSymbolsOutput{}, MapError(err)
	}

	fileSyms, err := store.SymbolsForFile(ctx, input.FilePath)
	if err != nil {
		return nil, ReadSymbolsOutput{}, MapError(err)
	}

	byName := map[string][]symbols.Symbol{}
	for _, sym := range fileSyms {
		byName[sym.Name] = append(byName[sym.Name], sym)
	}

	out := ReadSymbolsOutput{}
	full := input.Detail == "full"
	for _, name := range input.Names {
		matches, ok := byName[name]
		if !ok {
			out.NotFound = append(out.NotFound, name)
			continue
		}
		for _, sym := range matches {
			rs := ReadSymbol{Symbol: sym}
			if full {
				rs.Body = s.readBody(ws, input.FilePath, sym.StartLine, sym.EndLine)
			}
			out.Symbols = append(out.Symbols, rs)
		}
	}

	return nil, out, nil
}

// symbolStore resolves the symbol store for a workspace path.
func (s *Server) symbolStore(wsPath string) (*symbols.Store, error) {
	if wsPath == "" {
		return nil, NewInvalidParamsError("workspace_path is required")
	}
	ic, err := s.manager.Get(wsPath)
	if err != nil {
		return nil, err
	}
	return s.indexer.SymbolStore(ic.Hash)
}

// resolver builds a reference resolver whose snippets come from stored
// document lines.
func (s *Server) resolver(wsPath string) (*refs.Resolver, error) {
	store, err := s.symbolStore(wsPath)
	if err != nil {
		return nil, err
	}
	loader := func(filePath string, line int) string {
		return s.manager.LineAt(wsPath, filePath, line)
	}
	return refs.NewResolver(store, loader), nil
}

// workspaceFor finds the running watcher workspace containing a file.
func (s *Server) workspaceFor(filePath string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ws := range s.watchers {
		if strings.HasPrefix(filePath, ws) {
			return ws
		}
	}
	return ""
}

func (s *Server) workspaceOrFile(wsPath, filePath string) string {
	if wsPath != "" {
		return wsPath
	}
	return s.workspaceFor(filePath)
}

// readBody reads a symbol's line range from stored document lines.
func (s *Server) readBody(wsPath, filePath string, startLine, endLine int) string {
	var b strings.Builder
	for line := startLine; line <= endLine; line++ {
		text := s.manager.LineAt(wsPath, filePath, line)
		b.WriteString(text)
		if line < endLine {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// parseTimeFrame parses look-back windows like 30m, 24h, 7d.
func parseTimeFrame(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 24 * time.Hour, nil
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid time_frame %q: use forms like 30m, 24h, 7d", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid time_frame %q: use forms like 30m, 24h, 7d", s)
	}
	return d, nil
}
