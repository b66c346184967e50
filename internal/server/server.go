package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/coa-dev/codesearch/internal/config"
	"github.com/coa-dev/codesearch/internal/edit"
	"github.com/coa-dev/codesearch/internal/index"
	"github.com/coa-dev/codesearch/internal/pipeline"
	"github.com/coa-dev/codesearch/internal/respond"
	"github.com/coa-dev/codesearch/internal/watch"
	"github.com/coa-dev/codesearch/pkg/version"
)

// Server bridges coding agents to the search engine over MCP.
type Server struct {
	mcp      *mcp.Server
	cfg      *config.Config
	manager  *index.Manager
	indexer  *pipeline.Indexer
	replacer *edit.Replacer
	reducer  *respond.Reducer
	logger   *slog.Logger

	// watchers holds the running watch service per workspace path.
	mu       sync.Mutex
	watchers map[string]*watch.Service
}

// New creates the MCP server around an engine.
func New(cfg *config.Config, manager *index.Manager, indexer *pipeline.Indexer) (*Server, error) {
	if manager == nil {
		return nil, fmt.Errorf("index manager is required")
	}
	if indexer == nil {
		return nil, fmt.Errorf("indexer is required")
	}

	handles, err := respond.NewHandleStore(manager.Paths().CacheDir())
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		manager:  manager,
		indexer:  indexer,
		replacer: edit.NewReplacer(manager),
		reducer:  respond.NewReducer(cfg.Search.TokenBudget, handles),
		logger:   slog.Default(),
		watchers: make(map[string]*watch.Service),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "codesearch",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// registerTools registers every operation the engine exposes.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_workspace",
		Description: "Build or refresh the search index for a workspace directory. Run this once per workspace before searching; later runs only touch changed files.",
	}, s.handleIndexWorkspace)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "text_search",
		Description: "Full-text code search over an indexed workspace. Understands camelCase identifiers and code operators; supports standard, literal, code, wildcard, fuzzy, phrase, and regex modes.",
	}, s.handleTextSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_files",
		Description: "Find files by name or path with glob (src/**/*Factory*.cs) or regex patterns.",
	}, s.handleSearchFiles)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "line_search",
		Description: "Find individual matching lines across the workspace with surrounding context, like grep with an index behind it.",
	}, s.handleLineSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_and_replace",
		Description: "Workspace-wide search and replace with regex capture support. Use preview=true to see planned changes before writing.",
	}, s.handleSearchAndReplace)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "recent_files",
		Description: "List files modified within a time frame (30m, 24h, 7d), newest first.",
	}, s.handleRecentFiles)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "edit_lines",
		Description: "Insert, replace, or delete one line range in a file by 1-based line number. The touched file re-indexes when a running workspace watcher covers it; otherwise it is not re-indexed.",
	}, s.handleEditLines)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "symbol_search",
		Description: "Find symbol definitions (classes, methods, functions) by name: exact, prefix, or fuzzy.",
	}, s.handleSymbolSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "goto_definition",
		Description: "Resolve a symbol name to its definition sites with file, line, and signature.",
	}, s.handleGotoDefinition)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_references",
		Description: "Find every reference to a symbol. Qualify with the containing type (Foo.Bar) to disambiguate same-named members.",
	}, s.handleFindReferences)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "trace_call_path",
		Description: "Trace caller (up) or callee (down) chains from a symbol, bounded by depth and node count.",
	}, s.handleTraceCallPath)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_symbols_overview",
		Description: "Summarize a file's symbols grouped by kind: classes, interfaces, methods, functions.",
	}, s.handleSymbolsOverview)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "read_symbols",
		Description: "Read specific symbols from a file at signature or full-body detail, without reading the whole file.",
	}, s.handleReadSymbols)

	s.logger.Info("MCP tools registered", slog.Int("count", 13))
}

// Serve runs the server over the stdio transport until the context ends.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("Starting MCP server", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped gracefully")
	return nil
}

// Close stops watchers; index contexts close through the manager.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ws, svc := range s.watchers {
		svc.Stop()
		delete(s.watchers, ws)
	}
	return nil
}

// ensureWatcher starts the incremental watch service for a workspace after
// its first successful index run.
func (s *Server) ensureWatcher(ctx context.Context, wsPath string) {
	if !s.cfg.Watcher.Enabled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.watchers[wsPath]; running {
		return
	}

	svc, err := watch.NewService(wsPath, pipeline.NewWorkspaceApplier(s.indexer, wsPath), watch.ServiceOptions{
		Debounce:   s.cfg.Watcher.Debounce,
		AutoCommit: s.cfg.Watcher.AutoCommit,
		MaxQueue:   s.cfg.Watcher.MaxQueue,
	})
	if err != nil {
		s.logger.Warn("failed to start workspace watcher",
			slog.String("workspace", wsPath),
			slog.String("error", err.Error()))
		return
	}

	// The watcher outlives the request; it stops with the server.
	svc.Start(context.WithoutCancel(ctx))
	s.watchers[wsPath] = svc
	s.logger.Info("workspace watcher started", slog.String("workspace", wsPath))
}

// newRequestID creates a short unique request ID for log correlation.
func newRequestID() string {
	return uuid.NewString()[:8]
}
