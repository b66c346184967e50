package refs

import (
	"context"
	"fmt"

	"github.com/coa-dev/codesearch/internal/cserr"
	"github.com/coa-dev/codesearch/internal/symbols"
)

// Direction selects caller or callee traversal.
type Direction string

const (
	// DirectionUp walks toward callers.
	DirectionUp Direction = "up"
	// DirectionDown walks toward callees.
	DirectionDown Direction = "down"
)

// ParseDirection validates a direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionUp, DirectionDown:
		return Direction(s), nil
	case "":
		return DirectionDown, nil
	default:
		return "", cserr.InvalidQuery(
			fmt.Sprintf("unknown direction %q", s), "use up (callers) or down (callees)")
	}
}

// CallNode is one node in a traced call graph.
type CallNode struct {
	Symbol    symbols.Symbol `json:"symbol"`
	Depth     int            `json:"depth"`
	Children  []*CallNode    `json:"children,omitempty"`
	Truncated bool           `json:"truncated,omitempty"`
}

// CallGraph is the result of a call-path trace.
type CallGraph struct {
	Root *CallNode `json:"root"`

	// NodeCount is the number of nodes returned.
	NodeCount int `json:"node_count"`

	// DepthTruncated is set when traversal stopped at max depth somewhere.
	DepthTruncated bool `json:"depth_truncated"`

	// NodesTruncated is set when the node budget ran out; Omitted counts
	// candidates summarized rather than returned.
	NodesTruncated bool `json:"nodes_truncated"`
	Omitted        int  `json:"omitted,omitempty"`
}

// TraceCallPath traverses caller/callee edges from a root symbol.
// Cycles are cut by a visited set over symbol ids, depth is bounded by
// maxDepth, and total node count by maxNodes; both truncations are marked
// explicitly in the result.
func (r *Resolver) TraceCallPath(ctx context.Context, rootName string, dir Direction, maxDepth, maxNodes int) (*CallGraph, error) {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if maxNodes <= 0 {
		maxNodes = 100
	}

	defs, err := r.store.SearchByName(ctx, rootName, symbols.MatchExact, "", 10)
	if err != nil {
		return nil, err
	}
	var root *symbols.Symbol
	for i := range defs {
		if defs[i].Kind == symbols.KindMethod || defs[i].Kind == symbols.KindFunction {
			root = &defs[i]
			break
		}
	}
	if root == nil && len(defs) > 0 {
		root = &defs[0]
	}
	if root == nil {
		return nil, cserr.New(cserr.ErrCodeSymbolNotFound,
			fmt.Sprintf("symbol %q not found", rootName), nil).
			WithSuggestion("check spelling, or run index_workspace to refresh the symbol store")
	}

	t := &tracer{
		resolver: r,
		dir:      dir,
		maxDepth: maxDepth,
		maxNodes: maxNodes,
		visited:  map[int64]struct{}{},
	}

	graph := &CallGraph{}
	graph.Root = t.walk(ctx, *root, 0, graph)
	graph.NodeCount = t.count
	return graph, nil
}

type tracer struct {
	resolver *Resolver
	dir      Direction
	maxDepth int
	maxNodes int
	visited  map[int64]struct{}
	count    int
}

func (t *tracer) walk(ctx context.Context, sym symbols.Symbol, depth int, graph *CallGraph) *CallNode {
	t.count++
	t.visited[sym.ID] = struct{}{}

	node := &CallNode{Symbol: sym, Depth: depth}

	if depth >= t.maxDepth {
		graph.DepthTruncated = true
		node.Truncated = true
		return node
	}
	if ctx.Err() != nil {
		node.Truncated = true
		return node
	}

	var next []symbols.Symbol
	var err error
	if t.dir == DirectionDown {
		next, err = t.resolver.callees(ctx, sym)
	} else {
		next, err = t.resolver.callers(ctx, sym)
	}
	if err != nil {
		node.Truncated = true
		return node
	}

	for _, n := range next {
		if _, seen := t.visited[n.ID]; seen {
			continue
		}
		if t.count >= t.maxNodes {
			graph.NodesTruncated = true
			graph.Omitted++
			continue
		}
		node.Children = append(node.Children, t.walk(ctx, n, depth+1, graph))
	}
	return node
}

// callees resolves identifiers inside a symbol's body to their definitions.
func (r *Resolver) callees(ctx context.Context, sym symbols.Symbol) ([]symbols.Symbol, error) {
	ids, err := r.store.IdentifiersInRange(ctx, sym.FilePath, sym.StartLine, sym.EndLine)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	var out []symbols.Symbol
	for _, id := range ids {
		if id.Name == sym.Name {
			continue
		}
		if _, dup := seen[id.Name]; dup {
			continue
		}
		seen[id.Name] = struct{}{}

		defs, err := r.store.SearchByName(ctx, id.Name, symbols.MatchExact, "", 5)
		if err != nil {
			continue
		}
		for _, d := range defs {
			if d.Kind == symbols.KindMethod || d.Kind == symbols.KindFunction {
				out = append(out, d)
				break
			}
		}
	}
	return out, nil
}

// callers finds the enclosing callable of every occurrence of the symbol's
// name.
func (r *Resolver) callers(ctx context.Context, sym symbols.Symbol) ([]symbols.Symbol, error) {
	ids, err := r.store.SearchByIdentifier(ctx, sym.Name, "")
	if err != nil {
		return nil, err
	}

	seen := map[int64]struct{}{}
	var out []symbols.Symbol
	for _, id := range ids {
		// The definition site references itself; skip it.
		if id.FilePath == sym.FilePath && id.Line >= sym.StartLine && id.Line <= sym.EndLine {
			continue
		}
		enclosing, err := r.store.EnclosingSymbol(ctx, id.FilePath, id.Line)
		if err != nil || enclosing == nil {
			continue
		}
		if enclosing.ID == sym.ID {
			continue
		}
		if _, dup := seen[enclosing.ID]; dup {
			continue
		}
		seen[enclosing.ID] = struct{}{}
		out = append(out, *enclosing)
	}
	return out, nil
}
