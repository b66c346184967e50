// Package refs resolves identifier occurrences to symbols and traces call
// paths through the symbol store.
package refs

import (
	"context"
	"strings"

	"github.com/coa-dev/codesearch/internal/symbols"
)

// Occurrence is one resolved reference to a symbol.
type Occurrence struct {
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Snippet  string `json:"snippet,omitempty"`
}

// SnippetLoader fetches a source line for occurrence context. The index
// layer supplies one backed by stored document lines.
type SnippetLoader func(filePath string, line int) string

// Resolver answers reference and definition queries over a symbol store.
type Resolver struct {
	store    *symbols.Store
	snippets SnippetLoader
}

// NewResolver creates a resolver. snippets may be nil, in which case
// occurrences carry no snippet text.
func NewResolver(store *symbols.Store, snippets SnippetLoader) *Resolver {
	return &Resolver{store: store, snippets: snippets}
}

// FindDefinitions returns the symbols defining a name, optionally filtered
// by kind.
func (r *Resolver) FindDefinitions(ctx context.Context, name string, kind symbols.Kind) ([]symbols.Symbol, error) {
	return r.store.SearchByName(ctx, name, symbols.MatchExact, kind, 50)
}

// FindReferences returns identifier occurrences of a symbol name.
//
// Disambiguation: when the name is member-qualified ("Foo.Bar"), only
// occurrences whose lexical containing type resolves to the qualifier
// survive. A bare member name with a kind filter narrows the same way
// through the definitions' containing types.
func (r *Resolver) FindReferences(ctx context.Context, name string, kind symbols.Kind) ([]Occurrence, error) {
	wantType := ""
	lookup := name
	if i := strings.LastIndex(name, "."); i > 0 {
		wantType = name[:i]
		lookup = name[i+1:]
	}

	ids, err := r.store.SearchByIdentifier(ctx, lookup, "")
	if err != nil {
		return nil, err
	}

	// With a kind filter but no qualifier, accept only occurrences whose
	// containing type matches some definition of that kind's container.
	var allowedTypes map[string]struct{}
	if wantType == "" && kind != "" {
		defs, err := r.store.SearchByName(ctx, lookup, symbols.MatchExact, kind, 50)
		if err == nil && len(defs) > 0 {
			allowedTypes = make(map[string]struct{}, len(defs))
			for _, d := range defs {
				allowedTypes[d.ContainingType] = struct{}{}
			}
		}
	}

	var out []Occurrence
	for _, id := range ids {
		if wantType != "" && !strings.EqualFold(id.ContainingType, wantType) {
			continue
		}
		if allowedTypes != nil {
			if _, ok := allowedTypes[id.ContainingType]; !ok {
				// Unqualified occurrences still count when the member has a
				// single definition with no container.
				if _, bare := allowedTypes[""]; !bare {
					continue
				}
			}
		}

		occ := Occurrence{
			FilePath: id.FilePath,
			Line:     id.Line,
			Column:   id.Col,
		}
		if r.snippets != nil {
			occ.Snippet = r.snippets(id.FilePath, id.Line)
		}
		out = append(out, occ)
	}
	return out, nil
}
