package index

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/coa-dev/codesearch/internal/analysis"
)

// buildIndexMapping creates the bleve mapping for workspace documents.
//
// Field treatment follows the document model: path/extension/language are
// exact-term keywords, filename/relative_path/content go through the code
// analyzer, lines/type_info are stored verbatim without indexing, and the
// numeric fields back recency and size ranking.
func buildIndexMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()

	if err := analysis.RegisterAnalyzers(m); err != nil {
		return nil, fmt.Errorf("failed to register analyzers: %w", err)
	}

	doc := bleve.NewDocumentMapping()

	keywordStored := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		fm.Store = true
		fm.IncludeInAll = false
		return fm
	}

	codeText := func(analyzer string, store bool) *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = analyzer
		fm.Store = store
		fm.IncludeTermVectors = true
		fm.IncludeInAll = false
		return fm
	}

	storedOnly := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Store = true
		fm.Index = false
		fm.IncludeInAll = false
		return fm
	}

	numericStored := func() *mapping.FieldMapping {
		fm := bleve.NewNumericFieldMapping()
		fm.Store = true
		fm.IncludeInAll = false
		return fm
	}

	doc.AddFieldMappingsAt("path", keywordStored())
	doc.AddFieldMappingsAt("filename", codeText(analysis.CodeAnalyzerName, true))
	doc.AddFieldMappingsAt("relative_path", codeText(analysis.CodeAnalyzerName, true))
	doc.AddFieldMappingsAt("extension", keywordStored())
	doc.AddFieldMappingsAt("content", codeText(analysis.CodeAnalyzerName, false))
	doc.AddFieldMappingsAt("content_cs", codeText(analysis.CodeAnalyzerCSName, false))
	doc.AddFieldMappingsAt("lines", storedOnly())
	doc.AddFieldMappingsAt("last_modified", numericStored())
	doc.AddFieldMappingsAt("size", numericStored())
	doc.AddFieldMappingsAt("type_info", storedOnly())
	doc.AddFieldMappingsAt("language", keywordStored())

	m.DefaultMapping = doc
	return m, nil
}

// storedFields is the field set fetched for result shaping and scoring.
var storedFields = []string{
	"path", "filename", "relative_path", "extension", "lines",
	"last_modified", "size", "type_info", "language",
}
