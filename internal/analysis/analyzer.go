package analysis

import (
	"fmt"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// CodeTokenizerName is the name of the custom code tokenizer.
	CodeTokenizerName = "code_tokenizer"

	// CodeAnalyzerName is the default lowercase code analyzer.
	CodeAnalyzerName = "code_analyzer"

	// CodeAnalyzerCSName is the case-sensitive code analyzer variant.
	CodeAnalyzerCSName = "code_analyzer_cs"
)

func init() {
	_ = registry.RegisterTokenizer(CodeTokenizerName, codeTokenizerConstructor)
}

// RegisterAnalyzers adds the code analyzers to an index mapping.
// The lowercase variant becomes the mapping default; the case-sensitive
// variant is selected per query when case sensitivity is requested.
func RegisterAnalyzers(m *mapping.IndexMappingImpl) error {
	err := m.AddCustomAnalyzer(CodeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": CodeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to add code analyzer: %w", err)
	}

	err = m.AddCustomAnalyzer(CodeAnalyzerCSName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     CodeTokenizerName,
		"token_filters": []string{},
	})
	if err != nil {
		return fmt.Errorf("failed to add case-sensitive code analyzer: %w", err)
	}

	m.DefaultAnalyzer = CodeAnalyzerName
	return nil
}

// codeTokenizerConstructor creates the code tokenizer for bleve.
func codeTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveCodeTokenizer{}, nil
}

// bleveCodeTokenizer adapts TokenizeCode to bleve's analysis.Tokenizer.
type bleveCodeTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
// Case folding is left to the token filter chain so the same tokenizer
// serves both analyzer variants.
func (t *bleveCodeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	tokens := TokenizeCode(string(input), true)

	result := make(analysis.TokenStream, 0, len(tokens))
	for pos, token := range tokens {
		result = append(result, &analysis.Token{
			Term:     []byte(token.Term),
			Start:    token.Start,
			End:      token.End,
			Position: pos + 1,
			Type:     analysis.AlphaNumeric,
		})
	}

	return result
}
