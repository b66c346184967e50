// Package query classifies and rewrites search queries into executable
// index queries.
//
// Each search type gets its own rewrite: standard queries become boolean-OR
// term matches through the code analyzer, literal and phrase queries become
// exact-order phrases, wildcard and fuzzy queries map to their index
// primitives, and regex queries run as term-level regexp matches over the
// indexed content terms as the slow-path fallback. Validation happens before anything touches the index
// so a bad query never costs a search.
package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/blevesearch/bleve/v2"
	bquery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/coa-dev/codesearch/internal/analysis"
	"github.com/coa-dev/codesearch/internal/cserr"
)

// Type is the search mode requested by the caller.
type Type string

const (
	TypeStandard Type = "standard"
	TypeLiteral  Type = "literal"
	TypeCode     Type = "code"
	TypeWildcard Type = "wildcard"
	TypeFuzzy    Type = "fuzzy"
	TypePhrase   Type = "phrase"
	TypeRegex    Type = "regex"
)

// ParseType validates a search type string; empty means standard.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case "", TypeStandard:
		return TypeStandard, nil
	case TypeLiteral:
		return TypeLiteral, nil
	case TypeCode:
		return TypeCode, nil
	case TypeWildcard:
		return TypeWildcard, nil
	case TypeFuzzy:
		return TypeFuzzy, nil
	case TypePhrase:
		return TypePhrase, nil
	case TypeRegex:
		return TypeRegex, nil
	default:
		return "", cserr.InvalidQuery(
			fmt.Sprintf("unknown search type %q", s),
			"use one of: standard, literal, code, wildcard, fuzzy, phrase, regex")
	}
}

// Spec is a fully classified query ready to build.
type Spec struct {
	Raw           string
	Type          Type
	CaseSensitive bool

	// AllowLeadingWildcard permits queries starting with * or ?.
	AllowLeadingWildcard bool
}

// Built is the executable form of a Spec.
type Built struct {
	// Query is the index query to run.
	Query bquery.Query

	// Terms are the cleaned query terms for the scoring factors.
	Terms []string

	// Field is the content field searched (case-sensitive variant or not).
	Field string
}

// maxFuzzyTermLength bounds fuzzy expansion; longer terms match exactly.
const maxFuzzyTermLength = 24

// Build validates and rewrites the query for its search type.
func Build(spec Spec) (*Built, error) {
	raw := strings.TrimSpace(spec.Raw)
	if raw == "" {
		return nil, cserr.InvalidQuery("query is empty",
			"provide at least one search term")
	}

	field := "content"
	if spec.CaseSensitive {
		field = "content_cs"
	}

	terms := analysis.Terms(raw, spec.CaseSensitive)

	switch spec.Type {
	case TypeStandard, "":
		return buildStandard(raw, field, terms, spec)
	case TypeLiteral:
		return buildPhrase(raw, field, terms, spec)
	case TypeCode:
		return buildCode(raw, field, terms, spec)
	case TypeWildcard:
		return buildWildcard(raw, field, terms, spec)
	case TypeFuzzy:
		return buildFuzzy(raw, field, terms, spec)
	case TypePhrase:
		return buildPhrase(raw, field, terms, spec)
	case TypeRegex:
		return buildRegex(raw, field, terms, spec)
	default:
		return nil, cserr.InvalidQuery(fmt.Sprintf("unknown search type %q", spec.Type), "")
	}
}

func rejectLeadingWildcard(raw string, spec Spec) error {
	if spec.AllowLeadingWildcard {
		return nil
	}
	if strings.HasPrefix(raw, "*") || strings.HasPrefix(raw, "?") {
		return cserr.InvalidQuery(
			"leading wildcards are not allowed",
			"anchor the query with a literal prefix, e.g. \"util*\" instead of \"*util\"")
	}
	return nil
}

func rejectPureWildcard(raw string) error {
	if strings.Trim(raw, "*? \t") == "" {
		return cserr.InvalidQuery(
			"query consists only of wildcards",
			"add at least one literal character to the pattern")
	}
	return nil
}

func buildStandard(raw, field string, terms []string, spec Spec) (*Built, error) {
	if err := rejectLeadingWildcard(raw, spec); err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return nil, cserr.InvalidQuery(
			"query produced no searchable terms",
			"use identifiers or words of two or more characters")
	}

	// Boolean-OR across analyzed terms; filename hits ride along so a bare
	// filename query works without a dedicated mode.
	content := bleve.NewMatchQuery(raw)
	content.SetField(field)
	content.Analyzer = analyzerFor(spec.CaseSensitive)

	filename := bleve.NewMatchQuery(raw)
	filename.SetField("filename")
	filename.Analyzer = analysis.CodeAnalyzerName

	q := bleve.NewDisjunctionQuery(content, filename)
	return &Built{Query: q, Terms: terms, Field: field}, nil
}

func buildPhrase(raw, field string, terms []string, spec Spec) (*Built, error) {
	if len(terms) == 0 {
		return nil, cserr.InvalidQuery("query produced no searchable terms", "")
	}

	q := bleve.NewMatchPhraseQuery(raw)
	q.SetField(field)
	q.Analyzer = analyzerFor(spec.CaseSensitive)
	return &Built{Query: q, Terms: terms, Field: field}, nil
}

func buildCode(raw, field string, terms []string, spec Spec) (*Built, error) {
	if len(terms) == 0 {
		return nil, cserr.InvalidQuery("query produced no searchable terms", "")
	}

	// Operators survive the code analyzer, so a phrase keeps expressions
	// like "x => y" intact; single-term queries fall back to a match.
	if len(terms) > 1 {
		q := bleve.NewMatchPhraseQuery(raw)
		q.SetField(field)
		q.Analyzer = analyzerFor(spec.CaseSensitive)
		return &Built{Query: q, Terms: terms, Field: field}, nil
	}

	q := bleve.NewMatchQuery(raw)
	q.SetField(field)
	q.Analyzer = analyzerFor(spec.CaseSensitive)
	return &Built{Query: q, Terms: terms, Field: field}, nil
}

func buildWildcard(raw, field string, terms []string, spec Spec) (*Built, error) {
	if err := rejectPureWildcard(raw); err != nil {
		return nil, err
	}
	if err := rejectLeadingWildcard(raw, spec); err != nil {
		return nil, err
	}
	if strings.ContainsAny(raw, " \t") {
		return nil, cserr.InvalidQuery(
			"wildcard queries take a single term",
			"remove whitespace or use a standard search")
	}

	pattern := raw
	if !spec.CaseSensitive {
		pattern = strings.ToLower(pattern)
	}
	q := bleve.NewWildcardQuery(pattern)
	q.SetField(field)
	return &Built{Query: q, Terms: terms, Field: field}, nil
}

func buildFuzzy(raw, field string, terms []string, spec Spec) (*Built, error) {
	if len(terms) == 0 {
		return nil, cserr.InvalidQuery("query produced no searchable terms", "")
	}

	var sub []bquery.Query
	for _, term := range terms {
		if len(term) > maxFuzzyTermLength {
			tq := bleve.NewTermQuery(term)
			tq.SetField(field)
			sub = append(sub, tq)
			continue
		}
		fq := bleve.NewFuzzyQuery(term)
		fq.SetField(field)
		fq.SetFuzziness(fuzzinessFor(term))
		sub = append(sub, fq)
	}
	return &Built{Query: bleve.NewDisjunctionQuery(sub...), Terms: terms, Field: field}, nil
}

func buildRegex(raw, field string, terms []string, spec Spec) (*Built, error) {
	if _, err := regexp.Compile(raw); err != nil {
		return nil, cserr.InvalidQuery(
			fmt.Sprintf("invalid regular expression: %v", err),
			"check the pattern syntax; the engine uses RE2")
	}

	// Bleve regexp queries match single indexed terms, so anchors around the
	// whole pattern are stripped and the pattern must match a whole term. The
	// pattern is not matched against stored lines: there is no line-level
	// anchoring, and snippets come from plain term containment.
	pattern := strings.TrimPrefix(raw, "^")
	pattern = strings.TrimSuffix(pattern, "$")
	if !spec.CaseSensitive {
		pattern = strings.ToLower(pattern)
	}

	q := bleve.NewRegexpQuery(pattern)
	q.SetField(field)
	return &Built{Query: q, Terms: terms, Field: field}, nil
}

// fuzzinessFor bounds edit distance by term length: short terms allow one
// edit, longer terms two.
func fuzzinessFor(term string) int {
	if len(term) <= 4 {
		return 1
	}
	return 2
}

func analyzerFor(caseSensitive bool) string {
	if caseSensitive {
		return analysis.CodeAnalyzerCSName
	}
	return analysis.CodeAnalyzerName
}
