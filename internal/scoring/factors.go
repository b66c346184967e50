// Package scoring implements the composite relevance scorer.
//
// The base score comes from the index's text query. Each scoring factor is
// an independent signal in [0,1] with a configurable weight; the composite
// folds the weighted factor average back into the base score so factors
// shape the ranking without ever resurrecting a document the text query
// scored at zero.
package scoring

import (
	"math"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// DocView is the scorer's read-only view of one hit's stored fields.
type DocView struct {
	Path         string
	RelativePath string
	Filename     string
	Extension    string
	Language     string
	LastModified int64
	Size         int64
	TypeNames    []string
	Lines        []string
}

// QueryContext carries per-query signals shared by all factors.
type QueryContext struct {
	Raw           string
	Terms         []string
	CaseSensitive bool
	Now           time.Time

	// exactRe is the word-boundary pattern for the cleaned query, built
	// once per query.
	exactRe *regexp.Regexp
}

// NewQueryContext prepares the shared query signals.
func NewQueryContext(raw string, terms []string, caseSensitive bool) *QueryContext {
	qc := &QueryContext{
		Raw:           raw,
		Terms:         terms,
		CaseSensitive: caseSensitive,
		Now:           time.Now(),
	}

	cleaned := strings.TrimSpace(raw)
	if cleaned != "" {
		pattern := `\b` + regexp.QuoteMeta(cleaned) + `\b`
		if !caseSensitive {
			pattern = `(?i)` + pattern
		}
		if re, err := regexp.Compile(pattern); err == nil {
			qc.exactRe = re
		}
	}
	return qc
}

// LooksLikeInterface reports the IFoo naming convention.
func (qc *QueryContext) LooksLikeInterface() bool {
	w := strings.TrimSpace(qc.Raw)
	return len(w) >= 2 && w[0] == 'I' && unicode.IsUpper(rune(w[1]))
}

// IsTypeQuery reports whether the query names a single PascalCase
// identifier, the shape of a type lookup.
func (qc *QueryContext) IsTypeQuery() bool {
	w := strings.TrimSpace(qc.Raw)
	if w == "" || strings.ContainsAny(w, " \t") {
		return false
	}
	return unicode.IsUpper(rune(w[0]))
}

// Factor is one independently weighted scoring signal.
type Factor interface {
	Name() string
	Weight() float64
	Score(doc *DocView, qc *QueryContext) float64
}

// DefaultFactors returns the standard factor stack.
func DefaultFactors() []Factor {
	return []Factor{
		PathRelevance{W: 1.0},
		FilenameRelevance{W: 1.0},
		FileType{W: 0.5},
		RecencyBoost{W: 0.5, HalfLife: 30 * 24 * time.Hour},
		ExactMatchBoost{W: 1.5},
		InterfaceImplementation{W: 0.5},
		TypeDefinitionBoost{W: 1.0},
	}
}

// deboostedPathParts are directories that rarely hold the code a search is
// after.
var deboostedPathParts = []string{
	"test", "tests", "spec", "specs", "bin", "obj",
	"node_modules", ".git", "vendor", "dist", "build",
}

var boostedPathParts = []string{"src", "internal", "lib", "pkg", "core"}

// PathRelevance deboosts junk directories and boosts code directories.
type PathRelevance struct{ W float64 }

func (PathRelevance) Name() string     { return "path_relevance" }
func (f PathRelevance) Weight() float64 { return f.W }

func (PathRelevance) Score(doc *DocView, _ *QueryContext) float64 {
	score := 0.5
	lower := strings.ToLower(doc.RelativePath)
	parts := strings.Split(lower, "/")

	for _, part := range parts {
		for _, bad := range deboostedPathParts {
			if part == bad {
				score -= 0.25
			}
		}
		for _, good := range boostedPathParts {
			if part == good {
				score += 0.15
			}
		}
	}
	return clamp01(score)
}

// FilenameRelevance rewards query terms appearing in the filename, with the
// top reward for an exact stem match.
type FilenameRelevance struct{ W float64 }

func (FilenameRelevance) Name() string     { return "filename_relevance" }
func (f FilenameRelevance) Weight() float64 { return f.W }

func (FilenameRelevance) Score(doc *DocView, qc *QueryContext) float64 {
	if len(qc.Terms) == 0 {
		return 0
	}

	stem := strings.TrimSuffix(doc.Filename, path.Ext(doc.Filename))
	lowerStem := strings.ToLower(stem)

	cleaned := strings.ToLower(strings.TrimSpace(qc.Raw))
	if cleaned != "" && lowerStem == cleaned {
		return 1.0
	}

	matched := 0
	for _, term := range qc.Terms {
		if strings.Contains(lowerStem, strings.ToLower(term)) {
			matched++
		}
	}
	if matched == len(qc.Terms) {
		return 0.3
	}
	return 0.3 * float64(matched) / float64(len(qc.Terms)) * 0.5
}

// configExtensions get a context-aware boost when the query smells like
// configuration.
var configExtensions = map[string]struct{}{
	".json": {}, ".yaml": {}, ".yml": {}, ".xml": {}, ".toml": {}, ".ini": {},
}

// codeExtensionWeights rank file types by how often they hold the answer.
var codeExtensionWeights = map[string]float64{
	".go": 0.9, ".cs": 0.9, ".ts": 0.85, ".tsx": 0.85, ".js": 0.8,
	".jsx": 0.8, ".py": 0.85, ".rs": 0.9, ".java": 0.85, ".c": 0.8,
	".cpp": 0.8, ".h": 0.7, ".hpp": 0.7, ".rb": 0.8, ".php": 0.75,
	".md": 0.4, ".json": 0.3, ".yaml": 0.3, ".yml": 0.3, ".xml": 0.25,
	".txt": 0.2, ".lock": 0.05,
}

// FileType applies the per-extension weight table, context-aware for
// config-flavored queries.
type FileType struct{ W float64 }

func (FileType) Name() string     { return "file_type" }
func (f FileType) Weight() float64 { return f.W }

func (FileType) Score(doc *DocView, qc *QueryContext) float64 {
	lowerRaw := strings.ToLower(qc.Raw)
	if strings.Contains(lowerRaw, "config") || strings.Contains(lowerRaw, "settings") {
		if _, ok := configExtensions[doc.Extension]; ok {
			return 0.9
		}
	}

	if w, ok := codeExtensionWeights[doc.Extension]; ok {
		return w
	}
	return 0.5
}

// RecencyBoost decays exponentially with the age of last_modified, halving
// every HalfLife, so fresh files edge out stale ones without drowning text
// relevance.
type RecencyBoost struct {
	W        float64
	HalfLife time.Duration
}

func (RecencyBoost) Name() string     { return "recency_boost" }
func (f RecencyBoost) Weight() float64 { return f.W }

func (f RecencyBoost) Score(doc *DocView, qc *QueryContext) float64 {
	if doc.LastModified <= 0 {
		return 0
	}
	age := qc.Now.Sub(time.Unix(doc.LastModified, 0))
	if age < 0 {
		age = 0
	}
	halfLife := f.HalfLife
	if halfLife <= 0 {
		halfLife = 30 * 24 * time.Hour
	}
	// 1.0 now, 0.5 at one half-life, decaying toward 0.
	return clamp01(math.Exp2(-age.Hours() / halfLife.Hours()))
}

// ExactMatchBoost counts word-boundary occurrences of the cleaned query in
// stored content, with extra credit for a filename hit.
type ExactMatchBoost struct{ W float64 }

func (ExactMatchBoost) Name() string     { return "exact_match_boost" }
func (f ExactMatchBoost) Weight() float64 { return f.W }

func (ExactMatchBoost) Score(doc *DocView, qc *QueryContext) float64 {
	if qc.exactRe == nil || len(doc.Lines) == 0 {
		return 0
	}

	count := 0
	for _, line := range doc.Lines {
		count += len(qc.exactRe.FindAllStringIndex(line, -1))
		if count >= 10 {
			break
		}
	}
	if count == 0 {
		return 0
	}

	score := 0.4 + 0.03*float64(min(count, 10))
	if qc.exactRe.MatchString(doc.Filename) {
		score += 0.3
	}
	return clamp01(score)
}

// mockFileParts mark files that implement interfaces for tests rather than
// production use.
var mockFileParts = []string{"mock", "fake", "stub", "test", "spec"}

// InterfaceImplementation deboosts mock/test files when the query looks
// like an interface name.
type InterfaceImplementation struct{ W float64 }

func (InterfaceImplementation) Name() string     { return "interface_implementation" }
func (f InterfaceImplementation) Weight() float64 { return f.W }

func (InterfaceImplementation) Score(doc *DocView, qc *QueryContext) float64 {
	if !qc.LooksLikeInterface() {
		return 0.5
	}
	lower := strings.ToLower(doc.Filename)
	for _, part := range mockFileParts {
		if strings.Contains(lower, part) {
			return 0.1
		}
	}
	return 0.7
}

// TypeDefinitionBoost boosts documents whose embedded symbol summary
// contains a type matching a type-shaped query.
type TypeDefinitionBoost struct{ W float64 }

func (TypeDefinitionBoost) Name() string     { return "type_definition_boost" }
func (f TypeDefinitionBoost) Weight() float64 { return f.W }

func (TypeDefinitionBoost) Score(doc *DocView, qc *QueryContext) float64 {
	if !qc.IsTypeQuery() || len(doc.TypeNames) == 0 {
		return 0
	}
	want := strings.ToLower(strings.TrimSpace(qc.Raw))
	for _, name := range doc.TypeNames {
		if strings.ToLower(name) == want {
			return 1.0
		}
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
