// Package analysis provides code-aware tokenization for the inverted index.
//
// Standard text analyzers destroy the tokens that matter when searching
// source code: camelCase identifiers, snake_case names, and operator tokens.
// TokenizeCode preserves all of them — each identifier is emitted both whole
// and split into its parts, and a fixed set of multi-character operators
// survives tokenization as literal terms.
package analysis

import (
	"strings"
	"unicode"
)

// Operators are the multi-character operator tokens preserved verbatim.
// Longer operators are listed first so the scan is greedy.
var Operators = []string{
	"<<", ">>", "=>", "??", "?.", "::", "->",
	"+=", "-=", "==", "!=", ">=", "<=", "&&", "||",
}

// Token is a single term produced by the tokenizer, with its byte offsets in
// the original input.
type Token struct {
	Term  string
	Start int
	End   int
}

// TokenizeCode splits text with code-aware rules and reports byte offsets.
// Identifiers are emitted whole plus split on case and underscores, so
// "HttpClientFactory" yields http, client, factory, and httpclientfactory.
// Terms are lowercased unless caseSensitive is set. No stemming is applied.
func TokenizeCode(text string, caseSensitive bool) []Token {
	var tokens []Token

	emit := func(term string, start, end int) {
		if !caseSensitive {
			term = strings.ToLower(term)
		}
		if len(term) >= 2 || isSignificantShort(term) {
			tokens = append(tokens, Token{Term: term, Start: start, End: end})
		}
	}

	i := 0
	n := len(text)
	for i < n {
		c := text[i]

		// Identifier or number run.
		if isWordByte(c) {
			j := i
			for j < n && isWordByte(text[j]) {
				j++
			}
			word := text[i:j]

			// Whole identifier first so exact matches rank.
			emit(word, i, j)

			parts := SplitIdentifier(word)
			if len(parts) > 1 {
				off := i
				for _, part := range parts {
					// Locate each part sequentially; underscores skip.
					idx := strings.Index(text[off:j], part)
					if idx < 0 {
						idx = 0
					}
					start := off + idx
					emit(part, start, start+len(part))
					off = start + len(part)
				}
			}
			i = j
			continue
		}

		// Operator token.
		if op := matchOperator(text[i:]); op != "" {
			emit(op, i, i+len(op))
			i += len(op)
			continue
		}

		i++
	}

	return tokens
}

// Terms returns just the term strings from TokenizeCode.
func Terms(text string, caseSensitive bool) []string {
	tokens := TokenizeCode(text, caseSensitive)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

// SplitIdentifier splits snake_case and camelCase identifiers into parts.
// The whole identifier is NOT included; callers emit it separately.
func SplitIdentifier(token string) []string {
	var result []string

	if strings.Contains(token, "_") {
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, SplitCamelCase(part)...)
			}
		}
		return result
	}

	return SplitCamelCase(token)
}

// SplitCamelCase splits camelCase and PascalCase identifiers.
// Examples:
//   - "getUserById" -> ["get", "User", "By", "Id"]
//   - "HTTPHandler" -> ["HTTP", "Handler"]
//   - "parseHTTPRequest" -> ["parse", "HTTP", "Request"]
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

			// Split if previous is lowercase OR next is lowercase (handles acronyms).
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// matchOperator returns the operator at the start of s, or "".
func matchOperator(s string) string {
	for _, op := range Operators {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	return ""
}

// isWordByte reports whether b belongs to an identifier/number run.
func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

// isSignificantShort keeps single-character terms that carry meaning in
// queries (otherwise tokens under 2 chars are dropped as noise).
func isSignificantShort(term string) bool {
	switch term {
	case "c", "r", "go":
		return true
	}
	return false
}
