package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeCodePreservesJoinedIdentifier(t *testing.T) {
	terms := Terms("HttpClientFactory", false)
	assert.Contains(t, terms, "httpclientfactory")
	assert.Contains(t, terms, "http")
	assert.Contains(t, terms, "client")
	assert.Contains(t, terms, "factory")
}

func TestTokenizeCodeSnakeCase(t *testing.T) {
	terms := Terms("get_user_by_id", false)
	assert.Contains(t, terms, "get_user_by_id")
	assert.Contains(t, terms, "get")
	assert.Contains(t, terms, "user")
	assert.Contains(t, terms, "id")
}

func TestTokenizeCodeOperators(t *testing.T) {
	for _, op := range []string{"=>", "??", "?.", "::", "->", "+=", "-=", "==", "!=", ">=", "<=", "&&", "||", "<<", ">>"} {
		terms := Terms("a "+op+" b", false)
		assert.Contains(t, terms, op, "operator %q must survive tokenization", op)
	}
}

func TestTokenizeCodeCaseModes(t *testing.T) {
	lower := Terms("HttpClient", false)
	assert.Contains(t, lower, "httpclient")

	exact := Terms("HttpClient", true)
	assert.Contains(t, exact, "HttpClient")
	assert.Contains(t, exact, "Http")
	assert.Contains(t, exact, "Client")
}

func TestTokenizeCodeNoStemming(t *testing.T) {
	terms := Terms("running runners", false)
	assert.Contains(t, terms, "running")
	assert.Contains(t, terms, "runners")
	assert.NotContains(t, terms, "run")
}

func TestSplitCamelCase(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"getUserById", []string{"get", "User", "By", "Id"}},
		{"HTTPHandler", []string{"HTTP", "Handler"}},
		{"parseHTTPRequest", []string{"parse", "HTTP", "Request"}},
		{"simple", []string{"simple"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitCamelCase(tt.in), "input %q", tt.in)
	}
}

func TestTokenOffsets(t *testing.T) {
	tokens := TokenizeCode("foo BarBaz", true)

	// First token is the whole word "foo" at [0,3).
	assert.Equal(t, "foo", tokens[0].Term)
	assert.Equal(t, 0, tokens[0].Start)
	assert.Equal(t, 3, tokens[0].End)

	// "BarBaz" whole token spans [4,10).
	var whole *Token
	for i := range tokens {
		if tokens[i].Term == "BarBaz" {
			whole = &tokens[i]
		}
	}
	if assert.NotNil(t, whole) {
		assert.Equal(t, 4, whole.Start)
		assert.Equal(t, 10, whole.End)
	}
}

func TestTokenizeDropsNoise(t *testing.T) {
	terms := Terms("x = y + 1", false)
	// Single letters and bare digits are noise; "+" and "=" are not
	// preserved operators.
	assert.NotContains(t, terms, "x")
	assert.NotContains(t, terms, "=")
}
