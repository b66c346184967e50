// Package respond shapes search responses under a token budget.
//
// Every response is estimated in model tokens, reduced by score priority
// when over budget, and annotated with deterministic insights and follow-up
// actions. Full result sets survive reduction under a content-addressed
// handle for later retrieval.
package respond

import (
	"encoding/json"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts model tokens for response budgeting.
type Estimator struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

var (
	sharedEstimator *Estimator
	estimatorOnce   sync.Once
)

// NewEstimator returns the shared token estimator. Encoding setup is
// expensive, so one instance serves the process; when the encoding cannot
// load (offline first run), estimation falls back to a bytes/4 heuristic.
func NewEstimator() *Estimator {
	estimatorOnce.Do(func() {
		sharedEstimator = &Estimator{}
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			sharedEstimator.enc = enc
		}
	})
	return sharedEstimator
}

// Count estimates tokens for a string.
func (e *Estimator) Count(s string) int {
	if s == "" {
		return 0
	}
	if e.enc != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		return len(e.enc.Encode(s, nil, nil))
	}
	// Heuristic fallback: ~4 bytes per token for code-like text.
	n := len(s) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// CountJSON estimates tokens for a value's JSON encoding.
func (e *Estimator) CountJSON(v interface{}) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return e.Count(string(data))
}
