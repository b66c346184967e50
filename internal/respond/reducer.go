package respond

import (
	"github.com/coa-dev/codesearch/internal/index"
)

// Mode is the response verbosity.
type Mode string

const (
	// ModeFull returns hits with snippets and metadata.
	ModeFull Mode = "full"
	// ModeSummary strips snippets and trims metadata to fit tight budgets.
	ModeSummary Mode = "summary"
)

// budget allocation shares. Data carries the hits, insights the derived
// statistics, actions the follow-up suggestions.
const (
	shareData     = 0.70
	shareInsights = 0.15
	shareActions  = 0.15
)

// Response is the shaped, budget-fitted search response.
type Response struct {
	Hits    []index.SearchHit `json:"hits"`
	Total   uint64            `json:"total_matches"`
	Mode    Mode              `json:"mode"`
	Insights []string         `json:"insights,omitempty"`
	Actions  []string         `json:"actions,omitempty"`

	// EstimatedTokens is the final estimated response size.
	EstimatedTokens int `json:"estimated_tokens"`

	// Reduced marks that hits were dropped to fit the budget.
	Reduced bool `json:"reduced,omitempty"`

	// AutoModeSwitch marks an automatic full -> summary downgrade.
	AutoModeSwitch bool `json:"auto_mode_switch,omitempty"`

	// OriginalCount is the pre-reduction hit count when Reduced is set.
	OriginalCount int `json:"original_count,omitempty"`

	// ResultHandle is the content-addressed URI of the full result set
	// when reduction occurred and a handle store was available.
	ResultHandle string `json:"result_handle,omitempty"`
}

// Reducer fits search results into token budgets.
type Reducer struct {
	est           *Estimator
	handles       *HandleStore
	defaultBudget int
}

// NewReducer creates a reducer. handles may be nil (no full-result
// preservation).
func NewReducer(defaultBudget int, handles *HandleStore) *Reducer {
	if defaultBudget <= 0 {
		defaultBudget = 20000
	}
	return &Reducer{
		est:           NewEstimator(),
		handles:       handles,
		defaultBudget: defaultBudget,
	}
}

// Reduce shapes a search result under the budget (0 means the default).
// Hits arrive ranked; reduction drops from the tail so the score-priority
// order decides survival.
func (r *Reducer) Reduce(res *index.SearchResult, requestedMode Mode, budget int) *Response {
	if budget <= 0 {
		budget = r.defaultBudget
	}
	if requestedMode == "" {
		requestedMode = ModeFull
	}

	insights := Insights(res)
	actions := Actions(res)

	out := &Response{
		Hits:     res.Hits,
		Total:    res.TotalMatches,
		Mode:     requestedMode,
		Insights: insights,
		Actions:  actions,
	}

	dataBudget := int(float64(budget) * shareData)
	insightBudget := int(float64(budget) * (shareInsights + shareActions))

	// Trim insights/actions first if they alone blow their share.
	for r.est.CountJSON(out.Insights)+r.est.CountJSON(out.Actions) > insightBudget && len(out.Insights) > 1 {
		out.Insights = out.Insights[:len(out.Insights)-1]
	}

	// Fit hits into the data share, dropping lowest-priority hits.
	originalCount := len(out.Hits)
	for len(out.Hits) > 0 && r.estimateHits(out.Hits) > dataBudget {
		// When full mode cannot fit even half the hits, switch to summary
		// before dropping further.
		if out.Mode == ModeFull && len(out.Hits) <= originalCount/2 {
			out.Mode = ModeSummary
			out.AutoModeSwitch = true
			out.Hits = stripSnippets(out.Hits)
			continue
		}
		out.Hits = out.Hits[:len(out.Hits)-1]
	}

	// An empty result set reports in summary mode.
	if len(out.Hits) == 0 {
		out.Mode = ModeSummary
	}

	// Final guard: the whole envelope must fit the budget.
	for len(out.Hits) > 0 && r.est.CountJSON(out) > budget {
		if out.Mode == ModeFull {
			out.Mode = ModeSummary
			out.AutoModeSwitch = true
			out.Hits = stripSnippets(out.Hits)
			continue
		}
		out.Hits = out.Hits[:len(out.Hits)-1]
	}

	if len(out.Hits) < originalCount {
		out.Reduced = true
		out.OriginalCount = originalCount
		if r.handles != nil {
			if uri, err := r.handles.Put(res.Hits); err == nil {
				out.ResultHandle = uri
			}
		}
	}

	// The reduction metadata itself costs a few tokens; re-check.
	for len(out.Hits) > 0 && r.est.CountJSON(out) > budget {
		out.Hits = out.Hits[:len(out.Hits)-1]
	}

	out.EstimatedTokens = r.est.CountJSON(out)
	return out
}

func (r *Reducer) estimateHits(hits []index.SearchHit) int {
	total := 0
	for i := range hits {
		total += r.est.CountJSON(&hits[i])
	}
	return total
}

func stripSnippets(hits []index.SearchHit) []index.SearchHit {
	out := make([]index.SearchHit, len(hits))
	copy(out, hits)
	for i := range out {
		out[i].Snippets = nil
		out[i].TypeInfo = nil
	}
	return out
}
