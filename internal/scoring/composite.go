package scoring

import (
	"sort"
)

// scoreEpsilon is the tie window for final scores.
const scoreEpsilon = 1e-6

// Scored pairs a document view with its base and final scores.
type Scored struct {
	Doc   *DocView
	Base  float64
	Final float64

	// FactorScores records each factor's contribution for diagnostics.
	FactorScores map[string]float64
}

// Combine computes the final score for one document:
//
//	factor = Σ (w·s) / Σ w
//	final  = 0.6·base + 0.4·(factor·base)
//
// A document the base query scored at zero stays at zero.
func Combine(base float64, doc *DocView, qc *QueryContext, factors []Factor) *Scored {
	s := &Scored{
		Doc:          doc,
		Base:         base,
		FactorScores: make(map[string]float64, len(factors)),
	}

	var weighted, totalWeight float64
	for _, f := range factors {
		w := f.Weight()
		if w <= 0 {
			continue
		}
		score := clamp01(f.Score(doc, qc))
		s.FactorScores[f.Name()] = score
		weighted += w * score
		totalWeight += w
	}

	factorScore := 0.0
	if totalWeight > 0 {
		factorScore = weighted / totalWeight
	}

	s.Final = 0.6*base + 0.4*(factorScore*base)
	return s
}

// Rank scores and orders hits. Ties within scoreEpsilon break by shorter
// relative path, then earlier last_modified, then lexicographic path, which
// keeps the ordering deterministic across runs.
func Rank(hits []*Scored) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		diff := a.Final - b.Final
		if diff > scoreEpsilon {
			return true
		}
		if diff < -scoreEpsilon {
			return false
		}

		la, lb := len(a.Doc.RelativePath), len(b.Doc.RelativePath)
		if la != lb {
			return la < lb
		}
		if a.Doc.LastModified != b.Doc.LastModified {
			return a.Doc.LastModified < b.Doc.LastModified
		}
		return a.Doc.Path < b.Doc.Path
	})
}
