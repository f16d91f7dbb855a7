// File: internal/resolver/scoring.go
package resolver

// Scorer computes the observed confidence for a candidate from its static
// prior and the number of elements its strategy matched on the live page.
// It is pluggable so the heuristic can later be replaced (e.g. by a learned
// model) without touching the resolver's control flow.
type Scorer interface {
	Score(prior float64, matches int) float64
}

// UniquenessScorer is the default heuristic: zero matches score zero, a
// unique match keeps the full prior, and an ambiguous match is scaled down
// by the ambiguity penalty. With the default penalty of 0.7 an ambiguous
// 0.9-prior candidate lands at 0.63, below the 0.8 acceptance threshold, so
// ambiguity alone is enough to reject a strategy.
type UniquenessScorer struct {
	// AmbiguityPenalty must be in (0, 1).
	AmbiguityPenalty float64
}

func (s UniquenessScorer) Score(prior float64, matches int) float64 {
	switch {
	case matches <= 0:
		return 0
	case matches == 1:
		return prior
	default:
		return prior * s.AmbiguityPenalty
	}
}
