package classify

import (
	"math"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Scorer rates the similarity of two strings on a 0-100 scale. The
// resolver only depends on this interface, so the metric is swappable.
type Scorer interface {
	Score(a, b string) int
}

// LevenshteinScorer is the default scorer: normalized edit distance,
// case-insensitive.
type LevenshteinScorer struct {
	metric *metrics.Levenshtein
}

func NewLevenshteinScorer() *LevenshteinScorer {
	m := metrics.NewLevenshtein()
	m.CaseSensitive = false
	return &LevenshteinScorer{metric: m}
}

func (s *LevenshteinScorer) Score(a, b string) int {
	return int(math.Round(strutil.Similarity(a, b, s.metric) * 100))
}
