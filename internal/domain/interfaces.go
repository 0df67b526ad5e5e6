package domain

import "context"

// DefaultBaseline is the reserved facet tag whose vectors contribute to every facet.
const DefaultBaseline = "MAIN"

// Vector is a dense word embedding.
type Vector []float64

// EmbeddingTable maps a normalized word to its vector within one facet.
type EmbeddingTable map[string]Vector

// FrequencyTable maps a word to its occurrence count, scoped to one facet or global.
type FrequencyTable map[string]int

// Get returns the count for word, or 0 when the word is absent.
func (t FrequencyTable) Get(word string) int {
	if t == nil {
		return 0
	}
	return t[word]
}

// Has reports whether the table carries an explicit count for word.
func (t FrequencyTable) Has(word string) bool {
	_, ok := t[word]
	return ok
}

// PairDistance is the aggregate distance between two facets.
type PairDistance struct {
	A        string
	B        string
	Distance float64
}

// PairwiseFunc computes the distance between two facets.
type PairwiseFunc func(ctx context.Context, a, b string) (float64, error)

// LoadStats counts what a line-oriented loader accepted and skipped.
type LoadStats struct {
	Lines     int
	Accepted  int
	Malformed int
	Ignored   int
}

// Add folds other into s.
func (s *LoadStats) Add(other LoadStats) {
	s.Lines += other.Lines
	s.Accepted += other.Accepted
	s.Malformed += other.Malformed
	s.Ignored += other.Ignored
}
