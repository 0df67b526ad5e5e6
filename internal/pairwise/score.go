package pairwise

import "math"

// Class is the outcome of scoring one word.
type Class int

const (
	// Regular words score (1-cos)^w * fd^(1-w).
	Regular Class = iota
	// DefinedZero words agree exactly (cos >= 1 or fd == 0) and score 0.
	DefinedZero
	// Invalid words produce no usable number and are left out of the mean.
	Invalid
)

func (c Class) String() string {
	switch c {
	case Regular:
		return "regular"
	case DefinedZero:
		return "zero"
	default:
		return "invalid"
	}
}

// Classify maps a cosine similarity and a frequency distance to the scoring
// rule that applies. Identical unit vectors can dot to slightly above 1, so
// any cosine >= 1 counts as an exact match.
func Classify(cosine, freqDistance float64) Class {
	if math.IsNaN(cosine) || math.IsNaN(freqDistance) || math.IsInf(freqDistance, 0) {
		return Invalid
	}
	if cosine >= 1.0 || freqDistance == 0.0 {
		return DefinedZero
	}
	if cosine < -1.0 || freqDistance < 0 {
		return Invalid
	}
	return Regular
}

// Score blends the embedding and frequency terms of one word. Rare words
// (weight near 0) lean on the cosine term, frequent words on the frequency term.
func Score(cosine, freqDistance, weight float64) (float64, Class) {
	if math.IsNaN(weight) || weight < 0 || weight > 1 {
		return 0, Invalid
	}
	class := Classify(cosine, freqDistance)
	switch class {
	case DefinedZero:
		return 0, DefinedZero
	case Invalid:
		return 0, Invalid
	}
	s := math.Pow(1.0-cosine, weight) * math.Pow(freqDistance, 1.0-weight)
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, Invalid
	}
	return s, Regular
}
