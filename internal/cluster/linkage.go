// Package cluster builds agglomerative merge trees from condensed distance
// vectors.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Linkage names the rule for the distance between two clusters.
type Linkage string

const (
	// Ward merges the pair that least increases within-cluster variance.
	Ward     Linkage = "ward"
	Single   Linkage = "single"
	Complete Linkage = "complete"
	// Average is UPGMA.
	Average Linkage = "average"
	// Weighted is WPGMA.
	Weighted Linkage = "weighted"
)

// DefaultLinkage is used when none is configured.
const DefaultLinkage = Ward

var (
	ErrUnknownLinkage  = errors.New("unknown linkage")
	ErrTooFewLeaves    = errors.New("need at least two leaves")
	ErrCondensedLength = errors.New("condensed vector has wrong length")
	ErrInvalidDistance = errors.New("invalid distance")
	// ErrNonMonotonic reports a merge closer than the one before it, which
	// none of the supported linkages can produce on valid input.
	ErrNonMonotonic = errors.New("merge distances are not monotonic")
)

// monotonicSlack absorbs rounding in the Lance-Williams updates.
const monotonicSlack = 1e-12

// Linkages lists every supported criterion.
func Linkages() []Linkage {
	return []Linkage{Ward, Single, Complete, Average, Weighted}
}

// ParseLinkage resolves a case-insensitive linkage name; "" means the default.
func ParseLinkage(s string) (Linkage, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultLinkage, nil
	}
	switch s {
	case "upgma":
		return Average, nil
	case "wpgma":
		return Weighted, nil
	}
	for _, l := range Linkages() {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLinkage, s)
}

// update returns the distance from the union of clusters i and j to cluster k
// (Lance-Williams recurrence). Ward works on Euclidean distances the way
// SciPy does, squaring before the update and taking the root after.
func (l Linkage) update(dik, djk, dij float64, ni, nj, nk int) float64 {
	fi, fj, fk := float64(ni), float64(nj), float64(nk)
	switch l {
	case Single:
		return math.Min(dik, djk)
	case Complete:
		return math.Max(dik, djk)
	case Average:
		return (fi*dik + fj*djk) / (fi + fj)
	case Weighted:
		return (dik + djk) / 2
	default:
		sq := ((fi+fk)*dik*dik + (fj+fk)*djk*djk - fk*dij*dij) / (fi + fj + fk)
		if sq < 0 {
			sq = 0
		}
		return math.Sqrt(sq)
	}
}

// Cluster merges n leaves bottom-up until one cluster remains.
//
// Leaves are ids 0..n-1 and the cluster built by step s gets id n+s. Each step
// merges the closest active pair; ties go to the lowest (i, j). The result
// always holds n-1 merges with non-decreasing distances, or an error.
func Cluster(condensed []float64, n int, linkage Linkage) (*MergeTree, error) {
	if n < 2 {
		return nil, ErrTooFewLeaves
	}
	if len(condensed) != n*(n-1)/2 {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCondensedLength, len(condensed), n*(n-1)/2)
	}
	linkage, err := ParseLinkage(string(linkage))
	if err != nil {
		return nil, err
	}

	total := 2*n - 1
	d := mat.NewSymDense(total, nil)
	k := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := condensed[k]
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, fmt.Errorf("%w: %v between leaves %d and %d", ErrInvalidDistance, v, i, j)
			}
			d.SetSym(i, j, v)
			k++
		}
	}

	active := make([]bool, total)
	size := make([]int, total)
	for i := 0; i < n; i++ {
		active[i] = true
		size[i] = 1
	}

	tree := &MergeTree{Leaves: n, Linkage: linkage, Merges: make([]Merge, 0, n-1)}
	for step := 0; step < n-1; step++ {
		limit := n + step
		minI, minJ := -1, -1
		minDist := math.Inf(1)
		for i := 0; i < limit; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < limit; j++ {
				if !active[j] {
					continue
				}
				if dij := d.At(i, j); dij < minDist {
					minDist, minI, minJ = dij, i, j
				}
			}
		}

		if len(tree.Merges) > 0 {
			prev := tree.Merges[len(tree.Merges)-1].Distance
			if minDist < prev-monotonicSlack*math.Max(1, math.Abs(prev)) {
				return nil, fmt.Errorf("%w: step %d merges at %v after %v", ErrNonMonotonic, step, minDist, prev)
			}
		}

		id := limit
		size[id] = size[minI] + size[minJ]
		active[minI], active[minJ] = false, false
		for c := 0; c < limit; c++ {
			if !active[c] {
				continue
			}
			v := linkage.update(d.At(minI, c), d.At(minJ, c), minDist, size[minI], size[minJ], size[c])
			d.SetSym(id, c, v)
		}
		active[id] = true

		tree.Merges = append(tree.Merges, Merge{A: minI, B: minJ, Distance: minDist, Size: size[id]})
	}
	return tree, nil
}
