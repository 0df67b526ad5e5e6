// Package matrix assembles facet-pair distances into a square matrix, checks
// its symmetry and flattens it into the condensed form used by clustering.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"facetree/internal/domain"
)

var (
	// ErrAsymmetric reports M[i][j] != M[j][i]. It points at a computation-order
	// bug upstream and is never corrected silently.
	ErrAsymmetric = errors.New("distance matrix is not symmetric")
	// ErrCondensedLength reports a condensed vector whose length is not n(n-1)/2.
	ErrCondensedLength = errors.New("condensed vector has wrong length")
	// ErrTooFewFacets is returned when fewer than two facets are given.
	ErrTooFewFacets = errors.New("need at least two facets")
	// ErrMissingPair is returned when a pair list does not cover every cell.
	ErrMissingPair = errors.New("missing facet pair")
)

// Matrix is a square distance matrix indexed by sorted facet names.
type Matrix struct {
	names []string
	index map[string]int
	data  *mat.Dense
	// RawDiagonal keeps the computed self-distances before they were forced to 0.
	RawDiagonal []float64
}

// Observer is told about every computed cell, in computation order.
type Observer func(done, total int, a, b string, d float64)

// Options configures Build.
type Options struct {
	// KeepDiagonal leaves computed self-distances on the diagonal instead of
	// forcing them to 0.
	KeepDiagonal bool
	Observer     Observer
}

// Build computes fn(a, b) for every ordered pair of facets, including a == b,
// one pair at a time.
func Build(ctx context.Context, facets []string, fn domain.PairwiseFunc, opts Options) (*Matrix, error) {
	if len(facets) < 2 {
		return nil, ErrTooFewFacets
	}
	m := newMatrix(facets)
	n := len(m.names)
	m.RawDiagonal = make([]float64, n)
	total := n * n
	done := 0
	for i, a := range m.names {
		for j, b := range m.names {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			d, err := fn(ctx, a, b)
			if err != nil {
				return nil, fmt.Errorf("distance %s/%s: %w", a, b, err)
			}
			if i == j {
				m.RawDiagonal[i] = d
				if !opts.KeepDiagonal {
					d = 0
				}
			}
			m.data.Set(i, j, d)
			done++
			if opts.Observer != nil {
				opts.Observer(done, total, a, b, d)
			}
		}
	}
	return m, nil
}

// FromPairs builds a matrix from a complete list of ordered pair distances,
// e.g. a parsed report.
func FromPairs(pairs []domain.PairDistance) (*Matrix, error) {
	seen := make(map[string]struct{})
	var names []string
	for _, p := range pairs {
		for _, f := range []string{p.A, p.B} {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				names = append(names, f)
			}
		}
	}
	if len(names) < 2 {
		return nil, ErrTooFewFacets
	}
	m := newMatrix(names)
	n := len(m.names)
	filled := make([]bool, n*n)
	for _, p := range pairs {
		i, j := m.index[p.A], m.index[p.B]
		m.data.Set(i, j, p.Distance)
		filled[i*n+j] = true
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if !filled[i*n+j] {
				return nil, fmt.Errorf("%w: %s %s", ErrMissingPair, m.names[i], m.names[j])
			}
		}
	}
	return m, nil
}

// FromCondensed expands a condensed vector into a symmetric zero-diagonal matrix.
func FromCondensed(names []string, condensed []float64) (*Matrix, error) {
	n := len(names)
	if n < 2 {
		return nil, ErrTooFewFacets
	}
	if len(condensed) != n*(n-1)/2 {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCondensedLength, len(condensed), n*(n-1)/2)
	}
	m := &Matrix{names: append([]string(nil), names...), index: make(map[string]int, n), data: mat.NewDense(n, n, nil)}
	for i, name := range m.names {
		m.index[name] = i
	}
	k := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			m.data.Set(i, j, condensed[k])
			m.data.Set(j, i, condensed[k])
			k++
		}
	}
	return m, nil
}

func newMatrix(facets []string) *Matrix {
	names := append([]string(nil), facets...)
	sort.Strings(names)
	m := &Matrix{names: names, index: make(map[string]int, len(names))}
	for i, name := range names {
		m.index[name] = i
	}
	m.data = mat.NewDense(len(names), len(names), nil)
	return m
}

// Names returns the row and column labels in order.
func (m *Matrix) Names() []string { return append([]string(nil), m.names...) }

// Size returns the number of facets.
func (m *Matrix) Size() int { return len(m.names) }

// At returns the distance between the i-th and j-th facets.
func (m *Matrix) At(i, j int) float64 { return m.data.At(i, j) }

// Get returns the distance between two named facets.
func (m *Matrix) Get(a, b string) (float64, bool) {
	i, ok := m.index[a]
	if !ok {
		return 0, false
	}
	j, ok := m.index[b]
	if !ok {
		return 0, false
	}
	return m.data.At(i, j), true
}

// VerifySymmetric checks M[i][j] == M[j][i] exactly for every cell.
func (m *Matrix) VerifySymmetric() error {
	n := len(m.names)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if a, b := m.data.At(i, j), m.data.At(j, i); a != b {
				return fmt.Errorf("%w: %s/%s=%v but %s/%s=%v",
					ErrAsymmetric, m.names[i], m.names[j], a, m.names[j], m.names[i], b)
			}
		}
	}
	return nil
}

// Flatten returns the strict upper triangle in row-major order.
func (m *Matrix) Flatten() ([]float64, error) {
	n := len(m.names)
	out := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, m.data.At(i, j))
		}
	}
	if len(out) != n*(n-1)/2 {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCondensedLength, len(out), n*(n-1)/2)
	}
	return out, nil
}

// Condensed verifies symmetry and flattens in one step.
func (m *Matrix) Condensed() ([]float64, error) {
	if err := m.VerifySymmetric(); err != nil {
		return nil, err
	}
	return m.Flatten()
}

// Without returns a copy of m with the named facets removed.
func (m *Matrix) Without(drop []string) (*Matrix, error) {
	skip := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		skip[d] = struct{}{}
	}
	var keep []int
	for i, name := range m.names {
		if _, ok := skip[name]; !ok {
			keep = append(keep, i)
		}
	}
	if len(keep) < 2 {
		return nil, ErrTooFewFacets
	}
	out := &Matrix{names: make([]string, len(keep)), index: make(map[string]int, len(keep))}
	out.data = mat.NewDense(len(keep), len(keep), nil)
	for a, i := range keep {
		out.names[a] = m.names[i]
		out.index[m.names[i]] = a
		for b, j := range keep {
			out.data.Set(a, b, m.data.At(i, j))
		}
	}
	if m.RawDiagonal != nil {
		out.RawDiagonal = make([]float64, len(keep))
		for a, i := range keep {
			out.RawDiagonal[a] = m.RawDiagonal[i]
		}
	}
	return out, nil
}

// Pairs lists every ordered pair, row by row.
func (m *Matrix) Pairs() []domain.PairDistance {
	n := len(m.names)
	out := make([]domain.PairDistance, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out = append(out, domain.PairDistance{A: m.names[i], B: m.names[j], Distance: m.data.At(i, j)})
		}
	}
	return out
}
