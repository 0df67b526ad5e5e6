package cluster

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// DefaultColorFraction is the share of the tallest merge below which
// subtrees are drawn in their own colour.
const DefaultColorFraction = 0.65

// ErrMalformedTree reports a merge sequence that does not describe one tree.
var ErrMalformedTree = errors.New("malformed merge tree")

// Merge is one agglomeration step.
type Merge struct {
	A        int     `json:"a" yaml:"a"`
	B        int     `json:"b" yaml:"b"`
	Distance float64 `json:"distance" yaml:"distance"`
	Size     int     `json:"size" yaml:"size"`
}

// MergeTree is the ordered merge sequence over Leaves leaves.
type MergeTree struct {
	Leaves  int     `json:"leaves" yaml:"leaves"`
	Linkage Linkage `json:"linkage" yaml:"linkage"`
	Merges  []Merge `json:"merges" yaml:"merges"`
}

// Root returns the id of the final cluster.
func (t *MergeTree) Root() int { return 2*t.Leaves - 2 }

// Height returns the merge distance of node id, 0 for leaves.
func (t *MergeTree) Height(id int) float64 {
	if id < t.Leaves {
		return 0
	}
	return t.Merges[id-t.Leaves].Distance
}

// Validate checks that the merges form a single tree: n-1 steps, every id
// consumed once and only after it exists, sizes adding up, and distances
// non-decreasing.
func (t *MergeTree) Validate() error {
	n := t.Leaves
	if n < 2 {
		return fmt.Errorf("%w: %d leaves", ErrMalformedTree, n)
	}
	if len(t.Merges) != n-1 {
		return fmt.Errorf("%w: %d merges for %d leaves", ErrMalformedTree, len(t.Merges), n)
	}
	used := make([]bool, 2*n-1)
	size := make([]int, 2*n-1)
	for i := 0; i < n; i++ {
		size[i] = 1
	}
	prev := math.Inf(-1)
	for s, m := range t.Merges {
		id := n + s
		for _, c := range []int{m.A, m.B} {
			if c < 0 || c >= id || used[c] {
				return fmt.Errorf("%w: step %d uses cluster %d", ErrMalformedTree, s, c)
			}
			used[c] = true
		}
		if m.A == m.B {
			return fmt.Errorf("%w: step %d merges %d with itself", ErrMalformedTree, s, m.A)
		}
		size[id] = size[m.A] + size[m.B]
		if m.Size != size[id] {
			return fmt.Errorf("%w: step %d has size %d, want %d", ErrMalformedTree, s, m.Size, size[id])
		}
		if m.Distance < prev-monotonicSlack*math.Max(1, math.Abs(prev)) {
			return fmt.Errorf("%w: step %d merges at %v after %v", ErrNonMonotonic, s, m.Distance, prev)
		}
		prev = m.Distance
	}
	return nil
}

// LinkageMatrix returns the merges as an (n-1)x4 matrix of
// [a, b, distance, size] rows, the layout SciPy's dendrogram expects.
func (t *MergeTree) LinkageMatrix() *mat.Dense {
	out := mat.NewDense(len(t.Merges), 4, nil)
	for i, m := range t.Merges {
		out.SetRow(i, []float64{float64(m.A), float64(m.B), m.Distance, float64(m.Size)})
	}
	return out
}

// MaxDistance returns the height of the root merge.
func (t *MergeTree) MaxDistance() float64 {
	if len(t.Merges) == 0 {
		return 0
	}
	return t.Merges[len(t.Merges)-1].Distance
}

// ColorThreshold returns fraction times the tallest merge.
func (t *MergeTree) ColorThreshold(fraction float64) float64 {
	return fraction * t.MaxDistance()
}

// Cut assigns a flat cluster label to every leaf by keeping only merges at
// or below threshold. Labels are numbered in leaf order starting at 0.
func (t *MergeTree) Cut(threshold float64) []int {
	n := t.Leaves
	parent := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for s, m := range t.Merges {
		id := n + s
		if m.Distance <= threshold {
			parent[find(m.A)] = id
			parent[find(m.B)] = id
		}
	}
	labels := make([]int, n)
	seen := make(map[int]int)
	for i := 0; i < n; i++ {
		root := find(i)
		l, ok := seen[root]
		if !ok {
			l = len(seen)
			seen[root] = l
		}
		labels[i] = l
	}
	return labels
}

// Members returns the leaves under node id in dendrogram order.
func (t *MergeTree) Members(id int) []int {
	var out []int
	stack := []int{id}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if c < t.Leaves {
			out = append(out, c)
			continue
		}
		m := t.Merges[c-t.Leaves]
		stack = append(stack, m.B, m.A)
	}
	return out
}

// LeafOrder returns the leaves left to right as a dendrogram draws them.
func (t *MergeTree) LeafOrder() []int {
	if len(t.Merges) == 0 {
		order := make([]int, t.Leaves)
		for i := range order {
			order[i] = i
		}
		return order
	}
	return t.Members(t.Root())
}

// Newick renders the tree with branch lengths equal to height differences.
func (t *MergeTree) Newick(labels []string) string {
	var b strings.Builder
	t.writeNewick(&b, t.Root(), labels)
	b.WriteString(";")
	return b.String()
}

func (t *MergeTree) writeNewick(b *strings.Builder, id int, labels []string) {
	if id < t.Leaves {
		b.WriteString(newickLabel(id, labels))
		return
	}
	m := t.Merges[id-t.Leaves]
	b.WriteString("(")
	for i, c := range []int{m.A, m.B} {
		if i > 0 {
			b.WriteString(",")
		}
		t.writeNewick(b, c, labels)
		b.WriteString(":")
		b.WriteString(strconv.FormatFloat(m.Distance-t.Height(c), 'g', -1, 64))
	}
	b.WriteString(")")
}

func newickLabel(id int, labels []string) string {
	name := leafName(id, labels)
	if strings.ContainsAny(name, " ()[]':;,") {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name
}

// Groups returns the leaf names per flat cluster of Cut(threshold), each group sorted.
func (t *MergeTree) Groups(threshold float64, labels []string) [][]string {
	cut := t.Cut(threshold)
	count := 0
	for _, l := range cut {
		if l+1 > count {
			count = l + 1
		}
	}
	groups := make([][]string, count)
	for leaf, l := range cut {
		groups[l] = append(groups[l], leafName(leaf, labels))
	}
	for _, g := range groups {
		sort.Strings(g)
	}
	return groups
}

func leafName(id int, labels []string) string {
	if id < len(labels) {
		return labels[id]
	}
	return strconv.Itoa(id)
}
