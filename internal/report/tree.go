package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"facetree/internal/cluster"
)

// Tree output formats.
const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatYAML   = "yaml"
	FormatNewick = "newick"
)

// TreeDocument is the serializable view of a clustering result.
type TreeDocument struct {
	Facets  []string        `json:"facets" yaml:"facets"`
	Linkage cluster.Linkage `json:"linkage" yaml:"linkage"`
	Merges  []cluster.Merge `json:"merges" yaml:"merges"`
	// LinkageMatrix holds [a, b, distance, size] rows for dendrogram renderers.
	LinkageMatrix [][]float64 `json:"linkage_matrix" yaml:"linkage_matrix"`
	Threshold     float64     `json:"color_threshold" yaml:"color_threshold"`
	Groups        [][]string  `json:"groups" yaml:"groups"`
	LeafOrder     []string    `json:"leaf_order" yaml:"leaf_order"`
	Newick        string      `json:"newick" yaml:"newick"`
}

// NewTreeDocument labels tree with facets and cuts it at fraction of its
// tallest merge.
func NewTreeDocument(tree *cluster.MergeTree, facets []string, fraction float64) TreeDocument {
	threshold := tree.ColorThreshold(fraction)
	order := tree.LeafOrder()
	leaves := make([]string, len(order))
	for i, id := range order {
		leaves[i] = facets[id]
	}
	lm := tree.LinkageMatrix()
	rows, _ := lm.Dims()
	linkage := make([][]float64, rows)
	for i := range linkage {
		linkage[i] = mat.Row(nil, i, lm)
	}
	return TreeDocument{
		Facets:        facets,
		Linkage:       tree.Linkage,
		Merges:        tree.Merges,
		LinkageMatrix: linkage,
		Threshold:     threshold,
		Groups:        tree.Groups(threshold, facets),
		LeafOrder:     leaves,
		Newick:        tree.Newick(facets),
	}
}

// WriteTree renders doc in format.
func WriteTree(w io.Writer, doc TreeDocument, format string) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		return writeTreeText(w, doc)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case FormatNewick:
		_, err := fmt.Fprintln(w, doc.Newick)
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeTreeText(w io.Writer, doc TreeDocument) error {
	n := len(doc.Facets)
	name := func(id int) string {
		if id < n {
			return doc.Facets[id]
		}
		return "#" + strconv.Itoa(id)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "linkage: %s, facets: %d\n", doc.Linkage, n)
	for i, m := range doc.Merges {
		fmt.Fprintf(&b, "#%d = %s + %s  distance: %s  size: %d\n",
			n+i, name(m.A), name(m.B), strconv.FormatFloat(m.Distance, 'g', 6, 64), m.Size)
	}
	fmt.Fprintf(&b, "groups below %s:\n", strconv.FormatFloat(doc.Threshold, 'g', 6, 64))
	for i, g := range doc.Groups {
		fmt.Fprintf(&b, "  %d: %s\n", i+1, strings.Join(g, " "))
	}
	fmt.Fprintf(&b, "leaf order: %s\n", strings.Join(doc.LeafOrder, " "))
	_, err := io.WriteString(w, b.String())
	return err
}
