// Package frequency loads word occurrence counts and turns the global table
// into a unit-interval weight per word.
package frequency

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"facetree/internal/domain"
	"facetree/internal/wordlist"
)

// ErrDegenerateNormalization is returned when every global count is equal,
// which leaves min-max normalization undefined.
var ErrDegenerateNormalization = errors.New("degenerate normalization: all counts are equal")

// ErrEmptyTable is returned when normalizing a table with no entries.
var ErrEmptyTable = errors.New("empty frequency table")

// LoadGlobal reads "count word" lines.
func LoadGlobal(r io.Reader) (domain.FrequencyTable, domain.LoadStats, error) {
	return load(r, 0, 1)
}

// LoadFacet reads "word count" lines of a single facet.
func LoadFacet(r io.Reader) (domain.FrequencyTable, domain.LoadStats, error) {
	return load(r, 1, 0)
}

// LoadGlobalFile opens path and reads it with LoadGlobal.
func LoadGlobalFile(path string) (domain.FrequencyTable, domain.LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.LoadStats{}, fmt.Errorf("opening global frequencies: %w", err)
	}
	defer f.Close()
	return LoadGlobal(f)
}

// LoadFacetFiles loads one table per file matched by pattern. The facet name
// is the file's base name without its extension, so "counts/France.tsv"
// becomes "France".
func LoadFacetFiles(pattern string) (map[string]domain.FrequencyTable, domain.LoadStats, error) {
	var total domain.LoadStats
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, total, fmt.Errorf("bad facet frequency pattern %q: %w", pattern, err)
	}
	if matches == nil {
		matches = []string{pattern}
	}
	out := make(map[string]domain.FrequencyTable, len(matches))
	for _, m := range matches {
		facet := strings.TrimSuffix(filepath.Base(m), filepath.Ext(m))
		f, err := os.Open(m)
		if err != nil {
			return nil, total, fmt.Errorf("opening facet frequencies: %w", err)
		}
		table, stats, err := LoadFacet(f)
		f.Close()
		if err != nil {
			return nil, total, fmt.Errorf("reading %s: %w", m, err)
		}
		total.Add(stats)
		out[facet] = table
	}
	return out, total, nil
}

func load(r io.Reader, wordCol, countCol int) (domain.FrequencyTable, domain.LoadStats, error) {
	var stats domain.LoadStats
	table := make(domain.FrequencyTable)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		stats.Lines++
		cols := strings.Fields(line)
		if len(cols) < 2 {
			stats.Malformed++
			continue
		}
		count, err := strconv.Atoi(cols[countCol])
		if err != nil || count < 0 {
			stats.Malformed++
			continue
		}
		table[wordlist.NormalizeWord(cols[wordCol])] += count
		stats.Accepted++
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, err
	}
	return table, stats, nil
}

// Normalize maps every count to (count - min) / (max - min).
func Normalize(table domain.FrequencyTable) (map[string]float64, error) {
	if len(table) == 0 {
		return nil, ErrEmptyTable
	}
	first := true
	var lo, hi int
	for _, c := range table {
		if first {
			lo, hi = c, c
			first = false
			continue
		}
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	if lo == hi {
		return nil, fmt.Errorf("%w (min=max=%d)", ErrDegenerateNormalization, lo)
	}
	span := float64(hi - lo)
	out := make(map[string]float64, len(table))
	for w, c := range table {
		out[w] = float64(c-lo) / span
	}
	return out, nil
}

// Model bundles the per-facet counts with the normalized global weights.
type Model struct {
	facets map[string]domain.FrequencyTable
	weight map[string]float64
}

// NewModel normalizes global and keeps facets for lookups.
func NewModel(global domain.FrequencyTable, facets map[string]domain.FrequencyTable) (*Model, error) {
	weight, err := Normalize(global)
	if err != nil {
		return nil, err
	}
	if facets == nil {
		facets = make(map[string]domain.FrequencyTable)
	}
	return &Model{facets: facets, weight: weight}, nil
}

// Count returns the count of word in facet, 0 when either is absent.
func (m *Model) Count(facet, word string) int {
	return m.facets[facet].Get(word)
}

// Weight returns the normalized global frequency of word.
func (m *Model) Weight(word string) (float64, bool) {
	w, ok := m.weight[word]
	return w, ok
}

// HasFacet reports whether per-facet counts were loaded for facet.
func (m *Model) HasFacet(facet string) bool {
	_, ok := m.facets[facet]
	return ok
}
