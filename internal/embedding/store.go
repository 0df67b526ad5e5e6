package embedding

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"facetree/internal/domain"
	"facetree/internal/wordlist"
)

// ErrNoFacets is returned when Load is asked to build zero facet tables.
var ErrNoFacets = errors.New("no facets configured")

// Options controls how embedding lines are parsed.
type Options struct {
	// Baseline is the tag whose vectors are added into every facet. Defaults to MAIN.
	Baseline string
	// MinFields is the minimum number of space separated fields (tag, word and
	// at least one component) for a line to be accepted. Defaults to 3.
	MinFields int
}

func (o Options) withDefaults() Options {
	if o.Baseline == "" {
		o.Baseline = domain.DefaultBaseline
	}
	if o.MinFields < 3 {
		o.MinFields = 3
	}
	return o
}

// Store holds one unit-normalized embedding table per facet.
// It is read-only once Load returns and may be shared between goroutines.
type Store struct {
	tables map[string]domain.EmbeddingTable
	dim    int
	// zero counts vectors dropped because their magnitude was zero.
	zero int
}

// NewStore wraps prebuilt tables. Vectors are normalized in place.
func NewStore(tables map[string]domain.EmbeddingTable) *Store {
	s := &Store{tables: tables}
	for _, t := range tables {
		for _, v := range t {
			s.dim = len(v)
			break
		}
		if s.dim > 0 {
			break
		}
	}
	s.normalize()
	return s
}

// Load reads "tag word v1 v2 ..." lines from r into tables for facets.
//
// A vector tagged with the baseline is added into every facet's table for that
// word; a facet tagged vector is added into its own table only. Tags that are
// neither configured nor the baseline are ignored. Lines that are too short,
// carry unparsable components, or disagree with the first accepted dimension
// are counted as malformed and skipped.
func Load(r io.Reader, facets []string, opts Options) (*Store, domain.LoadStats, error) {
	opts = opts.withDefaults()
	var stats domain.LoadStats

	tables := make(map[string]domain.EmbeddingTable)
	for _, f := range facets {
		if f == opts.Baseline {
			continue
		}
		tables[f] = make(domain.EmbeddingTable)
	}
	if len(tables) == 0 {
		return nil, stats, ErrNoFacets
	}

	s := &Store{tables: tables}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		stats.Lines++
		cols := strings.Fields(scanner.Text())
		if len(cols) < opts.MinFields {
			stats.Malformed++
			continue
		}
		tag := cols[0]
		if tag != opts.Baseline {
			if _, ok := tables[tag]; !ok {
				stats.Ignored++
				continue
			}
		}
		vec, err := parseVector(cols[2:])
		if err != nil {
			stats.Malformed++
			continue
		}
		if s.dim == 0 {
			s.dim = len(vec)
		} else if len(vec) != s.dim {
			stats.Malformed++
			continue
		}

		word := wordlist.NormalizeWord(cols[1])
		if tag == opts.Baseline {
			for _, t := range tables {
				addInto(t, word, vec)
			}
		} else {
			addInto(tables[tag], word, vec)
		}
		stats.Accepted++
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("reading embeddings: %w", err)
	}

	s.normalize()
	return s, stats, nil
}

// LoadFile opens path and loads it with Load.
func LoadFile(path string, facets []string, opts Options) (*Store, domain.LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.LoadStats{}, fmt.Errorf("opening embeddings: %w", err)
	}
	defer f.Close()
	return Load(f, facets, opts)
}

// DiscoverFacets lists every tag present in an embedding source, baseline excluded, sorted.
func DiscoverFacets(r io.Reader, baseline string) ([]string, error) {
	if baseline == "" {
		baseline = domain.DefaultBaseline
	}
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		i := strings.IndexAny(line, " \t")
		if i <= 0 {
			continue
		}
		if tag := line[:i]; tag != baseline {
			seen[tag] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, nil
}

// DiscoverFacetsFile opens path and reads it with DiscoverFacets.
func DiscoverFacetsFile(path, baseline string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening embeddings: %w", err)
	}
	defer f.Close()
	return DiscoverFacets(f, baseline)
}

// Facets returns the facet names with a table, sorted.
func (s *Store) Facets() []string {
	out := make([]string, 0, len(s.tables))
	for f := range s.tables {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Table returns the embedding table of facet.
func (s *Store) Table(facet string) (domain.EmbeddingTable, bool) {
	t, ok := s.tables[facet]
	return t, ok
}

// Vector returns the unit vector of word in facet.
func (s *Store) Vector(facet, word string) (domain.Vector, bool) {
	t, ok := s.tables[facet]
	if !ok {
		return nil, false
	}
	v, ok := t[word]
	return v, ok
}

// Dimension returns the shared vector length, 0 for an empty store.
func (s *Store) Dimension() int { return s.dim }

// ZeroVectors returns how many zero-magnitude vectors were dropped during normalization.
func (s *Store) ZeroVectors() int { return s.zero }

func (s *Store) normalize() {
	for _, t := range s.tables {
		for word, v := range t {
			norm := floats.Norm(v, 2)
			if norm == 0 {
				delete(t, word)
				s.zero++
				continue
			}
			floats.Scale(1/norm, v)
		}
	}
}

func addInto(t domain.EmbeddingTable, word string, vec domain.Vector) {
	cur, ok := t[word]
	if !ok {
		cur = make(domain.Vector, len(vec))
		t[word] = cur
	}
	floats.Add(cur, vec)
}

func parseVector(fields []string) (domain.Vector, error) {
	vec := make(domain.Vector, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite component %q", f)
		}
		vec[i] = v
	}
	return vec, nil
}
