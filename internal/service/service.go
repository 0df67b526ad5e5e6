// Package service wires the loaders, the distance engine, the matrix builder
// and the cluster engine into the end-to-end facet tree pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"

	"facetree/internal/cluster"
	"facetree/internal/domain"
	"facetree/internal/embedding"
	"facetree/internal/frequency"
	"facetree/internal/matrix"
	"facetree/internal/pairwise"
	"facetree/internal/report"
	"facetree/internal/resultstore"
	"facetree/internal/wordlist"
)

// ErrNoStore is returned by run lookups when no result store is configured.
var ErrNoStore = errors.New("no result store configured")

// Inputs names the files a run reads.
type Inputs struct {
	Embeddings      string
	GlobalFrequency string
	// FacetFrequency is a glob of per-facet "word count" files.
	FacetFrequency string
	// Facets is an optional facet list. When empty every tag in Embeddings is used.
	Facets string
	// Vocabulary is an optional word list. When empty every word of the
	// global frequency table is scored.
	Vocabulary string
}

// Options configures a Service.
type Options struct {
	Baseline     string
	MinFields    int
	Workers      int
	KeepDiagonal bool
	Linkage      cluster.Linkage
	// Ignore lists facets left out of clustering.
	Ignore []string
}

// Event reports one computed matrix cell.
type Event struct {
	Done     int
	Total    int
	A        string
	B        string
	Distance float64
}

// Dataset is everything loaded for a run.
type Dataset struct {
	Facets      []string
	Vocabulary  []string
	Embeddings  *embedding.Store
	Frequencies *frequency.Model
}

// Result is the outcome of a distance and clustering pass.
type Result struct {
	Matrix *matrix.Matrix
	// Clustered is Matrix without the ignored facets.
	Clustered *matrix.Matrix
	Tree      *cluster.MergeTree
	Run       *resultstore.Run
}

// Service runs the pipeline.
type Service struct {
	opts   Options
	store  resultstore.Storage
	logger *log.Logger
}

// New creates a Service. store may be nil, in which case runs are not saved.
func New(opts Options, store resultstore.Storage, logger *log.Logger) *Service {
	if opts.Baseline == "" {
		opts.Baseline = domain.DefaultBaseline
	}
	if opts.Workers <= 0 {
		opts.Workers = pairwise.DefaultWorkers
	}
	if opts.Linkage == "" {
		opts.Linkage = cluster.DefaultLinkage
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{opts: opts, store: store, logger: logger}
}

// Load reads every input file and checks that each facet has embeddings.
func (s *Service) Load(in Inputs) (*Dataset, error) {
	facets, err := s.facets(in)
	if err != nil {
		return nil, err
	}

	emb, stats, err := embedding.LoadFile(in.Embeddings, facets, embedding.Options{
		Baseline:  s.opts.Baseline,
		MinFields: s.opts.MinFields,
	})
	if err != nil {
		return nil, err
	}
	s.logStats("embeddings", stats)
	if z := emb.ZeroVectors(); z > 0 {
		s.logger.Printf("embeddings: dropped %d zero vectors", z)
	}
	for _, f := range emb.Facets() {
		if t, _ := emb.Table(f); len(t) == 0 {
			return nil, fmt.Errorf("%w: %s has no embeddings", pairwise.ErrUnknownFacet, f)
		}
	}

	global, stats, err := frequency.LoadGlobalFile(in.GlobalFrequency)
	if err != nil {
		return nil, err
	}
	s.logStats("global frequency", stats)

	perFacet := map[string]domain.FrequencyTable{}
	if in.FacetFrequency != "" {
		perFacet, stats, err = frequency.LoadFacetFiles(in.FacetFrequency)
		if err != nil {
			return nil, err
		}
		s.logStats("facet frequency", stats)
	}
	model, err := frequency.NewModel(global, perFacet)
	if err != nil {
		return nil, fmt.Errorf("global frequency: %w", err)
	}
	for _, f := range emb.Facets() {
		if !model.HasFacet(f) {
			s.logger.Printf("facet %s has no frequency table, counts default to 0", f)
		}
	}

	var vocab []string
	if in.Vocabulary != "" {
		vocab, err = wordlist.ReadFile(in.Vocabulary, wordlist.Options{Normalize: true, KeepDuplicates: true})
		if err != nil {
			return nil, err
		}
	} else {
		vocab = make([]string, 0, len(global))
		for w := range global {
			vocab = append(vocab, w)
		}
		sort.Strings(vocab)
	}
	s.logger.Printf("loaded %d facets, %d vocabulary words, dimension %d", len(emb.Facets()), len(vocab), emb.Dimension())

	return &Dataset{
		Facets:      emb.Facets(),
		Vocabulary:  vocab,
		Embeddings:  emb,
		Frequencies: model,
	}, nil
}

func (s *Service) facets(in Inputs) ([]string, error) {
	if in.Facets != "" {
		facets, err := wordlist.ReadFile(in.Facets, wordlist.Options{})
		if err != nil {
			return nil, err
		}
		return wordlist.Without(facets, []string{s.opts.Baseline}), nil
	}
	facets, err := embedding.DiscoverFacetsFile(in.Embeddings, s.opts.Baseline)
	if err != nil {
		return nil, err
	}
	if len(facets) == 0 {
		return nil, embedding.ErrNoFacets
	}
	return facets, nil
}

func (s *Service) logStats(what string, st domain.LoadStats) {
	s.logger.Printf("%s: %d lines, %d accepted, %d malformed, %d ignored", what, st.Lines, st.Accepted, st.Malformed, st.Ignored)
}

// Distances fills the full facet matrix. Each cell is written to out as a
// report line when out is non-nil, and passed to progress when non-nil.
func (s *Service) Distances(ctx context.Context, ds *Dataset, out io.Writer, progress func(Event)) (*matrix.Matrix, error) {
	engine := pairwise.NewEngine(ds.Embeddings, ds.Frequencies, pairwise.Options{Workers: s.opts.Workers})
	var rw *report.Writer
	if out != nil {
		rw = report.NewWriter(out)
	}
	var writeErr error
	fn := func(ctx context.Context, a, b string) (float64, error) {
		res, err := engine.Distance(ctx, a, b, ds.Vocabulary)
		if err != nil {
			return 0, err
		}
		if res.Missing > 0 || res.Invalid > 0 {
			s.logger.Printf("%s %s: scored %d, missing %d, invalid %d", a, b, res.Scored, res.Missing, res.Invalid)
		}
		return res.Distance, nil
	}
	m, err := matrix.Build(ctx, ds.Facets, fn, matrix.Options{
		KeepDiagonal: s.opts.KeepDiagonal,
		Observer: func(done, total int, a, b string, d float64) {
			if rw != nil && writeErr == nil {
				writeErr = rw.Write(domain.PairDistance{A: a, B: b, Distance: d})
			}
			if progress != nil {
				progress(Event{Done: done, Total: total, A: a, B: b, Distance: d})
			}
		},
	})
	if err != nil {
		return nil, err
	}
	if writeErr != nil {
		return nil, fmt.Errorf("writing report: %w", writeErr)
	}
	s.logDiagonal(m)
	return m, nil
}

// logDiagonal reports self-distances that were computed as non-zero.
func (s *Service) logDiagonal(m *matrix.Matrix) {
	names := m.Names()
	for i, d := range m.RawDiagonal {
		if d != 0 {
			kept := "forced to 0"
			if s.opts.KeepDiagonal {
				kept = "kept"
			}
			s.logger.Printf("%s %s: self-distance %g, %s", names[i], names[i], d, kept)
		}
	}
}

// Cluster drops the ignored facets from m and builds the merge tree.
func (s *Service) Cluster(m *matrix.Matrix) (*matrix.Matrix, *cluster.MergeTree, error) {
	if len(s.opts.Ignore) > 0 {
		var err error
		if m, err = m.Without(s.opts.Ignore); err != nil {
			return nil, nil, err
		}
	}
	condensed, err := m.Condensed()
	if err != nil {
		return nil, nil, err
	}
	tree, err := cluster.Cluster(condensed, m.Size(), s.opts.Linkage)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Printf("clustered %d facets with %s linkage, tallest merge %g", m.Size(), tree.Linkage, tree.MaxDistance())
	return m, tree, nil
}

// Run loads the inputs, computes distances and clusters them, then saves the
// run when a store is configured.
func (s *Service) Run(ctx context.Context, in Inputs, out io.Writer, progress func(Event)) (*Result, error) {
	ds, err := s.Load(in)
	if err != nil {
		return nil, err
	}
	m, err := s.Distances(ctx, ds, out, progress)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, m, len(ds.Vocabulary))
}

// ClusterReport rebuilds the matrix from a distance report and clusters it.
func (s *Service) ClusterReport(ctx context.Context, path string) (*Result, error) {
	pairs, stats, err := report.ParseFile(path, report.Options{Ignore: s.opts.Ignore})
	if err != nil {
		return nil, err
	}
	s.logStats("report", stats)
	m, err := matrix.FromPairs(pairs)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, m, 0)
}

func (s *Service) finish(ctx context.Context, m *matrix.Matrix, vocabulary int) (*Result, error) {
	clustered, tree, err := s.Cluster(m)
	if err != nil {
		return nil, err
	}
	res := &Result{Matrix: m, Clustered: clustered, Tree: tree}
	if s.store == nil {
		return res, nil
	}
	condensed, err := clustered.Condensed()
	if err != nil {
		return nil, err
	}
	run := resultstore.NewRun(clustered.Names(), condensed, tree)
	run.Workers = s.opts.Workers
	run.Vocabulary = vocabulary
	res.Run = run
	if err := s.store.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}
	s.logger.Printf("saved run %s", run.ID)
	return res, nil
}

// LoadRun returns the stored run with id, or the latest one when id is empty.
func (s *Service) LoadRun(ctx context.Context, id string) (*resultstore.Run, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	if id == "" || id == "latest" {
		return s.store.Latest(ctx)
	}
	return s.store.Get(ctx, id)
}

// RestoreRun loads a stored run and rebuilds its clustered matrix.
func (s *Service) RestoreRun(ctx context.Context, id string) (*Result, error) {
	run, err := s.LoadRun(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := matrix.FromCondensed(run.Facets, run.Condensed)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	return &Result{Matrix: m, Clustered: m, Tree: run.Tree, Run: run}, nil
}

// WriteReport writes every ordered pair of m as report lines.
func (s *Service) WriteReport(out io.Writer, m *matrix.Matrix) error {
	return report.NewWriter(out).WriteAll(m.Pairs())
}

// ListRuns returns up to limit stored runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]*resultstore.Run, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.List(ctx, limit)
}
