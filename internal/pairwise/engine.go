// Package pairwise computes the blended lexical-semantic distance between two
// facets over a target vocabulary, fanning the vocabulary out to a fixed
// number of workers.
package pairwise

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"facetree/internal/domain"
)

// DefaultWorkers matches a typical four core machine.
const DefaultWorkers = 4

// ctxCheckEvery is how many words a worker scores between context checks.
const ctxCheckEvery = 1024

var (
	// ErrUnknownFacet is returned when a facet has no embedding table.
	ErrUnknownFacet = errors.New("unknown facet")
	// ErrNoComparableWords is returned when no vocabulary word could be scored.
	ErrNoComparableWords = errors.New("no comparable words")
)

// Embeddings exposes the read-only per-facet tables.
type Embeddings interface {
	Table(facet string) (domain.EmbeddingTable, bool)
}

// Frequencies exposes per-facet counts and global weights.
type Frequencies interface {
	Count(facet, word string) int
	Weight(word string) (float64, bool)
}

// Options configures an Engine.
type Options struct {
	// Workers is the number of vocabulary chunks scored in parallel.
	Workers int
}

// Engine scores facet pairs. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	emb     Embeddings
	freq    Frequencies
	workers int
}

// NewEngine creates an Engine over fully built tables.
func NewEngine(emb Embeddings, freq Frequencies, opts Options) *Engine {
	w := opts.Workers
	if w <= 0 {
		w = DefaultWorkers
	}
	return &Engine{emb: emb, freq: freq, workers: w}
}

// Workers returns the configured fan-out.
func (e *Engine) Workers() int { return e.workers }

// Result is the aggregate distance of one facet pair with per-word bookkeeping.
type Result struct {
	Distance float64
	// Scored words contribute to the mean, DefinedZero ones included.
	Scored      int
	DefinedZero int
	// Missing words are absent from at least one facet's table.
	Missing int
	// Invalid words had no global weight or a non-finite score.
	Invalid int
}

type partial struct {
	scores      []float64
	definedZero int
	missing     int
	invalid     int
}

// Distance returns the mean per-word score of a and b over vocabulary.
// The vocabulary is cut into contiguous chunks, one per worker, and the
// partial score lists are joined in worker order, so the result does not
// depend on the worker count.
func (e *Engine) Distance(ctx context.Context, a, b string, vocabulary []string) (Result, error) {
	ta, ok := e.emb.Table(a)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownFacet, a)
	}
	tb, ok := e.emb.Table(b)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownFacet, b)
	}

	parts := make([]partial, e.workers)
	size := (len(vocabulary) + e.workers - 1) / e.workers
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < e.workers; w++ {
		lo := w * size
		hi := lo + size
		if lo > len(vocabulary) {
			lo = len(vocabulary)
		}
		if hi > len(vocabulary) {
			hi = len(vocabulary)
		}
		chunk := vocabulary[lo:hi]
		slot := &parts[w]
		g.Go(func() error {
			return e.scoreChunk(gctx, a, b, ta, tb, chunk, slot)
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var res Result
	var all []float64
	for _, p := range parts {
		all = append(all, p.scores...)
		res.DefinedZero += p.definedZero
		res.Missing += p.missing
		res.Invalid += p.invalid
	}
	res.Scored = len(all)
	if res.Scored == 0 {
		return res, fmt.Errorf("%w between %s and %s", ErrNoComparableWords, a, b)
	}
	res.Distance = floats.Sum(all) / float64(len(all))
	return res, nil
}

func (e *Engine) scoreChunk(ctx context.Context, a, b string, ta, tb domain.EmbeddingTable, words []string, out *partial) error {
	out.scores = make([]float64, 0, len(words))
	for i, word := range words {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		va, okA := ta[word]
		vb, okB := tb[word]
		if !okA || !okB {
			out.missing++
			continue
		}
		weight, ok := e.freq.Weight(word)
		if !ok {
			out.invalid++
			continue
		}
		fd := math.Abs(float64(e.freq.Count(a, word) - e.freq.Count(b, word)))
		s, class := Score(floats.Dot(va, vb), fd, weight)
		switch class {
		case Invalid:
			out.invalid++
			continue
		case DefinedZero:
			out.definedZero++
		}
		out.scores = append(out.scores, s)
	}
	return nil
}

// Func adapts the engine to the matrix builder's pairwise callback.
func (e *Engine) Func(vocabulary []string) domain.PairwiseFunc {
	return func(ctx context.Context, a, b string) (float64, error) {
		res, err := e.Distance(ctx, a, b, vocabulary)
		if err != nil {
			return 0, err
		}
		return res.Distance, nil
	}
}
