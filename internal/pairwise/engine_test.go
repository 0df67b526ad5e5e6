package pairwise

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"facetree/internal/domain"
	"facetree/internal/embedding"
	"facetree/internal/frequency"
)

func newFixture(t *testing.T, words int) (*embedding.Store, *frequency.Model, []string) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	tables := map[string]domain.EmbeddingTable{"A": {}, "B": {}, "C": {}}
	global := domain.FrequencyTable{}
	counts := map[string]domain.FrequencyTable{"A": {}, "B": {}, "C": {}}
	vocab := make([]string, 0, words)
	for i := 0; i < words; i++ {
		w := fmt.Sprintf("w%03d", i)
		vocab = append(vocab, w)
		global[w] = rng.Intn(1000)
		for f, tab := range tables {
			// every seventh word is missing from C
			if f == "C" && i%7 == 0 {
				continue
			}
			tab[w] = domain.Vector{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
			counts[f][w] = rng.Intn(50)
		}
	}
	model, err := frequency.NewModel(global, counts)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return embedding.NewStore(tables), model, vocab
}

func TestDistanceInvariantToWorkerCount(t *testing.T) {
	emb, freq, vocab := newFixture(t, 203)
	ctx := context.Background()

	base, err := NewEngine(emb, freq, Options{Workers: 1}).Distance(ctx, "A", "C", vocab)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	for _, w := range []int{2, 3, 4, 7, 16, 500} {
		got, err := NewEngine(emb, freq, Options{Workers: w}).Distance(ctx, "A", "C", vocab)
		if err != nil {
			t.Fatalf("workers=%d: %v", w, err)
		}
		if math.Abs(got.Distance-base.Distance) > 1e-12 {
			t.Errorf("workers=%d: distance %v differs from %v", w, got.Distance, base.Distance)
		}
		if got.Scored != base.Scored || got.Missing != base.Missing {
			t.Errorf("workers=%d: counts differ: %+v vs %+v", w, got, base)
		}
	}
}

func TestDistanceSkipsMissingWords(t *testing.T) {
	emb, freq, vocab := newFixture(t, 70)
	res, err := NewEngine(emb, freq, Options{}).Distance(context.Background(), "A", "C", append(vocab, "nowhere"))
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if res.Missing != 11 {
		t.Errorf("expected 11 missing words, got %d", res.Missing)
	}
	if res.Scored+res.Missing+res.Invalid != 71 {
		t.Errorf("bookkeeping does not add up: %+v", res)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	emb, freq, vocab := newFixture(t, 120)
	e := NewEngine(emb, freq, Options{Workers: 3})
	ab, err := e.Distance(context.Background(), "A", "B", vocab)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	ba, err := e.Distance(context.Background(), "B", "A", vocab)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if ab.Distance != ba.Distance {
		t.Errorf("expected exact symmetry, got %v and %v", ab.Distance, ba.Distance)
	}
}

func TestDistanceSelfIsZero(t *testing.T) {
	emb, freq, vocab := newFixture(t, 50)
	res, err := NewEngine(emb, freq, Options{}).Distance(context.Background(), "B", "B", vocab)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if res.Distance != 0 {
		t.Errorf("expected 0 self distance, got %v", res.Distance)
	}
	if res.DefinedZero != res.Scored {
		t.Errorf("expected every word to be a defined zero: %+v", res)
	}
}

func TestDistanceKnownValue(t *testing.T) {
	emb := embedding.NewStore(map[string]domain.EmbeddingTable{
		"A": {"x": {1, 0}, "y": {1, 0}, "z": {1, 0}},
		"B": {"x": {0, 1}, "y": {1, 0}, "z": {0, 1}},
	})
	freq, err := frequency.NewModel(
		domain.FrequencyTable{"x": 0, "y": 10, "z": 10},
		map[string]domain.FrequencyTable{
			"A": {"x": 4, "y": 1, "z": 3},
			"B": {"x": 0, "y": 5, "z": 3},
		},
	)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	// x: cos 0, fd 4, w 0 -> 4; y: cos 1 -> 0; z: fd 0 -> 0
	res, err := NewEngine(emb, freq, Options{Workers: 2}).Distance(context.Background(), "A", "B", []string{"x", "y", "z"})
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if math.Abs(res.Distance-4.0/3.0) > 1e-12 {
		t.Errorf("expected 4/3, got %v", res.Distance)
	}
	if res.DefinedZero != 2 {
		t.Errorf("expected 2 defined zeros, got %d", res.DefinedZero)
	}
}

func TestDistanceIdenticalVectorsScoreZero(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	freq, err := frequency.NewModel(
		domain.FrequencyTable{"w": 5, "other": 0, "top": 10},
		map[string]domain.FrequencyTable{"A": {"w": 3}, "B": {"w": 1}},
	)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	for i := 0; i < 200; i++ {
		v := make(domain.Vector, 5)
		for j := range v {
			v[j] = rng.NormFloat64()
		}
		emb := embedding.NewStore(map[string]domain.EmbeddingTable{
			"A": {"w": append(domain.Vector(nil), v...)},
			"B": {"w": append(domain.Vector(nil), v...)},
		})
		res, err := NewEngine(emb, freq, Options{Workers: 1}).Distance(context.Background(), "A", "B", []string{"w"})
		if err != nil {
			t.Fatalf("vector %d: Distance: %v", i, err)
		}
		if res.Scored != 1 || res.DefinedZero != 1 || res.Distance != 0 {
			t.Fatalf("vector %d: expected one defined zero, got %+v", i, res)
		}
	}
}

func TestDistanceUnweightedWordIsInvalid(t *testing.T) {
	emb := embedding.NewStore(map[string]domain.EmbeddingTable{
		"A": {"x": {1, 0}, "q": {1, 0}},
		"B": {"x": {0, 1}, "q": {0, 1}},
	})
	freq, _ := frequency.NewModel(
		domain.FrequencyTable{"x": 1, "other": 2},
		map[string]domain.FrequencyTable{"A": {"x": 1}, "B": {"x": 2}},
	)
	res, err := NewEngine(emb, freq, Options{}).Distance(context.Background(), "A", "B", []string{"x", "q"})
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if res.Invalid != 1 || res.Scored != 1 {
		t.Errorf("expected q to be invalid: %+v", res)
	}
}

func TestDistanceErrors(t *testing.T) {
	emb, freq, vocab := newFixture(t, 10)
	e := NewEngine(emb, freq, Options{})
	if _, err := e.Distance(context.Background(), "A", "Z", vocab); !errors.Is(err, ErrUnknownFacet) {
		t.Errorf("expected ErrUnknownFacet, got %v", err)
	}
	if _, err := e.Distance(context.Background(), "A", "B", []string{"none"}); !errors.Is(err, ErrNoComparableWords) {
		t.Errorf("expected ErrNoComparableWords, got %v", err)
	}
	if _, err := e.Distance(context.Background(), "A", "B", nil); !errors.Is(err, ErrNoComparableWords) {
		t.Errorf("expected ErrNoComparableWords for empty vocabulary, got %v", err)
	}
}

func TestDistanceCanceled(t *testing.T) {
	emb, freq, vocab := newFixture(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(emb, freq, Options{}).Distance(ctx, "A", "B", vocab)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFunc(t *testing.T) {
	emb, freq, vocab := newFixture(t, 30)
	e := NewEngine(emb, freq, Options{})
	fn := e.Func(vocab)
	d, err := fn(context.Background(), "A", "B")
	if err != nil {
		t.Fatalf("fn: %v", err)
	}
	res, _ := e.Distance(context.Background(), "A", "B", vocab)
	if d != res.Distance {
		t.Errorf("expected %v, got %v", res.Distance, d)
	}
	if e.Workers() != DefaultWorkers {
		t.Errorf("expected default workers, got %d", e.Workers())
	}
}
