package matrix

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"facetree/internal/domain"
)

var scenario = map[[2]string]float64{
	{"A", "B"}: 0.2,
	{"A", "C"}: 0.5,
	{"B", "C"}: 0.6,
}

func symmetricFn(selfDistance float64) domain.PairwiseFunc {
	return func(_ context.Context, a, b string) (float64, error) {
		if a == b {
			return selfDistance, nil
		}
		if d, ok := scenario[[2]string{a, b}]; ok {
			return d, nil
		}
		return scenario[[2]string{b, a}], nil
	}
}

func TestBuildSortsAndFlattens(t *testing.T) {
	m, err := Build(context.Background(), []string{"C", "A", "B"}, symmetricFn(0), Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(m.Names(), []string{"A", "B", "C"}) {
		t.Errorf("expected sorted names, got %v", m.Names())
	}
	if err := m.VerifySymmetric(); err != nil {
		t.Fatalf("VerifySymmetric: %v", err)
	}
	flat, err := m.Flatten()
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if !reflect.DeepEqual(flat, []float64{0.2, 0.5, 0.6}) {
		t.Errorf("unexpected condensed vector %v", flat)
	}
}

func TestBuildComputesEveryOrderedPair(t *testing.T) {
	calls := 0
	fn := func(ctx context.Context, a, b string) (float64, error) {
		calls++
		return symmetricFn(0)(ctx, a, b)
	}
	var observed int
	_, err := Build(context.Background(), []string{"A", "B", "C"}, fn, Options{
		Observer: func(done, total int, a, b string, d float64) {
			observed = done
			if total != 9 {
				t.Errorf("expected total 9, got %d", total)
			}
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if calls != 9 || observed != 9 {
		t.Errorf("expected 9 calls and observations, got %d and %d", calls, observed)
	}
}

func TestBuildForcesDiagonal(t *testing.T) {
	m, err := Build(context.Background(), []string{"A", "B"}, symmetricFn(0.01), Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.At(0, 0) != 0 || m.At(1, 1) != 0 {
		t.Errorf("expected zero diagonal, got %v %v", m.At(0, 0), m.At(1, 1))
	}
	if m.RawDiagonal[0] != 0.01 {
		t.Errorf("expected raw diagonal to keep computed value, got %v", m.RawDiagonal[0])
	}

	kept, err := Build(context.Background(), []string{"A", "B"}, symmetricFn(0.01), Options{KeepDiagonal: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if kept.At(0, 0) != 0.01 {
		t.Errorf("expected kept diagonal, got %v", kept.At(0, 0))
	}
}

func TestBuildPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	fn := func(context.Context, string, string) (float64, error) { return 0, boom }
	if _, err := Build(context.Background(), []string{"A", "B"}, fn, Options{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := Build(context.Background(), []string{"A"}, fn, Options{}); !errors.Is(err, ErrTooFewFacets) {
		t.Fatalf("expected ErrTooFewFacets, got %v", err)
	}
}

func TestVerifySymmetricDetectsAsymmetry(t *testing.T) {
	fn := func(_ context.Context, a, b string) (float64, error) {
		if a < b {
			return 0.3, nil
		}
		if a > b {
			return 0.4, nil
		}
		return 0, nil
	}
	m, err := Build(context.Background(), []string{"A", "B"}, fn, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := m.VerifySymmetric(); !errors.Is(err, ErrAsymmetric) {
		t.Fatalf("expected ErrAsymmetric, got %v", err)
	}
	if _, err := m.Condensed(); !errors.Is(err, ErrAsymmetric) {
		t.Fatalf("expected Condensed to refuse an asymmetric matrix, got %v", err)
	}
}

func TestFlattenLength(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e"}
	m, err := Build(context.Background(), names, func(context.Context, string, string) (float64, error) { return 1, nil }, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	flat, err := m.Condensed()
	if err != nil {
		t.Fatalf("Condensed: %v", err)
	}
	if len(flat) != 10 {
		t.Errorf("expected 10 entries, got %d", len(flat))
	}
}

func TestFromPairs(t *testing.T) {
	m, err := Build(context.Background(), []string{"A", "B", "C"}, symmetricFn(0), Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	back, err := FromPairs(m.Pairs())
	if err != nil {
		t.Fatalf("FromPairs: %v", err)
	}
	if d, ok := back.Get("C", "B"); !ok || d != 0.6 {
		t.Errorf("expected C/B=0.6, got %v %v", d, ok)
	}

	_, err = FromPairs([]domain.PairDistance{{A: "A", B: "B", Distance: 1}})
	if !errors.Is(err, ErrMissingPair) {
		t.Fatalf("expected ErrMissingPair, got %v", err)
	}
}

func TestFromCondensed(t *testing.T) {
	m, err := FromCondensed([]string{"A", "B", "C"}, []float64{0.2, 0.5, 0.6})
	if err != nil {
		t.Fatalf("FromCondensed: %v", err)
	}
	if d, _ := m.Get("C", "A"); d != 0.5 {
		t.Errorf("expected C/A=0.5, got %v", d)
	}
	if _, err := FromCondensed([]string{"A", "B", "C"}, []float64{1}); !errors.Is(err, ErrCondensedLength) {
		t.Fatalf("expected ErrCondensedLength, got %v", err)
	}
}

func TestWithout(t *testing.T) {
	m, _ := FromCondensed([]string{"A", "B", "C"}, []float64{0.2, 0.5, 0.6})
	sub, err := m.Without([]string{"B"})
	if err != nil {
		t.Fatalf("Without: %v", err)
	}
	if !reflect.DeepEqual(sub.Names(), []string{"A", "C"}) {
		t.Errorf("unexpected names %v", sub.Names())
	}
	if d, _ := sub.Get("A", "C"); d != 0.5 {
		t.Errorf("expected A/C=0.5, got %v", d)
	}
	if _, err := m.Without([]string{"A", "B"}); !errors.Is(err, ErrTooFewFacets) {
		t.Fatalf("expected ErrTooFewFacets, got %v", err)
	}
}
