package service

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"facetree/internal/matrix"
	"facetree/internal/pairwise"
	"facetree/internal/resultstore/memory"
)

type fixture struct {
	dir string
	in  Inputs
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	emb := writeFile(t, dir, "out.embeddings", strings.Join([]string{
		"MAIN apple 1 0 0",
		"MAIN pear 0 1 0",
		"A apple 1 1 0",
		"A pear 0 1 1",
		"B apple 0 1 1",
		"B pear 1 0 1",
		"C Apple 1 0 1",
		"C pear 1 1 0",
		"C broken",
		"",
	}, "\n"))
	global := writeFile(t, dir, "vocabulary.dat", "10 apple\n5 pear\n1 plum\n")
	writeFile(t, dir, "counts/A.counts", "apple 3\npear 1\n")
	writeFile(t, dir, "counts/B.counts", "apple 1\npear 1\n")
	writeFile(t, dir, "counts/C.counts", "apple 5\npear 2\n")
	vocab := writeFile(t, dir, "focused.dat", "apple\npear\nplum\n")
	return fixture{dir: dir, in: Inputs{
		Embeddings:      emb,
		GlobalFrequency: global,
		FacetFrequency:  filepath.Join(dir, "counts", "*.counts"),
		Vocabulary:      vocab,
	}}
}

func TestLoadDiscoversFacets(t *testing.T) {
	f := newFixture(t)
	ds, err := New(Options{}, nil, nil).Load(f.in)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(ds.Facets, want) {
		t.Errorf("facets = %v, want %v", ds.Facets, want)
	}
	if len(ds.Vocabulary) != 3 {
		t.Errorf("expected 3 vocabulary words, got %v", ds.Vocabulary)
	}
	if _, ok := ds.Embeddings.Vector("C", "apple"); !ok {
		t.Error("expected case-folded word in C")
	}
}

func TestLoadRejectsFacetWithoutEmbeddings(t *testing.T) {
	f := newFixture(t)
	f.in.Facets = writeFile(t, f.dir, "facets.txt", "A\nD\n")
	_, err := New(Options{}, nil, nil).Load(f.in)
	if !errors.Is(err, pairwise.ErrUnknownFacet) {
		t.Fatalf("expected ErrUnknownFacet, got %v", err)
	}
}

func TestRunWritesReportAndSavesRun(t *testing.T) {
	f := newFixture(t)
	store := memory.NewStorage()
	svc := New(Options{Workers: 2}, store, nil)
	ctx := context.Background()

	var out bytes.Buffer
	var events []Event
	res, err := svc.Run(ctx, f.in, &out, func(e Event) { events = append(events, e) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if lines := strings.Count(out.String(), "\n"); lines != 9 {
		t.Errorf("expected 9 report lines, got %d", lines)
	}
	if len(events) != 9 || events[8].Done != 9 || events[8].Total != 9 {
		t.Errorf("unexpected progress events %+v", events)
	}
	for i := 0; i < 3; i++ {
		if res.Matrix.At(i, i) != 0 {
			t.Errorf("diagonal %d = %v", i, res.Matrix.At(i, i))
		}
	}
	if err := res.Matrix.VerifySymmetric(); err != nil {
		t.Errorf("VerifySymmetric: %v", err)
	}
	if len(res.Tree.Merges) != 2 {
		t.Errorf("expected 2 merges, got %d", len(res.Tree.Merges))
	}

	saved, err := svc.LoadRun(ctx, "")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if saved.ID != res.Run.ID || saved.Vocabulary != 3 || saved.Workers != 2 {
		t.Errorf("unexpected saved run %+v", saved)
	}

	// the written report clusters to the same tree
	reportPath := writeFile(t, f.dir, "pairwise.distance.out", out.String())
	again, err := New(Options{}, nil, nil).ClusterReport(ctx, reportPath)
	if err != nil {
		t.Fatalf("ClusterReport: %v", err)
	}
	if !reflect.DeepEqual(again.Tree.Merges, res.Tree.Merges) {
		t.Errorf("report tree %+v differs from run tree %+v", again.Tree.Merges, res.Tree.Merges)
	}
	if again.Run != nil {
		t.Error("expected no run without a store")
	}
}

func TestClusterIgnoresFacets(t *testing.T) {
	f := newFixture(t)
	svc := New(Options{Ignore: []string{"C"}}, nil, nil)
	res, err := svc.Run(context.Background(), f.in, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Matrix.Size() != 3 {
		t.Errorf("expected full matrix of 3, got %d", res.Matrix.Size())
	}
	if want := []string{"A", "B"}; !reflect.DeepEqual(res.Clustered.Names(), want) {
		t.Errorf("clustered names = %v, want %v", res.Clustered.Names(), want)
	}
	if len(res.Tree.Merges) != 1 {
		t.Errorf("expected 1 merge, got %d", len(res.Tree.Merges))
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}, nil, nil).Run(ctx, f.in, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunLookupsWithoutStore(t *testing.T) {
	svc := New(Options{}, nil, nil)
	if _, err := svc.LoadRun(context.Background(), "x"); !errors.Is(err, ErrNoStore) {
		t.Errorf("expected ErrNoStore, got %v", err)
	}
	if _, err := svc.ListRuns(context.Background(), 5); !errors.Is(err, ErrNoStore) {
		t.Errorf("expected ErrNoStore, got %v", err)
	}
}

func TestLoadKeepsDuplicateVocabulary(t *testing.T) {
	f := newFixture(t)
	f.in.Vocabulary = writeFile(t, f.dir, "dup.dat", "apple\npear\nApple\n")
	ds, err := New(Options{}, nil, nil).Load(f.in)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := []string{"apple", "pear", "apple"}; !reflect.DeepEqual(ds.Vocabulary, want) {
		t.Errorf("vocabulary = %v, want %v", ds.Vocabulary, want)
	}
}

func TestLogDiagonalReportsNonZeroSelfDistance(t *testing.T) {
	fn := func(_ context.Context, a, b string) (float64, error) {
		if a == b {
			return 0.25, nil
		}
		return 1, nil
	}
	m, err := matrix.Build(context.Background(), []string{"A", "B"}, fn, matrix.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var logs bytes.Buffer
	New(Options{}, nil, log.New(&logs, "", 0)).logDiagonal(m)
	if !strings.Contains(logs.String(), "A A: self-distance 0.25, forced to 0") {
		t.Errorf("unexpected log output %q", logs.String())
	}
}

func TestRestoreRunRebuildsMatrix(t *testing.T) {
	f := newFixture(t)
	svc := New(Options{}, memory.NewStorage(), nil)
	ctx := context.Background()
	res, err := svc.Run(ctx, f.in, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	restored, err := svc.RestoreRun(ctx, res.Run.ID)
	if err != nil {
		t.Fatalf("RestoreRun: %v", err)
	}
	if !reflect.DeepEqual(restored.Matrix.Names(), res.Clustered.Names()) {
		t.Errorf("names = %v, want %v", restored.Matrix.Names(), res.Clustered.Names())
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if restored.Matrix.At(i, j) != res.Clustered.At(i, j) {
				t.Errorf("cell %d,%d = %v, want %v", i, j, restored.Matrix.At(i, j), res.Clustered.At(i, j))
			}
		}
	}
	if !reflect.DeepEqual(restored.Tree.Merges, res.Tree.Merges) {
		t.Errorf("restored tree differs")
	}

	var out bytes.Buffer
	if err := svc.WriteReport(&out, restored.Matrix); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	path := writeFile(t, f.dir, "restored.out", out.String())
	again, err := New(Options{}, nil, nil).ClusterReport(ctx, path)
	if err != nil {
		t.Fatalf("ClusterReport: %v", err)
	}
	if !reflect.DeepEqual(again.Tree.Merges, res.Tree.Merges) {
		t.Errorf("report of restored run clusters differently")
	}
}
