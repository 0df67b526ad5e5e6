// Package resultstore persists finished runs: the facet names, the condensed
// distance vector and the merge tree.
package resultstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"facetree/internal/cluster"
)

// ErrNotFound is returned when no run matches.
var ErrNotFound = errors.New("run not found")

// Run is one complete distance-and-cluster computation.
type Run struct {
	ID        string
	CreatedAt time.Time
	Facets    []string
	// Condensed is the strict upper triangle of the distance matrix.
	Condensed  []float64
	Tree       *cluster.MergeTree
	Workers    int
	Vocabulary int
}

// NewRun stamps a fresh id and creation time.
func NewRun(facets []string, condensed []float64, tree *cluster.MergeTree) *Run {
	return &Run{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Facets:    append([]string(nil), facets...),
		Condensed: append([]float64(nil), condensed...),
		Tree:      tree,
	}
}

// Storage saves and loads runs.
type Storage interface {
	Save(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	// Latest returns the most recently created run.
	Latest(ctx context.Context) (*Run, error)
	// List returns runs newest first, without condensed vectors or trees.
	List(ctx context.Context, limit int) ([]*Run, error)
	Close() error
}
