package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"facetree/internal/resultstore"
)

// Storage keeps runs in process memory.
type Storage struct {
	mu   sync.RWMutex
	runs map[string]*resultstore.Run
}

func NewStorage() *Storage { return &Storage{runs: make(map[string]*resultstore.Run)} }

func (s *Storage) Save(_ context.Context, run *resultstore.Run) error {
	if run == nil {
		return errors.New("nil run")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	cp := *run
	cp.Facets = append([]string(nil), run.Facets...)
	cp.Condensed = append([]float64(nil), run.Condensed...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = &cp
	return nil
}

func (s *Storage) Get(_ context.Context, id string) (*resultstore.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, resultstore.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *Storage) Latest(ctx context.Context) (*resultstore.Run, error) {
	runs, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, resultstore.ErrNotFound
	}
	return s.Get(ctx, runs[0].ID)
}

func (s *Storage) List(_ context.Context, limit int) ([]*resultstore.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*resultstore.Run, 0, len(s.runs))
	for _, r := range s.runs {
		cp := *r
		cp.Condensed = nil
		cp.Tree = nil
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = make(map[string]*resultstore.Run)
	return nil
}
