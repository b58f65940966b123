package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"alpha-custody/internal/domain"
	"alpha-custody/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu      sync.RWMutex
	runs    map[string]*domain.Run          // keyed by run_id
	actions map[string]*domain.ActionRecord // keyed by action_id
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:    make(map[string]*domain.Run),
		actions: make(map[string]*domain.ActionRecord),
	}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

// StartRun records a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) StartRun(_ context.Context, r *domain.Run) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.runs[r.RunID] = &copy
	return nil
}

// FinishRun sets the finish time of a run.
func (s *RunStore) FinishRun(_ context.Context, runID string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return storage.ErrNotFound
	}
	r.FinishedAt = &finishedAt
	return nil
}

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *r
	return &copy, nil
}

// RecordAction appends an action. Returns ErrDuplicateKey if action_id exists.
func (s *RunStore) RecordAction(_ context.Context, a *domain.ActionRecord) error {
	if a == nil || a.ActionID == "" || a.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.actions[a.ActionID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *a
	s.actions[a.ActionID] = &copy
	return nil
}

// GetActions retrieves all actions of a run, ordered by seq ASC.
func (s *RunStore) GetActions(_ context.Context, runID string) ([]*domain.ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ActionRecord
	for _, a := range s.actions {
		if a.RunID == runID {
			copy := *a
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}
