package memory

import (
	"context"
	"sort"
	"sync"

	"alpha-custody/internal/domain"
	"alpha-custody/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu    sync.RWMutex
	snaps []*domain.StakeSnapshot
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// InsertBulk appends snapshots.
func (s *SnapshotStore) InsertBulk(_ context.Context, snaps []*domain.StakeSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	for _, snap := range snaps {
		if snap == nil || snap.RunID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snaps {
		copy := *snap
		s.snaps = append(s.snaps, &copy)
	}
	return nil
}

// GetByRun retrieves all snapshots of a run, ordered by observed_at, wallet, phase, hotkey.
func (s *SnapshotStore) GetByRun(_ context.Context, runID string) ([]*domain.StakeSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StakeSnapshot
	for _, snap := range s.snaps {
		if snap.RunID == runID {
			copy := *snap
			result = append(result, &copy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.Before(b.ObservedAt)
		}
		if a.Wallet != b.Wallet {
			return a.Wallet < b.Wallet
		}
		if a.Phase != b.Phase {
			return phaseOrder(a.Phase) < phaseOrder(b.Phase)
		}
		return a.Hotkey < b.Hotkey
	})
	return result, nil
}

func phaseOrder(phase string) int {
	if phase == domain.SnapshotBefore {
		return 0
	}
	return 1
}
