package storage

import (
	"context"
	"time"

	"alpha-custody/internal/domain"
)

// RunStore provides access to the run journal (runs and action_records).
// The journal is an audit trail of attempted actions; stake balances are
// always read from the chain.
type RunStore interface {
	// StartRun records a new run. Returns ErrDuplicateKey if run_id exists.
	StartRun(ctx context.Context, r *domain.Run) error

	// FinishRun sets the finish time of a run. Returns ErrNotFound if not exists.
	FinishRun(ctx context.Context, runID string, finishedAt time.Time) error

	// GetRun retrieves a run by ID. Returns ErrNotFound if not exists.
	GetRun(ctx context.Context, runID string) (*domain.Run, error)

	// RecordAction appends an action. Returns ErrDuplicateKey if action_id exists.
	RecordAction(ctx context.Context, a *domain.ActionRecord) error

	// GetActions retrieves all actions of a run, ordered by seq ASC.
	GetActions(ctx context.Context, runID string) ([]*domain.ActionRecord, error)
}

// SnapshotStore provides access to stake_snapshots storage.
type SnapshotStore interface {
	// InsertBulk appends snapshots.
	InsertBulk(ctx context.Context, snaps []*domain.StakeSnapshot) error

	// GetByRun retrieves all snapshots of a run, ordered by observed_at, wallet, phase, hotkey.
	GetByRun(ctx context.Context, runID string) ([]*domain.StakeSnapshot, error)
}
