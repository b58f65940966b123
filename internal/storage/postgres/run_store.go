package postgres

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"alpha-custody/internal/domain"
	"alpha-custody/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

// StartRun records a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) StartRun(ctx context.Context, r *domain.Run) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO runs (
			run_id, netuid, target_hotkey, holding, miner_count, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RunID, r.Netuid, r.TargetHotkey, r.Holding, r.MinerCount, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return storageError("insert run", err)
	}
	return nil
}

// FinishRun sets the finish time of a run. Returns ErrNotFound if not exists.
func (s *RunStore) FinishRun(ctx context.Context, runID string, finishedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE runs SET finished_at = $2 WHERE run_id = $1`, runID, finishedAt)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetRun retrieves a run by ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	query := `
		SELECT run_id, netuid, target_hotkey, holding, miner_count, started_at, finished_at
		FROM runs
		WHERE run_id = $1
	`

	var r domain.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&r.RunID, &r.Netuid, &r.TargetHotkey, &r.Holding, &r.MinerCount, &r.StartedAt, &r.FinishedAt,
	)
	if err != nil {
		return nil, storageError("get run", err)
	}
	return &r, nil
}

// RecordAction appends an action. Returns ErrDuplicateKey if action_id exists.
func (s *RunStore) RecordAction(ctx context.Context, a *domain.ActionRecord) error {
	if a == nil || a.ActionID == "" || a.RunID == "" {
		return storage.ErrInvalidInput
	}
	if a.AmountRao > math.MaxInt64 {
		return fmt.Errorf("%w: amount %d exceeds bigint", storage.ErrInvalidInput, a.AmountRao)
	}

	query := `
		INSERT INTO action_records (
			action_id, run_id, seq, wallet, kind, signer,
			origin_hotkey, dest_hotkey, dest_coldkey, netuid, amount_rao,
			result, error, recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14
		)
	`

	_, err := s.pool.Exec(ctx, query,
		a.ActionID, a.RunID, a.Seq, a.Wallet, a.Kind, a.Signer,
		a.OriginHotkey, a.DestHotkey, a.DestColdkey, a.Netuid, int64(a.AmountRao),
		a.Result, a.Error, a.RecordedAt,
	)
	if err != nil {
		return storageError("insert action record", err)
	}
	return nil
}

// GetActions retrieves all actions of a run, ordered by seq ASC.
func (s *RunStore) GetActions(ctx context.Context, runID string) ([]*domain.ActionRecord, error) {
	query := `
		SELECT
			action_id, run_id, seq, wallet, kind, signer,
			origin_hotkey, dest_hotkey, dest_coldkey, netuid, amount_rao,
			result, error, recorded_at
		FROM action_records
		WHERE run_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get actions by run id: %w", err)
	}
	defer rows.Close()

	return scanActionRecords(rows)
}

func scanActionRecords(rows pgx.Rows) ([]*domain.ActionRecord, error) {
	var result []*domain.ActionRecord
	for rows.Next() {
		var (
			a      domain.ActionRecord
			amount int64
		)
		err := rows.Scan(
			&a.ActionID, &a.RunID, &a.Seq, &a.Wallet, &a.Kind, &a.Signer,
			&a.OriginHotkey, &a.DestHotkey, &a.DestColdkey, &a.Netuid, &amount,
			&a.Result, &a.Error, &a.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan action record: %w", err)
		}
		a.AmountRao = uint64(amount)
		result = append(result, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action records: %w", err)
	}

	return result, nil
}
