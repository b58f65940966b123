package clickhouse

import (
	"context"
	"fmt"
	"math"

	"alpha-custody/internal/domain"
	"alpha-custody/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// InsertBulk appends snapshots in a single batch.
func (s *SnapshotStore) InsertBulk(ctx context.Context, snaps []*domain.StakeSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	for _, snap := range snaps {
		if snap == nil || snap.RunID == "" || snap.Netuid < 0 || snap.Netuid > math.MaxUint16 {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO stake_snapshots (
			run_id, wallet, phase, coldkey, hotkey, netuid, stake_rao, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snaps {
		err := batch.Append(
			snap.RunID, snap.Wallet, snap.Phase, snap.Coldkey, snap.Hotkey,
			uint16(snap.Netuid), snap.StakeRao, snap.ObservedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByRun retrieves all snapshots of a run, ordered by observed_at, wallet, phase, hotkey.
// BEFORE sorts ahead of AFTER.
func (s *SnapshotStore) GetByRun(ctx context.Context, runID string) ([]*domain.StakeSnapshot, error) {
	query := `
		SELECT run_id, wallet, phase, coldkey, hotkey, netuid, stake_rao, observed_at
		FROM stake_snapshots
		WHERE run_id = ?
		ORDER BY observed_at ASC, wallet ASC, if(phase = 'BEFORE', 0, 1) ASC, hotkey ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots by run: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// chRows is the subset of driver.Rows used for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanSnapshots(rows chRows) ([]*domain.StakeSnapshot, error) {
	var result []*domain.StakeSnapshot

	for rows.Next() {
		var (
			snap   domain.StakeSnapshot
			netuid uint16
		)
		err := rows.Scan(
			&snap.RunID, &snap.Wallet, &snap.Phase, &snap.Coldkey, &snap.Hotkey,
			&netuid, &snap.StakeRao, &snap.ObservedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snap.Netuid = int(netuid)
		result = append(result, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return result, nil
}
