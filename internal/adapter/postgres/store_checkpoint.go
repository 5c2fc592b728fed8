package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/waypointhq/waypoint/internal/domain"
	"github.com/waypointhq/waypoint/internal/domain/checkpoint"
)

// checkpointColumns is the SELECT column list for checkpoints queries.
const checkpointColumns = `id, instance_id, ctype, sequence_num, context_percent, work_state, metadata, created_at`

func scanCheckpoint(sc scannable, cp *checkpoint.Checkpoint) error {
	var workState []byte
	if err := sc.Scan(&cp.ID, &cp.InstanceID, &cp.Type, &cp.SequenceNum, &cp.ContextPercent, &workState, &cp.Metadata, &cp.CreatedAt); err != nil {
		return err
	}
	if err := json.Unmarshal(workState, &cp.WorkState); err != nil {
		return fmt.Errorf("decode work_state: %w", err)
	}
	return nil
}

// CreateCheckpoint inserts an immutable checkpoint row.
func (s *Store) CreateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	workState, err := json.Marshal(cp.WorkState)
	if err != nil {
		return fmt.Errorf("encode work_state: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO checkpoints (id, instance_id, ctype, sequence_num, context_percent, work_state, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cp.ID, cp.InstanceID, string(cp.Type), cp.SequenceNum, cp.ContextPercent, workState, cp.Metadata, cp.CreatedAt)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint returns a checkpoint by ID.
func (s *Store) GetCheckpoint(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	err := scanCheckpoint(s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM checkpoints WHERE id = $1`, checkpointColumns), id), &cp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", id, err)
	}
	return &cp, nil
}

// ListCheckpoints returns an instance's checkpoints newest first.
func (s *Store) ListCheckpoints(ctx context.Context, instanceID string, limit int) ([]checkpoint.Checkpoint, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM checkpoints WHERE instance_id = $1 ORDER BY created_at DESC LIMIT $2`, checkpointColumns),
		instanceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints for %s: %w", instanceID, err)
	}
	defer rows.Close()

	var out []checkpoint.Checkpoint
	for rows.Next() {
		var cp checkpoint.Checkpoint
		if err := scanCheckpoint(rows, &cp); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// LatestCheckpoint returns the newest checkpoint for the instance.
func (s *Store) LatestCheckpoint(ctx context.Context, instanceID string) (*checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	err := scanCheckpoint(s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM checkpoints WHERE instance_id = $1 ORDER BY created_at DESC LIMIT 1`, checkpointColumns),
		instanceID), &cp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest checkpoint for %s: %w", instanceID, err)
	}
	return &cp, nil
}

// DeleteCheckpointsBefore removes checkpoints older than cutoff or ranked
// beyond keepPerInstance. The newest checkpoint of every non-closed instance
// is exempt.
func (s *Store) DeleteCheckpointsBefore(ctx context.Context, cutoff time.Time, keepPerInstance int) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`WITH ranked AS (
		     SELECT c.id,
		            ROW_NUMBER() OVER (PARTITION BY c.instance_id ORDER BY c.created_at DESC) AS rank,
		            c.created_at,
		            i.closed
		     FROM checkpoints c
		     JOIN instances i ON i.instance_id = c.instance_id
		 )
		 DELETE FROM checkpoints WHERE id IN (
		     SELECT id FROM ranked
		     WHERE (created_at < $1 OR rank > $2)
		       AND (rank > 1 OR closed)
		 )`,
		cutoff, keepPerInstance)
	if err != nil {
		return 0, fmt.Errorf("cleanup checkpoints: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
