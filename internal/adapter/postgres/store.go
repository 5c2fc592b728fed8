package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/waypointhq/waypoint/internal/domain"
	"github.com/waypointhq/waypoint/internal/domain/instance"
	"github.com/waypointhq/waypoint/internal/port/database"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ database.Store = (*Store)(nil)

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// instanceColumns is the SELECT column list for instances queries.
const instanceColumns = `instance_id, project, itype, closed, context_percent, COALESCE(current_epic, ''), created_at, last_heartbeat`

// scanInstance scans a row into an Instance. Status is provisional: closed
// rows get StatusClosed, everything else StatusActive until the service
// derives the real status from last_heartbeat.
func scanInstance(sc scannable, in *instance.Instance) error {
	var closed bool
	if err := sc.Scan(&in.ID, &in.Project, &in.Type, &closed, &in.ContextPercent, &in.CurrentEpic, &in.CreatedAt, &in.LastHeartbeat); err != nil {
		return err
	}
	if closed {
		in.Status = instance.StatusClosed
	} else {
		in.Status = instance.StatusActive
	}
	return nil
}

// CreateInstance inserts a new registry row.
func (s *Store) CreateInstance(ctx context.Context, in *instance.Instance) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO instances (instance_id, project, itype, context_percent, current_epic, created_at, last_heartbeat)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		in.ID, in.Project, string(in.Type), in.ContextPercent, nullIfEmpty(in.CurrentEpic), in.CreatedAt, in.LastHeartbeat)
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	return nil
}

// GetInstance returns the row for the exact instance ID.
func (s *Store) GetInstance(ctx context.Context, id string) (*instance.Instance, error) {
	var in instance.Instance
	err := scanInstance(s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM instances WHERE instance_id = $1`, instanceColumns), id), &in)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get instance %s: %w", id, err)
	}
	return &in, nil
}

// FindByHashFragment returns instances whose hash segment starts or ends with fragment.
func (s *Store) FindByHashFragment(ctx context.Context, fragment string) ([]instance.Instance, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM instances
		 WHERE split_part(instance_id, '-', 3) LIKE $1 || '%%'
		    OR split_part(instance_id, '-', 3) LIKE '%%' || $1
		 ORDER BY last_heartbeat DESC`, instanceColumns), fragment)
	if err != nil {
		return nil, fmt.Errorf("find by hash fragment: %w", err)
	}
	defer rows.Close()
	return collectInstances(rows)
}

// ListInstances returns instances sorted by project, then last heartbeat descending.
func (s *Store) ListInstances(ctx context.Context, filter database.ListFilter) ([]instance.Instance, error) {
	query := fmt.Sprintf(`SELECT %s FROM instances`, instanceColumns)
	conditions := ``
	args := []any{}
	if filter.Project != "" {
		conditions = ` WHERE project = $1`
		args = append(args, filter.Project)
	}
	if !filter.IncludeClosed {
		if conditions == "" {
			conditions = ` WHERE NOT closed`
		} else {
			conditions += ` AND NOT closed`
		}
	}
	query += conditions + ` ORDER BY project ASC, last_heartbeat DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()
	return collectInstances(rows)
}

// Heartbeat updates the heartbeat fields in a single statement.
func (s *Store) Heartbeat(ctx context.Context, id string, contextPercent int, currentEpic *string, at time.Time) (*instance.Instance, error) {
	var in instance.Instance
	err := scanInstance(s.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE instances
		 SET last_heartbeat = $2,
		     context_percent = $3,
		     current_epic = COALESCE($4, current_epic)
		 WHERE instance_id = $1
		 RETURNING %s`, instanceColumns),
		id, at, contextPercent, currentEpic), &in)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("heartbeat %s: %w", id, err)
	}
	return &in, nil
}

// CloseInstance marks the instance closed. Idempotent.
func (s *Store) CloseInstance(ctx context.Context, id string) (*instance.Instance, error) {
	var in instance.Instance
	err := scanInstance(s.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE instances SET closed = TRUE WHERE instance_id = $1 RETURNING %s`, instanceColumns),
		id), &in)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("close instance %s: %w", id, err)
	}
	return &in, nil
}

func collectInstances(rows pgx.Rows) ([]instance.Instance, error) {
	var out []instance.Instance
	for rows.Next() {
		var in instance.Instance
		if err := scanInstance(rows, &in); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
