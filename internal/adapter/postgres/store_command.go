package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/waypointhq/waypoint/internal/domain/command"
)

// commandColumns is the SELECT column list for command_log queries.
const commandColumns = `id, instance_id, command_type, action, COALESCE(tool_name, ''), parameters, COALESCE(result, ''), success, execution_time_ms, tags, source, created_at`

func scanCommand(sc scannable, e *command.Entry) error {
	return sc.Scan(&e.ID, &e.InstanceID, &e.CommandType, &e.Action, &e.ToolName, &e.Parameters,
		&e.Result, &e.Success, &e.ExecutionTime, &e.Tags, &e.Source, &e.CreatedAt)
}

// AppendCommand inserts a command log entry.
func (s *Store) AppendCommand(ctx context.Context, e *command.Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO command_log (id, instance_id, command_type, action, tool_name, parameters, result, success, execution_time_ms, tags, source, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.InstanceID, e.CommandType, e.Action, nullIfEmpty(e.ToolName), e.Parameters,
		nullIfEmpty(e.Result), e.Success, e.ExecutionTime, e.Tags, string(e.Source), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append command: %w", err)
	}
	return nil
}

// SearchCommands returns entries matching the filter, newest first.
func (s *Store) SearchCommands(ctx context.Context, filter command.Filter) ([]command.Entry, error) {
	args := []any{}
	conditions := []string{}
	argIdx := 1

	if filter.InstanceID != "" {
		conditions = append(conditions, fmt.Sprintf("instance_id = $%d", argIdx))
		args = append(args, filter.InstanceID)
		argIdx++
	}
	if filter.CommandType != "" {
		conditions = append(conditions, fmt.Sprintf("command_type = $%d", argIdx))
		args = append(args, filter.CommandType)
		argIdx++
	}
	if filter.Text != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(action ILIKE '%%' || $%d || '%%' OR tool_name ILIKE '%%' || $%d || '%%' OR $%d = ANY(tags))",
			argIdx, argIdx, argIdx))
		args = append(args, filter.Text)
		argIdx++
	}
	if filter.Success != nil {
		conditions = append(conditions, fmt.Sprintf("success = $%d", argIdx))
		args = append(args, *filter.Success)
		argIdx++
	}
	if filter.After != nil {
		conditions = append(conditions, fmt.Sprintf("created_at > $%d", argIdx))
		args = append(args, *filter.After)
		argIdx++
	}
	if filter.Before != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIdx))
		args = append(args, *filter.Before)
		argIdx++
	}

	query := fmt.Sprintf(`SELECT %s FROM command_log`, commandColumns)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search commands: %w", err)
	}
	defer rows.Close()

	var out []command.Entry
	for rows.Next() {
		var e command.Entry
		if err := scanCommand(rows, &e); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CommandStats returns per-instance totals and by-type counts.
func (s *Store) CommandStats(ctx context.Context, instanceID string) (*command.Stats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT command_type, COUNT(*) FROM command_log WHERE instance_id = $1 GROUP BY command_type`,
		instanceID)
	if err != nil {
		return nil, fmt.Errorf("command stats for %s: %w", instanceID, err)
	}
	defer rows.Close()

	stats := &command.Stats{ByType: make(map[string]int)}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan command stat: %w", err)
		}
		stats.ByType[t] = n
		stats.Total += n
	}
	return stats, rows.Err()
}
