package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/vrcreator/internal/domain"
)

type ToolCallRepo struct {
	pool *pgxpool.Pool
}

var _ domain.ToolCallRepository = (*ToolCallRepo)(nil)

func NewToolCallRepo(pool *pgxpool.Pool) *ToolCallRepo {
	return &ToolCallRepo{pool: pool}
}

func (r *ToolCallRepo) Append(ctx context.Context, c *domain.ToolCall) error {
	var input []byte
	if len(c.Input) > 0 {
		input = c.Input
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO tool_calls (id, tool, source, input, ok, error_code, message, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Tool, c.Source, input, c.OK, c.ErrorCode, c.Message, c.DurationMS, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("toolCallRepo.Append: %w", err)
	}

	return nil
}

func (r *ToolCallRepo) ListRecent(ctx context.Context, limit int) ([]*domain.ToolCall, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tool, source, input, ok, error_code, message, duration_ms, created_at
		 FROM tool_calls
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("toolCallRepo.ListRecent: %w", err)
	}
	defer rows.Close()

	return scanToolCalls(rows, "toolCallRepo.ListRecent")
}

// Close is a no-op; the pool belongs to Store.
func (r *ToolCallRepo) Close() error { return nil }

func scanToolCalls(rows pgx.Rows, caller string) ([]*domain.ToolCall, error) {
	var calls []*domain.ToolCall
	for rows.Next() {
		var c domain.ToolCall
		var input []byte

		if err := rows.Scan(
			&c.ID, &c.Tool, &c.Source, &input, &c.OK,
			&c.ErrorCode, &c.Message, &c.DurationMS, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		c.Input = input
		calls = append(calls, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return calls, nil
}
