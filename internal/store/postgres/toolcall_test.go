package postgres_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/vrcreator/internal/domain"
	"github.com/gosuda/vrcreator/internal/store/postgres"
)

// Runs against a live database only when VRC_TEST_POSTGRES_DSN is set.
func TestToolCallRepo_AppendAndListRecent(t *testing.T) {
	dsn := os.Getenv("VRC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VRC_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := postgres.New(ctx, dsn, 2)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	repo := s.ToolCalls()
	// far future so this run's rows sort first regardless of earlier runs
	base := time.Now().Add(100 * 365 * 24 * time.Hour).UTC().Truncate(time.Microsecond)
	first := &domain.ToolCall{
		ID: uuid.New(), Tool: "save_scene", Source: "http", OK: true,
		Input: json.RawMessage(`{"name":"forest"}`), DurationMS: 3, CreatedAt: base,
	}
	second := &domain.ToolCall{
		ID: uuid.New(), Tool: "load_scene", Source: "mcp", OK: false,
		ErrorCode: domain.CodeNotFound, Message: "no such scene", CreatedAt: base.Add(time.Second),
	}
	require.NoError(t, repo.Append(ctx, first))
	require.NoError(t, repo.Append(ctx, second))

	calls, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, second.ID, calls[0].ID)
	assert.Equal(t, domain.CodeNotFound, calls[0].ErrorCode)
	assert.Empty(t, calls[0].Input)
	assert.Equal(t, first.ID, calls[1].ID)
	assert.JSONEq(t, `{"name":"forest"}`, string(calls[1].Input))
	assert.True(t, calls[1].CreatedAt.Equal(base))
	require.NoError(t, repo.Close())
}
