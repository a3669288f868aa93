package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/vrcreator/internal/agent"
	v1 "github.com/gosuda/vrcreator/internal/api/v1"
	"github.com/gosuda/vrcreator/internal/domain"
)

func newAgentAPI(t *testing.T, ctl v1.AgentController) humatest.TestAPI {
	t.Helper()
	_, api := humatest.New(t)
	v1.RegisterAgentRoutes(api, ctl)
	return api
}

func makeSession(status agent.SessionStatus) agent.Session {
	return agent.Session{ID: uuid.New(), Prompt: "add a cube", Status: status, StartedAt: time.Now()}
}

// ---------------------------------------------------------------------------
// POST /agent/prompt
// ---------------------------------------------------------------------------

func TestStartPrompt(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()

		want := makeSession(agent.SessionRunning)
		ctl := &mockAgent{startFunc: func(_ context.Context, prompt string) (agent.Session, error) {
			assert.Equal(t, "add a cube", prompt)
			return want, nil
		}}

		resp := newAgentAPI(t, ctl).Post("/agent/prompt", map[string]any{"prompt": "add a cube"})
		require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())

		var got agent.Session
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, agent.SessionRunning, got.Status)
	})

	t.Run("busy", func(t *testing.T) {
		t.Parallel()

		ctl := &mockAgent{startFunc: func(context.Context, string) (agent.Session, error) {
			return agent.Session{}, fmt.Errorf("start: %w", domain.ErrConflict)
		}}
		resp := newAgentAPI(t, ctl).Post("/agent/prompt", map[string]any{"prompt": "again"})
		require.Equal(t, http.StatusConflict, resp.Code)
		assert.Equal(t, domain.CodeConflict, errorCode(t, resp.Body.Bytes()))
	})

	t.Run("blank prompt", func(t *testing.T) {
		t.Parallel()

		ctl := &mockAgent{startFunc: func(context.Context, string) (agent.Session, error) {
			return agent.Session{}, fmt.Errorf("start: %w", domain.ErrEmptyPrompt)
		}}
		resp := newAgentAPI(t, ctl).Post("/agent/prompt", map[string]any{"prompt": "   "})
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("missing prompt", func(t *testing.T) {
		t.Parallel()

		resp := newAgentAPI(t, &mockAgent{}).Post("/agent/prompt", map[string]any{"prompt": ""})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	t.Run("runner failure", func(t *testing.T) {
		t.Parallel()

		ctl := &mockAgent{startFunc: func(context.Context, string) (agent.Session, error) {
			return agent.Session{}, errors.New("docker unavailable")
		}}
		resp := newAgentAPI(t, ctl).Post("/agent/prompt", map[string]any{"prompt": "hello"})
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// POST /agent/cancel, GET /agent
// ---------------------------------------------------------------------------

func TestCancelAgent(t *testing.T) {
	t.Parallel()

	running := makeSession(agent.SessionRunning)
	ctl := &mockAgent{cancelFunc: func() (agent.Session, error) { return running, nil }}
	resp := newAgentAPI(t, ctl).Post("/agent/cancel")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	idle := &mockAgent{cancelFunc: func() (agent.Session, error) {
		return agent.Session{}, fmt.Errorf("cancel: %w", domain.ErrNotFound)
	}}
	resp = newAgentAPI(t, idle).Post("/agent/cancel")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetAgent(t *testing.T) {
	t.Parallel()

	resp := newAgentAPI(t, &mockAgent{}).Get("/agent")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	done := makeSession(agent.SessionCompleted)
	done.Result = "Cube added."
	resp = newAgentAPI(t, &mockAgent{current: &done}).Get("/agent")
	require.Equal(t, http.StatusOK, resp.Code)

	var got agent.Session
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, "Cube added.", got.Result)
}

func TestAgentNotConfigured(t *testing.T) {
	t.Parallel()

	api := newAgentAPI(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, api.Post("/agent/prompt", map[string]any{"prompt": "x"}).Code)
	assert.Equal(t, http.StatusServiceUnavailable, api.Post("/agent/cancel").Code)
	assert.Equal(t, http.StatusServiceUnavailable, api.Get("/agent").Code)
}
