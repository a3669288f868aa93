package v1_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/vrcreator/internal/api/v1"
	"github.com/gosuda/vrcreator/internal/domain"
)

func newModuleAPI(t *testing.T, m *mockModules) humatest.TestAPI {
	t.Helper()
	_, api := humatest.New(t)
	v1.RegisterModuleRoutes(api, m)
	return api
}

func TestListModules(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		resp := newModuleAPI(t, &mockModules{}).Get("/modules")
		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `[]`, resp.Body.String())
	})

	t.Run("states", func(t *testing.T) {
		t.Parallel()

		api := newModuleAPI(t, &mockModules{modules: []domain.GeneratedModule{
			{Key: "crate", Status: domain.ModuleStatusActive, Generation: 2, EntityCount: 3},
			{Key: "lamp", Status: domain.ModuleStatusFailed, Error: "panic: boom"},
		}})
		resp := api.Get("/modules")
		require.Equal(t, http.StatusOK, resp.Code)

		var mods []domain.GeneratedModule
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &mods))
		require.Len(t, mods, 2)
		assert.Equal(t, 3, mods[0].EntityCount)
		assert.Equal(t, "panic: boom", mods[1].Error)
	})
}

func TestReloadModule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		reloadErr  error
		wantStatus int
		wantCode   string
	}{
		{name: "reloaded", wantStatus: http.StatusOK},
		{name: "unknown key", reloadErr: fmt.Errorf("reload: %w", domain.ErrNotFound), wantStatus: http.StatusNotFound, wantCode: domain.CodeNotFound},
		{name: "module fails", reloadErr: fmt.Errorf("reload: %w", domain.ErrExecutionFailure), wantStatus: http.StatusUnprocessableEntity, wantCode: domain.CodeExecutionFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := &mockModules{
				modules: []domain.GeneratedModule{{Key: "crate", Status: domain.ModuleStatusActive, Generation: 4}},
				reloadFunc: func(_ context.Context, key string) error {
					assert.Equal(t, "crate", key)
					return tt.reloadErr
				},
			}
			resp := newModuleAPI(t, m).Post("/modules/crate/reload")
			require.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, resp.Body.Bytes()))
				return
			}
			var mod domain.GeneratedModule
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &mod))
			assert.Equal(t, 4, mod.Generation)
		})
	}
}

func TestAbortModule(t *testing.T) {
	t.Parallel()

	m := &mockModules{
		modules: []domain.GeneratedModule{
			{Key: "crate", Status: domain.ModuleStatusPending, Generation: 3},
			{Key: "lamp", Status: domain.ModuleStatusActive, Generation: 1},
		},
		inflight: map[string]bool{"crate": true},
	}
	api := newModuleAPI(t, m)

	t.Run("in flight", func(t *testing.T) {
		t.Parallel()

		resp := api.Post("/modules/crate/abort")
		require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())
		var mod domain.GeneratedModule
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &mod))
		assert.Equal(t, "crate", mod.Key)
		assert.Equal(t, 3, mod.Generation)
	})

	t.Run("idle", func(t *testing.T) {
		t.Parallel()

		resp := api.Post("/modules/lamp/abort")
		assert.Equal(t, http.StatusConflict, resp.Code)
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()

		resp := api.Post("/modules/ghost/abort")
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}
