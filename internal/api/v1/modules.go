package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/vrcreator/internal/domain"
)

type ListModulesInput struct{}

type ListModulesOutput struct {
	Body []domain.GeneratedModule
}

type ReloadModuleInput struct {
	Key string `path:"key" doc:"Module key (file name without extension)"`
}

type ReloadModuleOutput struct {
	Body domain.GeneratedModule
}

type AbortModuleInput struct {
	Key string `path:"key" doc:"Module key (file name without extension)"`
}

type AbortModuleOutput struct {
	Body domain.GeneratedModule
}

func RegisterModuleRoutes(api huma.API, modules ModuleController) {
	huma.Register(api, huma.Operation{
		OperationID: "list-modules",
		Method:      http.MethodGet,
		Path:        "/modules",
		Summary:     "List generated modules and their lifecycle state",
		Tags:        []string{"Modules"},
	}, func(_ context.Context, _ *ListModulesInput) (*ListModulesOutput, error) {
		mods := modules.Modules()
		if mods == nil {
			mods = []domain.GeneratedModule{}
		}
		return &ListModulesOutput{Body: mods}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reload-module",
		Method:      http.MethodPost,
		Path:        "/modules/{key}/reload",
		Summary:     "Run a module's last source again",
		Tags:        []string{"Modules"},
	}, func(ctx context.Context, input *ReloadModuleInput) (*ReloadModuleOutput, error) {
		if err := modules.Reload(ctx, input.Key); err != nil {
			return nil, toHumaError("failed to reload module", err)
		}
		m, ok := modules.Module(input.Key)
		if !ok {
			return nil, huma.Error404NotFound("module not found")
		}
		return &ReloadModuleOutput{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "abort-module",
		Method:        http.MethodPost,
		Path:          "/modules/{key}/abort",
		Summary:       "Cancel a module's in-flight load",
		Description:   "The load is marked failed and the module's queue moves on to the next pending write.",
		Tags:          []string{"Modules"},
		DefaultStatus: http.StatusAccepted,
	}, func(_ context.Context, input *AbortModuleInput) (*AbortModuleOutput, error) {
		m, ok := modules.Module(input.Key)
		if !ok {
			return nil, huma.Error404NotFound("module not found")
		}
		if !modules.Abort(input.Key) {
			return nil, huma.Error409Conflict("module has no load in flight")
		}
		return &AbortModuleOutput{Body: m}, nil
	})
}
