package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/vrcreator/internal/agent"
)

type ClearSceneInput struct {
	Body struct {
		Confirm bool `json:"confirm" doc:"Must be true; clearing deletes every module file"`
	}
}

type ClearSceneOutput struct {
	Body agent.ClearResult
}

type SceneRefInput struct {
	SessionID string `path:"sessionId" doc:"Session the snapshot belongs to"`
	Name      string `path:"name" doc:"Snapshot name"`
}

type SaveSceneOutput struct {
	Body agent.SaveResult
}

type LoadSceneOutput struct {
	Body agent.LoadResult
}

type ListScenesInput struct {
	SessionID string `path:"sessionId" doc:"Session to list"`
}

type ListScenesOutput struct {
	Body agent.SceneList
}

func RegisterSceneRoutes(api huma.API, tools *agent.Toolset) {
	huma.Register(api, huma.Operation{
		OperationID: "clear-scene",
		Method:      http.MethodPost,
		Path:        "/scene/clear",
		Summary:     "Delete every module file",
		Tags:        []string{"Scenes"},
	}, func(ctx context.Context, input *ClearSceneInput) (*ClearSceneOutput, error) {
		res, err := call(ctx, tools, agent.ToolClearScene,
			map[string]any{"confirm": input.Body.Confirm},
			func(ctx context.Context) (agent.ClearResult, error) {
				return tools.ClearScene(ctx, input.Body.Confirm)
			})
		if err != nil {
			return nil, err
		}
		return &ClearSceneOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "save-scene",
		Method:        http.MethodPost,
		Path:          "/scenes/{sessionId}/{name}",
		Summary:       "Save the module store as a named snapshot",
		Tags:          []string{"Scenes"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *SceneRefInput) (*SaveSceneOutput, error) {
		res, err := call(ctx, tools, agent.ToolSaveScene,
			map[string]any{"sessionId": input.SessionID, "name": input.Name},
			func(ctx context.Context) (agent.SaveResult, error) {
				return tools.SaveScene(ctx, input.SessionID, input.Name)
			})
		if err != nil {
			return nil, err
		}
		return &SaveSceneOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "load-scene",
		Method:      http.MethodPost,
		Path:        "/scenes/{sessionId}/{name}/load",
		Summary:     "Replace the module store with a snapshot",
		Tags:        []string{"Scenes"},
	}, func(ctx context.Context, input *SceneRefInput) (*LoadSceneOutput, error) {
		res, err := call(ctx, tools, agent.ToolLoadScene,
			map[string]any{"sessionId": input.SessionID, "name": input.Name},
			func(ctx context.Context) (agent.LoadResult, error) {
				return tools.LoadScene(ctx, input.SessionID, input.Name)
			})
		if err != nil {
			return nil, err
		}
		return &LoadSceneOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-scenes",
		Method:      http.MethodGet,
		Path:        "/scenes/{sessionId}",
		Summary:     "List a session's snapshots, newest first",
		Tags:        []string{"Scenes"},
	}, func(ctx context.Context, input *ListScenesInput) (*ListScenesOutput, error) {
		res, err := call(ctx, tools, agent.ToolListSavedScenes,
			map[string]any{"sessionId": input.SessionID},
			func(ctx context.Context) (agent.SceneList, error) {
				return tools.ListSavedScenes(ctx, input.SessionID)
			})
		if err != nil {
			return nil, err
		}
		return &ListScenesOutput{Body: res}, nil
	})
}
