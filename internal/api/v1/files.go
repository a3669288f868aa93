package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/vrcreator/internal/agent"
)

type WriteFileInput struct {
	Body struct {
		Path    string `json:"path" minLength:"1" doc:"Project-relative path inside an allowed root"`
		Content string `json:"content" doc:"Full file content"`
	}
}

type WriteFileOutput struct {
	Body agent.WriteResult
}

type ReadFileInput struct {
	Path string `query:"path" required:"true" minLength:"1" doc:"Project-relative path inside an allowed root"`
}

type ReadFileOutput struct {
	Body agent.ReadResult
}

type DeleteFileInput struct {
	Name string `path:"name" doc:"Module file name"`
}

type DeleteFileOutput struct {
	Body agent.DeleteResult
}

type ListFilesInput struct{}

type ListFilesOutput struct {
	Body agent.FileList
}

func RegisterFileRoutes(api huma.API, tools *agent.Toolset) {
	huma.Register(api, huma.Operation{
		OperationID: "write-file",
		Method:      http.MethodPost,
		Path:        "/files",
		Summary:     "Write a file",
		Tags:        []string{"Files"},
	}, func(ctx context.Context, input *WriteFileInput) (*WriteFileOutput, error) {
		res, err := call(ctx, tools, agent.ToolWriteFile,
			map[string]any{"path": input.Body.Path, "content": input.Body.Content},
			func(ctx context.Context) (agent.WriteResult, error) {
				return tools.WriteFile(ctx, input.Body.Path, input.Body.Content)
			})
		if err != nil {
			return nil, err
		}
		return &WriteFileOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-file",
		Method:      http.MethodGet,
		Path:        "/files",
		Summary:     "Read a file",
		Tags:        []string{"Files"},
	}, func(ctx context.Context, input *ReadFileInput) (*ReadFileOutput, error) {
		res, err := call(ctx, tools, agent.ToolReadFile,
			map[string]any{"path": input.Path},
			func(ctx context.Context) (agent.ReadResult, error) {
				return tools.ReadFile(ctx, input.Path)
			})
		if err != nil {
			return nil, err
		}
		return &ReadFileOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-file",
		Method:      http.MethodDelete,
		Path:        "/files/{name}",
		Summary:     "Delete a module file",
		Tags:        []string{"Files"},
	}, func(ctx context.Context, input *DeleteFileInput) (*DeleteFileOutput, error) {
		res, err := call(ctx, tools, agent.ToolDeleteFile,
			map[string]any{"fileName": input.Name},
			func(ctx context.Context) (agent.DeleteResult, error) {
				return tools.DeleteFile(ctx, input.Name)
			})
		if err != nil {
			return nil, err
		}
		return &DeleteFileOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-files",
		Method:      http.MethodGet,
		Path:        "/files/list",
		Summary:     "List module files",
		Tags:        []string{"Files"},
	}, func(ctx context.Context, _ *ListFilesInput) (*ListFilesOutput, error) {
		res, err := call(ctx, tools, agent.ToolListFiles, nil, tools.ListFiles)
		if err != nil {
			return nil, err
		}
		return &ListFilesOutput{Body: res}, nil
	})
}
