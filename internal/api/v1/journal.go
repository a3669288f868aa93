package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/vrcreator/internal/domain"
)

type ListJournalInput struct {
	Limit int `query:"limit" minimum:"1" maximum:"500" default:"50" doc:"Max results"`
}

type ListJournalOutput struct {
	Body []*domain.ToolCall
}

func RegisterJournalRoutes(api huma.API, journal JournalReader) {
	huma.Register(api, huma.Operation{
		OperationID: "list-journal",
		Method:      http.MethodGet,
		Path:        "/journal",
		Summary:     "List recent tool calls, newest first",
		Tags:        []string{"Journal"},
	}, func(ctx context.Context, input *ListJournalInput) (*ListJournalOutput, error) {
		if journal == nil {
			return &ListJournalOutput{Body: []*domain.ToolCall{}}, nil
		}
		calls, err := journal.ListRecent(ctx, input.Limit)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list journal", err)
		}
		if calls == nil {
			calls = []*domain.ToolCall{}
		}
		return &ListJournalOutput{Body: calls}, nil
	})
}
