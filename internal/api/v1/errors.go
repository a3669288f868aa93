package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/vrcreator/internal/agent"
	"github.com/gosuda/vrcreator/internal/domain"
)

// statusFor maps a domain error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPathRejected):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrConfirmationRequired),
		errors.Is(err, domain.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmptySource),
		errors.Is(err, domain.ErrEmptySnapshot),
		errors.Is(err, domain.ErrExecutionFailure):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// toHumaError converts err into a problem response carrying the wire code in
// its first error detail.
func toHumaError(msg string, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		return huma.Error500InternalServerError(msg, err)
	}
	return huma.NewError(status, err.Error(), &huma.ErrorDetail{
		Message:  domain.ErrorCode(err),
		Location: "code",
	})
}

// call runs fn as a journaled tool invocation and converts its failure.
func call[T any](ctx context.Context, tools *agent.Toolset, tool string, input map[string]any, fn func(context.Context) (T, error)) (T, error) {
	res, err := tools.Call(ctx, Source, tool, input, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, toHumaError(tool+" failed", err)
	}
	out, _ := res.(T)
	return out, nil
}
