package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrPathRejected         = errors.New("domain: path rejected")
	ErrInvalidName          = errors.New("domain: invalid name")
	ErrNotFound             = errors.New("domain: not found")
	ErrConfirmationRequired = errors.New("domain: confirmation required")
	ErrEmptySource          = errors.New("domain: empty source")
	ErrEmptySnapshot        = errors.New("domain: empty snapshot")
	ErrExecutionFailure     = errors.New("domain: execution failure")
	ErrTeardownFailure      = errors.New("domain: teardown failure")
	ErrConflict             = errors.New("domain: conflict")
	ErrUnauthorized         = errors.New("domain: unauthorized")
	ErrEmptyPrompt          = errors.New("domain: empty prompt")
)

// Error codes as reported to the agent and on the wire.
const (
	CodePathRejected         = "PathRejected"
	CodeInvalidName          = "InvalidName"
	CodeNotFound             = "NotFound"
	CodeConfirmationRequired = "ConfirmationRequired"
	CodeEmptySource          = "EmptySource"
	CodeEmptySnapshot        = "EmptySnapshot"
	CodeExecutionFailure     = "ExecutionFailure"
	CodeTeardownFailure      = "TeardownFailure"
	CodeConflict             = "Conflict"
	CodeUnauthorized         = "Unauthorized"
	CodeEmptyPrompt          = "EmptyPrompt"
	CodeInternal             = "Internal"
)

var errorCodes = []struct { //nolint:gochecknoglobals // lookup table
	err  error
	code string
}{
	{ErrPathRejected, CodePathRejected},
	{ErrInvalidName, CodeInvalidName},
	{ErrNotFound, CodeNotFound},
	{ErrConfirmationRequired, CodeConfirmationRequired},
	{ErrEmptySource, CodeEmptySource},
	{ErrEmptySnapshot, CodeEmptySnapshot},
	{ErrExecutionFailure, CodeExecutionFailure},
	{ErrTeardownFailure, CodeTeardownFailure},
	{ErrConflict, CodeConflict},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrEmptyPrompt, CodeEmptyPrompt},
}

// ErrorCode returns the wire code for err. Nil maps to "" and errors outside
// the taxonomy map to CodeInternal.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}
