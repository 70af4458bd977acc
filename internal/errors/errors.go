package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Kuse error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNoHistory      ErrorCode = "NO_HISTORY"      // 404
	ErrNothingToUndo  ErrorCode = "NOTHING_TO_UNDO" // 404
	ErrFileNotFound   ErrorCode = "FILE_NOT_FOUND"  // 404
	ErrConflict       ErrorCode = "CONFLICT"        // 409
	ErrIOFailure      ErrorCode = "IO_FAILURE"      // 500
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// Kind groups error codes into the three failure families callers act on.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindIOFailure    Kind = "io_failure"
	KindInvalidInput Kind = "invalid_input"
	KindOther        Kind = "other"
)

// KuseError represents a structured error with code, status, and details.
type KuseError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *KuseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying OS error, if any.
func (e *KuseError) Unwrap() error {
	return e.cause
}

// Kind reports the failure family of the error code.
func (e *KuseError) Kind() Kind {
	switch e.Code {
	case ErrNoHistory, ErrNothingToUndo, ErrFileNotFound:
		return KindNotFound
	case ErrIOFailure:
		return KindIOFailure
	case ErrInvalidRequest:
		return KindInvalidInput
	default:
		return KindOther
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *KuseError {
	return &KuseError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNoHistory creates a 404 error for a conversation that never recorded an action.
func NewNoHistory(conversationID string) *KuseError {
	return &KuseError{
		Code:    ErrNoHistory,
		Status:  404,
		Message: "No history for this conversation",
		Details: map[string]any{"conversation_id": conversationID},
	}
}

// NewNothingToUndo creates a 404 error for a known conversation with an empty stack.
func NewNothingToUndo(conversationID string) *KuseError {
	return &KuseError{
		Code:    ErrNothingToUndo,
		Status:  404,
		Message: "Nothing to undo",
		Details: map[string]any{"conversation_id": conversationID},
	}
}

// NewFileNotFound creates a 404 error for a missing file.
func NewFileNotFound(path string) *KuseError {
	return &KuseError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("File not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewFileNotFoundMsg creates a 404 error for a missing file with a custom message.
func NewFileNotFoundMsg(path, msg string) *KuseError {
	return &KuseError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: msg,
		Details: map[string]any{"path": path},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *KuseError {
	return &KuseError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewIOFailure creates a 500 error for a filesystem operation that failed.
// The message is surfaced to the agent, so it names the operation.
func NewIOFailure(op string, err error) *KuseError {
	msg := op
	if err != nil {
		msg = fmt.Sprintf("%s: %v", op, err)
	}
	return &KuseError{
		Code:    ErrIOFailure,
		Status:  500,
		Message: msg,
		Details: map[string]any{"operation": op},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *KuseError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &KuseError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is a KuseError with the given code.
func Is(err error, code ErrorCode) bool {
	var kErr *KuseError
	if stderrors.As(err, &kErr) {
		return kErr.Code == code
	}
	return false
}

// KindOf returns the failure family of err. Non-Kuse errors report KindOther.
func KindOf(err error) Kind {
	var kErr *KuseError
	if stderrors.As(err, &kErr) {
		return kErr.Kind()
	}
	return KindOther
}
