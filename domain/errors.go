package domain

import "errors"

var (
	// ErrAuthenticationRequired is returned when a mutation is attempted without a signed-in principal.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrPermissionDenied is returned when the principal does not own a task it tries to mutate.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRemoteUnavailable wraps failures of the remote store.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	// ErrValidation marks malformed input.
	ErrValidation   = errors.New("validation failed")
	ErrTaskNotFound = errors.New("task not found")
	// ErrBatchTooLarge is returned, together with ErrValidation, when a batch
	// cannot be written as a single atomic unit.
	ErrBatchTooLarge = errors.New("batch exceeds transaction limit")
)
