package workflow

import "errors"

var (
	// ErrNotFound is returned when a request record does not exist
	ErrNotFound = errors.New("request not found")

	// ErrStaleVersion is returned when the caller's expected version is out of date
	ErrStaleVersion = errors.New("stale request version")

	// ErrIllegalTransition is returned when the role may not move the request to the target status.
	// It covers both wrong role and wrong target.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrMissingRequiredData is returned when a transition requires side data that was not supplied
	ErrMissingRequiredData = errors.New("missing required transition data")

	// ErrStorageFailure is returned for transient persistence failures; callers may retry
	ErrStorageFailure = errors.New("storage failure")

	// ErrUnauthorized is returned when an identity cannot be mapped to the claimed role or scope
	ErrUnauthorized = errors.New("unauthorized actor")

	// ErrInvalidRequest is returned when creation input is malformed
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidStatus is returned when a status is outside its type's vocabulary
	ErrInvalidStatus = errors.New("invalid status")
)

// Error codes exposed to callers outside the process
const (
	CodeNotFound            = "NOT_FOUND"
	CodeStaleVersion        = "STALE_VERSION"
	CodeIllegalTransition   = "ILLEGAL_TRANSITION"
	CodeMissingRequiredData = "MISSING_REQUIRED_DATA"
	CodeStorageFailure      = "STORAGE_FAILURE"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeInternal            = "INTERNAL"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotFound, CodeNotFound},
	{ErrStaleVersion, CodeStaleVersion},
	{ErrIllegalTransition, CodeIllegalTransition},
	{ErrMissingRequiredData, CodeMissingRequiredData},
	{ErrStorageFailure, CodeStorageFailure},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrInvalidRequest, CodeInvalidRequest},
	{ErrInvalidStatus, CodeInvalidRequest},
}

// Code maps an error to its stable code. Unknown errors map to CodeInternal.
func Code(err error) string {
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

// IsRetryable reports whether the engine may retry the failed operation itself
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}
