package service

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrNotMember          = errors.New("user is not a member of this conversation")
	ErrForbidden          = errors.New("action not permitted for this user")
	ErrInvalidParent      = errors.New("invalid thread parent")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorageTimeout     = errors.New("storage timeout")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrConflict marks a stale write that lost a compare-and-set. It is
	// resolved as a no-op and never returned to callers.
	ErrConflict = errors.New("conflict")
)

// Retryable reports whether the caller may retry the request with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorageTimeout)
}
