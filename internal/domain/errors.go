package domain

import "errors"

// Domain errors
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidState   = errors.New("invalid state")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrIO             = errors.New("persistence failure")
	ErrInvalidRequest = errors.New("invalid request")
	ErrConflict       = errors.New("conflict")
	ErrInternalError  = errors.New("internal server error")
)

// IsNotFound checks if an error is a not-found type error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidState reports whether the operation was not legal in the current lifecycle state
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsUnauthorized reports whether the actor lacked permission
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsConflict reports whether the request collided with an existing record
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsIOFailure reports whether the persistence layer failed
func IsIOFailure(err error) bool {
	return errors.Is(err, ErrIO)
}
