package domain

import "errors"

var (
	errNotFound         error = errors.New("not found")
	errForbidden        error = errors.New("forbidden")
	errInvalidState     error = errors.New("invalid state")
	errInvalidArgument  error = errors.New("invalid argument")
	errInvalidOperation error = errors.New("invalid operation")
	errAlreadyExists    error = errors.New("already exists")
	errConflict         error = errors.New("conflict")
	errUnavailable      error = errors.New("unavailable")

	errStaleWrite error = errors.New("stale write")
)

// ErrNotFound - referenced task, bid or tasker is absent.
func ErrNotFound() error {
	return errNotFound
}

// ErrForbidden - actor lacks ownership or role.
func ErrForbidden() error {
	return errForbidden
}

// ErrInvalidState - operation not valid for the current status.
func ErrInvalidState() error {
	return errInvalidState
}

// ErrInvalidArgument - malformed amount, coordinates, category id, ...
func ErrInvalidArgument() error {
	return errInvalidArgument
}

// ErrInvalidOperation - operation not supported for this entity's mode,
// e.g. changing the amount of a fixed-price bid.
func ErrInvalidOperation() error {
	return errInvalidOperation
}

func ErrAlreadyExists() error {
	return errAlreadyExists
}

// ErrConflict - a concurrent write won the race. Safe to retry.
func ErrConflict() error {
	return errConflict
}

// ErrStaleWrite marks a conditional write that matched no record because
// the record left the expected state. It always travels with ErrConflict.
func ErrStaleWrite() error {
	return errStaleWrite
}

// ErrUnavailable - store or transaction infrastructure failure. Safe to retry.
func ErrUnavailable() error {
	return errUnavailable
}

func IsRetryable(err error) bool {
	return errors.Is(err, errConflict) || errors.Is(err, errUnavailable)
}
