package reaper

import "errors"

var (
	// ErrAccountNotFound is returned when no account row (and no tombstone) exists for an id.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidState is returned when an operation is attempted from a status that does not permit it.
	ErrInvalidState = errors.New("invalid account state")

	// ErrAlreadyPurged is returned for an id whose account row is gone but whose tombstone exists.
	// It matches ErrInvalidState under errors.Is.
	ErrAlreadyPurged = &stateError{msg: "account already purged"}

	// ErrBlobNotFound is returned by a BlobStore when the object does not exist.
	ErrBlobNotFound = errors.New("blob not found")
)

type stateError struct {
	msg string
}

func (e *stateError) Error() string { return e.msg }

func (e *stateError) Is(target error) bool { return target == ErrInvalidState }
