package domain

import "errors"

var (
	// ErrWorkerNotFound is returned when no worker with the requested id exists.
	ErrWorkerNotFound = errors.New("worker not found")
	// ErrNotOwner is returned when a caller touches a worker created by someone else.
	ErrNotOwner = errors.New("worker belongs to another user")
	// ErrUserExists is returned on registration with a taken username.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned by user lookups for unknown usernames.
	// It must never reach a client verbatim; the dispatcher collapses it into
	// ErrInvalidCredentials so unknown-user and wrong-password are
	// indistinguishable from outside.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is the uniform authentication failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrStorage wraps persistence failures surfaced to the dispatch layer.
	ErrStorage = errors.New("storage failure")
)
