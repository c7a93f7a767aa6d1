package model

import "errors"

// Business rejections are expected outcomes surfaced to the caller with a
// clear message. They are never logged as application errors.
var (
	ErrAlreadyRegistered = errors.New("you are already registered for this event")
	ErrMissingFields     = errors.New("email and eventTitle are required")
	ErrAtCapacity        = errors.New("event is at full capacity")
	ErrUnderage          = errors.New("you must be at least 18 years old to register")
	ErrEventNotFound     = errors.New("event not found")
	ErrDuplicateTitle    = errors.New("an event with this title already exists")
)

// System errors.
var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a storage-level race: a unique-constraint violation,
	// serialization failure, or lock timeout raised by a concurrent
	// transaction. The coordinator retries these a bounded number of times.
	ErrConflict = errors.New("concurrent update conflict")
)
