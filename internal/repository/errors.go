// Package repository defines the booking repository capability consumed by
// the hold engine and its SQL and in-memory implementations.  The sentinel
// values below let higher layers distinguish failure scenarios: ErrNotFound
// maps to 404, ErrConflict to 409 and ErrUnavailable to a fail-closed 500.
package repository

import "errors"

// ErrNotFound is returned when the requested booking does not exist.
var ErrNotFound = errors.New("booking not found")

// ErrConflict is returned when a write collides with existing state, such as
// inserting a booking whose id is already taken.
var ErrConflict = errors.New("conflict")

// ErrUnavailable wraps driver and connectivity failures.  Callers reading
// occupancy must treat it as "unknown" and fail closed.
var ErrUnavailable = errors.New("booking repository unavailable")
