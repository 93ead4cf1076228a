package holds

import "errors"

var (
	// ErrInvalidHoldData is returned when the id, dates, bed count or
	// occupant breakdown of a hold request is missing or malformed.
	ErrInvalidHoldData = errors.New("invalid hold data")
	// ErrHoldNotFound is returned when a hold is absent, or no longer in a
	// state the operation can act on (already confirmed, or expired before
	// confirmation).
	ErrHoldNotFound = errors.New("hold not found")
	// ErrDuplicateHold is returned when a caller-supplied id is taken.
	ErrDuplicateHold = errors.New("hold already exists")
	// ErrInsufficientAvailability is returned when the requested beds do
	// not fit in the free inventory for the range.
	ErrInsufficientAvailability = errors.New("insufficient availability")

	errNotActive = errors.New("hold is not active")
)
