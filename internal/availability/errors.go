package availability

import "errors"

var (
	// ErrInvalidRange is returned for an empty or inverted date range.
	ErrInvalidRange = errors.New("invalid availability range")
	// ErrUnknownRoom is returned when the room id is not in the inventory.
	ErrUnknownRoom = errors.New("unknown room")
	// ErrUpstreamUnavailable is returned when the booking repository cannot
	// be read.  Availability fails closed: no partial report is produced.
	ErrUpstreamUnavailable = errors.New("booking repository unavailable")
)
