package conflict

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStrategy is returned by ParseStrategy.
var ErrUnknownStrategy = errors.New("unknown conflict strategy")

// Strategy selects how an imported booking competes with existing ones.
type Strategy string

const (
	PlatformPriority Strategy = "platform_priority"
	NewestWins       Strategy = "newest_wins"
	OldestWins       Strategy = "oldest_wins"
	ICalPriority     Strategy = "ical_priority"
	Manual           Strategy = "manual"
)

// ParseStrategy accepts the strategy names case-insensitively; an empty
// string selects PlatformPriority.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return PlatformPriority, nil
	case PlatformPriority, NewestWins, OldestWins, ICalPriority, Manual:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Action is what happened to the incoming booking.
type Action string

const (
	// KeepExisting: nothing overlapped, the incoming booking is admitted and
	// existing bookings are untouched.
	KeepExisting Action = "keep_existing"
	// Replace: overlapping bookings were cancelled in favour of the import.
	Replace Action = "replace"
	// Skip: the import is rejected.
	Skip Action = "skip"
)
