package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for check-in and check-out dates.
const DateLayout = "2006-01-02"

// ErrInvalidDateRange is returned for missing, malformed or inverted ranges.
var ErrInvalidDateRange = errors.New("invalid date range")

// DateRange is a half-open range of nights [CheckIn, CheckOut).  Both ends
// are normalised to midnight UTC, so a range always covers whole nights.
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// ParseDate parses a YYYY-MM-DD date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: date is required", ErrInvalidDateRange)
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD date", ErrInvalidDateRange, s)
	}
	return t, nil
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDateRange builds a range and rejects zero values and from >= to.
func NewDateRange(from, to time.Time) (DateRange, error) {
	if from.IsZero() || to.IsZero() {
		return DateRange{}, fmt.Errorf("%w: check-in and check-out are required", ErrInvalidDateRange)
	}
	r := DateRange{CheckIn: Day(from), CheckOut: Day(to)}
	if !r.CheckIn.Before(r.CheckOut) {
		return DateRange{}, fmt.Errorf("%w: check-in must be before check-out", ErrInvalidDateRange)
	}
	return r, nil
}

// ParseDateRange parses both ends and validates the range.
func ParseDateRange(from, to string) (DateRange, error) {
	f, err := ParseDate(from)
	if err != nil {
		return DateRange{}, err
	}
	t, err := ParseDate(to)
	if err != nil {
		return DateRange{}, err
	}
	return NewDateRange(f, t)
}

// Overlaps reports whether two half-open ranges share at least one night:
// a.CheckIn < b.CheckOut && a.CheckOut > b.CheckIn.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.CheckIn.Before(o.CheckOut) && r.CheckOut.After(o.CheckIn)
}

// Contains reports whether o lies entirely within r.
func (r DateRange) Contains(o DateRange) bool {
	return !o.CheckIn.Before(r.CheckIn) && !o.CheckOut.After(r.CheckOut)
}

// Equal reports whether both ends match.
func (r DateRange) Equal(o DateRange) bool {
	return r.CheckIn.Equal(o.CheckIn) && r.CheckOut.Equal(o.CheckOut)
}

// Nights is the number of nights in the range.
func (r DateRange) Nights() int {
	return int(r.CheckOut.Sub(r.CheckIn).Hours() / 24)
}

// Clip returns the intersection of r and o.  The result is only meaningful
// when the ranges overlap.
func (r DateRange) Clip(o DateRange) DateRange {
	out := r
	if o.CheckIn.After(out.CheckIn) {
		out.CheckIn = o.CheckIn
	}
	if o.CheckOut.Before(out.CheckOut) {
		out.CheckOut = o.CheckOut
	}
	return out
}

func (r DateRange) String() string {
	return r.CheckIn.Format(DateLayout) + ".." + r.CheckOut.Format(DateLayout)
}
