package model

import (
	"fmt"
	"strings"
	"time"
)

// BookingStatus is the closed set of booking states known to the engine.
type BookingStatus string

const (
	BookingPending    BookingStatus = "PENDING"
	BookingConfirmed  BookingStatus = "CONFIRMED"
	BookingCheckedIn  BookingStatus = "CHECKED_IN"
	BookingCheckedOut BookingStatus = "CHECKED_OUT"
	BookingCancelled  BookingStatus = "CANCELLED"
	BookingBlocked    BookingStatus = "BLOCKED"
)

// ParseBookingStatus validates a stored or received status label.
func ParseBookingStatus(s string) (BookingStatus, error) {
	switch st := BookingStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case BookingPending, BookingConfirmed, BookingCheckedIn, BookingCheckedOut, BookingCancelled, BookingBlocked:
		return st, nil
	}
	return "", fmt.Errorf("unknown booking status %q", s)
}

// Occupying reports whether a booking in this status takes beds away from
// availability.
func (s BookingStatus) Occupying() bool {
	switch s {
	case BookingConfirmed, BookingCheckedIn, BookingBlocked:
		return true
	case BookingPending, BookingCheckedOut, BookingCancelled:
		return false
	}
	return false
}

// Platform tags where a booking came from.
type Platform string

const (
	PlatformDirect      Platform = "direct"
	PlatformAirbnb      Platform = "airbnb"
	PlatformBooking     Platform = "booking"
	PlatformExpedia     Platform = "expedia"
	PlatformVrbo        Platform = "vrbo"
	PlatformHostelworld Platform = "hostelworld"
	PlatformInternal    Platform = "internal"
	PlatformICal        Platform = "ical"
	PlatformBlocked     Platform = "blocked"
)

// NormalizePlatform lower-cases and trims a source tag.
func NormalizePlatform(s string) Platform {
	return Platform(strings.ToLower(strings.TrimSpace(s)))
}

// Booking is a reservation record owned by the booking repository.  The
// engine reads bookings for occupancy and, through the conflict resolver
// and date blocker, asks the repository to create, cancel or delete them.
//
// Fields:
//  ID            – repository identifier.
//  RoomID        – room the beds are booked in.
//  Dates         – nights booked.
//  Beds          – number of beds (0 for administrative blocks).
//  Status        – booking state.
//  PaymentStatus – free-form payment label ("paid", "pending", ...).
//  Source        – platform the booking came from.
//  ExternalRef   – reservation id on the external channel, if any.
//  HoldID        – hold this booking was confirmed from, if any.
//  TotalCents    – total price.
//  Notes         – free-form or structured (JSON) note.
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
type Booking struct {
	ID            string
	RoomID        string
	Dates         DateRange
	Beds          int
	Status        BookingStatus
	PaymentStatus string
	Source        Platform
	ExternalRef   string
	HoldID        string
	TotalCents    int64
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsBlock reports whether the booking is an administrative date block.
func (b Booking) IsBlock() bool { return b.Status == BookingBlocked }
