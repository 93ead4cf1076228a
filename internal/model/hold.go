package model

import (
	"fmt"
	"time"
)

// HoldStatus is the closed set of hold states.  ACTIVE is the only initial
// and the only non-terminal state; CONFIRMED, RELEASED and EXPIRED are
// terminal and have no outgoing transitions.
type HoldStatus uint8

const (
	HoldActive HoldStatus = iota + 1
	HoldConfirmed
	HoldReleased
	HoldExpired
)

func (s HoldStatus) String() string {
	switch s {
	case HoldActive:
		return "ACTIVE"
	case HoldConfirmed:
		return "CONFIRMED"
	case HoldReleased:
		return "RELEASED"
	case HoldExpired:
		return "EXPIRED"
	}
	return fmt.Sprintf("HoldStatus(%d)", uint8(s))
}

// MarshalText encodes the status as its upper-case label.
func (s HoldStatus) MarshalText() ([]byte, error) {
	switch s {
	case HoldActive, HoldConfirmed, HoldReleased, HoldExpired:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("invalid hold status %d", uint8(s))
}

// Terminal reports whether no further transition is possible.
func (s HoldStatus) Terminal() bool {
	switch s {
	case HoldActive:
		return false
	case HoldConfirmed, HoldReleased, HoldExpired:
		return true
	}
	return true
}

// CanTransition is the hold state machine:
// ACTIVE -> {CONFIRMED, RELEASED, EXPIRED}; nothing leaves a terminal state.
func CanTransition(from, to HoldStatus) bool {
	switch from {
	case HoldActive:
		switch to {
		case HoldConfirmed, HoldReleased, HoldExpired:
			return true
		case HoldActive:
			return false
		}
		return false
	case HoldConfirmed, HoldReleased, HoldExpired:
		return false
	}
	return false
}

// Occupants is the guest breakdown of a hold request.
type Occupants struct {
	Men   int `json:"men"`
	Women int `json:"women"`
}

// Total is the number of guests in the breakdown.
func (o Occupants) Total() int { return o.Men + o.Women }

// Hold is a temporary, exclusive claim over a count of beds within a date
// range for one prospective booking.  ExpiresAt is set exactly once, at
// creation, to CreatedAt + TTL and is never extended.
//
// Fields:
//  ID         – caller supplied or generated identifier.
//  RoomID     – room the beds are claimed in; empty claims beds anywhere
//               in the property.
//  Dates      – the nights claimed.
//  Beds       – number of beds claimed (>= 1).
//  Occupants  – guest breakdown as requested.
//  TotalCents – requested total price, computed by the pricing collaborator.
//  Status     – current state.
//  CreatedAt  – creation timestamp.
//  ExpiresAt  – CreatedAt + TTL.
//  FinishedAt – when the hold reached a terminal state (zero while ACTIVE).
//  PaymentStatus – label passed on confirmation (e.g. "paid").
type Hold struct {
	ID            string
	RoomID        string
	Dates         DateRange
	Beds          int
	Occupants     Occupants
	TotalCents    int64
	Status        HoldStatus
	CreatedAt     time.Time
	ExpiresAt     time.Time
	FinishedAt    time.Time
	PaymentStatus string
}
