// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/iliyamo/hostel-bed-holds/internal/conflict"
	"github.com/iliyamo/hostel-bed-holds/internal/model"
)

// Queue names.
const (
	HoldEventsQueue     = "hold.events"
	BookingImportsQueue = "bookings.import"
)

// HoldEvent is published when a hold leaves ACTIVE.  It carries enough
// for downstream consumers (guest messaging, analytics) to act without
// calling back into the engine.
type HoldEvent struct {
	Type          string `json:"type"`
	HoldID        string `json:"hold_id"`
	RoomID        string `json:"room_id,omitempty"`
	CheckIn       string `json:"check_in"`
	CheckOut      string `json:"check_out"`
	Beds          int    `json:"beds"`
	Men           int    `json:"men"`
	Women         int    `json:"women"`
	TotalCents    int64  `json:"total_cents"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status,omitempty"`
	ExpiresAt     string `json:"expires_at"`
	OccurredAt    string `json:"occurred_at"`
}

// NewHoldEvent builds the event for h's current status.
func NewHoldEvent(h model.Hold) HoldEvent {
	at := h.FinishedAt
	if at.IsZero() {
		at = h.CreatedAt
	}
	return HoldEvent{
		Type:          EventType(h.Status),
		HoldID:        h.ID,
		RoomID:        h.RoomID,
		CheckIn:       h.Dates.CheckIn.Format(model.DateLayout),
		CheckOut:      h.Dates.CheckOut.Format(model.DateLayout),
		Beds:          h.Beds,
		Men:           h.Occupants.Men,
		Women:         h.Occupants.Women,
		TotalCents:    h.TotalCents,
		Status:        h.Status.String(),
		PaymentStatus: h.PaymentStatus,
		ExpiresAt:     h.ExpiresAt.UTC().Format(time.RFC3339),
		OccurredAt:    at.UTC().Format(time.RFC3339),
	}
}

// EventType maps a hold status to its event name.
func EventType(s model.HoldStatus) string {
	switch s {
	case model.HoldActive:
		return "hold.created"
	case model.HoldConfirmed:
		return "hold.confirmed"
	case model.HoldReleased:
		return "hold.released"
	case model.HoldExpired:
		return "hold.expired"
	}
	return "hold.unknown"
}

// ExternalBookingMessage is a reservation pushed by the channel sync
// service onto bookings.import.
type ExternalBookingMessage struct {
	Platform      string `json:"platform"`
	ExternalRef   string `json:"external_ref"`
	RoomID        string `json:"room_id"`
	CheckIn       string `json:"check_in"`
	CheckOut      string `json:"check_out"`
	Beds          int    `json:"beds"`
	TotalCents    int64  `json:"total_cents"`
	PaymentStatus string `json:"payment_status"`
	Notes         string `json:"notes"`
}

// ToExternal converts the wire message for the conflict resolver.
func (m ExternalBookingMessage) ToExternal() conflict.ExternalBooking {
	return conflict.ExternalBooking{
		Platform:      model.NormalizePlatform(m.Platform),
		ExternalRef:   m.ExternalRef,
		RoomID:        m.RoomID,
		CheckIn:       m.CheckIn,
		CheckOut:      m.CheckOut,
		Beds:          m.Beds,
		TotalCents:    m.TotalCents,
		PaymentStatus: m.PaymentStatus,
		Notes:         m.Notes,
	}
}
