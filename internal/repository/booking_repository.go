package repository

import (
	"context"
	"time"

	"github.com/iliyamo/hostel-bed-holds/internal/model"
)

// BookingRepository is the query/write interface over confirmed bookings.
// The engine never owns booking records; it reads them for occupancy and
// asks the repository to create, re-status or delete them.
type BookingRepository interface {
	// FindOverlapping returns every booking, in any status, whose nights
	// overlap [from, to).  An empty roomID matches all rooms.  Results are
	// ordered by creation time, then id.
	FindOverlapping(ctx context.Context, roomID string, from, to time.Time) ([]model.Booking, error)

	// GetByID returns a single booking or ErrNotFound.
	GetByID(ctx context.Context, id string) (model.Booking, error)

	// Create inserts the booking, assigning ID and timestamps when unset.
	Create(ctx context.Context, b *model.Booking) error

	// UpdateStatus changes the status of an existing booking.
	UpdateStatus(ctx context.Context, id string, status model.BookingStatus) error

	// Delete removes a booking.
	Delete(ctx context.Context, id string) error
}
