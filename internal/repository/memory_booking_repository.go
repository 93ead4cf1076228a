package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/hostel-bed-holds/internal/model"
)

// MemoryBookingRepo is a process-local BookingRepository used in
// development (STORE_DRIVER=memory) and in tests.  It offers no durability.
type MemoryBookingRepo struct {
	mu       sync.RWMutex
	bookings map[string]model.Booking
	now      func() time.Time
}

// NewMemoryBookingRepo returns an empty repository.
func NewMemoryBookingRepo() *MemoryBookingRepo {
	return &MemoryBookingRepo{bookings: make(map[string]model.Booking), now: time.Now}
}

func (r *MemoryBookingRepo) FindOverlapping(_ context.Context, roomID string, from, to time.Time) ([]model.Booking, error) {
	window := model.DateRange{CheckIn: from, CheckOut: to}
	r.mu.RLock()
	out := make([]model.Booking, 0)
	for _, b := range r.bookings {
		if roomID != "" && b.RoomID != roomID {
			continue
		}
		if b.Dates.Overlaps(window) {
			out = append(out, b)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryBookingRepo) GetByID(_ context.Context, id string) (model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return model.Booking{}, ErrNotFound
	}
	return b, nil
}

func (r *MemoryBookingRepo) Create(_ context.Context, b *model.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bookings[b.ID]; exists {
		return fmt.Errorf("%w: booking %s already exists", ErrConflict, b.ID)
	}
	r.bookings[b.ID] = *b
	return nil
}

func (r *MemoryBookingRepo) UpdateStatus(_ context.Context, id string, status model.BookingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = r.now().UTC()
	r.bookings[id] = b
	return nil
}

func (r *MemoryBookingRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[id]; !ok {
		return ErrNotFound
	}
	delete(r.bookings, id)
	return nil
}

// Len reports the number of stored bookings.
func (r *MemoryBookingRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bookings)
}
