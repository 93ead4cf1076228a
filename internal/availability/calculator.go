// Package availability merges booking occupancy from the repository with
// active-hold occupancy from the hold store into free-bed counts.
package availability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/hostel-bed-holds/internal/holds"
	"github.com/iliyamo/hostel-bed-holds/internal/logger"
	"github.com/iliyamo/hostel-bed-holds/internal/model"
	"github.com/iliyamo/hostel-bed-holds/internal/repository"
)

// HoldSource supplies active holds overlapping a range.  *holds.Store
// satisfies it.
type HoldSource interface {
	ActiveOverlapping(r model.DateRange) []model.Hold
}

// RoomOccupancy is the peak nightly load of one room over the range.
type RoomOccupancy struct {
	RoomID    string             `json:"roomId"`
	Category  model.RoomCategory `json:"category"`
	Capacity  int                `json:"capacity"`
	Booked    int                `json:"booked"`
	Held      int                `json:"held"`
	Blocked   bool               `json:"blocked"`
	Occupied  int                `json:"occupied"`
	Available int                `json:"available"`
}

// Report is the result of ComputeOccupancy.
type Report struct {
	CheckIn        string          `json:"checkIn"`
	CheckOut       string          `json:"checkOut"`
	Rooms          []RoomOccupancy `json:"rooms"`
	UnassignedHeld int             `json:"unassignedHeld"`
	TotalCapacity  int             `json:"totalCapacity"`
	TotalAvailable int             `json:"totalAvailable"`
}

// Occupied maps room id to occupied beds.
func (r Report) Occupied() map[string]int {
	out := make(map[string]int, len(r.Rooms))
	for _, room := range r.Rooms {
		out[room.RoomID] = room.Occupied
	}
	return out
}

// Calculator computes occupancy.  Reads through ComputeOccupancy may be
// served from the cache; FreeBeds and Nightly always hit the repository.
type Calculator struct {
	inventory *model.Inventory
	repo      repository.BookingRepository
	holds     HoldSource
	cache     Cache
	gen       atomic.Uint64
	// boot distinguishes this process's keys in a cache shared across
	// restarts, where gen starts over at zero.
	boot      string
	logger    *zap.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithCache enables the read cache.
func WithCache(c Cache) Option {
	return func(calc *Calculator) { calc.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(calc *Calculator) { calc.logger = logger.OrNop(l) }
}

// NewCalculator builds a calculator.  holdSrc may be nil, in which case only
// bookings count.
func NewCalculator(inv *model.Inventory, repo repository.BookingRepository, holdSrc HoldSource, opts ...Option) *Calculator {
	c := &Calculator{
		inventory: inv,
		repo:      repo,
		holds:     holdSrc,
		boot:      uuid.NewString(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHoldSource attaches the hold store after construction.  The hold
// manager needs the calculator and the calculator needs the store, so main
// wires them in two steps.
func (c *Calculator) SetHoldSource(src HoldSource) { c.holds = src }

// Invalidate makes every cached report stale.
func (c *Calculator) Invalidate() {
	c.gen.Add(1)
	if r, ok := c.cache.(interface{ Reset() }); ok {
		r.Reset()
	}
}

// ComputeOccupancy merges occupying bookings with active holds for the
// half-open range.  roomID "" reports every room.
func (c *Calculator) ComputeOccupancy(ctx context.Context, roomID string, dates model.DateRange) (Report, error) {
	if err := c.check(roomID, dates); err != nil {
		return Report{}, err
	}
	key := c.cacheKey(roomID, dates)
	if c.cache != nil {
		if r, ok := c.cache.Get(ctx, key); ok {
			return r, nil
		}
	}
	r, err := c.compute(ctx, roomID, dates, true)
	if err != nil {
		return Report{}, err
	}
	if c.cache != nil {
		c.cache.Set(ctx, key, r)
	}
	return r, nil
}

// FreeBeds implements holds.AvailabilityChecker.  It never consults the
// cache.
func (c *Calculator) FreeBeds(ctx context.Context, dates model.DateRange, withHolds bool) (holds.Free, error) {
	if err := c.check("", dates); err != nil {
		return holds.Free{}, err
	}
	r, err := c.compute(ctx, "", dates, withHolds)
	if err != nil {
		return holds.Free{}, err
	}
	free := holds.Free{Rooms: make(map[string]int, len(r.Rooms)), Total: r.TotalAvailable}
	for _, room := range r.Rooms {
		free.Rooms[room.RoomID] = room.Available
	}
	return free, nil
}

// Nightly returns, per room, the occupied beds of every night in the range,
// including pinned active holds.
func (c *Calculator) Nightly(ctx context.Context, dates model.DateRange) (map[string][]int, error) {
	if err := c.check("", dates); err != nil {
		return nil, err
	}
	loads, _, err := c.load(ctx, "", dates, true)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]int, len(loads))
	for _, room := range c.inventory.Rooms() {
		nights := make([]int, 0, dates.Nights())
		for d := dates.CheckIn; d.Before(dates.CheckOut); d = d.AddDate(0, 0, 1) {
			nights = append(nights, clamp(loadAt(loads[room.ID].all, d), 0, room.Capacity))
		}
		out[room.ID] = nights
	}
	return out, nil
}

func (c *Calculator) check(roomID string, dates model.DateRange) error {
	if !dates.CheckIn.Before(dates.CheckOut) {
		return fmt.Errorf("%w: %s", ErrInvalidRange, dates)
	}
	if roomID != "" {
		if _, ok := c.inventory.Room(roomID); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownRoom, roomID)
		}
	}
	return nil
}

func (c *Calculator) cacheKey(roomID string, dates model.DateRange) string {
	if roomID == "" {
		roomID = "all"
	}
	return fmt.Sprintf("%s|%s|%s|%s.%d", roomID,
		dates.CheckIn.Format(model.DateLayout), dates.CheckOut.Format(model.DateLayout), c.boot, c.gen.Load())
}

type roomLoad struct {
	booked  []step
	held    []step
	all     []step
	blocked bool
}

// load builds the step functions for each room plus the unassigned holds.
func (c *Calculator) load(ctx context.Context, roomID string, dates model.DateRange, withHolds bool) (map[string]roomLoad, []step, error) {
	bookings, err := c.repo.FindOverlapping(ctx, roomID, dates.CheckIn, dates.CheckOut)
	if err != nil {
		c.logger.Error("occupancy query failed", zap.String("room_id", roomID), zap.Stringer("dates", dates), zap.Error(err))
		return nil, nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	booked := map[string][]span{}
	held := map[string][]span{}
	blocked := map[string]bool{}
	for _, b := range bookings {
		if !b.Status.Occupying() || !b.Dates.Overlaps(dates) {
			continue
		}
		room, ok := c.inventory.Room(b.RoomID)
		if !ok {
			c.logger.Debug("booking for unknown room ignored", zap.String("booking_id", b.ID), zap.String("room_id", b.RoomID))
			continue
		}
		beds := b.Beds
		if b.IsBlock() {
			beds = room.Capacity
			blocked[room.ID] = true
		}
		booked[room.ID] = append(booked[room.ID], span{dates: b.Dates.Clip(dates), beds: beds})
	}

	var unassigned []span
	if withHolds && c.holds != nil {
		for _, h := range c.holds.ActiveOverlapping(dates) {
			s := span{dates: h.Dates.Clip(dates), beds: h.Beds}
			switch {
			case h.RoomID == "":
				unassigned = append(unassigned, s)
			case roomID == "" || h.RoomID == roomID:
				held[h.RoomID] = append(held[h.RoomID], s)
			}
		}
	}

	out := make(map[string]roomLoad)
	for _, room := range c.rooms(roomID) {
		all := append(append([]span(nil), booked[room.ID]...), held[room.ID]...)
		out[room.ID] = roomLoad{
			booked:  loadSteps(booked[room.ID]),
			held:    loadSteps(held[room.ID]),
			all:     loadSteps(all),
			blocked: blocked[room.ID],
		}
	}
	return out, loadSteps(unassigned), nil
}

func (c *Calculator) compute(ctx context.Context, roomID string, dates model.DateRange, withHolds bool) (Report, error) {
	start := time.Now()
	loads, unassigned, err := c.load(ctx, roomID, dates, withHolds)
	if err != nil {
		return Report{}, err
	}

	rooms := c.rooms(roomID)
	r := Report{
		CheckIn:        dates.CheckIn.Format(model.DateLayout),
		CheckOut:       dates.CheckOut.Format(model.DateLayout),
		Rooms:          make([]RoomOccupancy, 0, len(rooms)),
		UnassignedHeld: peak(unassigned),
	}
	perRoom := make([][]step, 0, len(rooms)+1)
	for _, room := range rooms {
		l := loads[room.ID]
		occupied := clamp(peak(l.all), 0, room.Capacity)
		r.Rooms = append(r.Rooms, RoomOccupancy{
			RoomID:    room.ID,
			Category:  room.Category,
			Capacity:  room.Capacity,
			Booked:    peak(l.booked),
			Held:      peak(l.held),
			Blocked:   l.blocked,
			Occupied:  occupied,
			Available: clamp(room.Capacity-occupied, 0, room.Capacity),
		})
		r.TotalCapacity += room.Capacity
		perRoom = append(perRoom, l.all)
	}

	// property-wide peak: per night, each room contributes at most its
	// capacity, and unassigned holds come on top
	maxTotal := 0
	for _, night := range breakpoints(dates, append(perRoom, unassigned)...) {
		total := loadAt(unassigned, night)
		for i, room := range rooms {
			total += clamp(loadAt(perRoom[i], night), 0, room.Capacity)
		}
		if total > maxTotal {
			maxTotal = total
		}
	}
	r.TotalAvailable = clamp(r.TotalCapacity-maxTotal, 0, r.TotalCapacity)

	c.logger.Debug("occupancy computed",
		zap.String("room_id", roomID),
		zap.Stringer("dates", dates),
		zap.Int("total_available", r.TotalAvailable),
		zap.Duration("elapsed", time.Since(start)),
	)
	return r, nil
}

func (c *Calculator) rooms(roomID string) []model.Room {
	if roomID == "" {
		return c.inventory.Rooms()
	}
	room, ok := c.inventory.Room(roomID)
	if !ok {
		return nil
	}
	return []model.Room{room}
}
