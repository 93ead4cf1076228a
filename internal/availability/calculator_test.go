package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/hostel-bed-holds/internal/holds"
	"github.com/iliyamo/hostel-bed-holds/internal/model"
	"github.com/iliyamo/hostel-bed-holds/internal/repository"
)

var created = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func dr(t *testing.T, from, to string) model.DateRange {
	t.Helper()
	r, err := model.ParseDateRange(from, to)
	require.NoError(t, err)
	return r
}

type env struct {
	calc  *Calculator
	repo  *repository.MemoryBookingRepo
	store *holds.Store
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	inv, err := model.ParseInventory("mixed-7:7:mixed,female-7:7:female,flex-12:12:flexible")
	require.NoError(t, err)
	e := &env{repo: repository.NewMemoryBookingRepo(), store: holds.NewStore()}
	e.calc = NewCalculator(inv, e.repo, e.store, opts...)
	return e
}

func (e *env) book(t *testing.T, id, room string, r model.DateRange, beds int, status model.BookingStatus) {
	t.Helper()
	require.NoError(t, e.repo.Create(context.Background(), &model.Booking{
		ID: id, RoomID: room, Dates: r, Beds: beds, Status: status, Source: model.PlatformDirect,
	}))
}

func (e *env) hold(t *testing.T, id, room string, r model.DateRange, beds int) {
	t.Helper()
	require.NoError(t, e.store.Insert(model.Hold{
		ID: id, RoomID: room, Dates: r, Beds: beds, Status: model.HoldActive,
		CreatedAt: created, ExpiresAt: created.Add(10 * time.Minute),
	}))
}

func roomOf(t *testing.T, r Report, id string) RoomOccupancy {
	t.Helper()
	for _, room := range r.Rooms {
		if room.RoomID == id {
			return room
		}
	}
	t.Fatalf("room %s missing from report", id)
	return RoomOccupancy{}
}

func TestComputeOccupancy_Empty(t *testing.T) {
	e := newEnv(t)
	r, err := e.calc.ComputeOccupancy(context.Background(), "", dr(t, "2025-03-10", "2025-03-12"))
	require.NoError(t, err)

	assert.Len(t, r.Rooms, 3)
	assert.Equal(t, 26, r.TotalCapacity)
	assert.Equal(t, 26, r.TotalAvailable)
	assert.Equal(t, "2025-03-10", r.CheckIn)
	assert.Equal(t, map[string]int{"female-7": 0, "flex-12": 0, "mixed-7": 0}, r.Occupied())
}

func TestComputeOccupancy_MergesBookingsAndHolds(t *testing.T) {
	e := newEnv(t)
	q := dr(t, "2025-03-10", "2025-03-12")
	e.book(t, "b1", "mixed-7", q, 3, model.BookingConfirmed)
	e.book(t, "b2", "mixed-7", q, 4, model.BookingCancelled)
	e.book(t, "b3", "mixed-7", q, 4, model.BookingPending)
	e.book(t, "b4", "female-7", q, 2, model.BookingCheckedIn)
	e.hold(t, "h1", "mixed-7", q, 2)

	r, err := e.calc.ComputeOccupancy(context.Background(), "", q)
	require.NoError(t, err)

	mixed := roomOf(t, r, "mixed-7")
	assert.Equal(t, 3, mixed.Booked)
	assert.Equal(t, 2, mixed.Held)
	assert.Equal(t, 5, mixed.Occupied)
	assert.Equal(t, 2, mixed.Available)
	assert.Equal(t, 5, roomOf(t, r, "female-7").Available)
	assert.Equal(t, 26-7, r.TotalAvailable)
}

func TestComputeOccupancy_HalfOpenBoundaries(t *testing.T) {
	e := newEnv(t)
	e.book(t, "before", "mixed-7", dr(t, "2025-03-08", "2025-03-10"), 7, model.BookingConfirmed)
	e.book(t, "after", "mixed-7", dr(t, "2025-03-12", "2025-03-15"), 7, model.BookingConfirmed)

	r, err := e.calc.ComputeOccupancy(context.Background(), "mixed-7", dr(t, "2025-03-10", "2025-03-12"))
	require.NoError(t, err)
	require.Len(t, r.Rooms, 1)
	assert.Equal(t, 7, r.Rooms[0].Available)
}

func TestComputeOccupancy_BackToBackStaysUsePeakNight(t *testing.T) {
	e := newEnv(t)
	e.book(t, "first", "flex-12", dr(t, "2025-03-10", "2025-03-12"), 8, model.BookingConfirmed)
	e.book(t, "second", "flex-12", dr(t, "2025-03-12", "2025-03-14"), 8, model.BookingConfirmed)
	e.hold(t, "h1", "flex-12", dr(t, "2025-03-11", "2025-03-13"), 3)

	r, err := e.calc.ComputeOccupancy(context.Background(), "flex-12", dr(t, "2025-03-10", "2025-03-14"))
	require.NoError(t, err)
	flex := r.Rooms[0]
	assert.Equal(t, 8, flex.Booked)
	assert.Equal(t, 3, flex.Held)
	assert.Equal(t, 11, flex.Occupied)
	assert.Equal(t, 1, flex.Available)
}

func TestComputeOccupancy_BlockOccupiesWholeRoom(t *testing.T) {
	e := newEnv(t)
	q := dr(t, "2025-03-10", "2025-03-12")
	e.book(t, "blk", "female-7", dr(t, "2025-03-11", "2025-03-13"), 0, model.BookingBlocked)

	r, err := e.calc.ComputeOccupancy(context.Background(), "", q)
	require.NoError(t, err)
	female := roomOf(t, r, "female-7")
	assert.True(t, female.Blocked)
	assert.Equal(t, 7, female.Occupied)
	assert.Equal(t, 0, female.Available)
}

func TestComputeOccupancy_ClampsOverbooking(t *testing.T) {
	e := newEnv(t)
	q := dr(t, "2025-03-10", "2025-03-12")
	e.book(t, "b1", "mixed-7", q, 6, model.BookingConfirmed)
	e.hold(t, "h1", "mixed-7", q, 4)

	r, err := e.calc.ComputeOccupancy(context.Background(), "", q)
	require.NoError(t, err)
	mixed := roomOf(t, r, "mixed-7")
	assert.Equal(t, 7, mixed.Occupied)
	assert.Equal(t, 0, mixed.Available)
	for _, room := range r.Rooms {
		assert.GreaterOrEqual(t, room.Available, 0)
		assert.LessOrEqual(t, room.Available, room.Capacity)
	}
}

func TestComputeOccupancy_UnassignedHoldsReduceTotal(t *testing.T) {
	e := newEnv(t)
	q := dr(t, "2025-03-10", "2025-03-12")
	e.hold(t, "h1", "", q, 20)
	e.book(t, "b1", "mixed-7", dr(t, "2025-03-11", "2025-03-12"), 2, model.BookingConfirmed)

	r, err := e.calc.ComputeOccupancy(context.Background(), "", q)
	require.NoError(t, err)
	assert.Equal(t, 20, r.UnassignedHeld)
	assert.Equal(t, 4, r.TotalAvailable)
	assert.Equal(t, 5, roomOf(t, r, "mixed-7").Available)
}

func TestComputeOccupancy_InactiveHoldsIgnored(t *testing.T) {
	e := newEnv(t)
	q := dr(t, "2025-03-10", "2025-03-12")
	e.hold(t, "h1", "mixed-7", q, 5)
	_, err := e.store.Transition("h1", model.HoldReleased, created, nil)
	require.NoError(t, err)

	r, err := e.calc.ComputeOccupancy(context.Background(), "mixed-7", q)
	require.NoError(t, err)
	assert.Equal(t, 7, r.Rooms[0].Available)
}

type brokenRepo struct{ repository.BookingRepository }

func (brokenRepo) FindOverlapping(context.Context, string, time.Time, time.Time) ([]model.Booking, error) {
	return nil, repository.ErrUnavailable
}

func TestComputeOccupancy_FailsClosed(t *testing.T) {
	inv, err := model.ParseInventory("mixed-7:7:mixed")
	require.NoError(t, err)
	calc := NewCalculator(inv, brokenRepo{}, holds.NewStore())

	_, err = calc.ComputeOccupancy(context.Background(), "", dr(t, "2025-03-10", "2025-03-12"))
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	_, err = calc.FreeBeds(context.Background(), dr(t, "2025-03-10", "2025-03-12"), true)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestComputeOccupancy_Rejects(t *testing.T) {
	e := newEnv(t)
	_, err := e.calc.ComputeOccupancy(context.Background(), "penthouse", dr(t, "2025-03-10", "2025-03-12"))
	assert.ErrorIs(t, err, ErrUnknownRoom)

	_, err = e.calc.ComputeOccupancy(context.Background(), "", model.DateRange{})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestFreeBeds_WithAndWithoutHolds(t *testing.T) {
	e := newEnv(t)
	q := dr(t, "2025-03-10", "2025-03-12")
	e.book(t, "b1", "mixed-7", q, 2, model.BookingConfirmed)
	e.hold(t, "h1", "mixed-7", q, 3)
	e.hold(t, "h2", "", q, 4)

	free, err := e.calc.FreeBeds(context.Background(), q, true)
	require.NoError(t, err)
	assert.Equal(t, 2, free.Rooms["mixed-7"])
	assert.Equal(t, 26-2-3-4, free.Total)

	free, err = e.calc.FreeBeds(context.Background(), q, false)
	require.NoError(t, err)
	assert.Equal(t, 5, free.Rooms["mixed-7"])
	assert.Equal(t, 24, free.Total)
}

func TestNightly(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", "mixed-7", dr(t, "2025-03-10", "2025-03-12"), 2, model.BookingConfirmed)
	e.hold(t, "h1", "mixed-7", dr(t, "2025-03-11", "2025-03-13"), 1)
	e.book(t, "blk", "female-7", dr(t, "2025-03-12", "2025-03-13"), 0, model.BookingBlocked)

	nightly, err := e.calc.Nightly(context.Background(), dr(t, "2025-03-10", "2025-03-14"))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 1, 0}, nightly["mixed-7"])
	assert.Equal(t, []int{0, 0, 7, 0}, nightly["female-7"])
	assert.Equal(t, []int{0, 0, 0, 0}, nightly["flex-12"])
}

type countingRepo struct {
	repository.BookingRepository
	calls int
	err   error
}

func (r *countingRepo) FindOverlapping(ctx context.Context, roomID string, from, to time.Time) ([]model.Booking, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.BookingRepository.FindOverlapping(ctx, roomID, from, to)
}

func TestComputeOccupancy_CacheAndInvalidate(t *testing.T) {
	inv, err := model.ParseInventory("mixed-7:7:mixed")
	require.NoError(t, err)
	repo := &countingRepo{BookingRepository: repository.NewMemoryBookingRepo()}
	store := holds.NewStore()
	calc := NewCalculator(inv, repo, store, WithCache(NewMemoryCache(time.Minute, 0, nil)))
	q := dr(t, "2025-03-10", "2025-03-12")
	ctx := context.Background()

	first, err := calc.ComputeOccupancy(ctx, "", q)
	require.NoError(t, err)
	_, err = calc.ComputeOccupancy(ctx, "", q)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls)

	require.NoError(t, store.Insert(model.Hold{ID: "h", RoomID: "mixed-7", Dates: q, Beds: 2, Status: model.HoldActive}))
	calc.Invalidate()
	second, err := calc.ComputeOccupancy(ctx, "", q)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
	assert.Equal(t, 7, first.TotalAvailable)
	assert.Equal(t, 5, second.TotalAvailable)

	// the hold path never reads the cache
	_, err = calc.FreeBeds(ctx, q, true)
	require.NoError(t, err)
	assert.Equal(t, 3, repo.calls)

	// a failing repository is not masked by an earlier cached report after
	// invalidation
	repo.err = errors.New("gone")
	calc.Invalidate()
	_, err = calc.ComputeOccupancy(ctx, "", q)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}
