package availability

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/hostel-bed-holds/internal/model"
)

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(30*time.Second, 0, func() time.Time { return now })
	ctx := context.Background()

	c.Set(ctx, "k", Report{TotalAvailable: 4, Rooms: []RoomOccupancy{{RoomID: "a"}}})
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 4, got.TotalAvailable)

	got.Rooms[0].RoomID = "mutated"
	again, _ := c.Get(ctx, "k")
	assert.Equal(t, "a", again.Rooms[0].RoomID)

	now = now.Add(31 * time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_EvictsWhenFull(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute, 2, func() time.Time { return now })
	ctx := context.Background()

	c.Set(ctx, "a", Report{})
	now = now.Add(time.Second)
	c.Set(ctx, "b", Report{})
	now = now.Add(time.Second)
	c.Set(ctx, "c", Report{})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)

	c.Reset()
	assert.Equal(t, 0, c.Len())
}

func TestNewRedisCache_NilClient(t *testing.T) {
	assert.Nil(t, NewRedisCache(nil, "", 0, nil))
}

func TestRedisCache_RoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	c := NewRedisCache(rdb, "avail", 30*time.Second, nil)
	require.NotNil(t, c)
	_, ok := c.Get(ctx, "all|2025-03-10|2025-03-12|0")
	assert.False(t, ok)

	want := Report{CheckIn: "2025-03-10", CheckOut: "2025-03-12", TotalCapacity: 26, TotalAvailable: 20,
		Rooms: []RoomOccupancy{{RoomID: "mixed-7", Capacity: 7, Booked: 6, Occupied: 6, Available: 1}}}
	c.Set(ctx, "all|2025-03-10|2025-03-12|0", want)

	got, ok := c.Get(ctx, "all|2025-03-10|2025-03-12|0")
	require.True(t, ok)
	assert.Equal(t, want, got)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Regexp(t, `^avail:[0-9a-f]{40}$`, keys[0])

	mr.FastForward(31 * time.Second)
	_, ok = c.Get(ctx, "all|2025-03-10|2025-03-12|0")
	assert.False(t, ok)
}

func TestRedisCache_ErrorsAreMisses(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	c := NewRedisCache(rdb, "", 0, nil)
	mr.Close()

	c.Set(context.Background(), "k", Report{TotalAvailable: 1})
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestLoadSteps(t *testing.T) {
	r := func(from, to string) model.DateRange {
		d, err := model.ParseDateRange(from, to)
		require.NoError(t, err)
		return d
	}
	steps := loadSteps([]span{
		{dates: r("2025-03-10", "2025-03-12"), beds: 2},
		{dates: r("2025-03-12", "2025-03-13"), beds: 2},
		{dates: r("2025-03-11", "2025-03-12"), beds: 1},
		{dates: r("2025-03-11", "2025-03-15"), beds: 0},
	})
	assert.Equal(t, 3, peak(steps))
	day := func(s string) time.Time { d, _ := model.ParseDate(s); return d }
	assert.Equal(t, 0, loadAt(steps, day("2025-03-09")))
	assert.Equal(t, 2, loadAt(steps, day("2025-03-10")))
	assert.Equal(t, 3, loadAt(steps, day("2025-03-11")))
	assert.Equal(t, 2, loadAt(steps, day("2025-03-12")))
	assert.Equal(t, 0, loadAt(steps, day("2025-03-13")))
	assert.Empty(t, loadSteps(nil))
}

func TestRedisCache_SharedAcrossRestarts(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	shared := NewRedisCache(rdb, "avail", time.Minute, nil)
	q := dr(t, "2025-03-10", "2025-03-12")
	ctx := context.Background()

	before := newEnv(t, WithCache(shared))
	before.book(t, "b1", "mixed-7", q, 6, model.BookingConfirmed)
	r, err := before.calc.ComputeOccupancy(ctx, "mixed-7", q)
	require.NoError(t, err)
	assert.Equal(t, 1, r.TotalAvailable)

	// a new process starts with generation zero and its own bookings
	after := newEnv(t, WithCache(shared))
	r, err = after.calc.ComputeOccupancy(ctx, "mixed-7", q)
	require.NoError(t, err)
	assert.Equal(t, 7, r.TotalAvailable)
	assert.Len(t, mr.Keys(), 2)
}
