package holds

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct{ n atomic.Int32 }

func (c *countingSweeper) SweepExpired(context.Context) int {
	c.n.Add(1)
	return 0
}

func TestSweeper_TicksUntilStopped(t *testing.T) {
	target := &countingSweeper{}
	s := NewSweeper(target, 5*time.Millisecond, nil)
	s.Start(context.Background())

	assert.Eventually(t, func() bool { return target.n.Load() >= 2 }, time.Second, time.Millisecond)
	s.Stop()
	s.Stop()

	after := target.n.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, target.n.Load())
}

func TestSweeper_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSweeper(&countingSweeper{}, time.Hour, nil)
	s.Start(ctx)
	cancel()

	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not exit after cancel")
	}
}

func TestSweeper_DrivesManager(t *testing.T) {
	f := newFixture(t, WithTTL(time.Minute))
	_, err := f.mgr.Create(context.Background(), request("h1", "", 1))
	assert.NoError(t, err)
	f.clock.Advance(time.Minute)

	s := NewSweeper(f.mgr, 5*time.Millisecond, nil)
	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		h, _ := f.mgr.Get("h1")
		return h.Status.Terminal()
	}, time.Second, time.Millisecond)
}
