package holds

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/hostel-bed-holds/internal/logger"
)

// ExpirySweeper is the part of Manager the background sweeper drives.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context) int
}

// Sweeper runs SweepExpired on a fixed interval until stopped.
type Sweeper struct {
	target   ExpirySweeper
	interval time.Duration
	logger   *zap.Logger

	once sync.Once
	stop chan struct{}
	done chan struct{}
}

// NewSweeper returns a stopped sweeper.  A non-positive interval falls back
// to one minute.
func NewSweeper(target ExpirySweeper, interval time.Duration, l *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		target:   target,
		interval: interval,
		logger:   logger.OrNop(l),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the loop.  It returns immediately; the loop ends when ctx
// is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		t := time.NewTicker(s.interval)
		defer t.Stop()
		s.logger.Info("hold sweeper started", zap.Duration("interval", s.interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-t.C:
				s.target.SweepExpired(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight sweep to finish.  Stop must
// only be called after Start.
func (s *Sweeper) Stop() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	s.logger.Info("hold sweeper stopped")
}
