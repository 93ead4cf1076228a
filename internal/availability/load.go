package availability

import (
	"sort"
	"time"

	"github.com/iliyamo/hostel-bed-holds/internal/model"
)

// span is one occupant of a room over a range of nights.
type span struct {
	dates model.DateRange
	beds  int
}

// step is a point where the nightly load changes: from `at` onwards, until
// the next step, `load` beds are occupied.
type step struct {
	at   time.Time
	load int
}

type loadEvent struct {
	at    time.Time
	delta int
}

// loadSteps turns spans into a step function of occupied beds per night.
// Arrivals and departures on the same day are netted, so back-to-back stays
// never count twice.
func loadSteps(spans []span) []step {
	events := make([]loadEvent, 0, 2*len(spans))
	for _, s := range spans {
		if s.beds == 0 {
			continue
		}
		events = append(events,
			loadEvent{at: s.dates.CheckIn, delta: s.beds},
			loadEvent{at: s.dates.CheckOut, delta: -s.beds},
		)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].at.Before(events[j].at) })

	var steps []step
	cur := 0
	for i := 0; i < len(events); {
		at := events[i].at
		for ; i < len(events) && events[i].at.Equal(at); i++ {
			cur += events[i].delta
		}
		if n := len(steps); n > 0 && steps[n-1].load == cur {
			continue
		}
		steps = append(steps, step{at: at, load: cur})
	}
	return steps
}

// peak is the highest nightly load.
func peak(steps []step) int {
	max := 0
	for _, s := range steps {
		if s.load > max {
			max = s.load
		}
	}
	return max
}

// loadAt is the load on the night starting at t.
func loadAt(steps []step, t time.Time) int {
	i := sort.Search(len(steps), func(i int) bool { return steps[i].at.After(t) })
	if i == 0 {
		return 0
	}
	return steps[i-1].load
}

// breakpoints merges the change points of several step functions that fall
// inside r, always including r.CheckIn.
func breakpoints(r model.DateRange, all ...[]step) []time.Time {
	seen := map[int64]struct{}{r.CheckIn.Unix(): {}}
	out := []time.Time{r.CheckIn}
	for _, steps := range all {
		for _, s := range steps {
			if s.at.Before(r.CheckIn) || !s.at.Before(r.CheckOut) {
				continue
			}
			if _, ok := seen[s.at.Unix()]; ok {
				continue
			}
			seen[s.at.Unix()] = struct{}{}
			out = append(out, s.at)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
