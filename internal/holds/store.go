package holds

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/hostel-bed-holds/internal/model"
)

// Store is the in-memory registry of holds keyed by id.  Every mutation is
// serialised by a single mutex; no method performs I/O while holding it.
type Store struct {
	mu    sync.RWMutex
	holds map[string]*model.Hold
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{holds: make(map[string]*model.Hold)}
}

// Insert adds a new hold.  The id must not be in use, even by a terminal
// hold still inside its retention window.
func (s *Store) Insert(h model.Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.holds[h.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHold, h.ID)
	}
	cp := h
	s.holds[h.ID] = &cp
	return nil
}

// Get returns a copy of the hold.
func (s *Store) Get(id string) (model.Hold, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.holds[id]
	if !ok {
		return model.Hold{}, false
	}
	return *h, true
}

// Transition moves an ACTIVE hold to a terminal status, stamping FinishedAt.
// It is a compare-and-set on ACTIVE: when the hold has already left ACTIVE
// the current copy is returned together with errNotActive.  mutate, when
// non-nil, runs under the lock before the status change.
func (s *Store) Transition(id string, to model.HoldStatus, at time.Time, mutate func(*model.Hold)) (model.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[id]
	if !ok {
		return model.Hold{}, ErrHoldNotFound
	}
	if !model.CanTransition(h.Status, to) {
		return *h, errNotActive
	}
	if mutate != nil {
		mutate(h)
	}
	h.Status = to
	h.FinishedAt = at
	return *h, nil
}

// ExpireDue transitions every hold that is still ACTIVE and whose ExpiresAt
// is at or before now to EXPIRED, and returns the expired copies.
func (s *Store) ExpireDue(now time.Time) []model.Hold {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []model.Hold
	for _, h := range s.holds {
		if h.Status != model.HoldActive || h.ExpiresAt.After(now) {
			continue
		}
		h.Status = model.HoldExpired
		h.FinishedAt = now
		expired = append(expired, *h)
	}
	sortHolds(expired)
	return expired
}

// Purge removes terminal holds that finished before cutoff.
func (s *Store) Purge(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, h := range s.holds {
		if h.Status.Terminal() && h.FinishedAt.Before(cutoff) {
			delete(s.holds, id)
			n++
		}
	}
	return n
}

// Active returns the ACTIVE holds ordered by creation time.
func (s *Store) Active() []model.Hold {
	return s.collect(func(h *model.Hold) bool { return h.Status == model.HoldActive })
}

// ActiveOverlapping returns the ACTIVE holds whose nights overlap r.
func (s *Store) ActiveOverlapping(r model.DateRange) []model.Hold {
	return s.collect(func(h *model.Hold) bool {
		return h.Status == model.HoldActive && h.Dates.Overlaps(r)
	})
}

// Stats summarises the store for operational visibility.
type Stats struct {
	ActiveHolds int `json:"activeHolds"`
	HeldBeds    int `json:"heldBeds"`
	Tracked     int `json:"tracked"`
}

// Stats counts active holds and the beds they claim.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Tracked: len(s.holds)}
	for _, h := range s.holds {
		if h.Status == model.HoldActive {
			st.ActiveHolds++
			st.HeldBeds += h.Beds
		}
	}
	return st
}

func (s *Store) collect(keep func(*model.Hold) bool) []model.Hold {
	s.mu.RLock()
	out := make([]model.Hold, 0, len(s.holds))
	for _, h := range s.holds {
		if keep(h) {
			out = append(out, *h)
		}
	}
	s.mu.RUnlock()
	sortHolds(out)
	return out
}

func sortHolds(hs []model.Hold) {
	sort.Slice(hs, func(i, j int) bool {
		if !hs[i].CreatedAt.Equal(hs[j].CreatedAt) {
			return hs[i].CreatedAt.Before(hs[j].CreatedAt)
		}
		return hs[i].ID < hs[j].ID
	})
}
