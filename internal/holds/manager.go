package holds

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/hostel-bed-holds/internal/clock"
	"github.com/iliyamo/hostel-bed-holds/internal/logger"
	"github.com/iliyamo/hostel-bed-holds/internal/model"
	"github.com/iliyamo/hostel-bed-holds/internal/repository"
)

// Free is a fresh snapshot of free beds for a date range.  Rooms holds the
// free count per room; Total is the property-wide free count, which also
// accounts for holds not pinned to a room.
type Free struct {
	Rooms map[string]int
	Total int
}

// AvailabilityChecker derives free beds straight from the booking
// repository, never from a read cache.  withHolds adds active-hold
// occupancy on top of booking occupancy.
type AvailabilityChecker interface {
	FreeBeds(ctx context.Context, dates model.DateRange, withHolds bool) (Free, error)
}

// Notifier receives hold lifecycle changes (confirmed, released, expired).
// Failures are logged and never roll back the transition.
type Notifier interface {
	HoldChanged(ctx context.Context, h model.Hold) error
}

// Invalidator is told whenever occupancy may have changed.
type Invalidator interface {
	Invalidate()
}

const (
	defaultTTL       = 10 * time.Minute
	defaultRetention = time.Hour
	notifyTimeout    = 5 * time.Second
)

var holdIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,64}$`)

// Manager is the hold state machine.  It owns no global state: the store,
// clock and TTL are injected at construction.
type Manager struct {
	store     *Store
	inventory *model.Inventory
	checker   AvailabilityChecker
	repo      repository.BookingRepository
	clock     clock.Clock
	logger    *zap.Logger

	ttl         time.Duration
	retention   time.Duration
	strict      bool
	notifier    Notifier
	invalidator Invalidator
	newID       func(now time.Time) string

	// reserve spans check-then-insert in Create and
	// reconcile-then-transition-then-write in Confirm.  It is distinct from
	// the store lock, so sweeps and reads never wait on repository I/O.
	// Booking imports and date blocks share it when wired by main.
	reserve sync.Locker
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides the default ten minute hold TTL.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithRetention sets how long terminal holds stay visible before purge.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.retention = d
		}
	}
}

// WithStrict toggles the availability check in Create.
func WithStrict(strict bool) Option {
	return func(m *Manager) { m.strict = strict }
}

// WithNotifier registers a lifecycle notifier.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithInvalidator registers a cache to invalidate after mutations.
func WithInvalidator(inv Invalidator) Option {
	return func(m *Manager) { m.invalidator = inv }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger.OrNop(l) }
}

// WithReservationLock replaces the manager's own reservation lock with l,
// so other writers of the booking repository can serialize with it.
func WithReservationLock(l sync.Locker) Option {
	return func(m *Manager) {
		if l != nil {
			m.reserve = l
		}
	}
}

// WithIDGenerator replaces the generator used when a request has no id.
func WithIDGenerator(fn func(now time.Time) string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewManager wires a Manager.  Strict mode is on by default.
func NewManager(store *Store, inv *model.Inventory, checker AvailabilityChecker, repo repository.BookingRepository, clk clock.Clock, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		inventory: inv,
		checker:   checker,
		repo:      repo,
		clock:     clk,
		logger:    zap.NewNop(),
		ttl:       defaultTTL,
		retention: defaultRetention,
		strict:    true,
		newID:     generateID,
		reserve:   &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL reports the configured hold lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// generateID produces timestamp-based ids such as hold_1741600000000_1a2b3c4d.
func generateID(now time.Time) string {
	return fmt.Sprintf("hold_%d_%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// CreateRequest is the input of Create.
type CreateRequest struct {
	ID         string
	RoomID     string
	CheckIn    time.Time
	CheckOut   time.Time
	Beds       int
	Occupants  model.Occupants
	TotalCents int64
}

// Create validates the request and inserts an ACTIVE hold expiring at
// now + TTL.  In strict mode the requested beds must fit in the free
// inventory (bookings plus active holds) for the range.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (model.Hold, error) {
	now := m.clock.Now()
	dates, err := m.validate(req, now)
	if err != nil {
		return model.Hold{}, err
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = m.newID(now)
	}
	hold := model.Hold{
		ID:         id,
		RoomID:     req.RoomID,
		Dates:      dates,
		Beds:       req.Beds,
		Occupants:  req.Occupants,
		TotalCents: req.TotalCents,
		Status:     model.HoldActive,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
	}

	m.reserve.Lock()
	if _, exists := m.store.Get(id); exists {
		m.reserve.Unlock()
		return model.Hold{}, fmt.Errorf("%w: %s", ErrDuplicateHold, id)
	}
	if m.strict {
		free, err := m.checker.FreeBeds(ctx, dates, true)
		if err != nil {
			m.reserve.Unlock()
			return model.Hold{}, err
		}
		// unpinned holds only show up in the property total
		available := free.Total
		if hold.RoomID != "" {
			available = min(free.Rooms[hold.RoomID], free.Total)
		}
		if hold.Beds > available {
			m.reserve.Unlock()
			return model.Hold{}, fmt.Errorf("%w: %d beds requested, %d free for %s", ErrInsufficientAvailability, hold.Beds, available, dates)
		}
	}
	err = m.store.Insert(hold)
	m.reserve.Unlock()
	if err != nil {
		return model.Hold{}, err
	}

	m.invalidate()
	m.logger.Info("hold created",
		zap.String("hold_id", hold.ID),
		zap.String("room_id", hold.RoomID),
		zap.Stringer("dates", hold.Dates),
		zap.Int("beds", hold.Beds),
		zap.Time("expires_at", hold.ExpiresAt),
	)
	return hold, nil
}

func (m *Manager) validate(req CreateRequest, now time.Time) (model.DateRange, error) {
	if id := strings.TrimSpace(req.ID); id != "" && !holdIDPattern.MatchString(id) {
		return model.DateRange{}, fmt.Errorf("%w: malformed hold id", ErrInvalidHoldData)
	}
	dates, err := model.NewDateRange(req.CheckIn, req.CheckOut)
	if err != nil {
		return model.DateRange{}, fmt.Errorf("%w: %v", ErrInvalidHoldData, err)
	}
	if dates.CheckIn.Before(model.Day(now)) {
		return model.DateRange{}, fmt.Errorf("%w: check-in is in the past", ErrInvalidHoldData)
	}
	if req.Beds < 1 {
		return model.DateRange{}, fmt.Errorf("%w: bedsCount must be at least 1", ErrInvalidHoldData)
	}
	if req.Occupants.Men < 0 || req.Occupants.Women < 0 {
		return model.DateRange{}, fmt.Errorf("%w: occupant counts must not be negative", ErrInvalidHoldData)
	}
	if n := req.Occupants.Total(); n > 0 && n != req.Beds {
		return model.DateRange{}, fmt.Errorf("%w: occupants (%d) do not match bedsCount (%d)", ErrInvalidHoldData, n, req.Beds)
	}
	if req.TotalCents < 0 {
		return model.DateRange{}, fmt.Errorf("%w: total must not be negative", ErrInvalidHoldData)
	}
	capacity := m.inventory.TotalCapacity()
	if req.RoomID != "" {
		room, ok := m.inventory.Room(req.RoomID)
		if !ok {
			return model.DateRange{}, fmt.Errorf("%w: unknown room %s", ErrInvalidHoldData, req.RoomID)
		}
		capacity = room.Capacity
	}
	if req.Beds > capacity {
		return model.DateRange{}, fmt.Errorf("%w: %d beds exceed capacity %d", ErrInvalidHoldData, req.Beds, capacity)
	}
	return dates, nil
}

// Allocation is the share of a confirmed hold written to one room.
type Allocation struct {
	RoomID    string `json:"roomId"`
	Beds      int    `json:"beds"`
	BookingID string `json:"bookingId"`
}

// ConfirmResult describes a confirmation.  BookingRecorded is false when the
// repository write failed; the hold is CONFIRMED regardless and a higher
// layer must reconcile (booking ids are deterministic, so retries are safe).
type ConfirmResult struct {
	Hold            model.Hold
	Allocations     []Allocation
	BookingRecorded bool
}

// Confirm transitions an ACTIVE hold to CONFIRMED after reconciling it
// against the booking repository, then writes the booking(s).  The
// notification is sent after the reservation lock is released.
func (m *Manager) Confirm(ctx context.Context, id, paymentStatus string) (ConfirmResult, error) {
	res, err := m.confirmLocked(ctx, id, paymentStatus)
	if err != nil {
		return ConfirmResult{}, err
	}

	m.invalidate()
	m.logger.Info("hold confirmed",
		zap.String("hold_id", id),
		zap.String("payment_status", paymentStatus),
		zap.Int("allocations", len(res.Allocations)),
		zap.Bool("booking_recorded", res.BookingRecorded),
	)
	m.notify(ctx, res.Hold)
	return res, nil
}

func (m *Manager) confirmLocked(ctx context.Context, id, paymentStatus string) (ConfirmResult, error) {
	m.reserve.Lock()
	defer m.reserve.Unlock()

	h, ok := m.store.Get(id)
	if !ok || h.Status != model.HoldActive {
		return ConfirmResult{}, fmt.Errorf("%w: %s", ErrHoldNotFound, id)
	}

	free, err := m.checker.FreeBeds(ctx, h.Dates, false)
	if err != nil {
		return ConfirmResult{}, err
	}
	allocs, err := allocate(h, free)
	if err != nil {
		return ConfirmResult{}, err
	}

	now := m.clock.Now()
	confirmed, err := m.store.Transition(id, model.HoldConfirmed, now, func(hp *model.Hold) {
		hp.PaymentStatus = paymentStatus
	})
	if err != nil {
		// the sweep or a release won the race
		return ConfirmResult{}, fmt.Errorf("%w: %s is %s", ErrHoldNotFound, id, confirmed.Status)
	}

	res := ConfirmResult{Hold: confirmed, Allocations: allocs, BookingRecorded: true}
	for i, b := range bookingsFor(confirmed, allocs) {
		if err := m.repo.Create(ctx, &b); err != nil && !errors.Is(err, repository.ErrConflict) {
			res.BookingRecorded = false
			m.logger.Error("booking write failed after confirm; hold stays confirmed",
				zap.String("hold_id", id),
				zap.String("booking_id", b.ID),
				zap.Error(err),
			)
			continue
		}
		res.Allocations[i].BookingID = b.ID
	}
	return res, nil
}

// allocate places the hold's beds.  A pinned hold must fit in its room; an
// unpinned hold is spread greedily over the rooms with the most free beds.
func allocate(h model.Hold, free Free) ([]Allocation, error) {
	if h.RoomID != "" {
		if free.Rooms[h.RoomID] < h.Beds {
			return nil, fmt.Errorf("%w: room %s has %d free beds, hold needs %d",
				ErrInsufficientAvailability, h.RoomID, free.Rooms[h.RoomID], h.Beds)
		}
		return []Allocation{{RoomID: h.RoomID, Beds: h.Beds}}, nil
	}
	type slot struct {
		room string
		free int
	}
	slots := make([]slot, 0, len(free.Rooms))
	for room, n := range free.Rooms {
		if n > 0 {
			slots = append(slots, slot{room, n})
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].free != slots[j].free {
			return slots[i].free > slots[j].free
		}
		return slots[i].room < slots[j].room
	})
	remaining := h.Beds
	var out []Allocation
	for _, s := range slots {
		if remaining == 0 {
			break
		}
		n := s.free
		if n > remaining {
			n = remaining
		}
		out = append(out, Allocation{RoomID: s.room, Beds: n})
		remaining -= n
	}
	if remaining > 0 {
		return nil, fmt.Errorf("%w: %d beds short for %s", ErrInsufficientAvailability, remaining, h.Dates)
	}
	return out, nil
}

// bookingsFor builds one booking per allocation.  Ids derive from the hold
// so a retried write collides instead of duplicating.  The total is split in
// proportion to beds; the rounding remainder goes to the first booking.
func bookingsFor(h model.Hold, allocs []Allocation) []model.Booking {
	out := make([]model.Booking, len(allocs))
	var charged int64
	for i, a := range allocs {
		share := h.TotalCents * int64(a.Beds) / int64(h.Beds)
		charged += share
		out[i] = model.Booking{
			ID:            h.ID + "-" + a.RoomID,
			RoomID:        a.RoomID,
			Dates:         h.Dates,
			Beds:          a.Beds,
			Status:        model.BookingConfirmed,
			PaymentStatus: h.PaymentStatus,
			Source:        model.PlatformDirect,
			HoldID:        h.ID,
			TotalCents:    share,
		}
	}
	if len(out) > 0 {
		out[0].TotalCents += h.TotalCents - charged
	}
	return out
}

// ReleaseResult reports whether Release changed anything.
type ReleaseResult struct {
	Hold    model.Hold
	Changed bool
}

// Release moves an ACTIVE hold to RELEASED.  Releasing a hold that is
// already RELEASED or EXPIRED succeeds without a state change; a CONFIRMED
// hold cannot take a second terminal transition and yields ErrHoldNotFound.
func (m *Manager) Release(ctx context.Context, id string) (ReleaseResult, error) {
	h, err := m.store.Transition(id, model.HoldReleased, m.clock.Now(), nil)
	switch {
	case err == nil:
	case errors.Is(err, errNotActive):
		switch h.Status {
		case model.HoldReleased, model.HoldExpired:
			return ReleaseResult{Hold: h}, nil
		case model.HoldConfirmed, model.HoldActive:
			return ReleaseResult{}, fmt.Errorf("%w: %s is %s", ErrHoldNotFound, id, h.Status)
		}
		return ReleaseResult{}, fmt.Errorf("%w: %s", ErrHoldNotFound, id)
	default:
		return ReleaseResult{}, fmt.Errorf("%w: %s", err, id)
	}

	m.invalidate()
	m.logger.Info("hold released", zap.String("hold_id", id), zap.Int("beds", h.Beds))
	m.notify(ctx, h)
	return ReleaseResult{Hold: h, Changed: true}, nil
}

// SweepExpired expires every ACTIVE hold whose ExpiresAt <= now and purges
// terminal holds past the retention window.  It returns the number expired.
func (m *Manager) SweepExpired(ctx context.Context) int {
	now := m.clock.Now()
	expired := m.store.ExpireDue(now)
	purged := m.store.Purge(now.Add(-m.retention))
	if len(expired) > 0 {
		m.invalidate()
	}
	for _, h := range expired {
		m.notify(ctx, h)
	}
	if len(expired) > 0 || purged > 0 {
		m.logger.Info("hold sweep",
			zap.Int("expired", len(expired)),
			zap.Int("purged", purged),
		)
	}
	return len(expired)
}

// Get returns a hold in any state.
func (m *Manager) Get(id string) (model.Hold, bool) { return m.store.Get(id) }

// ListActive returns the active holds ordered by creation time.
func (m *Manager) ListActive() []model.Hold { return m.store.Active() }

// Stats returns active-hold counts for operational visibility.
func (m *Manager) Stats() Stats { return m.store.Stats() }

func (m *Manager) invalidate() {
	if m.invalidator != nil {
		m.invalidator.Invalidate()
	}
}

func (m *Manager) notify(ctx context.Context, h model.Hold) {
	if m.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := m.notifier.HoldChanged(nctx, h); err != nil {
		m.logger.Warn("hold notification failed",
			zap.String("hold_id", h.ID),
			zap.Stringer("status", h.Status),
			zap.Error(err),
		)
	}
}
