// Package conflict decides precedence between bookings imported from
// external channels and existing bookings that overlap them.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/hostel-bed-holds/internal/logger"
	"github.com/iliyamo/hostel-bed-holds/internal/model"
	"github.com/iliyamo/hostel-bed-holds/internal/repository"
)

// ErrInvalidBooking is returned when an import is missing required fields.
var ErrInvalidBooking = errors.New("invalid external booking")

// Result is the outcome of ResolveConflicts.
type Result struct {
	Proceed           bool     `json:"proceed"`
	Action            Action   `json:"action"`
	ConflictsResolved int      `json:"conflictsResolved"`
	ModifiedBookings  []string `json:"modifiedBookings"`
	Reason            string   `json:"reason"`
}

// Invalidator is told when bookings were created or cancelled.
type Invalidator interface {
	Invalidate()
}

// Resolver applies one strategy against the booking repository.
type Resolver struct {
	repo        repository.BookingRepository
	strategy    Strategy
	priorities  PriorityTable
	inventory   *model.Inventory
	invalidator Invalidator
	logger      *zap.Logger
	reserve     sync.Locker
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPriorities replaces the default priority table.
func WithPriorities(t PriorityTable) Option {
	return func(r *Resolver) { r.priorities = t }
}

// WithInventory makes Import reject rooms that do not exist.
func WithInventory(inv *model.Inventory) Option {
	return func(r *Resolver) { r.inventory = inv }
}

// WithInvalidator registers a cache to invalidate after writes.
func WithInvalidator(inv Invalidator) Option {
	return func(r *Resolver) { r.invalidator = inv }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = logger.OrNop(l) }
}

// WithReservationLock makes Import run under l, the lock hold confirmation
// and date blocking take before writing bookings.
func WithReservationLock(l sync.Locker) Option {
	return func(r *Resolver) {
		if l != nil {
			r.reserve = l
		}
	}
}

// NewResolver returns a resolver using strategy.
func NewResolver(repo repository.BookingRepository, strategy Strategy, opts ...Option) *Resolver {
	r := &Resolver{
		repo:       repo,
		strategy:   strategy,
		priorities: DefaultPriorities(),
		logger:     zap.NewNop(),
		reserve:    &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Strategy reports the configured strategy.
func (r *Resolver) Strategy() Strategy { return r.strategy }

// FindConflicts returns every non-cancelled booking overlapping dates in
// roomID, except excludeID, ordered by creation time then id.
func (r *Resolver) FindConflicts(ctx context.Context, roomID string, dates model.DateRange, excludeID string) ([]model.Booking, error) {
	found, err := r.repo.FindOverlapping(ctx, roomID, dates.CheckIn, dates.CheckOut)
	if err != nil {
		return nil, err
	}
	out := make([]model.Booking, 0, len(found))
	for _, b := range found {
		if b.Status == model.BookingCancelled || b.ID == excludeID || !b.Dates.Overlaps(dates) {
			continue
		}
		out = append(out, b)
	}
	sortBookings(out)
	return out, nil
}

// FindPotentialDuplicates returns non-cancelled bookings in roomID with
// exactly the same dates.  No action is taken on them.
func (r *Resolver) FindPotentialDuplicates(ctx context.Context, roomID string, dates model.DateRange) ([]model.Booking, error) {
	found, err := r.FindConflicts(ctx, roomID, dates, "")
	if err != nil {
		return nil, err
	}
	out := found[:0]
	for _, b := range found {
		if b.Dates.Equal(dates) {
			out = append(out, b)
		}
	}
	return out, nil
}

// ResolveConflicts decides whether incoming, arriving from platform, may
// be admitted over conflicts, and cancels the losers.  The decision is made
// on the whole set before anything is written; if a cancellation fails the
// ones already applied are restored and the error is returned.
func (r *Resolver) ResolveConflicts(ctx context.Context, conflicts []model.Booking, incoming model.Booking, platform model.Platform) (Result, error) {
	res, _, err := r.resolve(ctx, conflicts, incoming, platform)
	return res, err
}

// resolve is ResolveConflicts that also returns the cancelled bookings as
// they were before cancellation, so a caller can undo them.
func (r *Resolver) resolve(ctx context.Context, conflicts []model.Booking, incoming model.Booking, platform model.Platform) (Result, []model.Booking, error) {
	ordered := append([]model.Booking(nil), conflicts...)
	sortBookings(ordered)

	res, losers := r.decide(ordered, model.NormalizePlatform(string(platform)))
	if len(losers) == 0 {
		res.ModifiedBookings = []string{}
		return res, nil, nil
	}

	modified := make([]string, 0, len(losers))
	for _, b := range losers {
		if err := r.repo.UpdateStatus(ctx, b.ID, model.BookingCancelled); err != nil {
			r.compensate(ctx, losers[:len(modified)])
			return Result{}, nil, fmt.Errorf("cancel %s: %w", b.ID, err)
		}
		modified = append(modified, b.ID)
	}
	if r.invalidator != nil {
		r.invalidator.Invalidate()
	}
	res.ConflictsResolved = len(modified)
	res.ModifiedBookings = modified
	r.logger.Info("conflicting bookings cancelled",
		zap.String("strategy", string(r.strategy)),
		zap.String("platform", string(platform)),
		zap.String("incoming_ref", incoming.ExternalRef),
		zap.Strings("cancelled", modified),
	)
	return res, losers, nil
}

// decide is the pure part of ResolveConflicts.
func (r *Resolver) decide(conflicts []model.Booking, platform model.Platform) (Result, []model.Booking) {
	if len(conflicts) == 0 {
		return Result{Proceed: true, Action: KeepExisting, Reason: "no conflicts"}, nil
	}
	for _, c := range conflicts {
		if c.IsBlock() {
			return skip("dates blocked by %s", c.ID), nil
		}
	}

	switch r.strategy {
	case PlatformPriority, "":
		incoming := r.priorities.Rank(platform)
		for _, c := range conflicts {
			existing := r.priorities.Rank(c.Source)
			if existing > incoming {
				return skip("%s booking %s outranks %s (%d > %d)", c.Source, c.ID, platform, existing, incoming), nil
			}
			if existing == incoming {
				if c.Source == model.PlatformICal {
					return skip("equal priority with ical booking %s; rejected to avoid an import loop", c.ID), nil
				}
				return skip("equal priority with %s booking %s", c.Source, c.ID), nil
			}
		}
		return replace("%s outranks %d conflicting booking(s)", platform, len(conflicts)), conflicts

	case NewestWins:
		return replace("newest booking wins over %d conflict(s)", len(conflicts)), conflicts

	case ICalPriority:
		for _, c := range conflicts {
			if c.Source == model.PlatformICal || c.Source == model.PlatformDirect {
				return skip("%s booking %s is protected", c.Source, c.ID), nil
			}
		}
		return replace("cancelled %d non-ical, non-direct conflict(s)", len(conflicts)), conflicts

	case OldestWins:
		return skip("oldest booking wins; %d conflict(s) kept", len(conflicts)), nil

	case Manual:
		return skip("manual strategy: %d conflict(s) need review", len(conflicts)), nil
	}
	return skip("unknown strategy %q", r.strategy), nil
}

func skip(format string, args ...any) Result {
	return Result{Proceed: false, Action: Skip, Reason: fmt.Sprintf(format, args...)}
}

func replace(format string, args ...any) Result {
	return Result{Proceed: true, Action: Replace, Reason: fmt.Sprintf(format, args...)}
}

// compensate restores cancelled bookings to their previous status.
func (r *Resolver) compensate(ctx context.Context, done []model.Booking) {
	for i := len(done) - 1; i >= 0; i-- {
		b := done[i]
		if err := r.repo.UpdateStatus(ctx, b.ID, b.Status); err != nil {
			r.logger.Error("failed to restore booking after aborted resolution",
				zap.String("booking_id", b.ID),
				zap.String("status", string(b.Status)),
				zap.Error(err),
			)
		}
	}
}

func sortBookings(bs []model.Booking) {
	sort.SliceStable(bs, func(i, j int) bool {
		if !bs[i].CreatedAt.Equal(bs[j].CreatedAt) {
			return bs[i].CreatedAt.Before(bs[j].CreatedAt)
		}
		return bs[i].ID < bs[j].ID
	})
}

// ExternalBooking is a reservation received from an OTA channel.
type ExternalBooking struct {
	Platform      model.Platform `json:"platform"`
	ExternalRef   string         `json:"externalRef"`
	RoomID        string         `json:"roomId"`
	CheckIn       string         `json:"checkIn"`
	CheckOut      string         `json:"checkOut"`
	Beds          int            `json:"beds"`
	TotalCents    int64          `json:"totalCents"`
	PaymentStatus string         `json:"paymentStatus"`
	Notes         string         `json:"notes"`
}

// ImportResult is the outcome of Import.
type ImportResult struct {
	Result
	BookingID string `json:"bookingId,omitempty"`
	Duplicate bool   `json:"duplicate"`
}

// Import runs the full intake of an external booking: reject a repeat of
// the same reservation, find conflicts, resolve them, and create the
// booking when admitted.  If the booking cannot be written, bookings
// cancelled on its behalf are restored.
func (r *Resolver) Import(ctx context.Context, ext ExternalBooking) (ImportResult, error) {
	b, err := r.toBooking(ext)
	if err != nil {
		return ImportResult{}, err
	}

	r.reserve.Lock()
	defer r.reserve.Unlock()

	switch existing, err := r.repo.GetByID(ctx, b.ID); {
	case err == nil:
		return duplicate(existing.ID), nil
	case !errors.Is(err, repository.ErrNotFound):
		return ImportResult{}, err
	}
	dups, err := r.FindPotentialDuplicates(ctx, b.RoomID, b.Dates)
	if err != nil {
		return ImportResult{}, err
	}
	for _, d := range dups {
		if d.ExternalRef == b.ExternalRef && d.Source == b.Source {
			return duplicate(d.ID), nil
		}
	}

	conflicts, err := r.FindConflicts(ctx, b.RoomID, b.Dates, b.ID)
	if err != nil {
		return ImportResult{}, err
	}
	res, cancelled, err := r.resolve(ctx, conflicts, b, b.Source)
	if err != nil {
		return ImportResult{}, err
	}
	out := ImportResult{Result: res}
	if !res.Proceed {
		r.logger.Info("external booking rejected",
			zap.String("platform", string(b.Source)),
			zap.String("external_ref", b.ExternalRef),
			zap.String("reason", res.Reason),
		)
		return out, nil
	}

	if err := r.repo.Create(ctx, &b); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			out.Duplicate = true
			out.BookingID = b.ID
			return out, nil
		}
		if len(cancelled) > 0 {
			r.compensate(ctx, cancelled)
			if r.invalidator != nil {
				r.invalidator.Invalidate()
			}
			r.logger.Warn("import aborted; cancelled bookings restored",
				zap.String("booking_id", b.ID),
				zap.Int("restored", len(cancelled)),
				zap.Error(err),
			)
		}
		return ImportResult{}, fmt.Errorf("create %s: %w", b.ID, err)
	}
	if r.invalidator != nil {
		r.invalidator.Invalidate()
	}
	out.BookingID = b.ID
	r.logger.Info("external booking imported",
		zap.String("booking_id", b.ID),
		zap.String("platform", string(b.Source)),
		zap.String("room_id", b.RoomID),
		zap.Stringer("dates", b.Dates),
		zap.String("action", string(res.Action)),
	)
	return out, nil
}

func duplicate(id string) ImportResult {
	return ImportResult{
		Result:    Result{Proceed: false, Action: Skip, ModifiedBookings: []string{}, Reason: "already imported as " + id},
		BookingID: id,
		Duplicate: true,
	}
}

func (r *Resolver) toBooking(ext ExternalBooking) (model.Booking, error) {
	platform := model.NormalizePlatform(string(ext.Platform))
	ref := strings.TrimSpace(ext.ExternalRef)
	switch {
	case platform == "":
		return model.Booking{}, fmt.Errorf("%w: platform is required", ErrInvalidBooking)
	case platform == model.PlatformBlocked:
		return model.Booking{}, fmt.Errorf("%w: blocks cannot be imported", ErrInvalidBooking)
	case ref == "":
		return model.Booking{}, fmt.Errorf("%w: externalRef is required", ErrInvalidBooking)
	case strings.TrimSpace(ext.RoomID) == "":
		return model.Booking{}, fmt.Errorf("%w: roomId is required", ErrInvalidBooking)
	case ext.Beds < 1:
		return model.Booking{}, fmt.Errorf("%w: beds must be at least 1", ErrInvalidBooking)
	}
	if r.inventory != nil {
		room, ok := r.inventory.Room(ext.RoomID)
		if !ok {
			return model.Booking{}, fmt.Errorf("%w: unknown room %s", ErrInvalidBooking, ext.RoomID)
		}
		if ext.Beds > room.Capacity {
			return model.Booking{}, fmt.Errorf("%w: %d beds exceed capacity %d", ErrInvalidBooking, ext.Beds, room.Capacity)
		}
	}
	dates, err := model.ParseDateRange(ext.CheckIn, ext.CheckOut)
	if err != nil {
		return model.Booking{}, fmt.Errorf("%w: %v", ErrInvalidBooking, err)
	}
	return model.Booking{
		ID:            fmt.Sprintf("%s-%s", platform, ref),
		RoomID:        ext.RoomID,
		Dates:         dates,
		Beds:          ext.Beds,
		Status:        model.BookingConfirmed,
		PaymentStatus: ext.PaymentStatus,
		Source:        platform,
		ExternalRef:   ref,
		TotalCents:    ext.TotalCents,
		Notes:         ext.Notes,
	}, nil
}
