// Package blocking takes rooms out of service for administrative reasons.
// Blocks are stored as BLOCKED bookings in the booking repository.
package blocking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

var (
	// ErrInvalidRange covers bad dates, out-of-window ranges, unknown rooms
	// and unknown block types.
	ErrInvalidRange = errors.New("invalid block range")
	// ErrConflict is returned when real bookings overlap the block.
	ErrConflict = errors.New("block conflicts with existing bookings")
	// ErrNotFound is returned when no block has the given id.
	ErrNotFound = errors.New("block not found")
)

// BlockType says why a room is out of service.
type BlockType string

const (
	Maintenance BlockType = "maintenance"
	OwnerHold   BlockType = "owner_hold"
	Renovation  BlockType = "renovation"
	Other       BlockType = "other"
)

// ParseBlockType validates t; empty means Other.
func ParseBlockType(t string) (BlockType, error) {
	switch bt := BlockType(strings.ToLower(strings.TrimSpace(t))); bt {
	case "":
		return Other, nil
	case Maintenance, OwnerHold, Renovation, Other:
		return bt, nil
	}
	return "", fmt.Errorf("%w: unknown block type %q", ErrInvalidRange, t)
}

// Block is the administrative view of a BLOCKED booking.
type Block struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	CheckIn   string    `json:"startDate"`
	CheckOut  string    `json:"endDate"`
	Type      BlockType `json:"blockType"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type blockNote struct {
	BlockType BlockType `json:"blockType"`
	Reason    string    `json:"reason,omitempty"`
}

// Invalidator is told when blocks change occupancy.
type Invalidator interface {
	Invalidate()
}

// Blocker creates and removes blocks.
type Blocker struct {
	repo        repository.BookingRepository
	inventory   *model.Inventory
	clock       clock.Clock
	invalidator Invalidator
	logger      *zap.Logger
	reserve     sync.Locker
}

// Option configures a Blocker.
type Option func(*Blocker)

// WithReservationLock makes BlockDates check and write under l, shared with
// hold confirmation and booking imports.
func WithReservationLock(l sync.Locker) Option {
	return func(b *Blocker) {
		if l != nil {
			b.reserve = l
		}
	}
}

// NewBlocker wires a Blocker; inv, inval and l may be nil.
func NewBlocker(repo repository.BookingRepository, inv *model.Inventory, clk clock.Clock, inval Invalidator, l *zap.Logger, opts ...Option) *Blocker {
	b := &Blocker{repo: repo, inventory: inv, clock: clk, invalidator: inval, logger: logger.OrNop(l), reserve: &sync.Mutex{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BlockDates blocks roomID for dates.  Ranges starting more than a year ago
// or ending more than two years ahead are rejected, as is any overlap with
// a non-cancelled, non-block booking.
func (b *Blocker) BlockDates(ctx context.Context, roomID string, dates model.DateRange, reason string, blockType string) (Block, error) {
	bt, err := ParseBlockType(blockType)
	if err != nil {
		return Block{}, err
	}
	if err := b.validate(roomID, dates); err != nil {
		return Block{}, err
	}

	b.reserve.Lock()
	defer b.reserve.Unlock()
	existing, err := b.repo.FindOverlapping(ctx, roomID, dates.CheckIn, dates.CheckOut)
	if err != nil {
		return Block{}, err
	}
	var clash []string
	for _, e := range existing {
		if e.Status == model.BookingCancelled || e.IsBlock() || !e.Dates.Overlaps(dates) {
			continue
		}
		clash = append(clash, e.ID)
	}
	if len(clash) > 0 {
		return Block{}, fmt.Errorf("%w: %s", ErrConflict, strings.Join(clash, ", "))
	}

	note, err := json.Marshal(blockNote{BlockType: bt, Reason: strings.TrimSpace(reason)})
	if err != nil {
		return Block{}, err
	}
	booking := model.Booking{
		ID:            "block_" + uuid.NewString(),
		RoomID:        roomID,
		Dates:         dates,
		Beds:          0,
		Status:        model.BookingBlocked,
		PaymentStatus: "n/a",
		Source:        model.PlatformBlocked,
		Notes:         string(note),
		CreatedAt:     b.clock.Now(),
	}
	if err := b.repo.Create(ctx, &booking); err != nil {
		return Block{}, err
	}
	b.invalidate()
	b.logger.Info("dates blocked",
		zap.String("block_id", booking.ID),
		zap.String("room_id", roomID),
		zap.Stringer("dates", dates),
		zap.String("block_type", string(bt)),
	)
	return toBlock(booking), nil
}

func (b *Blocker) validate(roomID string, dates model.DateRange) error {
	if strings.TrimSpace(roomID) == "" {
		return fmt.Errorf("%w: roomId is required", ErrInvalidRange)
	}
	if b.inventory != nil {
		if _, ok := b.inventory.Room(roomID); !ok {
			return fmt.Errorf("%w: unknown room %s", ErrInvalidRange, roomID)
		}
	}
	if !dates.CheckIn.Before(dates.CheckOut) {
		return fmt.Errorf("%w: start must be before end", ErrInvalidRange)
	}
	today := model.Day(b.clock.Now())
	if dates.CheckIn.Before(today.AddDate(-1, 0, 0)) {
		return fmt.Errorf("%w: start is more than a year in the past", ErrInvalidRange)
	}
	if dates.CheckOut.After(today.AddDate(2, 0, 0)) {
		return fmt.Errorf("%w: end is more than two years ahead", ErrInvalidRange)
	}
	return nil
}

// UnblockDates removes the block with id.  Ids of ordinary bookings are
// reported as not found.
func (b *Blocker) UnblockDates(ctx context.Context, id string) (Block, error) {
	booking, err := b.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return Block{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Block{}, err
	}
	if !booking.IsBlock() {
		return Block{}, fmt.Errorf("%w: %s is not a block", ErrNotFound, id)
	}
	if err := b.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Block{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Block{}, err
	}
	b.invalidate()
	b.logger.Info("block removed", zap.String("block_id", id), zap.String("room_id", booking.RoomID))
	return toBlock(booking), nil
}

// UnblockDateRange removes every block of roomID lying entirely inside
// dates and returns how many were removed.
func (b *Blocker) UnblockDateRange(ctx context.Context, roomID string, dates model.DateRange) (int, error) {
	if err := b.validateRange(roomID, dates); err != nil {
		return 0, err
	}
	blocks, err := b.blocks(ctx, roomID, dates)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, blk := range blocks {
		if !dates.Contains(blk.Dates) {
			continue
		}
		if err := b.repo.Delete(ctx, blk.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			if removed > 0 {
				b.invalidate()
			}
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		b.invalidate()
		b.logger.Info("blocks removed", zap.String("room_id", roomID), zap.Stringer("dates", dates), zap.Int("count", removed))
	}
	return removed, nil
}

// ListBlocks returns the blocks overlapping dates; roomID "" lists all rooms.
func (b *Blocker) ListBlocks(ctx context.Context, roomID string, dates model.DateRange) ([]Block, error) {
	if !dates.CheckIn.Before(dates.CheckOut) {
		return nil, fmt.Errorf("%w: start must be before end", ErrInvalidRange)
	}
	bookings, err := b.blocks(ctx, roomID, dates)
	if err != nil {
		return nil, err
	}
	out := make([]Block, 0, len(bookings))
	for _, bk := range bookings {
		out = append(out, toBlock(bk))
	}
	return out, nil
}

func (b *Blocker) validateRange(roomID string, dates model.DateRange) error {
	if strings.TrimSpace(roomID) == "" {
		return fmt.Errorf("%w: roomId is required", ErrInvalidRange)
	}
	if !dates.CheckIn.Before(dates.CheckOut) {
		return fmt.Errorf("%w: start must be before end", ErrInvalidRange)
	}
	return nil
}

func (b *Blocker) blocks(ctx context.Context, roomID string, dates model.DateRange) ([]model.Booking, error) {
	found, err := b.repo.FindOverlapping(ctx, roomID, dates.CheckIn, dates.CheckOut)
	if err != nil {
		return nil, err
	}
	out := found[:0]
	for _, bk := range found {
		if bk.IsBlock() {
			out = append(out, bk)
		}
	}
	return out, nil
}

func (b *Blocker) invalidate() {
	if b.invalidator != nil {
		b.invalidator.Invalidate()
	}
}

func toBlock(bk model.Booking) Block {
	blk := Block{
		ID:        bk.ID,
		RoomID:    bk.RoomID,
		CheckIn:   bk.Dates.CheckIn.Format(model.DateLayout),
		CheckOut:  bk.Dates.CheckOut.Format(model.DateLayout),
		Type:      Other,
		CreatedAt: bk.CreatedAt,
	}
	var note blockNote
	if err := json.Unmarshal([]byte(bk.Notes), &note); err == nil {
		if note.BlockType != "" {
			blk.Type = note.BlockType
		}
		blk.Reason = note.Reason
	} else {
		blk.Reason = bk.Notes
	}
	return blk
}
