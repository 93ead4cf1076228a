package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RoomCategory describes which guests a room accepts.  The set is closed:
// mixed, female and flexible.  A flexible room may convert its guest-type
// designation (for example to female-only) under configured conditions;
// that conversion is room metadata and never changes capacity.
type RoomCategory string

const (
	RoomMixed    RoomCategory = "mixed"
	RoomFemale   RoomCategory = "female"
	RoomFlexible RoomCategory = "flexible"
)

// ParseRoomCategory validates a category label.
func ParseRoomCategory(s string) (RoomCategory, error) {
	switch c := RoomCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case RoomMixed, RoomFemale, RoomFlexible:
		return c, nil
	}
	return "", fmt.Errorf("unknown room category %q", s)
}

// Room is the static description of a dormitory.  Beds are not named
// entities: a bed is an integer in [1, Capacity] scoped to the room.
//
// Fields:
//  ID          – stable room identifier (e.g. "mixed-7").
//  Capacity    – number of beds; fixed for the lifetime of the process.
//  Category    – guest-type designation.
//  AutoConvert – for flexible rooms, the category the room converts to
//                once the conversion condition is met (empty otherwise).
type Room struct {
	ID          string
	Capacity    int
	Category    RoomCategory
	AutoConvert RoomCategory
}

// Inventory is the immutable set of rooms of the property.  It is built
// once at start-up and shared read-only by every component.
type Inventory struct {
	rooms []Room
	byID  map[string]Room
	total int
}

// NewInventory validates the room list and returns an Inventory.  Room ids
// must be unique and capacities positive.
func NewInventory(rooms []Room) (*Inventory, error) {
	if len(rooms) == 0 {
		return nil, fmt.Errorf("inventory needs at least one room")
	}
	inv := &Inventory{byID: make(map[string]Room, len(rooms))}
	for _, r := range rooms {
		if strings.TrimSpace(r.ID) == "" {
			return nil, fmt.Errorf("room id is required")
		}
		if r.Capacity <= 0 {
			return nil, fmt.Errorf("room %s: capacity must be positive", r.ID)
		}
		if _, err := ParseRoomCategory(string(r.Category)); err != nil {
			return nil, fmt.Errorf("room %s: %w", r.ID, err)
		}
		if _, dup := inv.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate room id %s", r.ID)
		}
		if r.Category == RoomFlexible && r.AutoConvert == "" {
			r.AutoConvert = RoomFemale
		}
		inv.byID[r.ID] = r
		inv.rooms = append(inv.rooms, r)
		inv.total += r.Capacity
	}
	sort.Slice(inv.rooms, func(i, j int) bool { return inv.rooms[i].ID < inv.rooms[j].ID })
	return inv, nil
}

// ParseInventory reads the "id:capacity:category,..." format used by the
// INVENTORY_ROOMS environment variable.
func ParseInventory(spec string) (*Inventory, error) {
	var rooms []Room
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid room entry %q (want id:capacity:category)", part)
		}
		capacity, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid capacity in %q", part)
		}
		category, err := ParseRoomCategory(fields[2])
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, Room{ID: strings.TrimSpace(fields[0]), Capacity: capacity, Category: category})
	}
	return NewInventory(rooms)
}

// Rooms returns the rooms ordered by id.
func (inv *Inventory) Rooms() []Room {
	out := make([]Room, len(inv.rooms))
	copy(out, inv.rooms)
	return out
}

// Room looks up a room by id.
func (inv *Inventory) Room(id string) (Room, bool) {
	r, ok := inv.byID[id]
	return r, ok
}

// TotalCapacity is the sum of all room capacities.
func (inv *Inventory) TotalCapacity() int { return inv.total }

// Beds lists the bed numbers of a room, 1..capacity.
func (inv *Inventory) Beds(id string) []int {
	r, ok := inv.byID[id]
	if !ok {
		return nil
	}
	beds := make([]int, r.Capacity)
	for i := range beds {
		beds[i] = i + 1
	}
	return beds
}
