package conflict

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/iliyamo/hostel-bed-holds/internal/model"
)

// DefaultUnknownPriority applies to platforms missing from the table.
const DefaultUnknownPriority = 10

// PriorityTable ranks booking platforms.  The resolver only compares
// numbers; which platform wins is pure configuration.
type PriorityTable struct {
	ranks   map[model.Platform]int
	unknown int
}

// DefaultPriorities is direct > airbnb = booking > expedia = vrbo >
// hostelworld > internal > anything else.
func DefaultPriorities() PriorityTable {
	return PriorityTable{
		ranks: map[model.Platform]int{
			model.PlatformDirect:      100,
			model.PlatformAirbnb:      80,
			model.PlatformBooking:     80,
			model.PlatformExpedia:     70,
			model.PlatformVrbo:        70,
			model.PlatformHostelworld: 60,
			model.PlatformInternal:    50,
		},
		unknown: DefaultUnknownPriority,
	}
}

// NewPriorityTable copies ranks into a table.
func NewPriorityTable(ranks map[model.Platform]int, unknown int) PriorityTable {
	cp := make(map[model.Platform]int, len(ranks))
	for k, v := range ranks {
		cp[model.NormalizePlatform(string(k))] = v
	}
	return PriorityTable{ranks: cp, unknown: unknown}
}

// ParsePriorities reads "direct=100,airbnb=80,...".  The special key
// "unknown" sets the fallback rank.  An empty string yields the defaults.
func ParsePriorities(spec string) (PriorityTable, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return DefaultPriorities(), nil
	}
	ranks := map[model.Platform]int{}
	unknown := DefaultUnknownPriority
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, ok := strings.Cut(part, "=")
		if !ok {
			return PriorityTable{}, fmt.Errorf("priority entry %q: want platform=rank", part)
		}
		rank, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return PriorityTable{}, fmt.Errorf("priority entry %q: %w", part, err)
		}
		p := model.NormalizePlatform(name)
		if p == "" {
			return PriorityTable{}, fmt.Errorf("priority entry %q: empty platform", part)
		}
		if p == "unknown" {
			unknown = rank
			continue
		}
		ranks[p] = rank
	}
	return PriorityTable{ranks: ranks, unknown: unknown}, nil
}

// Rank returns the priority of p.
func (t PriorityTable) Rank(p model.Platform) int {
	if r, ok := t.ranks[model.NormalizePlatform(string(p))]; ok {
		return r
	}
	return t.unknown
}

// String renders the table in ParsePriorities form, highest rank first.
func (t PriorityTable) String() string {
	type entry struct {
		p model.Platform
		r int
	}
	entries := make([]entry, 0, len(t.ranks))
	for p, r := range t.ranks {
		entries = append(entries, entry{p, r})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].r != entries[j].r {
			return entries[i].r > entries[j].r
		}
		return entries[i].p < entries[j].p
	})
	parts := make([]string, 0, len(entries)+1)
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s=%d", e.p, e.r))
	}
	parts = append(parts, fmt.Sprintf("unknown=%d", t.unknown))
	return strings.Join(parts, ",")
}
