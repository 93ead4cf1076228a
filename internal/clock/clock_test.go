package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	c := NewManual(start)
	assert.Equal(t, start, c.Now())

	got := c.Advance(10 * time.Minute)
	assert.Equal(t, start.Add(10*time.Minute), got)
	assert.Equal(t, got, c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestFixedClockIsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	c := NewFixed(time.Date(2025, 1, 1, 2, 0, 0, 0, loc))
	assert.Equal(t, time.UTC, c.Now().Location())
	assert.Equal(t, 0, c.Now().Hour())
}
