package quiethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func osloZone(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Oslo")
	require.NoError(t, err)
	return loc
}

func TestNilWindowNeverQuiet(t *testing.T) {
	now := time.Date(2026, 1, 15, 23, 0, 0, 0, time.UTC)
	assert.False(t, IsQuiet(now, nil, time.UTC))
	assert.True(t, NextAllowed(now, nil, time.UTC).Equal(now))
}

func TestEmptyWindowNeverQuiet(t *testing.T) {
	w := &Window{Start: "22:00", End: "22:00", Mode: ModeHard}
	now := time.Date(2026, 1, 15, 22, 30, 0, 0, time.UTC)
	assert.False(t, IsQuiet(now, w, time.UTC))
	assert.True(t, NextAllowed(now, w, time.UTC).Equal(now))
}

func TestUnparseableWindowTreatedAsEmpty(t *testing.T) {
	w := &Window{Start: "late", End: "early", Mode: ModeHard}
	now := time.Date(2026, 1, 15, 23, 0, 0, 0, time.UTC)
	assert.False(t, IsQuiet(now, w, time.UTC))
	assert.True(t, NextAllowed(now, w, time.UTC).Equal(now))
}

func TestSameDayWindow(t *testing.T) {
	w := &Window{Start: "09:00", End: "17:00", Mode: ModeHard}
	loc := time.UTC

	inside := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	assert.True(t, IsQuiet(inside, w, loc))
	assert.True(t, NextAllowed(inside, w, loc).Equal(time.Date(2026, 1, 15, 17, 0, 0, 0, time.UTC)))

	before := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	assert.False(t, IsQuiet(before, w, loc))
	assert.True(t, NextAllowed(before, w, loc).Equal(before))

	after := time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)
	assert.False(t, IsQuiet(after, w, loc))
	assert.True(t, NextAllowed(after, w, loc).Equal(after))
}

func TestOvernightWindowEveningSegment(t *testing.T) {
	oslo := osloZone(t)
	w := &Window{Start: "22:00", End: "07:00", Zone: "Europe/Oslo", Mode: ModeHard}

	// 2026-01-15T22:30Z is 23:30 local in Oslo's winter offset (+01).
	now := time.Date(2026, 1, 15, 22, 30, 0, 0, time.UTC)
	require.True(t, IsQuiet(now, w, time.UTC))

	next := NextAllowed(now, w, time.UTC)
	want := time.Date(2026, 1, 16, 7, 0, 0, 0, oslo)
	assert.True(t, next.Equal(want), "expected %s, got %s", want.UTC(), next.UTC())
	assert.Equal(t, time.Date(2026, 1, 16, 6, 0, 0, 0, time.UTC), next.UTC())
}

func TestOvernightWindowMorningSegment(t *testing.T) {
	oslo := osloZone(t)
	w := &Window{Start: "22:00", End: "07:00", Zone: "Europe/Oslo", Mode: ModeHard}

	// 05:30Z is 06:30 local, still inside the window that opened yesterday.
	now := time.Date(2026, 1, 15, 5, 30, 0, 0, time.UTC)
	require.True(t, IsQuiet(now, w, time.UTC))

	next := NextAllowed(now, w, time.UTC)
	assert.True(t, next.Equal(time.Date(2026, 1, 15, 7, 0, 0, 0, oslo)))
}

func TestOvernightWindowDaytimeNotQuiet(t *testing.T) {
	w := &Window{Start: "22:00", End: "07:00", Zone: "Europe/Oslo", Mode: ModeHard}

	// 11:00Z is midday local.
	now := time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC)
	assert.False(t, IsQuiet(now, w, time.UTC))
	assert.True(t, NextAllowed(now, w, time.UTC).Equal(now))
}

func TestBoundariesAreStrict(t *testing.T) {
	w := &Window{Start: "22:00", End: "07:00", Zone: "UTC", Mode: ModeHard}

	atStart := time.Date(2026, 1, 15, 22, 0, 0, 0, time.UTC)
	assert.False(t, IsQuiet(atStart, w, time.UTC))
	assert.True(t, NextAllowed(atStart, w, time.UTC).Equal(atStart))

	atEnd := time.Date(2026, 1, 15, 7, 0, 0, 0, time.UTC)
	assert.False(t, IsQuiet(atEnd, w, time.UTC))
	assert.True(t, NextAllowed(atEnd, w, time.UTC).Equal(atEnd))
}

func TestFallbackZoneUsedWhenZoneMissing(t *testing.T) {
	oslo := osloZone(t)
	w := &Window{Start: "22:00", End: "07:00", Mode: ModeHard}

	// 22:30Z = 23:30 Oslo; quiet only if the fallback zone applies.
	now := time.Date(2026, 1, 15, 22, 30, 0, 0, time.UTC)
	assert.True(t, IsQuiet(now, w, oslo))
	assert.False(t, IsQuiet(time.Date(2026, 1, 15, 20, 30, 0, 0, time.UTC), w, oslo))
}

func TestUnknownZoneFallsBack(t *testing.T) {
	w := &Window{Start: "09:00", End: "17:00", Zone: "Mars/Olympus", Mode: ModeHard}
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	assert.True(t, IsQuiet(now, w, time.UTC))
}
