package perf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTimeframeRelative(t *testing.T) {
	now := time.Date(2024, 6, 5, 14, 30, 0, 0, time.UTC)

	r, err := ResolveTimeframe(TimeframeSixMin, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-6*time.Minute), r.Start)
	assert.Equal(t, now, r.End)
	assert.Equal(t, 360.0, r.Seconds())

	r, err = ResolveTimeframe(TimeframeHour, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 3600.0, r.Seconds())
}

func TestResolveTimeframeCalendar(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	// 2024-06-05 14:30 Chicago = 19:30 UTC; a Wednesday.
	now := time.Date(2024, 6, 5, 19, 30, 0, 0, time.UTC)

	r, err := ResolveTimeframe(TimeframeToday, now, loc)
	require.NoError(t, err)
	assert.Equal(t,
		time.Date(2024, 6, 5, 5, 0, 0, 0, time.UTC), r.Start)

	r, err = ResolveTimeframe(TimeframeShift, now, loc)
	require.NoError(t, err)
	// 14:30 local falls in the 08:00-16:00 shift.
	assert.Equal(t,
		time.Date(2024, 6, 5, 13, 0, 0, 0, time.UTC), r.Start)

	r, err = ResolveTimeframe(TimeframeWeek, now, loc)
	require.NoError(t, err)
	// Week starts Monday 2024-06-03 local.
	assert.Equal(t,
		time.Date(2024, 6, 3, 5, 0, 0, 0, time.UTC), r.Start)
}

func TestResolveTimeframeUnknown(t *testing.T) {
	_, err := ResolveTimeframe("fortnight", time.Now(), time.UTC)
	assert.Error(t, err)
}

func TestClampEnd(t *testing.T) {
	now := time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)
	r := Range{Start: now.Add(-time.Hour), End: now.Add(time.Hour)}

	clamped := ClampEnd(r, now)
	assert.Equal(t, now, clamped.End)

	past := Range{Start: now.Add(-2 * time.Hour), End: now.Add(-time.Hour)}
	assert.Equal(t, past, ClampEnd(past, now))
}
