package perf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(hour, minute int) time.Time {
	return time.Date(2024, 6, 1, hour, minute, 0, 0, time.UTC)
}

func tsp(hour, minute int) *time.Time {
	t := ts(hour, minute)
	return &t
}

func TestWindowOverlapPartial(t *testing.T) {
	// Session 09:00-09:10 against window 09:05-09:15.
	o := WindowOverlap(ts(9, 0), tsp(9, 10), ts(9, 5), ts(9, 15))

	assert.True(t, o.Intersects())
	assert.Equal(t, 300.0, o.OverlapSeconds)
	assert.Equal(t, 600.0, o.FullSessionSeconds)
	assert.Equal(t, 0.5, o.ProrationFactor)
	assert.Equal(t, ts(9, 5), o.EffectiveStart)
	assert.Equal(t, ts(9, 10), o.EffectiveEnd)
}

func TestWindowOverlapDisjoint(t *testing.T) {
	// Ends exactly at the window start: zero overlap.
	o := WindowOverlap(ts(8, 0), tsp(9, 0), ts(9, 0), ts(10, 0))
	assert.False(t, o.Intersects())
	assert.Zero(t, o.OverlapSeconds)
	assert.Zero(t, o.ProrationFactor)

	o = WindowOverlap(ts(11, 0), tsp(12, 0), ts(9, 0), ts(10, 0))
	assert.False(t, o.Intersects())
}

func TestWindowOverlapOpenSession(t *testing.T) {
	// Open session: effective end is the window end.
	o := WindowOverlap(ts(9, 0), nil, ts(9, 30), ts(10, 0))
	assert.True(t, o.Intersects())
	assert.Equal(t, 1800.0, o.OverlapSeconds)
	assert.Equal(t, 3600.0, o.FullSessionSeconds)
	assert.Equal(t, ts(10, 0), o.EffectiveEnd)
}

func TestWindowOverlapContained(t *testing.T) {
	// Session fully inside the window prorates to 1.
	o := WindowOverlap(ts(9, 10), tsp(9, 20), ts(9, 0), ts(10, 0))
	assert.Equal(t, 600.0, o.OverlapSeconds)
	assert.Equal(t, 1.0, o.ProrationFactor)
}

func TestWindowOverlapZeroLengthSession(t *testing.T) {
	// Degenerate session: zero full duration must not divide.
	o := WindowOverlap(ts(9, 0), tsp(9, 0), ts(8, 0), ts(10, 0))
	assert.False(t, o.Intersects())
	assert.Zero(t, o.ProrationFactor)
}
