package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type steppingClock struct{ readings []int64 }

func (c *steppingClock) Now() int64 {
	next := c.readings[0]
	if len(c.readings) > 1 {
		c.readings = c.readings[1:]
	}
	return next
}

func TestMonotonicClockNeverGoesBack(t *testing.T) {
	clock := NewMonotonicClock(&steppingClock{readings: []int64{10, 12, 11, 15}})
	require.Equal(t, int64(10), clock.Now())
	require.Equal(t, int64(12), clock.Now())
	require.Equal(t, int64(12), clock.Now())
	require.Equal(t, int64(15), clock.Now())
}

func TestFixedClock(t *testing.T) {
	clock := NewFixedClock(100)
	clock.Advance(90 * time.Second)
	require.Equal(t, int64(190), clock.Now())
	clock.Set(5)
	require.Equal(t, int64(5), clock.Now())
}

func TestSystemClockIsCurrent(t *testing.T) {
	now := time.Now().Unix()
	got := NewMonotonicClock(nil).Now()
	require.InDelta(t, now, got, 2)
}
