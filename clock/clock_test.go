package clock

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeTime struct{ t float64 }

func (f *fakeTime) now() float64 { return f.t }

func TestClockGet(t *testing.T) {
	ft := &fakeTime{t: 100}
	serial := 1
	c := New(func() int { return serial }).WithNow(ft.now)

	// Fresh clocks are undefined
	require.True(t, math.IsNaN(c.Get()))

	c.Set(5, 1)
	require.Equal(t, 5.0, c.Get())
	ft.t = 102
	require.InDelta(t, 7.0, c.Get(), 1e-9)

	// Paused clocks are frozen at the last pts
	c.SetPaused(true)
	ft.t = 110
	require.Equal(t, 5.0, c.Get())
	c.SetPaused(false)

	// A serial change invalidates the clock
	serial = 2
	require.True(t, math.IsNaN(c.Get()))
	c.Set(1, 2)
	require.Equal(t, 1.0, c.Get())
}

func TestClockSpeed(t *testing.T) {
	ft := &fakeTime{t: 0}
	c := New(nil).WithNow(ft.now)
	c.Set(10, 0)

	ft.t = 1
	c.SetSpeed(2)
	require.InDelta(t, 11.0, c.Get(), 1e-9)
	ft.t = 2
	require.InDelta(t, 13.0, c.Get(), 1e-9)
	require.Equal(t, 2.0, c.Speed())
}

func TestSyncToSlave(t *testing.T) {
	ft := &fakeTime{t: 0}
	ext := New(nil).WithNow(ft.now)
	aud := New(func() int { return 3 }).WithNow(ft.now)

	// Undefined slave leaves the master untouched
	SyncToSlave(ext, aud)
	require.True(t, math.IsNaN(ext.Get()))

	aud.Set(4, 3)
	SyncToSlave(ext, aud)
	require.Equal(t, 4.0, ext.Get())
	require.Equal(t, 3, ext.Serial())

	// Small drift is tolerated
	aud.Set(8, 3)
	SyncToSlave(ext, aud)
	require.Equal(t, 4.0, ext.Get())

	aud.Set(4+NoSyncThreshold+1, 3)
	SyncToSlave(ext, aud)
	require.Equal(t, 4+NoSyncThreshold+1, ext.Get())
}

func TestMaster(t *testing.T) {
	require.Equal(t, VideoMaster, Master(VideoMaster, true, true))
	require.Equal(t, AudioMaster, Master(VideoMaster, false, true))
	require.Equal(t, ExternalClock, Master(VideoMaster, false, false))
	require.Equal(t, AudioMaster, Master(AudioMaster, false, true))
	require.Equal(t, ExternalClock, Master(AudioMaster, true, false))
	require.Equal(t, ExternalClock, Master(ExternalClock, true, true))

	s, err := ParseSyncType("video")
	require.NoError(t, err)
	require.Equal(t, VideoMaster, s)
	_, err = ParseSyncType("bogus")
	require.Error(t, err)
}

func TestTargetDelay(t *testing.T) {
	// In sync
	require.Equal(t, 0.04, TargetDelay(0.04, 0.01))
	// Video late: catch up, never below zero
	require.InDelta(t, 0.0, TargetDelay(0.04, -0.5), 1e-9)
	require.InDelta(t, 0.05, TargetDelay(0.2, -0.15), 1e-9)
	// Video early with short frames: wait twice as long
	require.InDelta(t, 0.08, TargetDelay(0.04, 0.05), 1e-9)
	// Video early with long frames: extend by the difference
	require.InDelta(t, 0.35, TargetDelay(0.2, 0.15), 1e-9)
	// Undefined or huge differences are ignored
	require.Equal(t, 0.04, TargetDelay(0.04, math.NaN()))
	require.Equal(t, 0.04, TargetDelay(0.04, 20))
}

func TestExternalSpeed(t *testing.T) {
	require.InDelta(t, 0.999, ExternalSpeed(1, 1, 50), 1e-9)
	require.Equal(t, ExternalClockSpeedMin, ExternalSpeed(ExternalClockSpeedMin, 1, 50))
	require.InDelta(t, 1.001, ExternalSpeed(1, 20, -1), 1e-9)
	require.Equal(t, ExternalClockSpeedMax, ExternalSpeed(ExternalClockSpeedMax, 20, 20))
	require.InDelta(t, 0.996, ExternalSpeed(0.995, 5, 5), 1e-9)
	require.Equal(t, 1.0, ExternalSpeed(1, 5, 5))
}
