// Package clock implements the drift compensated media clocks and the policies that pick
// and pace against a master clock.
package clock

import (
	"math"
	"sync"
	"time"
)

var epoch = time.Now()

// Now returns a monotonic wall time in seconds
func Now() float64 {
	return time.Since(epoch).Seconds()
}

// Clock maps wall time to media time. Its value is undefined (NaN) once the queue it
// belongs to moved to another serial
type Clock struct {
	mu          sync.Mutex
	pts         float64
	ptsDrift    float64
	lastUpdated float64
	speed       float64
	serial      int
	paused      bool

	queueSerial func() int
	now         func() float64
}

// New creates a clock validated against queueSerial. A nil queueSerial makes the clock
// its own reference, as used by the external clock
func New(queueSerial func() int) *Clock {
	c := &Clock{
		speed:       1,
		queueSerial: queueSerial,
		now:         Now,
	}
	c.setAt(math.NaN(), -1, c.now())
	return c
}

// WithNow replaces the wall time source
func (c *Clock) WithNow(now func() float64) *Clock {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// Get returns the current media time in seconds or NaN
func (c *Clock) Get() float64 {
	qs := 0
	if c.queueSerial != nil {
		qs = c.queueSerial()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queueSerial != nil && qs != c.serial {
		return math.NaN()
	}
	if c.paused {
		return c.pts
	}
	t := c.now()
	return c.ptsDrift + t - (t-c.lastUpdated)*(1-c.speed)
}

func (c *Clock) setAt(pts float64, serial int, t float64) {
	c.pts = pts
	c.lastUpdated = t
	c.ptsDrift = pts - t
	c.serial = serial
}

// SetAt updates the clock as if pts was current at wall time t
func (c *Clock) SetAt(pts float64, serial int, t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setAt(pts, serial, t)
}

// Set updates the clock with pts current now
func (c *Clock) Set(pts float64, serial int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setAt(pts, serial, c.now())
}

// SetSpeed changes the rate at which the clock advances, without a jump
func (c *Clock) SetSpeed(speed float64) {
	v := c.Get()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setAt(v, c.serial, c.now())
	c.speed = speed
}

// Speed returns the playback rate multiplier
func (c *Clock) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// SetPaused freezes or releases the clock
func (c *Clock) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
}

// Paused reports whether the clock is frozen
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Serial returns the serial of the last update
func (c *Clock) Serial() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serial
}

// LastUpdated returns the wall time of the last update
func (c *Clock) LastUpdated() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdated
}

// SyncToSlave snaps c to slave when c is undefined or drifted beyond NoSyncThreshold
func SyncToSlave(c, slave *Clock) {
	v := c.Get()
	sv := slave.Get()
	if !math.IsNaN(sv) && (math.IsNaN(v) || math.Abs(v-sv) > NoSyncThreshold) {
		c.Set(sv, slave.Serial())
	}
}
