// Package buffering decides when playback has to wait for data and when enough is cached to
// resume. It owns the high-water-mark ladder: the first mark is small for fast startup and
// every completed buffering episode raises the mark used by the next one.
package buffering

import "sync"

const (
	DefaultFirstMarkMs = 100
	DefaultNextMarkMs  = 1000
	DefaultLastMarkMs  = 5000
	DefaultMarkBytes   = 256 * 1024

	// MinMinFrames is the packet count every active queue must exceed before buffering ends
	MinMinFrames = 2
)

// Marks are the high-water-mark settings
type Marks struct {
	FirstMs int
	NextMs  int
	LastMs  int
	Bytes   int
}

// DefaultMarks returns the stock ladder
func DefaultMarks() Marks {
	return Marks{
		FirstMs: DefaultFirstMarkMs,
		NextMs:  DefaultNextMarkMs,
		LastMs:  DefaultLastMarkMs,
		Bytes:   DefaultMarkBytes,
	}
}

func (m Marks) normalized() Marks {
	d := DefaultMarks()
	if m.FirstMs <= 0 {
		m.FirstMs = d.FirstMs
	}
	if m.NextMs <= 0 {
		m.NextMs = d.NextMs
	}
	if m.LastMs <= 0 {
		m.LastMs = d.LastMs
	}
	if m.NextMs < m.FirstMs {
		m.NextMs = m.FirstMs
	}
	if m.LastMs < m.NextMs {
		m.LastMs = m.NextMs
	}
	if m.Bytes <= 0 {
		m.Bytes = d.Bytes
	}
	return m
}

// Level is a snapshot of what is cached in the packet queues
type Level struct {
	// Cached durations in ms, negative when the stream is absent or its time base is invalid
	AudioCachedMs int64
	VideoCachedMs int64

	// Bytes is the audio plus video packet queue size
	Bytes int

	// PositionMs is the current playback position
	PositionMs int64

	// IndicatorPackets is the packet count of the queue whose starvation triggered buffering
	IndicatorPackets int

	// Per queue packet counts, negative when the stream is absent or its queue aborted
	AudioPackets int
	VideoPackets int
}

// Status is the result of a buffering check
type Status struct {
	// Percent is the authoritative buffering percentage, -1 when nothing could be measured
	Percent     int
	TimePercent int
	SizePercent int

	// PlayableMs is the position up to which data is cached, -1 when unknown
	PlayableMs int64

	// Enough is set when the active metric reached 100%
	Enough bool

	// End is set when buffering should stop
	End bool

	// MarkMs is the high-water-mark in effect after the check
	MarkMs int
}

// Controller tracks the buffering state of one session
type Controller struct {
	m         sync.Mutex
	buffering bool
	marks     Marks
	markMs    int
	percent   int
	playable  int64
}

// New creates a controller
func New(marks Marks) *Controller {
	marks = marks.normalized()
	return &Controller{
		marks:    marks,
		markMs:   marks.FirstMs,
		percent:  -1,
		playable: -1,
	}
}

// Marks returns the ladder settings
func (c *Controller) Marks() Marks {
	return c.marks
}

// MarkMs returns the current time high-water-mark
func (c *Controller) MarkMs() int {
	c.m.Lock()
	defer c.m.Unlock()
	return c.markMs
}

// Buffering reports whether buffering is on
func (c *Controller) Buffering() bool {
	c.m.Lock()
	defer c.m.Unlock()
	return c.buffering
}

// Percent returns the last computed percentage
func (c *Controller) Percent() int {
	c.m.Lock()
	defer c.m.Unlock()
	return c.percent
}

// PlayableMs returns the last computed playable position
func (c *Controller) PlayableMs() int64 {
	c.m.Lock()
	defer c.m.Unlock()
	return c.playable
}

// Toggle switches buffering on or off and reports whether the state changed
func (c *Controller) Toggle(on bool) bool {
	c.m.Lock()
	defer c.m.Unlock()
	if c.buffering == on {
		return false
	}
	c.buffering = on
	if on {
		c.percent = 0
	}
	return true
}

// Reset moves the ladder back to the first mark
func (c *Controller) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.markMs = c.marks.FirstMs
}

// Check measures the cached data against the current marks. When enough data is cached the
// mark for the next episode is raised, and End is set once every active queue holds more
// than MinMinFrames packets
func (c *Controller) Check(l Level) Status {
	c.m.Lock()
	defer c.m.Unlock()

	s := Status{Percent: -1, TimePercent: -1, SizePercent: -1, PlayableMs: -1}
	hwm := c.markMs

	if hwm > 0 {
		cached := int64(-1)
		switch {
		case l.VideoCachedMs > 0 && l.AudioCachedMs > 0:
			cached = min(l.VideoCachedMs, l.AudioCachedMs)
		case l.VideoCachedMs > 0:
			cached = l.VideoCachedMs
		case l.AudioCachedMs > 0:
			cached = l.AudioCachedMs
		}
		if cached >= 0 {
			s.PlayableMs = l.PositionMs + cached
			s.TimePercent = percent(cached, int64(hwm))
		}
	}
	if c.marks.Bytes > 0 {
		s.SizePercent = percent(int64(l.Bytes), int64(c.marks.Bytes))
	}

	// the time metric decides whenever it is known
	if s.TimePercent >= 0 {
		s.Enough = s.TimePercent >= 100
		s.Percent = s.TimePercent
	} else {
		s.Enough = s.SizePercent >= 100
		s.Percent = s.SizePercent
	}
	if s.TimePercent >= 0 && s.SizePercent >= 0 {
		s.Percent = min(s.TimePercent, s.SizePercent)
	}

	if s.Enough {
		if hwm < c.marks.NextMs {
			hwm = c.marks.NextMs
		} else {
			hwm *= 2
		}
		c.markMs = min(hwm, c.marks.LastMs)

		if l.IndicatorPackets > 0 && ready(l.AudioPackets) && ready(l.VideoPackets) {
			s.End = true
		}
	}

	c.percent = s.Percent
	if s.PlayableMs >= 0 {
		c.playable = s.PlayableMs
	}
	s.MarkMs = c.markMs
	return s
}

func ready(packets int) bool {
	return packets < 0 || packets > MinMinFrames
}

// percent is a*100.5/b rounded to nearest
func percent(a, b int64) int {
	d := b * 10
	return int((a*1005 + d/2) / d)
}
