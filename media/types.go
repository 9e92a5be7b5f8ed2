// Package media holds the data model shared by every stage of the playback engine and the
// capabilities the engine consumes from its collaborators (demuxer, codecs, output sinks).
package media

import (
	"fmt"
	"math"
)

// NoPTS marks an undefined timestamp, same bit pattern as FFmpeg's AV_NOPTS_VALUE
const NoPTS int64 = math.MinInt64

// TimeBaseMicro is the timebase of container-level durations and seek targets
var TimeBaseMicro = Rational{Num: 1, Den: 1000000}

// TimeBaseMilli is the timebase of positions reported to callers
var TimeBaseMilli = Rational{Num: 1, Den: 1000}

// Kind is the media type of a stream
type Kind int

const (
	KindUnknown Kind = iota
	KindVideo
	KindAudio
	KindSubtitle
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// Rational is a timebase or frame rate
type Rational struct {
	Num int
	Den int
}

// Float returns the rational as a float64, 0 when the denominator is 0
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// RescaleQ converts a from timebase bq to cq, rounding to nearest with halves away from zero
func RescaleQ(a int64, bq, cq Rational) int64 {
	if a == NoPTS {
		return NoPTS
	}
	b := int64(bq.Num) * int64(cq.Den)
	c := int64(cq.Num) * int64(bq.Den)
	if c == 0 {
		return NoPTS
	}
	return rescaleRnd(a, b, c)
}

func rescaleRnd(a, b, c int64) int64 {
	neg := false
	if a < 0 {
		a = -a
		neg = !neg
	}
	if c < 0 {
		c = -c
		neg = !neg
	}
	if b < 0 {
		b = -b
		neg = !neg
	}

	// a*b/c without overflowing when a*b fits in 128 bits
	hi, lo := mul64(uint64(a), uint64(b))
	lo, carry := add64(lo, uint64(c/2))
	hi += carry
	q := div128(hi, lo, uint64(c))
	if neg {
		return -int64(q)
	}
	return int64(q)
}

// Packet is a compressed unit of one stream
type Packet struct {
	StreamIndex int
	Data        []byte
	PTS         int64
	DTS         int64
	Duration    int64
	Pos         int64
	Key         bool

	// Discontinuity is set by sources that detected a timestamp jump before this packet
	Discontinuity bool
}

// NewPacket returns an empty packet with undefined timestamps
func NewPacket(streamIndex int) *Packet {
	return &Packet{
		StreamIndex: streamIndex,
		PTS:         NoPTS,
		DTS:         NoPTS,
		Pos:         -1,
	}
}

// Size returns the payload size in bytes
func (p *Packet) Size() int {
	return len(p.Data)
}

// Reset clears the packet so its backing array can be reused
func (p *Packet) Reset() {
	p.StreamIndex = -1
	p.Data = p.Data[:0]
	p.PTS = NoPTS
	p.DTS = NoPTS
	p.Duration = 0
	p.Pos = -1
	p.Key = false
	p.Discontinuity = false
}

// Clone returns a deep copy of the packet
func (p *Packet) Clone() *Packet {
	c := *p
	c.Data = append([]byte(nil), p.Data...)
	return &c
}

// PixelFormat names the layout of Frame.Pixels
type PixelFormat int

const (
	PixelFormatNone PixelFormat = iota
	PixelFormatRGB24
	PixelFormatRGBA
)

// Frame is a decoded picture, audio chunk or subtitle
type Frame struct {
	Kind Kind

	// Timestamps in TimeBase
	PTS        int64
	PktDTS     int64
	BestEffort int64
	TimeBase   Rational
	Pos        int64

	// Video
	Width       int
	Height      int
	Format      PixelFormat
	Pixels      []byte
	AspectRatio Rational

	// Audio, interleaved signed 16-bit little endian
	SampleRate int
	Channels   int
	NbSamples  int
	Samples    []byte

	// Subtitle
	Subtitle *Subtitle
}

// NewFrame returns an empty frame with undefined timestamps
func NewFrame(kind Kind) *Frame {
	return &Frame{Kind: kind, PTS: NoPTS, PktDTS: NoPTS, BestEffort: NoPTS, Pos: -1}
}

// Reset drops the frame payload while keeping its buffers for reuse
func (f *Frame) Reset() {
	f.PTS = NoPTS
	f.PktDTS = NoPTS
	f.BestEffort = NoPTS
	f.Pos = -1
	f.Width, f.Height = 0, 0
	f.Format = PixelFormatNone
	f.Pixels = f.Pixels[:0]
	f.SampleRate, f.Channels, f.NbSamples = 0, 0, 0
	f.Samples = f.Samples[:0]
	f.Subtitle = nil
}

// Subtitle is a decoded text cue. Display times are in milliseconds relative to PTS
type Subtitle struct {
	PTS              int64 // microseconds, NoPTS when unknown
	StartDisplayTime uint32
	EndDisplayTime   uint32
	Text             []string
}
