package player

import (
	"time"

	"github.com/njyeung/avsync/buffering"
	"github.com/njyeung/avsync/clock"
	"github.com/njyeung/avsync/media"
	"github.com/njyeung/avsync/recorder"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxBufferSize is the byte ceiling of all packet queues together
	DefaultMaxBufferSize = 15 * 1024 * 1024

	// DefaultMinFrames is the packet count above which a stream has enough data
	DefaultMinFrames = 50000

	// RefreshRate is the presentation loop tick in seconds
	RefreshRate = 0.01

	// BufferingCheckPeriod is how often the reader measures the cache while buffering
	BufferingCheckPeriod = 500 * time.Millisecond

	// ReadWait bounds every reader wait so abort and seek requests are seen quickly
	ReadWait = 10 * time.Millisecond

	// EOFWait is how long the reader idles once the input is exhausted
	EOFWait = 100 * time.Millisecond

	// SyncAVStartTimeout bounds how long audio waits for the first video frame
	SyncAVStartTimeout = 2 * time.Second
)

// Options configures a player. Collaborators left nil disable the matching output
type Options struct {
	Opener   media.Opener
	Codecs   media.CodecOpener
	Renderer media.Renderer
	Audio    media.AudioOutput
	Recorder recorder.Opener
	Logger   logrus.FieldLogger

	// Sync is the preferred master clock
	Sync clock.SyncType

	// FrameDrop drops late video frames: 0 never, >0 always with that many consecutive
	// early drops allowed, <0 only when video is not the master
	FrameDrop int

	// Loop is the number of times the input is played, 0 loops forever
	Loop int

	// AutoExit stops the reader on completion instead of idling
	AutoExit bool

	// StartOnPrepared starts playback as soon as the input is prepared
	StartOnPrepared bool

	// PacketBuffering pauses presentation while the indicator queue refills
	PacketBuffering bool

	// InfiniteBuffer disables read backpressure: -1 auto (realtime sources), 0 off, 1 on
	InfiniteBuffer int

	MaxBufferSize int
	MinFrames     int

	// MaxCachedDuration drops the oldest GOPs once a queue caches more than this, 0 disables
	MaxCachedDuration time.Duration

	Marks buffering.Marks

	// ReorderPTS selects the video timestamp: -1 best effort, 0 dts, 1 pts
	ReorderPTS int

	// SyncAVStart holds audio back until the first video frame is decoded
	SyncAVStart bool

	// Play range and initial seek, zero when unset
	StartTime   time.Duration
	Duration    time.Duration
	SeekAtStart time.Duration

	Volume float64
	Rate   float64

	DisableAudio    bool
	DisableVideo    bool
	DisableSubtitle bool

	// FormatOptions are handed to the source opener
	FormatOptions map[string]string

	// SeekByBytes: -1 auto, 0 timestamps, 1 bytes
	SeekByBytes int
}

// DefaultOptions returns the stock settings
func DefaultOptions() Options {
	return Options{
		Sync:            clock.AudioMaster,
		FrameDrop:       1,
		Loop:            1,
		StartOnPrepared: true,
		PacketBuffering: true,
		InfiniteBuffer:  -1,
		MaxBufferSize:   DefaultMaxBufferSize,
		MinFrames:       DefaultMinFrames,
		Marks:           buffering.DefaultMarks(),
		ReorderPTS:      -1,
		Volume:          1,
		Rate:            1,
		SeekByBytes:     -1,
	}
}

func (o Options) normalized() Options {
	if o.MaxBufferSize <= 0 {
		o.MaxBufferSize = DefaultMaxBufferSize
	}
	if o.MinFrames <= 0 {
		o.MinFrames = DefaultMinFrames
	}
	if o.Loop < 0 {
		o.Loop = 1
	}
	if o.Rate <= 0 {
		o.Rate = 1
	}
	if o.Volume < 0 {
		o.Volume = 0
	}
	if o.Logger == nil {
		o.Logger = discardLogger()
	}
	return o
}
