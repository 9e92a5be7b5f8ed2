package media

// Renderer is the video output sink. All methods are called from the presentation goroutine
type Renderer interface {
	// Negotiate (re)configures the output surface for frames of the given geometry
	Negotiate(width, height int, format PixelFormat) error

	// Upload copies the frame into the surface, with an optional subtitle overlay
	Upload(f *Frame, sub *Subtitle) error

	// Present shows the last uploaded surface
	Present() error
}

// AudioSpec describes an interleaved s16 PCM layout
type AudioSpec struct {
	SampleRate int
	Channels   int

	// Samples is the device buffer size in sample frames
	Samples int
}

// BytesPerSec returns the byte rate of the layout
func (s AudioSpec) BytesPerSec() int {
	return s.SampleRate * s.Channels * 2
}

// FrameSize returns the size of one sample frame in bytes
func (s AudioSpec) FrameSize() int {
	return s.Channels * 2
}

// BufferSize returns the device buffer size in bytes
func (s AudioSpec) BufferSize() int {
	return s.Samples * s.FrameSize()
}

// FillFunc is invoked by the audio device to fill buf. It must not block for long
type FillFunc func(buf []byte)

// AudioOutput is the audio sink. The device pulls data through the fill callback
type AudioOutput interface {
	// Open negotiates the device format and starts pulling from fill (paused)
	Open(wanted AudioSpec, fill FillFunc) (AudioSpec, error)

	Pause(paused bool)

	// Flush drops audio queued in the device
	Flush()

	// Latency returns how long queued audio takes to be heard, in seconds
	Latency() float64

	Close() error
}
