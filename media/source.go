package media

import "context"

// StreamInfo describes one elementary stream of a source
type StreamInfo struct {
	Index     int
	Kind      Kind
	CodecName string
	TimeBase  Rational
	StartTime int64 // in TimeBase, NoPTS when unknown
	FrameRate Rational

	// Video
	Width       int
	Height      int
	AspectRatio Rational

	// Audio
	SampleRate int
	Channels   int

	// AttachedPic is the cover art packet of a picture-only stream
	AttachedPic *Packet

	// Params is the collaborator-specific codec description handed back to the codec opener
	Params any
}

// SourceInfo describes an opened source
type SourceInfo struct {
	FormatName string
	Duration   int64 // microseconds, NoPTS when unknown
	StartTime  int64 // microseconds, NoPTS when unknown
	BitRate    int64
	Streams    []StreamInfo

	// TSDiscont is set for formats whose timestamps may jump (mpegts...)
	TSDiscont bool

	// SeekByBytes is set for formats that cannot seek by timestamp
	SeekByBytes bool
}

// BestStream returns the index of the first stream of the given kind or -1
func (i SourceInfo) BestStream(k Kind) int {
	for _, s := range i.Streams {
		if s.Kind == k {
			return s.Index
		}
	}
	return -1
}

// Stream returns the stream with the given index
func (i SourceInfo) Stream(index int) (StreamInfo, bool) {
	for _, s := range i.Streams {
		if s.Index == index {
			return s, true
		}
	}
	return StreamInfo{}, false
}

// Source is an opened container. ReadPacket returns io.EOF once the input is exhausted
type Source interface {
	Info() SourceInfo

	// ReadPacket fills pkt with the next packet
	ReadPacket(pkt *Packet) error

	// Seek moves the read position so that the next packet is as close as possible to target
	// while staying in [min, max]. Timestamps are microseconds, or bytes when byBytes is set
	Seek(min, target, max int64, byBytes bool) error

	// Interrupt aborts any blocking I/O in progress and makes future I/O fail fast
	Interrupt()

	Close() error
}

// Opener opens a source for a URI
type Opener interface {
	Open(ctx context.Context, uri string, options map[string]string) (Source, error)
}

// OpenerFunc adapts a function to the Opener interface
type OpenerFunc func(ctx context.Context, uri string, options map[string]string) (Source, error)

func (f OpenerFunc) Open(ctx context.Context, uri string, options map[string]string) (Source, error) {
	return f(ctx, uri, options)
}
