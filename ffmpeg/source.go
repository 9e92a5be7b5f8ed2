// Package ffmpeg implements the media collaborators of the player on top of FFmpeg
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/njyeung/avsync/media"
	"github.com/samber/lo"
)

// networkSchemes are the inputs whose read errors are reported as transport errors
var networkSchemes = []string{"http", "https", "rtmp", "rtsp", "rtp", "udp", "tcp", "srt", "hls"}

// Source demuxes one input
type Source struct {
	c    *astikit.Closer
	fc   *astiav.FormatContext
	im   sync.Mutex // Locks ii
	ii   *astiav.IOInterrupter
	pkt  *astiav.Packet
	info media.SourceInfo
	uri  string

	mu     sync.Mutex // Locks fc reads and seeks
	closed bool
}

// Opener opens Sources. It implements media.Opener
type Opener struct{}

// Open implements media.Opener
func (Opener) Open(ctx context.Context, uri string, options map[string]string) (media.Source, error) {
	s, err := Open(ctx, uri, options)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Open opens uri and probes its streams. Cancelling ctx interrupts the probing
func Open(ctx context.Context, uri string, options map[string]string) (s *Source, err error) {
	c := astikit.NewCloser()
	s = &Source{
		c:   c,
		uri: uri,
	}
	defer func() {
		if err != nil {
			c.Close() //nolint: errcheck
		}
	}()

	if s.fc = astiav.AllocFormatContext(); s.fc == nil {
		return nil, errors.New("ffmpeg: failed to allocate format context")
	}
	s.c.Add(s.fc.Free)

	s.ii = astiav.NewIOInterrupter()
	s.c.Add(s.freeInterrupter)
	s.fc.SetIOInterrupter(s.ii)

	// Interrupt while probing when the caller gives up
	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-probeCtx.Done()
		if ctx.Err() != nil {
			s.Interrupt()
		}
	}()

	d := astiav.NewDictionary()
	defer d.Free()
	for k, v := range options {
		if err = d.Set(k, v, astiav.NewDictionaryFlags()); err != nil {
			return nil, fmt.Errorf("ffmpeg: setting option %s failed: %w", k, err)
		}
	}

	if err = s.fc.OpenInput(uri, nil, d); err != nil {
		return nil, fmt.Errorf("ffmpeg: opening input failed: %w", err)
	}
	s.c.Add(s.fc.CloseInput)

	if err = s.fc.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("ffmpeg: finding stream info failed: %w", err)
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("ffmpeg: context error: %w", ctx.Err())
	}

	if s.pkt = astiav.AllocPacket(); s.pkt == nil {
		return nil, errors.New("ffmpeg: failed to allocate packet")
	}
	s.c.Add(s.pkt.Free)

	s.info = s.describe()
	return s, nil
}

func (s *Source) describe() media.SourceInfo {
	info := media.SourceInfo{
		Duration:  s.fc.Duration(),
		StartTime: s.fc.StartTime(),
		BitRate:   s.fc.BitRate(),
	}
	if f := s.fc.InputFormat(); f != nil {
		info.FormatName = f.Name()
		info.TSDiscont = f.Flags().Has(astiav.IOFormatFlagTsDiscont)
		info.SeekByBytes = info.TSDiscont && f.Name() != "ogg"
	}
	for _, st := range s.fc.Streams() {
		info.Streams = append(info.Streams, streamInfo(st))
	}
	return info
}

func streamInfo(st *astiav.Stream) media.StreamInfo {
	cp := st.CodecParameters()
	si := media.StreamInfo{
		Index:     st.Index(),
		Kind:      kind(cp.MediaType()),
		CodecName: cp.CodecID().String(),
		TimeBase:  rational(st.TimeBase()),
		StartTime: st.StartTime(),
		FrameRate: rational(st.AvgFrameRate()),
		Params:    cp,
	}
	switch si.Kind {
	case media.KindVideo:
		si.Width = cp.Width()
		si.Height = cp.Height()
		si.AspectRatio = rational(cp.SampleAspectRatio())
		if si.FrameRate.Num <= 0 {
			si.FrameRate = rational(st.RFrameRate())
		}
	case media.KindAudio:
		si.SampleRate = cp.SampleRate()
		si.Channels = cp.ChannelLayout().Channels()
	}
	return si
}

func kind(t astiav.MediaType) media.Kind {
	switch t {
	case astiav.MediaTypeVideo:
		return media.KindVideo
	case astiav.MediaTypeAudio:
		return media.KindAudio
	case astiav.MediaTypeSubtitle:
		return media.KindSubtitle
	default:
		return media.KindUnknown
	}
}

func rational(r astiav.Rational) media.Rational {
	return media.Rational{Num: r.Num(), Den: r.Den()}
}

// Info returns the probed description of the input
func (s *Source) Info() media.SourceInfo {
	return s.info
}

// ReadPacket reads the next packet into pkt
func (s *Source) ReadPacket(pkt *media.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return media.ErrAborted
	}
	if err := s.fc.ReadFrame(s.pkt); err != nil {
		switch {
		case errors.Is(err, astiav.ErrEof):
			return io.EOF
		case errors.Is(err, astiav.ErrEagain):
			return media.ErrAgain
		case errors.Is(err, astiav.ErrExit):
			return media.ErrAborted
		case s.network():
			return &media.TransportError{Op: "read", Err: err}
		}
		return fmt.Errorf("ffmpeg: reading frame failed: %w", err)
	}
	defer s.pkt.Unref()

	pkt.StreamIndex = s.pkt.StreamIndex()
	pkt.Data = append(pkt.Data[:0], s.pkt.Data()...)
	pkt.PTS = s.pkt.Pts()
	pkt.DTS = s.pkt.Dts()
	pkt.Duration = s.pkt.Duration()
	pkt.Pos = s.pkt.Pos()
	pkt.Key = s.pkt.Flags().Has(astiav.PacketFlagKey)
	return nil
}

func (s *Source) network() bool {
	scheme, _, ok := strings.Cut(s.uri, "://")
	return ok && lo.Contains(networkSchemes, strings.ToLower(scheme))
}

// Seek moves to the key frame at or before target. Timestamps are microseconds
func (s *Source) Seek(min, target, max int64, byBytes bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return media.ErrAborted
	}
	flags := astiav.NewSeekFlags(astiav.SeekFlagBackward)
	if byBytes {
		flags = astiav.NewSeekFlags(astiav.SeekFlagByte)
	} else if target > max {
		target = max
	} else if target < min {
		target = min
	}
	if err := s.fc.SeekFrame(-1, target, flags); err != nil {
		return fmt.Errorf("ffmpeg: seeking to %d failed: %w", target, err)
	}
	return nil
}

// Interrupt makes blocking reads return
func (s *Source) Interrupt() {
	s.im.Lock()
	defer s.im.Unlock()
	if s.ii != nil {
		s.ii.Interrupt()
	}
}

func (s *Source) freeInterrupter() {
	s.im.Lock()
	defer s.im.Unlock()
	s.ii.Free()
	s.ii = nil
}

// Close releases the input
func (s *Source) Close() error {
	s.Interrupt()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.c.Close()
}
