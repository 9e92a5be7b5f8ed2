package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/njyeung/avsync/media"
	"github.com/njyeung/avsync/recorder"
)

// Muxer writes recorded packets into a container without re-encoding. It implements
// recorder.Sink
type Muxer struct {
	c   *astikit.Closer
	fc  *astiav.FormatContext
	pkt *astiav.Packet
	ss  []*astiav.Stream
}

// SinkOpener opens Muxers. It implements recorder.Opener
type SinkOpener struct{}

// OpenSink creates path with one output stream per entry of streams
func (SinkOpener) OpenSink(path string, streams []media.StreamInfo) (recorder.Sink, error) {
	return NewMuxer(path, streams)
}

// NewMuxer creates path and writes its header
func NewMuxer(path string, streams []media.StreamInfo) (m *Muxer, err error) {
	c := astikit.NewCloser()
	m = &Muxer{c: c}
	defer func() {
		if err != nil {
			c.Close() //nolint: errcheck
		}
	}()

	if m.fc, err = astiav.AllocOutputFormatContext(nil, "", path); err != nil {
		return nil, fmt.Errorf("ffmpeg: allocating output format context failed: %w", err)
	}
	if m.fc == nil {
		return nil, errors.New("ffmpeg: output format context is nil")
	}
	m.c.Add(m.fc.Free)

	for _, s := range streams {
		cp, ok := s.Params.(*astiav.CodecParameters)
		if !ok || cp == nil {
			return nil, fmt.Errorf("ffmpeg: stream %d has no codec parameters: %w", s.Index, media.ErrUnsupported)
		}
		st := m.fc.NewStream(nil)
		if st == nil {
			return nil, errors.New("ffmpeg: failed to create output stream")
		}
		if err = cp.Copy(st.CodecParameters()); err != nil {
			return nil, fmt.Errorf("ffmpeg: copying codec parameters failed: %w", err)
		}
		st.CodecParameters().SetCodecTag(0)
		st.SetTimeBase(astiav.NewRational(s.TimeBase.Num, s.TimeBase.Den))
		m.ss = append(m.ss, st)
	}

	if !m.fc.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		var pb *astiav.IOContext
		if pb, err = astiav.OpenIOContext(path, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, nil); err != nil {
			return nil, fmt.Errorf("ffmpeg: opening io context failed: %w", err)
		}
		m.c.AddWithError(pb.Close)
		m.fc.SetPb(pb)
	}

	if err = m.fc.WriteHeader(nil); err != nil {
		return nil, fmt.Errorf("ffmpeg: writing header failed: %w", err)
	}
	m.c.AddWithError(func() error {
		if err := m.fc.WriteTrailer(); err != nil {
			return fmt.Errorf("ffmpeg: writing trailer failed: %w", err)
		}
		return nil
	})

	if m.pkt = astiav.AllocPacket(); m.pkt == nil {
		return nil, errors.New("ffmpeg: failed to allocate packet")
	}
	m.c.Add(m.pkt.Free)
	return m, nil
}

// TimeBase returns the timebase the muxer picked for an output stream
func (m *Muxer) TimeBase(outIndex int) media.Rational {
	return rational(m.ss[outIndex].TimeBase())
}

// WritePacket writes pkt, whose timestamps are already in TimeBase(outIndex)
func (m *Muxer) WritePacket(outIndex int, pkt *media.Packet) error {
	defer m.pkt.Unref()
	if err := m.pkt.FromData(pkt.Data); err != nil {
		return fmt.Errorf("ffmpeg: copying packet failed: %w", err)
	}
	m.pkt.SetStreamIndex(m.ss[outIndex].Index())
	m.pkt.SetPts(pkt.PTS)
	m.pkt.SetDts(pkt.DTS)
	m.pkt.SetDuration(pkt.Duration)
	m.pkt.SetPos(-1)
	if pkt.Key {
		m.pkt.SetFlags(m.pkt.Flags().Add(astiav.PacketFlagKey))
	}
	if err := m.fc.WriteInterleavedFrame(m.pkt); err != nil {
		return fmt.Errorf("ffmpeg: writing interleaved frame failed: %w", err)
	}
	return nil
}

// Close writes the trailer and releases the output
func (m *Muxer) Close() error {
	return m.c.Close()
}
