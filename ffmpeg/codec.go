package ffmpeg

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/njyeung/avsync/media"
)

// CodecOptions configures the decoded output
type CodecOptions struct {
	// Pictures are scaled to fit in MaxWidth x MaxHeight, 0 keeps the source size
	MaxWidth  int
	MaxHeight int

	// ThreadCount is handed to FFmpeg, 0 lets it decide
	ThreadCount int
}

// CodecOpener opens Codecs for streams described by a Source. It implements
// media.CodecOpener
type CodecOpener struct {
	o CodecOptions
}

// NewCodecOpener creates a codec opener
func NewCodecOpener(o CodecOptions) *CodecOpener {
	return &CodecOpener{o: o}
}

// OpenCodec opens a decoder for s. Subtitles are not supported
func (o *CodecOpener) OpenCodec(s media.StreamInfo) (media.Codec, error) {
	cp, ok := s.Params.(*astiav.CodecParameters)
	if !ok || cp == nil {
		return nil, fmt.Errorf("ffmpeg: stream %d has no codec parameters: %w", s.Index, media.ErrUnsupported)
	}
	switch s.Kind {
	case media.KindVideo, media.KindAudio:
	default:
		return nil, fmt.Errorf("ffmpeg: %s streams: %w", s.Kind, media.ErrUnsupported)
	}

	c := &Codec{
		info:  s,
		cp:    cp,
		o:     o.o,
		frame: astiav.AllocFrame(),
		out:   astiav.AllocFrame(),
	}
	if err := c.open(); err != nil {
		c.Close() //nolint: errcheck
		return nil, err
	}
	return c, nil
}

// Codec decodes one stream into RGB24 pictures or s16 interleaved samples
type Codec struct {
	info media.StreamInfo
	cp   *astiav.CodecParameters
	o    CodecOptions

	cc    *astiav.CodecContext
	frame *astiav.Frame
	out   *astiav.Frame

	sws                 *astiav.SoftwareScaleContext
	swsW, swsH          int
	swsFormat           astiav.PixelFormat
	dstWidth, dstHeight int
	swr                 *astiav.SoftwareResampleContext

	pkt *astiav.Packet

	mu     sync.Mutex
	closed bool
}

func (c *Codec) open() error {
	codec := astiav.FindDecoder(c.cp.CodecID())
	if codec == nil {
		return fmt.Errorf("ffmpeg: decoder not found for %s: %w", c.cp.CodecID(), media.ErrUnsupported)
	}
	if c.cc = astiav.AllocCodecContext(codec); c.cc == nil {
		return errors.New("ffmpeg: failed to allocate codec context")
	}
	if err := c.cp.ToCodecContext(c.cc); err != nil {
		return fmt.Errorf("ffmpeg: copying codec parameters failed: %w", err)
	}
	if c.o.ThreadCount > 0 {
		c.cc.SetThreadCount(c.o.ThreadCount)
	}
	if err := c.cc.Open(codec, nil); err != nil {
		return fmt.Errorf("ffmpeg: opening codec failed: %w", err)
	}
	return nil
}

// Send feeds one packet, nil enters draining mode
func (c *Codec) Send(pkt *media.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return media.ErrAborted
	}
	if pkt == nil {
		return c.mapErr(c.cc.SendPacket(nil))
	}

	if c.pkt == nil {
		c.pkt = astiav.AllocPacket()
	}
	defer c.pkt.Unref()
	if err := c.pkt.FromData(pkt.Data); err != nil {
		return fmt.Errorf("ffmpeg: copying packet failed: %w", err)
	}
	c.pkt.SetStreamIndex(pkt.StreamIndex)
	c.pkt.SetPts(pkt.PTS)
	c.pkt.SetDts(pkt.DTS)
	c.pkt.SetDuration(pkt.Duration)
	c.pkt.SetPos(pkt.Pos)
	if pkt.Key {
		c.pkt.SetFlags(c.pkt.Flags().Add(astiav.PacketFlagKey))
	}
	return c.mapErr(c.cc.SendPacket(c.pkt))
}

// Receive writes the next decoded frame into f
func (c *Codec) Receive(f *media.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return media.ErrAborted
	}
	if err := c.cc.ReceiveFrame(c.frame); err != nil {
		return c.mapErr(err)
	}
	defer c.frame.Unref()

	f.Kind = c.info.Kind
	f.PTS = c.frame.Pts()
	f.PktDTS = f.PTS
	f.BestEffort = f.PTS
	f.TimeBase = c.info.TimeBase
	f.Pos = -1

	if c.info.Kind == media.KindVideo {
		return c.picture(f)
	}
	return c.samples(f)
}

func (c *Codec) mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, astiav.ErrEagain):
		return media.ErrAgain
	case errors.Is(err, astiav.ErrEof):
		return io.EOF
	}
	return fmt.Errorf("ffmpeg: decoding failed: %w", err)
}

// fit returns the largest size with the source aspect ratio that fits the bounds
func fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 || (maxW <= 0 && maxH <= 0) {
		return w, h
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(h)*scale > float64(maxH) {
		scale = float64(maxH) / float64(h)
	}
	return max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))
}

func (c *Codec) picture(f *media.Frame) error {
	w, h, pf := c.frame.Width(), c.frame.Height(), c.frame.PixelFormat()
	if c.sws == nil || w != c.swsW || h != c.swsH || pf != c.swsFormat {
		if c.sws != nil {
			c.sws.Free()
			c.sws = nil
		}
		c.dstWidth, c.dstHeight = fit(w, h, c.o.MaxWidth, c.o.MaxHeight)
		var err error
		if c.sws, err = astiav.CreateSoftwareScaleContext(
			w, h, pf,
			c.dstWidth, c.dstHeight, astiav.PixelFormatRgb24,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
		); err != nil {
			return fmt.Errorf("ffmpeg: creating sws context failed: %w", err)
		}
		c.swsW, c.swsH, c.swsFormat = w, h, pf
	}

	c.out.Unref()
	c.out.SetWidth(c.dstWidth)
	c.out.SetHeight(c.dstHeight)
	c.out.SetPixelFormat(astiav.PixelFormatRgb24)
	if err := c.out.AllocBuffer(1); err != nil {
		return fmt.Errorf("ffmpeg: allocating RGB buffer failed: %w", err)
	}
	if err := c.sws.ScaleFrame(c.frame, c.out); err != nil {
		return fmt.Errorf("ffmpeg: scaling frame failed: %w", err)
	}
	b, err := c.out.Data().Bytes(1)
	if err != nil {
		return fmt.Errorf("ffmpeg: reading RGB bytes failed: %w", err)
	}

	f.Width = c.dstWidth
	f.Height = c.dstHeight
	f.Format = media.PixelFormatRGB24
	f.Pixels = append(f.Pixels[:0], b...)
	f.AspectRatio = rational(c.frame.SampleAspectRatio())
	return nil
}

func (c *Codec) samples(f *media.Frame) error {
	if c.swr == nil {
		if c.swr = astiav.AllocSoftwareResampleContext(); c.swr == nil {
			return errors.New("ffmpeg: failed to allocate swr context")
		}
	}

	c.out.Unref()
	c.out.SetSampleFormat(astiav.SampleFormatS16)
	c.out.SetSampleRate(c.frame.SampleRate())
	c.out.SetChannelLayout(astiav.ChannelLayoutStereo)
	c.out.SetNbSamples(c.frame.NbSamples())
	if err := c.out.AllocBuffer(0); err != nil {
		return fmt.Errorf("ffmpeg: allocating sample buffer failed: %w", err)
	}
	if err := c.swr.ConvertFrame(c.frame, c.out); err != nil {
		return fmt.Errorf("ffmpeg: resampling frame failed: %w", err)
	}
	b, err := c.out.Data().Bytes(0)
	if err != nil {
		return fmt.Errorf("ffmpeg: reading samples failed: %w", err)
	}

	n := c.out.NbSamples()
	size := min(len(b), n*2*2)
	f.SampleRate = c.out.SampleRate()
	f.Channels = 2
	f.NbSamples = size / 4
	f.Samples = append(f.Samples[:0], b[:size]...)
	return nil
}

// Flush drops the decoder state by reopening it
func (c *Codec) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.cc != nil {
		c.cc.Free()
		c.cc = nil
	}
	if err := c.open(); err != nil {
		// Later calls report the failure
		c.closed = true
	}
}

// Close releases every FFmpeg object
func (c *Codec) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.pkt != nil {
		c.pkt.Free()
		c.pkt = nil
	}
	if c.frame != nil {
		c.frame.Free()
		c.frame = nil
	}
	if c.out != nil {
		c.out.Free()
		c.out = nil
	}
	if c.sws != nil {
		c.sws.Free()
		c.sws = nil
	}
	if c.swr != nil {
		c.swr.Free()
		c.swr = nil
	}
	if c.cc != nil {
		c.cc.Free()
		c.cc = nil
	}
	return nil
}
