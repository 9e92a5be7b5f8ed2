package player

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/njyeung/avsync/media"
	"github.com/njyeung/avsync/recorder"
	"github.com/stretchr/testify/require"
)

var msTimeBase = media.Rational{Num: 1, Den: 1000}

type fakeSource struct {
	mu          sync.Mutex
	info        media.SourceInfo
	packets     []media.Packet
	idx         int
	seeks       []int64
	interrupted bool
	closed      bool

	// err is returned instead of io.EOF once every packet was read
	err error
}

// newFakeSource builds an input of n video frames at 25 fps and, when withAudio is set,
// one 100ms audio chunk for every 100ms of video
func newFakeSource(n int, withAudio bool) *fakeSource {
	s := &fakeSource{info: media.SourceInfo{
		FormatName: "fake",
		Duration:   int64(n) * 40000,
		StartTime:  0,
		Streams: []media.StreamInfo{{
			Index:     0,
			Kind:      media.KindVideo,
			CodecName: "rawvideo",
			TimeBase:  msTimeBase,
			StartTime: 0,
			FrameRate: media.Rational{Num: 25, Den: 1},
			Width:     4,
			Height:    2,
		}},
	}}
	if withAudio {
		s.info.Streams = append(s.info.Streams, media.StreamInfo{
			Index:      1,
			Kind:       media.KindAudio,
			CodecName:  "pcm_s16le",
			TimeBase:   msTimeBase,
			StartTime:  0,
			SampleRate: 8000,
			Channels:   1,
		})
	}
	for i := 0; i < n; i++ {
		pts := int64(i) * 40
		s.packets = append(s.packets, media.Packet{StreamIndex: 0, Data: []byte{1}, PTS: pts, DTS: pts, Duration: 40, Key: true, Pos: -1})
		if withAudio && pts%100 == 0 {
			s.packets = append(s.packets, media.Packet{StreamIndex: 1, Data: []byte{1}, PTS: pts, DTS: pts, Duration: 100, Key: true, Pos: -1})
		}
	}
	return s
}

func (s *fakeSource) Info() media.SourceInfo { return s.info }

func (s *fakeSource) ReadPacket(pkt *media.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interrupted {
		return io.EOF
	}
	if s.idx >= len(s.packets) {
		if s.err != nil {
			return s.err
		}
		return io.EOF
	}
	p := s.packets[s.idx]
	s.idx++
	pkt.StreamIndex = p.StreamIndex
	pkt.Data = append(pkt.Data[:0], p.Data...)
	pkt.PTS, pkt.DTS, pkt.Duration = p.PTS, p.DTS, p.Duration
	pkt.Pos, pkt.Key = p.Pos, p.Key
	pkt.Discontinuity = p.Discontinuity
	return nil
}

func (s *fakeSource) Seek(min, target, max int64, byBytes bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeks = append(s.seeks, target)
	s.idx = len(s.packets)
	for i, p := range s.packets {
		if p.PTS*1000 >= target {
			s.idx = i
			break
		}
	}
	return nil
}

func (s *fakeSource) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupted = true
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) read() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx
}

func (s *fakeSource) seekTargets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.seeks...)
}

// fakeCodec turns every packet into one frame of its stream kind
type fakeCodec struct {
	mu       sync.Mutex
	info     media.StreamInfo
	pending  []media.Frame
	draining bool
	sent     int
	onClose  func()
}

func (c *fakeCodec) Send(pkt *media.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pkt == nil {
		c.draining = true
		return nil
	}
	c.sent++
	f := media.Frame{
		Kind:       c.info.Kind,
		PTS:        pkt.PTS,
		PktDTS:     pkt.DTS,
		BestEffort: pkt.PTS,
		TimeBase:   c.info.TimeBase,
		Pos:        pkt.Pos,
	}
	switch c.info.Kind {
	case media.KindVideo:
		f.Width, f.Height = c.info.Width, c.info.Height
		f.Format = media.PixelFormatRGB24
		f.Pixels = make([]byte, f.Width*f.Height*3)
	case media.KindAudio:
		f.SampleRate, f.Channels = c.info.SampleRate, c.info.Channels
		f.NbSamples = c.info.SampleRate / 10
		f.Samples = make([]byte, f.NbSamples*f.Channels*2)
	}
	c.pending = append(c.pending, f)
	return nil
}

func (c *fakeCodec) Receive(f *media.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		if c.draining {
			return io.EOF
		}
		return media.ErrAgain
	}
	*f = c.pending[0]
	c.pending = c.pending[1:]
	return nil
}

func (c *fakeCodec) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	c.draining = false
}

func (c *fakeCodec) Close() error {
	if c.onClose != nil {
		c.onClose()
	}
	return nil
}

func (c *fakeCodec) packets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

type fakeRenderer struct {
	negotiated atomic.Int32
	uploaded   atomic.Int32
	presented  atomic.Int32
}

func (r *fakeRenderer) Negotiate(width, height int, format media.PixelFormat) error {
	r.negotiated.Add(1)
	return nil
}

func (r *fakeRenderer) Upload(f *media.Frame, sub *media.Subtitle) error {
	r.uploaded.Add(1)
	return nil
}

func (r *fakeRenderer) Present() error {
	r.presented.Add(1)
	return nil
}

// fakeAudio pulls from the fill callback much faster than real time
type fakeAudio struct {
	paused  atomic.Bool
	flushes atomic.Int32
	spec    media.AudioSpec
	stop    chan struct{}
	done    chan struct{}
}

func (a *fakeAudio) Open(wanted media.AudioSpec, fill media.FillFunc) (media.AudioSpec, error) {
	a.spec = wanted
	a.paused.Store(true)
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		buf := make([]byte, wanted.BufferSize())
		t := time.NewTicker(5 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-a.stop:
				return
			case <-t.C:
				if !a.paused.Load() {
					fill(buf)
				}
			}
		}
	}()
	return wanted, nil
}

func (a *fakeAudio) Pause(paused bool) { a.paused.Store(paused) }
func (a *fakeAudio) Flush()            { a.flushes.Add(1) }
func (a *fakeAudio) Latency() float64  { return 0 }

func (a *fakeAudio) Close() error {
	if a.stop != nil {
		close(a.stop)
		<-a.done
		a.stop = nil
	}
	return nil
}

func testOptions(src media.Source) Options {
	o := DefaultOptions()
	o.Opener = media.OpenerFunc(func(ctx context.Context, uri string, options map[string]string) (media.Source, error) {
		return src, nil
	})
	o.Codecs = media.CodecOpenerFunc(func(s media.StreamInfo) (media.Codec, error) {
		return &fakeCodec{info: s}, nil
	})
	o.FrameDrop = 0
	o.PacketBuffering = false
	return o
}

// events captures the payloads of an event
func events(p *Player, name astikit.EventName) chan interface{} {
	return capture(p.e, name)
}

func capture(e *astikit.EventManager, name astikit.EventName) chan interface{} {
	ch := make(chan interface{}, 64)
	e.On(name, func(payload interface{}) (delete bool) {
		select {
		case ch <- payload:
		default:
		}
		return false
	})
	return ch
}

func waitFor(t *testing.T, ch chan interface{}) interface{} {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for event")
	}
	return nil
}

// openSession opens a session on src without running its reader and presentation loop
func openSession(t *testing.T, o Options) *session {
	t.Helper()
	o = o.normalized()
	s := newSession(o, astikit.NewEventManager(), recorder.New(recorder.Options{Logger: o.Logger}), "fake://session")
	require.NoError(t, s.open(context.Background()))
	t.Cleanup(func() { s.close() }) //nolint: errcheck
	return s
}

// idle waits for the reader to reach the end of the input with buffering over
func idle(t *testing.T, p *Player) {
	t.Helper()
	require.Eventually(t, func() (ok bool) {
		p.withSession(func(s *session) { ok = s.eof.Load() && !s.buf.Buffering() })
		return
	}, 5*time.Second, 5*time.Millisecond)
}
