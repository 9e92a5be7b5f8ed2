package player

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/njyeung/avsync/clock"
	"github.com/njyeung/avsync/media"
	"github.com/stretchr/testify/require"
)

func TestPlayerNotPrepared(t *testing.T) {
	p := New(DefaultOptions())
	require.ErrorIs(t, p.Start(), ErrNotPrepared)
	require.ErrorIs(t, p.Pause(), ErrNotPrepared)
	require.ErrorIs(t, p.SeekTo(10), ErrNotPrepared)
	require.ErrorIs(t, p.StepFrame(), ErrNotPrepared)
	require.ErrorIs(t, p.SelectStream(context.Background(), 0, true), ErrNotPrepared)
	require.Equal(t, int64(0), p.Position())
	require.Equal(t, int64(0), p.Duration())
	select {
	case <-p.Done():
	default:
		require.Fail(t, "done should be closed without an input")
	}
	require.NoError(t, p.Close())
}

func TestPlayerVideoOnlyCompletes(t *testing.T) {
	src := newFakeSource(10, false)
	r := &fakeRenderer{}
	o := testOptions(src)
	o.Renderer = r
	p := New(o)
	defer p.Close()

	prepared := events(p, EventPrepared)
	rendering := events(p, EventVideoRenderingStart)
	completed := events(p, EventCompleted)

	require.NoError(t, p.Prepare(context.Background(), "fake://video"))
	pl := waitFor(t, prepared).(Prepared)
	require.Equal(t, int64(400), pl.DurationMs)
	require.Equal(t, int64(400), p.Duration())

	waitFor(t, rendering)
	waitFor(t, completed)

	require.Equal(t, int32(1), r.negotiated.Load())
	require.GreaterOrEqual(t, r.presented.Load(), int32(1))
	require.True(t, p.IsPaused())

	st := p.Stats()
	require.Equal(t, clock.ExternalClock, st.Master)
	require.Zero(t, st.FrameDropsLate)

	require.NoError(t, p.Stop())
	require.True(t, src.closed)
	require.True(t, src.interrupted)
}

func TestPlayerAudioVideoCompletes(t *testing.T) {
	src := newFakeSource(25, true)
	a := &fakeAudio{}
	o := testOptions(src)
	o.Renderer = &fakeRenderer{}
	o.Audio = a
	p := New(o)
	defer p.Close()

	audioRendering := events(p, EventAudioRenderingStart)
	completed := events(p, EventCompleted)

	require.NoError(t, p.Prepare(context.Background(), "fake://av"))
	require.Equal(t, clock.AudioMaster, p.Stats().Master)
	waitFor(t, audioRendering)
	waitFor(t, completed)
	require.True(t, a.paused.Load())
}

func TestPlayerStartOnPrepared(t *testing.T) {
	src := newFakeSource(200, false)
	o := testOptions(src)
	o.StartOnPrepared = false
	p := New(o)
	defer p.Close()

	require.NoError(t, p.Prepare(context.Background(), "fake://video"))
	require.True(t, p.IsPaused())
	require.NoError(t, p.Start())
	require.False(t, p.IsPaused())
	require.NoError(t, p.Pause())
	require.True(t, p.IsPaused())
}

func TestPlayerSeek(t *testing.T) {
	src := newFakeSource(50, false)
	o := testOptions(src)
	o.StartOnPrepared = false
	p := New(o)
	defer p.Close()

	seeked := events(p, EventSeekComplete)
	require.NoError(t, p.Prepare(context.Background(), "fake://video"))
	require.Error(t, p.SeekTo(-1))
	require.NoError(t, p.SeekTo(1200))

	sc := waitFor(t, seeked).(SeekComplete)
	require.NoError(t, sc.Err)
	require.Equal(t, []int64{1200000}, src.seekTargets())
}

func TestPlayerSeekAtStart(t *testing.T) {
	src := newFakeSource(50, false)
	o := testOptions(src)
	o.SeekAtStart = 800 * time.Millisecond
	p := New(o)
	defer p.Close()

	seeked := events(p, EventSeekComplete)
	require.NoError(t, p.Prepare(context.Background(), "fake://video"))
	waitFor(t, seeked)
	require.Equal(t, []int64{800000}, src.seekTargets())
}

func TestPlayerNoStreams(t *testing.T) {
	src := newFakeSource(1, false)
	src.info.Streams[0].Kind = media.KindSubtitle
	o := testOptions(src)
	o.Codecs = media.CodecOpenerFunc(func(s media.StreamInfo) (media.Codec, error) {
		return nil, media.ErrUnsupported
	})
	p := New(o)
	err := p.Prepare(context.Background(), "fake://sub")
	require.ErrorIs(t, err, media.ErrNoStreams)
	require.True(t, src.closed)
}

func TestPlayerOpenError(t *testing.T) {
	o := testOptions(nil)
	o.Opener = media.OpenerFunc(func(ctx context.Context, uri string, options map[string]string) (media.Source, error) {
		return nil, errors.New("boom")
	})
	p := New(o)
	err := p.Prepare(context.Background(), "fake://broken")
	require.EqualError(t, err, "failed to open input: boom")
}

func TestPlayerOpenReturnsNilSource(t *testing.T) {
	o := testOptions(nil)
	o.Opener = media.OpenerFunc(func(ctx context.Context, uri string, options map[string]string) (media.Source, error) {
		var src *fakeSource
		return src, errors.New("no such file")
	})
	p := New(o)

	var err error
	require.NotPanics(t, func() { err = p.Prepare(context.Background(), "fake://missing") })
	require.EqualError(t, err, "failed to open input: no such file")
}

func TestPlayerRate(t *testing.T) {
	src := newFakeSource(10, false)
	o := testOptions(src)
	o.Rate = 2
	o.StartOnPrepared = false
	p := New(o)
	defer p.Close()

	speeds := func() []float64 {
		var v []float64
		p.withSession(func(s *session) {
			v = []float64{s.vidclk.Speed(), s.audclk.Speed(), s.extclk.Speed()}
		})
		return v
	}

	require.NoError(t, p.Prepare(context.Background(), "fake://video"))
	require.Equal(t, []float64{2, 2, 2}, speeds())

	require.NoError(t, p.SetPlaybackRate(0.5))
	require.NoError(t, p.Prepare(context.Background(), "fake://video"))
	require.Equal(t, []float64{0.5, 0.5, 0.5}, speeds())
}

func TestPlayerOn(t *testing.T) {
	p := New(DefaultOptions())
	var n int
	p.On(EventCompleted, func(payload interface{}) (delete bool) {
		n++
		return true
	})
	p.e.Emit(EventCompleted, nil)
	p.e.Emit(EventCompleted, nil)
	require.Equal(t, 1, n)
}

func TestPlayerStopOrder(t *testing.T) {
	src := newFakeSource(200, false)
	o := testOptions(src)

	var (
		mu          sync.Mutex
		readerDone  <-chan struct{}
		codecClosed atomic.Bool
		afterReader atomic.Bool
	)
	o.Codecs = media.CodecOpenerFunc(func(s media.StreamInfo) (media.Codec, error) {
		return &fakeCodec{info: s, onClose: func() {
			codecClosed.Store(true)
			mu.Lock()
			done := readerDone
			mu.Unlock()
			select {
			case <-done:
				afterReader.Store(true)
			default:
			}
		}}, nil
	})
	p := New(o)

	require.NoError(t, p.Prepare(context.Background(), "fake://video"))
	mu.Lock()
	readerDone = p.Done()
	mu.Unlock()

	require.NoError(t, p.Stop())
	require.True(t, codecClosed.Load())
	require.True(t, afterReader.Load())
	require.True(t, src.closed)
}

func TestPlayerAutoExit(t *testing.T) {
	src := newFakeSource(5, false)
	o := testOptions(src)
	o.AutoExit = true
	p := New(o)
	defer p.Close()

	require.NoError(t, p.Prepare(context.Background(), "fake://video"))
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		require.FailNow(t, "reader did not exit")
	}
}

func TestPlayerLoop(t *testing.T) {
	src := newFakeSource(5, false)
	o := testOptions(src)
	o.Loop = 2
	p := New(o)
	defer p.Close()

	completed := events(p, EventCompleted)
	require.NoError(t, p.Prepare(context.Background(), "fake://video"))
	waitFor(t, completed)
	require.Equal(t, []int64{0}, src.seekTargets())
}

func TestPlayerSelectStream(t *testing.T) {
	src := newFakeSource(50, true)
	o := testOptions(src)
	o.Audio = &fakeAudio{}
	o.StartOnPrepared = false
	p := New(o)
	defer p.Close()

	opened := events(p, EventComponentOpen)
	require.NoError(t, p.Prepare(context.Background(), "fake://av"))
	for i := 0; i < 2; i++ {
		waitFor(t, opened)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.SelectStream(ctx, 1, false))
	require.Equal(t, clock.ExternalClock, p.Stats().Master)
	require.NoError(t, p.SelectStream(ctx, 1, true))
	require.Equal(t, clock.AudioMaster, p.Stats().Master)
	require.Error(t, p.SelectStream(ctx, 7, true))
}

func TestPlayerSettings(t *testing.T) {
	src := newFakeSource(10, false)
	p := New(testOptions(src))
	defer p.Close()

	require.Error(t, p.SetPlaybackRate(0))
	p.SetMute(true)
	require.True(t, p.IsMuted())

	require.NoError(t, p.Prepare(context.Background(), "fake://video"))
	require.NoError(t, p.SetPlaybackRate(2))
	p.withSession(func(s *session) {
		require.True(t, s.muted.Load())
		require.Equal(t, 2.0, s.rate.Load())
		require.Equal(t, 2.0, s.vidclk.Speed())
	})
	p.SetVolume(-1)
	p.withSession(func(s *session) {
		require.Equal(t, 0.0, s.volume.Load())
	})
	p.SetLoop(0)
	p.withSession(func(s *session) {
		require.Equal(t, int32(0), s.loop.Load())
	})
}

func TestPlayerRecordNeedsInput(t *testing.T) {
	p := New(DefaultOptions())
	require.ErrorIs(t, p.StartRecord("out.mkv"), ErrNotPrepared)
}
