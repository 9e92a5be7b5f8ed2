package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/njyeung/avsync/buffering"
	"github.com/njyeung/avsync/clock"
	"github.com/njyeung/avsync/decoder"
	"github.com/njyeung/avsync/media"
	"github.com/njyeung/avsync/queue"
	"github.com/njyeung/avsync/recorder"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// component is one opened stream
type component struct {
	info   media.StreamInfo
	dec    *decoder.Decoder
	fq     *queue.FrameQueue
	opened time.Time
}

type selectRequest struct {
	index    int
	selected bool
	done     chan error
}

// session is the state of one opened input
type session struct {
	o   Options
	l   logrus.FieldLogger
	e   *astikit.EventManager
	rec *recorder.Recorder
	uri string

	src              media.Source
	info             media.SourceInfo
	realtime         bool
	infiniteBuffer   bool
	seekByBytes      bool
	maxFrameDuration float64

	pool   *queue.Pool
	audioq *queue.PacketQueue
	videoq *queue.PacketQueue
	subq   *queue.PacketQueue
	pictq  *queue.FrameQueue
	subpq  *queue.FrameQueue
	sampq  *queue.FrameQueue

	vidclk *clock.Clock
	audclk *clock.Clock
	extclk *clock.Clock

	cm         sync.RWMutex // Locks audio, video and sub
	audio      *component
	video      *component
	sub        *component
	lastIndex  map[media.Kind]int
	indicator  atomic.Pointer[queue.PacketQueue]
	keyFrameOK atomic.Bool

	abort            atomic.Bool
	eof              atomic.Bool
	paused           atomic.Bool
	step             atomic.Bool
	forceRefresh     atomic.Bool
	queueAttachments atomic.Bool
	lastErr          atomic.Pointer[error]

	pm         sync.Mutex // Locks pauseReq and autoResume
	pauseReq   bool
	autoResume bool
	buf        *buffering.Controller

	sm        sync.Mutex // Locks the seek request
	seekReq   bool
	seekPos   int64
	seekRel   int64
	seekBytes bool

	wake    chan struct{}
	selects chan selectRequest

	loop   atomic.Int32
	rate   atomicFloat
	volume atomicFloat
	muted  atomic.Bool

	frameTimer atomicFloat
	aud        audioState
	st         statistics

	// Owned by the presentation goroutine
	surfaceW, surfaceH int
	surfaceFormat      media.PixelFormat
	shownSub           *media.Subtitle
	videoRendered      bool

	// Owned by the video decode goroutine
	frameDropsContinuous int
	picW, picH           int
	picSAR               media.Rational

	g      *errgroup.Group
	cancel context.CancelFunc
	done   chan struct{}
	closer *astikit.Closer
	once   sync.Once
}

func newSession(o Options, e *astikit.EventManager, rec *recorder.Recorder, uri string) *session {
	s := &session{
		o:         o,
		l:         o.Logger.WithField("uri", uri),
		e:         e,
		rec:       rec,
		uri:       uri,
		pool:      queue.NewPool(),
		lastIndex: make(map[media.Kind]int),
		buf:       buffering.New(o.Marks),
		wake:      make(chan struct{}, 1),
		selects:   make(chan selectRequest),
		done:      make(chan struct{}),
		closer:    astikit.NewCloser(),
	}
	s.audioq = queue.NewPacketQueue(s.pool)
	s.videoq = queue.NewPacketQueue(s.pool)
	s.subq = queue.NewPacketQueue(s.pool)
	s.pictq = queue.NewFrameQueue(s.videoq, media.KindVideo, queue.VideoPictureQueueSize, true)
	s.subpq = queue.NewFrameQueue(s.subq, media.KindSubtitle, queue.SubPictureQueueSize, false)
	s.sampq = queue.NewFrameQueue(s.audioq, media.KindAudio, queue.SampleQueueSize, true)

	s.vidclk = clock.New(s.videoq.Serial)
	s.audclk = clock.New(s.audioq.Serial)
	s.extclk = clock.New(nil)
	s.vidclk.SetSpeed(o.Rate)
	s.audclk.SetSpeed(o.Rate)
	s.extclk.SetSpeed(o.Rate)

	s.loop.Store(int32(o.Loop))
	s.rate.Store(o.Rate)
	s.volume.Store(o.Volume)
	s.aud.clock = math.NaN()
	s.aud.serial = -1
	s.st.init()

	s.closer.Add(func() {
		s.audioq.Destroy()
		s.videoq.Destroy()
		s.subq.Destroy()
		s.pictq.Destroy()
		s.subpq.Destroy()
		s.sampq.Destroy()
	})
	return s
}

// open opens the source, picks and opens the streams. Nothing runs yet
func (s *session) open(ctx context.Context) (err error) {
	s.emit(EventOpenInput, s.uri)
	src, err := s.o.Opener.Open(ctx, s.uri, s.o.FormatOptions)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	s.src = src
	s.closer.Add(func() {
		if err := s.src.Close(); err != nil {
			s.l.WithError(err).Warn("closing source failed")
		}
	})

	s.emit(EventFindStreamInfo, s.uri)
	s.info = s.src.Info()
	s.l.WithFields(logrus.Fields{
		"format":  s.info.FormatName,
		"streams": len(s.info.Streams),
	}).Debug("input opened")

	switch s.o.SeekByBytes {
	case 0:
		s.seekByBytes = false
	case 1:
		s.seekByBytes = true
	default:
		s.seekByBytes = s.info.SeekByBytes
	}
	s.maxFrameDuration = clock.MaxFrameDurationDefault
	if s.info.TSDiscont {
		s.maxFrameDuration = clock.MaxFrameDurationDiscont
	}

	if s.o.StartTime > 0 {
		ts := s.o.StartTime.Microseconds()
		if s.info.StartTime != media.NoPTS {
			ts += s.info.StartTime
		}
		if err := s.src.Seek(math.MinInt64, ts, ts, false); err != nil {
			s.l.WithError(err).WithField("start", s.o.StartTime).Warn("could not seek to start position")
		}
	}

	s.realtime = isRealtime(s.info.FormatName, s.uri)
	s.infiniteBuffer = s.o.InfiniteBuffer > 0 || (s.o.InfiniteBuffer < 0 && s.realtime)

	wanted := map[media.Kind]bool{
		media.KindAudio:    !s.o.DisableAudio,
		media.KindVideo:    !s.o.DisableVideo,
		media.KindSubtitle: !s.o.DisableSubtitle,
	}
	for _, k := range []media.Kind{media.KindAudio, media.KindVideo, media.KindSubtitle} {
		if !wanted[k] {
			continue
		}
		idx := s.info.BestStream(k)
		if idx < 0 {
			continue
		}
		if err := s.openComponent(idx); err != nil {
			s.l.WithError(err).WithField("stream", idx).Warn("could not open stream")
		}
	}

	if !s.hasAudio() && !s.hasVideo() {
		return fmt.Errorf("failed to open %s: %w", s.uri, media.ErrNoStreams)
	}

	s.rec.Track(s.info.Streams)
	return nil
}

// run starts the reader and the presentation loop
func (s *session) run(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.g, ctx = errgroup.WithContext(ctx)
	s.g.Go(func() error {
		defer close(s.done)
		return s.read(ctx)
	})
	s.g.Go(func() error {
		return s.refresh(ctx)
	})
}

// close tears the session down: queues abort, the reader is joined, components are
// closed, then the presentation loop is joined and the queues are released
func (s *session) close() (err error) {
	s.once.Do(func() {
		s.abort.Store(true)
		s.audioq.Abort()
		s.videoq.Abort()
		s.subq.Abort()
		if s.src != nil {
			s.src.Interrupt()
		}
		s.signal()
		if s.cancel != nil {
			s.cancel()
		}
		if s.g != nil {
			<-s.done
		}

		if s.rec.Recording() {
			if rerr := s.rec.Stop(); rerr != nil {
				s.l.WithError(rerr).Warn("stopping recorder failed")
			}
		}

		for _, k := range []media.Kind{media.KindAudio, media.KindVideo, media.KindSubtitle} {
			s.closeComponent(k)
		}

		if s.g != nil {
			if werr := s.g.Wait(); werr != nil && !errors.Is(werr, context.Canceled) && !errors.Is(werr, media.ErrAborted) {
				err = werr
			}
		}
		s.closer.Close() //nolint: errcheck
	})
	return
}

func (s *session) component(k media.Kind) *component {
	s.cm.RLock()
	defer s.cm.RUnlock()
	switch k {
	case media.KindAudio:
		return s.audio
	case media.KindVideo:
		return s.video
	case media.KindSubtitle:
		return s.sub
	}
	return nil
}

func (s *session) setComponent(k media.Kind, c *component) {
	s.cm.Lock()
	defer s.cm.Unlock()
	switch k {
	case media.KindAudio:
		s.audio = c
	case media.KindVideo:
		s.video = c
	case media.KindSubtitle:
		s.sub = c
	}
}

func (s *session) hasAudio() bool { return s.component(media.KindAudio) != nil }
func (s *session) hasVideo() bool { return s.component(media.KindVideo) != nil }

// queueFor returns the packet queue of an opened stream index
func (s *session) queueFor(index int) (*queue.PacketQueue, *component) {
	for _, k := range []media.Kind{media.KindAudio, media.KindVideo, media.KindSubtitle} {
		if c := s.component(k); c != nil && c.info.Index == index {
			return s.packetQueue(k), c
		}
	}
	return nil, nil
}

func (s *session) packetQueue(k media.Kind) *queue.PacketQueue {
	switch k {
	case media.KindAudio:
		return s.audioq
	case media.KindVideo:
		return s.videoq
	default:
		return s.subq
	}
}

func (s *session) openComponent(index int) error {
	info, ok := s.info.Stream(index)
	if !ok {
		return fmt.Errorf("no stream %d", index)
	}
	l := s.l.WithFields(logrus.Fields{"stream": index, "kind": info.Kind.String()})

	if info.Kind == media.KindAudio && s.o.Audio == nil {
		return fmt.Errorf("no audio output: %w", media.ErrUnsupported)
	}
	if s.o.Codecs == nil {
		return fmt.Errorf("no codec opener: %w", media.ErrUnsupported)
	}
	codec, err := s.o.Codecs.OpenCodec(info)
	if err != nil {
		return fmt.Errorf("failed to open %s codec: %w", info.CodecName, err)
	}
	s.eof.Store(false)

	c := &component{info: info, opened: time.Now()}
	o := decoder.Options{
		ReorderPTS: s.o.ReorderPTS,
		QueueEmpty: s.signal,
		Logger:     s.o.Logger,
	}

	switch info.Kind {
	case media.KindAudio:
		if err := s.openAudio(info); err != nil {
			codec.Close() //nolint: errcheck
			return err
		}
		if s.o.PacketBuffering {
			o.Starved = s.starved(s.audioq)
		}
		c.fq = s.sampq
		c.dec = decoder.New(info.Kind, codec, s.audioq, o)
		if s.seekByBytes && info.StartTime != media.NoPTS {
			c.dec.SetStartPTS(info.StartTime, info.TimeBase)
		}
		s.setComponent(info.Kind, c)
		c.dec.Start(s.audioThread)
		s.o.Audio.Pause(s.paused.Load())
	case media.KindVideo:
		if s.o.PacketBuffering {
			o.Starved = s.starved(s.videoq)
		}
		s.keyFrameOK.Store(false)
		c.fq = s.pictq
		c.dec = decoder.New(info.Kind, codec, s.videoq, o)
		s.setComponent(info.Kind, c)
		c.dec.Start(s.videoThread)
		s.queueAttachments.Store(true)
		s.emit(EventVideoSizeChanged, VideoSize{Width: info.Width, Height: info.Height})
		if info.AspectRatio.Num > 0 {
			s.emit(EventSARChanged, VideoSize{Width: info.AspectRatio.Num, Height: info.AspectRatio.Den})
		}
	case media.KindSubtitle:
		c.fq = s.subpq
		c.dec = decoder.New(info.Kind, codec, s.subq, o)
		s.setComponent(info.Kind, c)
		c.dec.Start(s.subtitleThread)
	default:
		codec.Close() //nolint: errcheck
		return fmt.Errorf("stream %d: %w", index, media.ErrUnsupported)
	}

	s.lastIndex[info.Kind] = index
	s.updateIndicator()
	l.WithField("codec", info.CodecName).Debug("stream opened")
	s.emit(EventComponentOpen, ComponentOpen{Stream: info})
	return nil
}

func (s *session) closeComponent(k media.Kind) {
	c := s.component(k)
	if c == nil {
		return
	}
	c.dec.Abort(c.fq)
	if k == media.KindAudio && s.o.Audio != nil {
		if err := s.o.Audio.Close(); err != nil {
			s.l.WithError(err).Warn("closing audio output failed")
		}
	}
	if err := c.dec.Destroy(); err != nil {
		s.l.WithError(err).Warn("closing decoder failed")
	}
	s.setComponent(k, nil)
	s.updateIndicator()
}

// updateIndicator picks the queue whose starvation starts buffering
func (s *session) updateIndicator() {
	switch {
	case s.hasAudio():
		s.indicator.Store(s.audioq)
	case s.hasVideo():
		s.indicator.Store(s.videoq)
	default:
		s.indicator.Store(nil)
	}
}

func (s *session) starved(q *queue.PacketQueue) func() {
	return func() {
		if s.indicator.Load() == q {
			s.toggleBuffering(true)
		}
	}
}

// signal wakes the reader
func (s *session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// wait blocks until the reader is woken or d elapsed
func (s *session) wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.wake:
	case <-t.C:
	case <-ctx.Done():
	}
}

func (s *session) emit(name astikit.EventName, payload interface{}) {
	s.e.Emit(name, payload)
}

func (s *session) setLastErr(err error) {
	s.lastErr.Store(&err)
}

func (s *session) getLastErr() error {
	if p := s.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// masterSyncType resolves the master clock. A rate other than 1 slaves audio
func (s *session) masterSyncType() clock.SyncType {
	t := clock.Master(s.o.Sync, s.hasVideo(), s.hasAudio())
	if t == clock.AudioMaster && s.rate.Load() != 1 {
		return clock.ExternalClock
	}
	return t
}

func (s *session) masterClock() float64 {
	switch s.masterSyncType() {
	case clock.VideoMaster:
		return s.vidclk.Get()
	case clock.AudioMaster:
		return s.audclk.Get()
	default:
		return s.extclk.Get()
	}
}

var realtimeFormats = []string{"rtp", "rtsp", "sdp"}

func isRealtime(format, uri string) bool {
	if lo.SomeBy(strings.Split(format, ","), func(f string) bool { return lo.Contains(realtimeFormats, f) }) {
		return true
	}
	return strings.HasPrefix(uri, "rtp:") || strings.HasPrefix(uri, "udp:")
}

// atomicFloat is a float64 with atomic loads and stores
type atomicFloat struct {
	v atomic.Uint64
}

func (f *atomicFloat) Load() float64 {
	return math.Float64frombits(f.v.Load())
}

func (f *atomicFloat) Store(v float64) {
	f.v.Store(math.Float64bits(v))
}

func (f *atomicFloat) Add(d float64) {
	for {
		old := f.v.Load()
		if f.v.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+d)) {
			return
		}
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
