// Package recorder tees demuxed packets into an output file without re-encoding
package recorder

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/njyeung/avsync/media"
	"github.com/sirupsen/logrus"
)

// DefaultCacheSize bounds the packets kept since the last video keyframe
const DefaultCacheSize = 250

var ErrNotRecording = errors.New("recorder: not recording")

// Sink receives rebased packets for one output file. OutIndex is the position of the stream in
// the slice given to the Opener
type Sink interface {
	TimeBase(outIndex int) media.Rational
	WritePacket(outIndex int, pkt *media.Packet) error
	Close() error
}

// Opener creates a sink for path with one output stream per entry of streams
type Opener interface {
	OpenSink(path string, streams []media.StreamInfo) (Sink, error)
}

// OpenerFunc adapts a function to the Opener interface
type OpenerFunc func(path string, streams []media.StreamInfo) (Sink, error)

func (f OpenerFunc) OpenSink(path string, streams []media.StreamInfo) (Sink, error) {
	return f(path, streams)
}

// Options configures a recorder
type Options struct {
	Opener    Opener
	CacheSize int
	Logger    logrus.FieldLogger
}

type track struct {
	info     media.StreamInfo
	out      int
	firstPTS int64
	firstDTS int64
}

func (t *track) reset() {
	t.firstPTS = media.NoPTS
	t.firstDTS = media.NoPTS
}

// Recorder keeps a cache that always starts on a video keyframe so a recording can begin
// immediately, and rebases every stream to start at zero
type Recorder struct {
	m      sync.Mutex
	o      Options
	l      logrus.FieldLogger
	tracks map[int]*track
	order  []media.StreamInfo
	video  int

	cache []*media.Packet

	path    string
	started bool
	sink    Sink
	written int
	err     error
}

// New creates a recorder
func New(o Options) *Recorder {
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}
	l := o.Logger
	if l == nil {
		l = discardLogger()
	}
	return &Recorder{
		o:      o,
		l:      l.WithField("component", "recorder"),
		tracks: make(map[int]*track),
		video:  -1,
	}
}

// Track selects the streams to record. Only audio and video streams are kept
func (r *Recorder) Track(streams []media.StreamInfo) {
	r.m.Lock()
	defer r.m.Unlock()

	r.tracks = make(map[int]*track)
	r.order = r.order[:0]
	r.video = -1
	for _, s := range streams {
		if s.Kind != media.KindVideo && s.Kind != media.KindAudio {
			continue
		}
		if s.Kind == media.KindVideo {
			if r.video >= 0 || s.AttachedPic != nil {
				continue
			}
			r.video = s.Index
		}
		t := &track{info: s, out: len(r.order)}
		t.reset()
		r.tracks[s.Index] = t
		r.order = append(r.order, s)
	}
	r.cache = r.cache[:0]
}

// Recording reports whether a recording was started
func (r *Recorder) Recording() bool {
	r.m.Lock()
	defer r.m.Unlock()
	return r.started
}

// Written returns the number of packets written to the current sink
func (r *Recorder) Written() int {
	r.m.Lock()
	defer r.m.Unlock()
	return r.written
}

// Start begins recording into path. The sink is opened with the next packet
func (r *Recorder) Start(path string) error {
	r.m.Lock()
	defer r.m.Unlock()

	if r.o.Opener == nil {
		return fmt.Errorf("recorder: no sink opener: %w", media.ErrUnsupported)
	}
	if len(r.order) == 0 {
		return fmt.Errorf("recorder: %w", media.ErrNoStreams)
	}
	if r.started {
		_ = r.closeSink()
	}
	r.path = path
	r.started = true
	r.written = 0
	r.err = nil
	return nil
}

// Stop ends the recording and returns the first write error, if any
func (r *Recorder) Stop() error {
	r.m.Lock()
	defer r.m.Unlock()

	if !r.started {
		return ErrNotRecording
	}
	r.started = false
	err := r.closeSink()
	if r.err != nil {
		err = errors.Join(r.err, err)
	}
	r.err = nil
	return err
}

// Write offers one demuxed packet. Errors are latched and reported by Stop
func (r *Recorder) Write(pkt *media.Packet) {
	r.m.Lock()
	defer r.m.Unlock()

	t, ok := r.tracks[pkt.StreamIndex]
	if !ok || len(pkt.Data) == 0 {
		return
	}

	r.cacheLocked(pkt, t)

	if !r.started || r.err != nil {
		return
	}

	if r.sink == nil {
		if r.video >= 0 && len(r.cache) == 0 {
			// wait for a keyframe
			return
		}
		sink, err := r.o.Opener.OpenSink(r.path, r.order)
		if err != nil {
			r.err = fmt.Errorf("recorder: opening %s failed: %w", r.path, err)
			r.l.WithError(err).Error("opening sink failed")
			return
		}
		r.sink = sink
		r.l.WithField("path", r.path).Info("recording started")

		if r.video >= 0 {
			for _, p := range r.cache {
				if !r.writeLocked(p) {
					return
				}
			}
			return
		}
	}

	r.writeLocked(pkt)
}

// cacheLocked keeps the packets since the last video keyframe
func (r *Recorder) cacheLocked(pkt *media.Packet, t *track) {
	if r.video < 0 {
		return
	}
	switch {
	case t.info.Index == r.video && pkt.Key:
		r.cache = r.cache[:0]
	case len(r.cache) == 0:
		return
	case len(r.cache) == r.o.CacheSize:
		r.l.Warn("keyframe interval exceeds record cache, dropping cache")
		r.cache = r.cache[:0]
		return
	}
	r.cache = append(r.cache, pkt.Clone())
}

func (r *Recorder) writeLocked(pkt *media.Packet) bool {
	t := r.tracks[pkt.StreamIndex]
	if t.firstPTS == media.NoPTS {
		t.firstPTS = pkt.PTS
	}
	if t.firstDTS == media.NoPTS {
		t.firstDTS = pkt.DTS
	}

	tb := r.sink.TimeBase(t.out)
	out := &media.Packet{
		StreamIndex: t.out,
		Data:        pkt.Data,
		PTS:         rebase(pkt.PTS, t.firstPTS, t.info.TimeBase, tb),
		DTS:         rebase(pkt.DTS, t.firstDTS, t.info.TimeBase, tb),
		Duration:    media.RescaleQ(pkt.Duration, t.info.TimeBase, tb),
		Pos:         -1,
		Key:         pkt.Key,
	}
	if err := r.sink.WritePacket(t.out, out); err != nil {
		r.err = fmt.Errorf("recorder: writing packet failed: %w", err)
		r.l.WithError(err).WithField("stream", pkt.StreamIndex).Error("writing packet failed")
		return false
	}
	r.written++
	return true
}

func (r *Recorder) closeSink() error {
	for _, t := range r.tracks {
		t.reset()
	}
	if r.sink == nil {
		return nil
	}
	err := r.sink.Close()
	r.sink = nil
	r.l.WithField("path", r.path).Info("recording stopped")
	if err != nil {
		return fmt.Errorf("recorder: closing sink failed: %w", err)
	}
	return nil
}

func rebase(ts, first int64, from, to media.Rational) int64 {
	if ts == media.NoPTS || first == media.NoPTS {
		return media.NoPTS
	}
	return media.RescaleQ(ts-first, from, to)
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
