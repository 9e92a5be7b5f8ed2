package player

import (
	"context"
	"errors"
	"io"
	"math"
	"time"

	"github.com/njyeung/avsync/media"
	"github.com/sirupsen/logrus"
)

// read is the demux pump. It owns the source and is the only writer of the packet queues
func (s *session) read(ctx context.Context) error {
	if s.o.SeekAtStart > 0 {
		s.seekTo(s.o.SeekAtStart.Milliseconds())
	}

	var (
		completed bool
		lastCheck time.Time
	)
	for {
		if s.abort.Load() {
			return nil
		}
		s.handleSelects()

		if s.handleSeek() {
			completed = false
		}
		if s.queueAttachments.Swap(false) {
			s.queueAttachedPictures()
		}

		if !s.infiniteBuffer && !s.seekPending() && s.queuesFull() {
			if !s.eof.Load() {
				s.toggleBuffering(false)
			}
			s.wait(ctx, ReadWait)
			continue
		}

		if !s.paused.Load() && s.drained() {
			if loop := s.loop.Load(); loop != 1 && (loop == 0 || s.loop.Add(-1) != 0) {
				s.seekTo(s.o.StartTime.Milliseconds())
			} else if s.o.AutoExit {
				s.l.Debug("playback finished, exiting")
				return nil
			} else if completed {
				for !s.abort.Load() && !s.seekPending() {
					s.wait(ctx, EOFWait)
				}
				continue
			} else {
				completed = true
				s.pm.Lock()
				s.autoResume = false
				s.pm.Unlock()
				s.toggleBuffering(false)
				s.setPauseRequest(true)
				if err := s.getLastErr(); err != nil {
					s.emit(EventError, err)
				} else {
					s.emit(EventCompleted, nil)
				}
			}
		}

		pkt := s.pool.Get(0)
		if err := s.src.ReadPacket(pkt); err != nil {
			s.pool.Put(pkt)
			if s.abort.Load() {
				return nil
			}
			transport := media.IsTransport(err)
			if errors.Is(err, io.EOF) || transport {
				if !s.eof.Load() {
					s.putNullPackets()
					s.eof.Store(true)
					s.l.WithError(err).Debug("end of input")
				}
				if transport {
					s.setLastErr(err)
				}
			} else {
				s.l.WithError(err).Debug("reading packet failed, retrying")
			}
			if s.eof.Load() {
				s.toggleBuffering(false)
				s.wait(ctx, EOFWait)
			}
			s.wait(ctx, ReadWait)
			continue
		}
		s.eof.Store(false)

		if pkt.Discontinuity {
			s.putFlushMarkers()
		}

		s.rec.Write(pkt)
		if s.o.MaxCachedDuration > 0 {
			s.controlQueueDuration()
		}
		s.route(pkt)

		if s.o.PacketBuffering && time.Since(lastCheck) >= BufferingCheckPeriod {
			lastCheck = time.Now()
			s.checkBuffering()
		}
	}
}

// route hands a packet to its stream queue or releases it
func (s *session) route(pkt *media.Packet) {
	q, c := s.queueFor(pkt.StreamIndex)
	switch {
	case q == nil || !s.inPlayRange(pkt, c.info):
	case c.info.Kind == media.KindVideo && c.info.AttachedPic != nil:
	case c.info.Kind == media.KindVideo && !s.keyFrameOK.Load() && !pkt.Key:
	default:
		if c.info.Kind == media.KindVideo {
			s.keyFrameOK.Store(true)
		}
		q.Put(pkt) //nolint: errcheck
		return
	}
	s.pool.Put(pkt)
}

// inPlayRange reports whether pkt starts before the end of the configured play range
func (s *session) inPlayRange(pkt *media.Packet, info media.StreamInfo) bool {
	if s.o.Duration <= 0 {
		return true
	}
	ts := pkt.PTS
	if ts == media.NoPTS {
		ts = pkt.DTS
	}
	if ts == media.NoPTS {
		return true
	}
	start := info.StartTime
	if start == media.NoPTS {
		start = 0
	}
	t := float64(ts-start)*info.TimeBase.Float() - s.o.StartTime.Seconds()
	return t <= s.o.Duration.Seconds()
}

// controlQueueDuration drops the oldest GOPs of the audio queue, or the video queue when
// there is no audio, once it caches more than MaxCachedDuration
func (s *session) controlQueueDuration() {
	k := media.KindAudio
	c := s.component(k)
	if c == nil {
		k = media.KindVideo
		if c = s.component(k); c == nil {
			return
		}
	}
	q := s.packetQueue(k)
	tb := c.info.TimeBase
	if tb.Num <= 0 || tb.Den <= 0 {
		return
	}
	first, last, ok := q.PTSSpan()
	if !ok {
		return
	}
	limit := media.RescaleQ(s.o.MaxCachedDuration.Microseconds(), media.TimeBaseMicro, tb)
	if last-first <= limit {
		return
	}
	if n := q.DropUntil(last - limit); n > 0 {
		s.l.WithFields(logrus.Fields{"kind": k.String(), "dropped": n}).Debug("cached duration exceeded")
	}
}

// queuesFull reports whether reading should wait for the consumers
func (s *session) queuesFull() bool {
	if s.audioq.Size()+s.videoq.Size()+s.subq.Size() > s.o.MaxBufferSize {
		return true
	}
	enough := func(k media.Kind) bool {
		c := s.component(k)
		q := s.packetQueue(k)
		return c == nil || q.Aborted() || c.info.AttachedPic != nil || q.NbPackets() > s.o.MinFrames
	}
	return enough(media.KindAudio) && enough(media.KindVideo) && enough(media.KindSubtitle)
}

// drained reports whether every opened decoder reached the end and was fully presented
func (s *session) drained() bool {
	if c := s.component(media.KindAudio); c != nil {
		if c.dec.Finished() != s.audioq.Serial() || s.sampq.NbRemaining() != 0 {
			return false
		}
	}
	if c := s.component(media.KindVideo); c != nil {
		if c.dec.Finished() != s.videoq.Serial() || s.pictq.NbRemaining() != 0 {
			return false
		}
	}
	return true
}

func (s *session) putNullPackets() {
	for _, k := range []media.Kind{media.KindVideo, media.KindAudio, media.KindSubtitle} {
		if c := s.component(k); c != nil {
			s.packetQueue(k).PutNull(c.info.Index) //nolint: errcheck
		}
	}
}

func (s *session) putFlushMarkers() {
	for _, k := range []media.Kind{media.KindVideo, media.KindAudio, media.KindSubtitle} {
		if s.component(k) != nil {
			s.packetQueue(k).PutFlush() //nolint: errcheck
		}
	}
}

// queueAttachedPictures queues the cover art followed by an end of stream marker
func (s *session) queueAttachedPictures() {
	c := s.component(media.KindVideo)
	if c == nil || c.info.AttachedPic == nil {
		return
	}
	s.videoq.Put(s.pool.Copy(c.info.AttachedPic)) //nolint: errcheck
	s.videoq.PutNull(c.info.Index)                //nolint: errcheck
}

// seekTo requests a seek to ms, relative to the start of the input
func (s *session) seekTo(ms int64) {
	pos := ms * 1000
	if s.info.StartTime != media.NoPTS && s.info.StartTime > 0 {
		pos += s.info.StartTime
	}
	s.requestSeek(pos, 0, false)
}

func (s *session) requestSeek(pos, rel int64, byBytes bool) {
	s.sm.Lock()
	if !s.seekReq {
		s.seekPos = pos
		s.seekRel = rel
		s.seekBytes = byBytes
		s.seekReq = true
	}
	s.sm.Unlock()
	s.signal()
}

func (s *session) seekPending() bool {
	s.sm.Lock()
	defer s.sm.Unlock()
	return s.seekReq
}

// handleSeek executes a pending seek request
func (s *session) handleSeek() bool {
	s.sm.Lock()
	if !s.seekReq {
		s.sm.Unlock()
		return false
	}
	target, rel, byBytes := s.seekPos, s.seekRel, s.seekBytes
	s.sm.Unlock()

	var minTS, maxTS int64 = math.MinInt64, math.MaxInt64
	if rel > 0 {
		minTS = target - rel + 2
	} else if rel < 0 {
		maxTS = target - rel - 2
	}

	s.toggleBuffering(true)
	s.emit(EventBufferingUpdate, BufferingUpdate{})

	l := s.l.WithField("target", target)
	err := s.src.Seek(minTS, target, maxTS, byBytes)
	if err != nil {
		l.WithError(err).Warn("seek failed")
	} else {
		for _, k := range []media.Kind{media.KindAudio, media.KindVideo, media.KindSubtitle} {
			if s.component(k) != nil {
				s.packetQueue(k).Flush()
			}
		}
		if byBytes {
			s.extclk.Set(math.NaN(), 0)
		} else {
			s.extclk.Set(float64(target)/1e6, 0)
		}
		s.st.seekLoaded(s.videoq.Serial())
		l.Debug("seek done")
	}
	s.buf.Reset()

	s.sm.Lock()
	s.seekReq = false
	s.sm.Unlock()
	s.queueAttachments.Store(true)
	s.eof.Store(false)

	s.pm.Lock()
	if s.autoResume {
		s.pauseReq = false
		if s.o.PacketBuffering {
			s.buf.Toggle(true)
		}
		s.autoResume = false
	}
	s.updatePauseLocked()
	if s.pauseReq {
		s.stepLocked()
	}
	s.pm.Unlock()

	s.emit(EventSeekComplete, SeekComplete{PositionMs: s.position(), Err: err})
	s.toggleBuffering(true)
	return true
}

// handleSelects runs the stream selection requests on the reader goroutine
func (s *session) handleSelects() {
	for {
		select {
		case r := <-s.selects:
			r.done <- s.selectStream(r.index, r.selected)
		default:
			return
		}
	}
}

func (s *session) selectStream(index int, selected bool) error {
	info, ok := s.info.Stream(index)
	if !ok {
		return media.ErrUnsupported
	}
	cur := s.component(info.Kind)
	if !selected {
		if cur == nil || cur.info.Index != index {
			return nil
		}
		s.closeComponent(info.Kind)
		return nil
	}
	if cur != nil {
		if cur.info.Index == index {
			return nil
		}
		s.closeComponent(info.Kind)
	}
	if err := s.openComponent(index); err != nil {
		return err
	}
	if pos := s.position(); pos > 0 && !math.IsNaN(s.masterClock()) {
		s.seekTo(pos)
	}
	return nil
}

// position returns the playback position in ms relative to the start of the input
func (s *session) position() int64 {
	start := int64(0)
	if s.info.StartTime != media.NoPTS && s.info.StartTime > 0 {
		start = s.info.StartTime / 1000
	}

	var pos int64
	if v := s.masterClock(); math.IsNaN(v) {
		s.sm.Lock()
		pos = s.seekPos / 1000
		s.sm.Unlock()
	} else {
		pos = int64(v * 1000)
	}
	if pos < 0 || pos < start {
		return 0
	}
	return pos - start
}

// duration returns the input duration in ms, 0 when unknown
func (s *session) duration() int64 {
	if s.info.Duration == media.NoPTS || s.info.Duration <= 0 {
		return 0
	}
	return s.info.Duration / 1000
}
