package player

import (
	"github.com/njyeung/avsync/buffering"
	"github.com/njyeung/avsync/clock"
	"github.com/njyeung/avsync/media"
)

// togglePauseLocked freezes or releases every clock. Callers hold pm
func (s *session) togglePauseLocked(on bool) {
	if s.paused.Load() && !on {
		s.frameTimer.Add(clock.Now() - s.vidclk.LastUpdated())
		s.vidclk.Set(s.vidclk.Get(), s.vidclk.Serial())
	}
	s.extclk.Set(s.extclk.Get(), s.extclk.Serial())
	s.paused.Store(on)
	s.audclk.SetPaused(on)
	s.vidclk.SetPaused(on)
	s.extclk.SetPaused(on)
	if s.o.Audio != nil && s.hasAudio() {
		s.o.Audio.Pause(on)
	}
}

// updatePauseLocked pauses while the user asked for it or while buffering, unless a
// frame step is in progress. Callers hold pm
func (s *session) updatePauseLocked() {
	if !s.step.Load() && (s.pauseReq || s.buf.Buffering()) {
		s.togglePauseLocked(true)
	} else {
		s.togglePauseLocked(false)
	}
}

// setPauseRequest records the user pause state
func (s *session) setPauseRequest(on bool) {
	s.pm.Lock()
	defer s.pm.Unlock()
	s.pauseReq = on
	s.autoResume = !on
	s.updatePauseLocked()
	s.step.Store(false)
}

// stepFrame shows the next frame then pauses again
func (s *session) stepFrame() {
	s.pm.Lock()
	defer s.pm.Unlock()
	s.stepLocked()
}

func (s *session) stepLocked() {
	s.pauseReq = true
	s.autoResume = false
	s.step.Store(true)
	if s.paused.Load() {
		s.togglePauseLocked(false)
	}
}

// stepDone re-pauses once the stepped frame was shown
func (s *session) stepDone() {
	s.pm.Lock()
	defer s.pm.Unlock()
	if s.step.Load() && !s.paused.Load() {
		s.step.Store(false)
		s.updatePauseLocked()
	}
}

// toggleBuffering starts or ends a buffering episode
func (s *session) toggleBuffering(on bool) {
	if !s.o.PacketBuffering {
		return
	}
	s.pm.Lock()
	changed := s.buf.Toggle(on)
	if changed {
		s.updatePauseLocked()
	}
	s.pm.Unlock()

	if !changed {
		return
	}
	if on {
		s.l.Debug("buffering started")
		s.emit(EventBufferingStart, nil)
	} else {
		s.l.Debug("buffering ended")
		s.emit(EventBufferingEnd, nil)
	}
}

// checkBuffering measures the cache and ends buffering once enough is queued
func (s *session) checkBuffering() {
	if !s.buf.Buffering() {
		return
	}
	st := s.buf.Check(s.bufferLevel())
	if st.Percent != 0 {
		s.emit(EventBufferingUpdate, BufferingUpdate{PositionMs: st.PlayableMs, Percent: st.Percent})
	}
	if st.End {
		s.toggleBuffering(false)
	}
}

func (s *session) bufferLevel() buffering.Level {
	l := buffering.Level{
		AudioCachedMs: -1,
		VideoCachedMs: -1,
		AudioPackets:  -1,
		VideoPackets:  -1,
		PositionMs:    s.position(),
	}
	if c := s.component(media.KindAudio); c != nil {
		l.AudioCachedMs = cachedMs(s.audioq, c.info.TimeBase)
		l.Bytes += s.audioq.Size()
		if !s.audioq.Aborted() {
			l.AudioPackets = s.audioq.NbPackets()
		}
	}
	if c := s.component(media.KindVideo); c != nil {
		l.VideoCachedMs = cachedMs(s.videoq, c.info.TimeBase)
		l.Bytes += s.videoq.Size()
		if !s.videoq.Aborted() {
			l.VideoPackets = s.videoq.NbPackets()
		}
	}
	if q := s.indicator.Load(); q != nil {
		l.IndicatorPackets = q.NbPackets()
	}
	return l
}
