package player

import (
	"context"
	"math"
	"time"

	"github.com/njyeung/avsync/clock"
	"github.com/njyeung/avsync/media"
	"github.com/njyeung/avsync/queue"
)

// refresh is the presentation loop
func (s *session) refresh(ctx context.Context) error {
	remaining := 0.0
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		if remaining > 0 {
			t.Reset(time.Duration(remaining * float64(time.Second)))
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
			}
		} else if ctx.Err() != nil {
			return nil
		}
		if s.abort.Load() {
			return nil
		}

		remaining = RefreshRate
		if !s.paused.Load() || s.forceRefresh.Load() {
			s.videoRefresh(&remaining)
		}
	}
}

// videoRefresh shows the picture that is due and computes how long to sleep
func (s *session) videoRefresh(remaining *float64) {
	if !s.paused.Load() && s.masterSyncType() == clock.ExternalClock && s.realtime && s.rate.Load() == 1 {
		s.updateExternalSpeed()
	}

	if s.hasVideo() {
		s.advancePicture(remaining)
		if s.forceRefresh.Load() && s.pictq.Shown() {
			s.videoDisplay()
		}
	}
	s.forceRefresh.Store(false)
}

// advancePicture consumes the pictures that are due, dropping the late ones
func (s *session) advancePicture(remaining *float64) {
	for s.pictq.NbRemaining() > 0 {
		last := s.pictq.PeekLast()
		vp := s.pictq.Peek()

		if vp.Serial != s.videoq.Serial() {
			s.pictq.Next()
			continue
		}
		if last.Serial != vp.Serial {
			s.frameTimer.Store(clock.Now())
		}
		if s.paused.Load() {
			return
		}

		delay := s.computeTargetDelay(s.vpDuration(last, vp))
		now := clock.Now()
		if ft := s.frameTimer.Load(); now < ft+delay {
			*remaining = math.Min(ft+delay-now, *remaining)
			return
		}

		s.frameTimer.Add(delay)
		if delay > 0 && now-s.frameTimer.Load() > clock.SyncThresholdMax {
			s.frameTimer.Store(now)
		}

		if !math.IsNaN(vp.PTS) {
			s.vidclk.Set(vp.PTS, vp.Serial)
			clock.SyncToSlave(s.extclk, s.vidclk)
		}

		if s.pictq.NbRemaining() > 1 {
			next := s.pictq.PeekNext()
			duration := s.vpDuration(vp, next)
			if !s.step.Load() && s.shouldDrop() && now > s.frameTimer.Load()+duration {
				s.st.frameDropsLate.Add(1)
				s.pictq.Next()
				continue
			}
		}

		s.expireSubtitles(vp.PTS)

		s.pictq.Next()
		s.forceRefresh.Store(true)
		s.stepDone()
		return
	}
}

// expireSubtitles drops the cues that ended at video time pts
func (s *session) expireSubtitles(pts float64) {
	if s.component(media.KindSubtitle) == nil {
		return
	}
	for s.subpq.NbRemaining() > 0 {
		sp := s.subpq.Peek()
		var next *queue.Frame
		if s.subpq.NbRemaining() > 1 {
			next = s.subpq.PeekNext()
		}
		stale := sp.Serial != s.subq.Serial() || sp.Sub == nil ||
			pts > sp.PTS+float64(sp.Sub.EndDisplayTime)/1000 ||
			(next != nil && next.Sub != nil && pts > next.PTS+float64(next.Sub.StartDisplayTime)/1000)
		if !stale {
			return
		}
		if sp.Uploaded {
			s.emit(EventTimedText, TimedText{})
			s.shownSub = nil
			s.forceRefresh.Store(true)
		}
		s.subpq.Next()
	}
}

// computeTargetDelay corrects the nominal frame delay when video is not the master
func (s *session) computeTargetDelay(delay float64) float64 {
	diff := 0.0
	if s.masterSyncType() != clock.VideoMaster {
		diff = s.vidclk.Get() - s.masterClock()
		delay = clock.TargetDelay(delay, diff)
	}
	s.st.setAV(delay, diff)
	return delay
}

// vpDuration returns how long vp stays on screen before next
func (s *session) vpDuration(vp, next *queue.Frame) float64 {
	if vp.Serial != next.Serial {
		return 0
	}
	d := next.PTS - vp.PTS
	if math.IsNaN(d) || d <= 0 || d > s.maxFrameDuration {
		return vp.Duration
	}
	return d
}

// updateExternalSpeed lets a realtime source drive the external clock from queue fill
func (s *session) updateExternalSpeed() {
	vpk, apk := -1, -1
	if s.hasVideo() {
		vpk = s.videoq.NbPackets()
	}
	if s.hasAudio() {
		apk = s.audioq.NbPackets()
	}
	s.extclk.SetSpeed(clock.ExternalSpeed(s.extclk.Speed(), vpk, apk))
}

// videoDisplay hands the last shown picture and the current cue to the renderer
func (s *session) videoDisplay() {
	vp := s.pictq.PeekLast()

	sub := s.shownSub
	if s.component(media.KindSubtitle) != nil && s.subpq.NbRemaining() > 0 {
		sp := s.subpq.Peek()
		if sp.Sub != nil && !math.IsNaN(vp.PTS) && vp.PTS >= sp.PTS+float64(sp.Sub.StartDisplayTime)/1000 {
			if !sp.Uploaded {
				sp.Uploaded = true
				s.emit(EventTimedText, TimedText{Text: sp.Sub.Text})
			}
			sub = sp.Sub
		}
	}

	if r := s.o.Renderer; r != nil {
		if vp.Width != s.surfaceW || vp.Height != s.surfaceH || vp.Format != s.surfaceFormat {
			if err := r.Negotiate(vp.Width, vp.Height, vp.Format); err != nil {
				s.l.WithError(err).Warn("negotiating surface failed")
				return
			}
			s.surfaceW, s.surfaceH, s.surfaceFormat = vp.Width, vp.Height, vp.Format
			vp.Uploaded = false
		}
		if !vp.Uploaded || sub != s.shownSub {
			if err := r.Upload(vp.Frame, sub); err != nil {
				s.l.WithError(err).Warn("uploading picture failed")
				return
			}
			vp.Uploaded = true
		}
		if err := r.Present(); err != nil {
			s.l.WithError(err).Warn("presenting picture failed")
			return
		}
	}
	s.shownSub = sub

	s.st.videoDisplayed(vp.Serial)
	if !s.videoRendered {
		s.videoRendered = true
		s.emit(EventVideoRenderingStart, nil)
	}
}
