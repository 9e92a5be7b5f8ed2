package player

import (
	"math"

	"github.com/njyeung/avsync/clock"
	"github.com/njyeung/avsync/decoder"
	"github.com/njyeung/avsync/media"
)

// videoThread decodes pictures into the picture queue
func (s *session) videoThread(d *decoder.Decoder) error {
	info := s.component(media.KindVideo).info
	tb := info.TimeBase
	var duration float64
	if info.FrameRate.Num > 0 && info.FrameRate.Den > 0 {
		duration = float64(info.FrameRate.Den) / float64(info.FrameRate.Num)
	}

	f := media.NewFrame(media.KindVideo)
	started := false
	for {
		ret, err := s.getVideoFrame(d, f, tb)
		if ret < 0 {
			return err
		}
		if ret == 0 {
			continue
		}
		if !started {
			started = true
			s.emit(EventVideoDecodedStart, nil)
		}
		s.st.videoDecoded()

		pts := math.NaN()
		if f.PTS != media.NoPTS {
			pts = float64(f.PTS) * tb.Float()
		}
		if err := s.queuePicture(f, pts, duration, f.Pos, d.PktSerial()); err != nil {
			return err
		}
	}
}

// getVideoFrame decodes the next picture and drops it early when it is already late
// against the master clock
func (s *session) getVideoFrame(d *decoder.Decoder, f *media.Frame, tb media.Rational) (int, error) {
	ret, err := d.DecodeFrame(f)
	if ret <= 0 {
		return ret, err
	}

	if f.PTS == media.NoPTS || !s.shouldDrop() {
		return 1, nil
	}
	diff := float64(f.PTS)*tb.Float() - s.masterClock()
	if !math.IsNaN(diff) && math.Abs(diff) < clock.NoSyncThreshold && diff < 0 &&
		d.PktSerial() == s.vidclk.Serial() && s.videoq.NbPackets() > 0 {
		s.st.frameDropsEarly.Add(1)
		s.frameDropsContinuous++
		if s.frameDropsContinuous > s.o.FrameDrop {
			s.frameDropsContinuous = 0
			return 1, nil
		}
		return 0, nil
	}
	return 1, nil
}

// shouldDrop applies the frame drop policy
func (s *session) shouldDrop() bool {
	return s.o.FrameDrop > 0 || (s.o.FrameDrop != 0 && s.masterSyncType() != clock.VideoMaster)
}

// queuePicture moves a decoded picture into the next writable slot
func (s *session) queuePicture(f *media.Frame, pts, duration float64, pos int64, serial int) error {
	vp := s.pictq.PeekWritable()
	if vp == nil {
		return media.ErrAborted
	}

	if f.Width != s.picW || f.Height != s.picH {
		s.picW, s.picH = f.Width, f.Height
		s.emit(EventVideoSizeChanged, VideoSize{Width: f.Width, Height: f.Height})
	}
	if f.AspectRatio != s.picSAR {
		s.picSAR = f.AspectRatio
		if f.AspectRatio.Num > 0 {
			s.emit(EventSARChanged, VideoSize{Width: f.AspectRatio.Num, Height: f.AspectRatio.Den})
		}
	}

	vp.SAR = f.AspectRatio
	vp.Uploaded = false
	vp.Width = f.Width
	vp.Height = f.Height
	vp.Format = f.Format
	vp.PTS = pts
	vp.Duration = duration
	vp.Pos = pos
	vp.Serial = serial

	// the slot payload and the scratch frame trade buffers
	*vp.Frame, *f = *f, *vp.Frame
	s.pictq.Push()
	return nil
}

// audioThread decodes samples into the sample queue
func (s *session) audioThread(d *decoder.Decoder) error {
	f := media.NewFrame(media.KindAudio)
	started := false
	for {
		ret, err := d.DecodeFrame(f)
		if ret < 0 {
			return err
		}
		if ret == 0 {
			continue
		}
		if !started {
			started = true
			s.emit(EventAudioDecodedStart, nil)
		}

		af := s.sampq.PeekWritable()
		if af == nil {
			return media.ErrAborted
		}
		af.PTS = math.NaN()
		if f.PTS != media.NoPTS && f.SampleRate > 0 {
			af.PTS = float64(f.PTS) / float64(f.SampleRate)
		}
		af.Pos = f.Pos
		af.Serial = d.PktSerial()
		af.Duration = 0
		if f.SampleRate > 0 {
			af.Duration = float64(f.NbSamples) / float64(f.SampleRate)
		}
		*af.Frame, *f = *f, *af.Frame
		s.sampq.Push()
	}
}

// subtitleThread decodes text cues into the subtitle queue
func (s *session) subtitleThread(d *decoder.Decoder) error {
	f := media.NewFrame(media.KindSubtitle)
	for {
		sp := s.subpq.PeekWritable()
		if sp == nil {
			return media.ErrAborted
		}

		ret, err := d.DecodeFrame(f)
		if ret < 0 {
			return err
		}
		if ret == 0 || f.Subtitle == nil {
			continue
		}

		sp.PTS = 0
		if f.Subtitle.PTS != media.NoPTS {
			sp.PTS = float64(f.Subtitle.PTS) / 1e6
		}
		sp.Sub = f.Subtitle
		sp.Serial = d.PktSerial()
		sp.Width = f.Width
		sp.Height = f.Height
		sp.Uploaded = false
		f.Subtitle = nil
		s.subpq.Push()
	}
}
