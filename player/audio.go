package player

import (
	"fmt"
	"math"
	"math/bits"
	"time"

	"github.com/njyeung/avsync/clock"
	"github.com/njyeung/avsync/media"
	"github.com/njyeung/avsync/queue"
	"github.com/sirupsen/logrus"
)

const (
	audioMinBufferSize      = 512
	audioMaxCallbacksPerSec = 30

	// audioDiffAvgNB is the number of measures used to average the audio drift
	audioDiffAvgNB = 20

	// sampleCorrectionPercentMax bounds the sample count change applied to fix the drift
	sampleCorrectionPercentMax = 10
)

// audioState is owned by the audio fill callback once the output is unpaused
type audioState struct {
	spec      media.AudioSpec
	hwBufSize int

	buf     []byte
	scratch []byte
	size    int
	index   int

	clock  float64
	serial int

	drift        audioDrift
	callbackTime float64
	syncDone     bool
	rendered     bool
}

// audioDrift smooths the audio minus master clock difference
type audioDrift struct {
	cum       float64
	coef      float64
	threshold float64
	count     int
}

func newAudioDrift(threshold float64) audioDrift {
	return audioDrift{
		coef:      math.Exp(math.Log(0.01) / audioDiffAvgNB),
		threshold: threshold,
	}
}

// wanted returns how many samples should be played instead of nb to pull audio back
// toward the master clock
func (d *audioDrift) wanted(nb, srcRate int, diff float64) int {
	if math.IsNaN(diff) || math.Abs(diff) >= clock.NoSyncThreshold {
		d.count = 0
		d.cum = 0
		return nb
	}

	d.cum = diff + d.coef*d.cum
	if d.count < audioDiffAvgNB {
		d.count++
		return nb
	}

	avg := d.cum * (1 - d.coef)
	if math.Abs(avg) < d.threshold {
		return nb
	}
	w := nb + int(diff*float64(srcRate))
	lo := nb * (100 - sampleCorrectionPercentMax) / 100
	hi := nb * (100 + sampleCorrectionPercentMax) / 100
	return min(max(w, lo), hi)
}

// openAudio opens the output for a stream, falling back to stereo
func (s *session) openAudio(info media.StreamInfo) error {
	if info.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d: %w", info.SampleRate, media.ErrUnsupported)
	}
	wanted := media.AudioSpec{
		SampleRate: info.SampleRate,
		Channels:   info.Channels,
		Samples:    max(audioMinBufferSize, 2<<log2(info.SampleRate/audioMaxCallbacksPerSec)),
	}
	if wanted.Channels <= 0 {
		wanted.Channels = 2
	}

	spec, err := s.o.Audio.Open(wanted, s.fillAudio)
	if err != nil && wanted.Channels > 2 {
		s.l.WithError(err).WithField("channels", wanted.Channels).Debug("audio open failed, trying stereo")
		wanted.Channels = 2
		spec, err = s.o.Audio.Open(wanted, s.fillAudio)
	}
	if err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}

	a := &s.aud
	a.spec = spec
	a.hwBufSize = spec.BufferSize()
	a.buf = nil
	a.size = 0
	a.index = 0
	a.clock = math.NaN()
	a.drift = newAudioDrift(2 * float64(a.hwBufSize) / float64(spec.BytesPerSec()))
	s.l.WithFields(logrus.Fields{
		"rate":     spec.SampleRate,
		"channels": spec.Channels,
		"samples":  spec.Samples,
	}).Debug("audio output opened")
	return nil
}

func log2(v int) int {
	if v <= 0 {
		return 0
	}
	return bits.Len(uint(v)) - 1
}

// fillAudio is the output pull callback
func (s *session) fillAudio(stream []byte) {
	a := &s.aud
	a.callbackTime = clock.Now()
	frameSize := a.spec.FrameSize()

	for len(stream) > 0 {
		if a.index >= a.size {
			if n := s.audioDecodeFrame(); n < 0 {
				a.buf = nil
				a.size = audioMinBufferSize / frameSize * frameSize
			} else {
				a.size = n
			}
			a.index = 0
		}
		if c := s.component(media.KindAudio); c != nil && c.dec.PktSerial() != s.audioq.Serial() {
			// stale after a seek
			a.index = a.size
			clear(stream)
			s.o.Audio.Flush()
			break
		}

		n := min(a.size-a.index, len(stream))
		if a.buf == nil || s.muted.Load() {
			clear(stream[:n])
		} else {
			mixVolume(stream[:n], a.buf[a.index:a.index+n], s.volume.Load())
		}
		stream = stream[n:]
		a.index += n
	}

	if !math.IsNaN(a.clock) {
		pending := float64(a.size-a.index) / float64(a.spec.BytesPerSec())
		s.audclk.SetAt(a.clock-pending-s.o.Audio.Latency(), a.serial, a.callbackTime)
		clock.SyncToSlave(s.extclk, s.audclk)
	}
}

// audioDecodeFrame converts the next sample frame to the output format. It returns the
// size of the chunk or -1 when silence has to be played
func (s *session) audioDecodeFrame() int {
	a := &s.aud
	if s.paused.Load() || s.step.Load() || s.waitingForVideo() {
		return -1
	}

	var af *queue.Frame
	for {
		if !s.waitSamples() {
			return -1
		}
		if af = s.sampq.PeekReadable(); af == nil {
			return -1
		}
		s.sampq.Next()
		if af.Serial == s.audioq.Serial() && !s.audioTooLate(af) {
			break
		}
	}

	f := af.Frame
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return -1
	}
	size := min(len(f.Samples), f.NbSamples*f.Channels*2)
	out := f.Samples[:size]
	nb := size / (f.Channels * 2)

	wanted := nb
	if s.masterSyncType() != clock.AudioMaster {
		wanted = a.drift.wanted(nb, f.SampleRate, s.audclk.Get()-s.masterClock())
	}
	if f.SampleRate != a.spec.SampleRate || f.Channels != a.spec.Channels || wanted != nb {
		outSamples := int(int64(wanted) * int64(a.spec.SampleRate) / int64(f.SampleRate))
		a.scratch = convertS16(a.scratch[:0], out, f.Channels, a.spec.Channels, nb, outSamples)
		out = a.scratch
	}
	a.buf = out

	if math.IsNaN(af.PTS) {
		a.clock = math.NaN()
	} else {
		a.clock = af.PTS + float64(nb)/float64(f.SampleRate)
	}
	a.serial = af.Serial

	if !a.rendered {
		a.rendered = true
		s.emit(EventAudioRenderingStart, nil)
	}
	return len(out)
}

// waitSamples polls the sample queue for at most half the device buffer duration
func (s *session) waitSamples() bool {
	a := &s.aud
	limit := float64(a.hwBufSize) / float64(a.spec.BytesPerSec()) / 2
	for s.sampq.NbRemaining() == 0 {
		if s.audioq.Aborted() || clock.Now()-a.callbackTime > limit {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

// waitingForVideo holds audio back until the first video frame, for a bounded time
func (s *session) waitingForVideo() bool {
	a := &s.aud
	if !s.o.SyncAVStart || a.syncDone {
		return false
	}
	c := s.component(media.KindVideo)
	if c == nil {
		return false
	}
	if ok, _ := c.dec.FirstFrameDecoded(); ok || c.dec.Finished() == s.videoq.Serial() {
		a.syncDone = true
		return false
	}
	if time.Since(c.opened) > SyncAVStartTimeout {
		s.l.Debug("no video frame in time, starting audio")
		a.syncDone = true
		return false
	}
	return true
}

// audioTooLate skips frames the master clock already passed while the rate is not 1
func (s *session) audioTooLate(af *queue.Frame) bool {
	if s.rate.Load() == 1 || math.IsNaN(af.PTS) {
		return false
	}
	m := s.masterClock()
	return !math.IsNaN(m) && af.PTS+af.Duration < m
}
