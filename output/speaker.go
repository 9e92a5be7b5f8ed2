package output

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/njyeung/avsync/media"
)

const maxInt16 = 32767

// Speaker plays the engine audio through the system speaker
type Speaker struct {
	mu     sync.Mutex
	ctrl   *beep.Ctrl
	opened bool

	// read from the fill callback, which runs under the speaker lock
	latency atomic.Int64
}

// NewSpeaker creates an audio output, the device is initialized on Open
func NewSpeaker() *Speaker {
	return &Speaker{}
}

// Open implements media.AudioOutput. The speaker mixes stereo only
func (s *Speaker) Open(wanted media.AudioSpec, fill media.FillFunc) (media.AudioSpec, error) {
	if wanted.SampleRate <= 0 || wanted.Samples <= 0 {
		return media.AudioSpec{}, fmt.Errorf("invalid audio spec %+v: %w", wanted, media.ErrUnsupported)
	}
	if fill == nil {
		return media.AudioSpec{}, errors.New("nil fill callback")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()

	spec := media.AudioSpec{SampleRate: wanted.SampleRate, Channels: 2, Samples: wanted.Samples}
	if err := speaker.Init(beep.SampleRate(spec.SampleRate), spec.Samples); err != nil {
		return media.AudioSpec{}, fmt.Errorf("failed to init speaker: %w", err)
	}
	s.latency.Store(int64(time.Duration(spec.Samples) * time.Second / time.Duration(spec.SampleRate)))
	s.ctrl = &beep.Ctrl{Streamer: &streamer{fill: fill}, Paused: true}
	s.opened = true
	speaker.Play(s.ctrl)
	return spec, nil
}

// Pause implements media.AudioOutput. A paused Ctrl does not pull from fill
func (s *Speaker) Pause(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return
	}
	speaker.Lock()
	s.ctrl.Paused = paused
	speaker.Unlock()
}

// Flush implements media.AudioOutput. The speaker holds no more than one buffer
func (s *Speaker) Flush() {}

// Latency implements media.AudioOutput
func (s *Speaker) Latency() float64 {
	return time.Duration(s.latency.Load()).Seconds()
}

// Close implements media.AudioOutput
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *Speaker) closeLocked() {
	if !s.opened {
		return
	}
	s.opened = false
	s.latency.Store(0)
	speaker.Clear()
	speaker.Close()
}

// streamer pulls s16le stereo from fill and converts it to beep samples
type streamer struct {
	fill media.FillFunc
	buf  []byte
}

// Stream implements beep.Streamer
//
//	buf (raw s16le stereo):
//	┌────┬────┬────┬────┬─...
//	│ L0 │ L0 │ R0 │ R0 │
//	│ lo │ hi │ lo │ hi │
//	└────┴────┴────┴────┴─...
func (s *streamer) Stream(samples [][2]float64) (n int, ok bool) {
	size := len(samples) * 4
	if cap(s.buf) < size {
		s.buf = make([]byte, size)
	}
	s.buf = s.buf[:size]
	s.fill(s.buf)

	for i := range samples {
		b := s.buf[i*4:]
		left := int16(uint16(b[0]) | uint16(b[1])<<8)
		right := int16(uint16(b[2]) | uint16(b[3])<<8)
		samples[i][0] = float64(left) / maxInt16
		samples[i][1] = float64(right) / maxInt16
	}
	return len(samples), true
}

// Err implements beep.Streamer
func (s *streamer) Err() error {
	return nil
}
