// Package player is the playback engine: it reads an input, decodes its streams and
// presents them in sync against a master clock, buffering while the input starves.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/asticode/go-astikit"
	"github.com/njyeung/avsync/recorder"
	"github.com/sirupsen/logrus"
)

// ErrNotPrepared is returned by operations that need a prepared input
var ErrNotPrepared = errors.New("player: not prepared")

// Player plays one input at a time
type Player struct {
	o   Options
	l   logrus.FieldLogger
	e   *astikit.EventManager
	rec *recorder.Recorder

	configMu sync.Mutex // Locks o
	muted    atomic.Bool

	sessionMu sync.Mutex
	session   *session
}

// New creates a player. Nothing is opened until Prepare
func New(o Options) *Player {
	o = o.normalized()
	return &Player{
		o: o,
		l: o.Logger,
		e: astikit.NewEventManager(),
		rec: recorder.New(recorder.Options{
			Opener: o.Recorder,
			Logger: o.Logger,
		}),
	}
}

// On registers an event handler. A handler returning true is removed
func (p *Player) On(name astikit.EventName, h astikit.EventHandler) {
	p.e.On(name, h)
}

func (p *Player) setSession(s *session) *session {
	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()

	prev := p.session
	p.session = s
	return prev
}

func (p *Player) withSession(fn func(*session)) bool {
	p.sessionMu.Lock()
	s := p.session
	p.sessionMu.Unlock()

	if s == nil {
		return false
	}
	fn(s)
	return true
}

// Prepare opens uri and starts reading and decoding. Playback starts right away unless
// StartOnPrepared is false, in which case it waits for Start
func (p *Player) Prepare(ctx context.Context, uri string) error {
	if err := p.Stop(); err != nil {
		p.l.WithError(err).Warn("stopping previous session failed")
	}

	p.configMu.Lock()
	o := p.o
	p.configMu.Unlock()

	s := newSession(o, p.e, p.rec, uri)
	s.muted.Store(p.muted.Load())
	if err := s.open(ctx); err != nil {
		s.close() //nolint: errcheck
		return err
	}
	if !o.StartOnPrepared {
		s.setPauseRequest(true)
	}
	p.setSession(s)
	s.run(context.Background())

	p.l.WithField("uri", uri).Info("prepared")
	p.e.Emit(EventPrepared, Prepared{Info: s.info, DurationMs: s.duration()})
	return nil
}

// Start resumes playback
func (p *Player) Start() error {
	if !p.withSession(func(s *session) {
		s.setPauseRequest(false)
		s.forceRefresh.Store(true)
	}) {
		return ErrNotPrepared
	}
	return nil
}

// Pause pauses playback
func (p *Player) Pause() error {
	if !p.withSession(func(s *session) {
		s.setPauseRequest(true)
		s.forceRefresh.Store(true)
	}) {
		return ErrNotPrepared
	}
	return nil
}

// IsPaused returns whether presentation is paused, for the user or for buffering
func (p *Player) IsPaused() (paused bool) {
	p.withSession(func(s *session) { paused = s.paused.Load() })
	return
}

// StepFrame shows the next frame and pauses again
func (p *Player) StepFrame() error {
	if !p.withSession(func(s *session) {
		s.stepFrame()
		s.forceRefresh.Store(true)
	}) {
		return ErrNotPrepared
	}
	return nil
}

// SeekTo requests a seek to ms from the start of the input. Completion is reported
// through EventSeekComplete
func (p *Player) SeekTo(ms int64) error {
	if ms < 0 {
		return fmt.Errorf("player: invalid seek position %d", ms)
	}
	if !p.withSession(func(s *session) { s.seekTo(ms) }) {
		return ErrNotPrepared
	}
	return nil
}

// Position returns the playback position in ms
func (p *Player) Position() (ms int64) {
	p.withSession(func(s *session) { ms = s.position() })
	return
}

// Duration returns the input duration in ms, 0 when unknown
func (p *Player) Duration() (ms int64) {
	p.withSession(func(s *session) { ms = s.duration() })
	return
}

// SelectStream opens or closes a stream at runtime
func (p *Player) SelectStream(ctx context.Context, index int, selected bool) (err error) {
	err = ErrNotPrepared
	p.withSession(func(s *session) {
		r := selectRequest{index: index, selected: selected, done: make(chan error, 1)}
		select {
		case s.selects <- r:
		case <-s.done:
			err = ErrNotPrepared
			return
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
		select {
		case err = <-r.done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	if err != nil && !errors.Is(err, ErrNotPrepared) && !errors.Is(err, context.Canceled) {
		err = fmt.Errorf("player: selecting stream %d failed: %w", index, err)
	}
	return
}

// SetPlaybackRate changes the speed of every clock
func (p *Player) SetPlaybackRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("player: invalid playback rate %v", rate)
	}
	p.configMu.Lock()
	p.o.Rate = rate
	p.configMu.Unlock()
	p.withSession(func(s *session) {
		s.rate.Store(rate)
		s.audclk.SetSpeed(rate)
		s.vidclk.SetSpeed(rate)
		s.extclk.SetSpeed(rate)
	})
	return nil
}

// SetVolume sets the audio gain, 1 being unchanged
func (p *Player) SetVolume(v float64) {
	v = max(v, 0)
	p.configMu.Lock()
	p.o.Volume = v
	p.configMu.Unlock()
	p.withSession(func(s *session) { s.volume.Store(v) })
}

// SetMute mutes or unmutes audio
func (p *Player) SetMute(muted bool) {
	p.muted.Store(muted)
	p.withSession(func(s *session) { s.muted.Store(muted) })
}

// SetLoop sets how many times the input is played, 0 meaning forever
func (p *Player) SetLoop(n int) {
	n = max(n, 0)
	p.configMu.Lock()
	p.o.Loop = n
	p.configMu.Unlock()
	p.withSession(func(s *session) { s.loop.Store(int32(n)) })
}

// IsMuted returns the mute state
func (p *Player) IsMuted() bool {
	return p.muted.Load()
}

// Stats returns a snapshot of the playback statistics
func (p *Player) Stats() (st Stats) {
	p.withSession(func(s *session) { st = s.stats() })
	return
}

// BufferingPercent returns the progress of the current buffering episode
func (p *Player) BufferingPercent() (v int) {
	p.withSession(func(s *session) { v = s.buf.Percent() })
	return
}

// StartRecord tees the packets read from now on into path
func (p *Player) StartRecord(path string) error {
	if !p.withSession(func(*session) {}) {
		return ErrNotPrepared
	}
	if err := p.rec.Start(path); err != nil {
		return fmt.Errorf("player: starting record failed: %w", err)
	}
	return nil
}

// StopRecord finishes the current recording
func (p *Player) StopRecord() error {
	if err := p.rec.Stop(); err != nil {
		return fmt.Errorf("player: stopping record failed: %w", err)
	}
	return nil
}

// Done is closed once the current input stopped being read, on autoexit, stop or close
func (p *Player) Done() <-chan struct{} {
	var done chan struct{}
	if !p.withSession(func(s *session) { done = s.done }) {
		done = make(chan struct{})
		close(done)
	}
	return done
}

// Stop tears the current input down
func (p *Player) Stop() error {
	s := p.setSession(nil)
	if s == nil {
		return nil
	}
	return s.close()
}

// Close stops playback and releases every resource
func (p *Player) Close() error {
	return p.Stop()
}
