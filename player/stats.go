package player

import (
	"sync"
	"sync/atomic"

	"github.com/njyeung/avsync/clock"
	"github.com/njyeung/avsync/media"
	"github.com/njyeung/avsync/queue"
)

const speedSamples = 10

// TrackStats describes the packet queue of one stream kind
type TrackStats struct {
	Packets    int
	Bytes      int
	DurationMs int64
}

// Stats is a snapshot of the playback statistics
type Stats struct {
	VideoDecodeFPS   float64
	VideoOutputFPS   float64
	AVDelay          float64
	AVDiff           float64
	Video            TrackStats
	Audio            TrackStats
	BitRate          int64
	FrameDropsEarly  int64
	FrameDropsLate   int64
	SeekLoadDuration int64 // ms, 0 until a seek completed
	PlayableMs       int64
	BufferingPercent int
	Buffering        bool
	Master           clock.SyncType
	MasterClock      float64
	Pool             queue.PoolStats
}

// speedSampler measures an event rate over the last few occurrences
type speedSampler struct {
	m     sync.Mutex // Locks ts and n
	ts    [speedSamples]float64
	n     int
	index int
}

func (s *speedSampler) add(t float64) {
	s.m.Lock()
	defer s.m.Unlock()
	s.ts[s.index] = t
	s.index = (s.index + 1) % speedSamples
	if s.n < speedSamples {
		s.n++
	}
}

func (s *speedSampler) rate() float64 {
	s.m.Lock()
	defer s.m.Unlock()
	if s.n < 2 {
		return 0
	}
	first := s.ts[(s.index-s.n+speedSamples)%speedSamples]
	last := s.ts[(s.index-1+speedSamples)%speedSamples]
	if last <= first {
		return 0
	}
	return float64(s.n-1) / (last - first)
}

type statistics struct {
	vdps speedSampler
	vfps speedSampler

	frameDropsEarly atomic.Int64
	frameDropsLate  atomic.Int64

	avDelay atomicFloat
	avDiff  atomicFloat

	// A seek is loaded once the first picture of its serial is shown
	seekSerial atomic.Int64
	seekStart  atomic.Int64
	seekLoad   atomic.Int64
}

func (st *statistics) init() {
	st.seekSerial.Store(-1)
}

func (st *statistics) videoDecoded() {
	st.vdps.add(clock.Now())
}

func (st *statistics) videoDisplayed(serial int) {
	now := clock.Now()
	st.vfps.add(now)
	if st.seekSerial.CompareAndSwap(int64(serial), -1) {
		st.seekLoad.Store(int64(now*1000) - st.seekStart.Load())
	}
}

func (st *statistics) seekLoaded(serial int) {
	st.seekStart.Store(int64(clock.Now() * 1000))
	st.seekSerial.Store(int64(serial))
}

func (st *statistics) setAV(delay, diff float64) {
	st.avDelay.Store(delay)
	st.avDiff.Store(diff)
}

// cachedMs returns how much media q holds in ms, -1 when it cannot be known
func cachedMs(q *queue.PacketQueue, tb media.Rational) int64 {
	if tb.Num <= 0 || tb.Den <= 0 {
		return -1
	}
	if first, last, ok := q.PTSSpan(); ok && last > first {
		return media.RescaleQ(last-first, tb, media.TimeBaseMilli)
	}
	return media.RescaleQ(q.Duration(), tb, media.TimeBaseMilli)
}

func trackStats(q *queue.PacketQueue, c *component) TrackStats {
	if c == nil {
		return TrackStats{}
	}
	n, size, _ := q.Stats()
	return TrackStats{Packets: n, Bytes: size, DurationMs: max(cachedMs(q, c.info.TimeBase), 0)}
}

func (s *session) stats() Stats {
	st := Stats{
		VideoDecodeFPS:   s.st.vdps.rate(),
		VideoOutputFPS:   s.st.vfps.rate(),
		AVDelay:          s.st.avDelay.Load(),
		AVDiff:           s.st.avDiff.Load(),
		Video:            trackStats(s.videoq, s.component(media.KindVideo)),
		Audio:            trackStats(s.audioq, s.component(media.KindAudio)),
		BitRate:          s.info.BitRate,
		FrameDropsEarly:  s.st.frameDropsEarly.Load(),
		FrameDropsLate:   s.st.frameDropsLate.Load(),
		SeekLoadDuration: s.st.seekLoad.Load(),
		PlayableMs:       s.buf.PlayableMs(),
		BufferingPercent: s.buf.Percent(),
		Buffering:        s.buf.Buffering(),
		Master:           s.masterSyncType(),
		MasterClock:      s.masterClock(),
		Pool:             s.pool.Stats(),
	}
	return st
}
